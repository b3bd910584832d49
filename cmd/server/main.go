package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/HarshJ2508/order-execution-sys/params"
	"github.com/HarshJ2508/order-execution-sys/pkg/api"
	"github.com/HarshJ2508/order-execution-sys/pkg/engine"
	"github.com/HarshJ2508/order-execution-sys/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("")

	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Server.LogFile != "" {
		logger, err = util.NewLoggerWithFile(cfg.Server.LogFile)
	} else {
		logger, err = util.NewLogger()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	eng := engine.New(sugar, util.RealClock{}, cfg.Engine.QueueSize)
	hub := api.NewHub(sugar, eng, cfg.Server.SendBuffer)
	eng.SetBroadcaster(hub)
	eng.Start()
	defer eng.Stop()

	srv := api.NewServer(sugar, eng, hub, cfg.Server.AllowedOrigins, cfg.Engine.TradeTail)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Server.Listen)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		sugar.Fatalw("server_failed", "err", err)
	case sig := <-stop:
		sugar.Infow("shutting_down", "signal", sig.String())
	}
}
