package params

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Engine struct {
	// QueueSize bounds the commands waiting for the single writer.
	QueueSize int
	// TradeTail is the default number of trades returned by the reporting
	// surface when no limit is given.
	TradeTail int
}

type Server struct {
	Listen string
	// SendBuffer is the per-session outbound message buffer; a session that
	// falls this far behind is dropped.
	SendBuffer     int
	AllowedOrigins []string
	LogFile        string
}

type Config struct {
	Engine Engine
	Server Server
}

func Default() Config {
	return Config{
		Engine: Engine{
			QueueSize: 1024,
			TradeTail: 50,
		},
		Server: Server{
			Listen:         ":8080",
			SendBuffer:     256,
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			LogFile:        "",
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if listen := os.Getenv("LISTEN_ADDR"); listen != "" {
		cfg.Server.Listen = listen
	}
	if logFile := os.Getenv("LOG_FILE"); logFile != "" {
		cfg.Server.LogFile = logFile
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = strings.Split(origins, ",")
	}
	if qs := os.Getenv("ENGINE_QUEUE_SIZE"); qs != "" {
		if n, err := strconv.Atoi(qs); err == nil && n > 0 {
			cfg.Engine.QueueSize = n
		}
	}
	if tail := os.Getenv("TRADE_TAIL_LIMIT"); tail != "" {
		if n, err := strconv.Atoi(tail); err == nil && n > 0 {
			cfg.Engine.TradeTail = n
		}
	}
	if buf := os.Getenv("WS_SEND_BUFFER"); buf != "" {
		if n, err := strconv.Atoi(buf); err == nil && n > 0 {
			cfg.Server.SendBuffer = n
		}
	}

	return cfg
}
