// Package api exposes the engine over WebSocket sessions and a read-only
// REST reporting surface. Neither surface touches engine state directly:
// everything goes through the engine's single-writer entry point or reads
// the snapshots it publishes.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/HarshJ2508/order-execution-sys/pkg/engine"
)

// Server mounts the WebSocket endpoint and the REST reporting routes.
type Server struct {
	log    *zap.SugaredLogger
	engine *engine.Engine
	router *mux.Router
	hub    *Hub

	origins   []string
	tradeTail int
}

func NewServer(log *zap.SugaredLogger, eng *engine.Engine, hub *Hub, origins []string, tradeTail int) *Server {
	s := &Server{
		log:       log,
		engine:    eng,
		router:    mux.NewRouter(),
		hub:       hub,
		origins:   origins,
		tradeTail: tradeTail,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/order-book", s.handleOrderBook).Methods("GET")
	s.router.HandleFunc("/trades", s.handleTrades).Methods("GET")
	s.router.HandleFunc("/stats", s.handleStats).Methods("GET")
	s.router.HandleFunc("/participants/{id}/orders", s.handleParticipantOrders).Methods("GET")
	s.router.HandleFunc("/participants/{id}/trades", s.handleParticipantTrades).Methods("GET")
	s.router.HandleFunc("/participants/{id}/position", s.handleParticipantPosition).Methods("GET")
	s.router.HandleFunc("/force-match", s.handleForceMatch).Methods("POST")
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Handler returns the full route tree wrapped in CORS middleware.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start runs the hub and serves HTTP on addr. Blocks until the listener fails.
func (s *Server) Start(addr string) error {
	go s.hub.Run()
	s.log.Infow("api_listening", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleOrderBook(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, "", engine.GetBook{})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	n := s.tradeTail
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		n = parsed
	}
	s.respond(w, r, "", engine.TailTrades{N: n})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, "", engine.GetStats{})
}

func (s *Server) handleParticipantOrders(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, mux.Vars(r)["id"], engine.GetOrders{})
}

func (s *Server) handleParticipantTrades(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, mux.Vars(r)["id"], engine.GetTrades{})
}

func (s *Server) handleParticipantPosition(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, mux.Vars(r)["id"], engine.GetPositions{})
}

func (s *Server) handleForceMatch(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, "", engine.ForceMatch{})
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, participantID string, cmd engine.Command) {
	res, err := s.engine.Do(r.Context(), participantID, cmd)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, engine.ErrEngineStopped) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: engine.RejectCode(err)})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
