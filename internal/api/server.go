// Package api provides the minimal request/response surface outside the
// live channel: a one-shot message snapshot and a health endpoint.
package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"chatsync/internal/store"
	"chatsync/internal/websocket"
)

// Server exposes read-only queries for clients that want a snapshot without
// opening the live channel.
type Server struct {
	store        *store.Store
	registry     *websocket.Registry
	historyLimit int
}

// NewServer creates the REST surface over the store and registry.
func NewServer(st *store.Store, registry *websocket.Registry, historyLimit int) *Server {
	if historyLimit <= 0 {
		historyLimit = store.DefaultHistoryLimit
	}
	return &Server{store: st, registry: registry, historyLimit: historyLimit}
}

// Routes wires the REST endpoints onto a chi router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/api/messages", s.handleMessages)
	r.Get("/health", s.handleHealth)

	return r
}

// handleMessages returns the same snapshot the live channel sends on
// connect: up to the history limit of non-deleted messages, oldest first.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.store.ListActive(r.Context(), s.historyLimit)
	if err != nil {
		log.Printf("api: message snapshot failed: %v", err)
		respondError(w, http.StatusInternalServerError, "message snapshot unavailable")
		return
	}

	respondJSON(w, http.StatusOK, messages)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		log.Printf("api: health check failed: %v", err)
		respondError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}

	count, err := s.store.CountAll(r.Context())
	if err != nil {
		log.Printf("api: health check failed: %v", err)
		respondError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}

	stats := s.registry.Stats()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"messages":    count,
		"connections": stats["total_connections"],
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("api: response encoding failed: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, reason string) {
	respondJSON(w, status, map[string]string{"error": reason})
}
