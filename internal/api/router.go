package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Router constructs the HTTP router. It is pure: no goroutines, no
// listeners, so tests can mount it on httptest.NewServer directly.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	if !s.cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	// Rate limiting before CORS, to reject early.
	r.Use(s.rateLimiter.Middleware)

	corsOrigins := s.cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
			"https://blastline.io",
			"https://*.blastline.io",
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/rooms", s.handleListRooms)
		r.Get("/rooms/{roomID}/state", s.handleRoomState)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/ws", s.handleWS)

	return r
}

// handleListRooms serves the lobby-searchable room summaries.
func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.manager.Metadata())
}

// handleRoomState serves a full room snapshot for spectators.
func (s *Server) handleRoomState(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	room, ok := s.manager.Get(roomID)
	if !ok {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "room not found"})
		return
	}
	respondJSON(w, http.StatusOK, room.Snapshot())
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("⚠️ encode response: %v", err)
	}
}
