package api

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"blastline/internal/game"
)

// ServerConfig bundles everything the API server needs. Designed for
// dependency injection so tests can swap pieces.
type ServerConfig struct {
	// Addr is the public listen address, e.g. ":8080".
	Addr string

	// Manager owns the rooms (required).
	Manager *game.Manager

	// MaxWSPerIP caps concurrent websocket connections per client IP.
	// Zero means 4.
	MaxWSPerIP int

	// RateLimitConfig tunes the HTTP rate limiter. Nil uses defaults.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins overrides the allowed browser origins.
	CORSOrigins []string

	// DisableLogging drops the request logger, useful in tests.
	DisableLogging bool
}

// Server is the public-facing HTTP and websocket front end. It owns
// one hub per room and bridges them to the room manager.
type Server struct {
	cfg         ServerConfig
	manager     *game.Manager
	rateLimiter *IPRateLimiter
	wsLimiter   *WebSocketRateLimiter
	httpServer  *http.Server

	mu   sync.Mutex
	hubs map[string]*Hub
}

// NewServer wires the server. Call Start to listen, or mount Router()
// on httptest.NewServer in tests.
func NewServer(cfg ServerConfig) *Server {
	rateLimitCfg := DefaultRateLimitConfig
	if cfg.RateLimitConfig != nil {
		rateLimitCfg = *cfg.RateLimitConfig
	}
	maxWS := cfg.MaxWSPerIP
	if maxWS <= 0 {
		maxWS = 4
	}
	return &Server{
		cfg:         cfg,
		manager:     cfg.Manager,
		rateLimiter: NewIPRateLimiter(rateLimitCfg),
		wsLimiter:   NewWebSocketRateLimiter(maxWS),
		hubs:        make(map[string]*Hub),
	}
}

// roomFor returns the hub and room for an id, creating both on first
// use. Creation and disposal share s.mu so a join cannot race a
// teardown of the same room id.
func (s *Server) roomFor(roomID string) (*Hub, *game.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hub, ok := s.hubs[roomID]
	if !ok {
		hub = NewHub(roomID)
		s.hubs[roomID] = hub
	}
	room := s.manager.GetOrCreate(roomID, hub)
	return hub, room
}

// maybeDisposeRoom tears the room down if its hub is still empty.
func (s *Server) maybeDisposeRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hub, ok := s.hubs[roomID]
	if !ok || hub.Count() > 0 {
		return
	}
	delete(s.hubs, roomID)
	s.manager.Dispose(roomID)
	ForgetRoom(roomID)
	metricRoomsActive.Set(float64(s.manager.Count()))
}

// Start listens on the configured address. Non-blocking.
func (s *Server) Start() {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websockets hold the connection open
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("🚀 room server listening on %s", s.cfg.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ http server: %v", err)
		}
	}()
}

// Stop drains connections and shuts everything down.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	hubs := make([]*Hub, 0, len(s.hubs))
	for id, hub := range s.hubs {
		hubs = append(hubs, hub)
		delete(s.hubs, id)
	}
	s.mu.Unlock()

	for _, hub := range hubs {
		hub.CloseAll()
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Printf("⚠️ http shutdown: %v", err)
		}
	}

	s.manager.Shutdown()
	s.rateLimiter.Stop()
	log.Printf("✅ api server stopped")
}
