package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lazypower/factgraph/internal/store"
)

// Options tunes the server. Zero values fall back to defaults.
type Options struct {
	Logger         *zap.Logger
	RateLimitRPS   float64
	RateLimitBurst int
	CacheSize      int
}

// Server is the factgraph HTTP API server.
type Server struct {
	db       *store.DB
	resolver *resolver
	logger   *zap.Logger
	router   chi.Router
	version  string
	started  time.Time
}

// New creates a new Server with the given database and version string.
func New(db *store.DB, version string, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	res, err := newResolver(db, opts.CacheSize)
	if err != nil {
		return nil, err
	}

	s := &Server{
		db:       db,
		resolver: res,
		logger:   logger,
		version:  version,
		started:  time.Now(),
	}
	s.routes(opts)
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes(opts Options) {
	rps, burst := opts.RateLimitRPS, opts.RateLimitBurst
	if rps <= 0 {
		rps = 50
	}
	if burst <= 0 {
		burst = 20
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(requestLogger(s.logger))
	r.Use(rateLimit(rps, burst))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/facts", s.handleFacts)
		r.Post("/facts/{id}/touch", s.handleTouch)
		r.Get("/search", s.handleSearch)
		r.Get("/relations", s.handleRelations)
		r.Get("/resolve/{name}", s.handleResolve)
		r.Get("/context", s.handleGetContext)

		r.Get("/stats", s.handleStats)
		r.Get("/graph", s.handleGraph)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.PingContext(r.Context()); err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
