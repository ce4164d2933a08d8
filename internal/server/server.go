// Package server exposes the operational HTTP endpoints: a health check and
// Prometheus metrics. The bot itself talks to Telegram by long polling and
// does not need it.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const pingTimeout = 2 * time.Second

// Pinger is an optional dependency reported by /healthz.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type LeadCounter interface {
	Count() (int, error)
}

type Server struct {
	srv     *http.Server
	leads   LeadCounter
	deps    map[string]Pinger
	origins []string
	started time.Time
	log     *zap.Logger
}

type Option func(*Server)

func WithDependency(name string, p Pinger) Option {
	return func(s *Server) { s.deps[name] = p }
}

// WithCORS allows browser dashboards on the given origins to poll /healthz.
func WithCORS(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.log = l }
}

func New(addr string, leads LeadCounter, opts ...Option) *Server {
	s := &Server{
		leads:   leads,
		deps:    make(map[string]Pinger),
		started: time.Now(),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		}))
	}

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("HTTP server listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type healthResponse struct {
	Status       string            `json:"status"`
	Uptime       string            `json:"uptime"`
	Leads        int               `json:"leads"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status: "ok",
		Uptime: time.Since(s.started).Round(time.Second).String(),
	}
	code := http.StatusOK

	count, err := s.leads.Count()
	if err != nil {
		s.log.Warn("Health check: lead store unreadable", zap.Error(err))
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	resp.Leads = count

	if len(s.deps) > 0 {
		resp.Dependencies = make(map[string]string, len(s.deps))
		names := make([]string, 0, len(s.deps))
		for name := range s.deps {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
			err := s.deps[name].PingContext(ctx)
			cancel()

			if err != nil {
				s.log.Warn("Health check: dependency down", zap.String("dependency", name), zap.Error(err))
				resp.Dependencies[name] = "down"
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Dependencies[name] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Warn("Failed to write health response", zap.Error(err))
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.log.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
