// Package server runs the local RWE Lens dashboard: dataset upload and
// preview, analysis and chart endpoints, exports, and the AI chat.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rwelens/rwelens-cli/internal/chat"
	"github.com/rwelens/rwelens-cli/internal/history"
	"github.com/rwelens/rwelens-cli/internal/store"
	"github.com/rwelens/rwelens-cli/internal/study"
)

const shutdownGrace = 10 * time.Second

// Config wires the server's dependencies. Catalog and Engine are optional:
// without a catalog nothing is persisted across restarts, and without an
// engine the chat endpoints report that no provider is configured.
type Config struct {
	Addr         string
	DataDir      string
	Catalog      *store.Catalog
	Engine       chat.Engine
	History      history.Store
	HistoryLimit int
	Logger       *slog.Logger
}

// Server is the dashboard HTTP server with its in-memory dataset registry.
type Server struct {
	cfg Config
	log *slog.Logger

	mu         sync.RWMutex
	datasets   map[string]*study.Dataset
	assistants map[string]*chat.Assistant

	router   chi.Router
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	aiRequests   *prometheus.CounterVec
}

// New builds the server and its routes.
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8787"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = history.DefaultLimit
	}
	s := &Server{
		cfg:        cfg,
		log:        cfg.Logger,
		datasets:   map[string]*study.Dataset{},
		assistants: map[string]*chat.Assistant{},
		registry:   prometheus.NewRegistry(),
	}
	s.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rwelens_http_requests_total",
		Help: "HTTP requests by method, route, and status code.",
	}, []string{"method", "path", "code"})
	s.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rwelens_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
	s.aiRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rwelens_ai_requests_total",
		Help: "AI chat requests by provider and outcome.",
	}, []string{"provider", "outcome"})
	s.registry.MustRegister(s.httpRequests, s.httpDuration, s.aiRequests)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Get("/", s.handleIndex)

	r.Route("/api", func(r chi.Router) {
		r.Post("/datasets", s.handleUpload)
		r.Get("/datasets", s.handleListDatasets)
		r.Route("/datasets/{id}", func(r chi.Router) {
			r.Get("/", s.handlePreview)
			r.Get("/stats", s.handleStats)
			r.Get("/analysis/{kind}", s.handleAnalysis)
			r.Get("/charts", s.handleChartsPage)
			r.Get("/charts/{name}", s.handleChart)
			r.Get("/export/{format}", s.handleExport)
		})
		r.Post("/chat", s.handleChat)
		r.Get("/chat/suggestions", s.handleSuggestions)
		r.Get("/chat/history", s.handleChatHistory)
		r.Delete("/chat/history", s.handleClearHistory)
	})
	s.router = r
	return s
}

// Handler exposes the routed handler (used by tests and embedding).
func (s *Server) Handler() http.Handler { return s.router }

// observe records request logs and metrics.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		s.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
		s.httpDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", elapsed,
		)
	})
}

// AddDataset registers a dataset loaded outside the upload endpoint (e.g.
// by the serve command from a study workspace).
func (s *Server) AddDataset(ds *study.Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[ds.ID] = ds
}

func (s *Server) dataset(id string) (*study.Dataset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds, ok := s.datasets[id]
	return ds, ok
}

// Run serves until the context is canceled or a termination signal arrives,
// then drains with a grace period.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.log.Info("dashboard listening", "addr", s.cfg.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	case sig := <-shutdown:
		s.log.Info("shutdown signal", "signal", sig.String())
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		_ = srv.Close()
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
