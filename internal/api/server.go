package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkcheck/internal/crawler"
	"github.com/JakeFAU/linkcheck/internal/store"
)

const (
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

// StatusSource reports live crawl counters. *crawler.Engine satisfies it.
type StatusSource interface {
	Snapshot() crawler.Snapshot
}

// Options wires the server's collaborators. Status is required; Results is
// optional and enables the /v1/runs routes.
type Options struct {
	Status   StatusSource
	Results  store.ResultRepository
	Registry *prometheus.Registry
	Logger   *zap.Logger
}

// Server routes status, metrics, and export queries.
type Server struct {
	router  chi.Router
	status  StatusSource
	logger  *zap.Logger
	metrics *httpMetrics
}

// NewServer registers the engine gauges on opts.Registry and builds the router.
func NewServer(opts Options) (*Server, error) {
	if opts.Status == nil {
		return nil, errors.New("status server requires a status source")
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	m, err := newHTTPMetrics(opts.Registry)
	if err != nil {
		return nil, err
	}
	if err := registerEngineGauges(opts.Registry, opts.Status); err != nil {
		return nil, err
	}

	s := &Server{
		status:  opts.Status,
		logger:  opts.Logger,
		metrics: m,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(s.metrics.middleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{Registry: opts.Registry}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.getStatus)
		runs := NewRunHandler(opts.Results, opts.Logger)
		r.Route("/runs/{run_id}", func(r chi.Router) {
			r.Get("/", runs.GetRun)
			r.Get("/pages", runs.ListPages)
		})
	})

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve accepts connections on ln until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server started", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	s.logger.Info("status server stopped")
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status.Snapshot())
}

func registerEngineGauges(reg prometheus.Registerer, src StatusSource) error {
	gauges := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "linkcheck_governor_average_latency_seconds",
			Help: "Running average fetch latency used to pace dispatches.",
		}, func() float64 { return src.Snapshot().AverageLatency }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "linkcheck_outstanding_urls",
			Help: "URLs admitted to the crawl but not yet reported.",
		}, func() float64 { return float64(src.Snapshot().Outstanding) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "linkcheck_seen_urls",
			Help: "Distinct URLs admitted to the crawl so far.",
		}, func() float64 { return float64(src.Snapshot().Seen) }),
	}
	for _, g := range gauges {
		if err := reg.Register(g); err != nil {
			return fmt.Errorf("register engine gauge: %w", err)
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
