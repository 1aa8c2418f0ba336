// Package app assembles one linkcheck run from its configuration: the HTTP
// client, the crawl engine, the console report, the progress hub with its
// sinks, the optional result store, and the optional status server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkcheck/internal/api"
	"github.com/JakeFAU/linkcheck/internal/config"
	"github.com/JakeFAU/linkcheck/internal/crawler"
	"github.com/JakeFAU/linkcheck/internal/httpclient"
	iduuid "github.com/JakeFAU/linkcheck/internal/id/uuid"
	"github.com/JakeFAU/linkcheck/internal/policy/ratelimit"
	"github.com/JakeFAU/linkcheck/internal/progress"
	"github.com/JakeFAU/linkcheck/internal/progress/sinks"
	"github.com/JakeFAU/linkcheck/internal/report"
	"github.com/JakeFAU/linkcheck/internal/store"
	"github.com/JakeFAU/linkcheck/internal/store/postgres"
)

// Options carries the process-level collaborators New cannot derive from
// config.Config.
type Options struct {
	Stdout  io.Writer
	Stderr  io.Writer
	Logger  *zap.Logger
	Version string
	// Registry receives the crawl metrics; a fresh one is created when nil.
	Registry *prometheus.Registry
	// Store replaces the Postgres repository built from store.dsn.
	Store store.ResultRepository
}

// App holds the services of a single crawl.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	engine   *crawler.Engine
	hub      *progress.Hub
	server   *api.Server
	closeDB  func()
	closeMu  sync.Once
	closeErr error
}

// New wires every component. It fails fast when the result store cannot be
// reached or a collaborator rejects its configuration.
func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	runID, err := iduuid.New().NewRunID()
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("run_id", runID.String()))

	repo, closeDB, err := openStore(ctx, cfg.Store, opts.Store, logger)
	if err != nil {
		return nil, err
	}

	promSink, err := sinks.NewPrometheusSink(reg)
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("init prometheus sink: %w", err)
	}
	hubSinks := []progress.Sink{sinks.NewLogSink(logger), promSink}
	if repo != nil {
		hubSinks = append(hubSinks, sinks.NewStoreSink(repo, logger))
	}
	hub := progress.NewHub(progress.HubConfig{
		BufferSize:     cfg.Progress.BufferSize,
		MaxBatchEvents: cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   cfg.Progress.MaxBatchWait,
		Lossless:       repo != nil,
		Logger:         logger,
	}, hubSinks...)

	a := &App{cfg: cfg, logger: logger, hub: hub, closeDB: closeDB}

	client := httpclient.New(httpclient.Config{
		ConnectTimeout:      cfg.HTTP.ConnectTimeout,
		RequestTimeout:      cfg.HTTP.RequestTimeout,
		InsecureSkipVerify:  cfg.HTTP.InsecureSkipVerify,
		Headers:             cfg.Headers,
		UserAgent:           userAgent(cfg.HTTP.UserAgent, opts.Version),
		MaxIdleConnsPerHost: cfg.Crawler.MaxConcurrent,
		Limiter:             ratelimit.New(ratelimit.Config{RPS: cfg.HTTP.MaxRPS, Burst: cfg.HTTP.Burst}),
	})
	console := report.NewConsole(report.ConsoleOptions{
		Out:     opts.Stdout,
		Err:     opts.Stderr,
		Verbose: cfg.Output.Verbose,
		NoColor: cfg.Output.NoColor,
	})
	engine, err := crawler.NewEngine(crawler.Options{
		Seed:          cfg.SeedURL,
		Exclude:       cfg.Exclude,
		MaxConcurrent: cfg.Crawler.MaxConcurrent,
		Verbose:       cfg.Output.Verbose,
		QueueDepth:    cfg.Crawler.QueueDepth,
		MinBodyBytes:  cfg.Crawler.MinBodyBytes,
		Pacing: crawler.GovernorConfig{
			InitialLatency: cfg.Pacing.InitialLatency,
			Offset:         cfg.Pacing.Offset,
			Floor:          cfg.Pacing.Floor,
		},
		RunID: runID,
	}, client, crawler.NewExtractor(cfg.Crawler.Extractor), console, hub, logger)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("init crawl engine: %w", err)
	}
	a.engine = engine

	if cfg.Metrics.Addr != "" {
		server, err := api.NewServer(api.Options{
			Status:   engine,
			Results:  repo,
			Registry: reg,
			Logger:   logger,
		})
		if err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("init status server: %w", err)
		}
		a.server = server
	}
	return a, nil
}

func openStore(
	ctx context.Context,
	cfg config.StoreConfig,
	override store.ResultRepository,
	logger *zap.Logger,
) (store.ResultRepository, func(), error) {
	if override != nil {
		return override, func() {}, nil
	}
	if cfg.DSN == "" {
		return nil, func() {}, nil
	}
	rs, err := postgres.NewResultStore(ctx, postgres.Config{
		DSN:             cfg.DSN,
		MaxConns:        cfg.MaxConns,
		MaxConnLifetime: cfg.MaxConnLifetime,
		Migrate:         cfg.Migrate,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init result store: %w", err)
	}
	logger.Info("exporting results to postgres")
	return rs, rs.Close, nil
}

func userAgent(configured, version string) string {
	if configured != "" {
		return configured
	}
	if version == "" {
		return httpclient.DefaultUserAgent
	}
	return "linkcheck/" + version
}

// RunID identifies the crawl in logs, metrics and exported rows.
func (a *App) RunID() uuid.UUID {
	return a.engine.RunID()
}

// Engine exposes the crawl engine, mainly for status queries.
func (a *App) Engine() *crawler.Engine {
	return a.engine
}

// Run starts the status server when configured, crawls, and stops the
// server again. The error is non-nil when the crawl was interrupted or the
// status server could not bind.
func (a *App) Run(ctx context.Context) (crawler.Summary, error) {
	var (
		serverDone chan error
		stopServer context.CancelFunc = func() {}
	)
	if a.server != nil {
		var lc net.ListenConfig
		ln, err := lc.Listen(ctx, "tcp", a.cfg.Metrics.Addr)
		if err != nil {
			return crawler.Summary{}, fmt.Errorf("listen on %s: %w", a.cfg.Metrics.Addr, err)
		}
		var serverCtx context.Context
		serverCtx, stopServer = context.WithCancel(context.Background())
		serverDone = make(chan error, 1)
		go func() { serverDone <- a.server.Serve(serverCtx, ln) }()
	}

	summary, runErr := a.engine.Run(ctx)

	stopServer()
	if serverDone != nil {
		if err := <-serverDone; err != nil {
			a.logger.Error("status server failed", zap.Error(err))
		}
	}
	return summary, runErr
}

// Close flushes pending progress events and releases the result store.
// It is safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	a.closeMu.Do(func() {
		var errs []error
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close progress hub: %w", err))
		}
		a.closeDB()
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}
