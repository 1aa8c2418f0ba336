package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/linkcheck/internal/progress"
)

// Engine defaults.
const (
	DefaultMaxConcurrent = 1000
	DefaultQueueDepth    = 512
)

// ErrAlreadyRun is returned when Run is called a second time.
var ErrAlreadyRun = errors.New("crawl engine already run")

// Options configures one crawl.
type Options struct {
	// Seed is the absolute http(s) URL the crawl starts from. Its host scopes
	// the whole crawl.
	Seed *url.URL
	// Exclude drops every discovered URL whose string form matches. Optional.
	Exclude *regexp.Regexp
	// MaxConcurrent caps in-flight requests. Defaults to DefaultMaxConcurrent.
	MaxConcurrent int
	// Verbose enables per-dispatch "fetching" notices.
	Verbose bool
	// QueueDepth sizes the edge and result channels.
	QueueDepth int
	// MinBodyBytes is the health threshold; defaults to MinHealthyBytes.
	MinBodyBytes int
	// Pacing tunes the Governor; the zero value selects the defaults.
	Pacing GovernorConfig
	// RunID tags progress events; a random one is generated when empty.
	RunID uuid.UUID
}

// Engine wires the Frontier, Dispatcher, Fetcher and Reporter around shared
// channels. An Engine runs exactly once.
type Engine struct {
	opts     Options
	site     string
	renderer Renderer
	events   progress.Emitter
	logger   *zap.Logger

	edges    chan *Edge
	governor *Governor
	tracker  *Tracker
	seen     *seenSet

	frontier   *frontier
	dispatcher *dispatcher
	reporter   *reporter

	started  atomic.Bool
	finished atomic.Bool
}

// NewEngine validates opts and assembles the crawl pipeline. Nil collaborators
// other than client fall back to the regex extractor, a silent renderer, a
// discarding emitter and a no-op logger.
func NewEngine(
	opts Options,
	client Client,
	extractor Extractor,
	renderer Renderer,
	events progress.Emitter,
	logger *zap.Logger,
) (*Engine, error) {
	if client == nil {
		return nil, errors.New("crawl engine requires an http client")
	}
	if err := validateSeed(opts.Seed); err != nil {
		return nil, err
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = DefaultQueueDepth
	}
	if opts.MinBodyBytes <= 0 {
		opts.MinBodyBytes = MinHealthyBytes
	}
	if opts.Pacing == (GovernorConfig{}) {
		opts.Pacing = DefaultGovernorConfig()
	}
	if opts.RunID == uuid.Nil {
		opts.RunID = uuid.New()
	}
	if extractor == nil {
		extractor = NewRegexExtractor()
	}
	if renderer == nil {
		renderer = nopRenderer{}
	}
	if events == nil {
		events = progress.Discard{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("run_id", opts.RunID.String()))

	e := &Engine{
		opts:     opts,
		site:     opts.Seed.Hostname(),
		renderer: renderer,
		events:   events,
		logger:   logger,
		edges:    make(chan *Edge, opts.QueueDepth),
		governor: NewGovernor(opts.Pacing),
		tracker:  NewTracker(),
		seen:     newSeenSet(),
	}
	results := make(chan Result, opts.QueueDepth)

	e.frontier = &frontier{
		seen:     e.seen,
		exclude:  opts.Exclude,
		tracker:  e.tracker,
		renderer: renderer,
		logger:   logger,
	}
	e.dispatcher = &dispatcher{
		permits:  semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		governor: e.governor,
		tracker:  e.tracker,
		fetcher: &fetcher{
			client:    client,
			extractor: extractor,
			governor:  e.governor,
			tracker:   e.tracker,
			edges:     e.edges,
			logger:    logger,
		},
		pause:    timerPauseController{},
		results:  results,
		renderer: renderer,
		verbose:  opts.Verbose,
		logger:   logger,
	}
	e.reporter = &reporter{
		results:  results,
		edges:    e.edges,
		tracker:  e.tracker,
		renderer: renderer,
		events:   events,
		runID:    progress.UUIDToBytes(opts.RunID),
		site:     e.site,
		minBytes: opts.MinBodyBytes,
		logger:   logger,
	}
	return e, nil
}

func validateSeed(seed *url.URL) error {
	if seed == nil {
		return errors.New("crawl engine requires a seed url")
	}
	if seed.Scheme != "http" && seed.Scheme != "https" {
		return fmt.Errorf("seed url %q must use http or https", seed.String())
	}
	if seed.Host == "" {
		return fmt.Errorf("seed url %q has no host", seed.String())
	}
	return nil
}

// RunID identifies this crawl in progress events and exports.
func (e *Engine) RunID() uuid.UUID {
	return e.opts.RunID
}

// Run crawls until every reachable same-host URL has been reported or ctx
// ends. The returned Summary is always populated; the error is non-nil only
// when the crawl was interrupted.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	if !e.started.CompareAndSwap(false, true) {
		return Summary{}, ErrAlreadyRun
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	seed := e.opts.Seed
	e.renderer.Starting(e.site)
	e.emit(progress.Event{Stage: progress.StageCrawlStart, URL: seed.String()})
	e.logger.Info("crawl started",
		zap.String("seed", seed.String()),
		zap.Int("max_concurrent", e.opts.MaxConcurrent),
	)

	e.tracker.Emit(1)
	e.edges <- &Edge{Target: seed, Source: seed}

	reported := make(chan bool, 1)
	go func() {
		reported <- e.reporter.run(runCtx)
	}()

	loopErr := e.loop(runCtx)
	if loopErr != nil {
		cancel()
	}
	interrupted := <-reported || loopErr != nil
	cancel()
	e.dispatcher.wait()
	e.finished.Store(true)

	summary := Summary{
		Host:        e.site,
		Elapsed:     time.Since(start),
		Total:       int(e.reporter.processed.Load()),
		Errors:      int(e.reporter.errors.Load()),
		Interrupted: interrupted,
	}
	e.renderer.Finished(summary)

	var runErr error
	if interrupted {
		cause := ctx.Err()
		if cause == nil {
			cause = loopErr
		}
		runErr = fmt.Errorf("crawl interrupted: %w", cause)
	}
	e.finish(summary, runErr)
	return summary, runErr
}

// loop is the Frontier: it owns the seen set and feeds the Dispatcher in
// arrival order until the nil sentinel arrives.
func (e *Engine) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case edge := <-e.edges:
			if edge == nil {
				return nil
			}
			if !e.frontier.admit(edge) {
				continue
			}
			if err := e.dispatcher.dispatch(ctx, *edge); err != nil {
				return err
			}
		}
	}
}

func (e *Engine) finish(summary Summary, runErr error) {
	evt := progress.Event{
		Stage:  progress.StageCrawlDone,
		URL:    e.opts.Seed.String(),
		Dur:    summary.Elapsed,
		Pages:  int64(summary.Total),
		Errors: int64(summary.Errors),
	}
	fields := []zap.Field{
		zap.Int("pages", summary.Total),
		zap.Int("errors", summary.Errors),
		zap.Duration("elapsed", summary.Elapsed),
	}
	if runErr != nil {
		evt.Stage = progress.StageCrawlError
		evt.Note = runErr.Error()
		e.logger.Warn("crawl interrupted", append(fields, zap.Error(runErr))...)
	} else {
		e.logger.Info("crawl finished", fields...)
	}
	e.emit(evt)
}

func (e *Engine) emit(evt progress.Event) {
	evt.RunID = progress.UUIDToBytes(e.opts.RunID)
	evt.TS = time.Now().UTC()
	evt.Site = e.site
	e.events.Emit(evt)
}

// Snapshot returns live counters. It is safe to call from any goroutine.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		RunID:          e.opts.RunID.String(),
		Seed:           e.opts.Seed.String(),
		Outstanding:    e.tracker.Outstanding(),
		PendingEdges:   e.tracker.Pending(),
		Seen:           e.seen.Len(),
		Processed:      int(e.reporter.processed.Load()),
		Errors:         int(e.reporter.errors.Load()),
		AverageLatency: e.governor.Average(),
		Finished:       e.finished.Load(),
	}
}
