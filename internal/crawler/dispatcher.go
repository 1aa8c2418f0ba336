package crawler

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// dispatcher admits URLs forwarded by the Frontier. Admission is paced by the
// Governor and gated by a fixed pool of permits; each admitted URL is then
// fetched on its own goroutine.
type dispatcher struct {
	permits  *semaphore.Weighted
	governor *Governor
	tracker  *Tracker
	fetcher  *fetcher
	pause    pauseController
	results  chan<- Result
	renderer Renderer
	verbose  bool
	logger   *zap.Logger

	inflight sync.WaitGroup
}

// dispatch blocks for the pacing delay and for a free permit, then launches
// the fetch. It only fails when ctx ends.
func (d *dispatcher) dispatch(ctx context.Context, edge Edge) error {
	d.tracker.Admit()

	delay := d.governor.NextDelay()
	if err := d.pause.Pause(ctx, delay); err != nil {
		return err
	}
	if err := d.permits.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire fetch permit: %w", err)
	}

	d.inflight.Add(1)
	go d.run(ctx, edge)
	return nil
}

// wait blocks until every launched fetch goroutine has exited.
func (d *dispatcher) wait() {
	d.inflight.Wait()
}

func (d *dispatcher) run(ctx context.Context, edge Edge) {
	defer d.inflight.Done()
	var once sync.Once
	release := func() {
		once.Do(func() { d.permits.Release(1) })
	}
	defer release()

	if d.verbose {
		d.renderer.Fetching(edge.Target.String())
	}
	result := d.fetcher.fetch(ctx, edge, release)

	select {
	case d.results <- result:
	case <-ctx.Done():
		d.logger.Debug("result dropped after cancellation", zap.String("url", result.Target))
	}
}
