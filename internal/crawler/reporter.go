package crawler

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkcheck/internal/progress"
)

// reporter consumes results, classifies them, and decides when the crawl is
// over. It is the only goroutine that retires outstanding URLs.
type reporter struct {
	results  <-chan Result
	edges    chan<- *Edge
	tracker  *Tracker
	renderer Renderer
	events   progress.Emitter
	runID    [16]byte
	site     string
	minBytes int
	logger   *zap.Logger

	seq       int
	processed atomic.Int64
	errors    atomic.Int64
}

// run blocks until every admitted URL has been reported or ctx ends, and
// reports whether the crawl was interrupted. On normal completion it stops
// the Frontier with the end-of-input sentinel.
func (r *reporter) run(ctx context.Context) bool {
	for {
		select {
		case res := <-r.results:
			r.report(res)
		case <-r.tracker.Done():
			select {
			case r.edges <- nil:
			case <-ctx.Done():
			}
			return false
		case <-ctx.Done():
			return true
		}
	}
}

func (r *reporter) report(res Result) {
	outstanding := r.tracker.Report()
	r.seq++

	line := classify(res, r.seq, outstanding, r.minBytes)
	r.processed.Add(1)
	if line.IsError() {
		r.errors.Add(1)
	}
	r.renderer.Render(line)

	size := int64(-1)
	if res.SizeKnown {
		size = int64(res.Size)
	}
	r.events.Emit(progress.Event{
		RunID:       r.runID,
		TS:          time.Now().UTC(),
		Stage:       progress.StageFetchDone,
		Site:        r.site,
		URL:         res.Target,
		Source:      res.Source,
		StatusCode:  res.Status,
		StatusClass: progress.ClassifyStatus(res.Status),
		Bytes:       size,
		Healthy:     !line.IsError(),
		Dur:         res.Duration,
		Note:        res.Err,
	})
	if line.IsError() {
		r.logger.Debug("unhealthy page",
			zap.String("url", res.Target),
			zap.Int("status", res.Status),
			zap.Int("size", res.Size),
			zap.Bool("size_known", res.SizeKnown),
		)
	}
}

// classify applies the health rules to one result.
func classify(res Result, seq, outstanding, minBytes int) Line {
	return Line{
		Seq:         seq,
		Outstanding: outstanding,
		Result:      res,
		StatusError: res.Status < 200 || res.Status >= 300,
		SizeError:   !res.SizeKnown || res.Size < minBytes,
	}
}
