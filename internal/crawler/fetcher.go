package crawler

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// fetcher performs one GET per admitted URL and feeds discovered links back
// to the Frontier.
type fetcher struct {
	client    Client
	extractor Extractor
	governor  *Governor
	tracker   *Tracker
	edges     chan<- *Edge
	logger    *zap.Logger
}

// fetch runs under a concurrency permit that release gives back. The permit
// and the latency sample cover the request up to the response headers; the
// body is read and parsed after the permit is released.
func (f *fetcher) fetch(ctx context.Context, edge Edge, release func()) Result {
	target := edge.Target.String()
	result := Result{
		Source: sourcePath(edge.Source),
		Target: target,
	}

	start := time.Now()
	resp, err := f.client.Get(ctx, target)
	result.Duration = time.Since(start)
	release()
	f.governor.Observe(result.Duration)

	result.Status = resp.StatusCode
	if err != nil {
		return f.failed(result, err)
	}
	body, err := readBody(resp.Body)
	if err != nil {
		return f.failed(result, fmt.Errorf("read body: %w", err))
	}
	result.Size = len(body)
	result.SizeKnown = true

	links := f.extractor.Extract(string(body), Origin(edge.Target))
	if n := f.forward(ctx, links, edge.Target); n > 0 {
		result.Message = fmt.Sprintf("%d URL's found", n)
	}
	return result
}

func (f *fetcher) failed(result Result, err error) Result {
	result.Err = err.Error()
	f.logger.Debug("fetch failed",
		zap.String("url", result.Target),
		zap.Int("status", result.Status),
		zap.Duration("dur", result.Duration),
		zap.Error(err),
	)
	return result
}

func readBody(body io.ReadCloser) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	defer body.Close()
	return io.ReadAll(body)
}

// forward hands every extracted link to the Frontier and returns how many
// links were found. Edges are registered with the tracker before the first
// send so termination cannot be observed while they are in transit.
func (f *fetcher) forward(ctx context.Context, links []*url.URL, source *url.URL) int {
	if len(links) == 0 {
		return 0
	}
	f.tracker.Emit(len(links))
	for _, link := range links {
		select {
		case f.edges <- &Edge{Target: link, Source: source}:
		case <-ctx.Done():
			return len(links)
		}
	}
	return len(links)
}

func sourcePath(u *url.URL) string {
	if u == nil {
		return ""
	}
	if p := u.EscapedPath(); p != "" {
		return p
	}
	return "/"
}
