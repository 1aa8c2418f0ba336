package crawler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/linkcheck/internal/progress"
)

func TestEngineSeedWithoutLinks(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{"/": page()})
	summary, renderer, err := runEngine(t, Options{Seed: s.url(t, "/")}, testClient{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Total)
	assert.Zero(t, summary.Errors)
	assert.Zero(t, summary.ExitCode())
	lines := renderer.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 1, lines[0].Seq)
	assert.Zero(t, lines[0].Outstanding)
	assert.Equal(t, "/", lines[0].Result.Source)
	assert.Empty(t, lines[0].Result.Message)
	assert.Equal(t, []string{s.url(t, "/").Hostname()}, renderer.starting)
	require.NotNil(t, renderer.summary)
	assert.Equal(t, summary, *renderer.summary)
}

func TestEngineFetchesDuplicateLinksOnce(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{
		"/":  page("/b", "/b", "/c"),
		"/b": page(),
		"/c": page(),
	})
	summary, renderer, err := runEngine(t, Options{Seed: s.url(t, "/")}, testClient{})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Zero(t, summary.ExitCode())
	assert.Equal(t, 1, s.Hits("/b"))
	assert.Equal(t, 1, s.Hits("/c"))

	lines := renderer.Lines()
	require.Len(t, lines, 3)
	assert.Equal(t, "3 URL's found", lines[0].Result.Message)
	for i, l := range lines {
		assert.Equal(t, i+1, l.Seq)
	}
	assert.Zero(t, lines[2].Outstanding)
}

func TestEngineExcludedURLNeverFetched(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{
		"/":  page("/b", "/b", "/c"),
		"/b": page(),
		"/c": page(),
	})
	opts := Options{Seed: s.url(t, "/"), Exclude: regexp.MustCompile(`/b$`)}
	summary, renderer, err := runEngine(t, opts, testClient{})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Zero(t, s.Hits("/b"))
	assert.NotContains(t, renderer.Targets(), s.url(t, "/b").String())
	assert.Equal(t, []string{s.url(t, "/b").String(), s.url(t, "/b").String()}, renderer.excluded)
}

func TestEngineExcludedSeed(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{"/": page()})
	opts := Options{Seed: s.url(t, "/"), Exclude: regexp.MustCompile(`.*`)}
	summary, renderer, err := runEngine(t, opts, testClient{})
	require.NoError(t, err)

	assert.Zero(t, summary.Total)
	assert.Zero(t, s.TotalHits())
	assert.Len(t, renderer.excluded, 1)
}

func TestEngineIgnoresExternalHosts(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{"/": page("http://external.invalid/page", "https://other.invalid/")})
	summary, renderer, err := runEngine(t, Options{Seed: s.url(t, "/")}, testClient{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, []string{s.url(t, "/").String()}, renderer.Targets())
}

func TestEngineTransportErrorIsLocal(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{
		"/":  page("/b", "/c"),
		"/b": page(),
		"/c": page(),
	})
	summary, renderer, err := runEngine(t, Options{Seed: s.url(t, "/")}, testClient{fail: "/c"})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.ExitCode())

	var failed []Line
	for _, l := range renderer.Lines() {
		if l.IsError() {
			failed = append(failed, l)
		}
	}
	require.Len(t, failed, 1)
	c := failed[0].Result
	assert.Equal(t, s.url(t, "/c").String(), c.Target)
	assert.Contains(t, c.Err, "connection refused")
	assert.Zero(t, c.Status)
	assert.False(t, c.SizeKnown)
	assert.True(t, failed[0].StatusError)
	assert.True(t, failed[0].SizeError)
}

func TestEngineSmallBodyIsUnhealthy(t *testing.T) {
	t.Parallel()

	small := make([]byte, 150)
	for i := range small {
		small[i] = 'x'
	}
	s := newSite(t, map[string]string{
		"/":      page("/small"),
		"/small": string(small),
	})
	summary, renderer, err := runEngine(t, Options{Seed: s.url(t, "/")}, testClient{})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Errors)
	for _, l := range renderer.Lines() {
		if l.Result.Target != s.url(t, "/small").String() {
			continue
		}
		assert.Equal(t, http.StatusOK, l.Result.Status)
		assert.Equal(t, 150, l.Result.Size)
		assert.False(t, l.StatusError)
		assert.True(t, l.SizeError)
	}
}

func TestEngineNotFoundCountsAsError(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{"/": page("/missing")})
	summary, _, err := runEngine(t, Options{Seed: s.url(t, "/")}, testClient{})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, s.Hits("/missing"))
}

func TestEngineCyclicGraphTerminates(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{
		"/":  page("/a", "/b", "/"),
		"/a": page("/b", "/", "/c"),
		"/b": page("/a", "/a", "/c"),
		"/c": page("/", "/a", "/b", "/d"),
		"/d": page("/c"),
	})
	summary, renderer, err := runEngine(t, Options{Seed: s.url(t, "/")}, testClient{})
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Total)
	for _, p := range []string{"/", "/a", "/b", "/c", "/d"} {
		assert.Equal(t, 1, s.Hits(p), "path %s", p)
	}
	targets := renderer.Targets()
	sort.Strings(targets)
	assert.Equal(t, []string{
		s.url(t, "/").String(),
		s.url(t, "/a").String(),
		s.url(t, "/b").String(),
		s.url(t, "/c").String(),
		s.url(t, "/d").String(),
	}, targets)
}

func TestEngineRespectsConcurrencyBound(t *testing.T) {
	t.Parallel()

	var inflight, peak atomic.Int64
	body := page()
	links := page("/p1", "/p2", "/p3", "/p4", "/p5", "/p6", "/p7", "/p8")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		if r.URL.Path == "/" {
			_, _ = w.Write([]byte(links))
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	seed, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	summary, _, err := runEngine(t, Options{
		Seed:          seed,
		MaxConcurrent: 2,
		Pacing:        GovernorConfig{InitialLatency: 0, Offset: 10, Floor: 0},
	}, testClient{})
	require.NoError(t, err)

	assert.Equal(t, 9, summary.Total)
	assert.LessOrEqual(t, peak.Load(), int64(2))
	assert.GreaterOrEqual(t, peak.Load(), int64(1))
}

func TestEngineVerboseAnnouncesFetches(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{"/": page("/b"), "/b": page()})
	_, renderer, err := runEngine(t, Options{Seed: s.url(t, "/"), Verbose: true}, testClient{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{s.url(t, "/").String(), s.url(t, "/b").String()}, renderer.fetching)
}

func TestEngineEmitsProgressEvents(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{"/": page("/b", "/gone"), "/b": page()})
	emitter := &recordingEmitter{}
	runID := uuid.New()
	engine, err := NewEngine(Options{Seed: s.url(t, "/"), Pacing: fastPacing, RunID: runID}, testClient{}, nil, nil, emitter, nil)
	require.NoError(t, err)

	summary, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)

	events := emitter.Events()
	require.Len(t, events, 5)
	assert.Equal(t, progress.StageCrawlStart, events[0].Stage)
	assert.Equal(t, progress.StageCrawlDone, events[4].Stage)
	assert.Equal(t, int64(3), events[4].Pages)
	assert.Equal(t, int64(1), events[4].Errors)

	var unhealthy int
	for _, evt := range events {
		assert.Equal(t, runID, evt.RunUUID())
		assert.NoError(t, evt.Validate())
		if evt.Stage == progress.StageFetchDone && !evt.Healthy {
			unhealthy++
			assert.Equal(t, progress.Status4xx, evt.StatusClass)
		}
	}
	assert.Equal(t, 1, unhealthy)
}

func TestEngineSnapshotAfterRun(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{"/": page("/b", "/b"), "/b": page()})
	engine, err := NewEngine(Options{Seed: s.url(t, "/"), Pacing: fastPacing}, testClient{}, nil, nil, nil, nil)
	require.NoError(t, err)

	before := engine.Snapshot()
	assert.False(t, before.Finished)
	assert.Equal(t, engine.RunID().String(), before.RunID)

	_, err = engine.Run(context.Background())
	require.NoError(t, err)

	snap := engine.Snapshot()
	assert.True(t, snap.Finished)
	assert.Equal(t, 2, snap.Processed)
	assert.Equal(t, 2, snap.Seen)
	assert.Zero(t, snap.Outstanding)
	assert.Zero(t, snap.PendingEdges)
	assert.Positive(t, snap.AverageLatency)

	_, err = engine.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRun)
}

func TestEngineCancellation(t *testing.T) {
	t.Parallel()

	arrived := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case arrived <- struct{}{}:
		default:
		}
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	seed, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	renderer := &recordingRenderer{}
	engine, err := NewEngine(Options{Seed: seed, Pacing: fastPacing}, testClient{}, nil, renderer, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-arrived
		cancel()
	}()

	summary, err := engine.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, summary.Interrupted)
	assert.Equal(t, 1, summary.ExitCode())
	require.NotNil(t, renderer.summary)
	assert.True(t, renderer.summary.Interrupted)
}

func TestNewEngineValidation(t *testing.T) {
	t.Parallel()

	ftp, err := url.Parse("ftp://example.com/")
	require.NoError(t, err)
	relative, err := url.Parse("/just/a/path")
	require.NoError(t, err)
	ok, err := url.Parse("https://example.com/")
	require.NoError(t, err)

	_, err = NewEngine(Options{}, testClient{}, nil, nil, nil, nil)
	assert.ErrorContains(t, err, "seed")
	_, err = NewEngine(Options{Seed: ftp}, testClient{}, nil, nil, nil, nil)
	assert.ErrorContains(t, err, "http or https")
	_, err = NewEngine(Options{Seed: relative}, testClient{}, nil, nil, nil, nil)
	assert.Error(t, err)
	_, err = NewEngine(Options{Seed: ok}, nil, nil, nil, nil, nil)
	assert.ErrorContains(t, err, "client")

	engine, err := NewEngine(Options{Seed: ok}, testClient{}, nil, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxConcurrent, engine.opts.MaxConcurrent)
	assert.Equal(t, DefaultQueueDepth, engine.opts.QueueDepth)
	assert.Equal(t, MinHealthyBytes, engine.opts.MinBodyBytes)
	assert.Equal(t, DefaultGovernorConfig(), engine.opts.Pacing)
	assert.NotEqual(t, uuid.Nil, engine.RunID())
}
