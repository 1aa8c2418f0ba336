package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/linkcheck/internal/progress"
)

// fastPacing keeps admission delays in the low milliseconds.
var fastPacing = GovernorConfig{InitialLatency: 0.001}

// page renders an HTML document linking to hrefs, padded past the health threshold.
func page(hrefs ...string) string {
	var b strings.Builder
	b.WriteString("<html><head><title>test page</title></head><body>\n")
	for _, href := range hrefs {
		fmt.Fprintf(&b, "<p><a href=\"%s\">link</a></p>\n", href)
	}
	b.WriteString("<p>")
	b.WriteString(strings.Repeat("lorem ipsum ", 20))
	b.WriteString("</p></body></html>\n")
	return b.String()
}

// site serves fixed bodies by path and counts hits per path.
type site struct {
	mu     sync.Mutex
	pages  map[string]string
	hits   map[string]int
	server *httptest.Server
}

func newSite(t *testing.T, pages map[string]string) *site {
	t.Helper()
	s := &site{pages: pages, hits: make(map[string]int)}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		body, ok := s.pages[r.URL.Path]
		s.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(s.server.Close)
	return s
}

func (s *site) url(t *testing.T, path string) *url.URL {
	t.Helper()
	u, err := url.Parse(s.server.URL + path)
	require.NoError(t, err)
	return u
}

func (s *site) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *site) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.hits {
		total += n
	}
	return total
}

// testClient adapts an *http.Client to the Client interface.
type testClient struct {
	http *http.Client
	// fail makes requests whose URL has this suffix return a transport error.
	fail string
}

func (c testClient) Get(ctx context.Context, target string) (Response, error) {
	if c.fail != "" && strings.HasSuffix(target, c.fail) {
		return Response{}, fmt.Errorf("dial tcp: connection refused")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Response{}, err
	}
	client := c.http
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Response{}, err
	}
	return Response{StatusCode: resp.StatusCode, Body: resp.Body}, nil
}

// recordingRenderer captures everything the engine renders.
type recordingRenderer struct {
	mu       sync.Mutex
	starting []string
	fetching []string
	excluded []string
	lines    []Line
	summary  *Summary
}

func (r *recordingRenderer) Starting(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starting = append(r.starting, host)
}

func (r *recordingRenderer) Fetching(target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetching = append(r.fetching, target)
}

func (r *recordingRenderer) Excluded(target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.excluded = append(r.excluded, target)
}

func (r *recordingRenderer) Render(line Line) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *recordingRenderer) Finished(summary Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary = &summary
}

func (r *recordingRenderer) Lines() []Line {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Line(nil), r.lines...)
}

func (r *recordingRenderer) Targets() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.lines))
	for _, l := range r.lines {
		out = append(out, l.Result.Target)
	}
	return out
}

// recordingEmitter captures progress events.
type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *recordingEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *recordingEmitter) Events() []progress.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]progress.Event(nil), e.events...)
}

// runEngine crawls from seed with test-friendly defaults.
func runEngine(t *testing.T, opts Options, client Client) (Summary, *recordingRenderer, error) {
	t.Helper()
	if opts.Pacing == (GovernorConfig{}) {
		opts.Pacing = fastPacing
	}
	renderer := &recordingRenderer{}
	engine, err := NewEngine(opts, client, nil, renderer, nil, nil)
	require.NoError(t, err)
	summary, err := engine.Run(context.Background())
	return summary, renderer, err
}
