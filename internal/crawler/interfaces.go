package crawler

import (
	"context"
	"io"
	"net/url"
)

// Response is a GET whose headers have arrived. The caller reads and closes
// Body.
type Response struct {
	StatusCode int
	Body       io.ReadCloser
}

// Client issues GET requests with a shared, pre-configured transport.
// Get returns once response headers arrive; a non-2xx status is not an error.
type Client interface {
	Get(ctx context.Context, target string) (Response, error)
}

// Extractor finds same-host links in a page body.
type Extractor interface {
	Extract(body string, origin *url.URL) []*url.URL
}

// Renderer presents crawl progress to a human.
type Renderer interface {
	Starting(host string)
	Fetching(target string)
	Excluded(target string)
	Render(line Line)
	Finished(summary Summary)
}

// nopRenderer discards everything.
type nopRenderer struct{}

func (nopRenderer) Starting(string)  {}
func (nopRenderer) Fetching(string)  {}
func (nopRenderer) Excluded(string)  {}
func (nopRenderer) Render(Line)      {}
func (nopRenderer) Finished(Summary) {}
