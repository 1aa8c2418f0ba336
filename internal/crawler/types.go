package crawler

import (
	"fmt"
	"net/url"
	"time"
)

// MinHealthyBytes is the smallest body size, in raw bytes, that is still
// considered a healthy page.
const MinHealthyBytes = 200

// Edge is a discovered link awaiting the Frontier's dedup decision.
// Source links to Target.
type Edge struct {
	Target *url.URL
	Source *url.URL
}

// Result is produced exactly once per admitted URL, even when the fetch fails.
type Result struct {
	// Source is the path of the page that linked to Target.
	Source string
	// Target is the full URL that was fetched.
	Target string
	// Status is the HTTP status code; zero when no response was received.
	Status int
	// Size is the body length in bytes and is only meaningful when SizeKnown is set.
	Size      int
	SizeKnown bool
	// Err carries the transport or body error text, if any.
	Err string
	// Message is an informational note such as the number of links found.
	Message  string
	Duration time.Duration
}

// Healthy reports whether the result is a 2xx response with a body of at
// least minBytes.
func (r Result) Healthy(minBytes int) bool {
	if r.Status < 200 || r.Status >= 300 {
		return false
	}
	if !r.SizeKnown || r.Size < minBytes {
		return false
	}
	return true
}

// Line is a single classified result handed to a Renderer.
type Line struct {
	// Seq is the 1-based position of the result in report order.
	Seq int
	// Outstanding is the number of admitted URLs still awaiting a result.
	Outstanding int
	Result      Result
	// StatusError is set when the status is missing or not 2xx.
	StatusError bool
	// SizeError is set when the size is unknown or below the health threshold.
	SizeError bool
}

// IsError reports whether the line counts toward the crawl's error total.
func (l Line) IsError() bool {
	return l.StatusError || l.SizeError
}

// Summary describes a finished crawl.
type Summary struct {
	Host        string
	Elapsed     time.Duration
	Total       int
	Errors      int
	Interrupted bool
}

// ExitCode maps the summary onto a process exit status.
func (s Summary) ExitCode() int {
	if s.Errors > 0 || s.Interrupted {
		return 1
	}
	return 0
}

func (s Summary) String() string {
	return fmt.Sprintf("host=%s total=%d errors=%d elapsed=%s", s.Host, s.Total, s.Errors, s.Elapsed)
}

// Snapshot is a point-in-time view of a running crawl.
type Snapshot struct {
	RunID          string  `json:"run_id"`
	Seed           string  `json:"seed"`
	Outstanding    int     `json:"outstanding"`
	PendingEdges   int     `json:"pending_edges"`
	Seen           int     `json:"seen"`
	Processed      int     `json:"processed"`
	Errors         int     `json:"errors"`
	AverageLatency float64 `json:"average_latency_seconds"`
	Finished       bool    `json:"finished"`
}
