package crawler

import "sync"

// Tracker is the crawl's termination oracle. It counts admitted URLs that
// have not yet been reported (outstanding) and emitted edges the Frontier
// has not yet decided on (pending). Once work has been registered, the crawl
// is complete when both reach zero; Done is closed exactly once at that point.
type Tracker struct {
	mu          sync.Mutex
	outstanding int
	pending     int
	started     bool
	done        chan struct{}
	closeOnce   sync.Once
}

// NewTracker returns an idle tracker.
func NewTracker() *Tracker {
	return &Tracker{done: make(chan struct{})}
}

// Emit registers n edges about to be sent to the Frontier. Callers must emit
// before sending so the counts never transiently reach zero.
func (t *Tracker) Emit(n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	t.pending += n
	t.started = true
	t.mu.Unlock()
}

// Admit converts one pending edge into an outstanding URL and returns the new
// outstanding count.
func (t *Tracker) Admit() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending > 0 {
		t.pending--
	}
	t.outstanding++
	return t.outstanding
}

// Drop retires one pending edge that was excluded or already seen.
func (t *Tracker) Drop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending > 0 {
		t.pending--
	}
	t.checkLocked()
}

// Report retires one outstanding URL whose result has been consumed and
// returns the remaining outstanding count.
func (t *Tracker) Report() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.outstanding > 0 {
		t.outstanding--
	}
	t.checkLocked()
	return t.outstanding
}

// Done is closed once no work remains.
func (t *Tracker) Done() <-chan struct{} {
	return t.done
}

// Outstanding returns the number of admitted URLs still awaiting a result.
func (t *Tracker) Outstanding() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outstanding
}

// Pending returns the number of edges not yet decided by the Frontier.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

func (t *Tracker) checkLocked() {
	if !t.started || t.outstanding != 0 || t.pending != 0 {
		return
	}
	t.closeOnce.Do(func() { close(t.done) })
}
