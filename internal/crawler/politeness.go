package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// seenSet records every URL the Frontier has admitted. It only grows.
// The Frontier goroutine is the sole writer; the mutex lets status readers
// take its size concurrently.
type seenSet struct {
	mu   sync.Mutex
	urls map[string]struct{}
}

func newSeenSet() *seenSet {
	return &seenSet{urls: make(map[string]struct{})}
}

// MarkIfNew stores the URL if it has not been seen before and returns true.
func (s *seenSet) MarkIfNew(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.urls[url]; ok {
		return false
	}
	s.urls[url] = struct{}{}
	return true
}

// Len returns the number of admitted URLs.
func (s *seenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.urls)
}

// pauseController abstracts how admission waits out the pacing delay.
type pauseController interface {
	Pause(ctx context.Context, delay time.Duration) error
}

type timerPauseController struct{}

func (timerPauseController) Pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pacing delay interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
