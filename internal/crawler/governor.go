package crawler

import (
	"sync"
	"time"
)

// Pacing defaults: the newest latency sample carries 10% weight, and the
// admission delay tracks the average once it exceeds half a second, never
// dropping below one second.
const (
	DefaultInitialLatency = 1.0
	DefaultPacingOffset   = 0.5
	DefaultPacingFloor    = 1.0

	latencyWeight = 0.1
)

// GovernorConfig tunes admission pacing. Values are in seconds.
type GovernorConfig struct {
	InitialLatency float64
	Offset         float64
	Floor          float64
}

// DefaultGovernorConfig returns the standard pacing constants.
func DefaultGovernorConfig() GovernorConfig {
	return GovernorConfig{
		InitialLatency: DefaultInitialLatency,
		Offset:         DefaultPacingOffset,
		Floor:          DefaultPacingFloor,
	}
}

// Governor keeps an exponentially weighted moving average of fetch latency
// shared by every fetcher, and derives the delay imposed before each dispatch.
type Governor struct {
	mu     sync.Mutex
	avg    float64
	offset float64
	floor  float64
}

// NewGovernor builds a Governor. A negative floor is treated as zero.
func NewGovernor(cfg GovernorConfig) *Governor {
	if cfg.Floor < 0 {
		cfg.Floor = 0
	}
	return &Governor{
		avg:    cfg.InitialLatency,
		offset: cfg.Offset,
		floor:  cfg.Floor,
	}
}

// Observe folds one fetch duration into the running average.
func (g *Governor) Observe(d time.Duration) {
	g.mu.Lock()
	g.avg = g.avg*(1-latencyWeight) + d.Seconds()*latencyWeight
	g.mu.Unlock()
}

// Average returns the current running average in seconds.
func (g *Governor) Average() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.avg
}

// NextDelay returns max(avg - offset, floor).
func (g *Governor) NextDelay() time.Duration {
	g.mu.Lock()
	secs := max(g.avg-g.offset, g.floor)
	g.mu.Unlock()
	return time.Duration(secs * float64(time.Second))
}
