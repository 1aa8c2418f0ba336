package crawler

import (
	"regexp"

	"go.uber.org/zap"
)

// frontier owns the seen set and makes the admit/drop decision for every
// discovered edge. It must only be driven from a single goroutine so the
// check-then-insert on the seen set stays one atomic decision.
type frontier struct {
	seen     *seenSet
	exclude  *regexp.Regexp
	tracker  *Tracker
	renderer Renderer
	logger   *zap.Logger
}

// admit reports whether edge's target should be dispatched. Dropped edges
// are retired from the tracker here; admitted ones are handed over to the
// dispatcher, which accounts for them.
func (f *frontier) admit(edge *Edge) bool {
	target := edge.Target.String()
	if f.exclude != nil && f.exclude.MatchString(target) {
		f.renderer.Excluded(target)
		f.logger.Debug("url excluded", zap.String("url", target))
		f.tracker.Drop()
		return false
	}
	if !f.seen.MarkIfNew(target) {
		f.tracker.Drop()
		return false
	}
	return true
}
