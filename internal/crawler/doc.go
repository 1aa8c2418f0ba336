// Package crawler is the link-checking engine. A single Frontier goroutine
// deduplicates discovered links, a Dispatcher paces admissions with a
// latency-driven Governor and bounds in-flight fetches with a permit pool,
// and a Reporter classifies every result and detects completion through the
// Tracker.
//
// Data flows in a cycle: fetchers emit edges to the Frontier, the Frontier
// hands new URLs to the Dispatcher, and results flow to the Reporter, which
// closes the cycle with a nil edge once no work remains.
package crawler
