// Package progress carries crawl events from the engine to pluggable sinks.
// The engine emits one event per reported page plus start and finish
// markers; a Hub batches them on a background goroutine so slow sinks such
// as Postgres never stall the crawl.
package progress
