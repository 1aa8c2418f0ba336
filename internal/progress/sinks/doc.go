// Package sinks implements progress.Sink consumers for crawl events: a zap
// log sink, Prometheus collectors and the Postgres result export.
package sinks
