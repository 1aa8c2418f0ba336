// Package store defines the repository used to export crawl results. Drivers
// live in subpackages; this package must not import them.
package store
