// Package metrics decouples the adapters from any particular metrics vendor.
//
// The core code calls the package-level helpers; a concrete backend (e.g.
// Datadog) is installed once at startup via SetBackend. The default backend
// is a nop, so library code never has to check whether metrics are enabled.
package metrics

import "sync"

// Backend receives metric observations. Implementations buffer internally
// and ship on Flush.
type Backend interface {
	// IncCounter adds delta to a named counter. Tags are "key:value" strings.
	IncCounter(name string, delta float64, tags ...string)

	// ObserveDuration records one duration sample in seconds.
	ObserveDuration(name string, seconds float64, tags ...string)

	// Flush submits buffered metrics. Safe to call multiple times.
	Flush() error
}

// Metric names used across the adapters. Kept here so dashboards have a
// single source of truth.
const (
	// FeedLines counts feed lines delivered to the extractor, after the
	// ignore filter has dropped comments and headers.
	FeedLines     = "secint.feed.lines"
	FeedRecords   = "secint.feed.records"
	FeedBatches   = "secint.feed.batches"
	FeedFetchTime = "secint.feed.fetch_seconds"
	SIEMRequests  = "secint.siem.requests"
	SIEMReqTime   = "secint.siem.request_seconds"
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, ...string)      {}
func (nopBackend) ObserveDuration(string, float64, ...string) {}
func (nopBackend) Flush() error                               { return nil }

var (
	mu      sync.RWMutex
	current Backend = nopBackend{}
)

// SetBackend installs the process-wide backend. Call once at startup, before
// any adapter work begins.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	mu.Lock()
	current = b
	mu.Unlock()
}

func get() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// IncCounter adds delta to a named counter on the installed backend.
func IncCounter(name string, delta float64, tags ...string) {
	get().IncCounter(name, delta, tags...)
}

// ObserveDuration records one duration sample on the installed backend.
func ObserveDuration(name string, seconds float64, tags ...string) {
	get().ObserveDuration(name, seconds, tags...)
}

// Flush submits buffered metrics on the installed backend.
func Flush() error {
	return get().Flush()
}
