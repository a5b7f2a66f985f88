// Package storage defines the backend-agnostic indicator sink and its
// backend registry.
//
// Backends register themselves from init() (blank-imported via
// internal/storage/all); config selects one by kind. The interface is
// intentionally minimal: the adapters only ever create the schema and append
// batches of indicators.
package storage

import (
	"context"
	"fmt"
	"sync"

	"secint/internal/feed"
)

// Config is the minimal configuration needed to open a store.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is
//     backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Store persists indicator batches.
//
// Implementations must make InsertIndicators idempotent on (source, value):
// feeds are re-fetched on a schedule and the same indicator will be submitted
// again on every run.
type Store interface {
	// Close releases backend resources. Treat as "call once" at shutdown.
	Close()

	// EnsureSchema creates the indicators table if needed. Idempotent.
	EnsureSchema(ctx context.Context) error

	// InsertIndicators appends one batch, skipping rows already present for
	// this source. Returns the number of newly inserted rows.
	InsertIndicators(ctx context.Context, source string, records []feed.Record) (int64, error)
}

type factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// Panics:
//   - If kind is empty, f is nil, or kind is already registered. Failing fast
//     here avoids ambiguous backend selection at runtime.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Store using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or not registered.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
