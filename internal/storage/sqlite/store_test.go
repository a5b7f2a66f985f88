package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"secint/internal/feed"
	"secint/internal/storage"
)

func openTestStore(t *testing.T) storage.Store {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "indicators.db")
	s, err := storage.New(context.Background(), storage.Config{Kind: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(s.Close)

	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return s
}

// TestInsertIndicators_Idempotent verifies re-submitting the same batch
// inserts nothing new, matching the scheduled re-fetch pattern.
func TestInsertIndicators_Idempotent(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	batch := []feed.Record{
		{Value: "10.0.0.1", Type: "IP", RawJSON: map[string]any{"value": "10.0.0.1", "type": "IP", "attacks": 3}},
		{Value: "10.0.0.2", Type: "IP", RawJSON: map[string]any{"value": "10.0.0.2", "type": "IP"}},
	}

	n, err := s.InsertIndicators(ctx, "dshield", batch)
	if err != nil {
		t.Fatalf("InsertIndicators: %v", err)
	}
	if n != 2 {
		t.Fatalf("inserted=%d, want 2", n)
	}

	n, err = s.InsertIndicators(ctx, "dshield", batch)
	if err != nil {
		t.Fatalf("InsertIndicators (replay): %v", err)
	}
	if n != 0 {
		t.Fatalf("replay inserted=%d, want 0", n)
	}

	// Same value from a different source is a distinct row.
	n, err = s.InsertIndicators(ctx, "otherfeed", batch[:1])
	if err != nil {
		t.Fatalf("InsertIndicators (other source): %v", err)
	}
	if n != 1 {
		t.Fatalf("other source inserted=%d, want 1", n)
	}
}

func TestInsertIndicators_EmptyBatch(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	n, err := s.InsertIndicators(context.Background(), "dshield", nil)
	if err != nil {
		t.Fatalf("InsertIndicators: %v", err)
	}
	if n != 0 {
		t.Fatalf("inserted=%d, want 0", n)
	}
}

// TestEnsureSchema_Idempotent verifies schema creation can run every start.
func TestEnsureSchema_Idempotent(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("second EnsureSchema: %v", err)
	}
}
