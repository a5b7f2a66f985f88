// Package sqlite implements the indicator store on SQLite. It is the default
// backend for local runs: a single file, no server.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"secint/internal/feed"
	"secint/internal/storage"
)

// Store implements storage.Store for SQLite.
//
// Timestamps are stored as RFC3339Nano strings; SQLite has no native
// timestamp type and TEXT round-trips reliably.
type Store struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() { _ = s.db.Close() }

func (s *Store) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS indicators (
	source     TEXT NOT NULL,
	value      TEXT NOT NULL,
	type       TEXT NOT NULL,
	raw_json   TEXT NOT NULL,
	fetched_at TEXT NOT NULL,
	PRIMARY KEY (source, value)
)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("sqlite: create indicators table: %w", err)
	}
	return nil
}

// InsertIndicators appends a batch using INSERT OR IGNORE, which relies on
// the (source, value) primary key for idempotency.
func (s *Store) InsertIndicators(ctx context.Context, source string, records []feed.Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	var b strings.Builder
	b.WriteString("INSERT OR IGNORE INTO indicators (source, value, type, raw_json, fetched_at) VALUES ")

	args := make([]any, 0, len(records)*5)
	for i, rec := range records {
		raw, err := json.Marshal(rec.RawJSON)
		if err != nil {
			return 0, fmt.Errorf("sqlite: marshal raw json for %q: %w", rec.Value, err)
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?, ?)")
		args = append(args, source, rec.Value, rec.Type, string(raw), now)
	}

	res, err := s.db.ExecContext(ctx, b.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("sqlite: insert indicators: %w", err)
	}
	return res.RowsAffected()
}
