// Package postgres implements the indicator store on PostgreSQL via pgx.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"secint/internal/feed"
	"secint/internal/storage"
)

// Store implements storage.Store for Postgres.
//
// Idempotency uses INSERT ... ON CONFLICT (source, value) DO NOTHING, so
// re-submitting a feed run never fails on duplicates.
type Store struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS indicators (
	source     TEXT NOT NULL,
	value      TEXT NOT NULL,
	type       TEXT NOT NULL,
	raw_json   JSONB NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (source, value)
)`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("postgres: create indicators table: %w", err)
	}
	return nil
}

// InsertIndicators appends a batch using a pgx.Batch pipeline: one network
// round trip per submit batch rather than per row.
func (s *Store) InsertIndicators(ctx context.Context, source string, records []feed.Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	const stmt = `
INSERT INTO indicators (source, value, type, raw_json, fetched_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (source, value) DO NOTHING`

	now := time.Now().UTC()

	batch := &pgx.Batch{}
	for _, rec := range records {
		raw, err := json.Marshal(rec.RawJSON)
		if err != nil {
			return 0, fmt.Errorf("postgres: marshal raw json for %q: %w", rec.Value, err)
		}
		batch.Queue(stmt, source, rec.Value, rec.Type, raw, now)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	var inserted int64
	for range records {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("postgres: insert indicators: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}
