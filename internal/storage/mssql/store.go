// Package mssql implements the indicator store on Microsoft SQL Server.
package mssql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/microsoft/go-mssqldb"

	"secint/internal/feed"
	"secint/internal/storage"
)

// Store implements storage.Store for SQL Server.
//
// Idempotency uses a per-row INSERT ... WHERE NOT EXISTS inside one
// transaction; SQL Server has no OR IGNORE / ON CONFLICT shorthand and MERGE
// brings locking subtleties that are not worth it for an append-only table.
type Store struct {
	db *sql.DB
}

func init() {
	storage.Register("mssql", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
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
IF OBJECT_ID('indicators', 'U') IS NULL
CREATE TABLE indicators (
	source     NVARCHAR(256)  NOT NULL,
	value      NVARCHAR(1024) NOT NULL,
	type       NVARCHAR(128)  NOT NULL,
	raw_json   NVARCHAR(MAX)  NOT NULL,
	fetched_at DATETIMEOFFSET NOT NULL,
	CONSTRAINT pk_indicators PRIMARY KEY (source, value)
)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("mssql: create indicators table: %w", err)
	}
	return nil
}

func (s *Store) InsertIndicators(ctx context.Context, source string, records []feed.Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	const stmt = `
INSERT INTO indicators (source, value, type, raw_json, fetched_at)
SELECT @p1, @p2, @p3, @p4, @p5
WHERE NOT EXISTS (
	SELECT 1 FROM indicators WHERE source = @p1 AND value = @p2
)`

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("mssql: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	var inserted int64
	for _, rec := range records {
		raw, err := json.Marshal(rec.RawJSON)
		if err != nil {
			return 0, fmt.Errorf("mssql: marshal raw json for %q: %w", rec.Value, err)
		}
		res, err := tx.ExecContext(ctx, stmt, source, rec.Value, rec.Type, string(raw), now)
		if err != nil {
			return 0, fmt.Errorf("mssql: insert indicator %q: %w", rec.Value, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += n
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("mssql: commit: %w", err)
	}
	return inserted, nil
}
