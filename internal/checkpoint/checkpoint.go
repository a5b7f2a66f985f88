// Package checkpoint persists the incremental-fetch cursor between
// invocations.
//
// The cursor is a versioned {time, id} pair: the occurrence time and vendor
// ID of the last incident the host ingested. The scheduled fetch replays it
// on the next run so only newer incidents are pulled.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Version is the current checkpoint schema version. Bump when the layout
// changes; Load rejects versions it does not understand rather than silently
// misreading a cursor.
const Version = 1

// Checkpoint is the persisted cursor.
//
// Time is RFC3339; ID is the vendor incident ID as a string (vendor IDs are
// opaque and may exceed int64).
type Checkpoint struct {
	Version int    `json:"version"`
	Time    string `json:"time,omitempty"`
	ID      string `json:"id,omitempty"`
}

// IsZero reports whether the checkpoint carries no cursor yet (first run).
func (c Checkpoint) IsZero() bool {
	return c.Time == "" && c.ID == ""
}

// Load reads a checkpoint file.
//
// Edge cases:
//   - A missing file is a first run: returns a zero checkpoint, no error.
//   - A file with an unknown version is an error; guessing would risk
//     re-ingesting or skipping incidents.
func Load(path string) (Checkpoint, error) {
	var cp Checkpoint

	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Checkpoint{Version: Version}, nil
	}
	if err != nil {
		return cp, fmt.Errorf("checkpoint: read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, &cp); err != nil {
		return cp, fmt.Errorf("checkpoint: parse %s: %w", path, err)
	}
	if cp.Version != Version {
		return cp, fmt.Errorf("checkpoint: %s has unsupported version %d (want %d)", path, cp.Version, Version)
	}
	return cp, nil
}

// Save writes the checkpoint atomically (temp file in the same directory,
// then rename), so a crash mid-write never leaves a truncated cursor.
func Save(path string, cp Checkpoint) error {
	cp.Version = Version

	b, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("checkpoint: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("checkpoint: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("checkpoint: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("checkpoint: rename: %w", err)
	}
	return nil
}
