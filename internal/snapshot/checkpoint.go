package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"
)

var lastKnownGoodKey = []byte("snapshot/last-known-good")

// Checkpointer keeps the last successfully fetched snapshot on local disk so
// a restarted display has something to show before the first poll returns.
type Checkpointer struct {
	db *pebble.DB
}

// OpenCheckpointer opens (or creates) the pebble database in dir.
func OpenCheckpointer(dir string) (*Checkpointer, error) {
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &Checkpointer{db: db}, nil
}

// Close closes the underlying database.
func (c *Checkpointer) Close() error { return c.db.Close() }

// Save overwrites the stored checkpoint with snap.
func (c *Checkpointer) Save(snap *Snapshot) error {
	val, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := c.db.Set(lastKnownGoodKey, val, pebble.Sync); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Load returns the stored checkpoint. ok is false when none has been saved.
func (c *Checkpointer) Load() (snap *Snapshot, ok bool, err error) {
	val, closer, err := c.db.Get(lastKnownGoodKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read snapshot: %w", err)
	}
	defer closer.Close()

	var out Snapshot
	if err := json.Unmarshal(val, &out); err != nil {
		return nil, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return &out, true, nil
}
