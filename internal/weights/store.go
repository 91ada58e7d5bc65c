// Package weights holds the per-meme feedback counters and persists them.
package weights

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// Store is a concurrent map of int64 counters keyed by entry ID. Counters are
// created lazily on first update; reads of unknown IDs return 0 without
// creating anything.
type Store struct {
	counters *xsync.MapOf[string, *atomic.Int64]
	version  atomic.Uint64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{counters: xsync.NewMapOf[string, *atomic.Int64]()}
}

// counter returns the counter for id, installing exactly one on first use
// even under concurrent callers.
func (s *Store) counter(id string) *atomic.Int64 {
	c, _ := s.counters.LoadOrCompute(id, func() *atomic.Int64 {
		return new(atomic.Int64)
	})
	return c
}

// GetAndAdd atomically adds delta to the counter for id and returns the new value.
func (s *Store) GetAndAdd(id string, delta int64) int64 {
	v := s.counter(id).Add(delta)
	s.version.Add(1)
	return v
}

// Get returns the counter for id, or 0 if it was never touched.
func (s *Store) Get(id string) int64 {
	if c, ok := s.counters.Load(id); ok {
		return c.Load()
	}
	return 0
}

// Len returns the number of materialised counters.
func (s *Store) Len() int { return s.counters.Size() }

// Version increases on every mutation. Equal versions mean no change.
func (s *Store) Version() uint64 { return s.version.Load() }

// Snapshot copies the counters in a single pass. Concurrent updates are not
// blocked; a counter changed mid-pass may be reported before or after the change.
func (s *Store) Snapshot() map[string]int64 {
	out := make(map[string]int64, s.counters.Size())
	s.counters.Range(func(id string, c *atomic.Int64) bool {
		out[id] = c.Load()
		return true
	})
	return out
}

// Restore replaces the contents of the store with data.
func (s *Store) Restore(data map[string]int64) {
	s.counters.Clear()
	for id, v := range data {
		c := new(atomic.Int64)
		c.Store(v)
		s.counters.Store(id, c)
	}
	s.version.Add(1)
}

// LoadSnapshot restores the store from snap. A missing snapshot leaves the store empty.
func (s *Store) LoadSnapshot(ctx context.Context, snap Snapshotter) error {
	data, err := snap.Load(ctx)
	if err != nil {
		return fmt.Errorf("weights: loading snapshot: %w", err)
	}
	s.Restore(data)
	return nil
}

// SaveSnapshot writes the current counters to snap and returns the version
// that was saved.
func (s *Store) SaveSnapshot(ctx context.Context, snap Snapshotter) (uint64, error) {
	version := s.Version()
	if err := snap.Save(ctx, s.Snapshot()); err != nil {
		return 0, fmt.Errorf("weights: saving snapshot: %w", err)
	}
	return version, nil
}
