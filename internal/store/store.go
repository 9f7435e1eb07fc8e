// Package store persists standardized rows keyed by
// (document id, material id, property). AppendRow is an idempotent upsert:
// replaying a batch converges to the same stored state.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Key uniquely identifies a stored row.
type Key struct {
	DocumentID string
	MaterialID string
	Property   string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.DocumentID, k.MaterialID, k.Property)
}

// Row is the stored payload for one key.
type Row struct {
	Value      float64
	Unit       string
	DOI        string
	Conditions string
	Similarity float64
}

// RowStore is the persistent store collaborator.
//
// AppendRow must be idempotent: re-applying an identical key and row is a
// no-op. A colliding key with different content is last-writer-wins.
type RowStore interface {
	AppendRow(ctx context.Context, key Key, row Row) error
	Rows(ctx context.Context) (map[Key]Row, error)
}

// MemoryStore is an in-memory RowStore, safe for concurrent runs.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[Key]Row
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[Key]Row)}
}

// AppendRow upserts one row.
func (s *MemoryStore) AppendRow(_ context.Context, key Key, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[key] = row
	return nil
}

// Rows returns a copy of the stored rows.
func (s *MemoryStore) Rows(_ context.Context) (map[Key]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[Key]Row, len(s.rows))
	for k, v := range s.rows {
		out[k] = v
	}
	return out, nil
}

// sortedKeys returns the keys of a row map in a stable order.
func sortedKeys(rows map[Key]Row) []Key {
	keys := make([]Key, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}
