package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/arcanist/spelltree/pkg/spelltree/store"
)

// Store is an in-memory implementation of store.Store for tests.
type Store struct {
	mu     sync.RWMutex
	builds map[string]store.BuildRecord
	order  []string
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{builds: make(map[string]store.BuildRecord)}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// SaveBuild inserts or replaces a build record, keyed by ID.
func (s *Store) SaveBuild(ctx context.Context, b store.BuildRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == "" {
		return nil
	}
	if _, ok := s.builds[b.ID]; !ok {
		s.order = append(s.order, b.ID)
	}
	s.builds[b.ID] = b
	return nil
}

// GetBuild returns a build record by ID.
func (s *Store) GetBuild(ctx context.Context, id string) (store.BuildRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.builds[id]
	return b, ok, nil
}

// ListBuilds returns up to limit records, newest first.
func (s *Store) ListBuilds(ctx context.Context, limit int) ([]store.BuildRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.BuildRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.builds[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
