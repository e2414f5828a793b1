package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/songzhibin97/mediaflow/types"
)

// MemoryStorage is an in-memory implementation of the Storage interface.
type MemoryStorage struct {
	shared map[uint64]types.SharedWorkflow
	runs   map[string]types.RunRecord
	mu     sync.RWMutex
}

// NewMemoryStorage creates a new MemoryStorage instance.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		shared: make(map[uint64]types.SharedWorkflow),
		runs:   make(map[string]types.RunRecord),
	}
}

// getItem reads m under the read lock.
func getItem[K comparable, T any](ctx context.Context, mu *sync.RWMutex, m map[K]T, id K, errNotFound error) (T, error) {
	return withContext(ctx, func() (T, error) {
		mu.RLock()
		item, ok := m[id]
		mu.RUnlock()
		if !ok {
			var zero T
			return zero, fmt.Errorf("%w: id=%v", errNotFound, id)
		}
		return item, nil
	})
}

// SaveShared saves a share link to memory.
func (s *MemoryStorage) SaveShared(ctx context.Context, sw types.SharedWorkflow) error {
	_, err := withContext(ctx, func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.shared[sw.ID] = sw
		return struct{}{}, nil
	})
	return err
}

// GetShared retrieves a share link from memory.
func (s *MemoryStorage) GetShared(ctx context.Context, id uint64) (types.SharedWorkflow, error) {
	return getItem(ctx, &s.mu, s.shared, id, ErrSharedNotFound)
}

// SaveRun saves a run record to memory.
func (s *MemoryStorage) SaveRun(ctx context.Context, rec types.RunRecord) error {
	_, err := withContext(ctx, func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.runs[rec.ID] = rec
		return struct{}{}, nil
	})
	return err
}

// GetRun retrieves a run record from memory.
func (s *MemoryStorage) GetRun(ctx context.Context, id string) (types.RunRecord, error) {
	return getItem(ctx, &s.mu, s.runs, id, ErrRunNotFound)
}

// PruneRuns removes run records that finished before the cutoff.
func (s *MemoryStorage) PruneRuns(ctx context.Context, before int64) (int, error) {
	return withContext(ctx, func() (int, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		n := 0
		for id, rec := range s.runs {
			if rec.FinishedAt < before {
				delete(s.runs, id)
				n++
			}
		}
		return n, nil
	})
}

// Close is a no-op for memory storage.
func (s *MemoryStorage) Close() error { return nil }

var _ Storage = (*MemoryStorage)(nil)
