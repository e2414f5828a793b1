package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryStorage(t *testing.T) {
	t.Run("NewMemoryStorage", func(t *testing.T) {
		store := NewMemoryStorage()
		assert.NotNil(t, store)
		assert.Empty(t, store.shared)
		assert.Empty(t, store.runs)
		assert.NoError(t, store.Close())
	})

	t.Run("SaveAndGetShared", func(t *testing.T) {
		store := NewMemoryStorage()
		ctx := context.Background()

		sw := newShared(1)
		err := store.SaveShared(ctx, sw)
		assert.NoError(t, err)

		got, err := store.GetShared(ctx, 1)
		assert.NoError(t, err)
		assert.Equal(t, sw, got)

		_, err = store.GetShared(ctx, 2)
		assert.ErrorIs(t, err, ErrSharedNotFound)
	})

	t.Run("SaveAndGetRun", func(t *testing.T) {
		store := NewMemoryStorage()
		ctx := context.Background()

		rec := newRunRecord("run-1", time.Now().UnixMilli())
		err := store.SaveRun(ctx, rec)
		assert.NoError(t, err)

		got, err := store.GetRun(ctx, "run-1")
		assert.NoError(t, err)
		assert.Equal(t, rec, got)

		_, err = store.GetRun(ctx, "run-2")
		assert.ErrorIs(t, err, ErrRunNotFound)
	})

	t.Run("PruneRuns", func(t *testing.T) {
		store := NewMemoryStorage()
		ctx := context.Background()
		now := time.Now().UnixMilli()

		assert.NoError(t, store.SaveRun(ctx, newRunRecord("old", now-int64(time.Hour/time.Millisecond))))
		assert.NoError(t, store.SaveRun(ctx, newRunRecord("older", now-int64(2*time.Hour/time.Millisecond))))
		assert.NoError(t, store.SaveRun(ctx, newRunRecord("fresh", now)))

		n, err := store.PruneRuns(ctx, now-int64(time.Minute/time.Millisecond))
		assert.NoError(t, err)
		assert.Equal(t, 2, n)

		_, err = store.GetRun(ctx, "fresh")
		assert.NoError(t, err)
		_, err = store.GetRun(ctx, "old")
		assert.ErrorIs(t, err, ErrRunNotFound)
		_, err = store.GetRun(ctx, "older")
		assert.ErrorIs(t, err, ErrRunNotFound)
	})

	t.Run("ContextCancellation", func(t *testing.T) {
		store := NewMemoryStorage()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := store.SaveShared(ctx, newShared(1))
		assert.ErrorIs(t, err, context.Canceled)

		_, err = store.GetShared(ctx, 1)
		assert.ErrorIs(t, err, context.Canceled)

		err = store.SaveRun(ctx, newRunRecord("run-1", 0))
		assert.ErrorIs(t, err, context.Canceled)

		_, err = store.GetRun(ctx, "run-1")
		assert.ErrorIs(t, err, context.Canceled)

		_, err = store.PruneRuns(ctx, 0)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("ConcurrentAccess", func(t *testing.T) {
		store := NewMemoryStorage()
		ctx := context.Background()
		var wg sync.WaitGroup

		// Reads and writes interleave; the race detector checks the locking.
		errs := make(chan error, 200)
		for i := 0; i < 100; i++ {
			wg.Add(2)
			go func(id int) {
				defer wg.Done()
				if err := store.SaveRun(ctx, newRunRecord(fmt.Sprintf("run-%d", id), int64(id))); err != nil {
					errs <- err
				}
			}(i)
			go func(id int) {
				defer wg.Done()
				_, err := store.GetRun(ctx, fmt.Sprintf("run-%d", id))
				if err != nil && !errors.Is(err, ErrRunNotFound) {
					errs <- err
				}
			}(i)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			assert.NoError(t, err)
		}
		for i := 0; i < 100; i++ {
			_, err := store.GetRun(ctx, fmt.Sprintf("run-%d", i))
			assert.NoError(t, err)
		}
	})
}

func TestGetItem(t *testing.T) {
	ctx := context.Background()
	var mu sync.RWMutex
	m := map[uint64]string{1: "one", 2: "two"}

	t.Run("Found", func(t *testing.T) {
		result, err := getItem(ctx, &mu, m, 1, errors.New("not found"))
		assert.NoError(t, err)
		assert.Equal(t, "one", result)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := getItem(ctx, &mu, m, 3, errors.New("not found"))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not found: id=3")
	})

	t.Run("CanceledContext", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := getItem(ctx, &mu, m, 1, errors.New("not found"))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestWithContext(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		result, err := withContext(context.Background(), func() (string, error) {
			return "success", nil
		})
		assert.NoError(t, err)
		assert.Equal(t, "success", result)
	})

	t.Run("Error", func(t *testing.T) {
		_, err := withContext(context.Background(), func() (string, error) {
			return "", errors.New("fail")
		})
		assert.EqualError(t, err, "fail")
	})

	t.Run("CanceledContext", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := withContext(ctx, func() (string, error) {
			return "success", nil
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
