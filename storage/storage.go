// Package storage persists share links and run records.
package storage

import (
	"context"
	"errors"

	"github.com/songzhibin97/mediaflow/types"
)

// Errors
var (
	ErrSharedNotFound = errors.New("shared workflow not found")
	ErrRunNotFound    = errors.New("run not found")
)

// Storage defines the interface for persisting and retrieving shared workflows and run records.
type Storage interface {
	// SaveShared saves a share link.
	SaveShared(ctx context.Context, sw types.SharedWorkflow) error

	// GetShared retrieves a share link by ID.
	GetShared(ctx context.Context, id uint64) (types.SharedWorkflow, error)

	// SaveRun saves a run record, replacing any previous record with the same ID.
	SaveRun(ctx context.Context, rec types.RunRecord) error

	// GetRun retrieves a run record by ID.
	GetRun(ctx context.Context, id string) (types.RunRecord, error)

	// PruneRuns deletes run records that finished before the given unix millisecond
	// timestamp and reports how many were removed.
	PruneRuns(ctx context.Context, before int64) (int, error)

	Close() error
}

// withContext is a standalone generic helper function.
func withContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	default:
		return fn()
	}
}
