// Package store persists insights and the current-insight pointer: a
// versioned migration list against a schema_versions table, WAL mode, and
// a single Store interface backed by modernc.org/sqlite (pure Go, no cgo).
package store

import (
	"context"

	"github.com/heytcass/jasper/internal/model"
)

// Store is the daemon's sole persistence interface. Every write goes
// through the lifecycle controller's single writer goroutine; Store itself
// does not enforce that discipline, it only guarantees each call is an
// atomic transaction.
type Store interface {
	// Append commits a newly produced insight and advances the current
	// pointer to it, atomically.
	Append(ctx context.Context, insight model.Insight) (model.Insight, error)

	// Current returns the insight the current pointer references, or
	// jasperr.NotFound if no insight has ever been committed.
	Current(ctx context.Context) (model.Insight, error)

	// ByID returns a specific insight by ID, or jasperr.NotFound.
	ByID(ctx context.Context, id int64) (model.Insight, error)

	// List returns up to limit insights with id > sinceID, ascending by id
	// (smallest-id-first). sinceID=0 returns the oldest insights first;
	// a sinceID at or beyond the highest committed id returns empty.
	List(ctx context.Context, sinceID int64, limit int) ([]model.Insight, error)

	// Pointer returns the current-insight pointer bookkeeping row,
	// including the fingerprint last evaluated even when that evaluation
	// did not produce a new insight.
	Pointer(ctx context.Context) (model.CurrentInsightPointer, error)

	// RecordEvaluation updates the last-analyzed fingerprint without
	// committing a new insight, used when the significance engine returns
	// Unchanged or Minor (rate-limited).
	RecordEvaluation(ctx context.Context, fingerprint string) error

	// Retain deletes insights beyond the configured retention policy.
	Retain(ctx context.Context, maxAge int64, maxCount int) (int64, error)

	Close() error
}
