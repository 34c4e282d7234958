// Package source defines the Source interface context providers implement,
// plus a demo implementation with no network dependency.
package source

import (
	"context"
	"time"

	"github.com/heytcass/jasper/internal/model"
)

// Source fetches the current set of context items from one provider
// (a calendar, a task list, a mail inbox) within a bounded time window.
// Fetch must respect ctx cancellation: the aggregator applies a per-source
// timeout around every call.
type Source interface {
	// ID identifies this source instance, matching its context_sources.<id>
	// key. It is stamped onto every ContextItem.SourceID this source
	// produces.
	ID() string

	// Fetch returns this source's items falling within
	// [windowStart, windowEnd]. A non-nil error marks the source
	// unavailable for this tick; the aggregator still assembles a partial
	// snapshot from the sources that succeeded.
	Fetch(ctx context.Context, windowStart, windowEnd time.Time) ([]model.ContextItem, error)
}
