// Package aggregator fans a tick out to every configured context source in
// parallel, bounded by a per-source timeout, and assembles the results into
// a single ContextSnapshot.
package aggregator

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/heytcass/jasper/internal/aggregator/source"
	"github.com/heytcass/jasper/internal/canon"
	"github.com/heytcass/jasper/internal/jasperr"
	"github.com/heytcass/jasper/internal/model"
)

// Source is an alias for source.Source, convenient for callers that already
// import this package and don't need the source subpackage otherwise.
type Source = source.Source

// Aggregator fetches from every registered source and merges the results.
type Aggregator struct {
	sources        []Source
	sourceTimeouts map[string]time.Duration
	defaultTimeout time.Duration
	horizonDays    int
	log            *zap.Logger
}

// New builds an Aggregator over sources. Each source's Fetch call is bounded
// by its own entry in sourceTimeouts (keyed by Source.ID()); a source with no
// entry, or an entry of zero, falls back to defaultTimeout. A source
// configured with a short timeout is never held hostage by another source's
// longer one. horizonDays bounds the window passed to every source
// (planning_horizon_days in config; 0 degrades to an empty window, per the
// spec's zero-horizon edge case).
func New(sources []Source, sourceTimeouts map[string]time.Duration, defaultTimeout time.Duration, horizonDays int, log *zap.Logger) *Aggregator {
	return &Aggregator{sources: sources, sourceTimeouts: sourceTimeouts, defaultTimeout: defaultTimeout, horizonDays: horizonDays, log: log}
}

func (a *Aggregator) timeoutFor(sourceID string) time.Duration {
	if t, ok := a.sourceTimeouts[sourceID]; ok && t > 0 {
		return t
	}
	return a.defaultTimeout
}

// Snapshot fetches every source concurrently and merges their items. A
// source that errors or exceeds its timeout is recorded in
// ContextSnapshot.FailedSources and the snapshot is marked Partial; it is
// never an error to return a partial snapshot. Only a total failure (every
// source unavailable) raises AggregationFailed.
func (a *Aggregator) Snapshot(ctx context.Context) (model.ContextSnapshot, error) {
	takenAt := time.Now()
	horizonStart := takenAt
	horizonEnd := takenAt.AddDate(0, 0, a.horizonDays)

	type result struct {
		idx   int
		items []model.ContextItem
		err   error
	}
	results := make([]result, len(a.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range a.sources {
		i, src := i, src
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(gctx, a.timeoutFor(src.ID()))
			defer cancel()
			items, err := src.Fetch(fetchCtx, horizonStart, horizonEnd)
			results[i] = result{idx: i, items: items, err: err}
			return nil
		})
	}
	// errgroup's first-error propagation is deliberately unused here: a
	// single source failing must not cancel the others, so Fetch errors are
	// captured per-result instead of returned from the goroutine.
	_ = g.Wait()

	snapshot := model.ContextSnapshot{TakenAt: takenAt, HorizonStart: horizonStart, HorizonEnd: horizonEnd}
	for _, r := range results {
		if r.err != nil {
			srcID := a.sources[r.idx].ID()
			snapshot.FailedSources = append(snapshot.FailedSources, srcID)
			snapshot.Partial = true
			if a.log != nil {
				a.log.Warn("context source failed", zap.String("source_id", srcID), zap.Error(r.err))
			}
			continue
		}
		snapshot.Items = append(snapshot.Items, r.items...)
	}

	if len(a.sources) > 0 && len(snapshot.FailedSources) == len(a.sources) {
		return snapshot, jasperr.New(jasperr.AggregationFailed, "aggregator.Snapshot", "every context source failed")
	}

	// The snapshot invariant requires a stable (starts_at NULLS LAST,
	// source_id, source_uid) order regardless of which source answered
	// first; downstream consumers (the significance engine's diff, the
	// pipeline's oldest-first truncation) depend on it.
	snapshot.Items = canon.Order(snapshot.Items)
	return snapshot, nil
}
