package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heytcass/jasper/internal/aggregator/source"
	"github.com/heytcass/jasper/internal/jasperr"
	"github.com/heytcass/jasper/internal/model"
)

type stubSource struct {
	id    string
	items []model.ContextItem
	delay time.Duration
	err   error
}

func (s *stubSource) ID() string { return s.id }

func (s *stubSource) Fetch(ctx context.Context, windowStart, windowEnd time.Time) ([]model.ContextItem, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.items, nil
}

func TestSnapshotMergesAllHealthySources(t *testing.T) {
	a := New([]Source{
		&stubSource{id: "cal", items: []model.ContextItem{{SourceID: "cal", SourceUID: "1"}}},
		&stubSource{id: "mail", items: []model.ContextItem{{SourceID: "mail", SourceUID: "1"}}},
	}, nil, time.Second, 7, nil)

	snap, err := a.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Items, 2)
	assert.False(t, snap.Partial)
	assert.Empty(t, snap.FailedSources)
}

func TestSnapshotIsPartialOnSingleSourceFailure(t *testing.T) {
	a := New([]Source{
		&stubSource{id: "cal", items: []model.ContextItem{{SourceID: "cal", SourceUID: "1"}}},
		&stubSource{id: "mail", err: assertError("boom")},
	}, nil, time.Second, 7, nil)

	snap, err := a.Snapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Partial)
	assert.Equal(t, []string{"mail"}, snap.FailedSources)
	assert.Len(t, snap.Items, 1)
}

func TestSnapshotTimesOutSlowSource(t *testing.T) {
	a := New([]Source{
		&stubSource{id: "slow", delay: 50 * time.Millisecond},
	}, nil, 5*time.Millisecond, 7, nil)

	snap, err := a.Snapshot(context.Background())
	require.Error(t, err)
	assert.True(t, jasperr.Is(err, jasperr.AggregationFailed))
	assert.True(t, snap.Partial)
}

// TestPerSourceTimeoutIsIndependent proves a source configured with a short
// timeout is cut off at its own deadline even when another source's
// timeout (or the default) is much longer, and that the slow source's own
// longer timeout still lets it complete rather than being capped by the
// other source's shorter one.
func TestPerSourceTimeoutIsIndependent(t *testing.T) {
	a := New([]Source{
		&stubSource{id: "fast-cutoff", delay: 50 * time.Millisecond},
		&stubSource{id: "slow-but-patient", delay: 50 * time.Millisecond},
	}, map[string]time.Duration{
		"fast-cutoff":      5 * time.Millisecond,
		"slow-but-patient": 200 * time.Millisecond,
	}, time.Second, 7, nil)

	snap, err := a.Snapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Partial)
	assert.Equal(t, []string{"fast-cutoff"}, snap.FailedSources)
}

func TestSnapshotOrdersItemsAcrossSourcesBySourceID(t *testing.T) {
	a := New([]Source{
		&stubSource{id: "mail", items: []model.ContextItem{{SourceID: "mail", SourceUID: "1"}}},
		&stubSource{id: "cal", items: []model.ContextItem{{SourceID: "cal", SourceUID: "1"}}},
	}, nil, time.Second, 7, nil)

	snap, err := a.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Items, 2)
	assert.Equal(t, "cal", snap.Items[0].SourceID)
	assert.Equal(t, "mail", snap.Items[1].SourceID)
}

func TestZeroHorizonProducesEmptySnapshot(t *testing.T) {
	demo := source.NewDemo("cal")
	a := New([]Source{demo}, nil, time.Second, 0, nil)

	snap, err := a.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Items)
	assert.Equal(t, snap.HorizonStart, snap.HorizonEnd)
}

type assertError string

func (e assertError) Error() string { return string(e) }
