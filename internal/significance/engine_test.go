package significance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heytcass/jasper/internal/model"
)

func mkSnapshot(takenAt time.Time, items ...model.ContextItem) model.ContextSnapshot {
	return model.ContextSnapshot{TakenAt: takenAt, Items: items}
}

func TestColdStartForcesAnalysis(t *testing.T) {
	e := New(Config{MinAnalysisInterval: time.Minute})
	decision, baseline := e.Evaluate(Baseline{}, mkSnapshot(time.Now()), false)
	assert.Equal(t, model.DecisionForced, decision.Kind)
	assert.True(t, baseline.HasBaseline)
}

func TestUnchangedFingerprintShortCircuits(t *testing.T) {
	e := New(Config{MinAnalysisInterval: time.Minute})
	now := time.Now()
	items := []model.ContextItem{{SourceID: "cal", SourceUID: "1", Title: "Standup"}}
	_, baseline := e.Evaluate(Baseline{}, mkSnapshot(now, items...), false)

	decision, next := e.Evaluate(baseline, mkSnapshot(now.Add(time.Minute), items...), false)
	require.Equal(t, model.DecisionUnchanged, decision.Kind)
	assert.Equal(t, baseline.Fingerprint, next.Fingerprint)
}

func TestItemAddedIsSignificant(t *testing.T) {
	e := New(Config{MinAnalysisInterval: time.Minute})
	now := time.Now()
	_, baseline := e.Evaluate(Baseline{}, mkSnapshot(now, model.ContextItem{SourceID: "cal", SourceUID: "1"}), false)

	decision, _ := e.Evaluate(baseline, mkSnapshot(now.Add(time.Minute),
		model.ContextItem{SourceID: "cal", SourceUID: "1"},
		model.ContextItem{SourceID: "cal", SourceUID: "2"},
	), false)
	assert.Equal(t, model.DecisionSignificant, decision.Kind)
}

func TestForcedOverridesUnchanged(t *testing.T) {
	e := New(Config{MinAnalysisInterval: time.Minute})
	now := time.Now()
	items := []model.ContextItem{{SourceID: "cal", SourceUID: "1"}}
	_, baseline := e.Evaluate(Baseline{}, mkSnapshot(now, items...), false)

	decision, _ := e.Evaluate(baseline, mkSnapshot(now.Add(time.Minute), items...), true)
	assert.Equal(t, model.DecisionForced, decision.Kind)
}

func TestTitleChangeIsMaterialRegardlessOfHorizon(t *testing.T) {
	e := New(Config{MinAnalysisInterval: time.Minute, NearHorizon: 2 * 24 * time.Hour})
	now := time.Now()
	starts := now.Add(10 * 24 * time.Hour) // far outside the near-horizon window
	a := model.ContextItem{SourceID: "cal", SourceUID: "1", Title: "Standup", StartsAt: &starts}
	b := a
	b.Title = "Standup (renamed)"

	_, baseline := e.Evaluate(Baseline{}, mkSnapshot(now, a), false)
	decision, _ := e.Evaluate(baseline, mkSnapshot(now.Add(time.Minute), b), false)
	assert.Equal(t, model.DecisionSignificant, decision.Kind)
}

func TestFarHorizonBodyOnlyChangeIsMinor(t *testing.T) {
	e := New(Config{MinAnalysisInterval: time.Minute, NearHorizon: 2 * 24 * time.Hour})
	now := time.Now()
	starts := now.Add(10 * 24 * time.Hour)
	a := model.ContextItem{SourceID: "cal", SourceUID: "1", Title: "Standup", StartsAt: &starts, Description: "v1"}
	b := a
	b.Description = "v2"

	_, baseline := e.Evaluate(Baseline{}, mkSnapshot(now, a), false)
	decision, _ := e.Evaluate(baseline, mkSnapshot(now.Add(time.Minute), b), false)
	assert.Equal(t, model.DecisionMinor, decision.Kind)
}

func TestNearHorizonBodyOnlyChangeIsSignificant(t *testing.T) {
	e := New(Config{MinAnalysisInterval: time.Minute, NearHorizon: 2 * 24 * time.Hour})
	now := time.Now()
	starts := now.Add(1 * time.Hour) // within near-horizon window
	a := model.ContextItem{SourceID: "cal", SourceUID: "1", Title: "Standup", StartsAt: &starts, Description: "v1"}
	b := a
	b.Description = "v2"

	_, baseline := e.Evaluate(Baseline{}, mkSnapshot(now, a), false)
	decision, _ := e.Evaluate(baseline, mkSnapshot(now.Add(time.Minute), b), false)
	assert.Equal(t, model.DecisionSignificant, decision.Kind)
}

func TestMaxAnalysisIntervalForcesRefreshOnMinorDiff(t *testing.T) {
	e := New(Config{MinAnalysisInterval: time.Hour, NearHorizon: 2 * 24 * time.Hour, MaxAnalysisInterval: time.Minute})
	now := time.Now()
	starts := now.Add(10 * 24 * time.Hour) // far outside near-horizon, so a body-only edit classifies as Minor
	a := model.ContextItem{SourceID: "cal", SourceUID: "1", Title: "Standup", StartsAt: &starts, Description: "v1"}
	b := a
	b.Description = "v2"

	_, baseline := e.Evaluate(Baseline{}, mkSnapshot(now, a), false)
	baseline.EvaluatedAt = now.Add(-2 * time.Minute)

	decision, _ := e.Evaluate(baseline, mkSnapshot(now, b), false)
	assert.Equal(t, model.DecisionForced, decision.Kind)
	assert.Contains(t, decision.Reason, "max analysis interval")
}

// TestRateLimitDowngradesSignificantWithinMinAnalysisInterval exercises the
// end-to-end scenario where a ForceRefresh, followed 10s later by a natural
// material change, is downgraded to Minor because it lands inside the
// 60s MinAnalysisInterval window established by the force.
func TestRateLimitDowngradesSignificantWithinMinAnalysisInterval(t *testing.T) {
	e := New(Config{MinAnalysisInterval: 60 * time.Second})
	t0 := time.Now()
	a := model.ContextItem{SourceID: "cal", SourceUID: "1", Title: "Standup"}
	b := a
	b.Title = "Standup (renamed)"

	_, baseline := e.Evaluate(Baseline{}, mkSnapshot(t0, a), false)

	// A forced refresh at t0+10s establishes the rate-limit clock, regardless
	// of whether anything changed.
	forcedDecision, baseline := e.Evaluate(baseline, mkSnapshot(t0.Add(10*time.Second), a), true)
	require.Equal(t, model.DecisionForced, forcedDecision.Kind)

	// A natural tick at t0+20s with a material change would ordinarily be
	// Significant, but only 10s have passed since the forced trigger.
	decision, _ := e.Evaluate(baseline, mkSnapshot(t0.Add(20*time.Second), b), false)
	assert.Equal(t, model.DecisionMinor, decision.Kind)
	assert.Contains(t, decision.Reason, "rate-limited")
}

func TestRateLimitAllowsSignificantOnceIntervalElapses(t *testing.T) {
	e := New(Config{MinAnalysisInterval: 60 * time.Second})
	t0 := time.Now()
	a := model.ContextItem{SourceID: "cal", SourceUID: "1", Title: "Standup"}
	b := a
	b.Title = "Standup (renamed)"

	_, baseline := e.Evaluate(Baseline{}, mkSnapshot(t0, a), false)
	_, baseline = e.Evaluate(baseline, mkSnapshot(t0.Add(10*time.Second), a), true)

	decision, _ := e.Evaluate(baseline, mkSnapshot(t0.Add(71*time.Second), b), false)
	assert.Equal(t, model.DecisionSignificant, decision.Kind)
}
