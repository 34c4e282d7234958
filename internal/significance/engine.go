// Package significance decides whether a new context snapshot is worth
// running the analysis pipeline over. It holds the daemon's baseline state
// machine and an ordered rule set, and never returns a bare bool: every
// verdict is a tagged model.Decision.
package significance

import (
	"time"

	"github.com/heytcass/jasper/internal/canon"
	"github.com/heytcass/jasper/internal/model"
)

// Config bundles the tunables the engine's rules read from the insights
// config section.
type Config struct {
	MinAnalysisInterval time.Duration
	NearHorizon         time.Duration
	MaxAnalysisInterval time.Duration // forces a refresh even with no change
}

// Baseline is the engine's persisted comparison point: the last snapshot it
// evaluated, and when that evaluation happened.
type Baseline struct {
	HasBaseline bool
	Fingerprint string
	Items       []model.ContextItem
	EvaluatedAt time.Time
}

// Engine evaluates context transitions against a Baseline and tracks the
// time of the last Significant/Forced decision, which rule 7 uses to
// rate-limit how often a would-be-Significant diff is allowed through.
type Engine struct {
	cfg Config

	hasTriggered  bool
	lastTriggerAt time.Time
}

// New builds an Engine.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Reset clears the trigger clock, used when a config reload changes the
// horizon, source set, or privacy rules enough that the prior baseline is
// no longer comparable (NoBaseline state).
func (e *Engine) Reset() {
	e.hasTriggered = false
}

// markTriggered records snapshot time t as the most recent Significant or
// Forced decision, which rule 7 measures subsequent diffs against.
func (e *Engine) markTriggered(t time.Time) {
	e.hasTriggered = true
	e.lastTriggerAt = t
}

// Evaluate runs the ordered rule set against snapshot given the current
// baseline, and returns the decision plus the Baseline to store for next
// time (the caller commits it only if it chooses to advance past this
// evaluation).
func (e *Engine) Evaluate(baseline Baseline, snapshot model.ContextSnapshot, forced bool) (model.Decision, Baseline) {
	next := Baseline{
		HasBaseline: true,
		Fingerprint: canon.Fingerprint(snapshot.Items),
		Items:       snapshot.Items,
		EvaluatedAt: snapshot.TakenAt,
	}

	// Rule 1: cold start. No prior baseline always analyzes, and counts as
	// a trigger for rule 7's clock.
	if !baseline.HasBaseline {
		e.markTriggered(snapshot.TakenAt)
		return model.Decision{Kind: model.DecisionForced, Reason: "no baseline"}, next
	}

	// Rule 2: explicit force (manual refresh).
	// Forced decisions always proceed and always reset rule 7's clock.
	if forced {
		e.markTriggered(snapshot.TakenAt)
		return model.Decision{Kind: model.DecisionForced, Reason: "forced refresh requested"}, next
	}

	// Rule 3: unchanged. Identical fingerprint short-circuits everything
	// else, including the rate-limit override below.
	if next.Fingerprint == baseline.Fingerprint {
		return model.Decision{Kind: model.DecisionUnchanged, Reason: "fingerprint unchanged"}, baseline
	}

	// Rule 4: material vs minor diff classification.
	kind, reason := classify(baseline.Items, snapshot.Items, e.cfg.NearHorizon, snapshot.TakenAt)

	if kind == model.DecisionSignificant {
		// Rule 7: rate-limit override. A would-be Significant diff that
		// lands within MinAnalysisInterval of the last Significant/Forced
		// decision is downgraded to Minor instead of re-triggering analysis.
		if e.hasTriggered && e.cfg.MinAnalysisInterval > 0 && snapshot.TakenAt.Sub(e.lastTriggerAt) < e.cfg.MinAnalysisInterval {
			return model.Decision{Kind: model.DecisionMinor, Reason: "rate-limited"}, next
		}
		e.markTriggered(snapshot.TakenAt)
		return model.Decision{Kind: kind, Reason: reason}, next
	}

	// Rule 5/6: floor or near-horizon promotion already folded into
	// classify above; anything left is a minor diff.

	// MaxAnalysisInterval: a minor diff is promoted to Forced once enough
	// wall-clock time has passed since the baseline was last evaluated,
	// so the analysis pipeline doesn't go silent forever on small edits.
	if e.cfg.MaxAnalysisInterval > 0 && snapshot.TakenAt.Sub(baseline.EvaluatedAt) >= e.cfg.MaxAnalysisInterval {
		e.markTriggered(snapshot.TakenAt)
		return model.Decision{Kind: model.DecisionForced, Reason: "max analysis interval elapsed"}, next
	}

	return model.Decision{Kind: kind, Reason: reason}, next
}

// classify compares two item sets directly (not via fingerprint, which
// collapses order) to decide whether the diff is material. Added/removed
// items and changes to title/starts_at/ends_at/location on a matched item
// are always material. A body-only change on a matched item is material
// only when the item falls within nearHorizon of now; otherwise it is
// minor.
func classify(prev, next []model.ContextItem, nearHorizon time.Duration, now time.Time) (model.DecisionKind, string) {
	prevByKey := indexByKey(prev)
	nextByKey := indexByKey(next)

	sawMinor := false
	for key, item := range nextByKey {
		p, existed := prevByKey[key]
		if !existed {
			return model.DecisionSignificant, "item added: " + key
		}
		if withinHorizon(item, now, nearHorizon) != withinHorizon(p, now, nearHorizon) {
			return model.DecisionSignificant, "item crossed near-horizon boundary: " + key
		}
		if fieldsMaterial(p, item) {
			return model.DecisionSignificant, "material field changed: " + key
		}
		if p.Description != item.Description {
			if withinHorizon(item, now, nearHorizon) {
				return model.DecisionSignificant, "body changed within near-horizon window: " + key
			}
			sawMinor = true
		}
	}
	for key := range prevByKey {
		if _, stillPresent := nextByKey[key]; !stillPresent {
			return model.DecisionSignificant, "item removed: " + key
		}
	}
	if sawMinor {
		return model.DecisionMinor, "body-only change outside near-horizon window"
	}
	return model.DecisionMinor, "items unchanged in composition, fields differ"
}

// fieldsMaterial reports whether title, timing, or location differ between
// the same logical item across two snapshots. Description (body) changes
// are handled separately since their materiality depends on horizon
// proximity.
func fieldsMaterial(prev, next model.ContextItem) bool {
	if prev.Title != next.Title || prev.Location != next.Location {
		return true
	}
	return !timePtrEqual(prev.StartsAt, next.StartsAt) || !timePtrEqual(prev.EndsAt, next.EndsAt)
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func indexByKey(items []model.ContextItem) map[string]model.ContextItem {
	out := make(map[string]model.ContextItem, len(items))
	for _, item := range items {
		out[item.SourceID+"/"+item.SourceUID] = item
	}
	return out
}

func withinHorizon(item model.ContextItem, now time.Time, horizon time.Duration) bool {
	if item.StartsAt == nil {
		return false
	}
	return item.StartsAt.After(now) && item.StartsAt.Sub(now) <= horizon
}
