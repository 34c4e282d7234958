// Package model holds the data types shared across the daemon: the units
// context sources produce, the snapshot the aggregator assembles from them,
// the insight the analysis pipeline produces, and the bookkeeping types the
// insight store and frontend registry persist.
package model

import "time"

// ContextItem is one fact pulled from a single context source: an event, a
// task, an email thread, whatever that source's domain unit is.
type ContextItem struct {
	SourceID    string     `json:"source_id"`
	SourceUID   string     `json:"source_uid"`
	Kind        string     `json:"kind"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	Location    string     `json:"location,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ContextSnapshot is the aggregator's output for one tick: the union of
// every source's items, plus bookkeeping about which sources answered.
type ContextSnapshot struct {
	TakenAt       time.Time     `json:"taken_at"`
	HorizonStart  time.Time     `json:"horizon_start"`
	HorizonEnd    time.Time     `json:"horizon_end"`
	Items         []ContextItem `json:"items"`
	FailedSources []string      `json:"failed_sources,omitempty"`
	Partial       bool          `json:"partial"`
}

// Urgency is a 0-10 scale the analysis pipeline assigns to an insight.
type Urgency int

// Insight is one analysis pipeline result: a human-facing summary of the
// current context snapshot.
type Insight struct {
	ID                 int64     `json:"id"`
	CreatedAt          time.Time `json:"created_at"`
	Emoji              string    `json:"emoji"`
	Preview            string    `json:"preview"`
	Body               string    `json:"body"`
	Urgency            Urgency   `json:"urgency"`
	ContextFingerprint string    `json:"context_fingerprint"`
	Provider           string    `json:"provider"`
	Model              string    `json:"model"`
}

// CurrentInsightPointer is the single-writer pointer to the latest
// committed insight plus the fingerprint the significance engine last
// evaluated against, regardless of whether that evaluation produced a new
// insight.
type CurrentInsightPointer struct {
	CurrentInsightID     int64  `json:"current_insight_id"`
	LastAnalyzedFingerprint string `json:"last_analyzed_fingerprint"`
	LastAnalyzedAt       time.Time `json:"last_analyzed_at"`
}

// NotifyPreference controls which signals a registered frontend wants
// pushed to it over the WebSocket channel.
type NotifyPreference string

const (
	NotifyAll         NotifyPreference = "all"
	NotifySignificant NotifyPreference = "significant"
	NotifyNone        NotifyPreference = "none"
)

// FrontendRegistration tracks one attached frontend's liveness state.
type FrontendRegistration struct {
	ID               string           `json:"id"`
	PID              int              `json:"pid"`
	RegisteredAt     time.Time        `json:"registered_at"`
	LastHeartbeat    time.Time        `json:"last_heartbeat"`
	NotifyPreference NotifyPreference `json:"notify_preference"`
}

// Decision is the significance engine's tagged verdict for a context
// transition. It is never a bare bool: each variant carries whatever the
// caller needs to log or act on.
type Decision struct {
	Kind   DecisionKind `json:"kind"`
	Reason string       `json:"reason"`
}

// DecisionKind enumerates the significance engine's possible verdicts.
type DecisionKind string

const (
	DecisionUnchanged   DecisionKind = "unchanged"
	DecisionMinor       DecisionKind = "minor"
	DecisionSignificant DecisionKind = "significant"
	DecisionForced      DecisionKind = "forced"
)
