package audit

import "time"

// EventType identifies the kind of event the append-only log records.
type EventType string

const (
	// Significance engine events
	EventSignificanceEvaluated EventType = "significance.evaluated"

	// Analysis pipeline events
	EventPipelineStarted   EventType = "pipeline.started"
	EventPipelineCommitted EventType = "pipeline.committed"
	EventPipelineFailed    EventType = "pipeline.failed"

	// Frontend lifecycle events
	EventFrontendRegistered EventType = "frontend.registered"
	EventFrontendHeartbeat  EventType = "frontend.heartbeat"
	EventFrontendEvicted    EventType = "frontend.evicted"

	// Configuration events
	EventConfigLoaded   EventType = "config.loaded"
	EventConfigReloaded EventType = "config.reloaded"
	EventConfigRejected EventType = "config.rejected"

	// System lifecycle events
	EventDaemonStarted  EventType = "system.daemon_started"
	EventDaemonStopping EventType = "system.daemon_stopping"
)

// Result represents the outcome of an audited event.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultPending Result = "pending"
	ResultDenied  Result = "denied"
)

// Event is a single append-only log entry.
type Event struct {
	Timestamp     time.Time         `json:"timestamp"`
	CorrelationID string            `json:"correlation_id"`
	EventType     EventType         `json:"event_type"`
	Result        Result            `json:"result"`

	Description string                 `json:"description,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`

	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`

	DurationMs int64 `json:"duration_ms,omitempty"`
}

// NewEvent creates a new event with default values.
func NewEvent(eventType EventType) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Result:    ResultPending,
		Metadata:  make(map[string]interface{}),
	}
}

func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

func (e *Event) WithDescription(desc string) *Event {
	e.Description = desc
	return e
}

func (e *Event) WithResult(result Result) *Event {
	e.Result = result
	return e
}

func (e *Event) WithError(err error, code string) *Event {
	if err != nil {
		e.Error = err.Error()
		e.ErrorCode = code
		e.Result = ResultFailure
	}
	return e
}

func (e *Event) WithDuration(duration time.Duration) *Event {
	e.DurationMs = duration.Milliseconds()
	return e
}

func (e *Event) WithMetadata(key string, value interface{}) *Event {
	e.Metadata[key] = value
	return e
}
