package auditx

import (
	"time"

	"github.com/relightlabs/relight/pkg/kernel"
)

// EventType identifies what kind of event is being recorded
type EventType string

const (
	// EventStateTransition fires on every job state change
	EventStateTransition EventType = "state_transition"

	// EventExternalCall fires after each outbound service call completes
	EventExternalCall EventType = "external_call"

	// EventQCDecision fires when the decision engine returns a verdict
	EventQCDecision EventType = "qc_decision"

	// EventRetryAdjustment fires when retry parameters are generated
	EventRetryAdjustment EventType = "retry_adjustment"

	// EventStageError fires when a pipeline stage fails
	EventStageError EventType = "stage_error"

	// EventSessionFinalized marks the summary computation for a session
	EventSessionFinalized EventType = "session_finalized"
)

// Common payload keys. Writers are free to add their own, but the
// summary fold only understands these.
const (
	KeyFromState    = "from_state"
	KeyToState      = "to_state"
	KeyReason       = "reason"
	KeyDurationMS   = "duration_ms"
	KeyQualityScore = "quality_score"
	KeyError        = "error"
	KeyAPIClass     = "api_class"
	KeyStepName     = "step_name"
)

// Event is one append-only audit record. The ordered sequence of
// events for a session is the source of truth for what happened.
type Event struct {
	EventID       string               `json:"event_id"`
	CorrelationID kernel.CorrelationID `json:"correlation_id"`
	SessionID     kernel.SessionID     `json:"session_id"`
	Type          EventType            `json:"type"`
	Timestamp     time.Time            `json:"timestamp"`
	Payload       map[string]any       `json:"payload,omitempty"`
	Metadata      map[string]string    `json:"metadata,omitempty"`
}

// Summary is derived purely by folding over a session's event
// sequence, so replaying the same events always reproduces it.
type Summary struct {
	SessionID             kernel.SessionID  `json:"session_id"`
	EventCounts           map[EventType]int `json:"event_counts"`
	TotalExternalCallTime time.Duration     `json:"total_external_call_time"`
	StepsCompleted        int               `json:"steps_completed"`
	FinalQualityScore     float64           `json:"final_quality_score"`
	Errors                []string          `json:"errors,omitempty"`
	LastEventAt           time.Time         `json:"last_event_at"`
}
