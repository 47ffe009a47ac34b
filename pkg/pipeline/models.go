package pipeline

import (
	"time"

	"github.com/relightlabs/relight/pkg/kernel"
	"github.com/relightlabs/relight/pkg/plan"
)

// TransitionRecord is one entry in a job's append-only history.
type TransitionRecord struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
}

// Job is one restoration attempt lifecycle. State is mutated only by
// Machine.Transition; RetryCount is synced from the retry manager's
// bookkeeping and never incremented anywhere else.
type Job struct {
	ID            kernel.JobID         `json:"id"`
	SessionID     kernel.SessionID     `json:"session_id"`
	CorrelationID kernel.CorrelationID `json:"correlation_id"`
	Mode          kernel.Mode          `json:"mode"`

	State        State              `json:"state"`
	RetryCount   int                `json:"retry_count"`
	History      []TransitionRecord `json:"history"`
	QualityScore float64            `json:"quality_score"`

	InputRef string     `json:"input_ref"`
	Plan     *plan.Plan `json:"plan,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// snapshot returns an independent copy safe to hand outside the
// machine: its history and plan cannot alias the live job's.
func (j *Job) snapshot() Job {
	out := *j
	out.History = make([]TransitionRecord, len(j.History))
	copy(out.History, j.History)
	if j.Plan != nil {
		cloned := j.Plan.Clone()
		out.Plan = &cloned
	}
	return out
}

// CreateJobParams is the accepted restoration request.
type CreateJobParams struct {
	Mode     kernel.Mode
	InputRef string
}
