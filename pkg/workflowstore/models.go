// Package workflowstore defines the write-only port to the external
// workflow datastore. Records are a downstream projection of the
// audit trail, written at stage boundaries and never read back for
// control-plane decisions.
package workflowstore

import (
	"time"

	"github.com/relightlabs/relight/pkg/kernel"
)

// RunStatus mirrors the job's coarse lifecycle in the datastore.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// StepStatus is the per-stage outcome.
type StepStatus string

const (
	StepStatusStarted   StepStatus = "started"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// ImageRole distinguishes the two sides of a run's image join.
type ImageRole string

const (
	ImageRoleInput  ImageRole = "input"
	ImageRoleOutput ImageRole = "output"
)

// Run is one job attempt lifecycle as projected to the datastore.
type Run struct {
	ID                kernel.JobID     `db:"id"`
	SessionID         kernel.SessionID `db:"session_id"`
	Status            RunStatus        `db:"status"`
	Mode              string           `db:"mode"`
	StartedAt         time.Time        `db:"started_at"`
	FinishedAt        *time.Time       `db:"finished_at"`
	StepsTotal        int              `db:"steps_total"`
	StepsCompleted    int              `db:"steps_completed"`
	FinalQualityScore float64          `db:"final_quality_score"`
	QCDecision        string           `db:"qc_decision"`
	Config            string           `db:"config"`
}

// RunStep is one pipeline stage execution within a run.
type RunStep struct {
	RunID       kernel.JobID `db:"run_id"`
	StepNumber  int          `db:"step_number"`
	Name        string       `db:"name"`
	Status      StepStatus   `db:"status"`
	StartedAt   time.Time    `db:"started_at"`
	FinishedAt  *time.Time   `db:"finished_at"`
	ModelID     string       `db:"model_id"`
	Temperature float64      `db:"temperature"`
	TokensUsed  int          `db:"tokens_used"`
	RetryCount  int          `db:"retry_count"`
	InputBytes  int64        `db:"input_bytes"`
	OutputBytes int64        `db:"output_bytes"`
}

// RunImage links an image reference to a run and, optionally, to the
// step that produced or consumed it.
type RunImage struct {
	RunID      kernel.JobID `db:"run_id"`
	StepNumber *int         `db:"step_number"`
	Role       ImageRole    `db:"role"`
	URL        string       `db:"url"`
	CreatedAt  time.Time    `db:"created_at"`
}
