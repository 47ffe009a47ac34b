package jobq

import (
	"encoding/json"
	"time"
)

// TypeRestoreRequest is the job type the restoration worker handles.
const TypeRestoreRequest = "restore_request"

// DefaultQueue is the queue restoration requests land on.
const DefaultQueue = "restore"

// RestoreRequest is the payload of a restore_request job.
type RestoreRequest struct {
	Mode     string `json:"mode"`
	InputRef string `json:"input_ref"`
}

// NewRestoreJob builds the queue job for one restoration request.
func NewRestoreJob(req RestoreRequest) (Job, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Job{}, jobqErrors.NewWithCause(ErrInvalidJob, err)
	}
	return Job{
		Type:    TypeRestoreRequest,
		Queue:   DefaultQueue,
		Payload: payload,
	}, nil
}

// DecodeRestoreRequest unpacks a restore_request payload.
func DecodeRestoreRequest(info *JobInfo) (RestoreRequest, error) {
	var req RestoreRequest
	if err := json.Unmarshal(info.Payload, &req); err != nil {
		return RestoreRequest{}, jobqErrors.NewWithCause(ErrInvalidJob, err).
			WithDetail("job_id", info.ID)
	}
	return req, nil
}

// Status represents the current state of a queued job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRetrying  Status = "retrying"
)

// Job represents a unit of work to be enqueued.
type Job struct {
	Type    string          `json:"type"`
	Queue   string          `json:"queue"`
	Payload json.RawMessage `json:"payload"`

	// MaxRetries is the maximum number of delivery attempts. Default
	// is 3. This is queue-level redelivery, unrelated to a job's QC
	// retry budget.
	MaxRetries int `json:"max_retries"`
}

// JobInfo is the full representation of a job stored in the backend.
type JobInfo struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Queue      string          `json:"queue"`
	Payload    json.RawMessage `json:"payload"`
	Status     Status          `json:"status"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	MaxRetries int             `json:"max_retries"`
	Attempts   int             `json:"attempts"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
