package pipeline

import "github.com/relightlabs/relight/pkg/errx"

var pipelineErrors = errx.NewRegistry("PIPELINE")

var (
	// ErrInvalidTransition indicates the target state is not reachable
	// from the job's current state; the state is left unchanged
	ErrInvalidTransition = pipelineErrors.Register("INVALID_TRANSITION", errx.TypeConflict, 409, "transition not permitted from current state")

	// ErrJobNotFound indicates the job ID is unknown or already evicted
	ErrJobNotFound = pipelineErrors.Register("JOB_NOT_FOUND", errx.TypeNotFound, 404, "job not found")

	// ErrJobTerminal indicates an operation on a job that already finished
	ErrJobTerminal = pipelineErrors.Register("JOB_TERMINAL", errx.TypeConflict, 409, "job is in a terminal state")
)
