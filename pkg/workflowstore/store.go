package workflowstore

import "context"

// Store is the write-only datastore port. Implementations must be
// safe for concurrent use; the pipeline writes from many jobs at once.
type Store interface {
	// UpsertRun creates or refreshes the run row keyed by Run.ID.
	UpsertRun(ctx context.Context, run Run) error

	// RecordStep creates or refreshes a step row keyed by
	// (RunID, StepNumber).
	RecordStep(ctx context.Context, step RunStep) error

	// LinkImage attaches an image reference to a run.
	LinkImage(ctx context.Context, image RunImage) error
}

// Noop discards all writes. It backs tests and datastore-less runs.
type Noop struct{}

func NewNoop() Noop { return Noop{} }

func (Noop) UpsertRun(context.Context, Run) error      { return nil }
func (Noop) RecordStep(context.Context, RunStep) error { return nil }
func (Noop) LinkImage(context.Context, RunImage) error { return nil }
