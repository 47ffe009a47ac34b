// Package workflowpg implements the workflow datastore on PostgreSQL.
package workflowpg

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/relightlabs/relight/pkg/errx"
	"github.com/relightlabs/relight/pkg/workflowstore"
)

// PostgresStore is the PostgreSQL implementation of
// workflowstore.Store.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates a new store over an open connection pool.
func NewPostgresStore(db *sqlx.DB) workflowstore.Store {
	return &PostgresStore{db: db}
}

// UpsertRun inserts or refreshes the run row keyed by id.
func (s *PostgresStore) UpsertRun(ctx context.Context, run workflowstore.Run) error {
	query := `
		INSERT INTO runs (
			id, session_id, status, mode, started_at, finished_at,
			steps_total, steps_completed, final_quality_score, qc_decision, config
		) VALUES (
			:id, :session_id, :status, :mode, :started_at, :finished_at,
			:steps_total, :steps_completed, :final_quality_score, :qc_decision, :config
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			finished_at = EXCLUDED.finished_at,
			steps_total = EXCLUDED.steps_total,
			steps_completed = EXCLUDED.steps_completed,
			final_quality_score = EXCLUDED.final_quality_score,
			qc_decision = EXCLUDED.qc_decision,
			config = EXCLUDED.config`

	if _, err := s.db.NamedExecContext(ctx, query, run); err != nil {
		return wrapPGError(err, "failed to upsert run").
			WithDetail("run_id", run.ID)
	}
	return nil
}

// RecordStep inserts or refreshes a step row keyed by
// (run_id, step_number).
func (s *PostgresStore) RecordStep(ctx context.Context, step workflowstore.RunStep) error {
	query := `
		INSERT INTO run_steps (
			run_id, step_number, name, status, started_at, finished_at,
			model_id, temperature, tokens_used, retry_count, input_bytes, output_bytes
		) VALUES (
			:run_id, :step_number, :name, :status, :started_at, :finished_at,
			:model_id, :temperature, :tokens_used, :retry_count, :input_bytes, :output_bytes
		)
		ON CONFLICT (run_id, step_number) DO UPDATE SET
			status = EXCLUDED.status,
			finished_at = EXCLUDED.finished_at,
			model_id = EXCLUDED.model_id,
			temperature = EXCLUDED.temperature,
			tokens_used = EXCLUDED.tokens_used,
			retry_count = EXCLUDED.retry_count,
			input_bytes = EXCLUDED.input_bytes,
			output_bytes = EXCLUDED.output_bytes`

	if _, err := s.db.NamedExecContext(ctx, query, step); err != nil {
		return wrapPGError(err, "failed to record run step").
			WithDetail("run_id", step.RunID).
			WithDetail("step_number", step.StepNumber)
	}
	return nil
}

// LinkImage attaches an image reference to a run.
func (s *PostgresStore) LinkImage(ctx context.Context, image workflowstore.RunImage) error {
	query := `
		INSERT INTO run_images (run_id, step_number, role, url, created_at)
		VALUES (:run_id, :step_number, :role, :url, :created_at)`

	if _, err := s.db.NamedExecContext(ctx, query, image); err != nil {
		return wrapPGError(err, "failed to link run image").
			WithDetail("run_id", image.RunID).
			WithDetail("url", image.URL)
	}
	return nil
}

// wrapPGError keeps pq error codes readable in the error details. A
// foreign-key violation means the run row was never written, which is
// a projection-ordering bug worth surfacing distinctly.
func wrapPGError(err error, message string) *errx.Error {
	if pqErr, ok := err.(*pq.Error); ok {
		return errx.Wrap(err, message, errx.TypeInternal).
			WithDetail("pg_code", string(pqErr.Code)).
			WithDetail("pg_constraint", pqErr.Constraint)
	}
	return errx.Wrap(err, message, errx.TypeInternal)
}
