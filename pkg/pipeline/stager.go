package pipeline

import (
	"context"
	"time"

	"github.com/relightlabs/relight/pkg/plan"
	"github.com/relightlabs/relight/pkg/qc"
)

// Analysis is the analyze stage's structured output.
type Analysis struct {
	Summary          string   `json:"summary"`
	DetectedDefects  []string `json:"detected_defects,omitempty"`
	RecommendedModel string   `json:"recommended_model,omitempty"`
}

// EditResult is the editing stage's output.
type EditResult struct {
	OutputRef   string        `json:"output_ref"`
	OutputBytes []byte        `json:"-"`
	TokensUsed  int           `json:"tokens_used"`
	Latency     time.Duration `json:"latency"`
}

// Stager executes the four delegated stages. Implementations own the
// external calls (and their rate limiting); the machine owns state,
// decisions, and audit. Jobs are passed as snapshots so a stager can
// never mutate live machine state.
type Stager interface {
	Analyze(ctx context.Context, job Job) (Analysis, error)
	BuildPlan(ctx context.Context, job Job, analysis Analysis) (plan.Plan, error)
	Edit(ctx context.Context, job Job, p plan.Plan) (EditResult, error)
	Validate(ctx context.Context, job Job, edit EditResult) (qc.ValidationResult, error)
}
