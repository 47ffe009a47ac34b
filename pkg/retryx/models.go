package retryx

import (
	"github.com/relightlabs/relight/pkg/plan"
)

// Metadata records what an adjustment was generated from, so the audit
// trail can tie every executed plan back to its triggering verdict.
type Metadata struct {
	RetryAttempt  int      `json:"retry_attempt"`
	OriginalScore float64  `json:"original_score"`
	RetryReasons  []string `json:"retry_reasons"`
}

// Adjustment is the concrete parameter change set for one retry. The
// adjusted plan is a deep copy; the prior plan is never touched.
type Adjustment struct {
	Plan plan.Plan `json:"plan"`

	ParameterChanges  map[string]float64 `json:"parameter_changes"`
	PlanModifications []string           `json:"plan_modifications,omitempty"`
	StrategicChanges  []string           `json:"strategic_changes,omitempty"`

	Metadata Metadata `json:"metadata"`
}
