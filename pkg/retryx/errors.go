package retryx

import "github.com/relightlabs/relight/pkg/errx"

var retryErrors = errx.NewRegistry("RETRY")

var (
	// ErrBudgetExhausted reports that the session has no retry budget
	// left. The manager only reports exhaustion; the QC engine is the
	// sole authority for the resulting REJECT.
	ErrBudgetExhausted = retryErrors.Register("BUDGET_EXHAUSTED", errx.TypeBusiness, 422, "Retry budget exhausted for session")

	ErrEmptyPlan = retryErrors.Register("EMPTY_PLAN", errx.TypeValidation, 400, "Cannot adjust an empty plan")
)
