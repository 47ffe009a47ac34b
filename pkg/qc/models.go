package qc

// Action is the quality-control verdict for a validation result.
type Action string

const (
	ActionApprove Action = "APPROVE"
	ActionRetry   Action = "RETRY"
	ActionReject  Action = "REJECT"
)

// Severity of a reported validation issue.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
	SeverityBlocker  Severity = "blocker"
)

// Issue is a single defect the validation stage reported.
type Issue struct {
	Type        string   `json:"type"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description,omitempty"`
}

// SubScores are the named per-dimension scores (0-100) the validation
// stage produces alongside the overall score.
type SubScores struct {
	Preservation  float64 `json:"preservation"`
	DefectRemoval float64 `json:"defect_removal"`
	Naturalness   float64 `json:"naturalness"`
	Enhancement   float64 `json:"enhancement"`
}

// ValidationResult is the validation stage's full output.
type ValidationResult struct {
	OverallScore float64   `json:"overall_score"`
	SubScores    SubScores `json:"sub_scores"`
	Issues       []Issue   `json:"issues,omitempty"`
}

// Decision is the engine's structured verdict.
type Decision struct {
	Action       Action   `json:"action"`
	Confidence   float64  `json:"confidence"`
	Reason       string   `json:"reason"`
	RetryReasons []string `json:"retry_reasons,omitempty"`
	QualityScore float64  `json:"quality_score"`

	CurrentAttempt int `json:"current_attempt"`
	MaxAttempts    int `json:"max_attempts"`
}

// Reason constants for non-retry verdicts.
const (
	ReasonMaxRetriesExceeded = "max_retries_exceeded"
	ReasonScoreAcceptable    = "score_acceptable"
	ReasonScoreTooLow        = "score_too_low"
	ReasonBlockingIssue      = "blocking_issue"
	ReasonNoRetryConditions  = "no_retry_conditions"
	ReasonRetryable          = "retry_conditions_met"
)
