// Package qc scores validation results against configured thresholds
// and produces a single APPROVE / RETRY / REJECT verdict per attempt.
package qc

import (
	"github.com/relightlabs/relight/pkg/kernel"
)

// DecideContext carries the per-job facts the engine needs beyond the
// validation result itself.
type DecideContext struct {
	Mode       kernel.Mode
	RetryCount int
}

// Engine evaluates validation results. Decide is pure computation: no
// locks, no I/O, no mutation of engine state.
type Engine struct {
	thresholds Thresholds
}

// NewEngine creates a decision engine over an immutable threshold set.
func NewEngine(thresholds Thresholds) *Engine {
	return &Engine{thresholds: thresholds}
}

// Thresholds returns the threshold set the engine was built with.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// MaxRetries returns the configured retry budget.
func (e *Engine) MaxRetries() int {
	return e.thresholds.MaxRetries
}

// Decide evaluates a validation result. The checks run in a fixed
// order that acts as a tie-break policy: budget exhaustion, then the
// approval threshold, then the hard retry floor, then blocking issues,
// and only then the retry predicates. Retryability requires both a
// retryable score band and at least one concrete fired condition.
func (e *Engine) Decide(sessionID kernel.SessionID, result ValidationResult, dctx DecideContext) Decision {
	t := e.thresholds

	d := Decision{
		QualityScore:   result.OverallScore,
		CurrentAttempt: dctx.RetryCount,
		MaxAttempts:    t.MaxRetries,
	}

	// 1. Budget exhaustion dominates everything, including a passing score,
	// so one authority owns the retry-limit outcome.
	if dctx.RetryCount >= t.MaxRetries {
		d.Action = ActionReject
		d.Reason = ReasonMaxRetriesExceeded
		d.Confidence = 1.0
		return d
	}

	// 2. Acceptable score wins.
	if result.OverallScore >= t.MinimumAcceptableScore {
		d.Action = ActionApprove
		d.Reason = ReasonScoreAcceptable
		d.Confidence = approveConfidence(result.OverallScore, t)
		return d
	}

	// 3. Hard floor: not worth another attempt.
	if result.OverallScore < t.RetryFloorScore {
		d.Action = ActionReject
		d.Reason = ReasonScoreTooLow
		d.Confidence = 0.9
		return d
	}

	// 4. Blocking issues are never retried, whatever the score band.
	if issue, ok := e.blockingIssue(result.Issues); ok {
		d.Action = ActionReject
		d.Reason = ReasonBlockingIssue
		d.RetryReasons = []string{issue.Type}
		d.Confidence = 1.0
		return d
	}

	// 5. The score band alone does not justify a retry; at least one
	// named deficiency must fire.
	reasons := e.firedConditions(result, dctx.Mode)
	if len(reasons) == 0 {
		d.Action = ActionReject
		d.Reason = ReasonNoRetryConditions
		d.Confidence = 0.7
		return d
	}

	d.Action = ActionRetry
	d.Reason = ReasonRetryable
	d.RetryReasons = reasons
	d.Confidence = 0.8
	return d
}

// blockingIssue returns the first issue that is both severe enough and
// of a type in the configured blocking set.
func (e *Engine) blockingIssue(issues []Issue) (Issue, bool) {
	for _, issue := range issues {
		if issue.Severity != SeverityCritical && issue.Severity != SeverityBlocker {
			continue
		}
		for _, blocked := range e.thresholds.BlockingIssueTypes {
			if issue.Type == blocked {
				return issue, true
			}
		}
	}
	return Issue{}, false
}

// firedConditions evaluates the mode-applicable retry predicates and
// returns the names of those that fire, in configuration order.
func (e *Engine) firedConditions(result ValidationResult, mode kernel.Mode) []string {
	var fired []string
	for _, cond := range e.thresholds.RetryConditions {
		if !cond.AppliesTo(mode) {
			continue
		}
		if metricValue(result.SubScores, cond.Metric) < cond.Cutoff {
			fired = append(fired, cond.Name)
		}
	}
	return fired
}

func metricValue(s SubScores, metric string) float64 {
	switch metric {
	case "preservation":
		return s.Preservation
	case "defect_removal":
		return s.DefectRemoval
	case "naturalness":
		return s.Naturalness
	case "enhancement":
		return s.Enhancement
	default:
		// Unknown metrics never fire; a typo in the document must not
		// trigger spurious retries.
		return 100
	}
}

// approveConfidence scales with how far above the minimum the score is.
func approveConfidence(score float64, t Thresholds) float64 {
	switch {
	case score >= t.ExcellentQualityThreshold:
		return 1.0
	case score >= t.GoodQualityThreshold:
		return 0.9
	default:
		return 0.75
	}
}
