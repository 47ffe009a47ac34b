package qc_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/relightlabs/relight/pkg/kernel"
	"github.com/relightlabs/relight/pkg/logx"
	"github.com/relightlabs/relight/pkg/qc"
)

func testEngine() *qc.Engine {
	return qc.NewEngine(qc.DefaultThresholds())
}

func result(score float64, sub qc.SubScores, issues ...qc.Issue) qc.ValidationResult {
	return qc.ValidationResult{OverallScore: score, SubScores: sub, Issues: issues}
}

func goodSubScores() qc.SubScores {
	return qc.SubScores{Preservation: 90, DefectRemoval: 90, Naturalness: 90, Enhancement: 90}
}

func TestDecide_HighScoreApproves(t *testing.T) {
	e := testEngine()

	d := e.Decide("s1", result(85, goodSubScores()),
		qc.DecideContext{Mode: kernel.ModeRestore, RetryCount: 0})

	if d.Action != qc.ActionApprove {
		t.Fatalf("expected APPROVE, got %s (reason=%s)", d.Action, d.Reason)
	}
	if d.QualityScore != 85 {
		t.Fatalf("expected quality score 85, got %v", d.QualityScore)
	}
}

func TestDecide_RetryableScoreWithFiredCondition(t *testing.T) {
	e := testEngine()

	sub := goodSubScores()
	sub.Preservation = 50 // fires low_preservation

	d := e.Decide("s1", result(62, sub),
		qc.DecideContext{Mode: kernel.ModeRestore, RetryCount: 0})

	if d.Action != qc.ActionRetry {
		t.Fatalf("expected RETRY, got %s (reason=%s)", d.Action, d.Reason)
	}
	if len(d.RetryReasons) != 1 || d.RetryReasons[0] != "low_preservation" {
		t.Fatalf("expected [low_preservation], got %v", d.RetryReasons)
	}
}

func TestDecide_ScoreBelowFloorRejects(t *testing.T) {
	e := testEngine()

	sub := goodSubScores()
	sub.Preservation = 10

	d := e.Decide("s1", result(40, sub),
		qc.DecideContext{Mode: kernel.ModeRestore, RetryCount: 0})

	if d.Action != qc.ActionReject {
		t.Fatalf("expected REJECT, got %s", d.Action)
	}
	if d.Reason != qc.ReasonScoreTooLow {
		t.Fatalf("expected reason score_too_low, got %s", d.Reason)
	}
}

func TestDecide_BudgetExhaustedRejectsRegardlessOfScore(t *testing.T) {
	e := testEngine()

	d := e.Decide("s1", result(65, goodSubScores()),
		qc.DecideContext{Mode: kernel.ModeRestore, RetryCount: 3})

	if d.Action != qc.ActionReject {
		t.Fatalf("expected REJECT, got %s", d.Action)
	}
	if d.Reason != qc.ReasonMaxRetriesExceeded {
		t.Fatalf("expected reason max_retries_exceeded, got %s", d.Reason)
	}

	// Exhaustion dominates even a passing score.
	d = e.Decide("s1", result(95, goodSubScores()),
		qc.DecideContext{Mode: kernel.ModeRestore, RetryCount: 3})
	if d.Reason != qc.ReasonMaxRetriesExceeded {
		t.Fatalf("exhaustion should dominate approval, got %s", d.Reason)
	}
}

func TestDecide_BlockingIssueRejectsInRetryBand(t *testing.T) {
	e := testEngine()

	sub := goodSubScores()
	sub.Preservation = 40 // would otherwise retry

	d := e.Decide("s1", result(62, sub,
		qc.Issue{Type: "identity_distortion", Severity: qc.SeverityCritical}),
		qc.DecideContext{Mode: kernel.ModeRestore, RetryCount: 0})

	if d.Action != qc.ActionReject {
		t.Fatalf("expected REJECT, got %s", d.Action)
	}
	if d.Reason != qc.ReasonBlockingIssue {
		t.Fatalf("expected reason blocking_issue, got %s", d.Reason)
	}
}

func TestDecide_BlockingIssueRequiresSeverity(t *testing.T) {
	e := testEngine()

	sub := goodSubScores()
	sub.Preservation = 40

	// A minor issue of a blocking type does not block.
	d := e.Decide("s1", result(62, sub,
		qc.Issue{Type: "identity_distortion", Severity: qc.SeverityMinor}),
		qc.DecideContext{Mode: kernel.ModeRestore, RetryCount: 0})

	if d.Action != qc.ActionRetry {
		t.Fatalf("expected RETRY, got %s (reason=%s)", d.Action, d.Reason)
	}
}

func TestDecide_NoFiredConditionsRejects(t *testing.T) {
	e := testEngine()

	// Retryable band, but every sub-score is fine: vague low scores do
	// not earn a retry.
	d := e.Decide("s1", result(62, goodSubScores()),
		qc.DecideContext{Mode: kernel.ModeRestore, RetryCount: 0})

	if d.Action != qc.ActionReject {
		t.Fatalf("expected REJECT, got %s", d.Action)
	}
	if d.Reason != qc.ReasonNoRetryConditions {
		t.Fatalf("expected reason no_retry_conditions, got %s", d.Reason)
	}
}

func TestDecide_ModeSpecificConditions(t *testing.T) {
	e := testEngine()

	sub := goodSubScores()
	sub.DefectRemoval = 30 // low_defect_removal applies to RESTORE only

	d := e.Decide("s1", result(62, sub),
		qc.DecideContext{Mode: kernel.ModeEnhance, RetryCount: 0})
	if d.Action != qc.ActionReject {
		t.Fatalf("ENHANCE should not fire defect-removal condition, got %s", d.Action)
	}

	d = e.Decide("s1", result(62, sub),
		qc.DecideContext{Mode: kernel.ModeRestore, RetryCount: 0})
	if d.Action != qc.ActionRetry {
		t.Fatalf("RESTORE should fire defect-removal condition, got %s", d.Action)
	}
}

func TestLoadThresholds_FallbackOnMissingAndMalformed(t *testing.T) {
	logger := logx.NewLogger(&logx.Config{Level: logx.LevelOff})

	got := qc.LoadThresholds(filepath.Join(t.TempDir(), "absent.json"), logger)
	if got.MinimumAcceptableScore != qc.DefaultThresholds().MinimumAcceptableScore {
		t.Fatal("missing document should fall back to defaults")
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	got = qc.LoadThresholds(bad, logger)
	if got.RetryFloorScore != qc.DefaultThresholds().RetryFloorScore {
		t.Fatal("malformed document should fall back to defaults")
	}

	// Structurally valid JSON that fails validation also falls back.
	invalid := filepath.Join(t.TempDir(), "invalid.json")
	if err := os.WriteFile(invalid, []byte(`{"minimum_acceptable_score": -5}`), 0o644); err != nil {
		t.Fatal(err)
	}
	got = qc.LoadThresholds(invalid, logger)
	if got.MaxRetries != qc.DefaultThresholds().MaxRetries {
		t.Fatal("invalid document should fall back to defaults")
	}
}

func TestLoadThresholds_ValidDocument(t *testing.T) {
	logger := logx.NewLogger(&logx.Config{Level: logx.LevelOff})

	path := filepath.Join(t.TempDir(), "thresholds.json")
	doc := `{
		"version": 2,
		"minimum_acceptable_score": 80,
		"good_quality_threshold": 88,
		"excellent_quality_threshold": 95,
		"retry_floor_score": 60,
		"max_retries": 2,
		"blocking_issue_types": ["identity_distortion"],
		"retry_conditions": [
			{"name": "low_naturalness", "metric": "naturalness", "cutoff": 70}
		],
		"retry_strategies": {"low_naturalness": "simplify"}
	}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	got := qc.LoadThresholds(path, logger)
	if got.MinimumAcceptableScore != 80 || got.MaxRetries != 2 {
		t.Fatalf("document not honored: %+v", got)
	}
}
