package retryx_test

import (
	"math/rand"
	"testing"

	"github.com/relightlabs/relight/pkg/errx"
	"github.com/relightlabs/relight/pkg/kernel"
	"github.com/relightlabs/relight/pkg/plan"
	"github.com/relightlabs/relight/pkg/qc"
	"github.com/relightlabs/relight/pkg/retryx"
)

func testManager(opts ...retryx.Option) *retryx.Manager {
	all := append([]retryx.Option{retryx.WithRand(rand.New(rand.NewSource(42)))}, opts...)
	return retryx.NewManager(qc.DefaultThresholds(), all...)
}

func testPlan() plan.Plan {
	return plan.Plan{
		ModelID:     "image-edit-1",
		Temperature: 0.6,
		Steps: []plan.Step{
			{Number: 1, Name: "remove scratches", Type: plan.StepDefectRemoval, Criticality: 5},
			{Number: 2, Name: "restore faces", Type: plan.StepFaceRestoration, Criticality: 4},
			{Number: 3, Name: "correct colors", Type: plan.StepColorCorrection, Criticality: 3},
		},
	}
}

func lowPreservation() qc.ValidationResult {
	return qc.ValidationResult{
		OverallScore: 62,
		SubScores:    qc.SubScores{Preservation: 50, DefectRemoval: 80, Naturalness: 80, Enhancement: 80},
	}
}

func TestGenerate_FirstRetryReducesTemperature(t *testing.T) {
	m := testManager()

	adj, err := m.GenerateRetryParameters("s1", lowPreservation(), testPlan(), []string{"low_preservation"})
	if err != nil {
		t.Fatal(err)
	}

	if adj.Metadata.RetryAttempt != 1 {
		t.Fatalf("expected retry attempt 1, got %d", adj.Metadata.RetryAttempt)
	}
	if adj.Metadata.OriginalScore != 62 {
		t.Fatalf("expected original score 62, got %v", adj.Metadata.OriginalScore)
	}
	// conservative_edit (x0.7), moderate (x0.9), jitter at most +0.15.
	if adj.Plan.Temperature >= 0.6 {
		t.Fatalf("expected reduced temperature, got %v", adj.Plan.Temperature)
	}
	if !adj.Plan.Conservative {
		t.Fatal("expected conservative mode")
	}
	if _, ok := adj.ParameterChanges["temperature"]; !ok {
		t.Fatal("expected a recorded temperature change")
	}
}

func TestGenerate_DoesNotMutatePriorPlan(t *testing.T) {
	m := testManager()
	prior := testPlan()

	_, err := m.GenerateRetryParameters("s1", lowPreservation(), prior,
		[]string{"low_preservation", "low_defect_removal"})
	if err != nil {
		t.Fatal(err)
	}

	if prior.Temperature != 0.6 {
		t.Fatalf("prior plan temperature mutated: %v", prior.Temperature)
	}
	if len(prior.Steps) != 3 {
		t.Fatalf("prior plan steps mutated: %d", len(prior.Steps))
	}
	if prior.Conservative || prior.Simplified {
		t.Fatal("prior plan flags mutated")
	}
}

func TestGenerate_DefectRemovalDuplicatesStep(t *testing.T) {
	m := testManager()

	adj, err := m.GenerateRetryParameters("s1", lowPreservation(), testPlan(),
		[]string{"low_defect_removal"})
	if err != nil {
		t.Fatal(err)
	}

	if adj.Plan.CountType(plan.StepDefectRemoval) != 2 {
		t.Fatalf("expected a duplicated defect-removal step, got %d",
			adj.Plan.CountType(plan.StepDefectRemoval))
	}
	for i, s := range adj.Plan.Steps {
		if s.Number != i+1 {
			t.Fatalf("steps not renumbered: step %d has number %d", i, s.Number)
		}
	}
}

func TestGenerate_ProgressivePolicy(t *testing.T) {
	m := testManager()
	p := testPlan()

	// Attempt 1: moderate.
	adj1, err := m.GenerateRetryParameters("s1", lowPreservation(), p, []string{"low_naturalness"})
	if err != nil {
		t.Fatal(err)
	}
	if !contains(adj1.StrategicChanges, "moderate_adjustment") {
		t.Fatalf("attempt 1 should be moderate: %v", adj1.StrategicChanges)
	}

	// Attempt 2: significant + simplification.
	adj2, err := m.GenerateRetryParameters("s1", lowPreservation(), adj1.Plan, []string{"low_naturalness"})
	if err != nil {
		t.Fatal(err)
	}
	if !contains(adj2.StrategicChanges, "significant_adjustment") || !adj2.Plan.Simplified {
		t.Fatalf("attempt 2 should be significant+simplified: %v", adj2.StrategicChanges)
	}

	// Attempt 3 (final): forced conservative temperature, modulo jitter.
	adj3, err := m.GenerateRetryParameters("s1", lowPreservation(), adj2.Plan, []string{"low_naturalness"})
	if err != nil {
		t.Fatal(err)
	}
	if !contains(adj3.StrategicChanges, "conservative_approach") || !adj3.Plan.Conservative {
		t.Fatalf("attempt 3 should be conservative: %v", adj3.StrategicChanges)
	}
	if adj3.Plan.Temperature < 0.05 || adj3.Plan.Temperature > 0.35 {
		t.Fatalf("final temperature should be near the conservative value, got %v", adj3.Plan.Temperature)
	}
}

func TestGenerate_BudgetInvariant(t *testing.T) {
	m := testManager()
	p := testPlan()

	for i := range 3 {
		adj, err := m.GenerateRetryParameters("s1", lowPreservation(), p, []string{"low_naturalness"})
		if err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
		if adj.Metadata.RetryAttempt > m.MaxRetries() {
			t.Fatalf("retry attempt %d exceeds budget %d", adj.Metadata.RetryAttempt, m.MaxRetries())
		}
		p = adj.Plan
	}

	_, err := m.GenerateRetryParameters("s1", lowPreservation(), p, []string{"low_naturalness"})
	if err == nil {
		t.Fatal("expected budget exhaustion")
	}
	var e *errx.Error
	if !errx.As(err, &e) || e.Code != "RETRY_BUDGET_EXHAUSTED" {
		t.Fatalf("expected RETRY_BUDGET_EXHAUSTED, got %v", err)
	}

	if m.RetryCount("s1") != 3 {
		t.Fatalf("retry count must stay at budget, got %d", m.RetryCount("s1"))
	}
}

func TestGenerate_BudgetInvariantUnderRandomSequences(t *testing.T) {
	reasons := [][]string{
		{"low_preservation"},
		{"low_defect_removal"},
		{"low_naturalness"},
		{"low_preservation", "low_naturalness"},
	}
	rng := rand.New(rand.NewSource(7))

	for seq := range 50 {
		m := testManager()
		sid := kernel.NewSessionID()
		p := testPlan()

		for step := 0; step < 10; step++ {
			adj, err := m.GenerateRetryParameters(sid, lowPreservation(), p,
				reasons[rng.Intn(len(reasons))])
			if err != nil {
				break
			}
			if adj.Metadata.RetryAttempt > m.MaxRetries() {
				t.Fatalf("seq %d: attempt %d exceeds budget", seq, adj.Metadata.RetryAttempt)
			}
			if adj.Plan.Temperature < 0.05 || adj.Plan.Temperature > 1.0 {
				t.Fatalf("seq %d: temperature out of range: %v", seq, adj.Plan.Temperature)
			}
			p = adj.Plan
		}

		if m.RetryCount(sid) > m.MaxRetries() {
			t.Fatalf("seq %d: retry count %d exceeds budget", seq, m.RetryCount(sid))
		}
	}
}

func TestShouldAutoRetry(t *testing.T) {
	m := testManager()

	retry := qc.Decision{Action: qc.ActionRetry}
	if !m.ShouldAutoRetry("s1", retry) {
		t.Fatal("fresh session with RETRY verdict should auto-retry")
	}
	if m.ShouldAutoRetry("s1", qc.Decision{Action: qc.ActionApprove}) {
		t.Fatal("APPROVE must not auto-retry")
	}

	p := testPlan()
	for range 3 {
		adj, err := m.GenerateRetryParameters("s1", lowPreservation(), p, []string{"low_naturalness"})
		if err != nil {
			t.Fatal(err)
		}
		p = adj.Plan
	}
	if m.ShouldAutoRetry("s1", retry) {
		t.Fatal("exhausted session must not auto-retry")
	}
}

func TestForget_ReleasesBookkeeping(t *testing.T) {
	m := testManager()

	if _, err := m.GenerateRetryParameters("s1", lowPreservation(), testPlan(), []string{"low_naturalness"}); err != nil {
		t.Fatal(err)
	}
	if m.RetryCount("s1") != 1 {
		t.Fatalf("expected count 1, got %d", m.RetryCount("s1"))
	}

	m.Forget("s1")
	if m.RetryCount("s1") != 0 {
		t.Fatal("forgotten session should have zero count")
	}
}

func contains(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}
