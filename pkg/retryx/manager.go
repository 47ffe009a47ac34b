// Package retryx turns a RETRY verdict into concrete parameter
// adjustments and owns the per-session retry budget bookkeeping.
package retryx

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/relightlabs/relight/pkg/kernel"
	"github.com/relightlabs/relight/pkg/plan"
	"github.com/relightlabs/relight/pkg/qc"
)

// Strategy recipe names, resolved from the QC thresholds document.
const (
	StrategyConservativeEdit   = "conservative_edit"
	StrategyTargetedDefectPass = "targeted_defect_pass"
	StrategySimplify           = "simplify"
	StrategyBoostEnhancement   = "boost_enhancement"
)

// Manager computes retry adjustments. It is the only component that
// increments a session's retry count; the invariant retryCount <=
// maxRetries holds because GenerateRetryParameters refuses to increment
// past the budget.
type Manager struct {
	opts       Options
	strategies map[string]string // condition name -> recipe

	mu       sync.Mutex
	attempts map[kernel.SessionID]int
	rng      *rand.Rand
}

// NewManager creates a retry manager. The condition-to-strategy mapping
// comes from the QC thresholds document.
func NewManager(thresholds qc.Thresholds, options ...Option) *Manager {
	opts := defaultOptions()
	if thresholds.MaxRetries > 0 {
		opts.MaxRetries = thresholds.MaxRetries
	}
	for _, o := range options {
		o(&opts)
	}

	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Manager{
		opts:       opts,
		strategies: thresholds.RetryStrategies,
		attempts:   make(map[kernel.SessionID]int),
		rng:        rng,
	}
}

// MaxRetries returns the configured budget.
func (m *Manager) MaxRetries() int {
	return m.opts.MaxRetries
}

// RetryCount returns the session's current retry count.
func (m *Manager) RetryCount(sessionID kernel.SessionID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[sessionID]
}

// ShouldAutoRetry reports whether the verdict warrants an automatic
// retry and budget remains. The verdict itself stays the QC engine's.
func (m *Manager) ShouldAutoRetry(sessionID kernel.SessionID, d qc.Decision) bool {
	if d.Action != qc.ActionRetry {
		return false
	}
	return m.RetryCount(sessionID) < m.opts.MaxRetries
}

// Forget releases the session's bookkeeping once the job is terminal.
func (m *Manager) Forget(sessionID kernel.SessionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attempts, sessionID)
}

// GenerateRetryParameters produces the adjustment for the session's
// next attempt. The prior plan is cloned, never mutated. Returns
// ErrBudgetExhausted when no budget remains; it never decides REJECT.
func (m *Manager) GenerateRetryParameters(
	sessionID kernel.SessionID,
	result qc.ValidationResult,
	prior plan.Plan,
	reasons []string,
) (Adjustment, error) {
	if len(prior.Steps) == 0 {
		return Adjustment{}, retryErrors.New(ErrEmptyPlan).
			WithDetail("session_id", sessionID.String())
	}

	m.mu.Lock()
	attempt := m.attempts[sessionID]
	if attempt >= m.opts.MaxRetries {
		m.mu.Unlock()
		return Adjustment{}, retryErrors.New(ErrBudgetExhausted).
			WithDetail("session_id", sessionID.String()).
			WithDetail("max_retries", m.opts.MaxRetries)
	}
	m.attempts[sessionID] = attempt + 1
	jitter := m.jitter()
	m.mu.Unlock()

	adj := Adjustment{
		Plan:             prior.Clone(),
		ParameterChanges: map[string]float64{},
		Metadata: Metadata{
			RetryAttempt:  attempt + 1,
			OriginalScore: result.OverallScore,
			RetryReasons:  append([]string(nil), reasons...),
		},
	}

	originalTemp := adj.Plan.Temperature

	for _, reason := range reasons {
		m.applyStrategy(&adj, reason)
	}

	m.applyProgressive(&adj, attempt)

	// Jitter decorrelates retries from the failed prior attempt; the
	// final attempt's forced temperature is jittered too.
	adj.Plan.Temperature = clampTemperature(adj.Plan.Temperature + jitter)

	if adj.Plan.Temperature != originalTemp {
		adj.ParameterChanges["temperature"] = adj.Plan.Temperature
	}

	return adj, nil
}

// applyStrategy applies the named recipe for one fired retry condition.
func (m *Manager) applyStrategy(adj *Adjustment, reason string) {
	switch m.strategies[reason] {
	case StrategyConservativeEdit:
		adj.Plan.Temperature *= 0.7
		adj.Plan.Conservative = true
		adj.StrategicChanges = append(adj.StrategicChanges, "conservative_mode")
		if len(adj.Plan.Steps) > m.opts.StepCountThreshold {
			if idx := adj.Plan.LeastCriticalStep(); idx >= 0 {
				dropped := adj.Plan.Steps[idx]
				adj.Plan.Steps = append(adj.Plan.Steps[:idx], adj.Plan.Steps[idx+1:]...)
				renumber(adj.Plan.Steps)
				adj.PlanModifications = append(adj.PlanModifications,
					fmt.Sprintf("dropped_step:%s", dropped.Name))
			}
		}

	case StrategyTargetedDefectPass:
		adj.StrategicChanges = append(adj.StrategicChanges, "more_specific_prompting")
		if adj.Plan.CountType(plan.StepDefectRemoval) < m.opts.DuplicateCap {
			if idx := firstOfType(adj.Plan.Steps, plan.StepDefectRemoval); idx >= 0 {
				dup := adj.Plan.Steps[idx]
				dup.Name = dup.Name + " (focused pass)"
				adj.Plan.Steps = append(adj.Plan.Steps, dup)
				renumber(adj.Plan.Steps)
				adj.PlanModifications = append(adj.PlanModifications,
					"duplicated_defect_removal_step")
			}
		}

	case StrategySimplify:
		adj.Plan.Temperature *= 0.8
		adj.Plan.Simplified = true
		adj.StrategicChanges = append(adj.StrategicChanges, "simplify")

	case StrategyBoostEnhancement:
		adj.StrategicChanges = append(adj.StrategicChanges, "boost_enhancement")
	}
}

// applyProgressive converges toward a safe, low-variance configuration
// as the budget runs out, independent of which reasons fired.
func (m *Manager) applyProgressive(adj *Adjustment, attempt int) {
	switch {
	case attempt == 0:
		adj.Plan.Temperature *= 0.9
		adj.StrategicChanges = append(adj.StrategicChanges, "moderate_adjustment")

	case attempt == 1:
		adj.Plan.Temperature *= 0.75
		adj.Plan.Simplified = true
		adj.StrategicChanges = append(adj.StrategicChanges, "significant_adjustment")

	default: // final attempt
		adj.Plan.Temperature = m.opts.ConservativeTemperature
		adj.Plan.Conservative = true
		adj.StrategicChanges = append(adj.StrategicChanges, "conservative_approach")
	}
}

// jitter returns a bounded symmetric offset: 5-15% of the unit
// temperature range, random sign. Callers hold m.mu.
func (m *Manager) jitter() float64 {
	delta := 0.05 + m.rng.Float64()*0.10
	if m.rng.Intn(2) == 0 {
		delta = -delta
	}
	return delta
}

func clampTemperature(t float64) float64 {
	if t < 0.05 {
		return 0.05
	}
	if t > 1.0 {
		return 1.0
	}
	return t
}

func renumber(steps []plan.Step) {
	for i := range steps {
		steps[i].Number = i + 1
	}
}

func firstOfType(steps []plan.Step, t plan.StepType) int {
	for i, s := range steps {
		if s.Type == t {
			return i
		}
	}
	return -1
}
