package qc

import (
	"encoding/json"
	"os"

	"github.com/relightlabs/relight/pkg/kernel"
	"github.com/relightlabs/relight/pkg/logx"
)

// RetryCondition is a named predicate over validation sub-scores. A
// condition with an empty Modes list applies to every mode.
type RetryCondition struct {
	Name   string        `json:"name"`
	Metric string        `json:"metric"` // preservation | defect_removal | naturalness | enhancement
	Cutoff float64       `json:"cutoff"`
	Modes  []kernel.Mode `json:"modes,omitempty"`
}

// AppliesTo reports whether the condition is evaluated for the mode.
func (c RetryCondition) AppliesTo(mode kernel.Mode) bool {
	if len(c.Modes) == 0 {
		return true
	}
	for _, m := range c.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// Thresholds is the QC configuration document. It is loaded once at
// startup and read-only afterwards.
type Thresholds struct {
	Version int `json:"version"`

	MinimumAcceptableScore    float64 `json:"minimum_acceptable_score"`
	GoodQualityThreshold      float64 `json:"good_quality_threshold"`
	ExcellentQualityThreshold float64 `json:"excellent_quality_threshold"`

	// RetryFloorScore is the hard floor below which a result is never
	// retried. The value has no documented derivation upstream, so it
	// stays a parameter rather than a constant.
	RetryFloorScore float64 `json:"retry_floor_score"`

	MaxRetries int `json:"max_retries"`

	BlockingIssueTypes []string         `json:"blocking_issue_types"`
	RetryConditions    []RetryCondition `json:"retry_conditions"`

	// RetryStrategies maps a retry-condition name to the adjustment
	// recipe applied when that condition fires.
	RetryStrategies map[string]string `json:"retry_strategies"`
}

// DefaultThresholds returns the built-in threshold set used when no
// document is configured or the configured one cannot be loaded.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Version:                   1,
		MinimumAcceptableScore:    70,
		GoodQualityThreshold:      85,
		ExcellentQualityThreshold: 93,
		RetryFloorScore:           55,
		MaxRetries:                3,
		BlockingIssueTypes: []string{
			"identity_distortion",
			"historical_inaccuracy",
			"total_detail_loss",
		},
		RetryConditions: []RetryCondition{
			{Name: "low_preservation", Metric: "preservation", Cutoff: 70,
				Modes: []kernel.Mode{kernel.ModeRestore, kernel.ModeRemake}},
			{Name: "low_defect_removal", Metric: "defect_removal", Cutoff: 65,
				Modes: []kernel.Mode{kernel.ModeRestore}},
			{Name: "low_naturalness", Metric: "naturalness", Cutoff: 65},
			{Name: "low_enhancement", Metric: "enhancement", Cutoff: 60,
				Modes: []kernel.Mode{kernel.ModeEnhance}},
		},
		RetryStrategies: map[string]string{
			"low_preservation":   "conservative_edit",
			"low_defect_removal": "targeted_defect_pass",
			"low_naturalness":    "simplify",
			"low_enhancement":    "boost_enhancement",
		},
	}
}

// LoadThresholds reads the thresholds document from path. A missing or
// invalid document falls back to DefaultThresholds; startup never
// blocks on QC configuration.
func LoadThresholds(path string, logger *logx.Logger) Thresholds {
	if path == "" {
		return DefaultThresholds()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.WithError(err).WithField("path", path).
			Warn("qc: thresholds document unreadable, using built-in defaults")
		return DefaultThresholds()
	}

	var t Thresholds
	if err := json.Unmarshal(data, &t); err != nil {
		logger.WithError(err).WithField("path", path).
			Warn("qc: thresholds document malformed, using built-in defaults")
		return DefaultThresholds()
	}

	if err := t.Validate(); err != nil {
		logger.WithError(err).WithField("path", path).
			Warn("qc: thresholds document invalid, using built-in defaults")
		return DefaultThresholds()
	}

	return t
}

// Validate checks the document for internal consistency.
func (t Thresholds) Validate() error {
	if t.MinimumAcceptableScore <= 0 || t.MinimumAcceptableScore > 100 {
		return qcErrors.New(ErrInvalidThresholds).
			WithDetail("field", "minimum_acceptable_score")
	}
	if t.RetryFloorScore < 0 || t.RetryFloorScore >= t.MinimumAcceptableScore {
		return qcErrors.New(ErrInvalidThresholds).
			WithDetail("field", "retry_floor_score")
	}
	if t.MaxRetries < 0 {
		return qcErrors.New(ErrInvalidThresholds).
			WithDetail("field", "max_retries")
	}
	for _, c := range t.RetryConditions {
		if c.Name == "" || c.Metric == "" {
			return qcErrors.New(ErrInvalidThresholds).
				WithDetail("field", "retry_conditions")
		}
	}
	return nil
}
