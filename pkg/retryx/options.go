package retryx

import "math/rand"

// Options configures the retry manager.
type Options struct {
	// MaxRetries is the per-session retry budget.
	MaxRetries int

	// StepCountThreshold is the plan length above which a conservative
	// adjustment may drop the least-critical step.
	StepCountThreshold int

	// DuplicateCap bounds how many defect-removal passes a plan may
	// accumulate through retries.
	DuplicateCap int

	// ConservativeTemperature is the fixed temperature forced on the
	// final attempt.
	ConservativeTemperature float64

	// Rand is the jitter source. Tests inject a seeded one.
	Rand *rand.Rand
}

func defaultOptions() Options {
	return Options{
		MaxRetries:              3,
		StepCountThreshold:      4,
		DuplicateCap:            3,
		ConservativeTemperature: 0.2,
	}
}

// Option is a functional option for the manager.
type Option func(*Options)

// WithMaxRetries sets the retry budget.
func WithMaxRetries(n int) Option {
	return func(o *Options) {
		if n >= 0 {
			o.MaxRetries = n
		}
	}
}

// WithStepCountThreshold sets the plan length above which steps may be dropped.
func WithStepCountThreshold(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.StepCountThreshold = n
		}
	}
}

// WithConservativeTemperature sets the final-attempt temperature.
func WithConservativeTemperature(t float64) Option {
	return func(o *Options) {
		if t > 0 {
			o.ConservativeTemperature = t
		}
	}
}

// WithRand injects a deterministic jitter source.
func WithRand(r *rand.Rand) Option {
	return func(o *Options) {
		o.Rand = r
	}
}
