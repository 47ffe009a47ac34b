package ratex

import "time"

// Class identifies one external-API budget. All jobs share the budget
// of a class.
type Class string

const (
	// ClassGeneration covers analysis/edit/validation calls to the
	// image-processing service.
	ClassGeneration Class = "generation"

	// ClassLargeFile covers image uploads and downloads.
	ClassLargeFile Class = "large-file"

	// ClassBatch covers bulk/background calls.
	ClassBatch Class = "batch"
)

// Config is the per-class rate budget configuration.
type Config struct {
	// RequestsPerWindow and Window define the fixed admission budget.
	RequestsPerWindow int
	Window            time.Duration

	// BaseDelay is the baseline pacing delay. The adaptive delay decays
	// toward it and never below it. Zero means no pacing when healthy.
	BaseDelay time.Duration

	// MaxDelay caps the adaptive delay.
	MaxDelay time.Duration

	// MinDelay floors any non-zero applied delay so jitter cannot
	// produce zero-wait bursts.
	MinDelay time.Duration

	// JitterFraction is the symmetric jitter applied to a non-zero
	// delay: applied = base +/- base*JitterFraction.
	JitterFraction float64

	// SampleSize is the rolling outcome window for the adaptive delay.
	SampleSize int

	// HighErrorRate raises the delay; LowErrorRate lets it decay.
	HighErrorRate float64
	LowErrorRate  float64

	// BackoffFactor multiplies the delay on a high error rate;
	// DecayFactor divides it on a low one.
	BackoffFactor float64
	DecayFactor   float64

	// EscalationThreshold is the consecutive-failure count that
	// triggers an immediate exponential bump.
	EscalationThreshold int

	// MaxAttempts caps retries inside Do/Execute.
	MaxAttempts int

	// RetryBaseDelay seeds the between-attempt backoff in Do/Execute.
	RetryBaseDelay time.Duration

	// RateLimitMultiplier and TimeoutMultiplier scale the retry backoff
	// for those transient categories.
	RateLimitMultiplier float64
	TimeoutMultiplier   float64
}

// DefaultConfig returns the default per-class budget.
func DefaultConfig() Config {
	return Config{
		RequestsPerWindow:   30,
		Window:              time.Minute,
		BaseDelay:           0,
		MaxDelay:            30 * time.Second,
		MinDelay:            100 * time.Millisecond,
		JitterFraction:      0.25,
		SampleSize:          20,
		HighErrorRate:       0.30,
		LowErrorRate:        0.10,
		BackoffFactor:       1.5,
		DecayFactor:         1.1,
		EscalationThreshold: 3,
		MaxAttempts:         3,
		RetryBaseDelay:      250 * time.Millisecond,
		RateLimitMultiplier: 2.0,
		TimeoutMultiplier:   1.5,
	}
}

// normalize fills zero values with defaults so partially-specified
// configurations stay usable.
func (c Config) normalize() Config {
	d := DefaultConfig()
	if c.RequestsPerWindow <= 0 {
		c.RequestsPerWindow = d.RequestsPerWindow
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.MinDelay <= 0 {
		c.MinDelay = d.MinDelay
	}
	if c.JitterFraction <= 0 {
		c.JitterFraction = d.JitterFraction
	}
	if c.SampleSize <= 0 {
		c.SampleSize = d.SampleSize
	}
	if c.HighErrorRate <= 0 {
		c.HighErrorRate = d.HighErrorRate
	}
	if c.LowErrorRate <= 0 {
		c.LowErrorRate = d.LowErrorRate
	}
	if c.BackoffFactor <= 1 {
		c.BackoffFactor = d.BackoffFactor
	}
	if c.DecayFactor <= 1 {
		c.DecayFactor = d.DecayFactor
	}
	if c.EscalationThreshold <= 0 {
		c.EscalationThreshold = d.EscalationThreshold
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = d.RetryBaseDelay
	}
	if c.RateLimitMultiplier <= 0 {
		c.RateLimitMultiplier = d.RateLimitMultiplier
	}
	if c.TimeoutMultiplier <= 0 {
		c.TimeoutMultiplier = d.TimeoutMultiplier
	}
	return c
}
