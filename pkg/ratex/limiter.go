// Package ratex throttles outbound calls per external-API class. Each
// class owns one shared rate budget: fixed-window admission control,
// an adaptive delay driven by observed error rates, randomized jitter,
// and consecutive-failure escalation.
package ratex

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/relightlabs/relight/pkg/logx"
)

// Limiter owns the per-class budgets. It is the one piece of shared
// mutable state in the control plane: every window check-and-append
// runs inside the budget's critical section.
type Limiter struct {
	mu       sync.RWMutex
	budgets  map[Class]*budget
	configs  map[Class]Config
	defaults Config
	logger   *logx.Logger
}

// budget is the admission and backoff state for one API class.
type budget struct {
	mu  sync.Mutex
	cfg Config

	timestamps        []time.Time
	currentDelay      time.Duration
	outcomes          []bool
	consecutiveErrors int
	rng               *rand.Rand
}

// New creates a limiter. Classes not explicitly configured get the
// default budget on first use.
func New(defaults Config, logger *logx.Logger) *Limiter {
	return &Limiter{
		budgets:  make(map[Class]*budget),
		configs:  make(map[Class]Config),
		defaults: defaults.normalize(),
		logger:   logger,
	}
}

// Configure sets the budget for one class. Must be called before the
// class is first used.
func (l *Limiter) Configure(class Class, cfg Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.configs[class] = cfg.normalize()
}

func (l *Limiter) budget(class Class) *budget {
	l.mu.RLock()
	b, ok := l.budgets[class]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok = l.budgets[class]; ok {
		return b
	}

	cfg, ok := l.configs[class]
	if !ok {
		cfg = l.defaults
	}
	b = &budget{
		cfg:          cfg,
		currentDelay: cfg.BaseDelay,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	l.budgets[class] = b
	return b
}

// Wait blocks until the class admits a call: first the jittered
// adaptive delay, then window admission. Returns ctx.Err() if the
// context is cancelled while waiting, in which case no admission slot
// is consumed.
func (l *Limiter) Wait(ctx context.Context, class Class) error {
	b := l.budget(class)

	if d := b.appliedDelay(); d > 0 {
		if err := sleepCtx(ctx, d); err != nil {
			return err
		}
	}

	for {
		b.mu.Lock()
		now := time.Now()
		b.prune(now)
		if len(b.timestamps) < b.cfg.RequestsPerWindow {
			b.timestamps = append(b.timestamps, now)
			b.mu.Unlock()
			return nil
		}
		// Saturated: wait exactly until the oldest timestamp exits the
		// window, then re-check occupancy.
		wait := b.timestamps[0].Add(b.cfg.Window).Sub(now)
		b.mu.Unlock()

		if wait <= 0 {
			continue
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

// Record feeds one call outcome into the class's adaptive state.
func (l *Limiter) Record(class Class, success bool) {
	b := l.budget(class)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.outcomes = append(b.outcomes, success)
	if len(b.outcomes) > b.cfg.SampleSize {
		b.outcomes = b.outcomes[len(b.outcomes)-b.cfg.SampleSize:]
	}

	if success {
		b.consecutiveErrors = 0
	} else {
		b.consecutiveErrors++
	}

	rate := b.errorRate()
	switch {
	case rate > b.cfg.HighErrorRate:
		raised := time.Duration(float64(maxDuration(b.currentDelay, b.cfg.MinDelay)) * b.cfg.BackoffFactor)
		b.currentDelay = minDuration(raised, b.cfg.MaxDelay)
	case rate < b.cfg.LowErrorRate && b.currentDelay > b.cfg.BaseDelay:
		decayed := time.Duration(float64(b.currentDelay) / b.cfg.DecayFactor)
		b.currentDelay = maxDuration(decayed, b.cfg.BaseDelay)
	}
}

// CurrentDelay reports the class's adaptive delay (before jitter).
func (l *Limiter) CurrentDelay(class Class) time.Duration {
	b := l.budget(class)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentDelay
}

// WindowOccupancy reports how many timestamps sit in the class's
// current window.
func (l *Limiter) WindowOccupancy(class Class) int {
	b := l.budget(class)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune(time.Now())
	return len(b.timestamps)
}

// prune drops timestamps older than the window. Callers hold b.mu.
func (b *budget) prune(now time.Time) {
	cutoff := now.Add(-b.cfg.Window)
	i := 0
	for i < len(b.timestamps) && !b.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		b.timestamps = append(b.timestamps[:0], b.timestamps[i:]...)
	}
}

// errorRate over the rolling sample. Callers hold b.mu.
func (b *budget) errorRate() float64 {
	if len(b.outcomes) == 0 {
		return 0
	}
	failures := 0
	for _, ok := range b.outcomes {
		if !ok {
			failures++
		}
	}
	return float64(failures) / float64(len(b.outcomes))
}

// appliedDelay computes the delay for the next call: the maximum of
// the adaptive delay and the consecutive-failure escalation (the two
// are computed independently), with symmetric jitter and the MinDelay
// floor applied to any non-zero result.
func (b *budget) appliedDelay() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := b.currentDelay
	if b.consecutiveErrors >= b.cfg.EscalationThreshold {
		esc := time.Duration(float64(b.cfg.MinDelay) *
			math.Pow(b.cfg.BackoffFactor, float64(b.consecutiveErrors)))
		d = maxDuration(d, esc)
	}
	if d <= 0 {
		return 0
	}

	offset := (b.rng.Float64()*2 - 1) * b.cfg.JitterFraction
	d = time.Duration(float64(d) * (1 + offset))

	d = maxDuration(d, b.cfg.MinDelay)
	return minDuration(d, b.cfg.MaxDelay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
