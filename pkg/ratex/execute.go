package ratex

import (
	"context"
	"time"

	"github.com/relightlabs/relight/pkg/logx"
)

// Do wraps a call with the class's budget: wait for admission, invoke,
// record the outcome, and retry transient failures up to the attempt
// cap with category-scaled backoff. Permanent failures return
// immediately; they are not the limiter's to absorb.
func (l *Limiter) Do(ctx context.Context, class Class, fn func(context.Context) error) error {
	b := l.budget(class)
	cfg := b.cfg

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := l.Wait(ctx, class); err != nil {
			return err
		}

		err := fn(ctx)
		l.Record(class, err == nil)
		if err == nil {
			return nil
		}
		lastErr = err

		cat := Categorize(err)
		if cat == CategoryPermanent {
			return err
		}

		if l.logger != nil {
			l.logger.WithError(err).WithFields(logx.Fields{
				"api_class": string(class),
				"attempt":   attempt + 1,
				"category":  string(cat),
			}).Warn("ratex: call failed")
		}

		if attempt < cfg.MaxAttempts-1 {
			backoff := time.Duration(float64(cfg.RetryBaseDelay<<attempt) * cfg.retryMultiplier(cat))
			if err := sleepCtx(ctx, backoff); err != nil {
				return err
			}
		}
	}
	return lastErr
}

// Execute runs fn under the class's budget and returns its value.
func Execute[T any](ctx context.Context, l *Limiter, class Class, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := l.Do(ctx, class, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
