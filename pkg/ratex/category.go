package ratex

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/relightlabs/relight/pkg/errx"
)

// Category classifies a call failure for backoff purposes.
type Category string

const (
	CategoryRateLimit Category = "rate_limit"
	CategoryTimeout   Category = "timeout"
	CategoryTransient Category = "transient"
	CategoryPermanent Category = "permanent"
)

// Categorize maps an error to a backoff category. Permanent errors are
// never retried by Do/Execute; the remaining categories scale the
// retry backoff differently.
func Categorize(err error) Category {
	if err == nil {
		return CategoryTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	// A cancelled context means the caller gave up; retrying on its
	// behalf would issue calls nobody is waiting for.
	if errors.Is(err, context.Canceled) {
		return CategoryPermanent
	}

	var e *errx.Error
	if errx.As(err, &e) {
		switch {
		case e.HTTPStatus == http.StatusTooManyRequests,
			strings.Contains(e.Code, "RATE_LIMIT"):
			return CategoryRateLimit
		case strings.Contains(e.Code, "TIMEOUT"):
			return CategoryTimeout
		case e.Type == errx.TypeValidation,
			e.Type == errx.TypeAuthorization,
			e.Type == errx.TypeNotFound,
			e.Type == errx.TypeBusiness:
			return CategoryPermanent
		case e.HTTPStatus >= 500, e.Type == errx.TypeExternal:
			return CategoryTransient
		}
	}

	return CategoryTransient
}

// retryMultiplier scales the between-attempt backoff: rate-limit
// signals back off harder than generic timeouts.
func (c Config) retryMultiplier(cat Category) float64 {
	switch cat {
	case CategoryRateLimit:
		return c.RateLimitMultiplier
	case CategoryTimeout:
		return c.TimeoutMultiplier
	default:
		return 1.0
	}
}
