package imgopenai

import (
	"net/http"
	"strings"

	"github.com/relightlabs/relight/pkg/errx"
)

var (
	errorRegistry = errx.NewRegistry("OPENAI")

	ErrAPIRequest = errorRegistry.Register(
		"API_REQUEST_FAILED",
		errx.TypeExternal,
		http.StatusBadGateway,
		"Failed to make request to OpenAI API",
	)

	ErrAPIUnauthorized = errorRegistry.Register(
		"API_UNAUTHORIZED",
		errx.TypeAuthorization,
		http.StatusUnauthorized,
		"Invalid or missing OpenAI API key",
	)

	ErrAPIRateLimit = errorRegistry.Register(
		"API_RATE_LIMIT",
		errx.TypeExternal,
		http.StatusTooManyRequests,
		"OpenAI API rate limit exceeded",
	)

	ErrAPIQuotaExceeded = errorRegistry.Register(
		"API_QUOTA_EXCEEDED",
		errx.TypeExternal,
		http.StatusForbidden,
		"OpenAI API quota exceeded",
	)

	ErrModelNotFound = errorRegistry.Register(
		"MODEL_NOT_FOUND",
		errx.TypeValidation,
		http.StatusNotFound,
		"Requested model not found or not accessible",
	)

	ErrImageBytesRequired = errorRegistry.Register(
		"IMAGE_BYTES_REQUIRED",
		errx.TypeValidation,
		http.StatusBadRequest,
		"Image edits require image bytes or a fetchable reference",
	)

	ErrImageFetchFailed = errorRegistry.Register(
		"IMAGE_FETCH_FAILED",
		errx.TypeExternal,
		http.StatusBadGateway,
		"Failed to fetch the referenced input image",
	)

	ErrUnsupportedImageRef = errorRegistry.Register(
		"UNSUPPORTED_IMAGE_REF",
		errx.TypeValidation,
		http.StatusBadRequest,
		"Image reference scheme is not fetchable",
	)

	ErrInvalidImagePayload = errorRegistry.Register(
		"INVALID_IMAGE_PAYLOAD",
		errx.TypeExternal,
		http.StatusBadGateway,
		"Images API response carried no decodable image",
	)

	ErrMissingAPIKey = errorRegistry.Register(
		"MISSING_API_KEY",
		errx.TypeValidation,
		http.StatusBadRequest,
		"OpenAI API key not provided",
	)
)

// ParseOpenAIError maps an OpenAI SDK error to an errx.Error
func ParseOpenAIError(err error) *errx.Error {
	if err == nil {
		return nil
	}

	var customErr *errx.Error
	if errx.As(err, &customErr) {
		return customErr
	}

	errLower := strings.ToLower(err.Error())

	var baseErr *errx.ErrorCode
	switch {
	case strings.Contains(errLower, "unauthorized") ||
		strings.Contains(errLower, "invalid api key") ||
		strings.Contains(errLower, "incorrect api key"):
		baseErr = ErrAPIUnauthorized
	case strings.Contains(errLower, "rate limit") || strings.Contains(errLower, "rate_limit"):
		baseErr = ErrAPIRateLimit
	case strings.Contains(errLower, "quota") || strings.Contains(errLower, "insufficient_quota"):
		baseErr = ErrAPIQuotaExceeded
	case strings.Contains(errLower, "model") && strings.Contains(errLower, "not found"):
		baseErr = ErrModelNotFound
	default:
		baseErr = ErrAPIRequest
	}

	return errorRegistry.NewWithCause(baseErr, err)
}

// WrapError wraps a standard error with an OpenAI error code
func WrapError(err error, code *errx.ErrorCode) *errx.Error {
	if err == nil {
		return nil
	}

	var customErr *errx.Error
	if errx.As(err, &customErr) {
		return customErr
	}

	return errorRegistry.NewWithCause(code, err)
}
