package imaging

import (
	"net/http"

	"github.com/relightlabs/relight/pkg/errx"
)

var errorRegistry = errx.NewRegistry("IMAGING")

var (
	ErrEmptyPrompt = errorRegistry.Register(
		"EMPTY_PROMPT",
		errx.TypeValidation,
		http.StatusBadRequest,
		"Stage prompt cannot be empty",
	)

	ErrNoImage = errorRegistry.Register(
		"NO_IMAGE",
		errx.TypeValidation,
		http.StatusBadRequest,
		"Request carries neither image bytes nor an image reference",
	)

	ErrEmptyResponse = errorRegistry.Register(
		"EMPTY_RESPONSE",
		errx.TypeExternal,
		http.StatusBadGateway,
		"Image service returned no usable content",
	)
)

// ValidateRequest applies the checks every provider shares.
func ValidateRequest(req Request) error {
	if req.StagePrompt == "" {
		return errorRegistry.New(ErrEmptyPrompt)
	}
	if len(req.ImageBytes) == 0 && req.ImageRef == "" {
		return errorRegistry.New(ErrNoImage)
	}
	return nil
}

// NewEmptyResponse reports a response with nothing to hand back.
func NewEmptyResponse() *errx.Error {
	return errorRegistry.New(ErrEmptyResponse)
}
