package restorer

import "github.com/relightlabs/relight/pkg/errx"

var restorerErrors = errx.NewRegistry("RESTORER")

var (
	ErrNoOutputImage = restorerErrors.Register(
		"NO_OUTPUT_IMAGE", errx.TypeExternal, 502,
		"Edit stage produced no output image")

	// Validation output that does not parse is a permanent stage
	// error: retrying the same prompt yields the same shape.
	ErrValidationParse = restorerErrors.Register(
		"VALIDATION_PARSE", errx.TypeValidation, 400,
		"Validation output is not a parsable report")

	ErrScoreOutOfRange = restorerErrors.Register(
		"SCORE_OUT_OF_RANGE", errx.TypeValidation, 400,
		"Validation score outside the 0-100 range")
)
