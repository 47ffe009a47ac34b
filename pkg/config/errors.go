package config

import "github.com/relightlabs/relight/pkg/errx"

var configErrors = errx.NewRegistry("CONFIG")

var ErrInvalid = configErrors.Register("INVALID", errx.TypeValidation, 400, "Invalid configuration")
