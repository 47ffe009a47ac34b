package qc

import "github.com/relightlabs/relight/pkg/errx"

var qcErrors = errx.NewRegistry("QC")

var (
	ErrInvalidThresholds = qcErrors.Register("INVALID_THRESHOLDS", errx.TypeValidation, 400, "Invalid QC thresholds document")
	ErrUnknownMetric     = qcErrors.Register("UNKNOWN_METRIC", errx.TypeValidation, 400, "Unknown retry-condition metric")
)
