package jobqmem

import "github.com/relightlabs/relight/pkg/errx"

var memErrors = errx.NewRegistry("JOBQ_MEM")

var ErrNotFound = memErrors.Register("NOT_FOUND", errx.TypeNotFound, 404, "Job not found")
