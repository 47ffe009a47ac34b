package auditx

import "github.com/relightlabs/relight/pkg/errx"

var auditErrors = errx.NewRegistry("AUDIT")

var (
	// ErrUnknownSession indicates no events were ever recorded for the session
	ErrUnknownSession = auditErrors.Register("UNKNOWN_SESSION", errx.TypeNotFound, 404, "no audit trail for session")

	// ErrSessionFinalized indicates an append after the session's terminal transition
	ErrSessionFinalized = auditErrors.Register("SESSION_FINALIZED", errx.TypeConflict, 409, "session audit trail is finalized")
)
