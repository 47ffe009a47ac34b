package kernel

import "context"

// ContextKey is the type used for values this module stores in a
// context.Context.
type ContextKey string

const (
	// CorrelationContextKey stores the CorrelationID for the current request
	CorrelationContextKey ContextKey = "correlation_id"

	// SessionContextKey stores the SessionID for the current job
	SessionContextKey ContextKey = "session_id"
)

// WithCorrelationID returns a context carrying the given correlation ID.
func WithCorrelationID(ctx context.Context, id CorrelationID) context.Context {
	return context.WithValue(ctx, CorrelationContextKey, id)
}

// CorrelationFromContext extracts the correlation ID, if present.
func CorrelationFromContext(ctx context.Context) (CorrelationID, bool) {
	id, ok := ctx.Value(CorrelationContextKey).(CorrelationID)
	return id, ok && !id.IsEmpty()
}

// WithSessionID returns a context carrying the given session ID.
func WithSessionID(ctx context.Context, id SessionID) context.Context {
	return context.WithValue(ctx, SessionContextKey, id)
}

// SessionFromContext extracts the session ID, if present.
func SessionFromContext(ctx context.Context) (SessionID, bool) {
	id, ok := ctx.Value(SessionContextKey).(SessionID)
	return id, ok && !id.IsEmpty()
}
