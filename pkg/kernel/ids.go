package kernel

import "github.com/google/uuid"

// JobID identifies one restoration job lifecycle.
type JobID string

func NewJobID() JobID           { return JobID(uuid.New().String()) }
func (id JobID) String() string { return string(id) }
func (id JobID) IsEmpty() bool  { return string(id) == "" }

// SessionID identifies one restoration session. All audit events that
// belong to the same session carry the same SessionID.
type SessionID string

func NewSessionID() SessionID       { return SessionID(uuid.New().String()) }
func (id SessionID) String() string { return string(id) }
func (id SessionID) IsEmpty() bool  { return string(id) == "" }

// CorrelationID threads every audit event belonging to one request
// through the system.
type CorrelationID string

func NewCorrelationID() CorrelationID   { return CorrelationID(uuid.New().String()) }
func (id CorrelationID) String() string { return string(id) }
func (id CorrelationID) IsEmpty() bool  { return string(id) == "" }
