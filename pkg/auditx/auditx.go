// Package auditx records the ordered, correlation-keyed event trail
// for every restoration session and derives session summaries from it.
package auditx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/relightlabs/relight/pkg/kernel"
	"github.com/relightlabs/relight/pkg/logx"
)

// Log is the audit component. Events are appended per session in the
// order their causing operations complete; a per-session mutex keeps
// that order stable under concurrent writers from different stages.
type Log struct {
	mu       sync.Mutex
	sessions map[kernel.SessionID]*sessionLog

	// retained holds summaries of evicted sessions, bounded so a
	// long-running worker never grows without limit.
	retained *lru.Cache[kernel.SessionID, Summary]

	logger *logx.Logger
	now    func() time.Time
}

type sessionLog struct {
	mu        sync.Mutex
	events    []Event
	finalized bool
	summary   Summary
}

// New builds an audit log retaining up to retainedSummaries summaries
// for sessions whose event trails have been evicted.
func New(retainedSummaries int, logger *logx.Logger) (*Log, error) {
	cache, err := lru.New[kernel.SessionID, Summary](retainedSummaries)
	if err != nil {
		return nil, fmt.Errorf("audit summary cache: %w", err)
	}
	return &Log{
		sessions: make(map[kernel.SessionID]*sessionLog),
		retained: cache,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Record appends one event to the session's trail. The correlation ID
// is taken from ctx when present. Recording against a finalized
// session fails with ErrSessionFinalized.
func (l *Log) Record(ctx context.Context, sessionID kernel.SessionID, eventType EventType, payload map[string]any, metadata map[string]string) error {
	s := l.session(sessionID)

	correlationID, _ := kernel.CorrelationFromContext(ctx)
	ev := Event{
		EventID:       uuid.New().String(),
		CorrelationID: correlationID,
		SessionID:     sessionID,
		Type:          eventType,
		Timestamp:     l.now(),
		Payload:       payload,
		Metadata:      metadata,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return auditErrors.New(ErrSessionFinalized).
			WithDetail("session_id", sessionID.String()).
			WithDetail("event_type", string(eventType))
	}
	s.events = append(s.events, ev)

	l.logger.WithFields(logx.Fields{
		"audit_event":    string(eventType),
		"session_id":     sessionID,
		"correlation_id": correlationID,
		"event_id":       ev.EventID,
	}).Debug("Audit: event recorded")
	return nil
}

// Events returns a copy of the session's trail in append order.
func (l *Log) Events(sessionID kernel.SessionID) ([]Event, error) {
	l.mu.Lock()
	s, ok := l.sessions[sessionID]
	l.mu.Unlock()
	if !ok {
		return nil, auditErrors.New(ErrUnknownSession).WithDetail("session_id", sessionID.String())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out, nil
}

// FinalizeSession folds the session's event sequence into a Summary
// and closes the trail to further appends. Finalizing twice returns
// the identical summary: nothing in it depends on when the fold ran.
func (l *Log) FinalizeSession(sessionID kernel.SessionID) (Summary, error) {
	l.mu.Lock()
	s, ok := l.sessions[sessionID]
	l.mu.Unlock()
	if !ok {
		return Summary{}, auditErrors.New(ErrUnknownSession).WithDetail("session_id", sessionID.String())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return s.summary, nil
	}
	s.summary = foldSummary(sessionID, s.events)
	s.finalized = true

	l.logger.WithFields(logx.Fields{
		"audit_event":     string(EventSessionFinalized),
		"session_id":      sessionID,
		"events":          len(s.events),
		"steps_completed": s.summary.StepsCompleted,
		"quality_score":   s.summary.FinalQualityScore,
	}).Info("Audit: session finalized")
	return s.summary, nil
}

// EvictSession drops the session's event trail and retains only its
// summary in the bounded cache. Sessions that were never finalized
// are finalized first so the summary survives eviction.
func (l *Log) EvictSession(sessionID kernel.SessionID) error {
	summary, err := l.FinalizeSession(sessionID)
	if err != nil {
		return err
	}

	l.mu.Lock()
	delete(l.sessions, sessionID)
	l.mu.Unlock()

	l.retained.Add(sessionID, summary)
	return nil
}

// SessionSummary returns the summary for a finalized session, whether
// its trail is still live or already evicted.
func (l *Log) SessionSummary(sessionID kernel.SessionID) (Summary, bool) {
	l.mu.Lock()
	s, ok := l.sessions[sessionID]
	l.mu.Unlock()
	if ok {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.finalized {
			return s.summary, true
		}
		return Summary{}, false
	}
	return l.retained.Get(sessionID)
}

// Replay recomputes a summary from an externally held event sequence.
// It exists so a summary can always be rebuilt from the raw trail.
func Replay(sessionID kernel.SessionID, events []Event) Summary {
	return foldSummary(sessionID, events)
}

func (l *Log) session(sessionID kernel.SessionID) *sessionLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sessions[sessionID]
	if !ok {
		s = &sessionLog{}
		l.sessions[sessionID] = s
	}
	return s
}

// foldSummary derives the summary from the event sequence alone. It
// must stay a pure function of its inputs so replays are idempotent;
// in particular it never reads the clock.
func foldSummary(sessionID kernel.SessionID, events []Event) Summary {
	summary := Summary{
		SessionID:   sessionID,
		EventCounts: make(map[EventType]int, len(events)),
	}
	for _, ev := range events {
		summary.EventCounts[ev.Type]++
		summary.LastEventAt = ev.Timestamp

		switch ev.Type {
		case EventExternalCall:
			summary.TotalExternalCallTime += durationMS(ev.Payload[KeyDurationMS])
		case EventStateTransition:
			summary.StepsCompleted++
		case EventQCDecision:
			if score, ok := floatValue(ev.Payload[KeyQualityScore]); ok {
				summary.FinalQualityScore = score
			}
		case EventStageError:
			if msg, ok := ev.Payload[KeyError].(string); ok {
				summary.Errors = append(summary.Errors, msg)
			}
		}
	}
	return summary
}

func durationMS(v any) time.Duration {
	ms, ok := floatValue(v)
	if !ok {
		return 0
	}
	return time.Duration(ms * float64(time.Millisecond))
}

func floatValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case time.Duration:
		return float64(n.Milliseconds()), true
	default:
		return 0, false
	}
}
