package auditx_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/relightlabs/relight/pkg/auditx"
	"github.com/relightlabs/relight/pkg/errx"
	"github.com/relightlabs/relight/pkg/kernel"
	"github.com/relightlabs/relight/pkg/logx"
)

func newTestLog(t *testing.T) *auditx.Log {
	t.Helper()
	log, err := auditx.New(8, logx.NewLogger(&logx.Config{Level: logx.LevelOff}))
	if err != nil {
		t.Fatal(err)
	}
	return log
}

func TestRecord_PreservesPerSessionOrder(t *testing.T) {
	log := newTestLog(t)
	sessionID := kernel.NewSessionID()
	ctx := kernel.WithCorrelationID(context.Background(), kernel.NewCorrelationID())

	for i := range 20 {
		err := log.Record(ctx, sessionID, auditx.EventStateTransition,
			map[string]any{"seq": i}, nil)
		if err != nil {
			t.Fatal(err)
		}
	}

	events, err := log.Events(sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 20 {
		t.Fatalf("expected 20 events, got %d", len(events))
	}
	for i, ev := range events {
		if ev.Payload["seq"] != i {
			t.Fatalf("event %d out of order: seq=%v", i, ev.Payload["seq"])
		}
		if ev.EventID == "" {
			t.Fatal("event missing ID")
		}
	}
}

func TestRecord_ConcurrentSessionsDoNotInterleave(t *testing.T) {
	log := newTestLog(t)
	ctx := context.Background()

	sessions := make([]kernel.SessionID, 5)
	for i := range sessions {
		sessions[i] = kernel.NewSessionID()
	}

	var wg sync.WaitGroup
	for _, sid := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				payload := map[string]any{"seq": i}
				if err := log.Record(ctx, sid, auditx.EventExternalCall, payload, nil); err != nil {
					t.Errorf("record: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	for _, sid := range sessions {
		events, err := log.Events(sid)
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 50 {
			t.Fatalf("session %s: expected 50 events, got %d", sid, len(events))
		}
		for i, ev := range events {
			if ev.SessionID != sid {
				t.Fatalf("foreign event in session %s", sid)
			}
			if ev.Payload["seq"] != i {
				t.Fatalf("session %s event %d out of order", sid, i)
			}
		}
	}
}

func TestFinalizeSession_SummaryFromFold(t *testing.T) {
	log := newTestLog(t)
	sessionID := kernel.NewSessionID()
	ctx := context.Background()

	record := func(eventType auditx.EventType, payload map[string]any) {
		t.Helper()
		if err := log.Record(ctx, sessionID, eventType, payload, nil); err != nil {
			t.Fatal(err)
		}
	}

	record(auditx.EventStateTransition, map[string]any{auditx.KeyToState: "ANALYZING"})
	record(auditx.EventExternalCall, map[string]any{auditx.KeyDurationMS: 1200.0})
	record(auditx.EventStateTransition, map[string]any{auditx.KeyToState: "PLANNING"})
	record(auditx.EventExternalCall, map[string]any{auditx.KeyDurationMS: 800})
	record(auditx.EventQCDecision, map[string]any{auditx.KeyQualityScore: 72.5})
	record(auditx.EventQCDecision, map[string]any{auditx.KeyQualityScore: 88.0})
	record(auditx.EventStageError, map[string]any{auditx.KeyError: "editing timed out"})

	summary, err := log.FinalizeSession(sessionID)
	if err != nil {
		t.Fatal(err)
	}

	if summary.StepsCompleted != 2 {
		t.Errorf("expected 2 steps completed, got %d", summary.StepsCompleted)
	}
	if summary.TotalExternalCallTime != 2*time.Second {
		t.Errorf("expected 2s external call time, got %v", summary.TotalExternalCallTime)
	}
	if summary.FinalQualityScore != 88.0 {
		t.Errorf("expected final score 88, got %v", summary.FinalQualityScore)
	}
	if summary.EventCounts[auditx.EventQCDecision] != 2 {
		t.Errorf("expected 2 qc decisions counted, got %d", summary.EventCounts[auditx.EventQCDecision])
	}
	if len(summary.Errors) != 1 || summary.Errors[0] != "editing timed out" {
		t.Errorf("unexpected errors: %v", summary.Errors)
	}
}

func TestFinalizeSession_Idempotent(t *testing.T) {
	log := newTestLog(t)
	sessionID := kernel.NewSessionID()
	ctx := context.Background()

	for i := range 5 {
		payload := map[string]any{auditx.KeyDurationMS: 100 * (i + 1)}
		if err := log.Record(ctx, sessionID, auditx.EventExternalCall, payload, nil); err != nil {
			t.Fatal(err)
		}
	}

	first, err := log.FinalizeSession(sessionID)
	if err != nil {
		t.Fatal(err)
	}
	second, err := log.FinalizeSession(sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("finalize not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
	}

	// The summary must also be reproducible from the raw trail alone.
	events, err := log.Events(sessionID)
	if err != nil {
		t.Fatal(err)
	}
	replayed := auditx.Replay(sessionID, events)
	if !reflect.DeepEqual(first, replayed) {
		t.Fatalf("replay diverged from finalize:\nfinalize: %+v\nreplay:   %+v", first, replayed)
	}
}

func TestRecord_AfterFinalizeRejected(t *testing.T) {
	log := newTestLog(t)
	sessionID := kernel.NewSessionID()
	ctx := context.Background()

	if err := log.Record(ctx, sessionID, auditx.EventStateTransition, nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := log.FinalizeSession(sessionID); err != nil {
		t.Fatal(err)
	}

	err := log.Record(ctx, sessionID, auditx.EventStateTransition, nil, nil)
	var xerr *errx.Error
	if !errors.As(err, &xerr) || xerr.Code != "AUDIT_SESSION_FINALIZED" {
		t.Fatalf("expected AUDIT_SESSION_FINALIZED, got %v", err)
	}
}

func TestEvictSession_RetainsSummary(t *testing.T) {
	log := newTestLog(t)
	sessionID := kernel.NewSessionID()
	ctx := context.Background()

	payload := map[string]any{auditx.KeyQualityScore: 91.0}
	if err := log.Record(ctx, sessionID, auditx.EventQCDecision, payload, nil); err != nil {
		t.Fatal(err)
	}
	if err := log.EvictSession(sessionID); err != nil {
		t.Fatal(err)
	}

	// Trail is gone, summary survives.
	if _, err := log.Events(sessionID); err == nil {
		t.Fatal("expected evicted trail to be unavailable")
	}
	summary, ok := log.SessionSummary(sessionID)
	if !ok {
		t.Fatal("expected retained summary after eviction")
	}
	if summary.FinalQualityScore != 91.0 {
		t.Fatalf("retained summary lost data: %+v", summary)
	}
}

func TestEvictSession_RetentionIsBounded(t *testing.T) {
	log, err := auditx.New(3, logx.NewLogger(&logx.Config{Level: logx.LevelOff}))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	sessions := make([]kernel.SessionID, 5)
	for i := range sessions {
		sessions[i] = kernel.NewSessionID()
		payload := map[string]any{auditx.KeyError: fmt.Sprintf("fault %d", i)}
		if err := log.Record(ctx, sessions[i], auditx.EventStageError, payload, nil); err != nil {
			t.Fatal(err)
		}
		if err := log.EvictSession(sessions[i]); err != nil {
			t.Fatal(err)
		}
	}

	// Capacity 3: the two oldest summaries were evicted from retention.
	retained := 0
	for _, sid := range sessions {
		if _, ok := log.SessionSummary(sid); ok {
			retained++
		}
	}
	if retained != 3 {
		t.Fatalf("expected 3 retained summaries, got %d", retained)
	}
	if _, ok := log.SessionSummary(sessions[0]); ok {
		t.Fatal("oldest summary should have been dropped")
	}
}

func TestEvents_UnknownSession(t *testing.T) {
	log := newTestLog(t)
	_, err := log.Events(kernel.NewSessionID())
	var xerr *errx.Error
	if !errors.As(err, &xerr) || xerr.Code != "AUDIT_UNKNOWN_SESSION" {
		t.Fatalf("expected AUDIT_UNKNOWN_SESSION, got %v", err)
	}
}
