package jobq_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/relightlabs/relight/pkg/jobq"
	"github.com/relightlabs/relight/pkg/jobq/jobqmem"
	"github.com/relightlabs/relight/pkg/logx"
)

func testLogger() *logx.Logger {
	return logx.NewLogger(&logx.Config{Level: logx.LevelOff})
}

func waitForStatus(t *testing.T, q jobq.Queue, jobID string, want jobq.Status) *jobq.JobInfo {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		info, err := q.GetJob(context.Background(), jobID)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if info.Status == want {
			return info
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", jobID, want)
	return nil
}

func TestNewRestoreJob_RoundTrip(t *testing.T) {
	job, err := jobq.NewRestoreJob(jobq.RestoreRequest{
		Mode:     "restoration",
		InputRef: "s3://photos/damaged.png",
	})
	if err != nil {
		t.Fatalf("NewRestoreJob: %v", err)
	}
	if job.Type != jobq.TypeRestoreRequest {
		t.Fatalf("job type = %q, want %q", job.Type, jobq.TypeRestoreRequest)
	}
	if job.Queue != jobq.DefaultQueue {
		t.Fatalf("job queue = %q, want %q", job.Queue, jobq.DefaultQueue)
	}

	req, err := jobq.DecodeRestoreRequest(&jobq.JobInfo{Payload: job.Payload})
	if err != nil {
		t.Fatalf("DecodeRestoreRequest: %v", err)
	}
	if req.Mode != "restoration" || req.InputRef != "s3://photos/damaged.png" {
		t.Fatalf("decoded request = %+v", req)
	}
}

func TestDecodeRestoreRequest_InvalidPayload(t *testing.T) {
	_, err := jobq.DecodeRestoreRequest(&jobq.JobInfo{ID: "j1", Payload: []byte("{not json")})
	if err == nil {
		t.Fatal("expected error for invalid payload")
	}
}

func TestClient_ProcessesEnqueuedJob(t *testing.T) {
	queue := jobqmem.NewMemoryQueue()
	client := jobq.NewClient(queue, testLogger(),
		jobq.WithConcurrency(2),
		jobq.WithPollInterval(10*time.Millisecond),
		jobq.WithDequeueTimeout(50*time.Millisecond),
	)

	var processed atomic.Int32
	client.Register(jobq.TypeRestoreRequest, func(ctx context.Context, job *jobq.JobInfo) error {
		req, err := jobq.DecodeRestoreRequest(job)
		if err != nil {
			return err
		}
		if req.InputRef == "" {
			return errors.New("empty input ref")
		}
		processed.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = client.Start(ctx) }()

	job, err := jobq.NewRestoreJob(jobq.RestoreRequest{Mode: "enhancement", InputRef: "file:///in.png"})
	if err != nil {
		t.Fatalf("NewRestoreJob: %v", err)
	}
	id, err := client.Enqueue(context.Background(), job)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	info := waitForStatus(t, queue, id, jobq.StatusCompleted)
	if info.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", info.Attempts)
	}
	if processed.Load() != 1 {
		t.Fatalf("handler ran %d times, want 1", processed.Load())
	}
}

func TestClient_RetriesFailedJobUntilSuccess(t *testing.T) {
	queue := jobqmem.NewMemoryQueue()
	client := jobq.NewClient(queue, testLogger(),
		jobq.WithConcurrency(1),
		jobq.WithPollInterval(10*time.Millisecond),
		jobq.WithDequeueTimeout(50*time.Millisecond),
		jobq.WithDefaultRetryDelay(20*time.Millisecond),
	)

	var calls atomic.Int32
	client.Register("flaky", func(ctx context.Context, job *jobq.JobInfo) error {
		if calls.Add(1) == 1 {
			return errors.New("transient upstream error")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = client.Start(ctx) }()

	id, err := client.Enqueue(context.Background(), jobq.Job{Type: "flaky", Queue: "restore"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	info := waitForStatus(t, queue, id, jobq.StatusCompleted)
	if info.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", info.Attempts)
	}
}

func TestClient_ExhaustedRetriesFailPermanently(t *testing.T) {
	queue := jobqmem.NewMemoryQueue()
	client := jobq.NewClient(queue, testLogger(),
		jobq.WithConcurrency(1),
		jobq.WithPollInterval(10*time.Millisecond),
		jobq.WithDequeueTimeout(50*time.Millisecond),
		jobq.WithDefaultRetryDelay(10*time.Millisecond),
	)

	client.Register("doomed", func(ctx context.Context, job *jobq.JobInfo) error {
		return errors.New("image undecodable")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = client.Start(ctx) }()

	id, err := client.Enqueue(context.Background(), jobq.Job{Type: "doomed", Queue: "restore", MaxRetries: 2})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	info := waitForStatus(t, queue, id, jobq.StatusFailed)
	if info.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", info.Attempts)
	}
	if info.Error != "image undecodable" {
		t.Fatalf("error = %q", info.Error)
	}
}

func TestClient_UnhandledTypeFails(t *testing.T) {
	queue := jobqmem.NewMemoryQueue()
	client := jobq.NewClient(queue, testLogger(),
		jobq.WithConcurrency(1),
		jobq.WithPollInterval(10*time.Millisecond),
		jobq.WithDequeueTimeout(50*time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = client.Start(ctx) }()

	id, err := client.Enqueue(context.Background(), jobq.Job{Type: "unknown", Queue: "restore", MaxRetries: 1})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	info := waitForStatus(t, queue, id, jobq.StatusFailed)
	if info.Error == "" {
		t.Fatal("expected error message on unhandled job")
	}
}

func TestClient_DelayedJobRunsAfterPromotion(t *testing.T) {
	queue := jobqmem.NewMemoryQueue()
	client := jobq.NewClient(queue, testLogger(),
		jobq.WithConcurrency(1),
		jobq.WithPollInterval(10*time.Millisecond),
		jobq.WithDequeueTimeout(50*time.Millisecond),
	)

	done := make(chan struct{})
	client.Register("delayed", func(ctx context.Context, job *jobq.JobInfo) error {
		close(done)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = client.Start(ctx) }()

	enqueuedAt := time.Now()
	if _, err := client.EnqueueDelayed(context.Background(), jobq.Job{Type: "delayed", Queue: "restore"}, 100*time.Millisecond); err != nil {
		t.Fatalf("EnqueueDelayed: %v", err)
	}

	select {
	case <-done:
		if elapsed := time.Since(enqueuedAt); elapsed < 100*time.Millisecond {
			t.Fatalf("delayed job ran after %v, want >= 100ms", elapsed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("delayed job never ran")
	}
}
