// Package jobqmem provides an in-memory jobq.Queue for tests and local
// development. Jobs do not survive process restarts.
package jobqmem

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/relightlabs/relight/pkg/jobq"
)

// MemoryQueue implements jobq.Queue with in-process state.
type MemoryQueue struct {
	mu        sync.Mutex
	jobs      map[string]*jobq.JobInfo
	ready     map[string][]string // queue name -> job IDs, FIFO
	scheduled map[string][]scheduledJob
	now       func() time.Time
}

type scheduledJob struct {
	id    string
	runAt time.Time
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		jobs:      make(map[string]*jobq.JobInfo),
		ready:     make(map[string][]string),
		scheduled: make(map[string][]scheduledJob),
		now:       time.Now,
	}
}

// Enqueue adds a job to the ready queue immediately.
func (q *MemoryQueue) Enqueue(ctx context.Context, job jobq.Job) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	info := q.store(job)
	q.ready[job.Queue] = append(q.ready[job.Queue], info.ID)
	return info.ID, nil
}

// EnqueueDelayed adds a job that becomes available after the delay.
func (q *MemoryQueue) EnqueueDelayed(ctx context.Context, job jobq.Job, delay time.Duration) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	info := q.store(job)
	q.scheduled[job.Queue] = append(q.scheduled[job.Queue], scheduledJob{
		id:    info.ID,
		runAt: q.now().Add(delay),
	})
	return info.ID, nil
}

func (q *MemoryQueue) store(job jobq.Job) *jobq.JobInfo {
	now := q.now().UTC()
	info := &jobq.JobInfo{
		ID:         uuid.New().String(),
		Type:       job.Type,
		Queue:      job.Queue,
		Payload:    job.Payload,
		Status:     jobq.StatusPending,
		MaxRetries: job.MaxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	q.jobs[info.ID] = info
	return info
}

// GetJob retrieves job info by ID.
func (q *MemoryQueue) GetJob(ctx context.Context, jobID string) (*jobq.JobInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	info, ok := q.jobs[jobID]
	if !ok {
		return nil, memErrors.New(ErrNotFound).WithDetail("job_id", jobID)
	}
	copied := *info
	return &copied, nil
}

// Dequeue returns the next ready job from the given queues, polling
// until one appears, the timeout expires, or ctx is cancelled.
func (q *MemoryQueue) Dequeue(ctx context.Context, queues []string, timeout time.Duration) (*jobq.JobInfo, error) {
	deadline := q.now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if info := q.tryDequeue(queues); info != nil {
			return info, nil
		}
		if q.now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, nil
		case <-ticker.C:
		}
	}
}

func (q *MemoryQueue) tryDequeue(queues []string) *jobq.JobInfo {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, name := range queues {
		ids := q.ready[name]
		if len(ids) == 0 {
			continue
		}
		id := ids[0]
		q.ready[name] = ids[1:]

		info := q.jobs[id]
		info.Status = jobq.StatusActive
		info.Attempts++
		info.UpdatedAt = q.now().UTC()

		copied := *info
		return &copied
	}
	return nil
}

// Complete marks a job as successfully completed.
func (q *MemoryQueue) Complete(ctx context.Context, jobID string, result []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	info, ok := q.jobs[jobID]
	if !ok {
		return memErrors.New(ErrNotFound).WithDetail("job_id", jobID)
	}
	info.Status = jobq.StatusCompleted
	info.Result = result
	info.UpdatedAt = q.now().UTC()
	return nil
}

// Fail marks a job as failed. Returns true if the job should be retried.
func (q *MemoryQueue) Fail(ctx context.Context, jobID string, errMsg string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	info, ok := q.jobs[jobID]
	if !ok {
		return false, memErrors.New(ErrNotFound).WithDetail("job_id", jobID)
	}

	shouldRetry := info.Attempts < info.MaxRetries
	if shouldRetry {
		info.Status = jobq.StatusRetrying
	} else {
		info.Status = jobq.StatusFailed
	}
	info.Error = errMsg
	info.UpdatedAt = q.now().UTC()
	return shouldRetry, nil
}

// Retry schedules a failed job to run again after the delay.
func (q *MemoryQueue) Retry(ctx context.Context, jobID string, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	info, ok := q.jobs[jobID]
	if !ok {
		return memErrors.New(ErrNotFound).WithDetail("job_id", jobID)
	}
	q.scheduled[info.Queue] = append(q.scheduled[info.Queue], scheduledJob{
		id:    jobID,
		runAt: q.now().Add(delay),
	})
	return nil
}

// PromoteScheduled moves due scheduled jobs to their ready queues.
func (q *MemoryQueue) PromoteScheduled(ctx context.Context, queues []string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for _, name := range queues {
		var remaining []scheduledJob
		for _, s := range q.scheduled[name] {
			if s.runAt.After(now) {
				remaining = append(remaining, s)
				continue
			}
			q.ready[name] = append(q.ready[name], s.id)
		}
		q.scheduled[name] = remaining
	}
	return nil
}
