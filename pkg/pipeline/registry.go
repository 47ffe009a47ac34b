package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/relightlabs/relight/pkg/kernel"
)

// entry pairs a live job with the cancel func of its running task.
// The mutex covers the job's mutable fields: the running task is the
// primary writer, but Cancel may race it on the terminal transition.
type entry struct {
	mu     sync.Mutex
	job    *Job
	cancel context.CancelFunc
}

// registry is the shared job-id → job map. Terminal jobs stay
// resident for a retention window so callers can still query them,
// then get evicted once the audit session is finalized.
type registry struct {
	mu      sync.RWMutex
	entries map[kernel.JobID]*entry
}

func newRegistry() *registry {
	return &registry{entries: make(map[kernel.JobID]*entry)}
}

func (r *registry) add(job *Job) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := &entry{job: job}
	r.entries[job.ID] = e
	return e
}

func (r *registry) get(id kernel.JobID) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

func (r *registry) remove(id kernel.JobID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// scheduleEviction removes the job after the retention window and
// runs cleanup (audit eviction) once it is gone from the map.
func (r *registry) scheduleEviction(id kernel.JobID, retention time.Duration, cleanup func()) {
	time.AfterFunc(retention, func() {
		r.remove(id)
		cleanup()
	})
}
