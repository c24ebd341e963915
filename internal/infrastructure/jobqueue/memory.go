package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domainErrors "github.com/jihun-01/scratcha-backend/internal/domain/errors"
	"github.com/jihun-01/scratcha-backend/internal/domain/model"
	domainRepo "github.com/jihun-01/scratcha-backend/internal/domain/repository"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ErrQueueFull is returned by the memory backend when its buffer is full
var ErrQueueFull = errors.New("verification queue is full")

type memoryEntry struct {
	status  model.JobStatus
	expires time.Time
}

// MemoryQueue is an in-process backend for a single node.
type MemoryQueue struct {
	jobs      chan *model.VerifyJob
	statusTTL time.Duration
	now       func() time.Time

	mu       sync.Mutex
	statuses map[string]*memoryEntry
}

// NewMemoryQueue creates a queue holding up to capacity pending jobs
func NewMemoryQueue(capacity int, statusTTL time.Duration) *MemoryQueue {
	return &MemoryQueue{
		jobs:      make(chan *model.VerifyJob, capacity),
		statusTTL: statusTTL,
		now:       time.Now,
		statuses:  make(map[string]*memoryEntry),
	}
}

var _ domainRepo.JobQueue = (*MemoryQueue)(nil)

func (q *MemoryQueue) Submit(ctx context.Context, job *model.VerifyJob) (string, error) {
	handle, err := gonanoid.New(handleLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate job handle: %w", err)
	}
	job.Handle = handle
	q.setStatus(model.JobStatus{Handle: handle, State: model.JobPending})

	select {
	case q.jobs <- job:
		return handle, nil
	case <-ctx.Done():
		q.deleteStatus(handle)
		return "", ctx.Err()
	default:
		q.deleteStatus(handle)
		return "", ErrQueueFull
	}
}

func (q *MemoryQueue) Status(_ context.Context, handle string) (*model.JobStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.statuses[handle]
	if !ok || q.now().After(entry.expires) {
		delete(q.statuses, handle)
		return nil, domainErrors.ErrJobNotFound
	}
	status := entry.status
	return &status, nil
}

func (q *MemoryQueue) Next(ctx context.Context) (*model.VerifyJob, error) {
	select {
	case job := <-q.jobs:
		return job, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Complete(_ context.Context, handle string, result *model.VerificationResult) error {
	q.setStatus(model.JobStatus{Handle: handle, State: model.JobDone, Result: result})
	return nil
}

func (q *MemoryQueue) Fail(_ context.Context, handle string, jobErr *model.JobError) error {
	q.setStatus(model.JobStatus{Handle: handle, State: model.JobFailed, Error: jobErr})
	return nil
}

// Depth returns the number of jobs waiting for a worker
func (q *MemoryQueue) Depth(context.Context) (int64, error) {
	return int64(len(q.jobs)), nil
}

func (q *MemoryQueue) setStatus(status model.JobStatus) {
	now := q.now()
	status.UpdatedAt = now

	q.mu.Lock()
	defer q.mu.Unlock()
	q.statuses[status.Handle] = &memoryEntry{status: status, expires: now.Add(q.statusTTL)}

	// Expired entries are dropped lazily while writing
	for handle, entry := range q.statuses {
		if now.After(entry.expires) {
			delete(q.statuses, handle)
		}
	}
}

func (q *MemoryQueue) deleteStatus(handle string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.statuses, handle)
}
