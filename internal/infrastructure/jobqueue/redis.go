// Package jobqueue implements the asynchronous verification boundary.
package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/jihun-01/scratcha-backend/internal/domain/errors"
	"github.com/jihun-01/scratcha-backend/internal/domain/model"
	domainRepo "github.com/jihun-01/scratcha-backend/internal/domain/repository"
	"github.com/jihun-01/scratcha-backend/pkg/messaging"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const handleLength = 21

// RedisQueue keeps pending jobs in a redis list and each job's status in its
// own key that expires after statusTTL.
type RedisQueue struct {
	client      redis.UniversalClient
	jobs        messaging.Queue
	key         string
	statusTTL   time.Duration
	pollTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewRedisQueue creates a queue on the list named key
func NewRedisQueue(client redis.UniversalClient, key string, statusTTL, pollTimeout time.Duration, logger *zap.Logger) *RedisQueue {
	return &RedisQueue{
		client:      client,
		jobs:        messaging.NewRedisQueue(client, key),
		key:         key,
		statusTTL:   statusTTL,
		pollTimeout: pollTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

var _ domainRepo.JobQueue = (*RedisQueue)(nil)

func (q *RedisQueue) statusKey(handle string) string {
	return q.key + ":status:" + handle
}

// Submit stores a pending status and enqueues the job
func (q *RedisQueue) Submit(ctx context.Context, job *model.VerifyJob) (string, error) {
	handle, err := gonanoid.New(handleLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate job handle: %w", err)
	}
	job.Handle = handle

	if err := q.writeStatus(ctx, &model.JobStatus{Handle: handle, State: model.JobPending}); err != nil {
		return "", err
	}
	if err := q.jobs.Push(ctx, job); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}
	return handle, nil
}

// Status returns the stored status, or ErrJobNotFound once it expired
func (q *RedisQueue) Status(ctx context.Context, handle string) (*model.JobStatus, error) {
	raw, err := q.client.Get(ctx, q.statusKey(handle)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domainErrors.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job status: %w", err)
	}

	var status model.JobStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("failed to decode job status: %w", err)
	}
	return &status, nil
}

// Next blocks until a job arrives or ctx ends. Undecodable payloads are
// dropped with an error log.
func (q *RedisQueue) Next(ctx context.Context) (*model.VerifyJob, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := q.jobs.Pop(ctx, q.pollTimeout)
		if errors.Is(err, messaging.ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to pop job: %w", err)
		}

		var job model.VerifyJob
		if err := json.Unmarshal(raw, &job); err != nil {
			q.logger.Error("Dropping undecodable verification job", zap.Error(err))
			continue
		}
		return &job, nil
	}
}

func (q *RedisQueue) Complete(ctx context.Context, handle string, result *model.VerificationResult) error {
	return q.writeStatus(ctx, &model.JobStatus{Handle: handle, State: model.JobDone, Result: result})
}

func (q *RedisQueue) Fail(ctx context.Context, handle string, jobErr *model.JobError) error {
	return q.writeStatus(ctx, &model.JobStatus{Handle: handle, State: model.JobFailed, Error: jobErr})
}

// Depth returns the number of jobs waiting for a worker
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.jobs.Len(ctx)
}

func (q *RedisQueue) writeStatus(ctx context.Context, status *model.JobStatus) error {
	status.UpdatedAt = q.now()
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to encode job status: %w", err)
	}
	if err := q.client.Set(ctx, q.statusKey(status.Handle), payload, q.statusTTL).Err(); err != nil {
		return fmt.Errorf("failed to write job status: %w", err)
	}
	return nil
}
