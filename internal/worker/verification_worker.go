// Package worker runs the background halves of the service: verification
// jobs pulled from the queue and the periodic expiry sweep.
package worker

import (
	"context"
	"errors"
	"time"

	domainErrors "github.com/jihun-01/scratcha-backend/internal/domain/errors"
	"github.com/jihun-01/scratcha-backend/internal/domain/model"
	"github.com/jihun-01/scratcha-backend/internal/domain/repository"
	"github.com/jihun-01/scratcha-backend/internal/usecase"
	apperrors "github.com/jihun-01/scratcha-backend/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Resolver is the job body. *usecase.VerificationService satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, cmd usecase.VerifyCommand) (*model.VerificationResult, error)
}

// DepthSource is implemented by queues that can report their backlog.
type DepthSource interface {
	Depth(ctx context.Context) (int64, error)
}

// DepthGauge receives the backlog size
type DepthGauge interface {
	SetQueueDepth(n int64)
}

// VerificationWorker pulls jobs and resolves them with a fixed number of
// goroutines.
type VerificationWorker struct {
	queue       repository.JobQueue
	resolver    Resolver
	concurrency int
	jobTimeout  time.Duration
	gauge       DepthGauge
	logger      *zap.Logger
}

func NewVerificationWorker(queue repository.JobQueue, resolver Resolver, concurrency int, jobTimeout time.Duration, gauge DepthGauge, logger *zap.Logger) *VerificationWorker {
	if concurrency <= 0 {
		concurrency = 1
	}
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Second
	}
	return &VerificationWorker{
		queue:       queue,
		resolver:    resolver,
		concurrency: concurrency,
		jobTimeout:  jobTimeout,
		gauge:       gauge,
		logger:      logger,
	}
}

// Run blocks until ctx is cancelled. A job already being resolved finishes
// before Run returns.
func (w *VerificationWorker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < w.concurrency; i++ {
		id := i
		g.Go(func() error {
			return w.loop(ctx, id)
		})
	}

	if src, ok := w.queue.(DepthSource); ok && w.gauge != nil {
		g.Go(func() error {
			w.reportDepth(ctx, src)
			return nil
		})
	}

	w.logger.Info("Verification workers started", zap.Int("concurrency", w.concurrency))
	err := g.Wait()
	w.logger.Info("Verification workers stopped")
	return err
}

func (w *VerificationWorker) loop(ctx context.Context, id int) error {
	for {
		job, err := w.queue.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("Failed to fetch verification job", zap.Int("worker", id), zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		w.Handle(ctx, job)
	}
}

// Handle resolves one job and stores its outcome. Shutdown does not cancel a
// running resolution; only the job timeout does.
func (w *VerificationWorker) Handle(ctx context.Context, job *model.VerifyJob) {
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.jobTimeout)
	defer cancel()

	result, err := w.resolver.Resolve(jobCtx, usecase.VerifyCommand{
		ClientToken: job.ClientToken,
		Answer:      job.Answer,
		IPAddress:   job.IPAddress,
		UserAgent:   job.UserAgent,
		Telemetry:   job.Telemetry,
	})
	if err != nil {
		apperrors.LogError(w.logger, err, "Verification job failed", zap.String("handle", job.Handle))
		if ferr := w.queue.Fail(jobCtx, job.Handle, jobErrorFrom(err)); ferr != nil {
			w.logger.Error("Failed to store job failure", zap.String("handle", job.Handle), zap.Error(ferr))
		}
		return
	}

	if cerr := w.queue.Complete(jobCtx, job.Handle, result); cerr != nil {
		w.logger.Error("Failed to store job result", zap.String("handle", job.Handle), zap.Error(cerr))
	}
}

func (w *VerificationWorker) reportDepth(ctx context.Context, src DepthSource) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := src.Depth(ctx); err == nil {
				w.gauge.SetQueueDepth(n)
			}
		}
	}
}

func jobErrorFrom(err error) *model.JobError {
	jobErr := &model.JobError{
		Code:    apperrors.CodeOf(err),
		Type:    "InternalError",
		Message: "캡챠 검증 중 오류가 발생했습니다.",
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		jobErr.Message = appErr.Message()
	}
	switch {
	case errors.Is(err, domainErrors.ErrSessionNotFound):
		jobErr.Type = "SessionNotFound"
	case errors.Is(err, domainErrors.ErrAlreadyResolved):
		jobErr.Type = "AlreadyResolved"
	case errors.Is(err, context.DeadlineExceeded):
		jobErr.Type = "Timeout"
	}
	return jobErr
}
