package usecase

import (
	"context"
	"errors"
	"time"

	domainErrors "github.com/jihun-01/scratcha-backend/internal/domain/errors"
	"github.com/jihun-01/scratcha-backend/internal/domain/model"
	"github.com/jihun-01/scratcha-backend/internal/domain/repository"
	apperrors "github.com/jihun-01/scratcha-backend/pkg/errors"
	"go.uber.org/zap"
)

// SubmissionService is the caller side of the async verification boundary.
type SubmissionService struct {
	queue   repository.JobQueue
	archive repository.TelemetryArchive
	logger  *zap.Logger
	now     func() time.Time
}

// NewSubmissionService creates the service. archive may be nil.
func NewSubmissionService(queue repository.JobQueue, archive repository.TelemetryArchive, logger *zap.Logger) *SubmissionService {
	return &SubmissionService{
		queue:   queue,
		archive: archive,
		logger:  logger,
		now:     time.Now,
	}
}

// Submit enqueues a verification and hands the raw telemetry to the archive.
func (s *SubmissionService) Submit(ctx context.Context, cmd VerifyCommand) (string, error) {
	if cmd.ClientToken == "" {
		return "", apperrors.NewAppError(apperrors.ErrInvalidArgument, "X-Client-Token 헤더가 필요합니다.", nil)
	}

	handle, err := s.queue.Submit(ctx, &model.VerifyJob{
		ClientToken: cmd.ClientToken,
		Answer:      cmd.Answer,
		IPAddress:   cmd.IPAddress,
		UserAgent:   cmd.UserAgent,
		Telemetry:   cmd.Telemetry,
		SubmittedAt: s.now(),
	})
	if err != nil {
		s.logger.Error("Failed to enqueue verification", zap.Error(err))
		return "", apperrors.NewAppError(apperrors.ErrUnavailable, "검증 요청을 접수하지 못했습니다.", err)
	}

	if s.archive != nil && cmd.Telemetry.Present() {
		s.archive.Archive(cmd.ClientToken, cmd.Telemetry)
	}
	return handle, nil
}

// Status returns the job state for a handle.
func (s *SubmissionService) Status(ctx context.Context, handle string) (*model.JobStatus, error) {
	status, err := s.queue.Status(ctx, handle)
	if err != nil {
		if errors.Is(err, domainErrors.ErrJobNotFound) {
			return nil, apperrors.NewAppError(apperrors.ErrNotFound, "검증 작업을 찾을 수 없습니다.", err)
		}
		return nil, apperrors.NewAppError(apperrors.ErrUnavailable, "검증 상태를 조회하지 못했습니다.", err)
	}
	return status, nil
}
