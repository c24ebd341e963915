package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/jihun-01/scratcha-backend/internal/domain/model"
	"github.com/jihun-01/scratcha-backend/internal/domain/repository"
	"go.uber.org/zap"
)

// SweeperService force-resolves sessions that outlived the response deadline
// without a verification attempt.
type SweeperService struct {
	tx        repository.Transactor
	sessions  repository.SessionRepository
	usage     repository.UsageRepository
	deadline  time.Duration
	batchSize int
	recorder  Recorder
	logger    *zap.Logger
	now       func() time.Time
}

func NewSweeperService(
	tx repository.Transactor,
	sessions repository.SessionRepository,
	usage repository.UsageRepository,
	deadline time.Duration,
	batchSize int,
	recorder Recorder,
	logger *zap.Logger,
) *SweeperService {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &SweeperService{
		tx:        tx,
		sessions:  sessions,
		usage:     usage,
		deadline:  deadline,
		batchSize: batchSize,
		recorder:  recorderOrNop(recorder),
		logger:    logger,
		now:       time.Now,
	}
}

// SweepOnce writes TIMEOUT logs for expired sessions, one transaction per
// batch, until a batch comes back short. Sessions locked by a concurrent
// resolver are skipped and picked up by a later sweep if still unresolved.
func (s *SweeperService) SweepOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		selected, resolved, err := s.sweepBatch(ctx)
		total += resolved
		if err != nil {
			return total, err
		}
		if selected < s.batchSize || resolved == 0 {
			break
		}
	}

	if total > 0 {
		s.logger.Info("Expired captcha sessions resolved", zap.Int("count", total))
	}
	return total, nil
}

func (s *SweeperService) sweepBatch(ctx context.Context) (selected, resolved int, err error) {
	now := s.now()
	cutoff := now.Add(-s.deadline)

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		sessions, err := s.sessions.LockExpired(ctx, cutoff, s.batchSize)
		if err != nil {
			return err
		}
		selected = len(sessions)

		for _, session := range sessions {
			done, err := s.timeout(ctx, session, now)
			if err != nil {
				return fmt.Errorf("session %d: %w", session.ID, err)
			}
			if done {
				resolved++
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to sweep expired sessions", zap.Error(err))
		return selected, 0, err
	}

	for i := 0; i < resolved; i++ {
		s.recorder.ObserveOutcome(SourceSweeper, model.OutcomeTimeout.Lower())
	}
	return selected, resolved, nil
}

func (s *SweeperService) timeout(ctx context.Context, session *model.Session, now time.Time) (bool, error) {
	// The selection already excludes logged sessions; this re-check runs in a
	// fresh statement after the lock is held.
	logged, err := s.sessions.HasTerminalLog(ctx, session.ID)
	if err != nil {
		return false, err
	}
	if logged {
		return false, nil
	}

	latency := session.Elapsed(now).Milliseconds()
	_, err = s.sessions.AttachTerminalLog(ctx, session, model.Resolution{
		Outcome:   model.OutcomeTimeout,
		LatencyMs: latency,
		IsCorrect: boolPtr(false),
	})
	if err != nil {
		return false, err
	}

	if session.CredentialID != nil {
		if err := s.usage.IncrementResolved(ctx, *session.CredentialID, model.OutcomeTimeout, latency); err != nil {
			return false, err
		}
	}
	return true, nil
}
