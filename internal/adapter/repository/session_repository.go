package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/jihun-01/scratcha-backend/internal/domain/errors"
	"github.com/jihun-01/scratcha-backend/internal/domain/model"
	domainRepo "github.com/jihun-01/scratcha-backend/internal/domain/repository"
	"github.com/jihun-01/scratcha-backend/internal/infrastructure/database"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// sessionRepository implements the SessionRepository interface
type sessionRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSessionRepository creates a new session repository instance
func NewSessionRepository(db *gorm.DB, logger *zap.Logger) domainRepo.SessionRepository {
	return &sessionRepository{
		db:     db,
		logger: logger,
	}
}

// Issue removes the credential's still-open sessions and inserts the new one.
// Both statements run on the transaction carried by ctx.
func (r *sessionRepository) Issue(ctx context.Context, session *model.Session) error {
	conn := database.Conn(ctx, r.db)

	if session.CredentialID != nil {
		// Sessions locked by an in-flight resolver are skipped, not deleted
		res := conn.Exec(`DELETE FROM captcha_session
			WHERE id IN (
				SELECT s.id FROM captcha_session s
				WHERE s.key_id = ?
				AND NOT EXISTS (SELECT 1 FROM captcha_log l WHERE l.session_id = s.id)
				FOR UPDATE SKIP LOCKED
			)`, *session.CredentialID)
		if res.Error != nil {
			r.logger.Error("Failed to clean up open sessions",
				zap.Int64("key_id", *session.CredentialID),
				zap.Error(res.Error))
			return fmt.Errorf("failed to clean up open sessions: %w", res.Error)
		}
		if res.RowsAffected > 0 {
			r.logger.Debug("Discarded open sessions before issuance",
				zap.Int64("key_id", *session.CredentialID),
				zap.Int64("count", res.RowsAffected))
		}
	}

	if err := conn.Create(session).Error; err != nil {
		r.logger.Error("Failed to create captcha session", zap.Error(err))
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByToken loads a session with its problem, optionally locking the row
func (r *sessionRepository) GetByToken(ctx context.Context, clientToken string, exclusive bool) (*model.Session, error) {
	var session model.Session

	query := database.Conn(ctx, r.db)
	if exclusive {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	err := query.Where("client_token = ?", clientToken).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.ErrSessionNotFound
		}
		r.logger.Error("Failed to get captcha session", zap.Error(err))
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	// Loaded separately: FOR UPDATE cannot apply to the nullable side of a join
	var problem model.Problem
	err = database.Conn(ctx, r.db).Where("id = ?", session.ProblemID).First(&problem).Error
	switch {
	case err == nil:
		session.Problem = &problem
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("failed to get problem: %w", err)
	}

	return &session, nil
}

// HasTerminalLog reports whether a log row exists for the session
func (r *sessionRepository) HasTerminalLog(ctx context.Context, sessionID int64) (bool, error) {
	var count int64
	err := database.Conn(ctx, r.db).
		Model(&model.TerminalLog{}).
		Where("session_id = ?", sessionID).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check terminal log: %w", err)
	}
	return count > 0, nil
}

// AttachTerminalLog inserts the session's terminal log. The unique index on
// session_id turns a second insert into an error.
func (r *sessionRepository) AttachTerminalLog(ctx context.Context, session *model.Session, resolution model.Resolution) (*model.TerminalLog, error) {
	entry := &model.TerminalLog{
		CredentialID: session.CredentialID,
		SessionID:    session.ID,
		IPAddress:    resolution.IPAddress,
		UserAgent:    resolution.UserAgent,
		Result:       resolution.Outcome,
		LatencyMs:    resolution.LatencyMs,
		IsCorrect:    resolution.IsCorrect,
		MLConfidence: resolution.Probability,
		MLVerdict:    resolution.Verdict,
	}
	if resolution.Verdict != nil {
		isBot := *resolution.Verdict == model.VerdictBot
		entry.MLIsBot = &isBot
	}

	if err := database.Conn(ctx, r.db).Create(entry).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domainErrors.ErrAlreadyResolved
		}
		r.logger.Error("Failed to write terminal log",
			zap.Int64("session_id", session.ID),
			zap.String("result", string(resolution.Outcome)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to write terminal log: %w", err)
	}
	return entry, nil
}

// LockExpired locks up to limit unresolved sessions created before cutoff.
// Rows held by a concurrent resolver are skipped, never waited on.
func (r *sessionRepository) LockExpired(ctx context.Context, cutoff time.Time, limit int) ([]*model.Session, error) {
	var sessions []*model.Session

	err := database.Conn(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("created_at < ?", cutoff).
		Where("NOT EXISTS (SELECT 1 FROM captcha_log l WHERE l.session_id = captcha_session.id)").
		Order("created_at").
		Limit(limit).
		Find(&sessions).Error
	if err != nil {
		r.logger.Error("Failed to lock expired sessions", zap.Time("cutoff", cutoff), zap.Error(err))
		return nil, fmt.Errorf("failed to lock expired sessions: %w", err)
	}
	return sessions, nil
}
