package repository

import (
	"context"
	"time"

	"github.com/jihun-01/scratcha-backend/internal/domain/model"
)

// Transactor runs fn inside one database transaction. Repositories called
// with the ctx passed to fn join that transaction.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// SessionRepository defines the interface for captcha session persistence
type SessionRepository interface {
	// Issue deletes the credential's own never-logged sessions and inserts session
	Issue(ctx context.Context, session *model.Session) error

	// GetByToken loads a session and its problem. exclusive=true takes a row lock
	// held until the surrounding transaction ends
	GetByToken(ctx context.Context, clientToken string, exclusive bool) (*model.Session, error)

	// HasTerminalLog reports whether the session was already resolved
	HasTerminalLog(ctx context.Context, sessionID int64) (bool, error)

	// AttachTerminalLog writes the one terminal log of the session
	AttachTerminalLog(ctx context.Context, session *model.Session, resolution model.Resolution) (*model.TerminalLog, error)

	// LockExpired selects up to limit never-logged sessions created before cutoff,
	// skipping rows locked by concurrent resolvers
	LockExpired(ctx context.Context, cutoff time.Time, limit int) ([]*model.Session, error)
}
