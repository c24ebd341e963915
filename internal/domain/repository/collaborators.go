package repository

import (
	"context"

	"github.com/jihun-01/scratcha-backend/internal/domain/model"
)

// CredentialRepository resolves API keys
type CredentialRepository interface {
	GetActiveByKey(ctx context.Context, key string) (*model.Credential, error)
}

// QuotaRepository debits the token balance behind a credential
type QuotaRepository interface {
	// TryDebit removes one token; false when the balance is already zero
	TryDebit(ctx context.Context, credential *model.Credential) (bool, error)
}

// ProblemRepository picks puzzles
type ProblemRepository interface {
	// PickRandom returns a random non-expired problem, or nil when none exists
	PickRandom(ctx context.Context, difficulty int) (*model.Problem, error)
}

// UsageRepository maintains per-credential daily counters
type UsageRepository interface {
	IncrementIssued(ctx context.Context, credentialID int64) error
	IncrementResolved(ctx context.Context, credentialID int64, outcome model.Outcome, latencyMs int64) error
}
