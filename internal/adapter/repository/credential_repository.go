package repository

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/jihun-01/scratcha-backend/internal/domain/errors"
	"github.com/jihun-01/scratcha-backend/internal/domain/model"
	domainRepo "github.com/jihun-01/scratcha-backend/internal/domain/repository"
	"github.com/jihun-01/scratcha-backend/internal/infrastructure/database"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type credentialRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewCredentialRepository creates a new credential repository instance
func NewCredentialRepository(db *gorm.DB, logger *zap.Logger) domainRepo.CredentialRepository {
	return &credentialRepository{
		db:     db,
		logger: logger,
	}
}

// GetActiveByKey returns an active, non-deleted, non-expired API key
func (r *credentialRepository) GetActiveByKey(ctx context.Context, key string) (*model.Credential, error) {
	var credential model.Credential

	err := database.Conn(ctx, r.db).
		Where("key = ? AND is_active = ?", key, true).
		Where("expires_at IS NULL OR expires_at > now()").
		First(&credential).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.ErrCredentialNotFound
		}
		r.logger.Error("Failed to get API key", zap.Error(err))
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	return &credential, nil
}
