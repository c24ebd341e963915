package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jihun-01/scratcha-backend/internal/domain/model"
	domainRepo "github.com/jihun-01/scratcha-backend/internal/domain/repository"
	"github.com/jihun-01/scratcha-backend/internal/infrastructure/database"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type quotaRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewQuotaRepository creates a new quota repository instance
func NewQuotaRepository(db *gorm.DB, logger *zap.Logger) domainRepo.QuotaRepository {
	return &quotaRepository{
		db:     db,
		logger: logger,
	}
}

// TryDebit locks the owner's balance row and removes one token from it
func (r *quotaRepository) TryDebit(ctx context.Context, credential *model.Credential) (bool, error) {
	conn := database.Conn(ctx, r.db)

	var balance model.QuotaBalance
	err := conn.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", credential.UserID).
		First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to lock balance: %w", err)
	}

	if balance.Token <= 0 {
		r.logger.Info("Quota exhausted",
			zap.Int64("user_id", credential.UserID),
			zap.Int64("key_id", credential.ID))
		return false, nil
	}

	err = conn.Model(&model.QuotaBalance{}).
		Where("id = ?", balance.ID).
		Update("token", gorm.Expr("token - 1")).Error
	if err != nil {
		r.logger.Error("Failed to debit token",
			zap.Int64("user_id", credential.UserID),
			zap.Error(err))
		return false, fmt.Errorf("failed to debit token: %w", err)
	}
	return true, nil
}
