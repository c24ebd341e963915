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
)

type problemRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewProblemRepository creates a new problem repository instance
func NewProblemRepository(db *gorm.DB, logger *zap.Logger) domainRepo.ProblemRepository {
	return &problemRepository{
		db:     db,
		logger: logger,
	}
}

// PickRandom returns a random non-expired problem, or nil when none matches
func (r *problemRepository) PickRandom(ctx context.Context, difficulty int) (*model.Problem, error) {
	var problem model.Problem

	err := database.Conn(ctx, r.db).
		Where("difficulty = ? AND expires_at > now()", difficulty).
		Order("random()").
		Take(&problem).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to pick captcha problem",
			zap.Int("difficulty", difficulty),
			zap.Error(err))
		return nil, fmt.Errorf("failed to pick problem: %w", err)
	}
	return &problem, nil
}
