package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jihun-01/scratcha-backend/internal/domain/model"
	domainRepo "github.com/jihun-01/scratcha-backend/internal/domain/repository"
	"github.com/jihun-01/scratcha-backend/internal/infrastructure/database"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type usageRepository struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewUsageRepository creates a new usage statistics repository instance
func NewUsageRepository(db *gorm.DB, logger *zap.Logger) domainRepo.UsageRepository {
	return &usageRepository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// IncrementIssued counts one issued challenge for today
func (r *usageRepository) IncrementIssued(ctx context.Context, credentialID int64) error {
	return r.upsert(ctx, credentialID, map[string]interface{}{
		"captcha_total_requests": gorm.Expr("usage_stats.captcha_total_requests + 1"),
	}, &model.UsageStats{TotalRequests: 1})
}

// IncrementResolved counts one terminal outcome for today. Timeouts do not
// contribute to the average response time.
func (r *usageRepository) IncrementResolved(ctx context.Context, credentialID int64, outcome model.Outcome, latencyMs int64) error {
	seed := &model.UsageStats{}
	updates := map[string]interface{}{}

	switch outcome {
	case model.OutcomeSuccess:
		seed.SuccessCount = 1
		updates["captcha_success_count"] = gorm.Expr("usage_stats.captcha_success_count + 1")
	case model.OutcomeFail:
		seed.FailCount = 1
		updates["captcha_fail_count"] = gorm.Expr("usage_stats.captcha_fail_count + 1")
	case model.OutcomeTimeout:
		seed.TimeoutCount = 1
		updates["captcha_timeout_count"] = gorm.Expr("usage_stats.captcha_timeout_count + 1")
	default:
		return fmt.Errorf("unknown outcome %q", outcome)
	}

	if outcome != model.OutcomeTimeout {
		seed.TotalLatencyMs = latencyMs
		seed.VerificationCount = 1
		seed.AvgResponseTimeMs = averageLatency(latencyMs, 1)
		updates["total_latency_ms"] = gorm.Expr("usage_stats.total_latency_ms + ?", latencyMs)
		updates["verification_count"] = gorm.Expr("usage_stats.verification_count + 1")
	}

	if err := r.upsert(ctx, credentialID, updates, seed); err != nil {
		return err
	}
	if outcome == model.OutcomeTimeout {
		return nil
	}
	return r.refreshAverage(ctx, credentialID)
}

func (r *usageRepository) upsert(ctx context.Context, credentialID int64, updates map[string]interface{}, seed *model.UsageStats) error {
	seed.CredentialID = credentialID
	seed.Date = r.today()

	err := database.Conn(ctx, r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key_id"}, {Name: "date"}},
			DoUpdates: clause.Assignments(updates),
		}).
		Create(seed).Error
	if err != nil {
		r.logger.Error("Failed to update usage stats",
			zap.Int64("key_id", credentialID),
			zap.Error(err))
		return fmt.Errorf("failed to update usage stats: %w", err)
	}
	return nil
}

func (r *usageRepository) refreshAverage(ctx context.Context, credentialID int64) error {
	conn := database.Conn(ctx, r.db)

	var stats model.UsageStats
	err := conn.Where("key_id = ? AND date = ?", credentialID, r.today()).First(&stats).Error
	if err != nil {
		return fmt.Errorf("failed to read usage stats: %w", err)
	}

	avg := averageLatency(stats.TotalLatencyMs, stats.VerificationCount)
	err = conn.Model(&model.UsageStats{}).
		Where("id = ?", stats.ID).
		Update("avg_response_time_ms", avg).Error
	if err != nil {
		return fmt.Errorf("failed to update average response time: %w", err)
	}
	return nil
}

func (r *usageRepository) today() time.Time {
	y, m, d := r.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// averageLatency returns total/count rounded to two decimal places
func averageLatency(totalMs, count int64) float64 {
	if count <= 0 {
		return 0
	}
	avg, _ := decimal.NewFromInt(totalMs).
		DivRound(decimal.NewFromInt(count), 2).
		Float64()
	return avg
}
