package database

import (
	"github.com/jihun-01/scratcha-backend/internal/domain/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the tables this service owns.
// api_key and auth_users belong to the dashboard service and are only read.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	logger.Info("Running database migrations...")

	err := db.AutoMigrate(
		&model.Problem{},
		&model.Session{},
		&model.TerminalLog{},
		&model.UsageStats{},
	)
	if err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		return err
	}

	if err := createCustomIndexes(db); err != nil {
		logger.Error("Failed to create custom indexes", zap.Error(err))
		return err
	}

	logger.Info("Database migrations completed successfully")
	return nil
}

// createCustomIndexes creates indexes that GORM doesn't handle automatically
func createCustomIndexes(db *gorm.DB) error {
	// Problem picking filters on difficulty among non-expired rows
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_captcha_problem_difficulty_expires ON captcha_problem (difficulty, expires_at)`).Error; err != nil {
		return err
	}

	// Sweeper scans old sessions
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_captcha_session_created_at ON captcha_session (created_at)`).Error; err != nil {
		return err
	}

	return nil
}
