package model

import (
	"time"

	"gorm.io/gorm"
)

// Credential is an API key. Only the lookup used for issuance lives here;
// key management belongs to the dashboard service.
type Credential struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     int64          `gorm:"column:user_id;not null;index" json:"user_id"`
	Key        string         `gorm:"column:key;size:255;not null;uniqueIndex" json:"-"`
	Difficulty int            `gorm:"column:difficulty;not null;default:1" json:"difficulty"`
	IsActive   bool           `gorm:"column:is_active;not null;default:true" json:"is_active"`
	ExpiresAt  *time.Time     `gorm:"column:expires_at" json:"expires_at,omitempty"`
	CreatedAt  time.Time      `gorm:"column:created_at;default:now()" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;default:now()" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

// TableName specifies the table name for GORM
func (Credential) TableName() string {
	return "api_key"
}

// QuotaBalance is the token balance of the user that owns a credential.
type QuotaBalance struct {
	ID    int64 `gorm:"primaryKey" json:"id"`
	Token int64 `gorm:"column:token;not null;default:0" json:"token"`
}

// TableName specifies the table name for GORM
func (QuotaBalance) TableName() string {
	return "auth_users"
}

// UsageStats holds per-credential, per-day counters.
type UsageStats struct {
	ID                int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CredentialID      int64     `gorm:"column:key_id;not null;uniqueIndex:uq_usage_stats_key_date" json:"key_id"`
	Date              time.Time `gorm:"column:date;type:date;not null;uniqueIndex:uq_usage_stats_key_date" json:"date"`
	TotalRequests     int64     `gorm:"column:captcha_total_requests;not null;default:0" json:"captcha_total_requests"`
	SuccessCount      int64     `gorm:"column:captcha_success_count;not null;default:0" json:"captcha_success_count"`
	FailCount         int64     `gorm:"column:captcha_fail_count;not null;default:0" json:"captcha_fail_count"`
	TimeoutCount      int64     `gorm:"column:captcha_timeout_count;not null;default:0" json:"captcha_timeout_count"`
	TotalLatencyMs    int64     `gorm:"column:total_latency_ms;not null;default:0" json:"total_latency_ms"`
	VerificationCount int64     `gorm:"column:verification_count;not null;default:0" json:"verification_count"`
	AvgResponseTimeMs float64   `gorm:"column:avg_response_time_ms;not null;default:0" json:"avg_response_time_ms"`
	CreatedAt         time.Time `gorm:"column:created_at;default:now()" json:"created_at"`
}

// TableName specifies the table name for GORM
func (UsageStats) TableName() string {
	return "usage_stats"
}
