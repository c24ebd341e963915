package model

import (
	"database/sql/driver"
	"time"
)

// Outcome is the terminal state of a session.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFail    Outcome = "FAIL"
	OutcomeTimeout Outcome = "TIMEOUT"
)

// Scan implements sql.Scanner interface
func (o *Outcome) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*o = Outcome(v)
	case []byte:
		*o = Outcome(v)
	}
	return nil
}

// Value implements driver.Valuer interface
func (o Outcome) Value() (driver.Value, error) {
	return string(o), nil
}

// Lower returns the lower-case form used in API responses.
func (o Outcome) Lower() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFail:
		return "fail"
	case OutcomeTimeout:
		return "timeout"
	}
	return string(o)
}

// Verdict is the behavioral classification of a session's telemetry.
type Verdict string

const (
	VerdictHuman Verdict = "human"
	VerdictBot   Verdict = "bot"

	// VerdictUnclear is reserved for scorers that abstain near the threshold.
	VerdictUnclear Verdict = "unclear"
)

// TerminalLog is the single record of how a session ended.
type TerminalLog struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CredentialID *int64    `gorm:"column:api_key_id;index" json:"api_key_id,omitempty"`
	SessionID    int64     `gorm:"column:session_id;not null;uniqueIndex:uq_captcha_log_session" json:"session_id"`
	IPAddress    *string   `gorm:"column:ip_address;size:100" json:"ip_address,omitempty"`
	UserAgent    *string   `gorm:"column:user_agent;type:text" json:"user_agent,omitempty"`
	Result       Outcome   `gorm:"column:result;type:varchar(16);not null" json:"result"`
	LatencyMs    int64     `gorm:"column:latency_ms;not null" json:"latency_ms"`
	IsCorrect    *bool     `gorm:"column:is_correct" json:"is_correct,omitempty"`
	MLConfidence *float64  `gorm:"column:ml_confidence" json:"ml_confidence,omitempty"`
	MLVerdict    *Verdict  `gorm:"column:ml_verdict;type:varchar(16)" json:"ml_verdict,omitempty"`
	MLIsBot      *bool     `gorm:"column:ml_is_bot" json:"ml_is_bot,omitempty"`
	CreatedAt    time.Time `gorm:"column:created_at;default:now()" json:"created_at"`
}

// TableName specifies the table name for GORM
func (TerminalLog) TableName() string {
	return "captcha_log"
}

// Resolution is what the decision engine or the sweeper hands to the
// session store when a session ends.
type Resolution struct {
	Outcome     Outcome
	LatencyMs   int64
	IsCorrect   *bool
	Probability *float64
	Verdict     *Verdict
	IPAddress   *string
	UserAgent   *string
}
