package model

import (
	"time"

	"gorm.io/datatypes"
)

// Session is one issued challenge bound to a single-use client token.
// Rows are immutable after creation; resolution only attaches a TerminalLog.
type Session struct {
	ID           int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	CredentialID *int64         `gorm:"column:key_id;index:idx_captcha_session_key_created" json:"key_id,omitempty"`
	ProblemID    int64          `gorm:"column:captcha_problem_id;not null" json:"captcha_problem_id"`
	ClientToken  string         `gorm:"column:client_token;size:100;not null;uniqueIndex" json:"client_token"`
	IPAddress    *string        `gorm:"column:ip_address;size:100" json:"ip_address,omitempty"`
	UserAgent    *string        `gorm:"column:user_agent;type:text" json:"user_agent,omitempty"`
	Country      *string        `gorm:"column:country;size:2" json:"country,omitempty"`
	ROIMap       datatypes.JSON `gorm:"column:roi_map;type:jsonb" json:"roi_map,omitempty"`
	CreatedAt    time.Time      `gorm:"column:created_at;not null;default:now();index:idx_captcha_session_key_created" json:"created_at"`

	// Relations
	Problem *Problem `gorm:"foreignKey:ProblemID" json:"problem,omitempty"`
}

// TableName specifies the table name for GORM
func (Session) TableName() string {
	return "captcha_session"
}

// Elapsed returns the wall-clock time since issuance.
func (s *Session) Elapsed(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

// Problem is an immutable puzzle record.
type Problem struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ImageURL     string    `gorm:"column:image_url;size:512;not null" json:"image_url"`
	Answer       string    `gorm:"column:answer;size:100;not null" json:"answer"`
	WrongAnswer1 string    `gorm:"column:wrong_answer_1;size:100;not null" json:"wrong_answer_1"`
	WrongAnswer2 string    `gorm:"column:wrong_answer_2;size:100;not null" json:"wrong_answer_2"`
	WrongAnswer3 string    `gorm:"column:wrong_answer_3;size:100;not null" json:"wrong_answer_3"`
	Prompt       string    `gorm:"column:prompt;size:255;not null" json:"prompt"`
	Difficulty   int       `gorm:"column:difficulty;not null;index" json:"difficulty"`
	CreatedAt    time.Time `gorm:"column:created_at;default:now()" json:"created_at"`
	ExpiresAt    time.Time `gorm:"column:expires_at;not null" json:"expires_at"`
}

// TableName specifies the table name for GORM
func (Problem) TableName() string {
	return "captcha_problem"
}

// Options returns the correct answer followed by the three decoys.
func (p *Problem) Options() []string {
	return []string{p.Answer, p.WrongAnswer1, p.WrongAnswer2, p.WrongAnswer3}
}
