package models

import (
	"time"

	"gorm.io/datatypes"
)

type SubmissionStatus string

const (
	StatusNew      SubmissionStatus = "new"
	StatusRead     SubmissionStatus = "read"
	StatusReplied  SubmissionStatus = "replied"
	StatusArchived SubmissionStatus = "archived"
)

func (s SubmissionStatus) Valid() bool {
	switch s {
	case StatusNew, StatusRead, StatusReplied, StatusArchived:
		return true
	}
	return false
}

// Free-text columns hold HTML-escaped values, which can be several times
// longer than the input that passed the length checks, so they are text.
type Submission struct {
	ID             uint             `gorm:"primaryKey;autoIncrement" json:"id"`
	Name           string           `gorm:"type:text;not null" json:"name"`
	Email          string           `gorm:"type:varchar(255);not null;index" json:"email"`
	Subject        string           `gorm:"type:text" json:"subject"`
	Message        string           `gorm:"type:text;not null" json:"message"`
	ResumeFilename *string          `gorm:"type:varchar(255)" json:"resume_filename,omitempty"`
	ResumePath     *string          `gorm:"type:varchar(512);index" json:"resume_path,omitempty"`
	IPAddress      string           `gorm:"type:varchar(45)" json:"ip_address"`
	UserAgent      string           `gorm:"type:text" json:"user_agent"`
	Status         SubmissionStatus `gorm:"type:varchar(16);not null;default:'new';index" json:"status"`
	CreatedAt      time.Time        `gorm:"index;not null" json:"created_at"`
}

type SecurityEvent struct {
	ID             uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	EventType      string         `gorm:"type:varchar(64);not null;index" json:"event_type"`
	Description    string         `gorm:"type:text" json:"description"`
	IPAddress      string         `gorm:"type:varchar(45)" json:"ip_address"`
	UserAgent      string         `gorm:"type:text" json:"user_agent"`
	AdditionalData datatypes.JSON `gorm:"type:json" json:"additional_data,omitempty"`
	CreatedAt      time.Time      `gorm:"index;not null" json:"created_at"`
}

type AnalyticsEvent struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	EventType     string    `gorm:"type:text;not null;index" json:"event_type"`
	EventCategory *string   `gorm:"type:text" json:"event_category,omitempty"`
	EventLabel    *string   `gorm:"type:text" json:"event_label,omitempty"`
	EventValue    *string   `gorm:"type:text" json:"event_value,omitempty"`
	PageURL       *string   `gorm:"type:text" json:"page_url,omitempty"`
	Referrer      *string   `gorm:"type:text" json:"referrer,omitempty"`
	IPAddress     string    `gorm:"type:varchar(45)" json:"ip_address"`
	UserAgent     string    `gorm:"type:text" json:"user_agent"`
	SessionID     *string   `gorm:"type:text;index" json:"session_id,omitempty"`
	CreatedAt     time.Time `gorm:"index;not null" json:"created_at"`
}

type PageView struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	PageURL      string    `gorm:"type:text;not null;index" json:"page_url"`
	PageTitle    *string   `gorm:"type:text" json:"page_title,omitempty"`
	Referrer     *string   `gorm:"type:text" json:"referrer,omitempty"`
	IPAddress    string    `gorm:"type:varchar(45)" json:"ip_address"`
	UserAgent    string    `gorm:"type:text" json:"user_agent"`
	SessionID    *string   `gorm:"type:text;index" json:"session_id,omitempty"`
	ViewDuration int       `gorm:"not null;default:0" json:"view_duration"`
	CreatedAt    time.Time `gorm:"index;not null" json:"created_at"`
}

// RateLimitHit is one admitted request in the durable rate limiter's window.
type RateLimitHit struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Key       string    `gorm:"column:client_key;type:varchar(128);not null;index:idx_rate_limit_key_time,priority:1"`
	CreatedAt time.Time `gorm:"not null;index:idx_rate_limit_key_time,priority:2"`
}

type AccessLog struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp time.Time `gorm:"index;not null"`
	Method    string    `gorm:"type:varchar(10);not null"`
	Path      string    `gorm:"type:text;not null"`
	Status    int       `gorm:"not null;index"`
	Duration  time.Duration
	ClientIP  string `gorm:"type:varchar(45);not null"`
	UserAgent string `gorm:"type:text"`
	BytesSent int    `gorm:"not null;default:0"`
	RequestID string `gorm:"type:varchar(36)"`
}

func (Submission) TableName() string {
	return "contact_submissions"
}

func (SecurityEvent) TableName() string {
	return "security_logs"
}

func (AnalyticsEvent) TableName() string {
	return "analytics_events"
}

func (PageView) TableName() string {
	return "page_views"
}

func (RateLimitHit) TableName() string {
	return "rate_limit_hits"
}

func (AccessLog) TableName() string {
	return "access_logs"
}

// All lists every model managed by AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&Submission{},
		&SecurityEvent{},
		&AnalyticsEvent{},
		&PageView{},
		&RateLimitHit{},
		&AccessLog{},
	}
}
