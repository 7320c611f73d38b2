package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sdko-org/portfolio-backend/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Event types written by the intake pipeline and the admin API.
const (
	EventRateLimitExceeded = "rate_limit_exceeded"
	EventFileUpload        = "file_upload"
	EventFormSubmission    = "form_submission"
	EventFormError         = "form_error"
	EventHoneypot          = "honeypot_triggered"
	EventEmailSent         = "email_sent"
	EventEmailFailed       = "email_failed"
	EventEmailError        = "email_error"
	EventUploadOrphaned    = "upload_orphaned"
	EventOrphanRemoved     = "orphan_upload_removed"
	EventAdminLogin        = "admin_login"
	EventAdminLoginFailed  = "admin_login_failed"
	EventStatusChanged     = "submission_status_changed"
)

// Outcome is the result of a best-effort operation. A non-nil Err never
// aborts the caller's workflow.
type Outcome struct {
	Err error
}

func (o Outcome) OK() bool {
	return o.Err == nil
}

type Recorder interface {
	Log(ctx context.Context, eventType, description string, data map[string]any) Outcome
}

type Logger struct {
	db      *gorm.DB
	log     *logrus.Entry
	timeout time.Duration
	now     func() time.Time
}

func NewLogger(logger *logrus.Logger, db *gorm.DB, timeout time.Duration) *Logger {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Logger{
		db:      db,
		log:     logger.WithField("component", "security_log"),
		timeout: timeout,
		now:     time.Now,
	}
}

// Log appends a security event. The caller's IP and user-agent come from the
// Client stored in ctx. Failures are written to the operational log and
// returned in the Outcome only.
func (l *Logger) Log(ctx context.Context, eventType, description string, data map[string]any) Outcome {
	client := ClientFrom(ctx)
	event := models.SecurityEvent{
		EventType:   eventType,
		Description: description,
		IPAddress:   client.IP,
		UserAgent:   client.UserAgent,
		CreatedAt:   l.now(),
	}

	if len(data) > 0 {
		raw, err := json.Marshal(data)
		if err != nil {
			l.log.WithError(err).WithField("event_type", eventType).Warn("Security event payload not serializable")
		} else {
			event.AdditionalData = datatypes.JSON(raw)
		}
	}

	// the audit row outlives a cancelled request
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	if err := l.db.WithContext(writeCtx).Create(&event).Error; err != nil {
		l.log.WithFields(logrus.Fields{
			"event_type":  eventType,
			"description": description,
			"client_ip":   client.IP,
			"error":       err,
		}).Warn("Failed to save security event")
		return Outcome{Err: fmt.Errorf("save security event: %w", err)}
	}

	l.log.WithFields(logrus.Fields{
		"event_type": eventType,
		"client_ip":  client.IP,
	}).Debug(description)
	return Outcome{}
}

func (l *Logger) Recent(ctx context.Context, n int) ([]models.SecurityEvent, error) {
	var events []models.SecurityEvent
	err := l.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(n).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("recent security events: %w", err)
	}
	return events, nil
}
