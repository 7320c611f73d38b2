package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sdko-org/portfolio-backend/internal/apperr"
	"github.com/sdko-org/portfolio-backend/internal/audit"
	"github.com/sdko-org/portfolio-backend/internal/models"
	"github.com/sdko-org/portfolio-backend/internal/sanitize"
	"gorm.io/gorm"
)

// Ceilings are counted in characters before escaping.
const (
	MaxEventTypeLength = 100
	MaxCategoryLength  = 100
	MaxLabelLength     = 255
	MaxValueLength     = 255
	MaxURLLength       = 2048
	MaxTitleLength     = 255
	MaxSessionIDLength = 128
)

type EventInput struct {
	EventType     string  `json:"event_type"`
	EventCategory *string `json:"event_category"`
	EventLabel    *string `json:"event_label"`
	EventValue    *Value  `json:"event_value"`
	PageURL       *string `json:"page_url"`
	Referrer      *string `json:"referrer"`
	SessionID     *string `json:"session_id"`
}

// Value accepts a JSON string or number; tracking scripts send both.
type Value string

func (v *Value) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*v = Value(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("event_value must be a string or number")
	}
	*v = Value(n.String())
	return nil
}

func (v *Value) Ptr() *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

type PageViewInput struct {
	PageURL      string  `json:"page_url"`
	PageTitle    *string `json:"page_title"`
	Referrer     *string `json:"referrer"`
	SessionID    *string `json:"session_id"`
	ViewDuration int     `json:"view_duration"`
}

type EventCount struct {
	EventType string `json:"event_type"`
	Count     int64  `json:"count"`
}

type PageCount struct {
	PageURL string `json:"page_url"`
	Views   int64  `json:"views"`
}

type Summary struct {
	TotalPageViews          int64        `json:"total_page_views"`
	TotalContactSubmissions int64        `json:"total_contact_submissions"`
	RecentSubmissions       int64        `json:"recent_submissions"`
	RecentEvents            []EventCount `json:"recent_events"`
	TopPages                []PageCount  `json:"top_pages"`
}

type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

func (s *Service) RecordEvent(ctx context.Context, in EventInput, client audit.Client) (uint, error) {
	if strings.TrimSpace(in.EventType) == "" {
		return 0, apperr.Validation("event_type is required")
	}
	if err := checkLengths(
		field{"event_type", &in.EventType, MaxEventTypeLength},
		field{"event_category", in.EventCategory, MaxCategoryLength},
		field{"event_label", in.EventLabel, MaxLabelLength},
		field{"event_value", (*string)(in.EventValue), MaxValueLength},
		field{"page_url", in.PageURL, MaxURLLength},
		field{"referrer", in.Referrer, MaxURLLength},
		field{"session_id", in.SessionID, MaxSessionIDLength},
	); err != nil {
		return 0, err
	}
	eventType := sanitize.Text(in.EventType)

	ev := models.AnalyticsEvent{
		EventType:     eventType,
		EventCategory: sanitize.Optional(in.EventCategory),
		EventLabel:    sanitize.Optional(in.EventLabel),
		EventValue:    sanitize.Optional(in.EventValue.Ptr()),
		PageURL:       sanitize.Optional(in.PageURL),
		Referrer:      sanitize.Optional(in.Referrer),
		SessionID:     sanitize.Optional(in.SessionID),
		IPAddress:     client.IP,
		UserAgent:     client.UserAgent,
		CreatedAt:     s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&ev).Error; err != nil {
		return 0, apperr.Storage("Failed to record event", err)
	}
	return ev.ID, nil
}

func (s *Service) RecordPageView(ctx context.Context, in PageViewInput, client audit.Client) (uint, error) {
	if strings.TrimSpace(in.PageURL) == "" {
		return 0, apperr.Validation("page_url is required")
	}
	if err := checkLengths(
		field{"page_url", &in.PageURL, MaxURLLength},
		field{"page_title", in.PageTitle, MaxTitleLength},
		field{"referrer", in.Referrer, MaxURLLength},
		field{"session_id", in.SessionID, MaxSessionIDLength},
	); err != nil {
		return 0, err
	}
	pageURL := sanitize.Text(in.PageURL)

	pv := models.PageView{
		PageURL:      pageURL,
		PageTitle:    sanitize.Optional(in.PageTitle),
		Referrer:     sanitize.Optional(in.Referrer),
		SessionID:    sanitize.Optional(in.SessionID),
		ViewDuration: max(0, in.ViewDuration),
		IPAddress:    client.IP,
		UserAgent:    client.UserAgent,
		CreatedAt:    s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&pv).Error; err != nil {
		return 0, apperr.Storage("Failed to track page view", err)
	}
	return pv.ID, nil
}

type field struct {
	name  string
	value *string
	max   int
}

func checkLengths(fields ...field) error {
	for _, f := range fields {
		if f.value == nil {
			continue
		}
		if utf8.RuneCountInString(strings.TrimSpace(*f.value)) > f.max {
			return apperr.Validation(fmt.Sprintf("%s is too long (max %d characters)", f.name, f.max))
		}
	}
	return nil
}

// Summary aggregates totals, the last 24h of events by type and the top 10
// pages of the last 7 days.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	now := s.now()
	db := s.db.WithContext(ctx)
	sum := &Summary{RecentEvents: []EventCount{}, TopPages: []PageCount{}}

	if err := db.Model(&models.PageView{}).Count(&sum.TotalPageViews).Error; err != nil {
		return nil, fmt.Errorf("count page views: %w", err)
	}
	if err := db.Model(&models.Submission{}).Count(&sum.TotalContactSubmissions).Error; err != nil {
		return nil, fmt.Errorf("count submissions: %w", err)
	}
	if err := db.Model(&models.Submission{}).
		Where("created_at > ?", now.Add(-7*24*time.Hour)).
		Count(&sum.RecentSubmissions).Error; err != nil {
		return nil, fmt.Errorf("count recent submissions: %w", err)
	}

	if err := db.Model(&models.AnalyticsEvent{}).
		Select("event_type, COUNT(*) AS count").
		Where("created_at > ?", now.Add(-24*time.Hour)).
		Group("event_type").
		Order("count DESC").
		Order("event_type ASC").
		Scan(&sum.RecentEvents).Error; err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}

	if err := db.Model(&models.PageView{}).
		Select("page_url, COUNT(*) AS views").
		Where("created_at > ?", now.Add(-7*24*time.Hour)).
		Group("page_url").
		Order("views DESC").
		Order("page_url ASC").
		Limit(10).
		Scan(&sum.TopPages).Error; err != nil {
		return nil, fmt.Errorf("top pages: %w", err)
	}

	if sum.RecentEvents == nil {
		sum.RecentEvents = []EventCount{}
	}
	if sum.TopPages == nil {
		sum.TopPages = []PageCount{}
	}
	return sum, nil
}
