package submissions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sdko-org/portfolio-backend/internal/apperr"
	"github.com/sdko-org/portfolio-backend/internal/models"
	"gorm.io/gorm"
)

const (
	DefaultPageSize = 20
	MinPageSize     = 10
	MaxPageSize     = 50
)

type Page struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

// NewPage normalizes raw paging input: page is at least 1 and limit is
// clamped to [MinPageSize, MaxPageSize], defaulting to DefaultPageSize.
func NewPage(page, limit int) Page {
	if page < 1 {
		page = 1
	}
	if limit == 0 {
		limit = DefaultPageSize
	}
	limit = min(MaxPageSize, max(MinPageSize, limit))
	return Page{Page: page, Limit: limit}
}

type Recorder struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db, now: time.Now}
}

// Record inserts s with status new and returns the store-assigned id.
func (r *Recorder) Record(ctx context.Context, s *models.Submission) (uint, error) {
	s.ID = 0
	s.Status = models.StatusNew
	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.now()
	}
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return 0, fmt.Errorf("insert submission: %w", err)
	}
	return s.ID, nil
}

func (r *Recorder) Get(ctx context.Context, id uint) (*models.Submission, error) {
	var s models.Submission
	err := r.db.WithContext(ctx).First(&s, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("Submission not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get submission %d: %w", id, err)
	}
	return &s, nil
}

// View returns the submission for the operator and marks it read if it was
// still new.
func (r *Recorder) View(ctx context.Context, id uint) (*models.Submission, error) {
	s, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Status != models.StatusNew {
		return s, nil
	}

	res := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ? AND status = ?", id, models.StatusNew).
		Update("status", models.StatusRead)
	if res.Error != nil {
		return nil, fmt.Errorf("mark submission %d read: %w", id, res.Error)
	}
	s.Status = models.StatusRead
	return s, nil
}

func (r *Recorder) SetStatus(ctx context.Context, id uint, status models.SubmissionStatus) (*models.Submission, error) {
	if !status.Valid() {
		return nil, apperr.Validation("Invalid status")
	}
	err := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ?", id).
		Update("status", status).Error
	if err != nil {
		return nil, fmt.Errorf("update submission %d: %w", id, err)
	}
	return r.Get(ctx, id)
}

// List returns one page of submissions, newest first, with the total count
// filled into the returned Page.
func (r *Recorder) List(ctx context.Context, p Page) ([]models.Submission, Page, error) {
	total, err := r.Count(ctx)
	if err != nil {
		return nil, p, err
	}
	p.Total = total
	p.Pages = (total + int64(p.Limit) - 1) / int64(p.Limit)

	var out []models.Submission
	err = r.db.WithContext(ctx).
		Select("id", "name", "email", "subject", "message", "status", "created_at", "resume_filename").
		Order("created_at DESC").
		Order("id DESC").
		Limit(p.Limit).
		Offset((p.Page - 1) * p.Limit).
		Find(&out).Error
	if err != nil {
		return nil, p, fmt.Errorf("list submissions: %w", err)
	}
	return out, p, nil
}

func (r *Recorder) Recent(ctx context.Context, n int) ([]models.Submission, error) {
	var out []models.Submission
	err := r.db.WithContext(ctx).
		Select("id", "name", "email", "subject", "status", "created_at").
		Order("created_at DESC").
		Order("id DESC").
		Limit(n).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("recent submissions: %w", err)
	}
	return out, nil
}

func (r *Recorder) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Submission{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return n, nil
}

func (r *Recorder) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("created_at > ?", since).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return n, nil
}

// Referenced returns the subset of keys that some submission points at as
// its resume file.
func (r *Recorder) Referenced(ctx context.Context, keys []string) (map[string]bool, error) {
	out := make(map[string]bool, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	var found []string
	err := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("resume_filename IN ?", keys).
		Pluck("resume_filename", &found).Error
	if err != nil {
		return nil, fmt.Errorf("referenced uploads: %w", err)
	}
	for _, k := range found {
		out[k] = true
	}
	return out, nil
}
