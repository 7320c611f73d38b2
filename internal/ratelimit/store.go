package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/sdko-org/portfolio-backend/internal/models"
	"gorm.io/gorm"
)

// StoreLimiter keeps its sliding-window log in the rate_limit_hits table so
// that the window survives restarts and is shared by every process using the
// same database. Each decision runs in one transaction.
type StoreLimiter struct {
	db     *gorm.DB
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewStoreLimiter(db *gorm.DB, limit int, window time.Duration) *StoreLimiter {
	return &StoreLimiter{db: db, limit: limit, window: window, now: time.Now}
}

func (s *StoreLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := s.now()
	cutoff := now.Add(-s.window)
	decision := Decision{Limit: s.limit}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("client_key = ? AND created_at <= ?", key, cutoff).
			Delete(&models.RateLimitHit{}).Error; err != nil {
			return fmt.Errorf("expire hits: %w", err)
		}

		var count int64
		if err := tx.Model(&models.RateLimitHit{}).
			Where("client_key = ? AND created_at > ?", key, cutoff).
			Count(&count).Error; err != nil {
			return fmt.Errorf("count hits: %w", err)
		}

		if int(count) >= s.limit {
			var oldest models.RateLimitHit
			if err := tx.Where("client_key = ? AND created_at > ?", key, cutoff).
				Order("created_at ASC").
				First(&oldest).Error; err != nil {
				return fmt.Errorf("oldest hit: %w", err)
			}
			decision.Count = int(count)
			decision.RetryAfter = oldest.CreatedAt.Add(s.window).Sub(now)
			return nil
		}

		if err := tx.Create(&models.RateLimitHit{Key: key, CreatedAt: now}).Error; err != nil {
			return fmt.Errorf("record hit: %w", err)
		}
		decision.Allowed = true
		decision.Count = int(count) + 1
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %q: %w", key, err)
	}
	return decision, nil
}

// Purge deletes every hit older than the window, for all keys.
func (s *StoreLimiter) Purge(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("created_at <= ?", s.now().Add(-s.window)).
		Delete(&models.RateLimitHit{})
	return res.RowsAffected, res.Error
}
