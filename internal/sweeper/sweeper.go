// Package sweeper runs periodic housekeeping: expiring rate limiter state,
// trimming the access log and removing uploads no submission refers to.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/sdko-org/portfolio-backend/internal/audit"
	"github.com/sdko-org/portfolio-backend/internal/models"
	"github.com/sdko-org/portfolio-backend/internal/storage"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const referenceBatch = 500

// Purger deletes expired durable rate limiter rows.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// Forgetter drops idle in-memory limiter state.
type Forgetter interface {
	Sweep() int
}

type ReferenceChecker interface {
	Referenced(ctx context.Context, keys []string) (map[string]bool, error)
}

type Options struct {
	Interval           time.Duration
	OrphanGrace        time.Duration
	AccessLogRetention time.Duration

	Files      storage.Storage
	References ReferenceChecker
	Audit      audit.Recorder
	Hits       Purger
	Limiters   []Forgetter
}

// Report counts what one pass removed.
type Report struct {
	RateLimitHits int64
	AccessLogs    int64
	Orphans       int
	IdleClients   int
}

type Sweeper struct {
	logger *logrus.Logger
	db     *gorm.DB
	opts   Options
	now    func() time.Time
}

func NewSweeper(logger *logrus.Logger, db *gorm.DB, opts Options) *Sweeper {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Minute
	}
	return &Sweeper{
		logger: logger,
		db:     db,
		opts:   opts,
		now:    time.Now,
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	logEntry := s.logger.WithField("component", "sweeper")
	logEntry.WithField("interval", s.opts.Interval).Info("Starting sweeper")

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-ctx.Done():
			logEntry.Info("Stopping sweeper")
			return
		}
	}
}

// RunOnce performs a single pass. Failures in one step are logged and do not
// stop the others.
func (s *Sweeper) RunOnce(ctx context.Context) Report {
	log := s.logger.WithFields(logrus.Fields{"component": "sweeper", "operation": "sweep"})
	var report Report

	for _, l := range s.opts.Limiters {
		report.IdleClients += l.Sweep()
	}

	if s.opts.Hits != nil {
		n, err := s.opts.Hits.Purge(ctx)
		if err != nil {
			log.WithError(err).Error("Rate limit purge failed")
		}
		report.RateLimitHits = n
	}

	if s.opts.AccessLogRetention > 0 {
		res := s.db.WithContext(ctx).
			Where("timestamp < ?", s.now().Add(-s.opts.AccessLogRetention)).
			Delete(&models.AccessLog{})
		if res.Error != nil {
			log.WithError(res.Error).Error("Access log purge failed")
		}
		report.AccessLogs = res.RowsAffected
	}

	if s.opts.Files != nil && s.opts.References != nil {
		n, err := s.removeOrphans(ctx, log)
		if err != nil {
			log.WithError(err).Error("Orphan upload sweep failed")
		}
		report.Orphans = n
	}

	log.WithFields(logrus.Fields{
		"rate_limit_hits": report.RateLimitHits,
		"access_logs":     report.AccessLogs,
		"orphans":         report.Orphans,
		"idle_clients":    report.IdleClients,
	}).Info("Sweep finished")
	return report
}

func (s *Sweeper) removeOrphans(ctx context.Context, log *logrus.Entry) (int, error) {
	objects, err := s.opts.Files.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list uploads: %w", err)
	}

	// recent files may belong to a submission that is still being recorded
	cutoff := s.now().Add(-s.opts.OrphanGrace)
	var candidates []storage.Object
	for _, obj := range objects {
		if obj.ModTime.Before(cutoff) {
			candidates = append(candidates, obj)
		}
	}

	removed := 0
	for start := 0; start < len(candidates); start += referenceBatch {
		batch := candidates[start:min(start+referenceBatch, len(candidates))]
		keys := make([]string, len(batch))
		for i, obj := range batch {
			keys[i] = obj.Key
		}

		referenced, err := s.opts.References.Referenced(ctx, keys)
		if err != nil {
			return removed, err
		}

		for _, obj := range batch {
			if referenced[obj.Key] {
				continue
			}
			if err := s.opts.Files.Delete(ctx, obj.Key); err != nil {
				log.WithFields(logrus.Fields{"key": obj.Key, "error": err}).Error("Failed to delete orphan upload")
				continue
			}
			removed++
			if s.opts.Audit != nil {
				s.opts.Audit.Log(ctx, audit.EventOrphanRemoved, "Unreferenced upload removed", map[string]any{
					"filename": obj.Key,
					"size":     obj.Size,
				})
			}
		}
	}
	return removed, nil
}
