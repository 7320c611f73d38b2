package sweeper

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sdko-org/portfolio-backend/internal/audit"
	"github.com/sdko-org/portfolio-backend/internal/database"
	"github.com/sdko-org/portfolio-backend/internal/models"
	"github.com/sdko-org/portfolio-backend/internal/storage"
	"github.com/sdko-org/portfolio-backend/internal/submissions"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakePurger struct {
	n   int64
	err error
}

func (f *fakePurger) Purge(context.Context) (int64, error) {
	return f.n, f.err
}

type fakeForgetter int

func (f fakeForgetter) Sweep() int {
	return int(f)
}

type fakeAudit struct {
	data []map[string]any
}

func (f *fakeAudit) Log(_ context.Context, eventType, _ string, data map[string]any) audit.Outcome {
	if eventType == audit.EventOrphanRemoved {
		f.data = append(f.data, data)
	}
	return audit.Outcome{}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	db, err := database.Open(quiet, database.Config{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "sweeper.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })
	return db
}

func save(t *testing.T, files storage.Storage, key string, age time.Duration) {
	t.Helper()
	path, err := files.Save(context.Background(), key, strings.NewReader("%PDF"), "application/pdf")
	require.NoError(t, err)
	old := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, old, old))
}

func TestRunOnceRemovesUnreferencedOldUploads(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	files, err := storage.NewLocalStorage(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)
	recorder := submissions.NewRecorder(db)

	save(t, files, "kept_cv.pdf", 2*time.Hour)
	save(t, files, "orphan_cv.pdf", 2*time.Hour)
	save(t, files, "fresh_cv.pdf", time.Minute)

	kept := "kept_cv.pdf"
	_, err = recorder.Record(ctx, &models.Submission{Name: "A", Email: "a@b.com", Message: "hi", ResumeFilename: &kept})
	require.NoError(t, err)

	rec := &fakeAudit{}
	logger, _ := test.NewNullLogger()
	s := NewSweeper(logger, db, Options{
		OrphanGrace: time.Hour,
		Files:       files,
		References:  recorder,
		Audit:       rec,
	})

	report := s.RunOnce(ctx)
	assert.Equal(t, 1, report.Orphans)

	objects, err := files.List(ctx)
	require.NoError(t, err)
	var keys []string
	for _, o := range objects {
		keys = append(keys, o.Key)
	}
	assert.ElementsMatch(t, []string{"kept_cv.pdf", "fresh_cv.pdf"}, keys)

	require.Len(t, rec.data, 1)
	assert.Equal(t, "orphan_cv.pdf", rec.data[0]["filename"])
}

func TestRunOnceTrimsAccessLogs(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&[]models.AccessLog{
		{Timestamp: now.Add(-48 * time.Hour), Method: "GET", Path: "/old", ClientIP: "192.0.2.1"},
		{Timestamp: now.Add(-time.Hour), Method: "GET", Path: "/new", ClientIP: "192.0.2.1"},
	}).Error)

	logger, _ := test.NewNullLogger()
	s := NewSweeper(logger, db, Options{AccessLogRetention: 24 * time.Hour})
	s.now = func() time.Time { return now }

	report := s.RunOnce(context.Background())
	assert.Equal(t, int64(1), report.AccessLogs)

	var paths []string
	require.NoError(t, db.Model(&models.AccessLog{}).Pluck("path", &paths).Error)
	assert.Equal(t, []string{"/new"}, paths)
}

func TestRunOnceContinuesPastFailures(t *testing.T) {
	db := newTestDB(t)
	logger, hook := test.NewNullLogger()
	s := NewSweeper(logger, db, Options{
		Hits:     &fakePurger{err: errors.New("locked")},
		Limiters: []Forgetter{fakeForgetter(2), fakeForgetter(3)},
	})

	report := s.RunOnce(context.Background())
	assert.Equal(t, 5, report.IdleClients)
	assert.Zero(t, report.RateLimitHits)

	var messages []string
	for _, e := range hook.AllEntries() {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "Rate limit purge failed")
	assert.Contains(t, messages, "Sweep finished")
}

func TestStartStopsWithContext(t *testing.T) {
	db := newTestDB(t)
	logger, _ := test.NewNullLogger()
	purger := &fakePurger{n: 1}
	s := NewSweeper(logger, db, Options{Interval: 10 * time.Millisecond, Hits: purger})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
