package intake

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sdko-org/portfolio-backend/internal/apperr"
	"github.com/sdko-org/portfolio-backend/internal/audit"
	"github.com/sdko-org/portfolio-backend/internal/database"
	"github.com/sdko-org/portfolio-backend/internal/models"
	"github.com/sdko-org/portfolio-backend/internal/ratelimit"
	"github.com/sdko-org/portfolio-backend/internal/sanitize"
	"github.com/sdko-org/portfolio-backend/internal/storage"
	"github.com/sdko-org/portfolio-backend/internal/submissions"
	"github.com/sdko-org/portfolio-backend/internal/upload"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeAudit struct {
	types []string
}

func (f *fakeAudit) Log(_ context.Context, eventType, _ string, _ map[string]any) audit.Outcome {
	f.types = append(f.types, eventType)
	return audit.Outcome{}
}

type fakeNotifier struct {
	notified []*models.Submission
	err      error
}

func (f *fakeNotifier) Notify(_ context.Context, s *models.Submission) audit.Outcome {
	f.notified = append(f.notified, s)
	return audit.Outcome{Err: f.err}
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("store unavailable")
}

type failingStore struct{}

func (failingStore) Record(context.Context, *models.Submission) (uint, error) {
	return 0, errors.New("connection reset")
}

type harness struct {
	pipeline *Pipeline
	db       *gorm.DB
	files    *storage.LocalStorage
	audit    *fakeAudit
	notifier *fakeNotifier
	recorder *submissions.Recorder
}

func newHarness(t *testing.T, limit int) *harness {
	t.Helper()
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	db, err := database.Open(quiet, database.Config{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "intake.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })

	files, err := storage.NewLocalStorage(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)

	logger, _ := test.NewNullLogger()
	rec := &fakeAudit{}
	notifier := &fakeNotifier{}
	recorder := submissions.NewRecorder(db)
	p := NewPipeline(logger, Options{
		Limiter: ratelimit.NewMemoryLimiter(limit, 300*time.Second),
		Uploads: upload.NewHandler(logger, files, rec, upload.Config{
			MaxFileSize:  5 * 1024 * 1024,
			AllowedTypes: []string{"pdf", "doc", "docx"},
		}),
		Store:        recorder,
		Notifier:     notifier,
		Audit:        rec,
		StoreTimeout: time.Second,
	})
	return &harness{pipeline: p, db: db, files: files, audit: rec, notifier: notifier, recorder: recorder}
}

func (h *harness) rows(t *testing.T) int64 {
	var n int64
	require.NoError(t, h.db.Model(&models.Submission{}).Count(&n).Error)
	return n
}

func request(name, email, message string) Request {
	return Request{
		Form:   sanitize.ContactInput{Name: name, Email: email, Message: message},
		Client: audit.Client{IP: "198.51.100.7", UserAgent: "test-agent"},
	}
}

func TestSubmitSuccess(t *testing.T) {
	h := newHarness(t, 5)
	ctx := context.Background()

	req := request("A", "a@b.com", "hi")
	req.Form.Subject = "Hello"
	res, err := h.pipeline.Submit(ctx, req)
	require.NoError(t, err)
	assert.NotZero(t, res.SubmissionID)
	assert.Equal(t, SuccessMessage, res.Message)
	assert.False(t, res.Spam)

	got, err := h.recorder.Get(ctx, res.SubmissionID)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Name)
	assert.Equal(t, "a@b.com", got.Email)
	assert.Equal(t, "Hello", got.Subject)
	assert.Equal(t, "hi", got.Message)
	assert.Equal(t, models.StatusNew, got.Status)
	assert.Equal(t, "198.51.100.7", got.IPAddress)
	assert.Equal(t, "test-agent", got.UserAgent)

	require.Len(t, h.notifier.notified, 1)
	assert.Equal(t, []string{audit.EventFormSubmission}, h.audit.types)
}

func TestSubmitMissingFieldsPersistNothing(t *testing.T) {
	h := newHarness(t, 100)

	for _, req := range []Request{
		request("", "a@b.com", "hi"),
		request("A", "", "hi"),
		request("A", "a@b.com", ""),
	} {
		_, err := h.pipeline.Submit(context.Background(), req)
		require.Error(t, err)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	}
	assert.Zero(t, h.rows(t))
	assert.Empty(t, h.notifier.notified)
	assert.Equal(t, []string{audit.EventFormError, audit.EventFormError, audit.EventFormError}, h.audit.types)
}

func TestSubmitInvalidEmail(t *testing.T) {
	h := newHarness(t, 5)

	_, err := h.pipeline.Submit(context.Background(), request("A", "not-an-email", "hi"))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, "Invalid email address", apperr.Message(err))
}

func TestSubmitMessageLengthBoundary(t *testing.T) {
	h := newHarness(t, 5)

	_, err := h.pipeline.Submit(context.Background(), request("A", "a@b.com", strings.Repeat("m", 5001)))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	res, err := h.pipeline.Submit(context.Background(), request("A", "a@b.com", strings.Repeat("m", 5000)))
	require.NoError(t, err)
	assert.NotZero(t, res.SubmissionID)
}

func TestSubmitRateLimited(t *testing.T) {
	h := newHarness(t, 5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := h.pipeline.Submit(ctx, request("A", "a@b.com", "hi"))
		require.NoError(t, err, "request %d", i+1)
	}
	_, err := h.pipeline.Submit(ctx, request("A", "a@b.com", "hi"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindRateLimit, apperr.KindOf(err))
	assert.Equal(t, RateLimitMessage, apperr.Message(err))

	var rl *RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Greater(t, rl.RetryAfter, time.Duration(0))

	assert.Equal(t, int64(5), h.rows(t))
	assert.Equal(t, audit.EventRateLimitExceeded, h.audit.types[len(h.audit.types)-1])

	other := request("A", "a@b.com", "hi")
	other.Client.IP = "198.51.100.8"
	_, err = h.pipeline.Submit(ctx, other)
	assert.NoError(t, err)
}

func TestSubmitLimiterFailureFailsClosed(t *testing.T) {
	h := newHarness(t, 5)
	h.pipeline.limiter = brokenLimiter{}

	_, err := h.pipeline.Submit(context.Background(), request("A", "a@b.com", "hi"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindStorage, apperr.KindOf(err))
	assert.Zero(t, h.rows(t))
	assert.Equal(t, []string{audit.EventFormError}, h.audit.types)
}

func TestRejectedRequestsSpendTheBudget(t *testing.T) {
	h := newHarness(t, 5)
	ctx := context.Background()
	req := request("", "", "")

	for i := 0; i < 5; i++ {
		require.NoError(t, h.pipeline.Admit(ctx, req.Client), "request %d", i+1)
		err := h.pipeline.Reject(ctx, req, apperr.Validation("Invalid JSON data"))
		assert.Equal(t, "Invalid JSON data", apperr.Message(err))
	}

	err := h.pipeline.Admit(ctx, req.Client)
	assert.Equal(t, apperr.KindRateLimit, apperr.KindOf(err))
	assert.Equal(t, []string{
		audit.EventFormError, audit.EventFormError, audit.EventFormError,
		audit.EventFormError, audit.EventFormError, audit.EventRateLimitExceeded,
	}, h.audit.types)
	assert.Zero(t, h.rows(t))
}

func TestSubmitStoresFullyEscapedFields(t *testing.T) {
	h := newHarness(t, 5)

	req := request(strings.Repeat("'", sanitize.MaxNameLength), "a@b.com", "hi")
	req.Form.Subject = strings.Repeat("\"", sanitize.MaxSubjectLength)
	res, err := h.pipeline.Submit(context.Background(), req)
	require.NoError(t, err)

	var sub models.Submission
	require.NoError(t, h.db.First(&sub, res.SubmissionID).Error)
	assert.Equal(t, strings.Repeat("&#39;", sanitize.MaxNameLength), sub.Name)
	assert.Equal(t, strings.Repeat("&#34;", sanitize.MaxSubjectLength), sub.Subject)
}

func TestSubmitRejectsExecutableUpload(t *testing.T) {
	h := newHarness(t, 5)

	req := request("A", "a@b.com", "hi")
	req.Resume = &upload.File{Name: "cv.exe", Size: 2, Content: strings.NewReader("MZ")}
	_, err := h.pipeline.Submit(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Zero(t, h.rows(t))

	objects, _ := h.files.List(context.Background())
	assert.Empty(t, objects)
}

func TestSubmitStoresResumeUnderGeneratedName(t *testing.T) {
	h := newHarness(t, 5)
	ctx := context.Background()

	req := request("A", "a@b.com", "hi")
	req.Resume = &upload.File{Name: "cv.pdf", Size: 4, ContentType: "application/pdf", Content: strings.NewReader("%PDF")}
	res, err := h.pipeline.Submit(ctx, req)
	require.NoError(t, err)

	got, err := h.recorder.Get(ctx, res.SubmissionID)
	require.NoError(t, err)
	require.NotNil(t, got.ResumeFilename)
	assert.NotEqual(t, "cv.pdf", *got.ResumeFilename)
	assert.True(t, strings.HasSuffix(*got.ResumeFilename, "_cv.pdf"))
	require.NotNil(t, got.ResumePath)

	objects, _ := h.files.List(ctx)
	require.Len(t, objects, 1)
	assert.Equal(t, *got.ResumeFilename, objects[0].Key)
	assert.Equal(t, []string{audit.EventFileUpload, audit.EventFormSubmission}, h.audit.types)
}

func TestSubmitStoreFailureRemovesUpload(t *testing.T) {
	h := newHarness(t, 5)
	h.pipeline.store = failingStore{}

	req := request("A", "a@b.com", "hi")
	req.Resume = &upload.File{Name: "cv.pdf", Size: 4, Content: strings.NewReader("%PDF")}
	_, err := h.pipeline.Submit(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, apperr.KindStorage, apperr.KindOf(err))
	assert.False(t, apperr.Public(err))

	objects, _ := h.files.List(context.Background())
	assert.Empty(t, objects)
	assert.Empty(t, h.notifier.notified)
	assert.Equal(t, audit.EventFormError, h.audit.types[len(h.audit.types)-1])
}

func TestSubmitNotificationFailureStillSucceeds(t *testing.T) {
	h := newHarness(t, 5)
	h.notifier.err = errors.New("smtp down")

	res, err := h.pipeline.Submit(context.Background(), request("A", "a@b.com", "hi"))
	require.NoError(t, err)
	assert.NotZero(t, res.SubmissionID)
	assert.False(t, res.Notified.OK())
	assert.Equal(t, int64(1), h.rows(t))
}

func TestSubmitHoneypot(t *testing.T) {
	h := newHarness(t, 5)

	req := request("A", "a@b.com", "hi")
	req.Form.Website = "http://spam.example"
	res, err := h.pipeline.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Spam)
	assert.Zero(t, res.SubmissionID)
	assert.Zero(t, h.rows(t))
	assert.Equal(t, []string{audit.EventHoneypot}, h.audit.types)
}
