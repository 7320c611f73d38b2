package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jordan-wright/email"
	"github.com/sdko-org/portfolio-backend/internal/audit"
	"github.com/sdko-org/portfolio-backend/internal/models"
	"github.com/sdko-org/portfolio-backend/internal/storage"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sendFunc func(ctx context.Context, e *email.Email) error
	sent     []*email.Email
}

func (f *fakeSender) Send(ctx context.Context, e *email.Email) error {
	f.sent = append(f.sent, e)
	if f.sendFunc != nil {
		return f.sendFunc(ctx, e)
	}
	return nil
}

type fakeAudit struct {
	types []string
}

func (f *fakeAudit) Log(_ context.Context, eventType, _ string, _ map[string]any) audit.Outcome {
	f.types = append(f.types, eventType)
	return audit.Outcome{}
}

func cfg() Config {
	return Config{AppName: "Portfolio", AdminEmail: "owner@example.com", From: "noreply@example.com", Timeout: time.Second}
}

func submission() *models.Submission {
	return &models.Submission{
		ID:        7,
		Name:      "Tom &amp; Jerry",
		Email:     "tj@example.com",
		Message:   "line one\nline &lt;two&gt;",
		CreatedAt: time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC),
	}
}

func TestNotifySendsToOperator(t *testing.T) {
	sender := &fakeSender{}
	rec := &fakeAudit{}
	logger, _ := test.NewNullLogger()
	n := NewNotifier(logger, sender, nil, rec, cfg())

	out := n.Notify(context.Background(), submission())
	require.True(t, out.OK())
	require.Len(t, sender.sent, 1)

	e := sender.sent[0]
	assert.Equal(t, []string{"owner@example.com"}, e.To)
	assert.Equal(t, "Portfolio <noreply@example.com>", e.From)
	assert.Equal(t, []string{"tj@example.com"}, e.ReplyTo)
	assert.Equal(t, "New Contact Form Submission - No Subject", e.Subject)
	assert.Contains(t, string(e.Text), "Name: Tom & Jerry")
	assert.Contains(t, string(e.Text), "line <two>")
	assert.Contains(t, string(e.HTML), "line one<br />")
	assert.Contains(t, string(e.HTML), "Tom &amp; Jerry")
	assert.Contains(t, string(e.HTML), "2026-04-02 09:30:00")
	assert.NotContains(t, string(e.HTML), "Resume")
	assert.Equal(t, []string{audit.EventEmailSent}, rec.types)
}

func TestNotifyTransportErrorIsBestEffort(t *testing.T) {
	sender := &fakeSender{sendFunc: func(context.Context, *email.Email) error {
		return errors.New("connection refused")
	}}
	rec := &fakeAudit{}
	logger, _ := test.NewNullLogger()
	n := NewNotifier(logger, sender, nil, rec, cfg())

	out := n.Notify(context.Background(), submission())
	assert.False(t, out.OK())
	assert.Equal(t, []string{audit.EventEmailError}, rec.types)
}

func TestNotifyUnconfigured(t *testing.T) {
	rec := &fakeAudit{}
	logger, _ := test.NewNullLogger()
	c := cfg()
	c.AdminEmail = ""
	n := NewNotifier(logger, &fakeSender{}, nil, rec, c)

	out := n.Notify(context.Background(), submission())
	assert.ErrorIs(t, out.Err, ErrNotConfigured)
	assert.Equal(t, []string{audit.EventEmailFailed}, rec.types)
}

func TestNotifyRespectsTimeout(t *testing.T) {
	sender := &fakeSender{sendFunc: func(ctx context.Context, _ *email.Email) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	rec := &fakeAudit{}
	logger, _ := test.NewNullLogger()
	c := cfg()
	c.Timeout = 20 * time.Millisecond
	n := NewNotifier(logger, sender, nil, rec, c)

	out := n.Notify(context.Background(), submission())
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
}

func TestNotifyAttachesResume(t *testing.T) {
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	_, err = files.Save(context.Background(), "tok_cv.pdf", strings.NewReader("%PDF"), "application/pdf")
	require.NoError(t, err)

	sender := &fakeSender{}
	logger, _ := test.NewNullLogger()
	n := NewNotifier(logger, sender, files, &fakeAudit{}, cfg())

	s := submission()
	name := "tok_cv.pdf"
	s.ResumeFilename = &name
	s.Subject = "Job"
	require.True(t, n.Notify(context.Background(), s).OK())

	e := sender.sent[0]
	assert.Equal(t, "New Contact Form Submission - Job", e.Subject)
	require.Len(t, e.Attachments, 1)
	assert.Equal(t, "tok_cv.pdf", e.Attachments[0].Filename)
	assert.Contains(t, string(e.HTML), "<strong>Resume:</strong> Attached")
}
