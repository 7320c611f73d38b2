// Package intake runs a contact submission through admission control,
// validation, upload storage, persistence and operator notification.
package intake

import (
	"context"
	"time"

	"github.com/sdko-org/portfolio-backend/internal/apperr"
	"github.com/sdko-org/portfolio-backend/internal/audit"
	"github.com/sdko-org/portfolio-backend/internal/models"
	"github.com/sdko-org/portfolio-backend/internal/ratelimit"
	"github.com/sdko-org/portfolio-backend/internal/sanitize"
	"github.com/sdko-org/portfolio-backend/internal/upload"
	"github.com/sirupsen/logrus"
)

const (
	SuccessMessage   = "Thank you for your message! I'll get back to you within 24 hours."
	RateLimitMessage = "Too many requests. Please try again later."
)

type Request struct {
	Form   sanitize.ContactInput
	Resume *upload.File
	Client audit.Client
}

type Result struct {
	SubmissionID uint
	Message      string
	// Spam is set when the honeypot caught the request; nothing was stored.
	Spam     bool
	Notified audit.Outcome
}

type Uploader interface {
	Store(ctx context.Context, f *upload.File) (*upload.Stored, error)
	Discard(ctx context.Context, s *upload.Stored) error
}

type SubmissionStore interface {
	Record(ctx context.Context, s *models.Submission) (uint, error)
}

type Notifier interface {
	Notify(ctx context.Context, s *models.Submission) audit.Outcome
}

type Pipeline struct {
	limiter      ratelimit.Limiter
	uploads      Uploader
	store        SubmissionStore
	notifier     Notifier
	audit        audit.Recorder
	log          *logrus.Entry
	storeTimeout time.Duration
	now          func() time.Time
}

type Options struct {
	Limiter      ratelimit.Limiter
	Uploads      Uploader
	Store        SubmissionStore
	Notifier     Notifier
	Audit        audit.Recorder
	StoreTimeout time.Duration
}

func NewPipeline(logger *logrus.Logger, opts Options) *Pipeline {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	return &Pipeline{
		limiter:      opts.Limiter,
		uploads:      opts.Uploads,
		store:        opts.Store,
		notifier:     opts.Notifier,
		audit:        opts.Audit,
		log:          logger.WithField("component", "intake"),
		storeTimeout: opts.StoreTimeout,
		now:          time.Now,
	}
}

// Submit admits and processes one contact request. The returned error is
// an *apperr.Error; its kind decides the response status.
func (p *Pipeline) Submit(ctx context.Context, req Request) (*Result, error) {
	if err := p.Admit(ctx, req.Client); err != nil {
		return nil, err
	}
	return p.Process(ctx, req)
}

// Admit charges one attempt against the client's contact budget. It runs
// before the body is read, so malformed requests are counted too. A limiter
// that cannot decide rejects the request.
func (p *Pipeline) Admit(ctx context.Context, client audit.Client) error {
	ctx = audit.WithClient(ctx, client)
	decision, err := p.limiter.Allow(ctx, "contact:"+client.IP)
	if err != nil {
		p.log.WithError(err).WithField("client_ip", client.IP).Error("Rate limiter unavailable")
		return p.fail(ctx, apperr.Storage("Rate limiter unavailable", err), sanitize.ContactInput{})
	}
	if !decision.Allowed {
		p.audit.Log(ctx, audit.EventRateLimitExceeded, "Contact form rate limit exceeded", map[string]any{
			"ip":          client.IP,
			"count":       decision.Count,
			"limit":       decision.Limit,
			"retry_after": decision.RetryAfter.Seconds(),
		})
		return &RateLimitError{RetryAfter: decision.RetryAfter}
	}
	return nil
}

// Reject records a request that was admitted but could not be parsed.
func (p *Pipeline) Reject(ctx context.Context, req Request, err error) error {
	return p.fail(audit.WithClient(ctx, req.Client), err, req.Form)
}

// Process runs an admitted request through validation, upload storage,
// persistence and notification.
func (p *Pipeline) Process(ctx context.Context, req Request) (*Result, error) {
	ctx = audit.WithClient(ctx, req.Client)
	log := p.log.WithField("client_ip", req.Client.IP)

	if req.Form.IsSpam() {
		log.Info("Honeypot field filled, dropping submission")
		p.audit.Log(ctx, audit.EventHoneypot, "Contact form honeypot triggered", map[string]any{
			"email": req.Form.Email,
		})
		return &Result{Message: SuccessMessage, Spam: true}, nil
	}

	contact, err := sanitize.ValidateContact(req.Form)
	if err != nil {
		return nil, p.fail(ctx, err, req.Form)
	}

	stored, err := p.uploads.Store(ctx, req.Resume)
	if err != nil {
		return nil, p.fail(ctx, err, req.Form)
	}

	sub := &models.Submission{
		Name:      contact.Name,
		Email:     contact.Email,
		Subject:   contact.Subject,
		Message:   contact.Message,
		IPAddress: req.Client.IP,
		UserAgent: req.Client.UserAgent,
		Status:    models.StatusNew,
		CreatedAt: p.now(),
	}
	if stored != nil {
		sub.ResumeFilename = &stored.Filename
		sub.ResumePath = &stored.Path
	}

	id, err := p.record(ctx, sub)
	if err != nil {
		p.discard(ctx, stored, log)
		log.WithError(err).Error("Failed to record submission")
		return nil, p.fail(ctx, apperr.Storage("Failed to save submission", err), req.Form)
	}

	p.audit.Log(ctx, audit.EventFormSubmission, "Contact form submitted successfully", map[string]any{
		"submission_id": id,
		"email":         contact.Email,
		"subject":       contact.Subject,
	})
	log.WithField("submission_id", id).Info("Contact submission recorded")

	// the visitor's answer does not depend on delivery
	notified := p.notifier.Notify(context.WithoutCancel(ctx), sub)

	return &Result{SubmissionID: id, Message: SuccessMessage, Notified: notified}, nil
}

func (p *Pipeline) record(ctx context.Context, sub *models.Submission) (uint, error) {
	ctx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()
	return p.store.Record(ctx, sub)
}

// discard removes an upload whose submission row could not be written. If
// that fails too the file is left for the sweeper.
func (p *Pipeline) discard(ctx context.Context, stored *upload.Stored, log *logrus.Entry) {
	if stored == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.storeTimeout)
	defer cancel()
	if err := p.uploads.Discard(ctx, stored); err != nil {
		log.WithError(err).WithField("filename", stored.Filename).Error("Upload left without submission")
		p.audit.Log(ctx, audit.EventUploadOrphaned, "Upload could not be removed after failed submission", map[string]any{
			"filename": stored.Filename,
			"path":     stored.Path,
		})
	}
}

func (p *Pipeline) fail(ctx context.Context, err error, form sanitize.ContactInput) error {
	p.audit.Log(ctx, audit.EventFormError, "Contact form error: "+apperr.Message(err), map[string]any{
		"kind":    apperr.KindOf(err).String(),
		"name":    sanitize.Text(form.Name),
		"email":   sanitize.Text(form.Email),
		"subject": sanitize.Text(form.Subject),
	})
	return err
}
