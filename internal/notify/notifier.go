package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/jordan-wright/email"
	"github.com/sdko-org/portfolio-backend/internal/audit"
	"github.com/sdko-org/portfolio-backend/internal/models"
	"github.com/sdko-org/portfolio-backend/internal/storage"
	"github.com/sirupsen/logrus"
)

var ErrNotConfigured = errors.New("mail delivery is not configured")

// Sender delivers a composed message.
type Sender interface {
	Send(ctx context.Context, e *email.Email) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool
}

type SMTPSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Send runs the SMTP exchange and gives up when ctx is done. The exchange
// itself cannot be interrupted and finishes in the background.
func (s *SMTPSender) Send(ctx context.Context, e *email.Email) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	done := make(chan error, 1)
	go func() {
		if s.cfg.TLS {
			done <- e.SendWithTLS(addr, auth, &tls.Config{ServerName: s.cfg.Host})
			return
		}
		done <- e.Send(addr, auth)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("smtp send: %w", ctx.Err())
	}
}

type Config struct {
	AppName    string
	AdminEmail string
	From       string
	Timeout    time.Duration
	// MaxAttachment caps the resume size attached to the message.
	MaxAttachment int64
}

type Notifier struct {
	sender  Sender
	files   storage.Storage
	audit   audit.Recorder
	log     *logrus.Entry
	cfg     Config
	enabled bool
	now     func() time.Time
}

// NewNotifier returns a notifier. A nil sender or missing addresses leave it
// disabled: every Notify records email_failed and returns.
func NewNotifier(logger *logrus.Logger, sender Sender, files storage.Storage, rec audit.Recorder, cfg Config) *Notifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Notifier{
		sender:  sender,
		files:   files,
		audit:   rec,
		log:     logger.WithField("component", "notifier"),
		cfg:     cfg,
		enabled: sender != nil && cfg.AdminEmail != "" && cfg.From != "",
		now:     time.Now,
	}
}

// Notify emails the operator about s. It never fails the caller; the
// returned Outcome reports whether delivery happened.
func (n *Notifier) Notify(ctx context.Context, s *models.Submission) audit.Outcome {
	if !n.enabled {
		n.audit.Log(ctx, audit.EventEmailFailed, "Failed to send contact form notification email", map[string]any{
			"reason": "not configured",
		})
		return audit.Outcome{Err: ErrNotConfigured}
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	msg := n.compose(ctx, s)
	if err := n.sender.Send(ctx, msg); err != nil {
		n.log.WithError(err).WithField("submission_id", s.ID).Warn("Notification email failed")
		n.audit.Log(ctx, audit.EventEmailError, "Email notification error: "+err.Error(), map[string]any{
			"submission_id": s.ID,
		})
		return audit.Outcome{Err: err}
	}

	n.audit.Log(ctx, audit.EventEmailSent, "Contact form notification email sent", map[string]any{
		"to":   n.cfg.AdminEmail,
		"from": s.Email,
	})
	return audit.Outcome{}
}

func (n *Notifier) compose(ctx context.Context, s *models.Submission) *email.Email {
	subject := s.Subject
	if subject == "" {
		subject = "No Subject"
	}

	e := email.NewEmail()
	e.From = fmt.Sprintf("%s <%s>", n.cfg.AppName, n.cfg.From)
	e.To = []string{n.cfg.AdminEmail}
	e.ReplyTo = []string{html.UnescapeString(s.Email)}
	e.Subject = "New Contact Form Submission - " + html.UnescapeString(subject)

	submitted := s.CreatedAt
	if submitted.IsZero() {
		submitted = n.now()
	}

	attached := n.attachResume(ctx, e, s)

	// fields were escaped on intake; the plain-text part unescapes them
	var text strings.Builder
	fmt.Fprintf(&text, "New Contact Form Submission\n\n")
	fmt.Fprintf(&text, "Name: %s\nEmail: %s\nSubject: %s\n\n", html.UnescapeString(s.Name), html.UnescapeString(s.Email), html.UnescapeString(subject))
	fmt.Fprintf(&text, "%s\n\nSubmitted: %s\n", html.UnescapeString(s.Message), submitted.Format("2006-01-02 15:04:05"))
	if attached {
		text.WriteString("Resume: Attached\n")
	}
	e.Text = []byte(text.String())

	var body strings.Builder
	body.WriteString("<h2>New Contact Form Submission</h2>\n")
	fmt.Fprintf(&body, "<p><strong>Name:</strong> %s</p>\n", s.Name)
	fmt.Fprintf(&body, "<p><strong>Email:</strong> %s</p>\n", s.Email)
	fmt.Fprintf(&body, "<p><strong>Subject:</strong> %s</p>\n", subject)
	body.WriteString("<p><strong>Message:</strong></p>\n")
	fmt.Fprintf(&body, "<p>%s</p>\n", strings.ReplaceAll(s.Message, "\n", "<br />\n"))
	fmt.Fprintf(&body, "<p><strong>Submitted:</strong> %s</p>\n", submitted.Format("2006-01-02 15:04:05"))
	if attached {
		body.WriteString("<p><strong>Resume:</strong> Attached</p>\n")
	}
	e.HTML = []byte(body.String())
	return e
}

func (n *Notifier) attachResume(ctx context.Context, e *email.Email, s *models.Submission) bool {
	if s.ResumeFilename == nil || n.files == nil {
		return false
	}
	rc, err := n.files.Open(ctx, *s.ResumeFilename)
	if err != nil {
		n.log.WithError(err).WithField("filename", *s.ResumeFilename).Warn("Resume not attachable")
		return false
	}
	defer rc.Close()

	limit := n.cfg.MaxAttachment
	if limit <= 0 {
		limit = 5 * 1024 * 1024
	}
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil || int64(len(data)) > limit {
		return false
	}
	if _, err := e.Attach(bytes.NewReader(data), *s.ResumeFilename, ""); err != nil {
		return false
	}
	return true
}
