// Package sanitize normalizes visitor-supplied text before it is stored or
// rendered back to the operator.
//
// Length ceilings are checked on the trimmed input, in characters, before
// HTML escaping, so that escaping never pushes a valid message over a limit.
package sanitize

import (
	"html"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sdko-org/portfolio-backend/internal/apperr"
)

const (
	MaxNameLength    = 100
	MaxSubjectLength = 200
	MaxMessageLength = 5000
)

var emailRegex = regexp.MustCompile(
	`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`,
)

// ContactInput is the raw form as posted. Website is a honeypot field that
// is hidden from people and filled in by bots.
type ContactInput struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
	Website string `json:"website"`
}

// Contact is a validated, escaped contact form.
type Contact struct {
	Name    string
	Email   string
	Subject string
	Message string
}

// Text trims s and escapes HTML special characters, quotes included.
func Text(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}

// Optional is Text for nullable fields: blank input yields nil.
func Optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := Text(*s)
	if v == "" {
		return nil
	}
	return &v
}

func Email(s string) bool {
	if len(s) > 254 || !emailRegex.MatchString(s) {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// IsSpam reports whether the hidden honeypot field was filled in.
func (in ContactInput) IsSpam() bool {
	return strings.TrimSpace(in.Website) != ""
}

func ValidateContact(in ContactInput) (Contact, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)
	subject := strings.TrimSpace(in.Subject)
	message := strings.TrimSpace(in.Message)

	for _, f := range []struct{ field, value string }{
		{"name", name},
		{"email", email},
		{"message", message},
	} {
		if f.value == "" {
			return Contact{}, apperr.Validation("Field '" + f.field + "' is required")
		}
	}

	if !Email(email) {
		return Contact{}, apperr.Validation("Invalid email address")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return Contact{}, apperr.Validation("Name is too long (max 100 characters)")
	}
	if utf8.RuneCountInString(subject) > MaxSubjectLength {
		return Contact{}, apperr.Validation("Subject is too long (max 200 characters)")
	}
	if utf8.RuneCountInString(message) > MaxMessageLength {
		return Contact{}, apperr.Validation("Message is too long (max 5000 characters)")
	}

	return Contact{
		Name:    html.EscapeString(name),
		Email:   html.EscapeString(email),
		Subject: html.EscapeString(subject),
		Message: html.EscapeString(message),
	}, nil
}
