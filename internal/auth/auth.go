// Package auth guards the admin API. The operator logs in with a password
// checked against a bcrypt hash and receives a signed, expiring token that is
// presented as a bearer token on later requests.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const subject = "admin"

var (
	ErrDisabled           = errors.New("admin access is disabled")
	ErrInvalidCredentials = errors.New("invalid password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token expired")
)

// Principal is the authenticated operator attached to an admin request.
type Principal struct {
	Subject   string
	ExpiresAt time.Time
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

type Authenticator struct {
	passwordHash []byte
	secret       []byte
	lifetime     time.Duration
	now          func() time.Time
}

// NewAuthenticator returns an authenticator; an empty passwordHash disables
// login entirely.
func NewAuthenticator(passwordHash, secret string, lifetime time.Duration) *Authenticator {
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	return &Authenticator{
		passwordHash: []byte(passwordHash),
		secret:       []byte(secret),
		lifetime:     lifetime,
		now:          time.Now,
	}
}

func (a *Authenticator) Enabled() bool {
	return len(a.passwordHash) > 0 && len(a.secret) > 0
}

func (a *Authenticator) Login(password string) (string, time.Time, error) {
	if !a.Enabled() {
		return "", time.Time{}, ErrDisabled
	}
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}
	expires := a.now().Add(a.lifetime).Truncate(time.Second)
	return a.sign(subject + "|" + strconv.FormatInt(expires.Unix(), 10)), expires, nil
}

func (a *Authenticator) Verify(token string) (Principal, error) {
	if !a.Enabled() {
		return Principal{}, ErrDisabled
	}
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return Principal{}, ErrInvalidToken
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	if !hmac.Equal([]byte(a.mac(payload)), []byte(parts[1])) {
		return Principal{}, ErrInvalidToken
	}

	sub, exp, ok := strings.Cut(string(payload), "|")
	if !ok || sub != subject {
		return Principal{}, ErrInvalidToken
	}
	unix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	expiresAt := time.Unix(unix, 0)
	if !a.now().Before(expiresAt) {
		return Principal{}, ErrExpiredToken
	}
	return Principal{Subject: sub, ExpiresAt: expiresAt}, nil
}

func (a *Authenticator) sign(payload string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." + a.mac([]byte(payload))
}

func (a *Authenticator) mac(payload []byte) string {
	m := hmac.New(sha256.New, a.secret)
	m.Write(payload)
	return hex.EncodeToString(m.Sum(nil))
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
