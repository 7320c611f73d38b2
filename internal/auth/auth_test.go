package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const secret = "0123456789abcdef0123456789abcdef"

func newAuth(t *testing.T) *Authenticator {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	return NewAuthenticator(string(hash), secret, time.Hour)
}

func TestLoginAndVerify(t *testing.T) {
	a := newAuth(t)
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	token, expires, err := a.Login("correct horse")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), expires)

	p, err := a.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", p.Subject)
	assert.True(t, p.ExpiresAt.Equal(expires))
}

func TestLoginWrongPassword(t *testing.T) {
	a := newAuth(t)

	_, _, err := a.Login("admin123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyExpired(t *testing.T) {
	a := newAuth(t)
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }
	token, _, err := a.Login("correct horse")
	require.NoError(t, err)

	now = now.Add(time.Hour)
	_, err = a.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerifyTampered(t *testing.T) {
	a := newAuth(t)
	token, _, err := a.Login("correct horse")
	require.NoError(t, err)

	other := NewAuthenticator(string(a.passwordHash), strings.Repeat("x", 32), time.Hour)
	forged := other.sign("admin|9999999999")

	for _, bad := range []string{"", "garbage", token + "00", forged, "!!!." + strings.Split(token, ".")[1]} {
		_, err := a.Verify(bad)
		assert.ErrorIs(t, err, ErrInvalidToken, bad)
	}
}

func TestDisabled(t *testing.T) {
	a := NewAuthenticator("", secret, time.Hour)

	assert.False(t, a.Enabled())
	_, _, err := a.Login("anything")
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = a.Verify("x.y")
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Empty(t, BearerToken("Basic abc"))
	assert.Empty(t, BearerToken(""))
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFrom(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), Principal{Subject: "admin"})
	p, ok := PrincipalFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "admin", p.Subject)
}
