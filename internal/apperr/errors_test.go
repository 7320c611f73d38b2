package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("intake: %w", Validation("Invalid email address"))

	assert.Equal(t, KindValidation, KindOf(err))
	assert.True(t, Public(err))
	assert.Equal(t, "Invalid email address", Message(err))
}

func TestStorageErrorIsNotPublic(t *testing.T) {
	cause := errors.New("disk full")
	err := Storage("Failed to upload file", cause)

	assert.Equal(t, KindStorage, KindOf(err))
	assert.False(t, Public(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(KindOf(err)))
}

func TestPlainErrorIsInternal(t *testing.T) {
	err := errors.New("boom")

	assert.Equal(t, KindInternal, KindOf(err))
	assert.False(t, Public(err))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:       http.StatusBadRequest,
		KindRateLimit:        http.StatusTooManyRequests,
		KindMethodNotAllowed: http.StatusMethodNotAllowed,
		KindUnauthorized:     http.StatusUnauthorized,
		KindNotFound:         http.StatusNotFound,
		KindStorage:          http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, HTTPStatus(kind), kind.String())
	}
}
