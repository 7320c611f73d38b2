package sanitize

import (
	"strings"
	"testing"

	"github.com/sdko-org/portfolio-backend/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func valid() ContactInput {
	return ContactInput{Name: "A", Email: "a@b.com", Message: "hi"}
}

func TestValidateContactRequiredFields(t *testing.T) {
	cases := map[string]func(*ContactInput){
		"name":    func(in *ContactInput) { in.Name = "  " },
		"email":   func(in *ContactInput) { in.Email = "" },
		"message": func(in *ContactInput) { in.Message = "\n\t" },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			in := valid()
			mutate(&in)
			_, err := ValidateContact(in)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Equal(t, "Field '"+field+"' is required", apperr.Message(err))
		})
	}
}

func TestValidateContactEmailSyntax(t *testing.T) {
	for _, email := range []string{"plain", "a@b", "a@@b.com", "a b@c.com", "<a@b.com>", "A <a@b.com>", "a@b.c"} {
		in := valid()
		in.Email = email
		_, err := ValidateContact(in)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), email)
	}
	for _, email := range []string{"a@b.com", "first.last+tag@sub.example.org"} {
		in := valid()
		in.Email = email
		_, err := ValidateContact(in)
		assert.NoError(t, err, email)
	}
}

func TestValidateContactMessageBoundary(t *testing.T) {
	in := valid()
	in.Message = strings.Repeat("x", MaxMessageLength)
	_, err := ValidateContact(in)
	assert.NoError(t, err)

	in.Message = strings.Repeat("x", MaxMessageLength+1)
	_, err = ValidateContact(in)
	require.Error(t, err)
	assert.Equal(t, "Message is too long (max 5000 characters)", apperr.Message(err))
}

func TestValidateContactLengthCheckedBeforeEscaping(t *testing.T) {
	in := valid()
	in.Message = strings.Repeat("<", MaxMessageLength)

	out, err := ValidateContact(in)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("&lt;", MaxMessageLength), out.Message)
}

func TestValidateContactNameCountsCharacters(t *testing.T) {
	in := valid()
	in.Name = strings.Repeat("é", MaxNameLength)
	_, err := ValidateContact(in)
	assert.NoError(t, err)

	in.Name = strings.Repeat("é", MaxNameLength+1)
	_, err = ValidateContact(in)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestValidateContactEscapesAndTrims(t *testing.T) {
	out, err := ValidateContact(ContactInput{
		Name:    "  <b>Eve</b> ",
		Email:   " eve@example.com ",
		Subject: `"quoted" & 'single'`,
		Message: "<script>alert(1)</script>",
	})
	require.NoError(t, err)

	assert.Equal(t, "&lt;b&gt;Eve&lt;/b&gt;", out.Name)
	assert.Equal(t, "eve@example.com", out.Email)
	assert.Equal(t, "&#34;quoted&#34; &amp; &#39;single&#39;", out.Subject)
	assert.Equal(t, "&lt;script&gt;alert(1)&lt;/script&gt;", out.Message)
}

func TestOptional(t *testing.T) {
	assert.Nil(t, Optional(nil))
	blank := "   "
	assert.Nil(t, Optional(&blank))
	v := " <x> "
	require.NotNil(t, Optional(&v))
	assert.Equal(t, "&lt;x&gt;", *Optional(&v))
}

func TestIsSpam(t *testing.T) {
	in := valid()
	assert.False(t, in.IsSpam())
	in.Website = "http://spam.example"
	assert.True(t, in.IsSpam())
}
