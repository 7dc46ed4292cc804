package errorx

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOAuth2Error_ErrorAndConvert(t *testing.T) {
	e := ErrInvalidRequest.WithDescription("Missing token parameter.")
	s := e.Error()
	assert.Contains(t, s, "\"invalid_request\"")
	assert.Contains(t, s, "Missing token parameter.")

	// pass-through, also through wrapping
	assert.Equal(t, e, ConvertToOAuth2Error(e))
	assert.Equal(t, e, ConvertToOAuth2Error(fmt.Errorf("wrapped: %w", e)))

	// unknown errors are opaque
	out := ConvertToOAuth2Error(errors.New("pq: relation does not exist"))
	assert.Equal(t, ErrServerError, out)
	assert.Equal(t, http.StatusInternalServerError, out.HTTPStatus)
	assert.NotContains(t, out.ErrorDescription, "relation")
	assert.True(t, IsInternal(errors.New("boom")))
	assert.False(t, IsInternal(ErrInvalidGrant))
}

func TestOAuth2Error_IsMatchesKind(t *testing.T) {
	described := ErrInvalidGrant.WithDescription("User inactive or deleted.")
	assert.ErrorIs(t, described, ErrInvalidGrant)
	assert.NotErrorIs(t, described, ErrAccessTokenMissing)

	// same error type, different code
	assert.NotErrorIs(t, ErrMissingClientID, ErrInvalidRequest)
	assert.ErrorIs(t, fmt.Errorf("x: %w", ErrMissingClientID), ErrMissingClientID)
}

func TestOAuth2Error_CopiesDoNotMutateSentinels(t *testing.T) {
	_ = ErrInvalidRequest.WithDescription("changed")
	assert.Empty(t, ErrInvalidRequest.ErrorDescription)

	m := ErrInvalidGrant.WithMessage("ErrorInvalidCredentials", "Invalid credentials given.")
	assert.Equal(t, "ErrorInvalidCredentials", m.MessageID)
	assert.Empty(t, ErrInvalidGrant.MessageID)
}
