package social

import (
	"context"
	"errors"
	"fmt"
)

// Backend names
const (
	BackendGoogleOAuth2   = "google-oauth2"
	BackendGoogleIdentity = "google-identity"
	BackendFacebook       = "facebook"
	BackendGitHub         = "github"
	BackendLinkedIn       = "linkedin-openidconnect"
	BackendOIDC           = "oidc"
)

var (
	ErrUnknownBackend   = errors.New("unknown backend")
	ErrIdentityConflict = errors.New("a user with this email already exists")
)

// Identity is what a provider tells us about the owner of a token
type Identity struct {
	UID       string
	Email     string
	Username  string
	FirstName string
	LastName  string
	FullName  string
	Picture   string
	Extra     map[string]any
}

// Backend verifies a provider token and returns the identity behind it
type Backend interface {
	Name() string
	UserData(ctx context.Context, token string) (*Identity, error)
}

// HTTPError is a non-2xx answer from a provider
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider responded with HTTP %d: %s", e.Status, e.Body)
}

// AuthFailure is any other reason a provider token was not accepted
type AuthFailure struct {
	Reason string
	Err    error
}

func (e *AuthFailure) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *AuthFailure) Unwrap() error {
	return e.Err
}

func failure(reason string, err error) error {
	return &AuthFailure{Reason: reason, Err: err}
}
