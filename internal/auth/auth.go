package auth

import (
	"context"
	"slices"
	"strings"

	"github.com/amoylab/tokenbridge/internal/apiserver/database"
	"github.com/amoylab/tokenbridge/internal/auth/social"
	"github.com/amoylab/tokenbridge/internal/auth/storage"

	"github.com/ifuryst/lol"
)

// Gateway resolves provider tokens to local users
type Gateway interface {
	Authenticate(ctx context.Context, backend, token string) (*database.User, error)
	Backend(name string) (social.Backend, error)
}

// TokenRequest carries the parameters of a token endpoint call
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	// Token and Backend are used by the convert_token grant
	Token   string
	Backend string
	// RefreshToken is used by the refresh_token grant
	RefreshToken string
	// Scopes is empty when the caller asked for the default scopes
	Scopes []string
	// Application is set when the caller already resolved ClientID. The
	// client secret is then only checked when one was sent.
	Application *storage.Application
}

// TokenPayload is the body of a successful token response
type TokenPayload struct {
	AccessToken  string    `json:"access_token"`
	ExpiresIn    int64     `json:"expires_in"`
	TokenType    string    `json:"token_type"`
	Scope        string    `json:"scope"`
	RefreshToken string    `json:"refresh_token"`
	User         *UserInfo `json:"user,omitempty"`
}

type UserInfo struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Principal is the outcome of a validated convert_token request
type Principal struct {
	User        *database.User
	Application *storage.Application
	Scopes      []string
	Backend     string
}

// ParseScope splits a space delimited scope parameter
func ParseScope(scope string) []string {
	return normalizeScopes(strings.Fields(scope))
}

func normalizeScopes(scopes []string) []string {
	if len(scopes) == 0 {
		return nil
	}
	out := lol.UniqSlice(scopes)
	slices.Sort(out)
	return out
}

func isSubset(requested, allowed []string) bool {
	for _, s := range requested {
		if !slices.Contains(allowed, s) {
			return false
		}
	}
	return true
}
