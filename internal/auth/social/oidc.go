package social

import (
	"context"
	"net/http"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
)

// openID verifies ID tokens of a generic OpenID Connect issuer. Discovery runs on
// first use and is retried until it succeeds.
type openID struct {
	name     string
	issuer   string
	clientID string
	client   *http.Client

	mu       sync.Mutex
	verifier *oidc.IDTokenVerifier
}

func newOpenID(name, issuer, clientID string, client *http.Client) *openID {
	if name == "" {
		name = BackendOIDC
	}
	return &openID{name: name, issuer: issuer, clientID: clientID, client: client}
}

func (o *openID) Name() string { return o.name }

func (o *openID) oidcConfig() *oidc.Config {
	return &oidc.Config{ClientID: o.clientID, SkipClientIDCheck: o.clientID == ""}
}

func (o *openID) getVerifier(ctx context.Context) (*oidc.IDTokenVerifier, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.verifier != nil {
		return o.verifier, nil
	}
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, o.client), o.issuer)
	if err != nil {
		return nil, failure("failed to discover issuer", err)
	}
	o.verifier = provider.Verifier(o.oidcConfig())
	return o.verifier, nil
}

func (o *openID) UserData(ctx context.Context, token string) (*Identity, error) {
	verifier, err := o.getVerifier(ctx)
	if err != nil {
		return nil, err
	}

	idToken, err := verifier.Verify(oidc.ClientContext(ctx, o.client), token)
	if err != nil {
		return nil, failure("invalid id token", err)
	}

	var claims struct {
		Email             string `json:"email"`
		PreferredUsername string `json:"preferred_username"`
		GivenName         string `json:"given_name"`
		FamilyName        string `json:"family_name"`
		Name              string `json:"name"`
		Picture           string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, failure("failed to extract claims", err)
	}
	var raw map[string]any
	_ = idToken.Claims(&raw)

	return &Identity{
		UID:       idToken.Subject,
		Email:     claims.Email,
		Username:  claims.PreferredUsername,
		FirstName: claims.GivenName,
		LastName:  claims.FamilyName,
		FullName:  claims.Name,
		Picture:   claims.Picture,
		Extra:     raw,
	}, nil
}
