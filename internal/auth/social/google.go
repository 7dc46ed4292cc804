package social

import (
	"context"
	"net/url"

	"github.com/tidwall/gjson"
)

const (
	googleUserInfoURL  = "https://www.googleapis.com/oauth2/v3/userinfo"
	googleTokenInfoURL = "https://www.googleapis.com/oauth2/v3/tokeninfo"
)

// googleOAuth2 accepts Google OAuth2 access tokens
type googleOAuth2 struct {
	fetcher
}

func (g *googleOAuth2) Name() string { return BackendGoogleOAuth2 }

func (g *googleOAuth2) UserData(ctx context.Context, token string) (*Identity, error) {
	body, err := g.get(ctx, googleUserInfoURL, token)
	if err != nil {
		return nil, err
	}
	return openIDIdentity(body), nil
}

// googleIdentity accepts Google Identity Services ID tokens
type googleIdentity struct {
	fetcher
	clientID string
}

func (g *googleIdentity) Name() string { return BackendGoogleIdentity }

func (g *googleIdentity) UserData(ctx context.Context, token string) (*Identity, error) {
	body, err := g.get(ctx, googleTokenInfoURL+"?id_token="+url.QueryEscape(token), "")
	if err != nil {
		return nil, err
	}
	if g.clientID != "" && gjson.GetBytes(body, "aud").String() != g.clientID {
		return nil, failure("token audience mismatch", nil)
	}
	return openIDIdentity(body), nil
}

// openIDIdentity reads the standard OpenID Connect userinfo claims
func openIDIdentity(body []byte) *Identity {
	r := gjson.ParseBytes(body)
	return &Identity{
		UID:       r.Get("sub").String(),
		Email:     r.Get("email").String(),
		FirstName: r.Get("given_name").String(),
		LastName:  r.Get("family_name").String(),
		FullName:  r.Get("name").String(),
		Picture:   r.Get("picture").String(),
		Extra:     extra(body),
	}
}
