package social

import "context"

const linkedinUserInfoURL = "https://api.linkedin.com/v2/userinfo"

// linkedin uses the Sign In with LinkedIn OpenID Connect product
type linkedin struct {
	fetcher
}

func (l *linkedin) Name() string { return BackendLinkedIn }

func (l *linkedin) UserData(ctx context.Context, token string) (*Identity, error) {
	body, err := l.get(ctx, linkedinUserInfoURL, token)
	if err != nil {
		return nil, err
	}
	return openIDIdentity(body), nil
}
