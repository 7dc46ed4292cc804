package social

import (
	"context"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	githubUserURL   = "https://api.github.com/user"
	githubEmailsURL = "https://api.github.com/user/emails"
)

type github struct {
	fetcher
}

func (g *github) Name() string { return BackendGitHub }

func (g *github) UserData(ctx context.Context, token string) (*Identity, error) {
	body, err := g.get(ctx, githubUserURL, token)
	if err != nil {
		return nil, err
	}
	r := gjson.ParseBytes(body)
	id := &Identity{
		UID:      r.Get("id").String(),
		Username: r.Get("login").String(),
		Email:    r.Get("email").String(),
		FullName: r.Get("name").String(),
		Picture:  r.Get("avatar_url").String(),
		Extra:    extra(body),
	}
	id.FirstName, id.LastName = splitName(id.FullName)

	if id.Email == "" {
		// the user has a private email, ask for the primary one
		emails, err := g.get(ctx, githubEmailsURL, token)
		if err == nil {
			id.Email = primaryEmail(emails)
		}
	}
	return id, nil
}

func primaryEmail(body []byte) string {
	var fallback string
	for _, e := range gjson.ParseBytes(body).Array() {
		if !e.Get("verified").Bool() {
			continue
		}
		if e.Get("primary").Bool() {
			return e.Get("email").String()
		}
		if fallback == "" {
			fallback = e.Get("email").String()
		}
	}
	return fallback
}

func splitName(full string) (string, string) {
	first, last, _ := strings.Cut(strings.TrimSpace(full), " ")
	return first, strings.TrimSpace(last)
}
