package social

import (
	"context"

	"github.com/tidwall/gjson"
)

const facebookMeURL = "https://graph.facebook.com/me?fields=id,name,email,first_name,last_name"

type facebook struct {
	fetcher
}

func (f *facebook) Name() string { return BackendFacebook }

func (f *facebook) UserData(ctx context.Context, token string) (*Identity, error) {
	body, err := f.get(ctx, facebookMeURL, token)
	if err != nil {
		return nil, err
	}
	r := gjson.ParseBytes(body)
	return &Identity{
		UID:       r.Get("id").String(),
		Email:     r.Get("email").String(),
		FirstName: r.Get("first_name").String(),
		LastName:  r.Get("last_name").String(),
		FullName:  r.Get("name").String(),
		Extra:     extra(body),
	}, nil
}
