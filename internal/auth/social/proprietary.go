package social

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/amoylab/tokenbridge/internal/apiserver/database"
	"github.com/amoylab/tokenbridge/internal/auth/storage"
)

// proprietary accepts access tokens issued by this service
type proprietary struct {
	name   string
	tokens storage.Store
	users  database.Database
	now    func() time.Time
}

func (p *proprietary) Name() string { return p.name }

// ResolveUser returns the owner of a live first-party access token
func (p *proprietary) ResolveUser(ctx context.Context, token string) (*database.User, error) {
	at, err := p.tokens.GetAccessToken(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, failure("invalid access token", nil)
	}
	if err != nil {
		return nil, err
	}
	if at.IsExpired(p.now()) {
		return nil, failure("access token expired", nil)
	}
	user, err := p.users.GetUser(ctx, at.UserID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	return user, err
}

func (p *proprietary) UserData(ctx context.Context, token string) (*Identity, error) {
	user, err := p.ResolveUser(ctx, token)
	if err != nil || user == nil {
		return nil, err
	}
	return &Identity{
		UID:       strconv.FormatUint(uint64(user.ID), 10),
		Email:     user.Email,
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}, nil
}
