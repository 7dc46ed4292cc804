package auth

import (
	"context"
	"testing"
	"time"

	"github.com/amoylab/tokenbridge/internal/auth/storage"
	"github.com/amoylab/tokenbridge/internal/common/config"
	"github.com/amoylab/tokenbridge/internal/common/errorx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExchange_MintsAndReuses(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.server.Exchange(ctx, convertRequest("pub"))
	require.NoError(t, err)
	assert.Len(t, first.AccessToken, tokenLength)
	assert.Len(t, first.RefreshToken, tokenLength)
	assert.Equal(t, int64(3600), first.ExpiresIn)
	assert.Equal(t, "Bearer", first.TokenType)
	assert.Equal(t, "read write", first.Scope)
	require.NotNil(t, first.User)
	assert.Equal(t, UserInfo{Email: "alice@example.com", FirstName: "Alice", LastName: "Liddell"}, *first.User)

	env.clock.Advance(100*time.Second + 500*time.Millisecond)
	second, err := env.server.Exchange(ctx, convertRequest("pub"))
	require.NoError(t, err)
	assert.Equal(t, first.AccessToken, second.AccessToken)
	assert.Equal(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, int64(3499), second.ExpiresIn)

	// the social token is verified each time
	assert.Equal(t, 2, env.gateway.calls)

	env.clock.Advance(time.Hour)
	third, err := env.server.Exchange(ctx, convertRequest("pub"))
	require.NoError(t, err)
	assert.NotEqual(t, first.AccessToken, third.AccessToken)
	assert.Equal(t, int64(3600), third.ExpiresIn)
}

func TestExchange_NoReuse(t *testing.T) {
	ctx := context.Background()

	t.Run("revoked refresh token", func(t *testing.T) {
		env := newTestEnv(t)
		now := env.clock.Now()
		revoked := now.Add(-time.Minute)
		at := &storage.AccessToken{ID: "a1", Token: "live-access", UserID: env.user.ID, ApplicationID: env.public.ID,
			Scope: "read write", Expires: now.Add(time.Hour), CreatedAt: now}
		rt := &storage.RefreshToken{ID: "r1", Token: "dead-refresh", UserID: env.user.ID, ApplicationID: env.public.ID,
			AccessTokenID: "a1", Revoked: &revoked, CreatedAt: now}
		require.NoError(t, env.store.SaveTokenPair(ctx, at, rt))

		p, err := env.server.Exchange(ctx, convertRequest("pub"))
		require.NoError(t, err)
		assert.NotEqual(t, "live-access", p.AccessToken)
		assert.NotEqual(t, "dead-refresh", p.RefreshToken)
	})

	t.Run("wider scope", func(t *testing.T) {
		env := newTestEnv(t)
		req := convertRequest("pub")
		req.Scopes = []string{"read"}
		first, err := env.server.Exchange(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "read", first.Scope)

		second, err := env.server.Exchange(ctx, convertRequest("pub"))
		require.NoError(t, err)
		assert.NotEqual(t, first.AccessToken, second.AccessToken)
		assert.Equal(t, "read write", second.Scope)
	})

	t.Run("other application", func(t *testing.T) {
		env := newTestEnv(t)
		first, err := env.server.Exchange(ctx, convertRequest("pub"))
		require.NoError(t, err)
		req := convertRequest("conf")
		req.ClientSecret = testSecret
		second, err := env.server.Exchange(ctx, req)
		require.NoError(t, err)
		assert.NotEqual(t, first.AccessToken, second.AccessToken)
	})
}

func TestExchange_Options(t *testing.T) {
	ctx := context.Background()

	env := newTestEnv(t, func(c *config.TokenBridgeConfig) {
		c.OAuth2.IncludeUser = false
		c.OAuth2.SerializeExchange = true
		c.OAuth2.AccessTokenExpireSeconds = 60
	})
	p, err := env.server.Exchange(ctx, convertRequest("pub"))
	require.NoError(t, err)
	assert.Nil(t, p.User)
	assert.Equal(t, int64(60), p.ExpiresIn)

	_, err = NewServer(env.server.logger, &config.TokenBridgeConfig{ActivateJWT: true}, env.store, env.users, env.gateway, nil)
	assert.Error(t, err)
}

func TestExchange_ValidationErrorAndCancelledContext(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.server.Exchange(context.Background(), convertRequest("nope"))
	assert.ErrorIs(t, err, errorx.ErrInvalidClientID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = env.server.Exchange(ctx, convertRequest("pub"))
	assert.ErrorIs(t, err, context.Canceled)
	_, err = env.store.LatestAccessToken(context.Background(), env.user.ID, env.public.ID)
	assert.Error(t, err, "no pair is written for a cancelled request")
}

func TestToken_Dispatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.server.Token(ctx, &TokenRequest{GrantType: "convert_token", ClientID: "pub"})
	assert.ErrorIs(t, err, errorx.ErrUnsupportedGrantType)

	_, err = env.server.Token(ctx, refreshRequest("", "x"))
	assert.ErrorIs(t, err, errorx.ErrMissingClientID)

	_, err = env.server.Token(ctx, refreshRequest("conf", "x"))
	assert.ErrorIs(t, err, errorx.ErrInvalidClient)

	_, err = env.server.Token(ctx, refreshRequest("pub", ""))
	assert.ErrorIs(t, err, errorx.ErrInvalidRequest)
	assert.Equal(t, "Missing refresh token parameter.", errorx.ConvertToOAuth2Error(err).ErrorDescription)
}
