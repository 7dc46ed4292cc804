package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newPair(userID uint, appID string, created time.Time) (*AccessToken, *RefreshToken) {
	at := &AccessToken{
		ID:            uuid.NewString(),
		Token:         "at-" + uuid.NewString(),
		UserID:        userID,
		ApplicationID: appID,
		Scope:         "read write",
		Expires:       created.Add(time.Hour),
		CreatedAt:     created,
	}
	rt := &RefreshToken{
		ID:            uuid.NewString(),
		Token:         "rt-" + uuid.NewString(),
		UserID:        userID,
		ApplicationID: appID,
		AccessTokenID: at.ID,
		CreatedAt:     created,
	}
	return at, rt
}

// runStoreSuite checks the behaviour every Store implementation must share
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("applications", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		app := &Application{ClientID: "cid", ClientType: "public", GrantTypes: []string{"refresh_token", "convert_token"}, Scope: "read write"}
		require.NoError(t, s.CreateApplication(ctx, app))
		assert.NotEmpty(t, app.ID)
		assert.ErrorIs(t, s.CreateApplication(ctx, &Application{ClientID: "cid"}), ErrAlreadyExists)

		got, err := s.GetApplication(ctx, "cid")
		require.NoError(t, err)
		assert.Equal(t, app.ID, got.ID)
		assert.Equal(t, []string{"refresh_token", "convert_token"}, got.GrantTypes)

		got, err = s.GetApplicationByID(ctx, app.ID)
		require.NoError(t, err)
		assert.Equal(t, "cid", got.ClientID)

		_, err = s.GetApplication(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetApplicationByID(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("pairs and lookups", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		at1, rt1 := newPair(1, "app", base)
		at2, rt2 := newPair(1, "app", base.Add(time.Second))
		require.NoError(t, s.SaveTokenPair(ctx, at1, rt1))
		require.NoError(t, s.SaveTokenPair(ctx, at2, rt2))

		got, err := s.GetAccessToken(ctx, at1.Token)
		require.NoError(t, err)
		assert.Equal(t, at1.ID, got.ID)
		assert.True(t, at1.Expires.Equal(got.Expires))

		latest, err := s.LatestAccessToken(ctx, 1, "app")
		require.NoError(t, err)
		assert.Equal(t, at2.ID, latest.ID)

		_, err = s.LatestAccessToken(ctx, 2, "app")
		assert.ErrorIs(t, err, ErrNotFound)

		r, err := s.GetRefreshToken(ctx, rt1.Token)
		require.NoError(t, err)
		assert.Equal(t, at1.ID, r.AccessTokenID)
		assert.False(t, r.IsRevoked())

		r, err = s.GetRefreshTokenByAccessID(ctx, at2.ID)
		require.NoError(t, err)
		assert.Equal(t, rt2.ID, r.ID)

		_, err = s.GetAccessToken(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetRefreshToken(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)

		dupAt, dupRt := newPair(1, "app", base)
		dupAt.Token = at1.Token
		assert.ErrorIs(t, s.SaveTokenPair(ctx, dupAt, dupRt), ErrAlreadyExists)
	})

	t.Run("rotation", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		at1, rt1 := newPair(1, "app", base)
		require.NoError(t, s.SaveTokenPair(ctx, at1, rt1))

		at2, rt2 := newPair(1, "app", base.Add(time.Minute))
		at2.SourceRefreshID = rt1.ID
		require.NoError(t, s.RotateRefreshToken(ctx, rt1.ID, base.Add(time.Minute), at2, rt2))

		old, err := s.GetRefreshToken(ctx, rt1.Token)
		require.NoError(t, err)
		require.True(t, old.IsRevoked())
		assert.True(t, old.Revoked.Equal(base.Add(time.Minute)))
		assert.Empty(t, old.AccessTokenID)

		_, err = s.GetAccessToken(ctx, at1.Token)
		assert.ErrorIs(t, err, ErrNotFound)

		successor, err := s.GetAccessTokenBySource(ctx, rt1.ID)
		require.NoError(t, err)
		assert.Equal(t, at2.ID, successor.ID)

		r, err := s.GetRefreshTokenByAccessID(ctx, at2.ID)
		require.NoError(t, err)
		assert.Equal(t, rt2.ID, r.ID)

		// the same token cannot be rotated twice
		at3, rt3 := newPair(1, "app", base.Add(2*time.Minute))
		assert.ErrorIs(t, s.RotateRefreshToken(ctx, rt1.ID, base.Add(2*time.Minute), at3, rt3), ErrConflict)
		_, err = s.GetAccessToken(ctx, at3.Token)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("relink", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		at1, rt1 := newPair(1, "app", base)
		require.NoError(t, s.SaveTokenPair(ctx, at1, rt1))

		at2, _ := newPair(1, "app", base.Add(time.Minute))
		at2.SourceRefreshID = rt1.ID
		require.NoError(t, s.RelinkRefreshToken(ctx, rt1.ID, at2))

		_, err := s.GetAccessToken(ctx, at1.Token)
		assert.ErrorIs(t, err, ErrNotFound)
		r, err := s.GetRefreshToken(ctx, rt1.Token)
		require.NoError(t, err)
		assert.Equal(t, at2.ID, r.AccessTokenID)
		assert.False(t, r.IsRevoked())
	})

	t.Run("revoke family", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		at1, rt1 := newPair(1, "app", base)
		at2, rt2 := newPair(1, "app", base.Add(time.Second))
		other, otherRt := newPair(2, "app", base)
		require.NoError(t, s.SaveTokenPair(ctx, at1, rt1))
		require.NoError(t, s.SaveTokenPair(ctx, at2, rt2))
		require.NoError(t, s.SaveTokenPair(ctx, other, otherRt))

		require.NoError(t, s.RevokeFamily(ctx, 1, "app", base.Add(time.Hour)))

		for _, tok := range []string{rt1.Token, rt2.Token} {
			r, err := s.GetRefreshToken(ctx, tok)
			require.NoError(t, err)
			assert.True(t, r.IsRevoked())
		}
		for _, tok := range []string{at1.Token, at2.Token} {
			_, err := s.GetAccessToken(ctx, tok)
			assert.ErrorIs(t, err, ErrNotFound)
		}
		_, err := s.LatestAccessToken(ctx, 1, "app")
		assert.ErrorIs(t, err, ErrNotFound)

		// other users keep their tokens
		_, err = s.GetAccessToken(ctx, other.Token)
		assert.NoError(t, err)
		r, err := s.GetRefreshToken(ctx, otherRt.Token)
		require.NoError(t, err)
		assert.False(t, r.IsRevoked())
	})

	t.Run("single token revocation", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		at1, rt1 := newPair(1, "app", base)
		at2, rt2 := newPair(1, "app", base)
		require.NoError(t, s.SaveTokenPair(ctx, at1, rt1))
		require.NoError(t, s.SaveTokenPair(ctx, at2, rt2))

		// deleting an access token leaves its refresh token unlinked
		require.NoError(t, s.DeleteAccessToken(ctx, at1.ID))
		r, err := s.GetRefreshToken(ctx, rt1.Token)
		require.NoError(t, err)
		assert.Empty(t, r.AccessTokenID)
		assert.False(t, r.IsRevoked())
		assert.ErrorIs(t, s.DeleteAccessToken(ctx, at1.ID), ErrNotFound)

		require.NoError(t, s.RevokeRefreshToken(ctx, rt2.ID, base.Add(time.Minute)))
		r, err = s.GetRefreshToken(ctx, rt2.Token)
		require.NoError(t, err)
		assert.True(t, r.IsRevoked())
		_, err = s.GetAccessToken(ctx, at2.Token)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.RevokeRefreshToken(ctx, "missing", base), ErrNotFound)
	})

	t.Run("bulk deletion", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		n, err := s.DeleteAccessTokens(ctx, 1, "app")
		require.NoError(t, err)
		assert.Zero(t, n)

		at1, rt1 := newPair(1, "app", base)
		at2, rt2 := newPair(1, "app", base.Add(time.Second))
		other, otherRt := newPair(1, "other-app", base)
		require.NoError(t, s.SaveTokenPair(ctx, at1, rt1))
		require.NoError(t, s.SaveTokenPair(ctx, at2, rt2))
		require.NoError(t, s.SaveTokenPair(ctx, other, otherRt))

		n, err = s.DeleteAccessTokens(ctx, 1, "app")
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)
		r, err := s.GetRefreshToken(ctx, rt1.Token)
		require.NoError(t, err)
		assert.Empty(t, r.AccessTokenID)

		n, err = s.DeleteRefreshTokens(ctx, 1, "app")
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)
		_, err = s.GetRefreshToken(ctx, rt2.Token)
		assert.ErrorIs(t, err, ErrNotFound)

		n, err = s.DeleteRefreshTokens(ctx, 1, "app")
		require.NoError(t, err)
		assert.Zero(t, n)

		_, err = s.GetAccessToken(ctx, other.Token)
		assert.NoError(t, err)
		_, err = s.GetRefreshToken(ctx, otherRt.Token)
		assert.NoError(t, err)
	})
}
