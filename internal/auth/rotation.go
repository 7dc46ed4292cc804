package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amoylab/tokenbridge/internal/auth/storage"
	"github.com/amoylab/tokenbridge/internal/common/errorx"
	"github.com/amoylab/tokenbridge/pkg/metrics"

	"go.uber.org/zap"
)

// redeemAttempts bounds the reload loop when a refresh token is redeemed concurrently
const redeemAttempts = 3

// Redeem exchanges a refresh token of app for a new access token
func (s *Server) Redeem(ctx context.Context, app *storage.Application, refreshToken string, scopes []string) (*TokenPayload, error) {
	payload, _, err := s.redeem(ctx, app, refreshToken, normalizeScopes(scopes))
	return payload, err
}

func (s *Server) redeem(ctx context.Context, app *storage.Application, refreshToken string, scopes []string) (*TokenPayload, string, error) {
	for range redeemAttempts {
		payload, outcome, err := s.redeemOnce(ctx, app, refreshToken, scopes)
		if errors.Is(err, storage.ErrConflict) {
			// another request redeemed the token first, evaluate it again as revoked
			continue
		}
		return payload, outcome, err
	}
	return nil, "", errInvalidRefreshToken
}

func (s *Server) redeemOnce(ctx context.Context, app *storage.Application, value string, scopes []string) (*TokenPayload, string, error) {
	now := s.NowFunc()

	rt, err := s.store.GetRefreshToken(ctx, value)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, "", errInvalidRefreshToken
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load refresh token: %w", err)
	}
	if rt.ApplicationID != app.ID {
		return nil, "", errInvalidRefreshToken
	}
	if !now.Before(rt.CreatedAt.Add(s.cfg.RefreshTokenLifetime())) {
		return nil, "", errRefreshTokenExpired
	}

	if rt.IsRevoked() {
		return s.redeemRevoked(ctx, app, rt, now)
	}

	if rt.AccessTokenID == "" {
		return nil, "", errorx.ErrAccessTokenMissing
	}
	current, err := s.store.GetAccessTokenByID(ctx, rt.AccessTokenID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, "", errorx.ErrAccessTokenMissing
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load access token: %w", err)
	}

	if len(scopes) == 0 {
		scopes = current.Scopes()
	} else if !isSubset(scopes, current.Scopes()) {
		return nil, "", errorx.ErrInvalidScope
	}

	access, err := s.newAccessToken(rt.UserID, app.ID, scopes, rt.ID, now)
	if err != nil {
		return nil, "", err
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	if !s.cfg.RotateRefreshToken {
		if err := s.store.RelinkRefreshToken(ctx, rt.ID, access); err != nil {
			return nil, "", s.storeErr("relink refresh token", err)
		}
		rt.AccessTokenID = access.ID
		return s.payload(access, rt, now), metrics.OutcomeRelinked, nil
	}

	refresh, err := s.newRefreshToken(rt.UserID, app.ID, access.ID, now)
	if err != nil {
		return nil, "", err
	}
	if err := s.store.RotateRefreshToken(ctx, rt.ID, now, access, refresh); err != nil {
		return nil, "", s.storeErr("rotate refresh token", err)
	}
	s.logger.Debug("Rotated refresh token",
		zap.String("client_id", app.ClientID),
		zap.Uint("user_id", rt.UserID))
	return s.payload(access, refresh, now), metrics.OutcomeRotated, nil
}

// redeemRevoked answers a revoked refresh token with its live successor inside the
// grace period, and otherwise treats it as a replay
func (s *Server) redeemRevoked(ctx context.Context, app *storage.Application, rt *storage.RefreshToken, now time.Time) (*TokenPayload, string, error) {
	if grace := s.cfg.GracePeriod(); grace > 0 && now.Before(rt.Revoked.Add(grace)) {
		at, next, err := s.successor(ctx, rt, now)
		if err != nil {
			return nil, "", err
		}
		if at != nil {
			return s.payload(at, next, now), metrics.OutcomeGrace, nil
		}
	}

	if !s.cfg.RefreshTokenReuseProtection {
		return nil, "", errInvalidRefreshToken
	}

	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if err := s.store.RevokeFamily(ctx, rt.UserID, app.ID, now); err != nil {
		return nil, "", fmt.Errorf("failed to revoke token family: %w", err)
	}
	s.metrics.ReuseDetected()
	s.logger.Warn("Refresh token reuse detected, token family revoked",
		zap.String("client_id", app.ClientID),
		zap.Uint("user_id", rt.UserID))
	return nil, "", errRefreshTokenReuse
}

// successor returns the pair minted by redeeming rt while both of its tokens are live
func (s *Server) successor(ctx context.Context, rt *storage.RefreshToken, now time.Time) (*storage.AccessToken, *storage.RefreshToken, error) {
	at, err := s.store.GetAccessTokenBySource(ctx, rt.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load successor token: %w", err)
	}
	if at.IsExpired(now) {
		return nil, nil, nil
	}
	next, err := s.store.GetRefreshTokenByAccessID(ctx, at.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load successor token: %w", err)
	}
	if next.IsRevoked() {
		return nil, nil, nil
	}
	return at, next, nil
}

// storeErr keeps ErrConflict intact for the reload loop
func (s *Server) storeErr(op string, err error) error {
	if errors.Is(err, storage.ErrConflict) {
		return err
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
