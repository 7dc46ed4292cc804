package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/amoylab/tokenbridge/internal/apiserver/database"
	"github.com/amoylab/tokenbridge/internal/auth/storage"
	"github.com/amoylab/tokenbridge/internal/common/errorx"

	"go.uber.org/zap"
)

// Application resolves clientID, answering errorx.ErrApplicationNotFound for unknown ids
func (s *Server) Application(ctx context.Context, clientID string) (*storage.Application, error) {
	app, err := s.store.GetApplication(ctx, clientID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errorx.ErrApplicationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load application: %w", err)
	}
	return app, nil
}

// Revoke revokes the caller's own token. Tokens that are unknown or belong to
// another application or user are ignored.
func (s *Server) Revoke(ctx context.Context, user *database.User, clientID, token string) error {
	app, err := s.Application(ctx, clientID)
	if err != nil {
		return err
	}
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil
	}

	at, err := s.store.GetAccessToken(ctx, token)
	switch {
	case err == nil:
		if at.ApplicationID != app.ID || at.UserID != user.ID {
			return nil
		}
		return ignoreNotFound(s.store.DeleteAccessToken(ctx, at.ID))
	case !errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("failed to load access token: %w", err)
	}

	rt, err := s.store.GetRefreshToken(ctx, token)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("failed to load refresh token: %w", err)
	case rt.ApplicationID != app.ID || rt.UserID != user.ID || rt.IsRevoked():
		return nil
	}
	return ignoreNotFound(s.store.RevokeRefreshToken(ctx, rt.ID, s.NowFunc()))
}

// InvalidateSessions deletes every access token of user for the application
func (s *Server) InvalidateSessions(ctx context.Context, user *database.User, clientID string) error {
	app, err := s.Application(ctx, clientID)
	if err != nil {
		return err
	}
	n, err := s.store.DeleteAccessTokens(ctx, user.ID, app.ID)
	if err != nil {
		return fmt.Errorf("failed to delete access tokens: %w", err)
	}
	s.logger.Info("Invalidated sessions",
		zap.String("client_id", clientID),
		zap.Uint("user_id", user.ID),
		zap.Int64("count", n))
	return nil
}

// InvalidateRefreshTokens deletes every refresh token of user for the application
func (s *Server) InvalidateRefreshTokens(ctx context.Context, user *database.User, clientID string) error {
	app, err := s.Application(ctx, clientID)
	if err != nil {
		return err
	}
	n, err := s.store.DeleteRefreshTokens(ctx, user.ID, app.ID)
	if err != nil {
		return fmt.Errorf("failed to delete refresh tokens: %w", err)
	}
	s.logger.Info("Invalidated refresh tokens",
		zap.String("client_id", clientID),
		zap.Uint("user_id", user.ID),
		zap.Int64("count", n))
	return nil
}

// Disconnect removes the association associationID of user with backend.
// An unknown backend yields social.ErrUnknownBackend.
func (s *Server) Disconnect(ctx context.Context, user *database.User, backend string, associationID uint) error {
	if _, err := s.gateway.Backend(backend); err != nil {
		return err
	}
	deleted, err := s.users.DeleteSocialAuth(ctx, user.ID, backend, associationID)
	if err != nil {
		return fmt.Errorf("failed to delete association: %w", err)
	}
	if deleted {
		s.logger.Info("Disconnected backend", zap.String("backend", backend), zap.Uint("user_id", user.ID))
	}
	return nil
}

func ignoreNotFound(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}
