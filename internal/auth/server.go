package auth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/amoylab/tokenbridge/internal/apiserver/database"
	"github.com/amoylab/tokenbridge/internal/auth/storage"
	"github.com/amoylab/tokenbridge/internal/common/cnst"
	"github.com/amoylab/tokenbridge/internal/common/config"
	"github.com/amoylab/tokenbridge/internal/common/errorx"
	"github.com/amoylab/tokenbridge/pkg/metrics"
	"github.com/amoylab/tokenbridge/pkg/trace"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Server issues, refreshes and invalidates first-party tokens
type Server struct {
	logger    *zap.Logger
	cfg       config.OAuth2Config
	store     storage.Store
	users     database.Database
	gateway   Gateway
	validator *Validator
	generator Generator
	metrics   *metrics.Metrics
	locks     *keyedMutex

	// NowFunc is the clock used for expiry decisions
	NowFunc func() time.Time
}

// NewServer wires the token server. m may be nil.
func NewServer(logger *zap.Logger, cfg *config.TokenBridgeConfig, store storage.Store, users database.Database, gateway Gateway, m *metrics.Metrics) (*Server, error) {
	gen, err := NewGenerator(cfg.ActivateJWT, cfg.JWT.SecretKey)
	if err != nil {
		return nil, err
	}

	s := &Server{
		logger:    logger.Named("auth.server"),
		cfg:       cfg.OAuth2,
		store:     store,
		users:     users,
		gateway:   gateway,
		validator: NewValidator(logger, store, gateway, cfg.OAuth2.DefaultScopes, m),
		generator: gen,
		metrics:   m,
		NowFunc:   time.Now,
	}
	if cfg.OAuth2.SerializeExchange {
		s.locks = newKeyedMutex()
	}
	return s, nil
}

// Validator returns the convert_token validator
func (s *Server) Validator() *Validator {
	return s.validator
}

// Exchange turns a provider token into a first-party token pair. A live pair of
// the same user and application is returned instead of minting a new one.
func (s *Server) Exchange(ctx context.Context, req *TokenRequest) (*TokenPayload, error) {
	span := trace.Tracer(cnst.TraceAuth).Start(ctx, cnst.SpanConvertToken).
		WithAttrs(
			attribute.String(cnst.AttrClientID, req.ClientID),
			attribute.String(cnst.AttrGrantType, req.GrantType),
			attribute.String(cnst.AttrBackend, req.Backend),
		)
	defer span.End()
	ctx = span.Ctx

	payload, outcome, err := s.exchange(ctx, req)
	if err != nil {
		s.failed(span, cnst.GrantConvertToken, err)
		return nil, err
	}
	span.WithAttrs(attribute.Bool(cnst.AttrTokenReused, outcome == metrics.OutcomeReused))
	s.metrics.TokenIssued(cnst.GrantConvertToken.String(), outcome)
	return payload, nil
}

func (s *Server) exchange(ctx context.Context, req *TokenRequest) (*TokenPayload, string, error) {
	p, err := s.validator.Validate(ctx, req)
	if err != nil {
		return nil, "", err
	}

	if s.locks != nil {
		unlock := s.locks.Lock(strconv.FormatUint(uint64(p.User.ID), 10) + ":" + p.Application.ID)
		defer unlock()
	}

	now := s.NowFunc()
	at, rt, err := s.reusablePair(ctx, p, now)
	if err != nil {
		return nil, "", err
	}
	outcome := metrics.OutcomeReused
	if at == nil {
		if at, rt, err = s.newPair(p.User.ID, p.Application.ID, p.Scopes, "", now); err != nil {
			return nil, "", err
		}
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		if err := s.store.SaveTokenPair(ctx, at, rt); err != nil {
			return nil, "", fmt.Errorf("failed to save token pair: %w", err)
		}
		outcome = metrics.OutcomeMinted
		s.logger.Info("Issued token pair",
			zap.String("client_id", p.Application.ClientID),
			zap.String("backend", p.Backend),
			zap.Uint("user_id", p.User.ID))
	}

	payload := s.payload(at, rt, now)
	if s.cfg.IncludeUser {
		payload.User = &UserInfo{Email: p.User.Email, FirstName: p.User.FirstName, LastName: p.User.LastName}
	}
	return payload, outcome, nil
}

// reusablePair returns the latest pair of the principal when its access token is
// unexpired, covers the scopes and its refresh token is still active
func (s *Server) reusablePair(ctx context.Context, p *Principal, now time.Time) (*storage.AccessToken, *storage.RefreshToken, error) {
	at, err := s.store.LatestAccessToken(ctx, p.User.ID, p.Application.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load access token: %w", err)
	}
	if at.IsExpired(now) || !isSubset(p.Scopes, at.Scopes()) {
		return nil, nil, nil
	}

	rt, err := s.store.GetRefreshTokenByAccessID(ctx, at.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load refresh token: %w", err)
	}
	if rt.IsRevoked() {
		return nil, nil, nil
	}
	return at, rt, nil
}

func (s *Server) newPair(userID uint, appID string, scopes []string, sourceRefreshID string, now time.Time) (*storage.AccessToken, *storage.RefreshToken, error) {
	access, err := s.newAccessToken(userID, appID, scopes, sourceRefreshID, now)
	if err != nil {
		return nil, nil, err
	}
	refresh, err := s.newRefreshToken(userID, appID, access.ID, now)
	if err != nil {
		return nil, nil, err
	}
	return access, refresh, nil
}

func (s *Server) newAccessToken(userID uint, appID string, scopes []string, sourceRefreshID string, now time.Time) (*storage.AccessToken, error) {
	value, err := s.generator.Generate()
	if err != nil {
		return nil, err
	}
	return &storage.AccessToken{
		ID:              uuid.NewString(),
		Token:           value,
		UserID:          userID,
		ApplicationID:   appID,
		Scope:           strings.Join(scopes, " "),
		Expires:         now.Add(s.cfg.AccessTokenLifetime()),
		SourceRefreshID: sourceRefreshID,
		CreatedAt:       now,
	}, nil
}

func (s *Server) newRefreshToken(userID uint, appID, accessID string, now time.Time) (*storage.RefreshToken, error) {
	value, err := s.generator.Generate()
	if err != nil {
		return nil, err
	}
	return &storage.RefreshToken{
		ID:            uuid.NewString(),
		Token:         value,
		UserID:        userID,
		ApplicationID: appID,
		AccessTokenID: accessID,
		CreatedAt:     now,
	}, nil
}

func (s *Server) payload(at *storage.AccessToken, rt *storage.RefreshToken, now time.Time) *TokenPayload {
	return &TokenPayload{
		AccessToken:  at.Token,
		ExpiresIn:    int64(math.Floor(at.Expires.Sub(now).Seconds())),
		TokenType:    cnst.TokenTypeBearer,
		Scope:        at.Scope,
		RefreshToken: rt.Token,
	}
}

// Token dispatches the standard token endpoint
func (s *Server) Token(ctx context.Context, req *TokenRequest) (*TokenPayload, error) {
	if req.GrantType != cnst.GrantRefreshToken.String() {
		s.metrics.GrantFailed("other", errorx.ErrUnsupportedGrantType.ErrorType)
		return nil, errorx.ErrUnsupportedGrantType
	}

	span := trace.Tracer(cnst.TraceAuth).Start(ctx, cnst.SpanRefreshToken).
		WithAttrs(attribute.String(cnst.AttrClientID, req.ClientID))
	defer span.End()
	ctx = span.Ctx

	app, err := s.validator.AuthenticateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		s.failed(span, cnst.GrantRefreshToken, err)
		return nil, err
	}
	if req.RefreshToken == "" {
		s.failed(span, cnst.GrantRefreshToken, errMissingRefreshToken)
		return nil, errMissingRefreshToken
	}

	payload, outcome, err := s.redeem(ctx, app, req.RefreshToken, normalizeScopes(req.Scopes))
	if err != nil {
		s.failed(span, cnst.GrantRefreshToken, err)
		return nil, err
	}
	s.metrics.TokenIssued(cnst.GrantRefreshToken.String(), outcome)
	return payload, nil
}

func (s *Server) failed(span *trace.SpanScope, grant cnst.GrantType, err error) {
	oauthErr := errorx.ConvertToOAuth2Error(err)
	span.WithAttrs(attribute.String(cnst.AttrErrorReason, oauthErr.ErrorType))
	span.Fail(err, oauthErr.ErrorType)
	s.metrics.GrantFailed(grant.String(), oauthErr.ErrorType)
	if errorx.IsInternal(err) {
		s.logger.Error("Token request failed", zap.String("grant_type", grant.String()), zap.Error(err))
	}
}
