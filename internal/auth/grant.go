package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amoylab/tokenbridge/internal/apiserver/database"
	"github.com/amoylab/tokenbridge/internal/auth/social"
	"github.com/amoylab/tokenbridge/internal/auth/storage"
	"github.com/amoylab/tokenbridge/internal/common/cnst"
	"github.com/amoylab/tokenbridge/internal/common/errorx"
	"github.com/amoylab/tokenbridge/pkg/metrics"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Validator checks convert_token requests and resolves their principal
type Validator struct {
	logger        *zap.Logger
	store         storage.Store
	gateway       Gateway
	defaultScopes []string
	metrics       *metrics.Metrics
}

// NewValidator creates a convert_token validator. m may be nil.
func NewValidator(logger *zap.Logger, store storage.Store, gateway Gateway, defaultScopes []string, m *metrics.Metrics) *Validator {
	return &Validator{
		logger:        logger.Named("auth.validator"),
		store:         store,
		gateway:       gateway,
		defaultScopes: normalizeScopes(defaultScopes),
		metrics:       m,
	}
}

// Validate runs the grant checks in order and returns the first failure.
// The gateway is only called once the client and scopes are accepted.
func (v *Validator) Validate(ctx context.Context, req *TokenRequest) (*Principal, error) {
	if req.GrantType != cnst.GrantConvertToken.String() {
		return nil, errorx.ErrUnsupportedGrantType
	}
	if req.Token == "" {
		return nil, errMissingToken
	}
	if req.Backend == "" {
		return nil, errMissingBackend
	}

	app := req.Application
	var err error
	if app == nil {
		app, err = v.AuthenticateClient(ctx, req.ClientID, req.ClientSecret)
	} else {
		err = v.checkClient(app, req.ClientSecret, true)
	}
	if err != nil {
		return nil, err
	}

	scopes, err := v.requestedScopes(app, req.Scopes)
	if err != nil {
		return nil, err
	}

	user, err := v.authenticateUser(ctx, req.Backend, req.Token)
	if err != nil {
		return nil, err
	}

	return &Principal{
		User:        user,
		Application: app,
		Scopes:      scopes,
		Backend:     req.Backend,
	}, nil
}

// AuthenticateClient resolves clientID and checks the client credentials and
// its eligibility for refresh tokens
func (v *Validator) AuthenticateClient(ctx context.Context, clientID, clientSecret string) (*storage.Application, error) {
	if clientID == "" {
		return nil, errorx.ErrMissingClientID
	}
	app, err := v.store.GetApplication(ctx, clientID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errorx.ErrInvalidClientID
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load application: %w", err)
	}
	if err := v.checkClient(app, clientSecret, false); err != nil {
		return nil, err
	}
	return app, nil
}

// checkClient verifies the secret of a loaded application. A resolved client
// may omit its secret.
func (v *Validator) checkClient(app *storage.Application, clientSecret string, resolved bool) error {
	if app.IsConfidential() {
		switch {
		case clientSecret == "" && resolved:
		case clientSecret == "",
			bcrypt.CompareHashAndPassword([]byte(app.ClientSecret), []byte(clientSecret)) != nil:
			return errorx.ErrInvalidClient
		}
	} else if app.ClientSecret != "" {
		v.logger.Warn("Public application has a stored secret", zap.String("client_id", app.ClientID))
		return errorx.ErrInvalidClient
	}

	if !app.HasGrantType(cnst.GrantRefreshToken) {
		return errorx.ErrUnauthorizedClient
	}
	return nil
}

func (v *Validator) requestedScopes(app *storage.Application, requested []string) ([]string, error) {
	scopes := normalizeScopes(requested)
	if len(scopes) == 0 {
		scopes = v.defaultScopes
	}
	allowed := app.Scopes()
	if len(allowed) == 0 {
		allowed = v.defaultScopes
	}
	if !isSubset(scopes, allowed) {
		return nil, errorx.ErrInvalidScope
	}
	return scopes, nil
}

func (v *Validator) authenticateUser(ctx context.Context, backend, token string) (user *database.User, err error) {
	start := time.Now()
	v.metrics.SocialAuthStart(backend)
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		v.metrics.SocialAuthDone(backend, start, status)
	}()

	user, err = v.gateway.Authenticate(ctx, backend, token)
	if err != nil {
		return nil, v.mapSocialError(backend, err)
	}
	if user == nil {
		return nil, errInvalidCredentials
	}
	if !user.IsActive {
		return nil, errUserInactive
	}
	return user, nil
}

func (v *Validator) mapSocialError(backend string, err error) error {
	var (
		httpErr *social.HTTPError
		failure *social.AuthFailure
	)
	switch {
	case errors.Is(err, social.ErrUnknownBackend):
		return errInvalidBackend
	case errors.Is(err, social.ErrIdentityConflict):
		return errorx.ErrIdentityConflict
	case errors.As(err, &httpErr):
		return errorx.ErrInvalidRequest.WithDescription(
			fmt.Sprintf("Backend responded with HTTP%d: %s.", httpErr.Status, httpErr.Body))
	case errors.As(err, &failure):
		return errorx.ErrAccessDenied.WithDescription(failure.Reason)
	default:
		v.logger.Error("Social authentication failed", zap.String("backend", backend), zap.Error(err))
		return err
	}
}
