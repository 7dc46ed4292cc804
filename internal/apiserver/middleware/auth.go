package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/amoylab/tokenbridge/internal/apiserver/database"
	"github.com/amoylab/tokenbridge/internal/auth/social"
	"github.com/amoylab/tokenbridge/internal/auth/storage"
	"github.com/amoylab/tokenbridge/internal/common/errorx"
	"github.com/amoylab/tokenbridge/internal/i18n"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// CtxKeyUser holds the authenticated *database.User
	CtxKeyUser = "user"
	// CtxKeyCredential holds the Authorization value without its Bearer prefix
	CtxKeyCredential = "credential"

	wwwAuthenticate = `Bearer backend realm="api"`
)

// message is a translatable failure text
type message struct {
	id       string
	fallback string
}

var (
	msgNoBackend     = message{"ErrorTokenHeaderNoBackend", "Invalid token header. No backend provided."}
	msgNoCredentials = message{"ErrorTokenHeaderNoCredentials", "Invalid token header. No credentials provided."}
	msgSpaces        = message{"ErrorTokenHeaderSpaces", "Invalid token header. Token string should not contain spaces."}
	msgInvalidBack   = message{"ErrorTokenHeaderInvalidBackend", "Invalid token header. Invalid backend."}
	msgBadCreds      = message{"ErrorBadCredentials", "Bad credentials"}
	msgUserInactive  = message{"ErrorUserInactive", "User inactive or deleted."}
)

// SocialAuthenticator resolves a provider token to a local user
type SocialAuthenticator interface {
	Authenticate(ctx context.Context, backend, token string) (*database.User, error)
}

// Authenticator accepts first-party bearer tokens and social bearer credentials
type Authenticator struct {
	logger  *zap.Logger
	tokens  storage.Store
	users   database.Database
	gateway SocialAuthenticator
	i18n    *i18n.I18n
	lang    string

	NowFunc func() time.Time
}

// NewAuthenticator creates the bearer authenticator. translator may be nil.
func NewAuthenticator(logger *zap.Logger, tokens storage.Store, users database.Database, gateway SocialAuthenticator, translator *i18n.I18n) *Authenticator {
	a := &Authenticator{
		logger:  logger.Named("middleware.auth"),
		tokens:  tokens,
		users:   users,
		gateway: gateway,
		i18n:    translator,
		lang:    "en",
		NowFunc: time.Now,
	}
	if translator != nil {
		a.lang = translator.DefaultLang()
	}
	return a
}

func (a *Authenticator) translate(c *gin.Context, id, fallback string) string {
	return a.i18n.Message(id, i18n.LanguageFromContext(c, a.lang), fallback)
}

// Authenticate resolves the request user from the Authorization header.
// Requests without bearer credentials pass through anonymously.
func (a *Authenticator) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		parts := strings.Fields(c.GetHeader("Authorization"))
		if len(parts) == 0 || !strings.EqualFold(parts[0], "bearer") {
			c.Next()
			return
		}

		var (
			user *database.User
			err  error
		)
		switch len(parts) {
		case 1:
			a.fail(c, msgNoBackend)
			return
		case 2:
			user, err = a.accessTokenUser(c.Request.Context(), parts[1])
			if err == nil && user == nil {
				a.fail(c, msgNoCredentials)
				return
			}
		case 3:
			user, err = a.socialUser(c, parts[1], parts[2])
			if err == nil && user == nil {
				return
			}
		default:
			a.fail(c, msgSpaces)
			return
		}
		if err != nil {
			a.logger.Error("Failed to authenticate request", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": a.i18n.Describe(errorx.ErrServerError, i18n.LanguageFromContext(c, a.lang)),
			})
			return
		}
		if !user.IsActive {
			a.fail(c, msgUserInactive)
			return
		}

		c.Set(CtxKeyUser, user)
		c.Set(CtxKeyCredential, strings.Join(parts[1:], " "))
		c.Next()
	}
}

// accessTokenUser returns nil when the token is unknown or expired
func (a *Authenticator) accessTokenUser(ctx context.Context, token string) (*database.User, error) {
	at, err := a.tokens.GetAccessToken(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if at.IsExpired(a.NowFunc()) {
		return nil, nil
	}
	user, err := a.users.GetUser(ctx, at.UserID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	return user, err
}

// socialUser aborts the request itself when the credentials are rejected
func (a *Authenticator) socialUser(c *gin.Context, backend, token string) (*database.User, error) {
	user, err := a.gateway.Authenticate(c.Request.Context(), backend, token)
	var (
		httpErr *social.HTTPError
		failure *social.AuthFailure
	)
	switch {
	case errors.Is(err, social.ErrUnknownBackend):
		a.fail(c, msgInvalidBack)
		return nil, nil
	case errors.As(err, &httpErr):
		a.fail(c, message{fallback: httpErr.Body})
		return nil, nil
	case errors.As(err, &failure), errors.Is(err, social.ErrIdentityConflict):
		a.fail(c, msgBadCreds)
		return nil, nil
	case err != nil:
		return nil, err
	case user == nil:
		a.fail(c, msgBadCreds)
		return nil, nil
	}
	return user, nil
}

func (a *Authenticator) fail(c *gin.Context, msg message) {
	c.Header("WWW-Authenticate", wwwAuthenticate)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": a.translate(c, msg.id, msg.fallback)})
}

// RequireUser rejects anonymous requests
func (a *Authenticator) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := UserFromContext(c); !ok {
			detail := a.i18n.Describe(errorx.ErrUnauthenticated, i18n.LanguageFromContext(c, a.lang))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": detail})
			return
		}
		c.Next()
	}
}

// UserFromContext returns the user set by Authenticate
func UserFromContext(c *gin.Context) (*database.User, bool) {
	v, ok := c.Get(CtxKeyUser)
	if !ok {
		return nil, false
	}
	user, ok := v.(*database.User)
	return user, ok && user != nil
}

// CredentialFromContext returns the bearer credential of the request user
func CredentialFromContext(c *gin.Context) string {
	return c.GetString(CtxKeyCredential)
}
