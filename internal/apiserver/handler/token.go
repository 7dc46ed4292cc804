package handler

import (
	"errors"
	"net/http"

	"github.com/amoylab/tokenbridge/internal/apiserver/database"
	"github.com/amoylab/tokenbridge/internal/auth"
	"github.com/amoylab/tokenbridge/internal/common/errorx"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Token handles the standard token endpoint
func (h *Handler) Token(c *gin.Context) {
	var req tokenRequest
	if !h.bind(c, &req) {
		return
	}

	clientID, clientSecret := req.ClientID.str(), req.ClientSecret.str()
	if id, secret, ok := c.Request.BasicAuth(); ok && clientID == "" {
		clientID, clientSecret = id, secret
	}

	payload, err := h.server.Token(c.Request.Context(), &auth.TokenRequest{
		GrantType:    req.GrantType.str(),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RefreshToken: req.RefreshToken.str(),
		Scopes:       auth.ParseScope(req.Scope.str()),
	})
	if err != nil {
		h.tokenError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, payload)
}

// tokenError writes the RFC 6749 error body
func (h *Handler) tokenError(c *gin.Context, err error) {
	if errors.Is(err, errorx.ErrAccessTokenMissing) {
		c.JSON(http.StatusBadRequest, gin.H{"invalid_grant": h.describe(c, errorx.ErrAccessTokenMissing)})
		return
	}
	oauthErr := errorx.ConvertToOAuth2Error(err)
	if oauthErr == errorx.ErrServerError {
		c.JSON(http.StatusInternalServerError, gin.H{"error": h.describe(c, errorx.ErrServerError)})
		return
	}
	body := gin.H{"error": oauthErr.ErrorType}
	if desc := h.describe(c, oauthErr); desc != "" {
		body["error_description"] = desc
	}
	c.JSON(oauthErr.HTTPStatus, body)
}

// ConvertToken exchanges a provider token for a first-party token pair
func (h *Handler) ConvertToken(c *gin.Context) {
	var req convertTokenRequest
	if !h.bind(c, &req) {
		return
	}
	if req.ClientSecret != nil {
		h.logger.Warn("client_secret is present in the request data, consider removing it")
	}

	ctx := c.Request.Context()
	clientID := req.ClientID.str()
	app, err := h.server.Application(ctx, clientID)
	if err != nil {
		if errors.Is(err, errorx.ErrApplicationNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{
				"detail": h.message(c, "ErrorApplicationDoesNotExist", "The application for this client_id does not exist."),
			})
			return
		}
		h.serverError(c, err)
		return
	}

	payload, err := h.server.Exchange(ctx, &auth.TokenRequest{
		GrantType:    req.GrantType.str(),
		ClientID:     clientID,
		ClientSecret: req.ClientSecret.str(),
		Token:        req.Token.str(),
		Backend:      req.Backend.str(),
		Scopes:       auth.ParseScope(req.Scope.str()),
		Application:  app,
	})
	if err != nil {
		h.convertError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, payload)
}

// convertError writes the keyed {"<kind>": "<description>"} body
func (h *Handler) convertError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errorx.ErrIdentityConflict):
		c.JSON(http.StatusBadRequest, gin.H{"error": h.describe(c, errorx.ErrIdentityConflict)})
		return
	case errors.Is(err, database.ErrDuplicate):
		h.logger.Warn("Conflicting write during token conversion", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": h.message(c, "ErrorDatabase", "Database error.")})
		return
	}

	oauthErr := errorx.ConvertToOAuth2Error(err)
	if oauthErr == errorx.ErrServerError {
		h.serverError(c, err)
		return
	}

	desc := h.describe(c, oauthErr)
	switch oauthErr.ErrorType {
	case errorx.ErrInvalidClient.ErrorType:
		desc = h.message(c, "ErrorMissingClientType", "Missing client type.")
	case errorx.ErrUnsupportedGrantType.ErrorType:
		desc = h.message(c, "ErrorMissingGrantType", "Missing grant type.")
	case errorx.ErrAccessDenied.ErrorType:
		desc = h.message(c, "ErrorTokenInvalidOrExpired", "The token you provided is invalid or expired.")
	}
	c.JSON(http.StatusBadRequest, gin.H{oauthErr.ErrorType: desc})
}
