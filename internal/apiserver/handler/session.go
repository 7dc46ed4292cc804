package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/amoylab/tokenbridge/internal/apiserver/middleware"
	"github.com/amoylab/tokenbridge/internal/auth/social"

	"github.com/gin-gonic/gin"
)

// RevokeToken revokes the bearer token the request was authenticated with
func (h *Handler) RevokeToken(c *gin.Context) {
	user, _ := middleware.UserFromContext(c)
	var req clientRequest
	if !h.bind(c, &req) {
		return
	}
	if req.ClientSecret != nil {
		h.logger.Warn("client_secret is present in the request data, consider removing it")
	}

	if err := h.server.Revoke(c.Request.Context(), user, req.ClientID.str(), middleware.CredentialFromContext(c)); err != nil {
		h.detailError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// InvalidateSessions deletes the access tokens of the request user
func (h *Handler) InvalidateSessions(c *gin.Context) {
	user, _ := middleware.UserFromContext(c)
	var req clientRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.server.InvalidateSessions(c.Request.Context(), user, req.ClientID.str()); err != nil {
		h.detailError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// InvalidateRefreshTokens deletes the refresh tokens of the request user
func (h *Handler) InvalidateRefreshTokens(c *gin.Context) {
	user, _ := middleware.UserFromContext(c)
	var req clientRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.server.InvalidateRefreshTokens(c.Request.Context(), user, req.ClientID.str()); err != nil {
		h.detailError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DisconnectBackend removes a social association of the request user
func (h *Handler) DisconnectBackend(c *gin.Context) {
	user, _ := middleware.UserFromContext(c)
	var req disconnectRequest
	if !h.bind(c, &req) {
		return
	}
	associationID, err := strconv.ParseUint(req.AssociationID.str(), 10, 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, validationErrors{"association_id": {"association_id must be a valid integer."}})
		return
	}

	err = h.server.Disconnect(c.Request.Context(), user, req.Backend.str(), uint(associationID))
	if errors.Is(err, social.ErrUnknownBackend) {
		c.JSON(http.StatusBadRequest, gin.H{"backend": []string{h.message(c, "ErrorInvalidBackendChoice", "Invalid backend.")}})
		return
	}
	if err != nil {
		h.serverError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
