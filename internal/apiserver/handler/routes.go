package handler

import (
	"github.com/amoylab/tokenbridge/internal/apiserver/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the token endpoints under /<namespace>. Every path is
// served with and without a trailing slash.
func RegisterRoutes(r *gin.Engine, namespace string, h *Handler, authn *middleware.Authenticator) {
	r.RedirectTrailingSlash = false
	r.GET("/health", h.Health)

	g := r.Group("/" + namespace)
	post(g, "/token", h.Token)
	post(g, "/convert-token", h.ConvertToken)

	protected := g.Group("", authn.Authenticate(), authn.RequireUser())
	post(protected, "/revoke-token", h.RevokeToken)
	post(protected, "/invalidate-sessions", h.InvalidateSessions)
	post(protected, "/invalidate-refresh-tokens", h.InvalidateRefreshTokens)
	post(protected, "/disconnect-backend", h.DisconnectBackend)
}

func post(g *gin.RouterGroup, path string, handlers ...gin.HandlerFunc) {
	g.POST(path, handlers...)
	g.POST(path+"/", handlers...)
}
