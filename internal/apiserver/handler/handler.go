package handler

import (
	"errors"
	"net/http"

	"github.com/amoylab/tokenbridge/internal/auth"
	"github.com/amoylab/tokenbridge/internal/common/errorx"
	"github.com/amoylab/tokenbridge/internal/i18n"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler serves the token endpoints
type Handler struct {
	logger      *zap.Logger
	server      *auth.Server
	i18n        *i18n.I18n
	defaultLang string
}

// NewHandler creates a token endpoint handler. translator may be nil.
func NewHandler(logger *zap.Logger, server *auth.Server, translator *i18n.I18n) *Handler {
	h := &Handler{
		logger:      logger.Named("apiserver.handler"),
		server:      server,
		i18n:        translator,
		defaultLang: "en",
	}
	if translator != nil {
		h.defaultLang = translator.DefaultLang()
	}
	return h
}

func (h *Handler) lang(c *gin.Context) string {
	return i18n.LanguageFromContext(c, h.defaultLang)
}

func (h *Handler) message(c *gin.Context, msgID, fallback string) string {
	return h.i18n.Message(msgID, h.lang(c), fallback)
}

func (h *Handler) describe(c *gin.Context, err *errorx.OAuth2Error) string {
	return h.i18n.Describe(err, h.lang(c))
}

// bind decodes and validates the body into req, writing the 400 response
// itself on failure
func (h *Handler) bind(c *gin.Context, req any) bool {
	errs, err := bindRequest(c, req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "JSON parse error."})
		return false
	}
	if len(errs) > 0 {
		c.JSON(http.StatusBadRequest, errs)
		return false
	}
	return true
}

// serverError logs err and writes the opaque 500 body
func (h *Handler) serverError(c *gin.Context, err error) {
	h.logger.Error("Request failed",
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": h.describe(c, errorx.ErrServerError)})
}

// detailError answers invalidation failures as {"detail": ...}
func (h *Handler) detailError(c *gin.Context, err error) {
	var oauthErr *errorx.OAuth2Error
	if !errors.As(err, &oauthErr) {
		h.serverError(c, err)
		return
	}
	c.JSON(oauthErr.HTTPStatus, gin.H{"detail": h.describe(c, oauthErr)})
}

// Health reports liveness
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
