package i18n

import (
	"net/http"
	"strings"

	"github.com/amoylab/tokenbridge/internal/common/cnst"
	"github.com/gin-gonic/gin"
)

var supportedLangs = []string{cnst.LangEN, cnst.LangZH}

// Middleware stores the request language in the gin context under cnst.XLang
func Middleware(defaultLang string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(cnst.XLang, LanguageFromRequest(c.Request, defaultLang))
		c.Next()
	}
}

// LanguageFromContext returns the language chosen by Middleware
func LanguageFromContext(c *gin.Context, defaultLang string) string {
	if v, ok := c.Get(cnst.XLang); ok {
		if lang, ok := v.(string); ok && lang != "" {
			return lang
		}
	}
	return defaultLang
}

// LanguageFromRequest extracts language preference from HTTP headers
func LanguageFromRequest(r *http.Request, defaultLang string) string {
	// X-Lang wins over Accept-Language
	if lang := r.Header.Get(cnst.XLang); lang != "" {
		return normalizeLang(lang, defaultLang)
	}

	if accept := r.Header.Get("Accept-Language"); accept != "" {
		first := strings.TrimSpace(strings.Split(strings.Split(accept, ",")[0], ";")[0])
		return normalizeLang(first, defaultLang)
	}

	return defaultLang
}

// normalizeLang standardizes language codes
func normalizeLang(lang, fallback string) string {
	code := strings.ToLower(strings.Split(lang, "-")[0])
	for _, supported := range supportedLangs {
		if code == supported {
			return code
		}
	}
	return fallback
}
