package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORS источник запроса берётся из Origin, при его отсутствии из Referer.
// Allow-Origin выставляется только при совпадении начала с одним из разрешённых источников,
// методы и заголовки объявляются всегда. Preflight OPTIONS завершается 204.
func CORS(allowedOrigins []string, methods ...string) gin.HandlerFunc {
	allowMethods := strings.Join(append(methods, http.MethodOptions), ", ")

	return func(c *gin.Context) {
		source := c.GetHeader("Origin")
		if source == "" {
			source = c.GetHeader("Referer")
		}

		if origin, ok := matchOrigin(source, allowedOrigins); ok {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", allowMethods)
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// matchOrigin возвращает разрешённый источник, с которого начинается source
func matchOrigin(source string, allowed []string) (string, bool) {
	if source == "" {
		return "", false
	}
	for _, origin := range allowed {
		if !strings.HasPrefix(source, origin) {
			continue
		}
		// https://site.example не должен разрешать https://site.example.evil.com
		rest := source[len(origin):]
		if rest == "" || rest[0] == '/' || rest[0] == '?' || rest[0] == '#' {
			return origin, true
		}
	}
	return "", false
}
