package middleware

import (
	"errors"
	"net/http"

	"github.com/SergeiKhy/site-analytics/internal/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const principalKey = "auth_principal"

// RequireBearer пропускает запрос только с действительным bearer токеном.
// Проверка выполняется до любых обращений к хранилищу.
func RequireBearer(verifier auth.Verifier, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		token, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Требуется заголовок Authorization: Bearer <token>",
			})
			return
		}

		principal, err := verifier.Verify(c.Request.Context(), token)
		if errors.Is(err, auth.ErrProviderUnavailable) {
			logger.Error("Identity provider unavailable", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":   "upstream_unavailable",
				"message": "Сервис аутентификации недоступен",
			})
			return
		}
		if err != nil {
			logger.Warn("Rejected bearer token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Невалидный токен",
			})
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// GetPrincipal извлекает аутентифицированного администратора из контекста
func GetPrincipal(c *gin.Context) (*auth.Principal, bool) {
	v, exists := c.Get(principalKey)
	if !exists {
		return nil, false
	}
	p, ok := v.(*auth.Principal)
	return p, ok
}
