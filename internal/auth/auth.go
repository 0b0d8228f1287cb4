package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/SergeiKhy/site-analytics/internal/config"
	"go.uber.org/zap"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
	// ErrProviderUnavailable провайдер идентичности не ответил
	ErrProviderUnavailable = errors.New("identity provider unavailable")
)

// Режимы проверки токена
const (
	ModeSupabase = "supabase"
	ModeJWT      = "jwt"
	ModeOIDC     = "oidc"
)

// Principal аутентифицированный администратор
type Principal struct {
	Subject string `json:"subject"`
	Email   string `json:"email,omitempty"`
}

// Verifier проверяет bearer токен у внешнего провайдера идентичности
type Verifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

// BearerToken извлекает токен из заголовка Authorization
func BearerToken(header string) (string, error) {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", ErrMissingToken
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// New создаёт проверку токенов для выбранного режима
func New(ctx context.Context, cfg config.AuthConfig, logger *zap.Logger) (Verifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Mode {
	case "", ModeSupabase:
		if cfg.URL == "" || cfg.APIKey == "" {
			return nil, fmt.Errorf("AUTH_URL and AUTH_API_KEY are required for %s auth", ModeSupabase)
		}
		return NewRemoteVerifier(cfg.URL, cfg.APIKey, nil, logger), nil
	case ModeJWT:
		if cfg.JWTSecret == "" {
			return nil, fmt.Errorf("AUTH_JWT_SECRET is required for %s auth", ModeJWT)
		}
		return NewJWTVerifier([]byte(cfg.JWTSecret), cfg.OIDCAudience), nil
	case ModeOIDC:
		if cfg.OIDCIssuer == "" {
			return nil, fmt.Errorf("AUTH_OIDC_ISSUER is required for %s auth", ModeOIDC)
		}
		return NewOIDCVerifier(ctx, cfg.OIDCIssuer, cfg.OIDCAudience)
	}
	return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
}
