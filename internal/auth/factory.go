package auth

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/listsync/listsync/internal/config"
)

// NewAuthMiddleware creates authentication middleware based on config.
// A nil config means anonymous access.
func NewAuthMiddleware(cfg *config.AuthConfig) (func(http.Handler) http.Handler, error) {
	switch cfg.GetMode() {
	case config.AuthModeAnonymous:
		slog.Info("auth: anonymous mode")
		return anonymousMiddleware, nil
	case config.AuthModeJWT:
		return createJWTMiddleware(cfg.JWT)
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", cfg.Mode)
	}
}

func createJWTMiddleware(cfg *config.JWTConfig) (func(http.Handler) http.Handler, error) {
	if cfg == nil {
		return nil, fmt.Errorf("jwt configuration is required for jwt mode")
	}

	secret, err := cfg.GetSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to read jwt secret: %w", err)
	}

	validator, err := newHMACValidator(secret, cfg.Issuer, cfg.Audience)
	if err != nil {
		return nil, err
	}

	slog.Info("auth: jwt mode", "issuer", cfg.Issuer, "audience", cfg.Audience)
	return newBearerMiddleware(validator, cfg.Realm).Middleware, nil
}

// anonymousMiddleware is a no-op middleware that passes requests through without authentication.
func anonymousMiddleware(next http.Handler) http.Handler {
	return next
}
