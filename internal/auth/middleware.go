package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/strefethen/freebox-hub-go/internal/api"
	"github.com/strefethen/freebox-hub-go/internal/apperrors"
	"github.com/strefethen/freebox-hub-go/internal/config"
)

var publicRoutes = map[string]struct{}{
	"/v1/auth/pair/start":    {},
	"/v1/auth/pair/complete": {},
	"/v1/auth/refresh":       {},
	"/v1/health":             {},
	"/v1/health/live":        {},
	"/v1/health/ready":       {},
}

var publicPrefixes = []string{
	"/v1/health",
	"/v1/openapi",
}

// Browsers cannot set headers on a websocket upgrade, so these paths also
// accept the access token as a query parameter.
var queryTokenRoutes = map[string]struct{}{
	"/ws/events": {},
}

// Middleware requires an access token on every route that is not public.
// The authenticated client is stored in the request context.
func Middleware(cfg config.Config, issuer *Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicRoute(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			if isTestModeRequest(r, cfg) {
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), testPrincipal)))
				return
			}

			token, appErr := bearerToken(r)
			if appErr != nil {
				api.WriteError(w, r, appErr)
				return
			}

			client, err := issuer.Verify(token, KindAccess)
			switch {
			case errors.Is(err, ErrTokenExpired):
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Token has expired", apperrors.ErrorCodeAuthTokenExpired))
			case errors.Is(err, ErrTokenType):
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Invalid token type", apperrors.ErrorCodeAuthTokenInvalid))
			case err != nil:
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Invalid token", apperrors.ErrorCodeAuthTokenInvalid))
			default:
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), client)))
			}
		})
	}
}

var testPrincipal = Principal{DeviceID: "test-device", DeviceName: "Test Device"}

func bearerToken(r *http.Request) (string, *apperrors.AppError) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if _, ok := queryTokenRoutes[r.URL.Path]; ok {
			if token := r.URL.Query().Get("access_token"); token != "" {
				return token, nil
			}
		}
		return "", apperrors.NewUnauthorizedError("Missing Authorization header")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", apperrors.NewUnauthorizedError("Invalid Authorization header format")
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", apperrors.NewUnauthorizedError("Invalid Authorization header format")
	}
	return token, nil
}

func isPublicRoute(path string) bool {
	if _, ok := publicRoutes[path]; ok {
		return true
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func isTestModeRequest(r *http.Request, cfg config.Config) bool {
	if !cfg.AllowTestMode {
		return false
	}
	if cfg.NodeEnv != "development" {
		return false
	}
	return r.Header.Get("x-test-mode") == "true"
}
