// Package gateway provides the main Cratos gateway server.
//
// http_auth.go contains the HTTP auth middleware shared by the REST API
// and the Home Assistant conversation webhook.
package gateway

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/cratos-run/cratos/internal/auth"
	"github.com/cratos-run/cratos/internal/sessions"
	"github.com/cratos-run/cratos/pkg/models"
)

// httpAuthMiddleware validates a Bearer JWT or API key (Authorization header
// or X-API-Key) and attaches the resolved user to the request context. When
// the auth service is disabled (no JWT secret or API keys configured),
// requests pass through unauthenticated.
func httpAuthMiddleware(service *auth.Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if service == nil || !service.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				token := strings.TrimSpace(authHeader[len("bearer "):])
				token = strings.TrimPrefix(token, "cratos_")
				if user, err := service.ValidateAPIKey(token); err == nil {
					next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
					return
				}
				if user, err := service.ValidateJWT(token); err == nil {
					next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
					return
				}
				if logger != nil {
					logger.Warn("http auth failed", "path", r.URL.Path)
				}
			}

			apiKey := r.Header.Get("X-API-Key")
			if apiKey != "" {
				if user, err := service.ValidateAPIKey(apiKey); err == nil {
					next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
					return
				}
			}

			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		})
	}
}

// callerFromRequest resolves the authenticated user into a sessions.Caller.
// Admin comes from the API key's scope list; the Admin scope bypasses
// ownership checks everywhere.
func callerFromRequest(r *http.Request) (sessions.Caller, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil || user.ID == "" {
		return sessions.Caller{}, false
	}
	return sessions.Caller{UserID: user.ID, Admin: user.HasScope(models.ScopeAdmin)}, true
}
