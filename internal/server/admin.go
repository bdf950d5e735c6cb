package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/routecodex/routecodex/internal/config"
)

// AdminAuthMiddleware validates a Bearer token with constant-time
// comparison, the same pattern the ambient auth stack uses everywhere a
// static shared secret gates an endpoint. Requests without a valid token
// receive 401 (missing) or 403 (invalid).
func AdminAuthMiddleware(token string) func(http.Handler) http.Handler {
	tokenBytes := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const prefix = "Bearer "
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, prefix) {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeAdminError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			provided := []byte(strings.TrimPrefix(authHeader, prefix))
			if subtle.ConstantTimeCompare(provided, tokenBytes) != 1 {
				writeAdminError(w, http.StatusForbidden, "invalid token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeAdminError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// HandleAdminConfig returns the currently loaded configuration with every
// secret reference redacted, so operators can inspect routing/provider
// state without a secondary tool.
func (h *Handler) HandleAdminConfig(w http.ResponseWriter, r *http.Request) {
	cfg := config.Get()
	redacted := *cfg
	redacted.Providers = make(map[string]config.ProviderConfig, len(cfg.Providers))
	for id, p := range cfg.Providers {
		if p.KeyRef != "" {
			p.KeyRef = "[redacted]"
		}
		if p.OAuth != nil {
			oauthCopy := *p.OAuth
			oauthCopy.ClientID = "[redacted]"
			p.OAuth = &oauthCopy
		}
		redacted.Providers[id] = p
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(redacted)
}
