package auth

import (
	"net"
	"net/http"
	"strings"

	"github.com/stewones/borda-sub001/pkg/logger"
	"github.com/stewones/borda-sub001/pkg/utils"
)

// AuthenticateRequestMiddleware resolves the caller role from an API key
// or bearer session token, applies CORS and per-caller rate limiting, and
// injects the resolved Identity into the request context.
func AuthenticateRequestMiddleware(cfg SecConfig) func(http.Handler) http.Handler {
	// rate limiters keyed by api key, user id or remote ip
	limiters := newLimiterPool(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.LogRequest(r)

			// cors preflight
			origin := r.Header.Get("Origin")
			if origin != "" && originAllowed(origin, cfg.AllowedOrigins) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,PATCH,OPTIONS")
				w.Header().Set("Access-Control-Max-Age", "600")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type,X-API-Key")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			// allow unauthenticated health checks for probes
			if (r.URL.Path == "/healthz" || r.URL.Path == "/readyz") && r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			id, key, ok := authenticate(r, cfg)
			logger.Debug("auth_check", "role", id.Role.String(), "user", id.UserID)
			if !ok {
				utils.JSONError(w, http.StatusUnauthorized, "unauthorized")
				logger.Warn("request_unauthorized", "path", r.URL.Path, "remote", r.RemoteAddr)
				return
			}

			if !limiters.Allow(key) {
				utils.JSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				logger.Warn("rate_limited", "role", id.Role.String(), "path", r.URL.Path)
				return
			}

			logger.Info("request_allowed", "method", r.Method, "path", r.URL.Path, "role", id.Role.String())
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func originAllowed(origin string, allowed []string) bool {
	if len(allowed) == 0 {
		return false
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// authenticate resolves the caller from X-API-Key (backend/frontend key
// sets) or Authorization: Bearer <jwt>. A presented but invalid credential
// is rejected; an absent credential resolves to RoleUnauth so endpoints
// with their own auth semantics (public functions, the live channel's 4401
// close) can decide. The returned key identifies the caller for rate
// limiting.
func authenticate(r *http.Request, cfg SecConfig) (Identity, string, bool) {
	if key := r.Header.Get("X-API-Key"); key != "" {
		if _, ok := cfg.BackendKeys[key]; ok {
			return Identity{Role: RoleBackend}, key, true
		}
		if _, ok := cfg.FrontendKeys[key]; ok {
			return Identity{Role: RoleFrontend}, key, true
		}
		return Identity{}, key, false
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		token := strings.TrimSpace(auth[7:])
		claims, err := VerifyToken(cfg.JWTSecret, token)
		if err != nil {
			logger.Warn("token_rejected", "path", r.URL.Path, "error", err.Error())
			return Identity{}, clientIP(r), false
		}
		return Identity{Role: RoleUser, UserID: claims.UserID}, claims.UserID, true
	}

	return Identity{Role: RoleUnauth}, clientIP(r), true
}
