package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/kozaktomas/face-attend/internal/config"
)

// RequireAdmin is middleware that protects management endpoints with HTTP
// basic auth against the configured admin credentials. When no credentials
// are configured the endpoints are open, which is only acceptable on a
// trusted network.
func RequireAdmin(cfg config.AdminConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Username == "" && cfg.Password == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, pass, ok := r.BasicAuth()
			if !ok || !credentialsMatch(user, pass, cfg) {
				w.Header().Set("WWW-Authenticate", `Basic realm="face-attend"`)
				http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func credentialsMatch(user, pass string, cfg config.AdminConfig) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(cfg.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(cfg.Password)) == 1
	return userOK && passOK
}
