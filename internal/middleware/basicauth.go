package middleware

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/dialpool/internal/handler"
)

// BasicAuthMiddleware protects operational endpoints such as /metrics with a
// single static credential.
type BasicAuthMiddleware struct {
	realm    string
	username string
	password string
	enabled  bool
	logger   *slog.Logger
}

// NewBasicAuthMiddleware creates a new basic auth middleware for realm.
// If both username and password are empty, authentication is disabled.
func NewBasicAuthMiddleware(realm, username, password string, logger *slog.Logger) *BasicAuthMiddleware {
	return &BasicAuthMiddleware{
		realm:    realm,
		username: username,
		password: password,
		enabled:  username != "" || password != "",
		logger:   logger,
	}
}

// Handler returns middleware that requires basic authentication.
func (m *BasicAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.enabled {
			next.ServeHTTP(w, r)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok {
			m.unauthorized(w, r)
			return
		}

		// Use constant-time comparison to prevent timing attacks
		userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(m.username)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(m.password)) == 1

		if !userMatch || !passMatch {
			m.unauthorized(w, r)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// unauthorized sends a 401 response with a WWW-Authenticate challenge.
func (m *BasicAuthMiddleware) unauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", m.realm))
	handler.UnauthorizedResponse(w, r, m.logger)
}
