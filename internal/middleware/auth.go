// Package middleware contains HTTP middleware for the dialpool API.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler.
// They are designed to be composed using a middleware stack approach.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/DukeRupert/dialpool/internal/auth"
	"github.com/DukeRupert/dialpool/internal/domain"
	"github.com/DukeRupert/dialpool/internal/handler"
	"github.com/DukeRupert/dialpool/internal/identity"
)

// AccessTokenParam is the query parameter accepted in place of the Authorization
// header on routes that cannot set headers (browser WebSockets).
const AccessTokenParam = "access_token"

// RoleLookup resolves the administrative role held on a user's account record.
type RoleLookup interface {
	Role(ctx context.Context, userID string) (domain.Role, error)
}

// =============================================================================
// Auth Middleware Configuration
// =============================================================================

// AuthMiddleware provides bearer token authentication and role checks.
//
// Create one instance and use its methods as middleware.
type AuthMiddleware struct {
	verifier identity.Verifier
	roles    RoleLookup
	logger   *slog.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware instance.
func NewAuthMiddleware(verifier identity.Verifier, roles RoleLookup, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		roles:    roles,
		logger:   logger,
	}
}

// =============================================================================
// RequireUser Middleware
// =============================================================================

// RequireUser is middleware that requires a valid bearer token in the
// Authorization header. The verified user ID is stored in the request context
// and can be retrieved with auth.GetUserID.
//
// Flow:
//
//	Request -> RequireUser -> Handler
//	           |
//	           +-> Read Authorization header
//	           +-> Verify token (401 on failure)
//	           +-> Set principal in context
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return m.authenticate(next, false)
}

// RequireUserOrQueryToken is RequireUser that also accepts the token from the
// access_token query parameter when no Authorization header is present.
func (m *AuthMiddleware) RequireUserOrQueryToken(next http.Handler) http.Handler {
	return m.authenticate(next, true)
}

func (m *AuthMiddleware) authenticate(next http.Handler, allowQuery bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" && allowQuery {
			token = r.URL.Query().Get(AccessTokenParam)
		}

		userID, err := m.verifier.Verify(r.Context(), token)
		if err != nil {
			handler.ErrorResponse(w, r, m.logger, err)
			return
		}

		ctx := auth.SetPrincipal(r.Context(), &auth.Principal{UserID: userID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// =============================================================================
// RequireRole Middleware
// =============================================================================

// RequireRole returns middleware that only admits users whose account record
// holds one of roles. The role is read on every request so changes apply
// immediately.
//
// IMPORTANT: Use this AFTER RequireUser in the middleware chain.
//
// Usage:
//
//	mux.Handle("POST /api/admin/upgrade-tier",
//	    authMw.RequireUser(
//	        authMw.RequireRole(domain.RoleSuperAdmin)(upgradeHandler)))
func (m *AuthMiddleware) RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := auth.GetPrincipal(r.Context())
			if principal == nil {
				// This shouldn't happen if RequireUser is used before this middleware
				m.logger.Error("RequireRole called without principal in context")
				handler.UnauthorizedResponse(w, r, m.logger)
				return
			}

			role, err := m.roles.Role(r.Context(), principal.UserID)
			if err != nil {
				handler.ErrorResponse(w, r, m.logger, err)
				return
			}

			if role == domain.RoleNone || !slices.Contains(roles, role) {
				m.logger.Warn("role check failed",
					"user_id", principal.UserID,
					"role", string(role),
					"path", r.URL.Path,
				)
				handler.ForbiddenResponse(w, r, m.logger)
				return
			}

			principal.Role = role
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// Request Helpers
// =============================================================================

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// =============================================================================
// Middleware Stack Helpers
// =============================================================================

// Stack composes multiple middleware functions into a single middleware.
//
// Middleware is applied in the order provided, meaning the first middleware
// in the slice is the outermost (runs first on request, last on response).
//
// Example:
//
//	stack := Stack(authMw.RequireUser, authMw.RequireRole(domain.RoleSuperAdmin))
//	mux.Handle("GET /api/admin/users", stack(listUsersHandler))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// Ensure middleware functions have correct signature
var (
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireUser
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireUserOrQueryToken
)
