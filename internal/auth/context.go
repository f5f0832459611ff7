// Package auth provides authentication context helpers.
//
// This package is designed to be imported by both middleware and handler
// packages without causing import cycles.
package auth

import (
	"context"
	"net/http"

	"github.com/DukeRupert/dialpool/internal/domain"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// principalContextKey is the key used to store the authenticated caller in context.
	principalContextKey contextKey = "principal"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID string
	// Role is only populated on routes guarded by RequireRole.
	Role domain.Role
}

// GetPrincipal retrieves the authenticated caller from the context.
//
// Returns nil if the request is unauthenticated.
func GetPrincipal(ctx context.Context) *Principal {
	p, ok := ctx.Value(principalContextKey).(*Principal)
	if !ok {
		return nil
	}
	return p
}

// GetUserID returns the authenticated user ID from the request, or "".
func GetUserID(r *http.Request) string {
	if p := GetPrincipal(r.Context()); p != nil {
		return p.UserID
	}
	return ""
}

// SetPrincipal stores the caller in the context.
//
// This is called by the bearer authentication middleware after the token is verified.
func SetPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}
