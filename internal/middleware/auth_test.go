package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/DukeRupert/dialpool/internal/auth"
	"github.com/DukeRupert/dialpool/internal/domain"
)

// =============================================================================
// Mocks
// =============================================================================

// mockVerifier implements identity.Verifier for testing.
type mockVerifier struct {
	VerifyFunc func(ctx context.Context, token string) (string, error)
	lastToken  string
}

func (m *mockVerifier) Verify(ctx context.Context, token string) (string, error) {
	m.lastToken = token
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, token)
	}
	if token == "" {
		return "", domain.Unauthorized("identity.verify", "Missing bearer token.")
	}
	if token == "good" {
		return "user-1", nil
	}
	return "", domain.Unauthorized("identity.verify", "Invalid token.")
}

// mockRoleLookup implements RoleLookup for testing.
type mockRoleLookup struct {
	roles map[string]domain.Role
	err   error
}

func (m *mockRoleLookup) Role(_ context.Context, userID string) (domain.Role, error) {
	if m.err != nil {
		return domain.RoleNone, m.err
	}
	return m.roles[userID], nil
}

// =============================================================================
// Test Helpers
// =============================================================================

// newTestLogger creates a logger that only shows errors.
func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only show errors in tests
	}))
}

func newTestAuthMiddleware(roles map[string]domain.Role) (*AuthMiddleware, *mockVerifier) {
	v := &mockVerifier{}
	return NewAuthMiddleware(v, &mockRoleLookup{roles: roles}, newTestLogger()), v
}

// =============================================================================
// RequireUser Middleware Tests (P0)
// =============================================================================

func TestRequireUser_ValidToken_SetsPrincipal(t *testing.T) {
	mw, verifier := newTestAuthMiddleware(nil)

	var gotUserID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = auth.GetUserID(r)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/get-number", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()

	mw.RequireUser(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if gotUserID != "user-1" {
		t.Errorf("user id = %q, want user-1", gotUserID)
	}
	if verifier.lastToken != "good" {
		t.Errorf("verified token = %q, want good", verifier.lastToken)
	}
}

func TestRequireUser_RejectsBadCredentials(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"wrong scheme", "Basic Z29vZA=="},
		{"invalid token", "Bearer nope"},
		{"scheme only", "Bearer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw, _ := newTestAuthMiddleware(nil)

			handlerCalled := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
			})

			req := httptest.NewRequest(http.MethodGet, "/api/get-number", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			mw.RequireUser(next).ServeHTTP(rec, req)

			if handlerCalled {
				t.Error("handler should not be called")
			}
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestRequireUser_SchemeIsCaseInsensitive(t *testing.T) {
	mw, _ := newTestAuthMiddleware(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/get-number", nil)
	req.Header.Set("Authorization", "bearer good")
	rec := httptest.NewRecorder()

	mw.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRequireUser_IgnoresQueryToken(t *testing.T) {
	mw, _ := newTestAuthMiddleware(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/get-number?access_token=good", nil)
	rec := httptest.NewRecorder()

	mw.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireUserOrQueryToken_AcceptsQueryToken(t *testing.T) {
	mw, _ := newTestAuthMiddleware(nil)

	var gotUserID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = auth.GetUserID(r)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/live?access_token=good", nil)
	rec := httptest.NewRecorder()

	mw.RequireUserOrQueryToken(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if gotUserID != "user-1" {
		t.Errorf("user id = %q, want user-1", gotUserID)
	}
}

func TestRequireUserOrQueryToken_HeaderWins(t *testing.T) {
	mw, verifier := newTestAuthMiddleware(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/live?access_token=nope", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()

	mw.RequireUserOrQueryToken(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if verifier.lastToken != "good" {
		t.Errorf("verified token = %q, want header token", verifier.lastToken)
	}
}

// =============================================================================
// RequireRole Tests
// =============================================================================

func TestRequireRole(t *testing.T) {
	roles := map[string]domain.Role{
		"admin-1": domain.RoleAdmin,
		"super-1": domain.RoleSuperAdmin,
	}

	tests := []struct {
		name       string
		userID     string
		allowed    []domain.Role
		wantStatus int
		wantRole   domain.Role
	}{
		{"super admin on super route", "super-1", []domain.Role{domain.RoleSuperAdmin}, http.StatusOK, domain.RoleSuperAdmin},
		{"admin on super route", "admin-1", []domain.Role{domain.RoleSuperAdmin}, http.StatusForbidden, ""},
		{"admin on admin route", "admin-1", []domain.Role{domain.RoleAdmin, domain.RoleSuperAdmin}, http.StatusOK, domain.RoleAdmin},
		{"plain user", "user-1", []domain.Role{domain.RoleAdmin, domain.RoleSuperAdmin}, http.StatusForbidden, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw, _ := newTestAuthMiddleware(roles)

			var gotRole domain.Role
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotRole = auth.GetPrincipal(r.Context()).Role
			})

			req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
			req = req.WithContext(auth.SetPrincipal(req.Context(), &auth.Principal{UserID: tt.userID}))
			rec := httptest.NewRecorder()

			mw.RequireRole(tt.allowed...)(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if gotRole != tt.wantRole {
				t.Errorf("role = %q, want %q", gotRole, tt.wantRole)
			}
		})
	}
}

func TestRequireRole_NoPrincipal_Returns401(t *testing.T) {
	mw, _ := newTestAuthMiddleware(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	rec := httptest.NewRecorder()

	mw.RequireRole(domain.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireRole_LookupFailure_Returns500(t *testing.T) {
	lookup := &mockRoleLookup{err: domain.Internal(errors.New("db down"), "account.role", "failed to load account")}
	mw := NewAuthMiddleware(&mockVerifier{}, lookup, newTestLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	req = req.WithContext(auth.SetPrincipal(req.Context(), &auth.Principal{UserID: "super-1"}))
	rec := httptest.NewRecorder()

	mw.RequireRole(domain.RoleSuperAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

// =============================================================================
// Stack Tests
// =============================================================================

func TestStack_OrderIsOutermostFirst(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Stack(mark("a"), mark("b"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	want := []string{"a", "b", "handler"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}
