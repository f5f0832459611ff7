package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/dialpool/internal/domain"
	"github.com/DukeRupert/dialpool/internal/handler"
	"github.com/DukeRupert/dialpool/internal/identity"
	"github.com/DukeRupert/dialpool/internal/middleware"
	"github.com/DukeRupert/dialpool/internal/service"
	"github.com/DukeRupert/dialpool/internal/store"
)

const testSecret = "test-secret"

var day1 = time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

// =============================================================================
// Test Harness
// =============================================================================

type apiEnv struct {
	t      *testing.T
	store  *store.Memory
	issuer *identity.Issuer
	server *httptest.Server
}

type envOptions struct {
	allocateLimit int
}

func newAPIEnv(t *testing.T, opts envOptions) *apiEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemory()
	clock := service.Clock{Now: func() time.Time { return day1 }, Location: time.UTC}
	pub := service.NopPublisher{}

	allocation := service.NewAllocationService(st, pub, clock, 0, logger)
	accounts := service.NewAccountService(st, pub, clock, logger)
	admin := service.NewAdminService(st, pub, clock, logger)
	ingest := service.NewIngestService(st, nil, clock, logger)
	contacts := service.NewContactService(st, clock, logger)

	verifier, err := identity.NewJWTVerifier(testSecret, "")
	require.NoError(t, err)
	authMw := middleware.NewAuthMiddleware(verifier, accounts, logger)

	limit := opts.allocateLimit
	if limit == 0 {
		limit = 1000
	}
	limiter := middleware.NewRateLimitMiddleware(middleware.NewRateLimiter(limit, time.Minute, logger), logger)

	requireSuperAdmin := middleware.Stack(authMw.RequireUser, authMw.RequireRole(domain.RoleSuperAdmin))
	requireAdmin := middleware.Stack(authMw.RequireUser, authMw.RequireRole(domain.RoleAdmin, domain.RoleSuperAdmin))

	mux := http.NewServeMux()
	handler.NewNumberHandler(allocation, accounts, logger).RegisterRoutes(mux, authMw.RequireUser, limiter.Limit)
	handler.NewActivityHandler(accounts, logger).RegisterRoutes(mux, authMw.RequireUser)
	handler.NewAdminHandler(admin, ingest, logger).RegisterRoutes(mux, requireSuperAdmin, requireAdmin)
	handler.NewContactHandler(contacts, logger).RegisterRoutes(mux, requireSuperAdmin, requireAdmin)
	mux.HandleFunc("GET /health", handler.Health(st, logger))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &apiEnv{
		t:      t,
		store:  st,
		issuer: identity.NewIssuer(testSecret, ""),
		server: srv,
	}
}

func (e *apiEnv) token(userID string) string {
	e.t.Helper()
	tok, err := e.issuer.Issue(userID, time.Now(), time.Hour)
	require.NoError(e.t, err)
	return tok
}

// do sends a request as userID ("" for anonymous) and decodes the JSON response into out.
func (e *apiEnv) do(method, path, userID string, body any, out any) int {
	e.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(e.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(userID))
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(e.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (e *apiEnv) seed(country string, tier domain.Tier, numbers ...string) {
	e.t.Helper()
	_, err := e.store.IngestBatch(context.Background(), uuid.New(), domain.BatchParams{
		Country: country,
		Tier:    tier,
		Numbers: numbers,
	}, day1)
	require.NoError(e.t, err)
}

func (e *apiEnv) createAccount(userID string, mutate func(a *domain.Account)) {
	e.t.Helper()
	a := domain.NewAccount(userID, day1)
	if mutate != nil {
		mutate(a)
	}
	require.NoError(e.t, e.store.InTx(context.Background(), func(tx store.Tx) error {
		return tx.CreateAccount(context.Background(), a)
	}))
}

func (e *apiEnv) account(userID string) *domain.Account {
	e.t.Helper()
	a, err := e.store.GetAccount(context.Background(), userID)
	require.NoError(e.t, err)
	return a
}

func withRole(role domain.Role) func(a *domain.Account) {
	return func(a *domain.Account) { a.Role = role }
}

// =============================================================================
// GET /api/get-number
// =============================================================================

func TestGetNumber_Success(t *testing.T) {
	env := newAPIEnv(t, envOptions{})
	env.seed("Canada", domain.Tier1, "+1555000001")

	var resp handler.GetNumberResponse
	status := env.do("GET", "/api/get-number?tier=tier1&country=Canada", "alice", nil, &resp)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "+1555000001", resp.Number)
	assert.Equal(t, 1, env.account("alice").DailyNumbersShown)
}

func TestGetNumber_Errors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		user       string
		wantStatus int
		wantCode   string
	}{
		{"anonymous", "/api/get-number?tier=tier1&country=Canada", "", http.StatusUnauthorized, "unauthorized"},
		{"missing tier", "/api/get-number?country=Canada", "alice", http.StatusBadRequest, "invalid"},
		{"missing country", "/api/get-number?tier=tier1", "alice", http.StatusBadRequest, "invalid"},
		{"unknown tier", "/api/get-number?tier=gold&country=Canada", "alice", http.StatusBadRequest, "invalid"},
		{"unknown country", "/api/get-number?tier=tier1&country=France", "alice", http.StatusBadRequest, "invalid"},
		{"empty pool", "/api/get-number?tier=tier2&country=Spain", "alice", http.StatusNotFound, "no_numbers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newAPIEnv(t, envOptions{})

			var body handler.JSONError
			status := env.do("GET", tt.path, tt.user, nil, &body)

			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, body.Error)
		})
	}
}

func TestGetNumber_NoNumbersMessage(t *testing.T) {
	env := newAPIEnv(t, envOptions{})

	var body handler.JSONError
	status := env.do("GET", "/api/get-number?tier=tier2&country=Spain", "alice", nil, &body)

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "No more unique numbers available for your tier/country today.", body.Message)
}

func TestGetNumber_QuotaExceeded(t *testing.T) {
	env := newAPIEnv(t, envOptions{})
	numbers := make([]string, 10)
	for i := range numbers {
		numbers[i] = fmt.Sprintf("+1555000%03d", i)
	}
	env.seed("Canada", domain.Tier1, numbers...)

	for i := 0; i < domain.TierQuota(domain.Tier1); i++ {
		require.Equal(t, http.StatusOK, env.do("GET", "/api/get-number?tier=tier1&country=Canada", "alice", nil, nil))
	}

	var body handler.JSONError
	status := env.do("GET", "/api/get-number?tier=tier1&country=Canada", "alice", nil, &body)

	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "quota_exceeded", body.Error)
	assert.Equal(t, "You have reached your daily limit of 8 numbers.", body.Message)
}

func TestGetNumber_RateLimited(t *testing.T) {
	env := newAPIEnv(t, envOptions{allocateLimit: 1})
	env.seed("Canada", domain.Tier1, "+1555000001", "+1555000002")

	require.Equal(t, http.StatusOK, env.do("GET", "/api/get-number?tier=tier1&country=Canada", "alice", nil, nil))

	var body handler.JSONError
	status := env.do("GET", "/api/get-number?tier=tier1&country=Canada", "alice", nil, &body)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "rate_limit", body.Error)

	// Limits are per user
	assert.Equal(t, http.StatusOK, env.do("GET", "/api/get-number?tier=tier1&country=Canada", "bob", nil, nil))
}

// =============================================================================
// POST /api/save-number and /api/select-country
// =============================================================================

func TestSaveNumber(t *testing.T) {
	env := newAPIEnv(t, envOptions{})
	env.createAccount("alice", nil)

	var resp handler.AccountResponse
	status := env.do("POST", "/api/save-number", "alice", handler.SaveNumberRequest{Number: "+1555000001"}, &resp)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, resp.Summary.TotalSavedNumbers)

	var body handler.JSONError
	status = env.do("POST", "/api/save-number", "alice", handler.SaveNumberRequest{Number: "+1555000001"}, &body)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "Number is already saved.", body.Message)

	status = env.do("POST", "/api/save-number", "alice", handler.SaveNumberRequest{Number: "  "}, &body)
	assert.Equal(t, http.StatusBadRequest, status)

	status = env.do("POST", "/api/save-number", "nobody", handler.SaveNumberRequest{Number: "+1555000001"}, &body)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSaveNumber_MalformedBody(t *testing.T) {
	env := newAPIEnv(t, envOptions{})

	req, err := http.NewRequest("POST", env.server.URL+"/api/save-number", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+env.token("alice"))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSelectCountry(t *testing.T) {
	env := newAPIEnv(t, envOptions{})

	var resp handler.AccountResponse
	status := env.do("POST", "/api/select-country", "alice", handler.SelectCountryRequest{Country: "canada"}, &resp)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Canada", resp.Summary.SelectedCountry)

	// tier1 is locked for the rest of the month
	var body handler.JSONError
	status = env.do("POST", "/api/select-country", "alice", handler.SelectCountryRequest{Country: "USA"}, &body)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Contains(t, body.Message, "locked to Canada")

	status = env.do("POST", "/api/select-country", "alice", handler.SelectCountryRequest{Country: "Mars"}, &body)
	assert.Equal(t, http.StatusBadRequest, status)
}

// =============================================================================
// Activity
// =============================================================================

func TestActivity_SelfOnly(t *testing.T) {
	env := newAPIEnv(t, envOptions{})
	env.createAccount("alice", nil)
	env.createAccount("bob", nil)

	var summary domain.AccountSummary
	status := env.do("GET", "/api/user-activity/alice/summary", "alice", nil, &summary)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice", summary.UserID)
	assert.Equal(t, 8, summary.DailyLimit)

	var body handler.JSONError
	status = env.do("GET", "/api/user-activity/bob/summary", "alice", nil, &body)
	assert.Equal(t, http.StatusForbidden, status)

	status = env.do("GET", "/api/user-activity/bob/numbers?type=saved", "alice", nil, &body)
	assert.Equal(t, http.StatusForbidden, status)

	status = env.do("GET", "/api/user-activity/ghost/summary", "ghost", nil, &body)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestActivity_NumbersPaging(t *testing.T) {
	env := newAPIEnv(t, envOptions{})
	env.createAccount("alice", func(a *domain.Account) {
		a.SavedNumbers = []string{"n1", "n2", "n3"}
	})

	var page domain.NumberPage
	status := env.do("GET", "/api/user-activity/alice/numbers?type=saved&limit=2", "alice", nil, &page)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"n1", "n2"}, page.Numbers)
	assert.Equal(t, 3, page.Total)
	assert.True(t, page.HasMore)
	assert.Equal(t, "n2", page.StartAfter)

	status = env.do("GET", "/api/user-activity/alice/numbers?type=saved&limit=2&startAfter=n2", "alice", nil, &page)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"n3"}, page.Numbers)
	assert.False(t, page.HasMore)

	var body handler.JSONError
	assert.Equal(t, http.StatusBadRequest, env.do("GET", "/api/user-activity/alice/numbers?type=all", "alice", nil, &body))
	assert.Equal(t, http.StatusBadRequest, env.do("GET", "/api/user-activity/alice/numbers?type=saved&limit=0", "alice", nil, &body))
}

// =============================================================================
// Admin
// =============================================================================

func TestAdmin_RoleGuards(t *testing.T) {
	env := newAPIEnv(t, envOptions{})
	env.createAccount("root", withRole(domain.RoleSuperAdmin))
	env.createAccount("ops", withRole(domain.RoleAdmin))
	env.createAccount("alice", nil)

	upload := handler.UploadBatchRequest{Country: "Canada", Tier: "tier1", Numbers: []string{"+1555000001"}}

	tests := []struct {
		name       string
		method     string
		path       string
		user       string
		body       any
		wantStatus int
	}{
		{"user lists users", "GET", "/api/admin/users", "alice", nil, http.StatusForbidden},
		{"admin lists users", "GET", "/api/admin/users", "ops", nil, http.StatusForbidden},
		{"super admin lists users", "GET", "/api/admin/users", "root", nil, http.StatusOK},
		{"anonymous lists users", "GET", "/api/admin/users", "", nil, http.StatusUnauthorized},
		{"user uploads", "POST", "/api/admin/upload-batch", "alice", upload, http.StatusForbidden},
		{"admin uploads", "POST", "/api/admin/upload-batch", "ops", upload, http.StatusOK},
		{"unknown user uploads", "POST", "/api/admin/upload-batch", "stranger", upload, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := env.do(tt.method, tt.path, tt.user, tt.body, nil)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}

func TestAdmin_UpgradeTier(t *testing.T) {
	env := newAPIEnv(t, envOptions{})
	env.createAccount("root", withRole(domain.RoleSuperAdmin))
	env.createAccount("alice", func(a *domain.Account) {
		a.DailyNumbersShown = 8
		a.ShownNumbers = []string{"a", "b"}
		a.SelectedCountry = "Canada"
	})

	var resp handler.AccountResponse
	status := env.do("POST", "/api/admin/upgrade-tier", "root", handler.UpgradeTierRequest{UserID: "alice", NewTier: "tier3"}, &resp)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, domain.Tier3, resp.Summary.Tier)
	assert.Equal(t, 50, resp.Summary.Remaining)

	a := env.account("alice")
	assert.Equal(t, domain.Tier3, a.Tier)
	assert.Zero(t, a.DailyNumbersShown)
	assert.Empty(t, a.SelectedCountry)

	var body handler.JSONError
	status = env.do("POST", "/api/admin/upgrade-tier", "root", handler.UpgradeTierRequest{UserID: "alice", NewTier: "tier3"}, &body)
	assert.Equal(t, http.StatusConflict, status)

	status = env.do("POST", "/api/admin/upgrade-tier", "root", handler.UpgradeTierRequest{UserID: "ghost", NewTier: "tier2"}, &body)
	assert.Equal(t, http.StatusNotFound, status)

	status = env.do("POST", "/api/admin/upgrade-tier", "root", handler.UpgradeTierRequest{UserID: "alice"}, &body)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAdmin_ManageUser(t *testing.T) {
	env := newAPIEnv(t, envOptions{})
	env.createAccount("root", withRole(domain.RoleSuperAdmin))
	env.createAccount("alice", withRole(domain.RoleAdmin))

	var resp handler.ManageUserResponse
	status := env.do("PUT", "/api/admin/users/alice", "root", map[string]any{"role": nil, "email": "alice@example.com"}, &resp)
	require.Equal(t, http.StatusOK, status)
	assert.Nil(t, resp.User.Role)
	assert.Equal(t, "alice@example.com", resp.User.Email)

	a := env.account("alice")
	assert.Equal(t, domain.RoleNone, a.Role)
	assert.Equal(t, "alice@example.com", a.Email)

	status = env.do("PUT", "/api/admin/users/alice", "root", map[string]any{"role": "admin"}, &resp)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, resp.User.Role)
	assert.Equal(t, "admin", *resp.User.Role)

	var body handler.JSONError
	assert.Equal(t, http.StatusBadRequest, env.do("PUT", "/api/admin/users/alice", "root", map[string]any{}, &body))
	assert.Equal(t, http.StatusBadRequest, env.do("PUT", "/api/admin/users/alice", "root", map[string]any{"role": 7}, &body))
	assert.Equal(t, http.StatusBadRequest, env.do("PUT", "/api/admin/users/alice", "root", map[string]any{"email": "nope"}, &body))
	assert.Equal(t, http.StatusNotFound, env.do("PUT", "/api/admin/users/ghost", "root", map[string]any{"tier": "tier2"}, &body))
}

func TestAdmin_ListUsers(t *testing.T) {
	env := newAPIEnv(t, envOptions{})
	env.createAccount("root", withRole(domain.RoleSuperAdmin))
	env.createAccount("alice", nil)
	env.createAccount("bob", nil)

	var page handler.ListUsersResponse
	status := env.do("GET", "/api/admin/users?limit=2", "root", nil, &page)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, page.Users, 2)
	assert.Equal(t, "alice", page.Users[0].ID)
	assert.Equal(t, "bob", page.Users[1].ID)
	assert.True(t, page.HasMore)
	require.NotNil(t, page.LastUser)

	status = env.do("GET", "/api/admin/users?limit=2&startAfter="+*page.LastUser, "root", nil, &page)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, page.Users, 1)
	assert.Equal(t, "root", page.Users[0].ID)
	assert.False(t, page.HasMore)
}

func TestAdmin_UploadBatch(t *testing.T) {
	env := newAPIEnv(t, envOptions{})
	env.createAccount("ops", withRole(domain.RoleAdmin))
	env.seed("Canada", domain.Tier1, "+1555000001")

	var resp handler.BatchResponse
	status := env.do("POST", "/api/admin/upload-batch", "ops", handler.UploadBatchRequest{
		Country: "Canada",
		Tier:    "tier2",
		Numbers: []string{" +1555000001 ", "+1555000002", "+1555000002", ""},
	}, &resp)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, resp.Uploaded)
	assert.Equal(t, 2, resp.Skipped)
	assert.Equal(t, "Successfully uploaded 1 numbers. 2 duplicates skipped.", resp.Message)

	var body handler.JSONError
	status = env.do("POST", "/api/admin/upload-batch", "ops", handler.UploadBatchRequest{Country: "Canada", Tier: "tier2"}, &body)
	assert.Equal(t, http.StatusBadRequest, status)

	status = env.do("POST", "/api/admin/upload-batch", "ops", handler.UploadBatchRequest{Country: "Canada", Tier: "tier9", Numbers: []string{"x"}}, &body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid tier or country provided.", body.Message)

	status = env.do("POST", "/api/admin/upload-batch", "ops", handler.UploadBatchRequest{Country: "Canada", Tier: "tier2", Numbers: []string{" "}}, &body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "No valid unique numbers provided in the batch.", body.Message)
}

func TestAdmin_ImportBatchWithoutStorage(t *testing.T) {
	env := newAPIEnv(t, envOptions{})
	env.createAccount("ops", withRole(domain.RoleAdmin))

	var body handler.JSONError
	status := env.do("POST", "/api/admin/import-batch", "ops", handler.ImportBatchRequest{
		Country:   "Canada",
		Tier:      "tier1",
		ObjectKey: "imports/canada.txt",
	}, &body)

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Object storage is not configured.", body.Message)

	status = env.do("POST", "/api/admin/import-batch", "ops", handler.ImportBatchRequest{Country: "Canada", Tier: "tier1"}, &body)
	assert.Equal(t, http.StatusBadRequest, status)
}

// =============================================================================
// Contacts
// =============================================================================

func TestContacts_Lifecycle(t *testing.T) {
	env := newAPIEnv(t, envOptions{})
	env.createAccount("root", withRole(domain.RoleSuperAdmin))
	env.createAccount("ops", withRole(domain.RoleAdmin))

	var body handler.JSONError
	assert.Equal(t, http.StatusNotFound, env.do("GET", "/api/customer-service/active", "", nil, &body))

	number, description := "+1800555000", "Support line"
	req := handler.ContactRequest{Number: &number, Description: &description}

	assert.Equal(t, http.StatusForbidden, env.do("POST", "/api/admin/customer-service-contacts", "ops", req, &body))

	var created handler.ContactResponse
	require.Equal(t, http.StatusCreated, env.do("POST", "/api/admin/customer-service-contacts", "root", req, &created))
	assert.True(t, created.Contact.IsActive)

	var active handler.ActiveContactResponse
	require.Equal(t, http.StatusOK, env.do("GET", "/api/customer-service/active", "", nil, &active))
	assert.Equal(t, number, active.Number)
	assert.Equal(t, description, active.Description)

	var list handler.ListContactsResponse
	require.Equal(t, http.StatusOK, env.do("GET", "/api/admin/customer-service-contacts", "ops", nil, &list))
	assert.Len(t, list.Contacts, 1)

	inactive := false
	path := "/api/admin/customer-service-contacts/" + created.ID.String()
	var updated handler.ContactResponse
	require.Equal(t, http.StatusOK, env.do("PUT", path, "root", handler.ContactRequest{IsActive: &inactive}, &updated))
	assert.False(t, updated.Contact.IsActive)
	assert.Equal(t, http.StatusNotFound, env.do("GET", "/api/customer-service/active", "", nil, &body))

	assert.Equal(t, http.StatusBadRequest, env.do("PUT", path, "root", handler.ContactRequest{}, &body))
	assert.Equal(t, http.StatusBadRequest, env.do("PUT", "/api/admin/customer-service-contacts/not-a-uuid", "root", req, &body))

	var ack handler.MessageResponse
	require.Equal(t, http.StatusOK, env.do("DELETE", path, "root", nil, &ack))
	assert.Equal(t, http.StatusNotFound, env.do("DELETE", path, "root", nil, &body))
}

// =============================================================================
// Health
// =============================================================================

func TestHealth(t *testing.T) {
	env := newAPIEnv(t, envOptions{})

	var resp handler.HealthResponse
	assert.Equal(t, http.StatusOK, env.do("GET", "/health", "", nil, &resp))
	assert.Equal(t, "ok", resp.Status)
}
