package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"tenantcore.org/internal/alerts"
	"tenantcore.org/internal/audit"
	"tenantcore.org/internal/identity"
	"tenantcore.org/internal/risk"
	"tenantcore.org/internal/token"
)

// fakeStore is a map-backed identity.Store for handler tests.
type fakeStore struct {
	users       map[string]*identity.User
	roles       map[string]*identity.Role
	claims      map[string][]identity.RoleClaim
	memberships []identity.Membership
	tenants     map[string]*identity.Tenant
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   make(map[string]*identity.User),
		roles:   make(map[string]*identity.Role),
		claims:  make(map[string][]identity.RoleClaim),
		tenants: make(map[string]*identity.Tenant),
	}
}

func (s *fakeStore) Users() identity.UserStore             { return (*fakeUsers)(s) }
func (s *fakeStore) Roles() identity.RoleStore             { return (*fakeRoles)(s) }
func (s *fakeStore) Tenants() identity.TenantStore         { return (*fakeTenants)(s) }
func (s *fakeStore) Memberships() identity.MembershipStore { return (*fakeMemberships)(s) }

type fakeUsers fakeStore

func (s *fakeUsers) Find(ctx context.Context, id string) (*identity.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, identity.ErrNotFound
}

func (s *fakeUsers) FindByName(ctx context.Context, userName string) (*identity.User, error) {
	for _, u := range s.users {
		if strings.EqualFold(u.UserName, userName) {
			return u, nil
		}
	}
	return nil, identity.ErrNotFound
}

func (s *fakeUsers) Update(ctx context.Context, u *identity.User) error {
	s.users[u.ID] = u
	return nil
}

type fakeRoles fakeStore

func bucketEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (s *fakeRoles) Find(ctx context.Context, id string) (*identity.Role, error) {
	if r, ok := s.roles[id]; ok {
		return r, nil
	}
	return nil, identity.ErrNotFound
}

func (s *fakeRoles) FindByNormalizedName(ctx context.Context, normalized string, tenantID *string) (*identity.Role, error) {
	for _, r := range s.roles {
		if r.NormalizedName == normalized && bucketEqual(r.TenantID, tenantID) {
			return r, nil
		}
	}
	return nil, identity.ErrNotFound
}

func (s *fakeRoles) ListByNormalizedNames(ctx context.Context, normalized []string, tenantID *string) ([]*identity.Role, error) {
	var out []*identity.Role
	for _, n := range normalized {
		if r, err := s.FindByNormalizedName(ctx, n, tenantID); err == nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeRoles) ListByTenant(ctx context.Context, tenantID *string) ([]*identity.Role, error) {
	var out []*identity.Role
	for _, r := range s.roles {
		if bucketEqual(r.TenantID, tenantID) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NormalizedName < out[j].NormalizedName })
	return out, nil
}

func (s *fakeRoles) Create(ctx context.Context, role *identity.Role) error {
	if _, err := s.FindByNormalizedName(ctx, role.NormalizedName, role.TenantID); err == nil {
		return identity.ErrConflict
	}
	s.roles[role.ID] = role
	return nil
}

func (s *fakeRoles) Update(ctx context.Context, role *identity.Role) error {
	s.roles[role.ID] = role
	return nil
}

func (s *fakeRoles) Delete(ctx context.Context, id string) error {
	delete(s.roles, id)
	return nil
}

func (s *fakeRoles) Claims(ctx context.Context, roleID string) ([]identity.RoleClaim, error) {
	return s.claims[roleID], nil
}

func (s *fakeRoles) AddClaim(ctx context.Context, claim identity.RoleClaim) error {
	for _, c := range s.claims[claim.RoleID] {
		if c == claim {
			return identity.ErrConflict
		}
	}
	s.claims[claim.RoleID] = append(s.claims[claim.RoleID], claim)
	return nil
}

func (s *fakeRoles) RemoveClaim(ctx context.Context, claim identity.RoleClaim) error {
	list := s.claims[claim.RoleID]
	for i, c := range list {
		if c == claim {
			s.claims[claim.RoleID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	return nil
}

type fakeTenants fakeStore

func (s *fakeTenants) Find(ctx context.Context, id string) (*identity.Tenant, error) {
	if t, ok := s.tenants[id]; ok {
		return t, nil
	}
	return nil, identity.ErrNotFound
}

func (s *fakeTenants) List(ctx context.Context) ([]identity.Tenant, error) {
	out := make([]identity.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind > out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *fakeTenants) Create(ctx context.Context, t *identity.Tenant) error {
	s.tenants[t.ID] = t
	return nil
}

func (s *fakeTenants) ListOwnedBy(ctx context.Context, userID string) ([]identity.Tenant, error) {
	var out []identity.Tenant
	for _, t := range s.tenants {
		if t.CreatedBy == userID || t.UpdatedBy == userID {
			out = append(out, *t)
		}
	}
	return out, nil
}

type fakeMemberships fakeStore

func (s *fakeMemberships) Add(ctx context.Context, m identity.Membership) error {
	for _, mb := range s.memberships {
		if mb.UserID == m.UserID && mb.RoleID == m.RoleID {
			return identity.ErrConflict
		}
	}
	s.memberships = append(s.memberships, m)
	return nil
}

func (s *fakeMemberships) Remove(ctx context.Context, userID, roleID string) error {
	for i, mb := range s.memberships {
		if mb.UserID == userID && mb.RoleID == roleID {
			s.memberships = append(s.memberships[:i], s.memberships[i+1:]...)
			break
		}
	}
	return nil
}

func (s *fakeMemberships) Exists(ctx context.Context, userID, roleID string) (bool, error) {
	for _, mb := range s.memberships {
		if mb.UserID == userID && mb.RoleID == roleID {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeMemberships) ListByUser(ctx context.Context, userID string) ([]identity.Membership, error) {
	var out []identity.Membership
	for _, mb := range s.memberships {
		if mb.UserID == userID {
			out = append(out, mb)
		}
	}
	return out, nil
}

// fakeAttempts backs the analyzer in handler tests.
type fakeAttempts struct {
	attempts []audit.LoginAttempt
}

func (s *fakeAttempts) Append(ctx context.Context, a *audit.LoginAttempt) error {
	s.attempts = append(s.attempts, *a)
	return nil
}

func (s *fakeAttempts) ListSince(ctx context.Context, userID string, since time.Time) ([]audit.LoginAttempt, error) {
	var out []audit.LoginAttempt
	for _, a := range s.attempts {
		if a.UserID == userID && !a.LoginAt.Before(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeAttempts) DistinctIPs(ctx context.Context, userID string, from, to time.Time) ([]string, error) {
	return s.distinct(userID, from, to, func(a audit.LoginAttempt) string { return a.IP })
}

func (s *fakeAttempts) DistinctBrowsers(ctx context.Context, userID string, from, to time.Time) ([]string, error) {
	return s.distinct(userID, from, to, func(a audit.LoginAttempt) string { return a.Browser })
}

func (s *fakeAttempts) distinct(userID string, from, to time.Time, pick func(audit.LoginAttempt) string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, a := range s.attempts {
		if a.UserID != userID || a.LoginAt.Before(from) || !a.LoginAt.Before(to) {
			continue
		}
		v := pick(a)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out, nil
}

type testAPI struct {
	t        *testing.T
	srv      *httptest.Server
	store    *fakeStore
	attempts *fakeAttempts
}

func newTestAPI(t *testing.T, mutate ...func(*Deps)) *testAPI {
	t.Helper()
	t.Setenv("TENANTCORE_AUTH_SECRET", "handler-test-secret-0123456789abcdef")
	token.ResetSecretForTests()
	t.Cleanup(token.ResetSecretForTests)

	store := newFakeStore()
	attempts := &fakeAttempts{}

	manager, err := identity.NewManager(store, identity.WithAttemptWriter(attempts))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	roles, err := identity.NewRoleDirectory(store.Roles())
	if err != nil {
		t.Fatalf("NewRoleDirectory: %v", err)
	}
	analyzer, err := risk.NewAnalyzer(attempts, store.Users())
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}

	deps := Deps{
		Store:    store,
		Manager:  manager,
		Roles:    roles,
		Analyzer: analyzer,
		Alerts:   alerts.New(),
		Attempts: attempts,
		TokenTTL: 10 * time.Minute,
	}
	for _, m := range mutate {
		m(&deps)
	}
	api := New(ReadyProbe{}, "test", deps)
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return &testAPI{t: t, srv: srv, store: store, attempts: attempts}
}

func (a *testAPI) seedRootAdmin() string {
	a.t.Helper()
	a.store.users["root"] = &identity.User{ID: "root", UserName: "root", Active: true}
	tok, err := token.Generate("root", "", []string{identity.RoleRootAdmin}, 10*time.Minute)
	if err != nil {
		a.t.Fatalf("Generate: %v", err)
	}
	return tok
}

func (a *testAPI) do(method, path string, body any, tok string) *http.Response {
	a.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			a.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, reader)
	if err != nil {
		a.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := a.srv.Client().Do(req)
	if err != nil {
		a.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t)
	resp := api.do(http.MethodGet, "/healthz", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var payload map[string]any
	decodeBody(t, resp, &payload)
	if payload["service"] != "tenantcore-api" {
		t.Fatalf("unexpected service: %v", payload["service"])
	}
}

func TestAuthRequired(t *testing.T) {
	api := newTestAPI(t)
	resp := api.do(http.MethodGet, "/v1/tenants", nil, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	resp = api.do(http.MethodGet, "/v1/tenants", nil, "not-a-real-token")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", resp.StatusCode)
	}
}

func TestLogin(t *testing.T) {
	api := newTestAPI(t)
	hash, err := identity.HashPassword("s3cret-passphrase")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	api.store.users["u1"] = &identity.User{ID: "u1", UserName: "alice", PasswordHash: hash, Active: true}

	resp := api.do(http.MethodPost, "/v1/auth/login", map[string]any{"user_name": "alice", "password": "s3cret-passphrase"}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var payload loginResponse
	decodeBody(t, resp, &payload)
	if payload.Token == "" || payload.UserID != "u1" {
		t.Fatalf("unexpected login payload: %+v", payload)
	}
	claims, err := token.ParseAndValidate(payload.Token)
	if err != nil {
		t.Fatalf("issued token invalid: %v", err)
	}
	if claims.Subject != "u1" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if len(api.attempts.attempts) != 1 {
		t.Fatalf("expected one recorded attempt, got %d", len(api.attempts.attempts))
	}
	rec := api.attempts.attempts[0]
	if !rec.Success || rec.UserID != "u1" || rec.Provider != "local" {
		t.Fatalf("unexpected success record: %+v", rec)
	}
	if rec.Region != "" {
		t.Fatalf("region must stay empty until geo enrichment: %q", rec.Region)
	}
}

func TestLoginFailureRecordsAttempt(t *testing.T) {
	api := newTestAPI(t)
	hash, err := identity.HashPassword("s3cret-passphrase")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	api.store.users["u1"] = &identity.User{ID: "u1", UserName: "alice", PasswordHash: hash, Active: true}

	resp := api.do(http.MethodPost, "/v1/auth/login", map[string]any{"user_name": "alice", "password": "wrong"}, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if len(api.attempts.attempts) != 1 {
		t.Fatalf("expected one recorded attempt, got %d", len(api.attempts.attempts))
	}
	if api.attempts.attempts[0].Success {
		t.Fatal("recorded attempt must be a failure")
	}
}

func TestLoginUnknownUser(t *testing.T) {
	api := newTestAPI(t)
	resp := api.do(http.MethodPost, "/v1/auth/login", map[string]any{"user_name": "ghost", "password": "x"}, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestRoleAssignmentFlow(t *testing.T) {
	api := newTestAPI(t)
	tok := api.seedRootAdmin()
	tenant := "t1"
	api.store.users["u1"] = &identity.User{ID: "u1", UserName: "alice", TenantID: "t1", Active: true}
	api.store.roles["r1"] = &identity.Role{ID: "r1", TenantID: &tenant, Name: "Auditor", NormalizedName: "AUDITOR"}

	resp := api.do(http.MethodPost, "/v1/users/u1/roles", map[string]any{"roles": []string{"Auditor"}}, tok)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	resp = api.do(http.MethodGet, "/v1/users/u1/roles/auditor", nil, tok)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var check inRoleResponse
	decodeBody(t, resp, &check)
	if !check.InRole {
		t.Fatal("expected user to be in role")
	}

	// assigning again conflicts
	resp = api.do(http.MethodPost, "/v1/users/u1/roles", map[string]any{"role_name": "Auditor"}, tok)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	var conflict map[string]any
	decodeBody(t, resp, &conflict)
	if conflict["code"] != "user_already_in_role" {
		t.Fatalf("unexpected error code: %v", conflict["code"])
	}

	resp = api.do(http.MethodDelete, "/v1/users/u1/roles/auditor", nil, tok)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	// removal is idempotent
	resp = api.do(http.MethodDelete, "/v1/users/u1/roles/auditor", nil, tok)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 on repeated delete, got %d", resp.StatusCode)
	}
}

func TestRoleAssignmentMissingRoles(t *testing.T) {
	api := newTestAPI(t)
	tok := api.seedRootAdmin()
	api.store.users["u1"] = &identity.User{ID: "u1", UserName: "alice", TenantID: "t1", Active: true}

	resp := api.do(http.MethodPost, "/v1/users/u1/roles", map[string]any{"roles": []string{"Ghost"}}, tok)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	var payload map[string]any
	decodeBody(t, resp, &payload)
	if payload["code"] != "role_not_found" {
		t.Fatalf("unexpected error code: %v", payload["code"])
	}
}

func TestCreateRoleAndDuplicate(t *testing.T) {
	api := newTestAPI(t)
	tok := api.seedRootAdmin()

	body := map[string]any{"name": "Auditor", "tenant_id": "t1"}
	resp := api.do(http.MethodPost, "/v1/roles", body, tok)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created identity.Role
	decodeBody(t, resp, &created)
	if created.NormalizedName != "AUDITOR" {
		t.Fatalf("unexpected role: %+v", created)
	}

	resp = api.do(http.MethodPost, "/v1/roles", body, tok)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	var payload map[string]any
	decodeBody(t, resp, &payload)
	if payload["code"] != "duplicate_role_name" {
		t.Fatalf("unexpected error code: %v", payload["code"])
	}
}

func TestPermissionDenied(t *testing.T) {
	api := newTestAPI(t)
	api.store.users["u2"] = &identity.User{ID: "u2", UserName: "bob", Active: true}
	tok, err := token.Generate("u2", "", nil, 10*time.Minute)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	resp := api.do(http.MethodPost, "/v1/tenants", map[string]any{"name": "Acme"}, tok)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestUserSecurityEndpoint(t *testing.T) {
	api := newTestAPI(t)
	tok := api.seedRootAdmin()
	api.store.users["u1"] = &identity.User{ID: "u1", UserName: "alice", Active: true}
	now := time.Now().UTC()
	for i := 0; i < 6; i++ {
		api.attempts.attempts = append(api.attempts.attempts, audit.LoginAttempt{
			ID: "a", UserID: "u1", Success: false, LoginAt: now.Add(-time.Duration(i) * time.Minute),
		})
	}

	resp := api.do(http.MethodGet, "/v1/users/u1/security?period_days=7", nil, tok)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var report risk.Report
	decodeBody(t, resp, &report)
	if report.PeriodDays != 7 {
		t.Fatalf("unexpected period: %d", report.PeriodDays)
	}
	if len(report.Findings) == 0 {
		t.Fatal("expected at least one finding for six failed logins")
	}
	if !report.ShouldChangePassword {
		t.Fatal("expected password-change flag")
	}
}

func TestUserSecurityConfiguredDefaultPeriod(t *testing.T) {
	api := newTestAPI(t, func(d *Deps) { d.AnalysisPeriodDays = 7 })
	tok := api.seedRootAdmin()
	api.store.users["u1"] = &identity.User{ID: "u1", UserName: "alice", Active: true}

	resp := api.do(http.MethodGet, "/v1/users/u1/security", nil, tok)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var report risk.Report
	decodeBody(t, resp, &report)
	if report.PeriodDays != 7 {
		t.Fatalf("expected configured default period 7, got %d", report.PeriodDays)
	}

	// An explicit query parameter still wins over the configured default.
	resp = api.do(http.MethodGet, "/v1/users/u1/security?period_days=3", nil, tok)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	decodeBody(t, resp, &report)
	if report.PeriodDays != 3 {
		t.Fatalf("expected explicit period 3, got %d", report.PeriodDays)
	}
}

func TestUserSecurityInvalidPeriod(t *testing.T) {
	api := newTestAPI(t)
	tok := api.seedRootAdmin()
	api.store.users["u1"] = &identity.User{ID: "u1", UserName: "alice", Active: true}

	resp := api.do(http.MethodGet, "/v1/users/u1/security?period_days=366", nil, tok)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestUserSecurityUnknownUser(t *testing.T) {
	api := newTestAPI(t)
	tok := api.seedRootAdmin()

	resp := api.do(http.MethodGet, "/v1/users/ghost/security", nil, tok)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestCreateTenant(t *testing.T) {
	api := newTestAPI(t)
	tok := api.seedRootAdmin()

	resp := api.do(http.MethodPost, "/v1/tenants", map[string]any{"name": " Acme ", "kind": "internal"}, tok)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var tenant identity.Tenant
	decodeBody(t, resp, &tenant)
	if tenant.Name != "Acme" {
		t.Fatalf("expected trimmed name, got %q", tenant.Name)
	}
	if tenant.Kind != identity.TenantKindInternal {
		t.Fatalf("unexpected kind: %v", tenant.Kind)
	}
	if tenant.CreatedBy != "root" {
		t.Fatalf("expected creator from token, got %q", tenant.CreatedBy)
	}

	resp = api.do(http.MethodPost, "/v1/tenants", map[string]any{"name": "X", "kind": "planetary"}, tok)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown kind, got %d", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	api := newTestAPI(t)
	resp := api.do(http.MethodDelete, "/v1/auth/login", nil, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); allow != "POST" {
		t.Fatalf("unexpected Allow header: %q", allow)
	}
}
