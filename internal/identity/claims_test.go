package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func claimValues(p *PrincipalDraft, claimType string) []string {
	var out []string
	for _, c := range p.Claims {
		if c.Type == claimType {
			out = append(out, c.Value)
		}
	}
	return out
}

func TestBuildPrincipalBaseClaims(t *testing.T) {
	s := newMemStore()
	seedTenant(s, "t1", "Acme", TenantKindCustomer)
	user := s.addUser(&User{
		ID:          "u1",
		UserName:    "alice",
		Email:       "alice@example.com",
		TenantID:    "t1",
		SuperiorID:  "u9",
		DisplayName: "Alice A.",
		AvatarURL:   "https://img.example.com/alice.png",
		Active:      true,
	})
	m := newTestManager(t, s)

	p, err := m.BuildPrincipal(context.Background(), user)
	require.NoError(t, err)

	assert.Equal(t, []string{"u1"}, claimValues(p, ClaimSubject))
	assert.Equal(t, []string{"alice"}, claimValues(p, ClaimUserName))
	assert.Equal(t, []string{"alice@example.com"}, claimValues(p, ClaimEmail))
	assert.Equal(t, []string{"t1"}, claimValues(p, ClaimTenantID))
	assert.Equal(t, []string{"Acme"}, claimValues(p, ClaimTenantName))
	assert.Equal(t, []string{"u9"}, claimValues(p, ClaimSuperiorID))
	assert.Equal(t, []string{"Alice A."}, claimValues(p, ClaimDisplayName))
	assert.Empty(t, p.Roles())
	assert.Empty(t, p.Permissions())
}

func TestBuildPrincipalSkipsEmptyClaims(t *testing.T) {
	s := newMemStore()
	user := seedUser(s, "u1", "alice", "")
	m := newTestManager(t, s)

	p, err := m.BuildPrincipal(context.Background(), user)
	require.NoError(t, err)
	assert.Empty(t, claimValues(p, ClaimTenantID))
	assert.Empty(t, claimValues(p, ClaimEmail))
	assert.Empty(t, claimValues(p, ClaimSuperiorID))
}

func TestBuildPrincipalCrossTenantPermissionIsolation(t *testing.T) {
	s := newMemStore()
	seedTenant(s, "t1", "Acme", TenantKindCustomer)
	seedTenant(s, "t2", "Globex", TenantKindCustomer)
	user := seedUser(s, "u1", "alice", "t1")

	home := seedRole(s, "r1", "Auditor", tid("t1"))
	foreign := seedRole(s, "r2", "Auditor", tid("t2"))
	require.NoError(t, s.Roles().AddClaim(context.Background(), RoleClaim{RoleID: home.ID, Type: ClaimPermission, Value: PermAuditView}))
	require.NoError(t, s.Roles().AddClaim(context.Background(), RoleClaim{RoleID: foreign.ID, Type: ClaimPermission, Value: PermTenantsManage}))

	// Memberships in both tenants' roles; the foreign one arrived through a
	// historical tenant move.
	require.NoError(t, s.Memberships().Add(context.Background(), Membership{UserID: "u1", RoleID: home.ID, TenantID: "t1"}))
	require.NoError(t, s.Memberships().Add(context.Background(), Membership{UserID: "u1", RoleID: foreign.ID, TenantID: "t2"}))

	m := newTestManager(t, s)
	p, err := m.BuildPrincipal(context.Background(), user)
	require.NoError(t, err)

	assert.Equal(t, []string{"Auditor", "Auditor"}, p.Roles(), "both roles contribute their name claim")
	assert.Equal(t, []string{PermAuditView}, p.Permissions(), "the foreign tenant's permissions must not leak")
	assert.True(t, p.HasPermission(PermAuditView))
	assert.False(t, p.HasPermission(PermTenantsManage))
}

func TestBuildPrincipalGlobalRolePermissions(t *testing.T) {
	s := newMemStore()
	user := seedUser(s, "u1", "alice", "t1")
	seedTenant(s, "t1", "Acme", TenantKindCustomer)

	global := seedRole(s, "r1", "Support", nil)
	require.NoError(t, s.Roles().AddClaim(context.Background(), RoleClaim{RoleID: global.ID, Type: ClaimPermission, Value: PermUsersView}))
	require.NoError(t, s.Memberships().Add(context.Background(), Membership{UserID: "u1", RoleID: global.ID}))

	m := newTestManager(t, s)
	p, err := m.BuildPrincipal(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, []string{PermUsersView}, p.Permissions(), "global roles grant everywhere")
}

func TestBuildPrincipalDedupesPermissions(t *testing.T) {
	s := newMemStore()
	user := seedUser(s, "u1", "alice", "t1")
	r1 := seedRole(s, "r1", "Auditor", tid("t1"))
	r2 := seedRole(s, "r2", "Operator", tid("t1"))
	for _, r := range []*Role{r1, r2} {
		require.NoError(t, s.Roles().AddClaim(context.Background(), RoleClaim{RoleID: r.ID, Type: ClaimPermission, Value: PermAuditView}))
		require.NoError(t, s.Memberships().Add(context.Background(), Membership{UserID: "u1", RoleID: r.ID, TenantID: "t1"}))
	}

	m := newTestManager(t, s)
	p, err := m.BuildPrincipal(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, []string{PermAuditView}, p.Permissions())
}

func TestBuildPrincipalIgnoresNonPermissionClaims(t *testing.T) {
	s := newMemStore()
	user := seedUser(s, "u1", "alice", "t1")
	r1 := seedRole(s, "r1", "Auditor", tid("t1"))
	require.NoError(t, s.Roles().AddClaim(context.Background(), RoleClaim{RoleID: r1.ID, Type: "feature_flag", Value: "beta"}))
	require.NoError(t, s.Memberships().Add(context.Background(), Membership{UserID: "u1", RoleID: r1.ID, TenantID: "t1"}))

	m := newTestManager(t, s)
	p, err := m.BuildPrincipal(context.Background(), user)
	require.NoError(t, err)
	assert.Empty(t, p.Permissions())
}
