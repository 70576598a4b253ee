package identity

import (
	"context"
	"errors"
)

// Claim types used in the assembled principal.
const (
	ClaimSubject     = "sub"
	ClaimUserName    = "name"
	ClaimEmail       = "email"
	ClaimTenantID    = "tenant_id"
	ClaimTenantName  = "tenant_name"
	ClaimSuperiorID  = "superior_id"
	ClaimDisplayName = "display_name"
	ClaimAvatarURL   = "avatar_url"
	ClaimRole        = "role"
)

// Claim is one typed fact attached to an authenticated identity.
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// PrincipalDraft is the transient claim set built for a session. It is never
// persisted; it is rebuilt on every authentication or session refresh.
type PrincipalDraft struct {
	UserID string  `json:"user_id"`
	Claims []Claim `json:"claims"`
}

func (p *PrincipalDraft) values(claimType string) []string {
	var out []string
	for _, c := range p.Claims {
		if c.Type == claimType {
			out = append(out, c.Value)
		}
	}
	return out
}

// Roles returns the role-name claims.
func (p *PrincipalDraft) Roles() []string { return p.values(ClaimRole) }

// Permissions returns the permission claims.
func (p *PrincipalDraft) Permissions() []string { return p.values(ClaimPermission) }

// HasPermission reports whether the draft carries the given permission claim.
func (p *PrincipalDraft) HasPermission(perm string) bool {
	for _, c := range p.Claims {
		if c.Type == ClaimPermission && c.Value == perm {
			return true
		}
	}
	return false
}

// BuildPrincipal assembles the full claim set for a user's session in a
// single pass: base identity claims, tenant claims, hierarchy and profile
// claims, one claim per held role, and the permission claims of those roles
// that belong to the user's own tenant. A role held in a different tenant
// contributes its role-name claim but none of its permissions; this is the
// enforcement point against cross-tenant privilege leakage when role names
// collide across tenants. Global roles are tenant-agnostic and contribute
// their permissions everywhere.
func (m *Manager) BuildPrincipal(ctx context.Context, user *User) (*PrincipalDraft, error) {
	if user == nil {
		return nil, errors.New("user is required")
	}
	draft := &PrincipalDraft{UserID: user.ID}
	add := func(claimType, value string) {
		if value == "" {
			return
		}
		draft.Claims = append(draft.Claims, Claim{Type: claimType, Value: value})
	}

	add(ClaimSubject, user.ID)
	add(ClaimUserName, user.UserName)
	add(ClaimEmail, user.Email)

	if user.TenantID != "" {
		add(ClaimTenantID, user.TenantID)
		tenant, err := m.store.Tenants().Find(ctx, user.TenantID)
		if err == nil {
			add(ClaimTenantName, tenant.Name)
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	add(ClaimSuperiorID, user.SuperiorID)
	add(ClaimDisplayName, user.DisplayName)
	add(ClaimAvatarURL, user.AvatarURL)

	memberships, err := m.store.Memberships().ListByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	grantedPerms := make(map[string]struct{})
	for _, mb := range memberships {
		role, err := m.store.Roles().Find(ctx, mb.RoleID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		add(ClaimRole, role.Name)
		if !role.IsGlobal() && !role.BelongsToTenant(user.TenantID) {
			continue
		}
		claims, err := m.store.Roles().Claims(ctx, role.ID)
		if err != nil {
			return nil, err
		}
		for _, rc := range claims {
			if rc.Type != ClaimPermission {
				continue
			}
			if _, ok := grantedPerms[rc.Value]; ok {
				continue
			}
			grantedPerms[rc.Value] = struct{}{}
			add(ClaimPermission, rc.Value)
		}
	}
	return draft, nil
}
