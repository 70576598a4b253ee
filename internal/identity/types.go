package identity

import (
	"strings"
	"time"
)

// TenantKind discriminates tenant categories. Internal tenants belong to the
// operating organization itself; their members see every tenant.
type TenantKind byte

const (
	TenantKindCustomer TenantKind = iota
	TenantKindPartner
	TenantKindInternal
)

func (k TenantKind) String() string {
	switch k {
	case TenantKindCustomer:
		return "customer"
	case TenantKindPartner:
		return "partner"
	case TenantKindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Tenant is an isolated organizational scope. Roles, users and memberships
// are partitioned by tenant id.
type Tenant struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Kind        TenantKind `json:"kind"`
	CreatedBy   string     `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedBy   string     `json:"updated_by,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// User is an application user. SuperiorID is a weak back-reference into the
// user hierarchy, never an ownership edge.
type User struct {
	ID           string    `json:"id"`
	UserName     string    `json:"user_name"`
	DisplayName  string    `json:"display_name,omitempty"`
	Email        string    `json:"email,omitempty"`
	TenantID     string    `json:"tenant_id,omitempty"`
	SuperiorID   string    `json:"superior_id,omitempty"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	PasswordHash string    `json:"-"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Role is a named permission group. A nil TenantID marks a global role; see
// RoleDirectory for the uniqueness rules per bucket.
type Role struct {
	ID             string    `json:"id"`
	TenantID       *string   `json:"tenant_id,omitempty"`
	Name           string    `json:"name"`
	NormalizedName string    `json:"normalized_name"`
	Description    string    `json:"description,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// BelongsToTenant reports whether the role is scoped to the given tenant.
func (r *Role) BelongsToTenant(tenantID string) bool {
	return r.TenantID != nil && *r.TenantID == tenantID
}

// IsGlobal reports whether the role has no owning tenant.
func (r *Role) IsGlobal() bool { return r.TenantID == nil }

// RoleClaim is one claim attached to a role; permission grants use
// ClaimPermission as the claim type.
type RoleClaim struct {
	RoleID string `json:"role_id"`
	Type   string `json:"type"`
	Value  string `json:"value"`
}

// Membership links a user to a role. The tenant id is part of the key so a
// membership is always tenant-scoped even though the user has one primary
// tenant.
type Membership struct {
	UserID    string    `json:"user_id"`
	RoleID    string    `json:"role_id"`
	TenantID  string    `json:"tenant_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NormalizeRoleName produces the canonical comparison form of a role name.
func NormalizeRoleName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
