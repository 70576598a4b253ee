package identity

import (
	"context"
	"time"
)

// UserStore manages user records.
type UserStore interface {
	Find(ctx context.Context, id string) (*User, error)
	FindByName(ctx context.Context, userName string) (*User, error)
	Update(ctx context.Context, u *User) error
}

// RoleStore manages roles and their claims. Lookups by normalized name are
// always bucketed by tenant id; a nil tenant id addresses the global bucket.
type RoleStore interface {
	Find(ctx context.Context, id string) (*Role, error)
	FindByNormalizedName(ctx context.Context, normalized string, tenantID *string) (*Role, error)
	ListByNormalizedNames(ctx context.Context, normalized []string, tenantID *string) ([]*Role, error)
	ListByTenant(ctx context.Context, tenantID *string) ([]*Role, error)
	Create(ctx context.Context, role *Role) error
	Update(ctx context.Context, role *Role) error
	Delete(ctx context.Context, id string) error

	Claims(ctx context.Context, roleID string) ([]RoleClaim, error)
	AddClaim(ctx context.Context, claim RoleClaim) error
	RemoveClaim(ctx context.Context, claim RoleClaim) error
}

// TenantStore manages tenants. List returns tenants ordered by kind
// descending, then name; allowed-tenant resolution preserves that order.
type TenantStore interface {
	Find(ctx context.Context, id string) (*Tenant, error)
	List(ctx context.Context) ([]Tenant, error)
	Create(ctx context.Context, t *Tenant) error
	ListOwnedBy(ctx context.Context, userID string) ([]Tenant, error)
}

// MembershipStore manages user-role links. Add must fail with ErrConflict
// when the (user id, role id) pair already exists; the storage layer carries
// a unique constraint so concurrent adds cannot race past the existence
// check.
type MembershipStore interface {
	Add(ctx context.Context, m Membership) error
	Remove(ctx context.Context, userID, roleID string) error
	Exists(ctx context.Context, userID, roleID string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]Membership, error)
}

// Store aggregates the persistence surface the identity core depends on.
type Store interface {
	Users() UserStore
	Roles() RoleStore
	Tenants() TenantStore
	Memberships() MembershipStore
}

// Clock is the time source used by services; overridable in tests.
type Clock func() time.Time
