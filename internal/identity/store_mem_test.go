package identity

import (
	"context"
	"sort"
	"strings"
)

// memStore is an in-memory Store used across the package tests. It honors the
// same contracts the SQL layer does: ErrNotFound for misses and ErrConflict
// for unique-constraint violations.
type memStore struct {
	users       map[string]*User
	roles       map[string]*Role
	claims      map[string][]RoleClaim
	memberships []Membership
	tenants     map[string]*Tenant
}

func newMemStore() *memStore {
	return &memStore{
		users:   make(map[string]*User),
		roles:   make(map[string]*Role),
		claims:  make(map[string][]RoleClaim),
		tenants: make(map[string]*Tenant),
	}
}

func (s *memStore) Users() UserStore             { return (*memUsers)(s) }
func (s *memStore) Roles() RoleStore             { return (*memRoles)(s) }
func (s *memStore) Tenants() TenantStore         { return (*memTenants)(s) }
func (s *memStore) Memberships() MembershipStore { return (*memMemberships)(s) }

func (s *memStore) addUser(u *User) *User       { s.users[u.ID] = u; return u }
func (s *memStore) addTenant(t *Tenant) *Tenant { s.tenants[t.ID] = t; return t }
func (s *memStore) addRole(r *Role) *Role       { s.roles[r.ID] = r; return r }

type memUsers memStore

func (s *memUsers) Find(ctx context.Context, id string) (*User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, ErrNotFound
}

func (s *memUsers) FindByName(ctx context.Context, userName string) (*User, error) {
	for _, u := range s.users {
		if strings.EqualFold(u.UserName, userName) {
			return u, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memUsers) Update(ctx context.Context, u *User) error {
	if _, ok := s.users[u.ID]; !ok {
		return ErrNotFound
	}
	s.users[u.ID] = u
	return nil
}

type memRoles memStore

func sameBucket(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (s *memRoles) Find(ctx context.Context, id string) (*Role, error) {
	if r, ok := s.roles[id]; ok {
		// Return a copy so callers mutating the result do not alter stored
		// state before Update, mirroring how the SQL layer returns fresh rows.
		cp := *r
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *memRoles) FindByNormalizedName(ctx context.Context, normalized string, tenantID *string) (*Role, error) {
	for _, r := range s.roles {
		if r.NormalizedName == normalized && sameBucket(r.TenantID, tenantID) {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memRoles) ListByNormalizedNames(ctx context.Context, normalized []string, tenantID *string) ([]*Role, error) {
	var out []*Role
	for _, n := range normalized {
		if r, err := s.FindByNormalizedName(ctx, n, tenantID); err == nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memRoles) ListByTenant(ctx context.Context, tenantID *string) ([]*Role, error) {
	var out []*Role
	for _, r := range s.roles {
		if sameBucket(r.TenantID, tenantID) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NormalizedName < out[j].NormalizedName })
	return out, nil
}

func (s *memRoles) Create(ctx context.Context, role *Role) error {
	if _, err := s.FindByNormalizedName(ctx, role.NormalizedName, role.TenantID); err == nil {
		return ErrConflict
	}
	s.roles[role.ID] = role
	return nil
}

func (s *memRoles) Update(ctx context.Context, role *Role) error {
	if _, ok := s.roles[role.ID]; !ok {
		return ErrNotFound
	}
	s.roles[role.ID] = role
	return nil
}

func (s *memRoles) Delete(ctx context.Context, id string) error {
	delete(s.roles, id)
	return nil
}

func (s *memRoles) Claims(ctx context.Context, roleID string) ([]RoleClaim, error) {
	return s.claims[roleID], nil
}

func (s *memRoles) AddClaim(ctx context.Context, claim RoleClaim) error {
	for _, c := range s.claims[claim.RoleID] {
		if c == claim {
			return ErrConflict
		}
	}
	s.claims[claim.RoleID] = append(s.claims[claim.RoleID], claim)
	return nil
}

func (s *memRoles) RemoveClaim(ctx context.Context, claim RoleClaim) error {
	list := s.claims[claim.RoleID]
	for i, c := range list {
		if c == claim {
			s.claims[claim.RoleID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

type memTenants memStore

func (s *memTenants) Find(ctx context.Context, id string) (*Tenant, error) {
	if t, ok := s.tenants[id]; ok {
		return t, nil
	}
	return nil, ErrNotFound
}

func (s *memTenants) List(ctx context.Context) ([]Tenant, error) {
	out := make([]Tenant, 0, len(s.tenants))
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

func (s *memTenants) Create(ctx context.Context, t *Tenant) error {
	s.tenants[t.ID] = t
	return nil
}

func (s *memTenants) ListOwnedBy(ctx context.Context, userID string) ([]Tenant, error) {
	var out []Tenant
	for _, t := range s.tenants {
		if t.CreatedBy == userID || t.UpdatedBy == userID {
			out = append(out, *t)
		}
	}
	return out, nil
}

type memMemberships memStore

func (s *memMemberships) Add(ctx context.Context, m Membership) error {
	for _, mb := range s.memberships {
		if mb.UserID == m.UserID && mb.RoleID == m.RoleID {
			return ErrConflict
		}
	}
	s.memberships = append(s.memberships, m)
	return nil
}

func (s *memMemberships) Remove(ctx context.Context, userID, roleID string) error {
	for i, mb := range s.memberships {
		if mb.UserID == userID && mb.RoleID == roleID {
			s.memberships = append(s.memberships[:i], s.memberships[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *memMemberships) Exists(ctx context.Context, userID, roleID string) (bool, error) {
	for _, mb := range s.memberships {
		if mb.UserID == userID && mb.RoleID == roleID {
			return true, nil
		}
	}
	return false, nil
}

func (s *memMemberships) ListByUser(ctx context.Context, userID string) ([]Membership, error) {
	var out []Membership
	for _, mb := range s.memberships {
		if mb.UserID == userID {
			out = append(out, mb)
		}
	}
	return out, nil
}
