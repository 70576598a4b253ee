package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tenantcore.org/internal/ids"
)

// RoleDirectory owns role lifecycle and the per-tenant uniqueness invariant:
// a normalized role name is unique within its tenant, while the same name may
// exist independently in other tenants. Global roles (nil tenant id) form
// their own uniqueness bucket and never collide with tenant-scoped roles.
type RoleDirectory struct {
	roles RoleStore
	now   Clock
}

// NewRoleDirectory constructs a RoleDirectory.
func NewRoleDirectory(roles RoleStore, opts ...func(*RoleDirectory)) (*RoleDirectory, error) {
	if roles == nil {
		return nil, errors.New("role store is required")
	}
	d := &RoleDirectory{roles: roles, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// WithRoleClock overrides the directory time source (useful for tests).
func WithRoleClock(fn Clock) func(*RoleDirectory) {
	return func(d *RoleDirectory) {
		if fn != nil {
			d.now = fn
		}
	}
}

// ValidateName checks the uniqueness invariant for role. It must run on every
// create and rename, not only create: a rename can collide just as well.
func (d *RoleDirectory) ValidateName(ctx context.Context, role *Role) error {
	if role == nil || strings.TrimSpace(role.Name) == "" {
		return fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	normalized := NormalizeRoleName(role.Name)
	existing, err := d.roles.FindByNormalizedName(ctx, normalized, role.TenantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if existing.ID != role.ID {
		return fmt.Errorf("%w: %s", ErrDuplicateRoleName, role.Name)
	}
	return nil
}

// Create validates uniqueness and persists a new role.
func (d *RoleDirectory) Create(ctx context.Context, tenantID *string, name, description string) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	now := d.now().UTC()
	role := &Role{
		ID:             ids.New(),
		TenantID:       tenantID,
		Name:           name,
		NormalizedName: NormalizeRoleName(name),
		Description:    strings.TrimSpace(description),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := d.ValidateName(ctx, role); err != nil {
		return nil, err
	}
	if err := d.roles.Create(ctx, role); err != nil {
		if errors.Is(err, ErrConflict) {
			// Lost a race against a concurrent create of the same name.
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRoleName, name)
		}
		return nil, err
	}
	return role, nil
}

// Rename changes a role's name, re-running the uniqueness check against the
// role's own tenant bucket.
func (d *RoleDirectory) Rename(ctx context.Context, roleID, newName string) (*Role, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	role, err := d.roles.Find(ctx, roleID)
	if err != nil {
		return nil, err
	}
	role.Name = newName
	role.NormalizedName = NormalizeRoleName(newName)
	if err := d.ValidateName(ctx, role); err != nil {
		return nil, err
	}
	role.UpdatedAt = d.now().UTC()
	if err := d.roles.Update(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// Grant attaches permission claims to a role. Unknown permissions are rejected.
func (d *RoleDirectory) Grant(ctx context.Context, roleID string, permissions []string) error {
	role, err := d.roles.Find(ctx, roleID)
	if err != nil {
		return err
	}
	for _, p := range permissions {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !KnownPermission(p) {
			return fmt.Errorf("%w: unknown permission %s", ErrInvalidInput, p)
		}
		claim := RoleClaim{RoleID: role.ID, Type: ClaimPermission, Value: p}
		if err := d.roles.AddClaim(ctx, claim); err != nil && !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return nil
}

// Revoke removes a permission claim from a role. Removing an absent claim is
// a no-op.
func (d *RoleDirectory) Revoke(ctx context.Context, roleID, permission string) error {
	permission = strings.TrimSpace(permission)
	if permission == "" {
		return fmt.Errorf("%w: permission is required", ErrInvalidInput)
	}
	return d.roles.RemoveClaim(ctx, RoleClaim{RoleID: roleID, Type: ClaimPermission, Value: permission})
}
