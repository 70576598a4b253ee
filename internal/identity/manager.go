package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tenantcore.org/internal/audit"
	"tenantcore.org/internal/ids"
	"tenantcore.org/internal/obs"
)

// Manager resolves role membership and tenant access. Every membership
// operation is scoped to the target user's tenant: a role name that exists
// only in another tenant is invisible here, even when the literal string
// matches.
type Manager struct {
	store    Store
	attempts audit.AttemptWriter
	now      Clock
}

// ManagerOption configures Manager behavior.
type ManagerOption func(*Manager)

// WithAttemptWriter enables failed-login audit recording.
func WithAttemptWriter(w audit.AttemptWriter) ManagerOption {
	return func(m *Manager) { m.attempts = w }
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn Clock) ManagerOption {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewManager constructs a Manager.
func NewManager(store Store, opts ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, errors.New("identity store is required")
	}
	m := &Manager{store: store, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// tenantBucket maps a user's primary tenant onto the role lookup bucket.
// Users without a tenant resolve against the global bucket.
func tenantBucket(user *User) *string {
	if user == nil || user.TenantID == "" {
		return nil
	}
	tid := user.TenantID
	return &tid
}

// AddToRole assigns the named role to the user within the user's tenant.
func (m *Manager) AddToRole(ctx context.Context, user *User, roleName string) error {
	if user == nil {
		return fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	normalized := NormalizeRoleName(roleName)
	if normalized == "" {
		return fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	role, err := m.store.Roles().FindByNormalizedName(ctx, normalized, tenantBucket(user))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrRoleNotFound, roleName)
		}
		return err
	}
	exists, err := m.store.Memberships().Exists(ctx, user.ID, role.ID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrAlreadyInRole, roleName)
	}
	err = m.store.Memberships().Add(ctx, Membership{
		UserID:    user.ID,
		RoleID:    role.ID,
		TenantID:  user.TenantID,
		CreatedAt: m.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			// The storage unique constraint caught a concurrent assignment.
			return fmt.Errorf("%w: %s", ErrAlreadyInRole, roleName)
		}
		return err
	}
	return nil
}

// AddToRoles assigns all named roles, or none: when any requested name is
// missing from the user's tenant the whole call fails with the missing names.
func (m *Manager) AddToRoles(ctx context.Context, user *User, roleNames []string) error {
	if user == nil {
		return fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	requested := make([]string, 0, len(roleNames))
	seen := make(map[string]string, len(roleNames))
	for _, name := range roleNames {
		normalized := NormalizeRoleName(name)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = strings.TrimSpace(name)
		requested = append(requested, normalized)
	}
	if len(requested) == 0 {
		return fmt.Errorf("%w: at least one role name is required", ErrInvalidInput)
	}
	roles, err := m.store.Roles().ListByNormalizedNames(ctx, requested, tenantBucket(user))
	if err != nil {
		return err
	}
	if len(roles) < len(requested) {
		found := make(map[string]struct{}, len(roles))
		for _, r := range roles {
			found[r.NormalizedName] = struct{}{}
		}
		var missing []string
		for _, normalized := range requested {
			if _, ok := found[normalized]; !ok {
				missing = append(missing, seen[normalized])
			}
		}
		return &MissingRolesError{Names: missing}
	}
	for _, role := range roles {
		if err := m.AddToRole(ctx, user, role.Name); err != nil {
			return err
		}
	}
	return nil
}

// IsInRole reports whether the user holds the named role within their tenant.
func (m *Manager) IsInRole(ctx context.Context, user *User, roleName string) (bool, error) {
	if user == nil {
		return false, fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	normalized := NormalizeRoleName(roleName)
	if normalized == "" {
		return false, nil
	}
	role, err := m.store.Roles().FindByNormalizedName(ctx, normalized, tenantBucket(user))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return m.store.Memberships().Exists(ctx, user.ID, role.ID)
}

// RemoveFromRole removes the membership if present; removing an absent
// membership is a no-op.
func (m *Manager) RemoveFromRole(ctx context.Context, user *User, roleName string) error {
	if user == nil {
		return fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	normalized := NormalizeRoleName(roleName)
	if normalized == "" {
		return nil
	}
	role, err := m.store.Roles().FindByNormalizedName(ctx, normalized, tenantBucket(user))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	return m.store.Memberships().Remove(ctx, user.ID, role.ID)
}

// CheckPassword verifies the user's password. Failures are recorded in the
// login audit trail; audit errors are logged and swallowed so they can never
// fail the check itself. Successful checks are audited by the session layer,
// not here, to avoid duplicate success entries.
func (m *Manager) CheckPassword(ctx context.Context, user *User, password string, meta audit.RequestMeta) bool {
	ok := user != nil && user.Active && VerifyPassword(user.PasswordHash, password) == nil
	if ok || user == nil {
		return ok
	}
	if m.attempts == nil {
		return false
	}
	attempt := &audit.LoginAttempt{
		ID:       ids.New(),
		UserID:   user.ID,
		UserName: user.UserName,
		Provider: "local",
		IP:       meta.IP,
		Browser:  audit.Truncate(meta.UserAgent, audit.MaxBrowserLen),
		Success:  false,
		LoginAt:  m.now().UTC(),
	}
	if err := m.attempts.Append(ctx, attempt); err != nil {
		obs.Error("record failed login attempt", err, map[string]any{"user_id": user.ID})
		return false
	}
	obs.ObserveFailedLogin()
	return false
}

// GetAllowedTenants resolves the tenants the user may operate in:
//   - no role-tenant associations → the user's primary tenant (or none);
//   - root-admin anywhere, or membership of an internal-kind tenant → all;
//   - otherwise the union of role-held tenants and tenants the user owns by
//     audit trail (created or last modified), preserving the tenant list's
//     order (kind descending, then name).
func (m *Manager) GetAllowedTenants(ctx context.Context, user *User) ([]Tenant, error) {
	if user == nil {
		return nil, fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	memberships, err := m.store.Memberships().ListByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if len(memberships) == 0 {
		if user.TenantID == "" {
			return nil, nil
		}
		tenant, err := m.store.Tenants().Find(ctx, user.TenantID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return []Tenant{*tenant}, nil
	}

	all, err := m.store.Tenants().List(ctx)
	if err != nil {
		return nil, err
	}
	kindOf := make(map[string]TenantKind, len(all))
	for _, t := range all {
		kindOf[t.ID] = t.Kind
	}

	rootAdmin := NormalizeRoleName(RoleRootAdmin)
	roleTenants := make(map[string]struct{})
	isRoot := false
	for _, mb := range memberships {
		role, err := m.store.Roles().Find(ctx, mb.RoleID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		if role.NormalizedName == rootAdmin {
			isRoot = true
		}
		switch {
		case mb.TenantID != "":
			roleTenants[mb.TenantID] = struct{}{}
		case role.TenantID != nil:
			roleTenants[*role.TenantID] = struct{}{}
		}
	}

	internal := user.TenantID != "" && kindOf[user.TenantID] == TenantKindInternal
	for tid := range roleTenants {
		if kindOf[tid] == TenantKindInternal {
			internal = true
		}
	}
	if isRoot || internal {
		return all, nil
	}

	allowed := make(map[string]struct{}, len(roleTenants))
	for tid := range roleTenants {
		allowed[tid] = struct{}{}
	}
	owned, err := m.store.Tenants().ListOwnedBy(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	for _, t := range owned {
		allowed[t.ID] = struct{}{}
	}

	var result []Tenant
	for _, t := range all {
		if _, ok := allowed[t.ID]; ok {
			result = append(result, t)
		}
	}
	return result, nil
}
