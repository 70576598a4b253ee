package pg

import (
	"context"
	"database/sql"

	"tenantcore.org/internal/identity"
)

type membershipStore struct {
	db *sql.DB
}

var _ identity.MembershipStore = (*membershipStore)(nil)

// Add inserts the membership. The primary key on (user_id, role_id) is the
// guard against two concurrent assignments racing past the existence check.
func (s *membershipStore) Add(ctx context.Context, m identity.Membership) error {
	_, err := s.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id, tenant_id, created_at)
		values ($1, $2, nullif($3, ''), $4)
	`, m.UserID, m.RoleID, m.TenantID, m.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return identity.ErrConflict
			case pgErrForeignKeyViolation:
				return identity.ErrInvalidInput
			}
		}
		return err
	}
	return nil
}

// Remove deletes the membership; deleting an absent row is a no-op.
func (s *membershipStore) Remove(ctx context.Context, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx, `
		delete from user_roles
		where user_id = $1 and role_id = $2
	`, userID, roleID)
	return err
}

func (s *membershipStore) Exists(ctx context.Context, userID, roleID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists (
			select 1 from user_roles where user_id = $1 and role_id = $2
		)
	`, userID, roleID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *membershipStore) ListByUser(ctx context.Context, userID string) ([]identity.Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		select user_id, role_id, coalesce(tenant_id, ''), created_at
		from user_roles
		where user_id = $1
		order by created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []identity.Membership
	for rows.Next() {
		var m identity.Membership
		if err := rows.Scan(&m.UserID, &m.RoleID, &m.TenantID, &m.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
