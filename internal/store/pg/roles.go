package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"tenantcore.org/internal/identity"
)

type roleStore struct {
	db *sql.DB
}

var _ identity.RoleStore = (*roleStore)(nil)

const roleColumns = `id, tenant_id, name, normalized_name, coalesce(description, ''), created_at, updated_at`

func scanRoleRow(scan func(dest ...any) error) (*identity.Role, error) {
	r := &identity.Role{}
	var tenantID sql.NullString
	err := scan(&r.ID, &tenantID, &r.Name, &r.NormalizedName, &r.Description, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.TenantID = fromNullable(tenantID)
	return r, nil
}

func (s *roleStore) Find(ctx context.Context, id string) (*identity.Role, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+roleColumns+`
		from roles
		where id = $1
	`, id)
	return scanRoleRow(row.Scan)
}

func (s *roleStore) FindByNormalizedName(ctx context.Context, normalized string, tenantID *string) (*identity.Role, error) {
	var row *sql.Row
	if tenantID == nil {
		row = s.db.QueryRowContext(ctx, `
			select `+roleColumns+`
			from roles
			where normalized_name = $1 and tenant_id is null
		`, normalized)
	} else {
		row = s.db.QueryRowContext(ctx, `
			select `+roleColumns+`
			from roles
			where normalized_name = $1 and tenant_id = $2
		`, normalized, *tenantID)
	}
	return scanRoleRow(row.Scan)
}

func (s *roleStore) ListByNormalizedNames(ctx context.Context, normalized []string, tenantID *string) ([]*identity.Role, error) {
	if len(normalized) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(normalized)+1)
	placeholders := make([]string, 0, len(normalized))
	for i, n := range normalized {
		args = append(args, n)
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
	}
	query := `
		select ` + roleColumns + `
		from roles
		where normalized_name in (` + strings.Join(placeholders, ", ") + `)`
	if tenantID == nil {
		query += ` and tenant_id is null`
	} else {
		query += fmt.Sprintf(` and tenant_id = $%d`, len(normalized)+1)
		args = append(args, *tenantID)
	}
	query += ` order by normalized_name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

func (s *roleStore) ListByTenant(ctx context.Context, tenantID *string) ([]*identity.Role, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if tenantID == nil {
		rows, err = s.db.QueryContext(ctx, `
			select `+roleColumns+`
			from roles
			where tenant_id is null
			order by normalized_name
		`)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			select `+roleColumns+`
			from roles
			where tenant_id = $1
			order by normalized_name
		`, *tenantID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

func collectRoles(rows *sql.Rows) ([]*identity.Role, error) {
	var result []*identity.Role
	for rows.Next() {
		role, err := scanRoleRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *roleStore) Create(ctx context.Context, role *identity.Role) error {
	_, err := s.db.ExecContext(ctx, `
		insert into roles (id, tenant_id, name, normalized_name, description, created_at, updated_at)
		values ($1, $2, $3, $4, nullif($5, ''), $6, $7)
	`, role.ID, nullable(role.TenantID), role.Name, role.NormalizedName, role.Description, role.CreatedAt, role.UpdatedAt)
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

func (s *roleStore) Update(ctx context.Context, role *identity.Role) error {
	res, err := s.db.ExecContext(ctx, `
		update roles
		set name = $2, normalized_name = $3, description = nullif($4, ''), updated_at = $5
		where id = $1
	`, role.ID, role.Name, role.NormalizedName, role.Description, role.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return identity.ErrConflict
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return identity.ErrNotFound
	}
	return nil
}

func (s *roleStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `delete from roles where id = $1`, id)
	return err
}

func (s *roleStore) Claims(ctx context.Context, roleID string) ([]identity.RoleClaim, error) {
	rows, err := s.db.QueryContext(ctx, `
		select role_id, claim_type, claim_value
		from role_claims
		where role_id = $1
		order by claim_type, claim_value
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []identity.RoleClaim
	for rows.Next() {
		var c identity.RoleClaim
		if err := rows.Scan(&c.RoleID, &c.Type, &c.Value); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *roleStore) AddClaim(ctx context.Context, claim identity.RoleClaim) error {
	_, err := s.db.ExecContext(ctx, `
		insert into role_claims (role_id, claim_type, claim_value)
		values ($1, $2, $3)
	`, claim.RoleID, claim.Type, claim.Value)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return identity.ErrConflict
			case pgErrForeignKeyViolation:
				return identity.ErrNotFound
			}
		}
		return err
	}
	return nil
}

func (s *roleStore) RemoveClaim(ctx context.Context, claim identity.RoleClaim) error {
	_, err := s.db.ExecContext(ctx, `
		delete from role_claims
		where role_id = $1 and claim_type = $2 and claim_value = $3
	`, claim.RoleID, claim.Type, claim.Value)
	return err
}
