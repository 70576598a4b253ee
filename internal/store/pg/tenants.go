package pg

import (
	"context"
	"database/sql"
	"errors"

	"tenantcore.org/internal/identity"
)

type tenantStore struct {
	db *sql.DB
}

var _ identity.TenantStore = (*tenantStore)(nil)

const tenantColumns = `
	id, name, coalesce(description, ''), kind,
	coalesce(created_by, ''), created_at, coalesce(updated_by, ''), updated_at`

func (s *tenantStore) Find(ctx context.Context, id string) (*identity.Tenant, error) {
	t := &identity.Tenant{}
	err := s.db.QueryRowContext(ctx, `
		select`+tenantColumns+`
		from tenants
		where id = $1
	`, id).Scan(&t.ID, &t.Name, &t.Description, &t.Kind, &t.CreatedBy, &t.CreatedAt, &t.UpdatedBy, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *tenantStore) List(ctx context.Context) ([]identity.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `
		select`+tenantColumns+`
		from tenants
		order by kind desc, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTenants(rows)
}

func (s *tenantStore) ListOwnedBy(ctx context.Context, userID string) ([]identity.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `
		select`+tenantColumns+`
		from tenants
		where created_by = $1 or updated_by = $1
		order by kind desc, name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTenants(rows)
}

func collectTenants(rows *sql.Rows) ([]identity.Tenant, error) {
	var result []identity.Tenant
	for rows.Next() {
		var t identity.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.Kind, &t.CreatedBy, &t.CreatedAt, &t.UpdatedBy, &t.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *tenantStore) Create(ctx context.Context, t *identity.Tenant) error {
	_, err := s.db.ExecContext(ctx, `
		insert into tenants (id, name, description, kind, created_by, created_at, updated_by, updated_at)
		values ($1, $2, nullif($3, ''), $4, nullif($5, ''), $6, nullif($7, ''), $8)
	`, t.ID, t.Name, t.Description, t.Kind, t.CreatedBy, t.CreatedAt, t.UpdatedBy, t.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return identity.ErrConflict
		}
		return err
	}
	return nil
}
