package pg

import (
	"context"
	"database/sql"
	"errors"

	"tenantcore.org/internal/identity"
)

type userStore struct {
	db *sql.DB
}

var _ identity.UserStore = (*userStore)(nil)

const userColumns = `
	id, user_name, coalesce(display_name, ''), coalesce(email, ''),
	coalesce(tenant_id, ''), coalesce(superior_id, ''), coalesce(avatar_url, ''),
	password_hash, active, created_at, updated_at`

func scanUser(row *sql.Row) (*identity.User, error) {
	u := &identity.User{}
	err := row.Scan(
		&u.ID, &u.UserName, &u.DisplayName, &u.Email,
		&u.TenantID, &u.SuperiorID, &u.AvatarURL,
		&u.PasswordHash, &u.Active, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *userStore) Find(ctx context.Context, id string) (*identity.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		select`+userColumns+`
		from users
		where id = $1
	`, id))
}

func (s *userStore) FindByName(ctx context.Context, userName string) (*identity.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		select`+userColumns+`
		from users
		where user_name = $1
	`, userName))
}

func (s *userStore) Update(ctx context.Context, u *identity.User) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set display_name = nullif($2, ''),
		    email = nullif($3, ''),
		    tenant_id = nullif($4, ''),
		    superior_id = nullif($5, ''),
		    avatar_url = nullif($6, ''),
		    password_hash = $7,
		    active = $8,
		    updated_at = now()
		where id = $1
	`, u.ID, u.DisplayName, u.Email, u.TenantID, u.SuperiorID, u.AvatarURL, u.PasswordHash, u.Active)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return identity.ErrInvalidInput
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
