package pg

import (
	"context"
	"database/sql"
	"time"

	"tenantcore.org/internal/audit"
)

// AttemptStore persists the append-only login audit trail.
type AttemptStore struct {
	db *sql.DB
}

var _ audit.AttemptStore = (*AttemptStore)(nil)

func (s *AttemptStore) Append(ctx context.Context, attempt *audit.LoginAttempt) error {
	_, err := s.db.ExecContext(ctx, `
		insert into login_attempts (id, user_id, user_name, provider, ip, browser, region, success, login_at)
		values ($1, $2, $3, $4, nullif($5, ''), nullif($6, ''), nullif($7, ''), $8, $9)
	`, attempt.ID, attempt.UserID, attempt.UserName, attempt.Provider,
		attempt.IP, audit.Truncate(attempt.Browser, audit.MaxBrowserLen), attempt.Region,
		attempt.Success, attempt.LoginAt)
	return err
}

func (s *AttemptStore) ListSince(ctx context.Context, userID string, since time.Time) ([]audit.LoginAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, user_name, provider,
		       coalesce(ip, ''), coalesce(browser, ''), coalesce(region, ''),
		       success, login_at
		from login_attempts
		where user_id = $1 and login_at >= $2
		order by login_at
	`, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []audit.LoginAttempt
	for rows.Next() {
		var a audit.LoginAttempt
		if err := rows.Scan(&a.ID, &a.UserID, &a.UserName, &a.Provider, &a.IP, &a.Browser, &a.Region, &a.Success, &a.LoginAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *AttemptStore) DistinctIPs(ctx context.Context, userID string, from, to time.Time) ([]string, error) {
	return s.distinct(ctx, "ip", userID, from, to)
}

func (s *AttemptStore) DistinctBrowsers(ctx context.Context, userID string, from, to time.Time) ([]string, error) {
	return s.distinct(ctx, "browser", userID, from, to)
}

// distinct column names are fixed by the callers above; never interpolate
// caller input here.
func (s *AttemptStore) distinct(ctx context.Context, column, userID string, from, to time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select distinct `+column+`
		from login_attempts
		where user_id = $1 and login_at >= $2 and login_at < $3
		  and `+column+` is not null and `+column+` <> ''
		order by `+column+`
	`, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
