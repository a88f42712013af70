package pg

import (
	"context"
	"database/sql"
	"errors"

	"peopleflow.org/internal/rbac"
)

func (s *Store) CreateSession(ctx context.Context, sess rbac.Session) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := s.db.ExecContext(ctx, `
		insert into sessions (token, user_id, active_tenant_id, expires_at)
		values ($1, $2, $3, $4)
	`, sess.Token, sess.UserID, nullableID(sess.ActiveTenantID), sess.ExpiresAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return rbac.ErrConflict
			case pgErrForeignKeyViolation:
				return rbac.ErrNotFound
			}
		}
		return err
	}
	return nil
}

// FindSession returns the session only while it is unexpired; the expiry
// check happens in SQL so clock handling stays in one place.
func (s *Store) FindSession(ctx context.Context, token string) (rbac.Session, error) {
	if s.db == nil {
		return rbac.Session{}, errors.New("database connection unavailable")
	}
	var (
		sess   rbac.Session
		tenant sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select token, user_id, active_tenant_id, created_at, expires_at
		from sessions
		where token = $1 and expires_at > now()
	`, token).Scan(&sess.Token, &sess.UserID, &tenant, &sess.CreatedAt, &sess.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.Session{}, rbac.ErrNotFound
	}
	if err != nil {
		return rbac.Session{}, err
	}
	sess.ActiveTenantID = idFromNull(tenant)
	return sess, nil
}

func (s *Store) SetActiveTenant(ctx context.Context, token string, tenantID *string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		update sessions
		set active_tenant_id = $2
		where token = $1 and expires_at > now()
	`, token, nullableID(tenantID))
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return rbac.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `delete from sessions where token = $1`, token)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return rbac.ErrNotFound
	}
	return nil
}

// PurgeExpiredSessions removes sessions past expiry; run periodically from
// the API process.
func (s *Store) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	if s.db == nil {
		return 0, errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `delete from sessions where expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
