package sqlite

import (
	"context"
	"database/sql"
	"errors"

	domain "github.com/bryanwahyu/codesight/internal/domain/auth"
)

type AuthStore struct {
	db *sql.DB
}

func NewAuthStore(db *sql.DB) *AuthStore {
	return &AuthStore{db: db}
}

func (s *AuthStore) CreateUser(ctx context.Context, u *domain.User) error {
	const q = `INSERT INTO users (id, email, password_hash, confirmed_at, created_at) VALUES (?,?,?,?,?);`
	var confirmed sql.NullInt64
	if u.Confirmed() {
		confirmed = sql.NullInt64{Int64: toUnix(u.ConfirmedAt), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, q, u.ID, u.Email, u.PasswordHash, confirmed, toUnix(u.CreatedAt))
	if isUniqueViolation(err) {
		return domain.ErrEmailTaken
	}
	return err
}

func (s *AuthStore) UserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.user(ctx, `SELECT id, email, password_hash, confirmed_at, created_at FROM users WHERE email=? LIMIT 1;`, email)
}

func (s *AuthStore) UserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.user(ctx, `SELECT id, email, password_hash, confirmed_at, created_at FROM users WHERE id=? LIMIT 1;`, id)
}

func (s *AuthStore) user(ctx context.Context, q, arg string) (*domain.User, error) {
	var u domain.User
	var confirmed sql.NullInt64
	var created int64
	err := s.db.QueryRowContext(ctx, q, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &confirmed, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = fromUnix(created)
	if confirmed.Valid {
		u.ConfirmedAt = fromUnix(confirmed.Int64)
	}
	return &u, nil
}

func (s *AuthStore) ConfirmUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET confirmed_at = COALESCE(confirmed_at, ?) WHERE id=?;`, toUnix(timeNow()), id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (s *AuthStore) CreateSession(ctx context.Context, sess *domain.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, created_at, expires_at) VALUES (?,?,?,?);`,
		sess.Token, sess.UserID, toUnix(sess.CreatedAt), toUnix(sess.ExpiresAt))
	return err
}

func (s *AuthStore) SessionByToken(ctx context.Context, token string) (*domain.Session, error) {
	var sess domain.Session
	var created, expires int64
	err := s.db.QueryRowContext(ctx,
		`SELECT token, user_id, created_at, expires_at FROM sessions WHERE token=? LIMIT 1;`, token).
		Scan(&sess.Token, &sess.UserID, &created, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sess.CreatedAt, sess.ExpiresAt = fromUnix(created), fromUnix(expires)
	return &sess, nil
}

func (s *AuthStore) DeleteSession(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token=?;`, token)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (s *AuthStore) CreateCode(ctx context.Context, c *domain.Code) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO auth_codes (code, user_id, expires_at) VALUES (?,?,?);`,
		c.Code, c.UserID, toUnix(c.ExpiresAt))
	return err
}

// ConsumeCode reads and deletes in one statement so a code is used once.
func (s *AuthStore) ConsumeCode(ctx context.Context, code string) (*domain.Code, error) {
	var c domain.Code
	var expires int64
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM auth_codes WHERE code=? RETURNING code, user_id, expires_at;`, code).
		Scan(&c.Code, &c.UserID, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.ExpiresAt = fromUnix(expires)
	return &c, nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
