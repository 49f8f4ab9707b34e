package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	domain "github.com/bryanwahyu/codesight/internal/domain/auth"
)

type AuthStore struct {
	db *sql.DB
}

func NewAuthStore(db *sql.DB) *AuthStore {
	return &AuthStore{db: db}
}

func (s *AuthStore) CreateUser(ctx context.Context, u *domain.User) error {
	var confirmed sql.NullTime
	if u.Confirmed() {
		confirmed = sql.NullTime{Time: u.ConfirmedAt.UTC(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, confirmed_at, created_at) VALUES (?,?,?,?,?);`,
		u.ID, u.Email, u.PasswordHash, confirmed, u.CreatedAt.UTC())
	if isDuplicate(err) {
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
	var confirmed sql.NullTime
	err := s.db.QueryRowContext(ctx, q, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &confirmed, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if confirmed.Valid {
		u.ConfirmedAt = confirmed.Time
	}
	return &u, nil
}

func (s *AuthStore) ConfirmUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET confirmed_at = COALESCE(confirmed_at, ?) WHERE id=?;`, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (s *AuthStore) CreateSession(ctx context.Context, sess *domain.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, created_at, expires_at) VALUES (?,?,?,?);`,
		sess.Token, sess.UserID, sess.CreatedAt.UTC(), sess.ExpiresAt.UTC())
	return err
}

func (s *AuthStore) SessionByToken(ctx context.Context, token string) (*domain.Session, error) {
	var sess domain.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT token, user_id, created_at, expires_at FROM sessions WHERE token=? LIMIT 1;`, token).
		Scan(&sess.Token, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
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
		c.Code, c.UserID, c.ExpiresAt.UTC())
	return err
}

// ConsumeCode locks the row, deletes it and returns it.
func (s *AuthStore) ConsumeCode(ctx context.Context, code string) (*domain.Code, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var c domain.Code
	err = tx.QueryRowContext(ctx,
		`SELECT code, user_id, expires_at FROM auth_codes WHERE code=? FOR UPDATE;`, code).
		Scan(&c.Code, &c.UserID, &c.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM auth_codes WHERE code=?;`, code); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
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
