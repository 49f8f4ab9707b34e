package auth

import "context"

// Store persists users, sessions and one-time codes.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	UserByEmail(ctx context.Context, email string) (*User, error)
	UserByID(ctx context.Context, id string) (*User, error)
	ConfirmUser(ctx context.Context, id string) error

	CreateSession(ctx context.Context, s *Session) error
	SessionByToken(ctx context.Context, token string) (*Session, error)
	DeleteSession(ctx context.Context, token string) error

	CreateCode(ctx context.Context, c *Code) error
	// ConsumeCode deletes the code and returns it; a second call fails with ErrNotFound.
	ConsumeCode(ctx context.Context, code string) (*Code, error)
}

// Notifier delivers confirmation codes (email in production).
type Notifier interface {
	SendConfirmation(ctx context.Context, email, link string) error
}
