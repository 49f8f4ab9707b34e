package auth

import "time"

// User is an account known to the auth provider
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	ConfirmedAt  time.Time `json:"confirmed_at,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u *User) Confirmed() bool { return !u.ConfirmedAt.IsZero() }

// Session is an opaque bearer token bound to a user
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Session) Expired(now time.Time) bool { return !now.Before(s.ExpiresAt) }

// Code is a one-time code exchanged for a session at the auth callback
type Code struct {
	Code      string
	UserID    string
	ExpiresAt time.Time
}
