package auth

import "errors"

var (
	// ErrUnauthenticated means no valid session is attached to the request.
	ErrUnauthenticated = errors.New("user not authenticated")
	// ErrInvalidCredentials covers unknown email and wrong password alike.
	ErrInvalidCredentials = errors.New("invalid login credentials")
	// ErrEmailNotConfirmed is returned by sign-in before the callback exchange.
	ErrEmailNotConfirmed = errors.New("email not confirmed")
	// ErrEmailTaken is returned by sign-up for an existing account.
	ErrEmailTaken = errors.New("user already registered")
	// ErrInvalidCode covers unknown, used and expired callback codes.
	ErrInvalidCode = errors.New("invalid or expired auth code")
	// ErrNotFound is returned by stores for a missing user/session/code.
	ErrNotFound = errors.New("not found")
)
