package auth

import "errors"

var (
	// ErrInvalidCredentials is returned for both unknown usernames and wrong
	// passwords so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrUnauthorized is returned when a session token is unknown, inactive
	// or expired.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrWeakPassword is returned when a password is shorter than the
	// configured minimum.
	ErrWeakPassword = errors.New("password does not meet minimum length")
	// ErrMissingField is returned when a required registration field is empty.
	ErrMissingField = errors.New("missing required field")
)
