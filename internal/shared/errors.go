package shared

import "errors"

var (
	// ErrInvalidCredentials covers both unknown email and wrong password so
	// login responses do not leak which one failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when no CSRF token accompanies a mutation.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when the supplied token does not match the session.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
