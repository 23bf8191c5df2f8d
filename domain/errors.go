package domain

import "errors"

var (
	// ErrNotFound is returned when a lookup by id matches no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness violation, e.g. a reused department email.
	ErrConflict = errors.New("conflict")
)

// ErrInvalidCredentials is returned when a login or password does not match.
var ErrInvalidCredentials = errors.New("invalid credentials")
