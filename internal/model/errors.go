package model

import "errors"

var (
	// User related errors
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidRole        = errors.New("invalid role")

	// Auth boundary errors. Every token, signature, expiry, scope, or
	// subject-lookup failure collapses to ErrUnauthenticated so callers
	// cannot probe which check failed.
	ErrUnauthenticated = errors.New("could not validate credentials")
	ErrForbidden       = errors.New("access denied")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)
