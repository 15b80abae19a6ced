package auth

import "errors"

var (
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: already exists")
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrMFARequired  = errors.New("auth: mfa code required")
	ErrInvalidCode  = errors.New("auth: invalid mfa code")
)

// ErrInvalidToken indicates a bearer or single-use token failed validation.
var ErrInvalidToken = errors.New("invalid token")
