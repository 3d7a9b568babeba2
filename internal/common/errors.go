// Package common defines shared constants and sentinel errors used across
// server layers of gophauth. Callers should use errors.Is to match these
// values; the HTTP boundary is the only place that maps them to status codes.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrConflict   = errors.New("already exists")

	// Unique-key clashes on users. Both match ErrConflict.
	ErrEmailTaken    = fmt.Errorf("%w: email already taken", ErrConflict)
	ErrUsernameTaken = fmt.Errorf("%w: username already taken", ErrConflict)

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")

	// Input errors, raised at the validation boundary.
	ErrorValidation  = errors.New("validation error")
	ErrEmptyPassword = errors.New("password must not be empty")

	// Crypto-layer faults. Surfaced to callers as unauthorized.
	ErrHash = errors.New("malformed password hash")

	// Token lifecycle errors.
	ErrInvalidToken      = errors.New("invalid token")
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenTypeMismatch = errors.New("token type mismatch")
)
