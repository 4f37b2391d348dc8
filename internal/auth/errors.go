package auth

import "errors"

var (
	// ErrInvalidInput marks malformed arguments to an auth operation.
	ErrInvalidInput = errors.New("auth: invalid input")
	// ErrNotFound marks an absent session, user or membership.
	ErrNotFound = errors.New("auth: not found")
	// ErrExpired marks a session whose expiry has passed.
	ErrExpired = errors.New("auth: session expired")
	// ErrUserDisabled marks a session whose owning user was deactivated.
	ErrUserDisabled = errors.New("auth: user disabled")
	// ErrInvalidCredential is returned uniformly for unknown identifiers
	// and password mismatches.
	ErrInvalidCredential = errors.New("auth: invalid credential")
	// ErrInvalidToken indicates a signed token failed verification.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrUnauthorized marks a valid session lacking a required permission.
	ErrUnauthorized = errors.New("auth: unauthorized")
	// ErrConflict marks an operation that would break an invariant,
	// e.g. removing the last project owner.
	ErrConflict = errors.New("auth: resource conflict")
)
