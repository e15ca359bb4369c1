package auth

import "errors"

var (
	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
	ErrInvalidInput  = errors.New("auth: invalid input")
	ErrUnauthorized  = errors.New("auth: unauthorized")
	ErrForbidden     = errors.New("auth: forbidden")

	// ErrInvalidToken covers every access-token failure: bad signature, wrong
	// algorithm, malformed input, expired.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrInvalidRefreshToken covers unknown, revoked and expired refresh tokens alike.
	ErrInvalidRefreshToken = errors.New("auth: invalid or expired refresh token")
)
