package auth

import (
	"context"
	"errors"
	"time"
)

// ErrRefreshTokenExpired is returned by RefreshTokenRepository.Rotate when the
// presented token was live but past its expiry. The row has been revoked.
var ErrRefreshTokenExpired = errors.New("auth: refresh token expired")

// UserStore manages users.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	Count(ctx context.Context) (int64, error)
	UpdateRole(ctx context.Context, id string, role Role) error
}

// RefreshTokenRepository persists refresh tokens by their digest.
//
// Consume and Rotate flip revoked from false to true in a single conditional
// write, so of several concurrent calls for one digest at most one observes
// the row. A row that is absent or already revoked yields ErrNotFound.
type RefreshTokenRepository interface {
	Insert(ctx context.Context, tok *RefreshToken) error
	// Consume revokes the live row with the given digest and returns it as it
	// was before the write. Expiry is left for the caller to judge.
	Consume(ctx context.Context, hash string) (*RefreshToken, error)
	// Rotate consumes hash and, if the consumed row is unexpired at now,
	// inserts next for the same user. Both writes commit together.
	Rotate(ctx context.Context, hash string, now time.Time, next *RefreshToken) (*RefreshToken, error)
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
	PurgeExpiredAndRevoked(ctx context.Context, now time.Time) (int64, error)
}
