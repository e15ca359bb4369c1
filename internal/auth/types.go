package auth

import (
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of authorities an identity can hold.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// ParseRole accepts the role name in any case.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
}

func (r Role) Valid() bool { return r == RoleUser || r == RoleAdmin }

// User is a registered account. Email is the unique login key and the
// subject of access tokens.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// Identity is what the request gate attaches to an authenticated request.
type Identity struct {
	UserID string
	Email  string
	Role   Role
}

// HasRole reports whether the identity holds role.
func (id Identity) HasRole(role Role) bool {
	return id.Role == role
}

// IdentityOf derives the request identity from a stored user.
func IdentityOf(u *User) Identity {
	return Identity{UserID: u.ID, Email: u.Email, Role: u.Role}
}

// RefreshToken is a persisted refresh token. Only the SHA-256 digest of the
// value handed to the client is stored.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	Revoked   bool
}

// Expired reports whether the token is past its expiry at now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
