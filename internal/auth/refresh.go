package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"notebook.app/internal/ids"
)

const (
	// DefaultRefreshTTL is the lifetime of a refresh token.
	DefaultRefreshTTL = 7 * 24 * time.Hour

	refreshTokenBytes = 64
)

// RefreshTokens issues opaque refresh tokens and implements rotate-on-use on
// top of a RefreshTokenRepository.
type RefreshTokens struct {
	repo    RefreshTokenRepository
	ttl     time.Duration
	now     func() time.Time
	entropy io.Reader
}

// NewRefreshTokens wires the token lifecycle to repo. A nil clock means
// time.Now; a non-positive ttl means DefaultRefreshTTL.
func NewRefreshTokens(repo RefreshTokenRepository, ttl time.Duration, now func() time.Time) *RefreshTokens {
	if ttl <= 0 {
		ttl = DefaultRefreshTTL
	}
	if now == nil {
		now = time.Now
	}
	return &RefreshTokens{repo: repo, ttl: ttl, now: now, entropy: rand.Reader}
}

// TTL returns the refresh token lifetime.
func (r *RefreshTokens) TTL() time.Duration { return r.ttl }

// HashRefreshToken returns the stored digest of a refresh token value.
func HashRefreshToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// Create persists a new live token for userID and returns its raw value.
func (r *RefreshTokens) Create(ctx context.Context, userID string) (string, *RefreshToken, error) {
	value, rec, err := r.newToken(userID)
	if err != nil {
		return "", nil, err
	}
	if err := r.repo.Insert(ctx, rec); err != nil {
		return "", nil, fmt.Errorf("insert refresh token: %w", err)
	}
	return value, rec, nil
}

// ValidateAndRotate consumes a presented token and returns its owner.
//
//	not found      -> ErrInvalidRefreshToken, no write
//	revoked        -> ErrInvalidRefreshToken, no write
//	expired        -> ErrInvalidRefreshToken, row revoked
//	valid          -> owner, row revoked
//
// The caller issues the replacement with Create.
func (r *RefreshTokens) ValidateAndRotate(ctx context.Context, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", ErrInvalidRefreshToken
	}
	rec, err := r.repo.Consume(ctx, HashRefreshToken(value))
	if errors.Is(err, ErrNotFound) {
		return "", ErrInvalidRefreshToken
	}
	if err != nil {
		return "", fmt.Errorf("consume refresh token: %w", err)
	}
	if rec.Expired(r.now()) {
		return "", ErrInvalidRefreshToken
	}
	return rec.UserID, nil
}

// Rotate is ValidateAndRotate followed by Create as one atomic store
// operation. It returns the owner together with the replacement token.
func (r *RefreshTokens) Rotate(ctx context.Context, value string) (string, string, *RefreshToken, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", "", nil, ErrInvalidRefreshToken
	}
	// owner is filled in by the repository from the consumed row
	nextValue, next, err := r.newToken("")
	if err != nil {
		return "", "", nil, err
	}
	old, err := r.repo.Rotate(ctx, HashRefreshToken(value), r.now(), next)
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrRefreshTokenExpired):
		return "", "", nil, ErrInvalidRefreshToken
	case err != nil:
		return "", "", nil, fmt.Errorf("rotate refresh token: %w", err)
	}
	return old.UserID, nextValue, next, nil
}

// RevokeAllForIdentity revokes every live token owned by userID. Revoking
// nothing is not an error.
func (r *RefreshTokens) RevokeAllForIdentity(ctx context.Context, userID string) (int64, error) {
	n, err := r.repo.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return n, nil
}

// PurgeExpiredAndRevoked deletes rows with expires_at < now or revoked set.
func (r *RefreshTokens) PurgeExpiredAndRevoked(ctx context.Context, now time.Time) (int64, error) {
	n, err := r.repo.PurgeExpiredAndRevoked(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("purge refresh tokens: %w", err)
	}
	return n, nil
}

func (r *RefreshTokens) newToken(userID string) (string, *RefreshToken, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := io.ReadFull(r.entropy, buf); err != nil {
		return "", nil, fmt.Errorf("generate refresh token: %w", err)
	}
	value := base64.RawURLEncoding.EncodeToString(buf)
	now := r.now().UTC()
	rec := &RefreshToken{
		ID:        ids.At(now),
		UserID:    userID,
		TokenHash: HashRefreshToken(value),
		ExpiresAt: now.Add(r.ttl),
		CreatedAt: now,
	}
	return value, rec, nil
}
