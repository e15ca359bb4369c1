package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"notebook.app/internal/auth"
)

var _ auth.RefreshTokenRepository = (*RefreshTokenStore)(nil)

// RefreshTokenStore implements auth.RefreshTokenRepository. The revoke step
// of Consume and Rotate is a conditional update on revoked = false, so
// Postgres row locking decides the single winner among concurrent callers.
type RefreshTokenStore struct{ db *sql.DB }

const consumeRefreshToken = `update refresh_tokens set revoked = true
	where token_hash = $1 and revoked = false
	returning id, user_id, token_hash, expires_at, created_at`

const insertRefreshToken = `insert into refresh_tokens(id, token_hash, user_id, expires_at, revoked, created_at)
	values($1,$2,$3,$4,false,$5)`

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *RefreshTokenStore) Insert(ctx context.Context, tok *auth.RefreshToken) error {
	return insertToken(ctx, s.db, tok)
}

func (s *RefreshTokenStore) Consume(ctx context.Context, hash string) (*auth.RefreshToken, error) {
	return consumeToken(ctx, s.db, hash)
}

func (s *RefreshTokenStore) Rotate(ctx context.Context, hash string, now time.Time, next *auth.RefreshToken) (*auth.RefreshToken, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	old, err := consumeToken(ctx, tx, hash)
	if err != nil {
		return nil, err
	}
	if old.Expired(now) {
		// keep the revoke, issue nothing
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return old, auth.ErrRefreshTokenExpired
	}
	next.UserID = old.UserID
	if err := insertToken(ctx, tx, next); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return old, nil
}

func (s *RefreshTokenStore) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked = true where user_id = $1 and revoked = false`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *RefreshTokenStore) PurgeExpiredAndRevoked(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from refresh_tokens where expires_at < $1 or revoked = true`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func insertToken(ctx context.Context, q execQuerier, tok *auth.RefreshToken) error {
	if tok.CreatedAt.IsZero() {
		tok.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx, insertRefreshToken, tok.ID, tok.TokenHash, tok.UserID, tok.ExpiresAt, tok.CreatedAt)
	if isUniqueViolation(err) {
		return auth.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

func consumeToken(ctx context.Context, q execQuerier, hash string) (*auth.RefreshToken, error) {
	var tok auth.RefreshToken
	err := q.QueryRowContext(ctx, consumeRefreshToken, hash).
		Scan(&tok.ID, &tok.UserID, &tok.TokenHash, &tok.ExpiresAt, &tok.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	return &tok, nil
}
