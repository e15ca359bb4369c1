package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"notebook.app/internal/auth"
	"notebook.app/internal/notes"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

var tokenRowColumns = []string{"id", "user_id", "token_hash", "expires_at", "created_at"}

const (
	consumeQuery = `(?s)^update refresh_tokens set revoked = true\s+where token_hash = \$1 and revoked = false\s+returning`
	insertQuery  = `(?s)^insert into refresh_tokens\(id, token_hash, user_id, expires_at, revoked, created_at\)`
)

func TestRefreshTokenRotate_Success(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	next := &auth.RefreshToken{ID: "t2", TokenHash: "h2", ExpiresAt: now.Add(time.Hour), CreatedAt: now}

	mock.ExpectBegin()
	mock.ExpectQuery(consumeQuery).WithArgs("h1").
		WillReturnRows(sqlmock.NewRows(tokenRowColumns).AddRow("t1", "u1", "h1", now.Add(time.Minute), now.Add(-time.Hour)))
	mock.ExpectExec(insertQuery).WithArgs("t2", "h2", "u1", next.ExpiresAt, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	old, err := s.RefreshTokens().Rotate(context.Background(), "h1", now, next)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if old.UserID != "u1" || next.UserID != "u1" {
		t.Fatalf("owner not carried over: old=%+v next=%+v", old, next)
	}
	expectationsMet(t, mock)
}

func TestRefreshTokenRotate_AlreadyRevoked(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(consumeQuery).WithArgs("h1").WillReturnRows(sqlmock.NewRows(tokenRowColumns))
	mock.ExpectRollback()

	_, err := s.RefreshTokens().Rotate(context.Background(), "h1", time.Now(), &auth.RefreshToken{ID: "t2", TokenHash: "h2"})
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestRefreshTokenRotate_ExpiredCommitsRevokeOnly(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(consumeQuery).WithArgs("h1").
		WillReturnRows(sqlmock.NewRows(tokenRowColumns).AddRow("t1", "u1", "h1", now.Add(-time.Second), now.Add(-8*24*time.Hour)))
	mock.ExpectCommit()

	_, err := s.RefreshTokens().Rotate(context.Background(), "h1", now, &auth.RefreshToken{ID: "t2", TokenHash: "h2"})
	if !errors.Is(err, auth.ErrRefreshTokenExpired) {
		t.Fatalf("expected ErrRefreshTokenExpired, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestRefreshTokenRotate_InsertFailureRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(consumeQuery).WithArgs("h1").
		WillReturnRows(sqlmock.NewRows(tokenRowColumns).AddRow("t1", "u1", "h1", now.Add(time.Hour), now))
	mock.ExpectExec(insertQuery).WillReturnError(errors.New("db down"))
	mock.ExpectRollback()

	if _, err := s.RefreshTokens().Rotate(context.Background(), "h1", now, &auth.RefreshToken{ID: "t2", TokenHash: "h2"}); err == nil {
		t.Fatal("expected error")
	}
	expectationsMet(t, mock)
}

func TestRefreshTokenConsume(t *testing.T) {
	s, mock := newMockStore(t)
	exp := time.Now().Add(time.Hour)
	mock.ExpectQuery(consumeQuery).WithArgs("h1").
		WillReturnRows(sqlmock.NewRows(tokenRowColumns).AddRow("t1", "u1", "h1", exp, time.Now()))

	tok, err := s.RefreshTokens().Consume(context.Background(), "h1")
	if err != nil || tok.ID != "t1" || !tok.ExpiresAt.Equal(exp) {
		t.Fatalf("Consume: %+v %v", tok, err)
	}
	expectationsMet(t, mock)
}

func TestRefreshTokenInsertDuplicate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(insertQuery).WillReturnError(&pgconn.PgError{Code: "23505"})

	err := s.RefreshTokens().Insert(context.Background(), &auth.RefreshToken{ID: "t1", TokenHash: "h1", UserID: "u1"})
	if !errors.Is(err, auth.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestRefreshTokenRevokeAndPurge(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	mock.ExpectExec(`^update refresh_tokens set revoked = true where user_id = \$1 and revoked = false$`).
		WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`^delete from refresh_tokens where expires_at < \$1 or revoked = true$`).
		WithArgs(now).WillReturnResult(sqlmock.NewResult(0, 5))

	store := s.RefreshTokens()
	if n, err := store.RevokeAllForUser(context.Background(), "u1"); err != nil || n != 3 {
		t.Fatalf("RevokeAllForUser: %d %v", n, err)
	}
	if n, err := store.PurgeExpiredAndRevoked(context.Background(), now); err != nil || n != 5 {
		t.Fatalf("PurgeExpiredAndRevoked: %d %v", n, err)
	}
	expectationsMet(t, mock)
}

func TestUserStore(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cols := []string{"id", "username", "email", "password_hash", "role", "created_at"}

	mock.ExpectExec(`^insert into users`).
		WithArgs("u1", "alice", "alice@example.com", "hash", "USER", created).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`^insert into users`).WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectQuery(`^select id, username, email, password_hash, role, created_at from users where email=\$1$`).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("u1", "alice", "alice@example.com", "hash", "ADMIN", created))
	mock.ExpectQuery(`from users where id=\$1$`).WithArgs("nope").WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`^update users set role=\$2 where id=\$1$`).WithArgs("nope", "ADMIN").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`^select count\(\*\) from users$`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	users := s.Users()
	if err := users.Create(ctx, &auth.User{ID: "u1", Username: "alice", Email: "alice@example.com", PasswordHash: "hash", CreatedAt: created}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := users.Create(ctx, &auth.User{ID: "u2", Email: "alice@example.com"}); !errors.Is(err, auth.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	u, err := users.FindByEmail(ctx, "alice@example.com")
	if err != nil || u.Role != auth.RoleAdmin {
		t.Fatalf("FindByEmail: %+v %v", u, err)
	}
	if _, err := users.FindByID(ctx, "nope"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := users.UpdateRole(ctx, "nope", auth.RoleAdmin); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if n, err := users.Count(ctx); err != nil || n != 7 {
		t.Fatalf("Count: %d %v", n, err)
	}
	expectationsMet(t, mock)
}

func TestNoteStoreSearchEscapesPattern(t *testing.T) {
	s, mock := newMockStore(t)
	cols := []string{"id", "user_id", "title", "content", "created_at"}
	mock.ExpectQuery(`title ilike \$2 escape`).
		WithArgs("u1", `%50\%\_off%`).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("n1", "u1", "50%_off deals", "x", time.Now()))

	got, err := s.Notes().SearchByTitle(context.Background(), "u1", "50%_off")
	if err != nil || len(got) != 1 || got[0].ID != "n1" {
		t.Fatalf("SearchByTitle: %+v %v", got, err)
	}
	expectationsMet(t, mock)
}

func TestNoteStoreGetAndDelete(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`from notes where id=\$1$`).WithArgs("missing").WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`^delete from notes where id=\$1$`).WithArgs("missing").WillReturnResult(sqlmock.NewResult(0, 0))

	if _, err := s.Notes().Get(context.Background(), "missing"); !errors.Is(err, notes.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Notes().Delete(context.Background(), "missing"); !errors.Is(err, notes.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}
