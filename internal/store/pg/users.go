package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"notebook.app/internal/auth"
	"notebook.app/internal/ids"
)

var _ auth.UserStore = (*UserStore)(nil)

// UserStore implements auth.UserStore.
type UserStore struct{ db *sql.DB }

const userColumns = `id, username, email, password_hash, role, created_at`

func (s *UserStore) Create(ctx context.Context, u *auth.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.Role == "" {
		u.Role = auth.RoleUser
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, username, email, password_hash, role, created_at) values($1,$2,$3,$4,$5,$6)`,
		u.ID, u.Username, u.Email, u.PasswordHash, string(u.Role), u.CreatedAt,
	)
	if isUniqueViolation(err) {
		return auth.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *UserStore) FindByID(ctx context.Context, id string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where email=$1`, email)
	return scanUser(row)
}

func (s *UserStore) List(ctx context.Context) ([]*auth.User, error) {
	rows, err := s.db.QueryContext(ctx, `select `+userColumns+` from users order by created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []*auth.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *UserStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `select count(*) from users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (s *UserStore) UpdateRole(ctx context.Context, id string, role auth.Role) error {
	res, err := s.db.ExecContext(ctx, `update users set role=$2 where id=$1`, id, string(role))
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		u    auth.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Role = auth.Role(role)
	return &u, nil
}
