package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"notebook.app/internal/notes"
)

var _ notes.Repository = (*NoteStore)(nil)

// NoteStore implements notes.Repository.
type NoteStore struct{ db *sql.DB }

const noteColumns = `id, user_id, title, content, created_at`

func (s *NoteStore) Create(ctx context.Context, n *notes.Note) error {
	_, err := s.db.ExecContext(ctx,
		`insert into notes(id, user_id, title, content, created_at) values($1,$2,$3,$4,$5)`,
		n.ID, n.OwnerID, n.Title, n.Content, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

func (s *NoteStore) Get(ctx context.Context, id string) (*notes.Note, error) {
	var n notes.Note
	err := s.db.QueryRowContext(ctx, `select `+noteColumns+` from notes where id=$1`, id).
		Scan(&n.ID, &n.OwnerID, &n.Title, &n.Content, &n.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notes.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get note: %w", err)
	}
	return &n, nil
}

func (s *NoteStore) ListByOwner(ctx context.Context, ownerID string) ([]*notes.Note, error) {
	return s.query(ctx,
		`select `+noteColumns+` from notes where user_id=$1 order by created_at desc, id desc`, ownerID)
}

// SearchByTitle escapes LIKE metacharacters so the query is matched literally.
func (s *NoteStore) SearchByTitle(ctx context.Context, ownerID, query string) ([]*notes.Note, error) {
	return s.query(ctx,
		`select `+noteColumns+` from notes where user_id=$1 and title ilike $2 escape '\' order by created_at desc, id desc`,
		ownerID, "%"+escapeLike(query)+"%")
}

func (s *NoteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from notes where id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notes.ErrNotFound
	}
	return nil
}

func (s *NoteStore) query(ctx context.Context, q string, args ...any) ([]*notes.Note, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	out := []*notes.Note{}
	for rows.Next() {
		var n notes.Note
		if err := rows.Scan(&n.ID, &n.OwnerID, &n.Title, &n.Content, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
