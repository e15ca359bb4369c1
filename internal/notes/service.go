package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"notebook.app/internal/ids"
)

// Repository persists notes.
type Repository interface {
	Create(ctx context.Context, n *Note) error
	Get(ctx context.Context, id string) (*Note, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*Note, error)
	// SearchByTitle matches a case-insensitive title substring, newest first.
	SearchByTitle(ctx context.Context, ownerID, query string) ([]*Note, error)
	Delete(ctx context.Context, id string) error
}

// Service applies ownership rules on top of a Repository.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Create stores a new note for ownerID.
func (s *Service) Create(ctx context.Context, ownerID, title, content string) (*Note, error) {
	title = strings.TrimSpace(title)
	if title == "" || utf8.RuneCountInString(title) > MaxTitleLen {
		return nil, fmt.Errorf("%w: title must be 1 to %d characters", ErrInvalidInput, MaxTitleLen)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content must not be blank", ErrInvalidInput)
	}
	now := s.now().UTC()
	n := &Note{
		ID:        ids.At(now),
		OwnerID:   ownerID,
		Title:     title,
		Content:   content,
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// Get returns a note if ownerID owns it. Unknown ids are ErrNotFound,
// foreign notes ErrForbidden.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*Note, error) {
	id, err := ids.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	n, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return n, nil
}

func (s *Service) List(ctx context.Context, ownerID string) ([]*Note, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

func (s *Service) Search(ctx context.Context, ownerID, query string) ([]*Note, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.repo.ListByOwner(ctx, ownerID)
	}
	return s.repo.SearchByTitle(ctx, ownerID, query)
}

// Delete removes a note owned by ownerID.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	n, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, n.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}
