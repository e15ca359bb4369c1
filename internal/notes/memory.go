package notes

import (
	"context"
	"sort"
	"strings"
	"sync"
)

var _ Repository = (*InMemory)(nil)

// InMemory implements Repository with in-process concurrency safety.
type InMemory struct {
	mu    sync.RWMutex
	notes map[string]*Note
}

func NewInMemory() *InMemory {
	return &InMemory{notes: make(map[string]*Note)}
}

func (s *InMemory) Create(_ context.Context, n *Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *n
	s.notes[n.ID] = &cp
	return nil
}

func (s *InMemory) Get(_ context.Context, id string) (*Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notes[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *InMemory) ListByOwner(_ context.Context, ownerID string) ([]*Note, error) {
	return s.filter(ownerID, func(*Note) bool { return true }), nil
}

func (s *InMemory) SearchByTitle(_ context.Context, ownerID, query string) ([]*Note, error) {
	q := strings.ToLower(query)
	return s.filter(ownerID, func(n *Note) bool {
		return strings.Contains(strings.ToLower(n.Title), q)
	}), nil
}

func (s *InMemory) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notes[id]; !ok {
		return ErrNotFound
	}
	delete(s.notes, id)
	return nil
}

// filter returns matching notes of ownerID, newest first.
func (s *InMemory) filter(ownerID string, keep func(*Note) bool) []*Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*Note{}
	for _, n := range s.notes {
		if n.OwnerID == ownerID && keep(n) {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}
