package notes

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestService() *Service {
	s := NewService(NewInMemory())
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		t0 = t0.Add(time.Second)
		return t0
	}
	return s
}

func TestCreateAndGetOwnership(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	n, err := s.Create(ctx, "alice", "  Groceries ", "milk")
	if err != nil {
		t.Fatal(err)
	}
	if n.Title != "Groceries" || n.OwnerID != "alice" {
		t.Fatalf("unexpected note %+v", n)
	}

	got, err := s.Get(ctx, "alice", n.ID)
	if err != nil || got.Content != "milk" {
		t.Fatalf("Get: %+v %v", got, err)
	}
	if _, err := s.Get(ctx, "bob", n.ID); err != ErrForbidden {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := s.Get(ctx, "alice", "01HZZZZZZZZZZZZZZZZZZZZZZZ"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Get(ctx, "alice", "garbage"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for malformed id, got %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	cases := []struct{ title, content string }{
		{"", "body"},
		{"   ", "body"},
		{strings.Repeat("t", MaxTitleLen+1), "body"},
		{"title", "  "},
	}
	for _, c := range cases {
		if _, err := s.Create(ctx, "alice", c.title, c.content); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%q/%q: expected ErrInvalidInput, got %v", c.title, c.content, err)
		}
	}
	if _, err := s.Create(ctx, "alice", strings.Repeat("t", MaxTitleLen), "body"); err != nil {
		t.Fatalf("max-length title rejected: %v", err)
	}
}

func TestListSearchDelete(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	a, _ := s.Create(ctx, "alice", "Shopping list", "x")
	b, _ := s.Create(ctx, "alice", "Work notes", "y")
	c, _ := s.Create(ctx, "alice", "weekend SHOPPING", "z")
	_, _ = s.Create(ctx, "bob", "Shopping", "w")

	all, _ := s.List(ctx, "alice")
	if len(all) != 3 || all[0].ID != c.ID || all[2].ID != a.ID {
		t.Fatalf("expected alice's notes newest first, got %d", len(all))
	}

	found, _ := s.Search(ctx, "alice", "shop")
	if len(found) != 2 || found[0].ID != c.ID || found[1].ID != a.ID {
		t.Fatalf("unexpected search result %+v", found)
	}

	if err := s.Delete(ctx, "bob", b.ID); err != ErrForbidden {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := s.Delete(ctx, "alice", b.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "alice", b.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
