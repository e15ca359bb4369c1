package auth

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"notebook.app/internal/ids"
)

var (
	_ UserStore              = (*MemoryUsers)(nil)
	_ RefreshTokenRepository = (*MemoryRefreshTokens)(nil)
)

// MemoryUsers is an in-process UserStore.
type MemoryUsers struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{byID: map[string]*User{}, byEmail: map[string]string{}}
}

func (s *MemoryUsers) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(u.Email)
	if _, ok := s.byEmail[key]; ok {
		return ErrAlreadyExists
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	cp := *u
	s.byID[u.ID] = &cp
	s.byEmail[key] = u.ID
	return nil
}

func (s *MemoryUsers) FindByID(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *MemoryUsers) List(_ context.Context) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*User, 0, len(s.byID))
	for _, u := range s.byID {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryUsers) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.byID)), nil
}

func (s *MemoryUsers) UpdateRole(_ context.Context, id string, role Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	u.Role = role
	return nil
}

// MemoryRefreshTokens is an in-process RefreshTokenRepository. One mutex
// serialises all writes, which makes Consume and Rotate trivially atomic.
type MemoryRefreshTokens struct {
	mu     sync.Mutex
	byHash map[string]*RefreshToken
}

func NewMemoryRefreshTokens() *MemoryRefreshTokens {
	return &MemoryRefreshTokens{byHash: map[string]*RefreshToken{}}
}

func (s *MemoryRefreshTokens) Insert(_ context.Context, tok *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(tok)
}

func (s *MemoryRefreshTokens) insertLocked(tok *RefreshToken) error {
	if _, ok := s.byHash[tok.TokenHash]; ok {
		return ErrAlreadyExists
	}
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	cp := *tok
	s.byHash[tok.TokenHash] = &cp
	return nil
}

func (s *MemoryRefreshTokens) Consume(_ context.Context, hash string) (*RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumeLocked(hash)
}

func (s *MemoryRefreshTokens) consumeLocked(hash string) (*RefreshToken, error) {
	tok, ok := s.byHash[hash]
	if !ok || tok.Revoked {
		return nil, ErrNotFound
	}
	before := *tok
	tok.Revoked = true
	return &before, nil
}

func (s *MemoryRefreshTokens) Rotate(_ context.Context, hash string, now time.Time, next *RefreshToken) (*RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, err := s.consumeLocked(hash)
	if err != nil {
		return nil, err
	}
	if old.Expired(now) {
		return old, ErrRefreshTokenExpired
	}
	next.UserID = old.UserID
	if err := s.insertLocked(next); err != nil {
		// undo the revoke so the pair stays all-or-nothing
		s.byHash[hash].Revoked = false
		return nil, err
	}
	return old, nil
}

func (s *MemoryRefreshTokens) RevokeAllForUser(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, tok := range s.byHash {
		if tok.UserID == userID && !tok.Revoked {
			tok.Revoked = true
			n++
		}
	}
	return n, nil
}

func (s *MemoryRefreshTokens) PurgeExpiredAndRevoked(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for h, tok := range s.byHash {
		if tok.ExpiresAt.Before(now) || tok.Revoked {
			delete(s.byHash, h)
			n++
		}
	}
	return n, nil
}

// Get returns a copy of the row stored under hash.
func (s *MemoryRefreshTokens) Get(hash string) (RefreshToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.byHash[hash]
	if !ok {
		return RefreshToken{}, false
	}
	return *tok, true
}
