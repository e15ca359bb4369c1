package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Service composes the token codec, the refresh token lifecycle and the
// user store into the login/refresh/logout flows.
type Service struct {
	users      UserStore
	codec      *Codec
	refresh    *RefreshTokens
	bcryptCost int
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithBcryptCost sets the cost used when hashing new passwords.
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) error {
		if cost < 4 || cost > 31 {
			return fmt.Errorf("auth: bcrypt cost %d out of range", cost)
		}
		s.bcryptCost = cost
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(users UserStore, codec *Codec, refresh *RefreshTokens, opts ...ServiceOption) (*Service, error) {
	if users == nil || codec == nil || refresh == nil {
		return nil, errors.New("auth: users, codec and refresh tokens are required")
	}
	svc := &Service{users: users, codec: codec, refresh: refresh, bcryptCost: 12}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Session is the credential pair handed to a client after login or refresh.
type Session struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// RegisterInput carries the fields of a new account.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Register validates and stores a new USER account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	return s.createUser(ctx, in, RoleUser)
}

// CreateAdmin stores a new ADMIN account. Used by operator tooling.
func (s *Service) CreateAdmin(ctx context.Context, in RegisterInput) (*User, error) {
	return s.createUser(ctx, in, RoleAdmin)
}

func (s *Service) createUser(ctx context.Context, in RegisterInput, role Role) (*User, error) {
	username := strings.TrimSpace(in.Username)
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}
	hash, err := HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &User{Username: username, Email: email, PasswordHash: hash, Role: role}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login checks credentials and opens a session. Unknown email and wrong
// password both yield ErrUnauthorized.
func (s *Service) Login(ctx context.Context, email, password string) (Session, *User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Session{}, nil, ErrUnauthorized
	}
	u, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		burnPasswordCheck(password, s.bcryptCost)
		return Session{}, nil, ErrUnauthorized
	}
	if err != nil {
		return Session{}, nil, err
	}
	if err := VerifyPassword(u.PasswordHash, password); err != nil {
		return Session{}, nil, ErrUnauthorized
	}

	access, accessExp, err := s.codec.Issue(u.Email)
	if err != nil {
		return Session{}, nil, err
	}
	refresh, rec, err := s.refresh.Create(ctx, u.ID)
	if err != nil {
		return Session{}, nil, err
	}
	return Session{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: rec.ExpiresAt,
	}, u, nil
}

// Refresh rotates a refresh token and issues a new pair. Any token problem
// is ErrInvalidRefreshToken; other errors come from persistence.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, *User, error) {
	userID, next, rec, err := s.refresh.Rotate(ctx, refreshToken)
	if err != nil {
		return Session{}, nil, err
	}
	u, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return Session{}, nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return Session{}, nil, err
	}
	access, accessExp, err := s.codec.Issue(u.Email)
	if err != nil {
		return Session{}, nil, err
	}
	return Session{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     next,
		RefreshExpiresAt: rec.ExpiresAt,
	}, u, nil
}

// Logout revokes every refresh token of the identity. It returns how many
// live tokens were revoked.
func (s *Service) Logout(ctx context.Context, id Identity) (int64, error) {
	if id.UserID == "" {
		return 0, nil
	}
	return s.refresh.RevokeAllForIdentity(ctx, id.UserID)
}

// Authenticate resolves an access token to an identity. Invalid tokens and
// tokens for deleted accounts are ErrInvalidToken.
func (s *Service) Authenticate(ctx context.Context, token string) (Identity, error) {
	email, err := s.codec.Validate(token)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	u, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return Identity{}, ErrInvalidToken
	}
	if err != nil {
		return Identity{}, err
	}
	return IdentityOf(u), nil
}

// User loads an account by id.
func (s *Service) User(ctx context.Context, id string) (*User, error) {
	return s.users.FindByID(ctx, id)
}

// ListUsers returns all accounts.
func (s *Service) ListUsers(ctx context.Context) ([]*User, error) {
	return s.users.List(ctx)
}

// Stats summarises the user base.
type Stats struct {
	TotalUsers int64 `json:"totalUsers"`
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	n, err := s.users.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{TotalUsers: n}, nil
}

// SetRole changes the role of an account.
func (s *Service) SetRole(ctx context.Context, userID string, role Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	return s.users.UpdateRole(ctx, userID, role)
}

// AccessTTL and RefreshTTL expose the configured lifetimes for cookie max-age.
func (s *Service) AccessTTL() time.Duration  { return s.codec.TTL() }
func (s *Service) RefreshTTL() time.Duration { return s.refresh.TTL() }
