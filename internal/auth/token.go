package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultAccessTTL is the lifetime of an access token.
	DefaultAccessTTL = 15 * time.Minute
	// MinSecretBytes is the shortest HS256 key NewCodec accepts.
	MinSecretBytes = 32
)

// Codec issues and validates HS256-signed access tokens whose subject is the
// user's email. It holds no per-token state.
type Codec struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewCodec builds a codec around a process-wide signing key. A nil clock
// means time.Now; a non-positive ttl means DefaultAccessTTL.
func NewCodec(secret []byte, issuer string, ttl time.Duration, now func() time.Time) (*Codec, error) {
	if len(secret) < MinSecretBytes {
		return nil, fmt.Errorf("auth: signing key must be at least %d bytes", MinSecretBytes)
	}
	if ttl <= 0 {
		ttl = DefaultAccessTTL
	}
	if now == nil {
		now = time.Now
	}
	c := &Codec{
		secret: append([]byte(nil), secret...),
		issuer: strings.TrimSpace(issuer),
		ttl:    ttl,
		now:    now,
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	c.parser = jwt.NewParser(opts...)
	return c, nil
}

// TTL returns the access token lifetime.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Issue signs a token for subject and returns it with its expiry.
func (c *Codec) Issue(subject string) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, errors.New("auth: subject is required")
	}
	now := c.now().UTC()
	exp := now.Add(c.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    c.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Validate verifies the signature and that the token has not yet expired,
// returning its subject. Every failure is ErrInvalidToken.
func (c *Codec) Validate(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrInvalidToken
	}
	var claims jwt.RegisteredClaims
	parsed, err := c.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	// now < exp, strictly
	if claims.ExpiresAt == nil || !c.now().Before(claims.ExpiresAt.Time) {
		return "", ErrInvalidToken
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", ErrInvalidToken
	}
	return subject, nil
}
