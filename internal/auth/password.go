package auth

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// maxPasswordBytes is bcrypt's input limit; longer inputs are rejected
// instead of being silently truncated.
const maxPasswordBytes = 72

// HashPassword hashes a plaintext password with bcrypt at cost (0 means
// bcrypt.DefaultCost).
func HashPassword(password string, cost int) (string, error) {
	switch {
	case password == "":
		return "", errors.New("auth: password is empty")
	case len(password) > maxPasswordBytes:
		return "", fmt.Errorf("%w: password must not exceed %d bytes", ErrInvalidInput, maxPasswordBytes)
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches the stored hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("auth: password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// burnPasswordCheck spends one bcrypt comparison at cost so a login for an
// unknown email takes as long as a wrong password.
func burnPasswordCheck(password string, cost int) {
	dummyOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("notebook-dummy-password"), cost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}
