package auth

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

const passwordSpecials = `!@#$%^&*()_+-=[]{};':"\|,.<>/?`

var commonPasswords = map[string]struct{}{
	"password": {}, "123456": {}, "password123": {}, "admin": {}, "letmein": {},
	"welcome": {}, "monkey": {}, "dragon": {}, "master": {}, "sunshine": {},
	"qwerty": {}, "abc123": {}, "111111": {}, "password1": {}, "1234567890": {},
}

// ValidateUsername accepts 3 to 50 letters, digits or underscores.
func ValidateUsername(name string) error {
	n := utf8.RuneCountInString(name)
	if n < 3 || n > 50 {
		return fmt.Errorf("%w: username must be between 3 and 50 characters", ErrInvalidInput)
	}
	if !usernamePattern.MatchString(name) {
		return fmt.Errorf("%w: username may contain only letters, digits and underscores", ErrInvalidInput)
	}
	return nil
}

// NormalizeEmail trims and lower-cases an address and checks its shape.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || len(email) > 255 {
		return "", fmt.Errorf("%w: email must be between 1 and 255 characters", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: email is not valid", ErrInvalidInput)
	}
	return email, nil
}

// ValidatePassword enforces the account password policy.
func ValidatePassword(pw string) error {
	n := utf8.RuneCountInString(pw)
	switch {
	case n < 12:
		return fmt.Errorf("%w: password must be at least 12 characters long", ErrInvalidInput)
	case len(pw) > maxPasswordBytes:
		return fmt.Errorf("%w: password must not exceed %d bytes", ErrInvalidInput, maxPasswordBytes)
	}
	var upper, lower, digit, special bool
	for _, r := range pw {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}
	switch {
	case !upper:
		return fmt.Errorf("%w: password must contain at least one uppercase letter", ErrInvalidInput)
	case !lower:
		return fmt.Errorf("%w: password must contain at least one lowercase letter", ErrInvalidInput)
	case !digit:
		return fmt.Errorf("%w: password must contain at least one digit", ErrInvalidInput)
	case !special:
		return fmt.Errorf("%w: password must contain at least one special character", ErrInvalidInput)
	}
	if _, ok := commonPasswords[strings.ToLower(pw)]; ok {
		return fmt.Errorf("%w: password is too common", ErrInvalidInput)
	}
	return nil
}
