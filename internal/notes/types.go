package notes

import (
	"errors"
	"time"
)

// MaxTitleLen is the longest accepted title, in characters.
const MaxTitleLen = 255

// Note is a text note owned by one user.
type Note struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

var (
	ErrNotFound     = errors.New("notes: not found")
	ErrForbidden    = errors.New("notes: forbidden")
	ErrInvalidInput = errors.New("notes: invalid input")
)
