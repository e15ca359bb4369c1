package ids

import (
	"errors"
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// ErrInvalid is returned by Parse for strings that are not row identifiers.
var ErrInvalid = errors.New("ids: invalid identifier")

// New returns a lexicographically sortable identifier used as the primary key
// of users, notes and refresh-token rows.
func New() string {
	return At(time.Now())
}

// At returns an identifier whose timestamp component is t.
func At(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Parse normalises an identifier taken from a URL path.
func Parse(s string) (string, error) {
	s = strings.TrimSpace(s)
	id, err := ulid.ParseStrict(s)
	if err != nil {
		return "", ErrInvalid
	}
	return id.String(), nil
}

// Time reports the creation time encoded in id.
func Time(id string) (time.Time, bool) {
	v, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(v.Time()), true
}
