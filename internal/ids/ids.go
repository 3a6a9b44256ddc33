// Package ids generates identifiers for stored records.
package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// Ordered returns a lexicographically sortable identifier; ids generated later
// sort after earlier ones, even within the same millisecond.
// Not suitable where unpredictability matters.
func Ordered(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// New returns a random UUIDv4 string for entity identifiers.
func New() string {
	return uuid.NewString()
}
