// Package pushid generates auto-assigned child keys. Keys are ULIDs, so a
// list of children keyed this way sorts chronologically under the default
// lexicographic key order, and keys generated within the same millisecond
// still sort in generation order thanks to the monotonic entropy source.
package pushid

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// Next returns a fresh chronologically sortable child key.
func Next() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
