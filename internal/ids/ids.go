// Package ids mints the primary keys for KARS entities: users, assets,
// attestation campaigns, records, and audit entries all share the same
// ULID keyspace so rows sort by creation time.
package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var pool = ulidPool{
	entropy: ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0),
}

// ulidPool serializes access to the monotonic entropy source, which is not
// safe for concurrent readers.
type ulidPool struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func (p *ulidPool) next() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), p.entropy).String()
}

// New returns a lexicographically sortable identifier suitable for storage keys.
func New() string {
	return pool.next()
}
