package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// IDGenerator produces the three identifier shapes the ledger uses:
// UUIDs for entity primary keys, 10-digit numeric account numbers, and
// ULID-based confirmation codes (sortable, URL-safe, distinct from the
// transaction's primary identifier).
type IDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// NewID returns a new UUIDv4 string for entity identity.
func (g *IDGenerator) NewID() string {
	return uuid.NewString()
}

// AccountNumber returns a 10-digit numeric account number in
// [1000000000, 9999999999]. Uniqueness is enforced by the store's
// unique index; collisions at this keyspace are vanishingly rare for a
// demo-scale bank.
func (g *IDGenerator) AccountNumber() string {
	n, err := rand.Int(rand.Reader, big.NewInt(9_000_000_000))
	if err != nil {
		// crypto/rand only fails when the OS entropy source is broken.
		panic(fmt.Sprintf("account number generation: %v", err))
	}
	return fmt.Sprintf("%d", n.Int64()+1_000_000_000)
}

// ConfirmationCode returns a human-facing confirmation identifier,
// e.g. "TXN-01J8ZCD9KQY3V4RRFFQ69G5FAV".
func (g *IDGenerator) ConfirmationCode() string {
	g.mu.Lock()
	id := ulid.MustNew(ulid.Now(), g.entropy)
	g.mu.Unlock()
	return "TXN-" + id.String()
}
