package sweep

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Guard limits.
const (
	DefaultGuardSize = 10000
	DefaultGuardTTL  = 24 * time.Hour
)

// Guard remembers which (identity, UTXO set) pairs have been submitted so
// concurrent or repeated scans of one wallet produce a single request.
// A Guard is shared across requests and safe for concurrent use. Entries
// expire after the TTL and the oldest are evicted beyond the size limit.
type Guard struct {
	mu   sync.Mutex
	seen *expirable.LRU[string, struct{}]
}

// NewGuard returns an empty guard with the default limits.
func NewGuard() *Guard {
	return NewGuardWithLimits(DefaultGuardSize, DefaultGuardTTL)
}

// NewGuardWithLimits returns an empty guard holding at most size keys for
// at most ttl each.
func NewGuardWithLimits(size int, ttl time.Duration) *Guard {
	if size <= 0 {
		size = DefaultGuardSize
	}
	if ttl <= 0 {
		ttl = DefaultGuardTTL
	}
	return &Guard{seen: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

// Acquire claims key and reports whether it was free.
func (g *Guard) Acquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.seen.Peek(key); ok {
		return false
	}
	g.seen.Add(key, struct{}{})
	return true
}

// Release frees key so a later run may submit again.
func (g *Guard) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen.Remove(key)
}

// Len returns the number of claimed keys.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seen.Len()
}
