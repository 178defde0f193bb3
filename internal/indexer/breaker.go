package indexer

import (
	"time"

	"github.com/sony/gobreaker"
)

// newBreaker returns a circuit breaker that opens after threshold
// consecutive transport failures and half-opens after cooldown.
func newBreaker(name string, threshold uint32, cooldown time.Duration) *gobreaker.CircuitBreaker {
	if threshold == 0 {
		threshold = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})
}
