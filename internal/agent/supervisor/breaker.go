package supervisor

import (
	"sync"
	"time"

	logx "github.com/trialvoice-core/engine/pkg/logger"
)

// BreakerState is the lifecycle of one dependency's circuit breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// CircuitBreaker tracks consecutive failures for a single external dependency.
// All transitions happen under the mutex so concurrent outcomes on the same
// dependency never lose an update.
type CircuitBreaker struct {
	mu          sync.Mutex
	threshold   int
	cooldown    time.Duration
	failures    int
	state       BreakerState
	probing     bool
	lastFailure time.Time
	now         func() time.Time
}

// NewCircuitBreaker starts in Closed with a zeroed failure counter.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		state:     BreakerClosed,
		now:       time.Now,
	}
}

// Allow reports whether a call may go out to the dependency. While Open it
// returns false until the cooldown elapses, then admits a single HalfOpen
// probe whose outcome decides the next state. Further callers are rejected
// while that probe is in flight.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	case BreakerOpen:
		if b.now().Sub(b.lastFailure) >= b.cooldown {
			b.state = BreakerHalfOpen
			b.probing = true
			return true
		}
		return false
	}
	return false
}

// OnSuccess resets the failure counter and closes the breaker.
func (b *CircuitBreaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != BreakerClosed {
		logx.Info().Str("state", string(b.state)).Msg("Circuit breaker closing after success")
	}
	b.failures = 0
	b.probing = false
	b.state = BreakerClosed
}

// OnFailure counts one failed attempt. A failed HalfOpen probe reopens
// immediately and restarts the cooldown clock.
func (b *CircuitBreaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.probing = false
	b.lastFailure = b.now()
	if b.state == BreakerHalfOpen || b.failures >= b.threshold {
		if b.state != BreakerOpen {
			logx.Warn().Int("failures", b.failures).Msg("Circuit breaker opening")
		}
		b.state = BreakerOpen
	}
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
