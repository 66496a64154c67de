package llm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kastelov/lexitrain/internal/clock"
)

// ErrCircuitOpen is returned without calling the provider while the breaker
// is open.
var ErrCircuitOpen = errors.New("model circuit breaker is open")

// BreakerState is the circuit breaker state.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// breaker opens after maxFailures consecutive failures and admits a single
// probe after the recovery timeout; the probe's outcome closes or reopens it.
type breaker struct {
	mu          sync.Mutex
	state       BreakerState
	failures    int
	lastFailure time.Time

	maxFailures int
	recovery    time.Duration
	clock       clock.Clock
}

func newBreaker(maxFailures int, recovery time.Duration, clk clock.Clock) *breaker {
	return &breaker{
		state:       BreakerClosed,
		maxFailures: maxFailures,
		recovery:    recovery,
		clock:       clk,
	}
}

// Execute runs fn under the breaker. Context cancellation does not count as
// a breaker failure.
func (b *breaker) Execute(fn func() error) error {
	b.mu.Lock()
	if b.state == BreakerOpen {
		if b.clock.Now().Sub(b.lastFailure) > b.recovery {
			b.state = BreakerHalfOpen
		} else {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		b.failures++
		b.lastFailure = b.clock.Now()
		if b.state == BreakerHalfOpen || b.failures >= b.maxFailures {
			b.state = BreakerOpen
		}
		return err
	}

	b.state = BreakerClosed
	b.failures = 0
	return nil
}

// State returns the current breaker state.
func (b *breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.clock.Now().Sub(b.lastFailure) > b.recovery {
		return BreakerHalfOpen
	}
	return b.state
}
