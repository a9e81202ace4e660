package resolver

import (
	"errors"
	"sync"
	"time"
)

// BreakerState represents the state of the signing-backend circuit breaker
type BreakerState int

const (
	// BreakerClosed indicates normal operation
	BreakerClosed BreakerState = iota
	// BreakerOpen indicates resolution calls are being short-circuited
	BreakerOpen
	// BreakerHalfOpen indicates the next call probes whether the backend recovered
	BreakerHalfOpen
)

// String returns the string representation of BreakerState
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen indicates the breaker is open and the signing backend is
// not being called.
var ErrBreakerOpen = errors.New("resolver circuit breaker is open")

// breaker guards the signing backend against request storms when it is
// failing: after failureThreshold consecutive failures calls fail fast
// until resetTimeout has elapsed, then a single probe is let through.
type breaker struct {
	failureThreshold int
	resetTimeout     time.Duration
	state            BreakerState
	failures         int
	lastFailureTime  time.Time
	mu               sync.Mutex
}

func newBreaker(failureThreshold int, resetTimeout time.Duration) *breaker {
	return &breaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		state:            BreakerClosed,
	}
}

// call executes fn if the breaker allows it and records the outcome
func (b *breaker) call(fn func() error) error {
	b.mu.Lock()
	if b.state == BreakerOpen {
		if time.Since(b.lastFailureTime) < b.resetTimeout {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.state = BreakerHalfOpen
		b.failures = 0
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		b.lastFailureTime = time.Now()
		if b.failures >= b.failureThreshold {
			b.state = BreakerOpen
		}
		return err
	}

	b.failures = 0
	if b.state == BreakerHalfOpen {
		b.state = BreakerClosed
	}
	return nil
}

// State returns the current breaker state, transitioning Open to HalfOpen
// once the reset timeout has elapsed.
func (b *breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && time.Since(b.lastFailureTime) >= b.resetTimeout {
		b.state = BreakerHalfOpen
		b.failures = 0
	}
	return b.state
}

// reset returns the breaker to its initial closed state
func (b *breaker) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.lastFailureTime = time.Time{}
}
