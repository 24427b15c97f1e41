// Package retry provides the bounded-retry and circuit-breaking primitives
// the peer and profile layers use against a degraded replicated store.
package retry

import (
	"sync"
	"time"

	"github.com/annotify/annotify/internal/timex"
)

// BreakerState is the explicit state of the circuit breaker.
type BreakerState int

const (
	// BreakerClosed: operations flow normally.
	BreakerClosed BreakerState = iota
	// BreakerOpen: operations short-circuit until the cooldown elapses.
	BreakerOpen
	// BreakerHalfOpen: the cooldown elapsed; one probe is allowed through.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker is a Closed -> Open -> HalfOpen -> Closed circuit breaker with an
// injectable clock. It opens after threshold consecutive failures and stays
// open for cooldown; the first Allow after the cooldown moves it to
// HalfOpen, where a success closes it and a failure reopens it.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	clock     timex.Clock

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
}

// NewBreaker returns a closed breaker.
func NewBreaker(threshold int, cooldown time.Duration, clock timex.Clock) *Breaker {
	return &Breaker{threshold: threshold, cooldown: cooldown, clock: clock}
}

// Allow reports whether an attempt may proceed right now.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed, BreakerHalfOpen:
		return true
	case BreakerOpen:
		if b.clock.Now().Sub(b.openedAt) >= b.cooldown {
			b.state = BreakerHalfOpen
			return true
		}
		return false
	default:
		return false
	}
}

// Success records a successful attempt, closing the breaker and clearing the
// failure count.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
}

// Failure records a failed attempt. In HalfOpen the breaker reopens
// immediately; in Closed it opens once the consecutive-failure threshold is
// reached.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.open()
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.open()
	}
}

func (b *Breaker) open() {
	b.state = BreakerOpen
	b.openedAt = b.clock.Now()
}

// State returns the current state, accounting for an elapsed cooldown.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.clock.Now().Sub(b.openedAt) >= b.cooldown {
		return BreakerHalfOpen
	}
	return b.state
}
