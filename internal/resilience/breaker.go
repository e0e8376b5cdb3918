// Package resilience provides the failure-containment primitives used around
// the synthesis and recognition backends: a three-state circuit breaker and
// an ordered tier group that fails over from a tripped backend to the next.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker is open and the
// cooldown has not yet elapsed.
var ErrOpen = errors.New("resilience: breaker open")

// BreakerState is the operating mode of a [Breaker].
type BreakerState int

const (
	// Closed forwards all calls.
	Closed BreakerState = iota

	// Open rejects calls with [ErrOpen] until the cooldown elapses.
	Open

	// HalfOpen lets a limited number of probe calls through; success closes
	// the breaker, any failure re-opens it.
	HalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerSettings tunes a [Breaker]. Zero fields get defaults.
type BreakerSettings struct {
	// Name labels the breaker in log messages.
	Name string

	// Trip is the consecutive-failure count that opens the breaker.
	// Default: 3.
	Trip int

	// Cooldown is how long the breaker stays open before probing.
	// Default: 30 s.
	Cooldown time.Duration

	// Probes is the half-open call budget. Default: 2.
	Probes int
}

// Breaker is a three-state circuit breaker.
type Breaker struct {
	name     string
	trip     int
	cooldown time.Duration
	probes   int
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	state     BreakerState
	failures  int
	openedAt  time.Time
	probeUsed int
	probeFail int
}

// NewBreaker creates a Breaker with the supplied settings.
func NewBreaker(s BreakerSettings, logger *slog.Logger) *Breaker {
	if s.Trip <= 0 {
		s.Trip = 3
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	if s.Probes <= 0 {
		s.Probes = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Breaker{
		name:     s.Name,
		trip:     s.Trip,
		cooldown: s.Cooldown,
		probes:   s.Probes,
		logger:   logger,
		now:      time.Now,
	}
}

// Do runs fn when the breaker allows it and feeds the outcome back into the
// breaker state.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = HalfOpen
		b.probeUsed = 0
		b.probeFail = 0
		b.logger.Info("breaker half-open", "name", b.name)
	case HalfOpen:
		if b.probeUsed >= b.probes {
			b.mu.Unlock()
			return ErrOpen
		}
	}
	probing := b.state == HalfOpen
	if probing {
		b.probeUsed++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.fail(probing)
	} else {
		b.succeed(probing)
	}
	return err
}

// fail updates counters after a failed call. Caller holds b.mu.
func (b *Breaker) fail(probing bool) {
	b.openedAt = b.now()
	if probing {
		b.probeFail++
		b.state = Open
		b.failures = b.trip
		b.logger.Warn("breaker re-opened", "name", b.name)
		return
	}
	b.failures++
	if b.failures >= b.trip && b.state == Closed {
		b.state = Open
		b.logger.Warn("breaker opened", "name", b.name, "failures", b.failures)
	}
}

// succeed updates counters after a successful call. Caller holds b.mu.
func (b *Breaker) succeed(probing bool) {
	if probing {
		if b.probeUsed-b.probeFail >= b.probes {
			b.state = Closed
			b.failures = 0
			b.logger.Info("breaker closed", "name", b.name)
		}
		return
	}
	b.failures = 0
}

// State reports the current state. An open breaker whose cooldown has passed
// reports HalfOpen; the transition itself happens on the next Do.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cooldown {
		return HalfOpen
	}
	return b.state
}

// Reset forces the breaker closed. The health monitor calls this when a
// backend transitions back to available, so the next request tries it
// immediately instead of waiting out the cooldown.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.probeUsed = 0
	b.probeFail = 0
}
