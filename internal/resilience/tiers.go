package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllTiersFailed is returned when every tier fails, is skipped, or has an
// open breaker.
var ErrAllTiersFailed = errors.New("resilience: all tiers failed")

// tier pairs a backend with its dedicated breaker.
type tier[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Tiers is an ordered failover chain: the first tier is preferred, later
// tiers are tried when earlier ones fail, are skipped, or have tripped
// breakers. The synthesis dispatcher uses one chain per request shape
// (streaming, remote, local).
//
// Tiers is safe for concurrent use after construction; Add must not race
// with Try.
type Tiers[T any] struct {
	entries  []tier[T]
	settings BreakerSettings
	logger   *slog.Logger
}

// NewTiers creates an empty chain whose per-tier breakers share settings.
func NewTiers[T any](settings BreakerSettings, logger *slog.Logger) *Tiers[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tiers[T]{settings: settings, logger: logger}
}

// Add appends a tier. Order of addition is failover order.
func (t *Tiers[T]) Add(name string, value T) {
	s := t.settings
	s.Name = name
	t.entries = append(t.entries, tier[T]{
		name:    name,
		value:   value,
		breaker: NewBreaker(s, t.logger),
	})
}

// Names returns the tier names in failover order.
func (t *Tiers[T]) Names() []string {
	out := make([]string, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.name
	}
	return out
}

// Reset closes the breaker of the named tier, if present.
func (t *Tiers[T]) Reset(name string) {
	for i := range t.entries {
		if t.entries[i].name == name {
			t.entries[i].breaker.Reset()
			return
		}
	}
}

// Try runs fn against each tier in order until one succeeds. skip, when
// non-nil, excludes tiers by name before their breaker is consulted; the
// dispatcher uses it to bypass remote tiers while the network is down.
// Returns [ErrAllTiersFailed] wrapping the last error when nothing succeeds.
func Try[T any, R any](t *Tiers[T], skip func(name string) bool, fn func(name string, v T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range t.entries {
		e := &t.entries[i]
		if skip != nil && skip(e.name) {
			t.logger.Debug("tier skipped", "tier", e.name)
			continue
		}
		var result R
		err := e.breaker.Do(func() error {
			var innerErr error
			result, innerErr = fn(e.name, e.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrOpen) {
			t.logger.Debug("tier breaker open", "tier", e.name)
		} else {
			t.logger.Warn("tier failed, trying next", "tier", e.name, "error", err)
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no usable tier")
	}
	return zero, fmt.Errorf("%w: %v", ErrAllTiersFailed, lastErr)
}
