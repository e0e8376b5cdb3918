package health

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Target is one probed backend.
type Target struct {
	// Name identifies the backend ("stt-remote", "tts-remote", "llm").
	Name string

	// Check probes the backend; nil error means available.
	Check func(ctx context.Context) error
}

// MonitorConfig tunes probing. Zero fields get defaults.
type MonitorConfig struct {
	// Interval between probe rounds. Default: 3600 s. The long default is
	// deliberate: probes cost battery and bandwidth on an embedded device,
	// and request failures flip the state between rounds anyway.
	Interval time.Duration

	// Timeout bounds one probe call. Default: 10 s.
	Timeout time.Duration
}

func (c MonitorConfig) withDefaults() MonitorConfig {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return c
}

// Monitor probes targets periodically and exposes their availability.
// Targets start available; the first probe round corrects that optimism.
//
// When a target transitions unavailable -> available the recover hook runs,
// which lets the synthesis and recognition tiers reset their breakers
// immediately instead of waiting out a cooldown.
type Monitor struct {
	cfg       MonitorConfig
	targets   []Target
	onRecover func(name string)
	logger    *slog.Logger

	mu        sync.Mutex
	available map[string]bool
	lastProbe time.Time
}

// NewMonitor builds a monitor. onRecover may be nil.
func NewMonitor(cfg MonitorConfig, targets []Target, onRecover func(name string), logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		cfg:       cfg.withDefaults(),
		targets:   targets,
		onRecover: onRecover,
		logger:    logger,
		available: make(map[string]bool, len(targets)),
	}
	for _, t := range targets {
		m.available[t.Name] = true
	}
	return m
}

// Run probes immediately, then on every interval, until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.CheckNow(ctx)
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.CheckNow(ctx)
		}
	}
}

// CheckNow runs one probe round. Callers may force it outside the schedule,
// for example after a burst of request failures.
func (m *Monitor) CheckNow(ctx context.Context) {
	for _, t := range m.targets {
		probeCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
		err := t.Check(probeCtx)
		cancel()
		m.record(t.Name, err)
	}
	m.mu.Lock()
	m.lastProbe = time.Now()
	m.mu.Unlock()
}

// record applies one probe result and fires the recover hook on an
// unavailable -> available transition.
func (m *Monitor) record(name string, err error) {
	m.mu.Lock()
	was := m.available[name]
	now := err == nil
	m.available[name] = now
	m.mu.Unlock()

	switch {
	case was && !now:
		m.logger.Warn("backend unavailable", "target", name, "error", err)
	case !was && now:
		m.logger.Info("backend recovered", "target", name)
		if m.onRecover != nil {
			m.onRecover(name)
		}
	}
}

// MarkUnavailable flips a target down outside the probe schedule. The
// request path calls it when a backend fails repeatedly, so routing reacts
// before the next hourly round.
func (m *Monitor) MarkUnavailable(name string) {
	m.record(name, context.DeadlineExceeded)
}

// Available reports the last known state of one target. Unknown names
// report true, matching the start-optimistic policy.
func (m *Monitor) Available(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.available[name]; ok {
		return v
	}
	return true
}

// Snapshot returns the availability map and the time of the last round.
func (m *Monitor) Snapshot() (map[string]bool, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(m.available))
	for k, v := range m.available {
		out[k] = v
	}
	return out, m.lastProbe
}
