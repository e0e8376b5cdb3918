// Package switchctl abstracts the smart-switch devices the assistant can
// flip by voice. The board itself carries no relays; real control goes
// through whatever bridge the deployment wires in, so the package only
// defines the Controller seam and an in-memory implementation.
package switchctl

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// ErrUnknownDevice is returned when the named device is not registered.
var ErrUnknownDevice = fmt.Errorf("switchctl: unknown device")

// Controller turns named devices on and off.
type Controller interface {
	// Set switches the named device. Device names are matched
	// case-insensitively.
	Set(ctx context.Context, device string, on bool) error

	// Devices lists the registered device names.
	Devices() []string
}

// Memory is an in-memory Controller. It accepts any device name, remembers
// the last state per device, and logs every switch. Deployments without a
// device bridge run on it so voice commands still get a sensible reply.
type Memory struct {
	mu     sync.Mutex
	states map[string]bool
	logger *slog.Logger
}

var _ Controller = (*Memory)(nil)

// NewMemory creates an empty in-memory controller.
func NewMemory(logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{states: make(map[string]bool), logger: logger}
}

// Set records the switch state under the normalized device name.
func (m *Memory) Set(ctx context.Context, device string, on bool) error {
	name := strings.ToLower(strings.TrimSpace(device))
	if name == "" {
		return fmt.Errorf("switchctl: empty device name")
	}
	m.mu.Lock()
	m.states[name] = on
	m.mu.Unlock()
	m.logger.Info("switch set", "device", name, "on", on)
	return nil
}

// State reports the last recorded state for the device.
func (m *Memory) State(device string) (on, known bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	on, known = m.states[strings.ToLower(strings.TrimSpace(device))]
	return on, known
}

// Devices lists every device that has been switched at least once.
func (m *Memory) Devices() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.states))
	for name := range m.states {
		names = append(names, name)
	}
	return names
}
