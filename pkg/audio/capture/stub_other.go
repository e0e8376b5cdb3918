//go:build !linux

package capture

import (
	"errors"
	"log/slog"
)

// newPlatformSource has no backend off-board; use the mock source in tests
// and development on non-Linux hosts.
func newPlatformSource(Config, *slog.Logger) (Source, error) {
	return nil, errors.New("capture: no platform backend on this OS; use NewMock")
}
