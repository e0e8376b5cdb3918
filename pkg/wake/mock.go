package wake

import (
	"sync"

	"github.com/weny945/home-pi/pkg/audio"
)

// MockDetector is a scripted Detector for tests. Events are consumed in
// order, one per ProcessFrame call that finds the script non-empty.
type MockDetector struct {
	mu sync.Mutex

	// Script holds the events to emit, front to back. A nil entry emits no
	// event for that call.
	Script []*Event

	// Err, if non-nil, is returned by every ProcessFrame call.
	Err error

	// FrameCount counts ProcessFrame invocations.
	FrameCount int

	// Closed reports whether Close was called.
	Closed bool
}

var _ Detector = (*MockDetector)(nil)

func (m *MockDetector) ProcessFrame(audio.Frame) (*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FrameCount++
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Script) == 0 {
		return nil, nil
	}
	ev := m.Script[0]
	m.Script = m.Script[1:]
	return ev, nil
}

func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}
