package capture

import (
	"context"
	"sync"
	"time"

	"github.com/weny945/home-pi/pkg/audio"
)

// MockSource is an in-memory Source for tests. Frames are queued with Push
// and delivered in order; when the queue runs dry the source delivers
// silence so consumers that poll forever do not block.
type MockSource struct {
	mu      sync.Mutex
	queue   []audio.Frame
	frames  chan audio.Frame
	started bool
	stopped bool
}

var _ Source = (*MockSource)(nil)

// NewMock creates an empty MockSource.
func NewMock() *MockSource {
	return &MockSource{frames: make(chan audio.Frame, 64)}
}

// Push queues frames for delivery in order.
func (m *MockSource) Push(frames ...audio.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, frames...)
}

// PushPCM queues raw samples split into canonical frames.
func (m *MockSource) PushPCM(samples []int16) {
	for off := 0; off < len(samples); off += audio.FrameSamples {
		end := off + audio.FrameSamples
		if end > len(samples) {
			end = len(samples)
		}
		frame := make([]int16, audio.FrameSamples)
		copy(frame, samples[off:end])
		m.Push(audio.Frame{Samples: frame, Time: time.Now()})
	}
}

// PushSilence queues n silent frames.
func (m *MockSource) PushSilence(n int) {
	for i := 0; i < n; i++ {
		m.Push(audio.Frame{Samples: make([]int16, audio.FrameSamples), Time: time.Now()})
	}
}

// PushTone queues n frames of a constant-amplitude square tone, useful for
// driving the energy VAD above threshold.
func (m *MockSource) PushTone(n int, amplitude int16) {
	for i := 0; i < n; i++ {
		frame := make([]int16, audio.FrameSamples)
		for j := range frame {
			if j%2 == 0 {
				frame[j] = amplitude
			} else {
				frame[j] = -amplitude
			}
		}
		m.Push(audio.Frame{Samples: frame, Time: time.Now()})
	}
}

func (m *MockSource) Start(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	return nil
}

func (m *MockSource) Read(ctx context.Context) (audio.Frame, error) {
	if err := ctx.Err(); err != nil {
		return audio.Frame{}, err
	}
	return m.nextFrame(), nil
}

func (m *MockSource) nextFrame() audio.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) > 0 {
		f := m.queue[0]
		m.queue = m.queue[1:]
		return f
	}
	return audio.Frame{Samples: make([]int16, audio.FrameSamples), Time: time.Now()}
}

func (m *MockSource) Frames() <-chan audio.Frame { return m.frames }

func (m *MockSource) Drain(max int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.queue)
	if n > max {
		n = max
	}
	m.queue = m.queue[n:]
	return n
}

// Pending reports how many queued frames remain undelivered.
func (m *MockSource) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	return nil
}

func (m *MockSource) Close() error { return m.Stop() }

func (m *MockSource) Name() string { return "mock" }
