// Package playback owns the speaker. The Player is the only component that
// writes to the output device; everything else requests playback through it.
package playback

import (
	"math"
	"sync"
	"time"

	"github.com/weny945/home-pi/pkg/audio"
)

// Sink is the thin handle over the output device. Write blocks for roughly
// the play time of the chunk, which is what lets Stop preempt a playback
// within one frame period.
type Sink interface {
	// Write plays one chunk of mono PCM at the given rate.
	Write(samples []int16, rate int) error
	Close() error
}

// PacedSink is the default sink: it paces writes against the wall clock at
// the chunk's play rate. The device binding itself (ALSA playback ioctls) is
// a build-time integration point, exactly as on the capture side.
type PacedSink struct {
	mu     sync.Mutex
	next   time.Time
	closed bool
}

// NewPacedSink creates a wall-clock paced sink.
func NewPacedSink() *PacedSink { return &PacedSink{} }

func (s *PacedSink) Write(samples []int16, rate int) error {
	if rate <= 0 {
		rate = audio.SampleRate
	}
	d := time.Duration(len(samples)) * time.Second / time.Duration(rate)

	s.mu.Lock()
	now := time.Now()
	if s.next.Before(now) {
		s.next = now
	}
	wait := s.next.Sub(now)
	s.next = s.next.Add(d)
	s.mu.Unlock()

	if wait > 0 {
		time.Sleep(wait)
	}
	return nil
}

func (s *PacedSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// MockSink records everything written to it, for tests.
type MockSink struct {
	mu      sync.Mutex
	samples []int16
	writes  int
}

func (s *MockSink) Write(samples []int16, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, samples...)
	s.writes++
	return nil
}

func (s *MockSink) Close() error { return nil }

// Samples returns a copy of all samples written so far.
func (s *MockSink) Samples() []int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int16, len(s.samples))
	copy(out, s.samples)
	return out
}

// Writes returns the number of Write calls observed.
func (s *MockSink) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// ringtone synthesises a simple two-tone chime: alternating 880 Hz and
// 660 Hz beeps with short gaps, one second per cycle.
func ringtone(rate int) []int16 {
	if rate <= 0 {
		rate = audio.SampleRate
	}
	beep := func(freq float64, d time.Duration) []int16 {
		n := int(time.Duration(rate) * d / time.Second)
		out := make([]int16, n)
		for i := range out {
			v := math.Sin(2 * math.Pi * freq * float64(i) / float64(rate))
			out[i] = int16(v * 0.4 * 32767)
		}
		audio.FadeIn(out, rate, 5*time.Millisecond)
		audio.FadeOut(out, rate, 5*time.Millisecond)
		return out
	}
	gap := make([]int16, rate/10)

	var cycle []int16
	cycle = append(cycle, beep(880, 200*time.Millisecond)...)
	cycle = append(cycle, gap...)
	cycle = append(cycle, beep(660, 200*time.Millisecond)...)
	cycle = append(cycle, gap...)
	return cycle
}
