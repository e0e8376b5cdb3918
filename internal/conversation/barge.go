package conversation

import (
	"time"

	"github.com/weny945/home-pi/internal/listen"
	"github.com/weny945/home-pi/pkg/audio"
	"github.com/weny945/home-pi/pkg/vad"
)

// BargeConfig tunes barge-in detection during assistant speech. Barge-in is
// only meaningful on boards with hardware echo cancellation; without it the
// microphone mostly hears the assistant's own voice.
type BargeConfig struct {
	// SampleEvery classifies one frame in this many, keeping the check
	// cheap while playback runs. Default: 10.
	SampleEvery int

	// MinSpeech is the sustained speech required to confirm a barge-in.
	// Default: 300 ms.
	MinSpeech time.Duration

	// Tail is how much recent audio is retained and handed to the capturer
	// when a barge-in fires, so the start of the interruption is not lost.
	// Default: 2 s.
	Tail time.Duration
}

func (c BargeConfig) withDefaults() BargeConfig {
	if c.SampleEvery <= 0 {
		c.SampleEvery = 10
	}
	if c.MinSpeech <= 0 {
		c.MinSpeech = 300 * time.Millisecond
	}
	if c.Tail <= 0 {
		c.Tail = 2 * time.Second
	}
	return c
}

// BargeDetector watches frames during assistant speech for the user talking
// over the reply. Not safe for concurrent use; the loop owns it.
type BargeDetector struct {
	cfg        BargeConfig
	classifier listen.Classifier

	tail    [][]int16
	tailMax int
	count   int
	run     time.Duration
}

// NewBargeDetector creates a detector classifying sampled frames through
// classifier.
func NewBargeDetector(cfg BargeConfig, classifier listen.Classifier) *BargeDetector {
	cfg = cfg.withDefaults()
	tailMax := int(cfg.Tail / audio.FramePeriod)
	if tailMax < 1 {
		tailMax = 1
	}
	return &BargeDetector{cfg: cfg, classifier: classifier, tailMax: tailMax}
}

// Observe consumes one frame and reports whether a barge-in is confirmed.
// Every frame lands in the tail buffer; only every SampleEvery-th frame is
// classified, and each positive sample credits the speech run with the full
// sampling stride.
func (b *BargeDetector) Observe(f audio.Frame) bool {
	if f.Err != nil {
		return false
	}

	samples := make([]int16, len(f.Samples))
	copy(samples, f.Samples)
	b.tail = append(b.tail, samples)
	if len(b.tail) > b.tailMax {
		b.tail = b.tail[len(b.tail)-b.tailMax:]
	}

	b.count++
	if b.count%b.cfg.SampleEvery != 0 {
		return false
	}
	if b.classifier.Classify(f) == vad.Speech {
		b.run += time.Duration(b.cfg.SampleEvery) * audio.FramePeriod
	} else {
		b.run = 0
	}
	return b.run >= b.cfg.MinSpeech
}

// Tail returns the buffered audio oldest-first. The capturer seeds the
// interrupting utterance with it.
func (b *BargeDetector) Tail() []int16 {
	n := 0
	for _, f := range b.tail {
		n += len(f)
	}
	out := make([]int16, 0, n)
	for _, f := range b.tail {
		out = append(out, f...)
	}
	return out
}

// Reset clears the tail and the speech run for a fresh playback.
func (b *BargeDetector) Reset() {
	b.tail = b.tail[:0]
	b.count = 0
	b.run = 0
}
