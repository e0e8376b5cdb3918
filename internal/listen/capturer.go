// Package listen captures one utterance from the microphone stream: it
// accumulates frames, endpoints on trailing silence, and applies the quality
// gates that decide whether the audio is worth sending to recognition.
package listen

import (
	"log/slog"
	"time"

	"github.com/weny945/home-pi/pkg/audio"
	"github.com/weny945/home-pi/pkg/vad"
)

// Condition is the capturer's lifecycle state, reported after every frame.
type Condition int

const (
	// Active means the capture is still running.
	Active Condition = iota

	// Endpointed means a complete utterance was captured.
	Endpointed

	// QualityRejected means the captured audio failed a quality gate; see
	// [Capturer.Rejection] for the kind.
	QualityRejected
)

func (c Condition) String() string {
	switch c {
	case Active:
		return "active"
	case Endpointed:
		return "endpointed"
	case QualityRejected:
		return "quality_rejected"
	default:
		return "unknown"
	}
}

// Classifier is the frame-level speech detector consumed by the capturer.
type Classifier interface {
	Classify(f audio.Frame) vad.Class
}

// Config tunes capture endpointing and the audio-level quality gates.
type Config struct {
	// MinSpeech is the contiguous speech required before endpointing arms,
	// and the total speech below which the capture is rejected as silence.
	MinSpeech time.Duration

	// Silence is the trailing-silence window that endpoints an utterance.
	Silence time.Duration

	// SmartSilence replaces Silence once valid speech has accumulated, so a
	// mid-sentence pause does not cut the user off. Zero disables smart
	// endpointing.
	SmartSilence time.Duration

	// MaxDuration bounds the whole capture; reaching it runs the quality
	// gates on whatever was heard, so a window of pure silence settles as a
	// silence rejection rather than a separate timeout.
	MaxDuration time.Duration

	// MinEnergy is the average-energy floor below which the capture is
	// rejected as a fragment.
	MinEnergy float64
}

func (c Config) withDefaults() Config {
	if c.MinSpeech <= 0 {
		c.MinSpeech = 300 * time.Millisecond
	}
	if c.Silence <= 0 {
		c.Silence = 1500 * time.Millisecond
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = 10 * time.Second
	}
	if c.MinEnergy <= 0 {
		c.MinEnergy = 0.008
	}
	return c
}

// Capturer assembles one utterance at a time. Begin resets it; Feed consumes
// frames until the returned Condition leaves Active. Not safe for concurrent
// use; the capture loop owns it.
type Capturer struct {
	cfg        Config
	classifier Classifier
	logger     *slog.Logger

	pcm       []int16
	start     time.Time
	cond      Condition
	rejection RejectKind

	totalFrames   int
	speechFrames  int
	runFrames     int // current contiguous speech run
	silenceFrames int // trailing silence since last speech
	armed         bool
	energySum     float64
}

// New creates a Capturer classifying frames through classifier.
func New(cfg Config, classifier Classifier, logger *slog.Logger) *Capturer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Capturer{cfg: cfg.withDefaults(), classifier: classifier, logger: logger}
}

// Begin starts a fresh capture. prefix, when non-empty, seeds the utterance
// with already-buffered audio (the barge-in tail) that counts as speech.
func (c *Capturer) Begin(prefix []int16) {
	c.pcm = c.pcm[:0]
	c.pcm = append(c.pcm, prefix...)
	c.start = time.Now()
	c.cond = Active
	c.rejection = 0
	c.totalFrames = 0
	c.speechFrames = 0
	c.runFrames = 0
	c.silenceFrames = 0
	c.energySum = 0

	if len(prefix) > 0 {
		frames := (len(prefix) + audio.FrameSamples - 1) / audio.FrameSamples
		c.totalFrames = frames
		c.speechFrames = frames
		c.armed = true
		c.energySum = audio.RMS(prefix) * float64(frames)
	} else {
		c.armed = false
	}
}

// Feed consumes one frame and returns the capture condition. Frames arriving
// after the capture has ended are ignored.
func (c *Capturer) Feed(f audio.Frame) Condition {
	if c.cond != Active {
		return c.cond
	}
	if f.Err != nil {
		// A capture gap neither advances the clock nor counts as silence.
		return c.cond
	}

	c.pcm = append(c.pcm, f.Samples...)
	c.totalFrames++
	c.energySum += audio.FrameRMS(f)

	if c.classifier.Classify(f) == vad.Speech {
		c.speechFrames++
		c.runFrames++
		c.silenceFrames = 0
		if !c.armed && c.runDuration() >= c.cfg.MinSpeech {
			c.armed = true
		}
	} else {
		c.runFrames = 0
		c.silenceFrames++
	}

	if c.armed && c.silenceDuration() >= c.silenceWindow() {
		c.finish()
		return c.cond
	}
	if c.totalDuration() >= c.cfg.MaxDuration {
		c.finish()
		return c.cond
	}
	return Active
}

// Condition returns the current capture condition.
func (c *Capturer) Condition() Condition { return c.cond }

// Rejection returns the gate that failed when Condition is QualityRejected.
func (c *Capturer) Rejection() RejectKind { return c.rejection }

// HeardSpeech reports whether any speech has been classified in the current
// capture. The follow-up window uses it to close early on pure silence
// without cutting off a user who started talking late.
func (c *Capturer) HeardSpeech() bool { return c.speechFrames > 0 }

// Utterance returns the captured PCM and its start time. Valid once the
// condition is Endpointed.
func (c *Capturer) Utterance() ([]int16, time.Time) {
	out := make([]int16, len(c.pcm))
	copy(out, c.pcm)
	return out, c.start
}

// finish applies the audio-level quality gates and settles the condition.
func (c *Capturer) finish() {
	if c.speechDuration() < c.cfg.MinSpeech {
		c.cond = QualityRejected
		c.rejection = RejectSilence
		return
	}
	if avg := c.averageEnergy(); avg < c.cfg.MinEnergy {
		c.logger.Debug("capture rejected as fragment", "avg_energy", avg)
		c.cond = QualityRejected
		c.rejection = RejectFragment
		return
	}
	c.cond = Endpointed
}

// silenceWindow picks the trailing-silence threshold: the smart window once
// valid speech has accumulated, the base window otherwise.
func (c *Capturer) silenceWindow() time.Duration {
	if c.cfg.SmartSilence > 0 && c.speechDuration() >= c.cfg.MinSpeech {
		return c.cfg.SmartSilence
	}
	return c.cfg.Silence
}

func (c *Capturer) averageEnergy() float64 {
	if c.totalFrames == 0 {
		return 0
	}
	return c.energySum / float64(c.totalFrames)
}

func (c *Capturer) totalDuration() time.Duration {
	return time.Duration(c.totalFrames) * audio.FramePeriod
}

func (c *Capturer) speechDuration() time.Duration {
	return time.Duration(c.speechFrames) * audio.FramePeriod
}

func (c *Capturer) runDuration() time.Duration {
	return time.Duration(c.runFrames) * audio.FramePeriod
}

func (c *Capturer) silenceDuration() time.Duration {
	return time.Duration(c.silenceFrames) * audio.FramePeriod
}
