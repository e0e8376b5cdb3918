package listen

import (
	"errors"
	"testing"
	"time"

	"github.com/weny945/home-pi/pkg/audio"
	"github.com/weny945/home-pi/pkg/vad"
)

// energyClassifier calls any non-silent frame speech, keeping tests
// independent of the adaptive threshold.
type energyClassifier struct{}

func (energyClassifier) Classify(f audio.Frame) vad.Class {
	if audio.FrameRMS(f) > 0 {
		return vad.Speech
	}
	return vad.Silence
}

func speechFrame(amplitude int16) audio.Frame {
	samples := make([]int16, audio.FrameSamples)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = amplitude
		} else {
			samples[i] = -amplitude
		}
	}
	return audio.Frame{Samples: samples, Time: time.Now()}
}

func silentFrame() audio.Frame {
	return audio.Frame{Samples: make([]int16, audio.FrameSamples), Time: time.Now()}
}

func feed(c *Capturer, f audio.Frame, n int) Condition {
	cond := c.Condition()
	for i := 0; i < n; i++ {
		cond = c.Feed(f)
		if cond != Active {
			return cond
		}
	}
	return cond
}

func newCapturer(cfg Config) *Capturer {
	return New(cfg, energyClassifier{}, nil)
}

func TestEndpointsAfterTrailingSilence(t *testing.T) {
	c := newCapturer(Config{})
	c.Begin(nil)

	if cond := feed(c, speechFrame(8000), 20); cond != Active {
		t.Fatalf("condition during speech = %v", cond)
	}
	// 1.5 s of silence is 47 frames.
	cond := feed(c, silentFrame(), 47)
	if cond != Endpointed {
		t.Fatalf("condition after trailing silence = %v", cond)
	}

	pcm, _ := c.Utterance()
	if len(pcm) != 67*audio.FrameSamples {
		t.Errorf("utterance length = %d samples, want %d", len(pcm), 67*audio.FrameSamples)
	}
}

func TestSmartSilenceExtendsWindow(t *testing.T) {
	c := newCapturer(Config{SmartSilence: 2 * time.Second})
	c.Begin(nil)

	feed(c, speechFrame(8000), 20)
	// 1.5 s of silence must not endpoint in smart mode.
	if cond := feed(c, silentFrame(), 47); cond != Active {
		t.Fatalf("endpointed at base window despite smart mode: %v", cond)
	}
	if cond := feed(c, silentFrame(), 16); cond != Endpointed {
		t.Errorf("condition after smart window = %v", cond)
	}
}

func TestShortSpeechDoesNotArmEndpointing(t *testing.T) {
	c := newCapturer(Config{})
	c.Begin(nil)

	// 5 frames (160 ms) is under the 300 ms arming requirement.
	feed(c, speechFrame(8000), 5)
	if cond := feed(c, silentFrame(), 60); cond != Active {
		t.Errorf("endpointed from an unarmed capture: %v", cond)
	}
}

func TestSilentWindowRejectedAtMaxDuration(t *testing.T) {
	c := newCapturer(Config{})
	c.Begin(nil)

	// 10 s of nothing but silence: the cap closes the window and the gates
	// classify it, so the caller gets a silence rejection to re-prompt on.
	cond := feed(c, silentFrame(), 313)
	if cond != QualityRejected {
		t.Fatalf("condition = %v, want QualityRejected", cond)
	}
	if c.Rejection() != RejectSilence {
		t.Errorf("rejection = %v, want silence", c.Rejection())
	}
}

func TestMaxDurationForcesEndpoint(t *testing.T) {
	c := newCapturer(Config{MaxDuration: 2 * time.Second})
	c.Begin(nil)

	// Continuous speech never yields trailing silence; the cap ends it.
	cond := feed(c, speechFrame(8000), 100)
	if cond != Endpointed {
		t.Errorf("condition = %v, want Endpointed at max duration", cond)
	}
}

func TestRejectsLowEnergyFragment(t *testing.T) {
	c := newCapturer(Config{})
	c.Begin(nil)

	// Amplitude 100 is RMS ~0.003, real speech frames but under min_energy.
	feed(c, speechFrame(100), 20)
	cond := feed(c, silentFrame(), 47)
	if cond != QualityRejected {
		t.Fatalf("condition = %v, want QualityRejected", cond)
	}
	if c.Rejection() != RejectFragment {
		t.Errorf("rejection = %v, want fragment", c.Rejection())
	}
}

func TestBargeInPrefixCountsAsSpeech(t *testing.T) {
	c := newCapturer(Config{})
	tail := make([]int16, audio.FrameSamples*30)
	for i := range tail {
		if i%2 == 0 {
			tail[i] = 6000
		} else {
			tail[i] = -6000
		}
	}
	c.Begin(tail)

	// Endpointing is armed by the prefix alone.
	cond := feed(c, silentFrame(), 47)
	if cond != Endpointed {
		t.Fatalf("condition = %v, want Endpointed from prefix speech", cond)
	}
	pcm, _ := c.Utterance()
	if len(pcm) < len(tail) {
		t.Error("prefix missing from utterance")
	}
}

func TestErrorFramesIgnored(t *testing.T) {
	c := newCapturer(Config{MaxDuration: time.Second})
	c.Begin(nil)

	for i := 0; i < 500; i++ {
		if cond := c.Feed(audio.Frame{Err: errors.New("underrun")}); cond != Active {
			t.Fatalf("error frame advanced capture to %v", cond)
		}
	}
}

func TestFeedAfterEndIsNoop(t *testing.T) {
	c := newCapturer(Config{MaxDuration: time.Second})
	c.Begin(nil)
	feed(c, silentFrame(), 100)
	if c.Condition() != QualityRejected {
		t.Fatal("setup: capture did not close at max duration")
	}
	if cond := c.Feed(speechFrame(8000)); cond != QualityRejected {
		t.Errorf("condition after end = %v", cond)
	}
}
