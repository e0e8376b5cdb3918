package vad

import (
	"testing"
	"time"

	"github.com/weny945/home-pi/pkg/audio"
	modelvad "github.com/weny945/home-pi/pkg/provider/vad"
	vadmock "github.com/weny945/home-pi/pkg/provider/vad/mock"
)

func toneFrame(amplitude int16) audio.Frame {
	samples := make([]int16, audio.FrameSamples)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = amplitude
		} else {
			samples[i] = -amplitude
		}
	}
	return audio.Frame{Samples: samples}
}

func silenceFrame() audio.Frame {
	return audio.Frame{Samples: make([]int16, audio.FrameSamples)}
}

func TestClassifyPureEnergy(t *testing.T) {
	a := New(Config{}, nil, nil)

	if got := a.Classify(silenceFrame()); got != Silence {
		t.Errorf("silence frame classified as %v", got)
	}
	// Amplitude 8000 is RMS ~0.24, far above the 0.04 base threshold.
	if got := a.Classify(toneFrame(8000)); got != Speech {
		t.Errorf("loud frame classified as %v", got)
	}
}

func TestThresholdTracksNoiseFloor(t *testing.T) {
	a := New(Config{WindowFrames: 10}, nil, nil)

	base := a.Threshold()
	// Sub-threshold hum: amplitude 1000 is RMS ~0.031, below the 0.04 base.
	for i := 0; i < 10; i++ {
		a.Classify(toneFrame(1000))
	}
	if a.NoiseFloor() == 0 {
		t.Fatal("noise floor did not update from silence frames")
	}
	if got := a.Threshold(); got <= base {
		t.Errorf("threshold = %f, want above base %f after noisy floor", got, base)
	}
}

func TestThresholdClamped(t *testing.T) {
	a := New(Config{MaxThreshold: 0.05, WindowFrames: 5}, nil, nil)
	for i := 0; i < 5; i++ {
		a.Classify(silenceFrame())
	}
	// Force an absurd floor directly through config bounds.
	a.mu.Lock()
	a.window = []float64{0.9, 0.9, 0.9, 0.9, 0.9}
	a.mu.Unlock()
	if got := a.Threshold(); got != 0.05 {
		t.Errorf("threshold = %f, want clamped to 0.05", got)
	}

	b := New(Config{MinThreshold: 0.1}, nil, nil)
	if got := b.Threshold(); got != 0.1 {
		t.Errorf("threshold = %f, want raised to min 0.1", got)
	}
}

func TestTrimmedMeanDiscardsTransient(t *testing.T) {
	a := New(Config{WindowFrames: 50}, nil, nil)
	a.mu.Lock()
	for i := 0; i < 49; i++ {
		a.window = append(a.window, 0.01)
	}
	a.window = append(a.window, 0.8) // door slam
	a.mu.Unlock()

	if floor := a.NoiseFloor(); floor > 0.02 {
		t.Errorf("noise floor = %f, transient not trimmed", floor)
	}
}

func TestFrozenAdaptation(t *testing.T) {
	a := New(Config{}, nil, nil)
	a.SetFrozen(true)
	for i := 0; i < 10; i++ {
		a.Classify(toneFrame(1000))
	}
	if floor := a.NoiseFloor(); floor != 0 {
		t.Errorf("noise floor = %f, want 0 while frozen", floor)
	}

	a.SetFrozen(false)
	a.Classify(toneFrame(1000))
	if floor := a.NoiseFloor(); floor == 0 {
		t.Error("noise floor did not resume after unfreeze")
	}
}

func TestModelCombinesByAND(t *testing.T) {
	sess := &vadmock.Session{Fallback: modelvad.Result{Speech: false, Probability: 0.1}}
	a := New(Config{}, sess, nil)

	// Energy says speech, model says no: AND yields silence.
	if got := a.Classify(toneFrame(8000)); got != Silence {
		t.Errorf("model veto ignored, got %v", got)
	}
	if len(sess.Frames) != 1 {
		t.Errorf("model consulted %d times, want 1", len(sess.Frames))
	}

	// Below energy threshold the model is not consulted at all.
	a.Classify(silenceFrame())
	if len(sess.Frames) != 1 {
		t.Error("model consulted for sub-threshold frame")
	}

	// Model agreement passes through.
	sess.Fallback = modelvad.Result{Speech: true, Probability: 0.9}
	if got := a.Classify(toneFrame(8000)); got != Speech {
		t.Errorf("agreed frame classified as %v", got)
	}
}

func TestModelErrorFallsBackToEnergy(t *testing.T) {
	sess := &vadmock.Session{Err: modelvad.ErrSessionClosed}
	a := New(Config{}, sess, nil)
	if got := a.Classify(toneFrame(8000)); got != Speech {
		t.Errorf("model error should degrade to energy verdict, got %v", got)
	}
}

func TestPeriodicReset(t *testing.T) {
	a := New(Config{ResetInterval: time.Minute}, nil, nil)
	now := time.Now()
	a.now = func() time.Time { return now }

	a.Classify(toneFrame(1000))
	if a.NoiseFloor() == 0 {
		t.Fatal("floor not taught")
	}

	now = now.Add(2 * time.Minute)
	a.Classify(silenceFrame())
	a.mu.Lock()
	n := len(a.window)
	a.mu.Unlock()
	if n != 1 {
		t.Errorf("window length = %d after interval reset, want 1", n)
	}
}
