package audio

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestFrameBytesRoundTrip(t *testing.T) {
	at := time.Now()
	f := Frame{Samples: []int16{0, 1, -1, 32767, -32768, 12345}, Time: at}

	got := FrameFromBytes(f.Bytes(), at)
	if len(got.Samples) != len(f.Samples) {
		t.Fatalf("round trip length = %d, want %d", len(got.Samples), len(f.Samples))
	}
	for i := range f.Samples {
		if got.Samples[i] != f.Samples[i] {
			t.Errorf("sample %d = %d, want %d", i, got.Samples[i], f.Samples[i])
		}
	}
}

func TestFrameFromBytesIgnoresTrailingOddByte(t *testing.T) {
	f := FrameFromBytes([]byte{0x34, 0x12, 0xff}, time.Time{})
	if len(f.Samples) != 1 || f.Samples[0] != 0x1234 {
		t.Errorf("Samples = %v, want [0x1234]", f.Samples)
	}
}

func TestFramePeriod(t *testing.T) {
	if FramePeriod != 32*time.Millisecond {
		t.Errorf("FramePeriod = %v, want 32ms", FramePeriod)
	}
}

func TestConcatSkipsErrorFrames(t *testing.T) {
	frames := []Frame{
		{Samples: []int16{1, 2}},
		{Err: errGap},
		{Samples: []int16{3}},
	}
	got := Concat(frames)
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Errorf("Concat = %v, want [1 2 3]", got)
	}
}

var errGap = errors.New("gap")

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v", got)
	}

	// A constant full-scale signal has RMS 1.
	loud := make([]int16, 100)
	for i := range loud {
		loud[i] = -32768
	}
	if got := RMS(loud); math.Abs(got-1) > 1e-9 {
		t.Errorf("full-scale RMS = %v, want 1", got)
	}

	half := make([]int16, 100)
	for i := range half {
		half[i] = 16384
	}
	if got := RMS(half); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("half-scale RMS = %v, want 0.5", got)
	}
}

func TestFrameRMSZeroForErrorFrames(t *testing.T) {
	if got := FrameRMS(Frame{Err: errGap, Samples: []int16{30000}}); got != 0 {
		t.Errorf("error frame RMS = %v, want 0", got)
	}
}

func TestFadeInRampsFromSilence(t *testing.T) {
	samples := make([]int16, SampleRate/10)
	for i := range samples {
		samples[i] = 10000
	}
	FadeIn(samples, SampleRate, DefaultFade)

	if samples[0] != 0 {
		t.Errorf("first faded sample = %d, want 0", samples[0])
	}
	n := int(time.Duration(SampleRate) * DefaultFade / time.Second)
	if samples[n] != 10000 {
		t.Errorf("sample past the fade window = %d, want untouched", samples[n])
	}
	if samples[n/2] <= 0 || samples[n/2] >= 10000 {
		t.Errorf("mid-ramp sample = %d, want between 0 and 10000", samples[n/2])
	}
}

func TestFadeOutEndsAtSilence(t *testing.T) {
	samples := make([]int16, SampleRate/10)
	for i := range samples {
		samples[i] = 10000
	}
	FadeOut(samples, SampleRate, DefaultFade)

	if last := samples[len(samples)-1]; last != 0 {
		t.Errorf("last faded sample = %d, want 0", last)
	}
	if samples[0] != 10000 {
		t.Errorf("sample before the fade window = %d, want untouched", samples[0])
	}
}

func TestFadeShorterThanWindow(t *testing.T) {
	samples := []int16{10000, 10000}
	FadeOut(samples, SampleRate, time.Second)
	if samples[len(samples)-1] != 0 {
		t.Errorf("short buffer not faded to silence: %v", samples)
	}
}

func TestPCMDuration(t *testing.T) {
	if got := PCMDuration(make([]int16, SampleRate), SampleRate); got != time.Second {
		t.Errorf("one second of samples = %v", got)
	}
	if got := PCMDuration([]int16{1, 2, 3}, 0); got != 0 {
		t.Errorf("zero rate duration = %v, want 0", got)
	}
}
