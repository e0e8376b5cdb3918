package audio

import "time"

// DefaultFade is the fade window applied at playback edges to avoid clicks.
const DefaultFade = 20 * time.Millisecond

// FadeIn applies a linear gain ramp from 0 to 1 over the first d of the
// buffer, in place. Buffers shorter than the window are faded end to end.
func FadeIn(samples []int16, rate int, d time.Duration) {
	n := fadeSamples(len(samples), rate, d)
	for i := 0; i < n; i++ {
		samples[i] = int16(float64(samples[i]) * float64(i) / float64(n))
	}
}

// FadeOut applies a linear gain ramp from 1 to 0 over the last d of the
// buffer, in place.
func FadeOut(samples []int16, rate int, d time.Duration) {
	n := fadeSamples(len(samples), rate, d)
	off := len(samples) - n
	for i := 0; i < n; i++ {
		samples[off+i] = int16(float64(samples[off+i]) * float64(n-1-i) / float64(n))
	}
}

func fadeSamples(total, rate int, d time.Duration) int {
	if rate <= 0 {
		rate = SampleRate
	}
	n := int(time.Duration(rate) * d / time.Second)
	if n > total {
		n = total
	}
	if n < 1 {
		n = 0
	}
	return n
}
