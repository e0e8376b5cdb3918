package audio

import "math"

// fullScale normalises 16-bit samples into [-1, 1].
const fullScale = 32768.0

// RMS returns the root-mean-square energy of the samples on a normalised
// [0, 1] scale. An empty slice yields 0.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / fullScale
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// FrameRMS returns the normalised RMS energy of a frame. Error frames have
// zero energy.
func FrameRMS(f Frame) float64 {
	if f.Err != nil {
		return 0
	}
	return RMS(f.Samples)
}
