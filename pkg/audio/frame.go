// Package audio provides the PCM frame type and sample-level helpers shared
// by every stage of the voice pipeline.
//
// The canonical capture format is 16 kHz, 16-bit signed little-endian, mono,
// in fixed frames of 512 samples (32 ms). Frames are immutable once produced:
// consumers must not modify the Samples slice.
package audio

import (
	"time"
)

const (
	// SampleRate is the canonical capture sample rate in Hz.
	SampleRate = 16000

	// FrameSamples is the canonical number of samples per frame.
	FrameSamples = 512

	// BytesPerSample is fixed at 2 for 16-bit PCM.
	BytesPerSample = 2
)

// FramePeriod is the wall-clock duration of one canonical frame (32 ms).
const FramePeriod = time.Duration(FrameSamples) * time.Second / SampleRate

// Frame is a fixed-size chunk of mono PCM audio in capture order.
//
// A Frame with a non-nil Err carries no samples and marks a gap in the
// capture stream (device underrun or transient read failure). Consumers must
// check Err before touching Samples.
type Frame struct {
	// Samples holds signed 16-bit PCM samples. Length is FrameSamples for
	// healthy frames and zero for error frames.
	Samples []int16

	// Time is the capture timestamp of the first sample.
	Time time.Time

	// Err is non-nil when the frame marks a capture gap rather than audio.
	Err error
}

// Duration returns the play time of the frame at the canonical sample rate.
func (f Frame) Duration() time.Duration {
	return time.Duration(len(f.Samples)) * time.Second / SampleRate
}

// Bytes encodes the frame's samples as little-endian 16-bit PCM.
func (f Frame) Bytes() []byte {
	buf := make([]byte, len(f.Samples)*BytesPerSample)
	for i, s := range f.Samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}

// FrameFromBytes decodes little-endian 16-bit PCM bytes into a Frame stamped
// with the given capture time. Trailing odd bytes are ignored.
func FrameFromBytes(data []byte, at time.Time) Frame {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return Frame{Samples: samples, Time: at}
}

// Concat joins the samples of frames in order, skipping error frames.
// The result is a single contiguous PCM buffer suitable for STT input.
func Concat(frames []Frame) []int16 {
	n := 0
	for _, f := range frames {
		if f.Err == nil {
			n += len(f.Samples)
		}
	}
	out := make([]int16, 0, n)
	for _, f := range frames {
		if f.Err == nil {
			out = append(out, f.Samples...)
		}
	}
	return out
}

// PCMDuration returns the play time of a raw sample buffer at rate Hz.
func PCMDuration(samples []int16, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(len(samples)) * time.Second / time.Duration(rate)
}

// PCMBytes encodes raw samples as little-endian 16-bit PCM.
func PCMBytes(samples []int16) []byte {
	return Frame{Samples: samples}.Bytes()
}

// PCMFromBytes decodes little-endian 16-bit PCM bytes into samples.
func PCMFromBytes(data []byte) []int16 {
	return FrameFromBytes(data, time.Time{}).Samples
}
