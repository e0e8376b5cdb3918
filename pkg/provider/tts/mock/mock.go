// Package mock provides test doubles for the tts package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/weny945/home-pi/pkg/provider/tts"
)

// Engine is a scripted tts.StreamingEngine for tests.
type Engine struct {
	mu sync.Mutex

	// EngineName, VoiceName, and Rate feed the identity methods. Zero values
	// default to "mock", "voice", 16000.
	EngineName string
	VoiceName  string
	Rate       int

	// Clip is returned by Synthesize when Err is nil. When Clip is empty a
	// short non-silent clip is fabricated so playback paths have audio.
	Clip tts.Clip

	// Err, if non-nil, is returned by Synthesize and SynthesizeStream.
	Err error

	// ChunkSamples splits the streamed clip; zero streams it whole.
	ChunkSamples int

	// Delay, if set, is how long Synthesize blocks (honouring ctx).
	Delay func(ctx context.Context) error

	// Requests records every synthesized text in order.
	Requests []string
}

var _ tts.StreamingEngine = (*Engine)(nil)

func (e *Engine) Name() string {
	if e.EngineName == "" {
		return "mock"
	}
	return e.EngineName
}

func (e *Engine) Voice() string {
	if e.VoiceName == "" {
		return "voice"
	}
	return e.VoiceName
}

func (e *Engine) SampleRate() int {
	if e.Rate == 0 {
		return 16000
	}
	return e.Rate
}

func (e *Engine) Synthesize(ctx context.Context, text string) (tts.Clip, error) {
	e.mu.Lock()
	e.Requests = append(e.Requests, text)
	clip, errOut, delay := e.Clip, e.Err, e.Delay
	e.mu.Unlock()

	if delay != nil {
		if err := delay(ctx); err != nil {
			return tts.Clip{}, err
		}
	}
	if errOut != nil {
		return tts.Clip{}, errOut
	}
	if clip.Empty() {
		clip = tts.Clip{PCM: fabricate(len(text)), Rate: e.SampleRate()}
	}
	if clip.Rate == 0 {
		clip.Rate = e.SampleRate()
	}
	return clip, nil
}

func (e *Engine) SynthesizeStream(ctx context.Context, text string) (<-chan []int16, error) {
	clip, err := e.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	out := make(chan []int16, 8)
	go func() {
		defer close(out)
		step := e.ChunkSamples
		if step <= 0 {
			step = len(clip.PCM)
		}
		for off := 0; off < len(clip.PCM); off += step {
			end := off + step
			if end > len(clip.PCM) {
				end = len(clip.PCM)
			}
			select {
			case out <- clip.PCM[off:end]:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RequestCount returns how many synthesis calls were made.
func (e *Engine) RequestCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Requests)
}

// fabricate builds a deterministic non-silent clip sized to the text.
func fabricate(n int) []int16 {
	if n < 1 {
		n = 1
	}
	pcm := make([]int16, n*160)
	for i := range pcm {
		pcm[i] = int16((i%64 - 32) * 100)
	}
	return pcm
}
