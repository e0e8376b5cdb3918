// This file contains the native Recognizer backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/weny945/home-pi/pkg/provider/stt"
)

const defaultLanguage = "zh"

// NativeOption is a functional option for configuring a Native recognizer.
type NativeOption func(*Native)

// WithNativeLanguage sets the language code for transcription (e.g. "zh",
// "en"). Defaults to "zh".
func WithNativeLanguage(lang string) NativeOption {
	return func(n *Native) { n.language = lang }
}

// WithNativeThreads caps whisper inference threads. Zero lets the bindings
// pick, which on a small board means all cores.
func WithNativeThreads(threads int) NativeOption {
	return func(n *Native) { n.threads = threads }
}

// Native implements stt.Recognizer in-process through whisper.cpp. The model
// is loaded once and shared; each Transcribe call runs on its own whisper
// context, so concurrent calls do not interfere.
type Native struct {
	model    whisperlib.Model
	language string
	threads  int
}

var _ stt.Recognizer = (*Native)(nil)

// NewNative loads the whisper.cpp model from modelPath. The caller must call
// Close when the recognizer is no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*Native, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	n := &Native{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(n)
	}
	return n, nil
}

func (n *Native) Name() string { return "whisper-native" }

// Transcribe runs one batch inference. Cancellation is checked before the
// compute call; whisper.cpp itself cannot be interrupted mid-inference.
func (n *Native) Transcribe(ctx context.Context, samples []int16) (stt.Result, error) {
	if len(samples) == 0 {
		return stt.Result{}, errors.New("whisper: empty audio")
	}
	if err := ctx.Err(); err != nil {
		return stt.Result{}, err
	}

	wctx, err := n.model.NewContext()
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(n.language); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: set language %q: %w", n.language, err)
	}
	if n.threads > 0 {
		wctx.SetThreads(uint(n.threads))
	}

	start := time.Now()
	if err := wctx.Process(samplesToFloat32(samples), nil, nil, nil); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Result{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	if err := ctx.Err(); err != nil {
		// Deadline passed during inference; the caller discards the result.
		return stt.Result{}, err
	}
	return stt.Result{
		Text:    strings.Join(parts, " "),
		Audio:   time.Duration(len(samples)) * time.Second / 16000,
		Elapsed: time.Since(start),
	}, nil
}

// Close releases the whisper model.
func (n *Native) Close() error {
	if n.model != nil {
		return n.model.Close()
	}
	return nil
}
