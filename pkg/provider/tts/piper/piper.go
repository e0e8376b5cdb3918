// Package piper provides the local synthesis tier: it drives a Piper binary
// as a subprocess, writing text on stdin and reading raw 16-bit PCM from
// stdout. Piper keeps working with no network, which is what makes it the
// bottom tier of the dispatcher's fallback chain.
package piper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/weny945/home-pi/pkg/provider/tts"
)

const defaultSampleRate = 16000

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// WithBinary sets the piper executable path. Defaults to "piper" on PATH.
func WithBinary(path string) Option {
	return func(e *Engine) { e.binary = path }
}

// WithSampleRate sets the output rate requested from piper. Defaults to
// 16000 to match the playback path.
func WithSampleRate(rate int) Option {
	return func(e *Engine) { e.rate = rate }
}

// WithSpeaker selects a speaker ID inside a multi-speaker model.
func WithSpeaker(id int) Option {
	return func(e *Engine) {
		e.speaker = id
		e.hasSpeaker = true
	}
}

// Engine implements tts.Engine over a piper subprocess.
type Engine struct {
	modelPath  string
	binary     string
	rate       int
	speaker    int
	hasSpeaker bool
}

var _ tts.Engine = (*Engine)(nil)

// New creates a piper Engine for the given voice model (.onnx file).
func New(modelPath string, opts ...Option) (*Engine, error) {
	if modelPath == "" {
		return nil, errors.New("piper: modelPath must not be empty")
	}
	e := &Engine{
		modelPath: modelPath,
		binary:    "piper",
		rate:      defaultSampleRate,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

func (e *Engine) Name() string { return "piper" }

// Voice is the model file name without extension, e.g. "zh_CN-huayan-medium".
func (e *Engine) Voice() string {
	base := filepath.Base(e.modelPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (e *Engine) SampleRate() int { return e.rate }

// Synthesize runs one piper invocation. Piper exits after reading stdin to
// EOF, so each call is a fresh short-lived process.
func (e *Engine) Synthesize(ctx context.Context, text string) (tts.Clip, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return tts.Clip{}, errors.New("piper: text must not be empty")
	}
	if _, err := os.Stat(e.modelPath); err != nil {
		return tts.Clip{}, fmt.Errorf("piper: model %q: %w", e.modelPath, tts.ErrUnavailable)
	}

	args := []string{
		"--model", e.modelPath,
		"--output-raw",
		"--sample-rate", strconv.Itoa(e.rate),
	}
	if e.hasSpeaker {
		args = append(args, "--speaker", strconv.Itoa(e.speaker))
	}

	cmd := exec.CommandContext(ctx, e.binary, args...)
	cmd.Stdin = strings.NewReader(text + "\n")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return tts.Clip{}, fmt.Errorf("piper: binary %q: %w", e.binary, tts.ErrUnavailable)
		}
		if ctx.Err() != nil {
			return tts.Clip{}, ctx.Err()
		}
		return tts.Clip{}, fmt.Errorf("piper: run: %w (stderr: %s)", err, firstLine(stderr.String()))
	}

	raw := stdout.Bytes()
	if len(raw) < 2 {
		return tts.Clip{}, errors.New("piper: no audio produced")
	}
	pcm := make([]int16, len(raw)/2)
	for i := range pcm {
		pcm[i] = int16(raw[2*i]) | int16(raw[2*i+1])<<8
	}
	return tts.Clip{PCM: pcm, Rate: e.rate}, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
