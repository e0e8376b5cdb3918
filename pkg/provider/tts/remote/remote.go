// Package remote provides the non-streaming cloud synthesis tier over an
// OpenAI-compatible speech endpoint (POST {base}/audio/speech). Both
// api.openai.com and the DashScope compatible mode serve this shape, so one
// engine covers the remote and remote-cloud configurations.
package remote

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/weny945/home-pi/pkg/provider/tts"
)

const (
	defaultBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	defaultModel   = "qwen-tts"
	defaultVoice   = "Cherry"
	defaultTimeout = 30 * time.Second
)

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// WithBaseURL sets the API base URL (without the /audio/speech suffix).
func WithBaseURL(url string) Option {
	return func(e *Engine) { e.baseURL = strings.TrimRight(url, "/") }
}

// WithModel sets the synthesis model name.
func WithModel(model string) Option {
	return func(e *Engine) { e.model = model }
}

// WithVoice sets the voice name.
func WithVoice(voice string) Option {
	return func(e *Engine) { e.voice = voice }
}

// WithTimeout bounds each synthesis request. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.client.Timeout = d }
}

// WithSpeed sets the speaking rate multiplier (1.0 = normal).
func WithSpeed(speed float64) Option {
	return func(e *Engine) { e.speed = speed }
}

// Engine implements tts.Engine against an OpenAI-compatible speech endpoint.
type Engine struct {
	apiKey  string
	baseURL string
	model   string
	voice   string
	speed   float64
	client  *http.Client
}

var _ tts.Engine = (*Engine)(nil)

// New creates a remote Engine. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Engine, error) {
	if apiKey == "" {
		return nil, errors.New("remote: apiKey must not be empty")
	}
	e := &Engine{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		model:   defaultModel,
		voice:   defaultVoice,
		speed:   1.0,
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

func (e *Engine) Name() string { return "remote" }

func (e *Engine) Voice() string { return e.model + "/" + e.voice }

// SampleRate reports the rate of the decoded WAV payloads; the actual rate
// comes from each response header and is returned on the Clip.
func (e *Engine) SampleRate() int { return 24000 }

// speechRequest is the JSON body for POST /audio/speech.
type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed,omitempty"`
}

// Synthesize posts the text and decodes the WAV response into PCM.
func (e *Engine) Synthesize(ctx context.Context, text string) (tts.Clip, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return tts.Clip{}, errors.New("remote: text must not be empty")
	}

	body, err := json.Marshal(speechRequest{
		Model:          e.model,
		Input:          text,
		Voice:          e.voice,
		ResponseFormat: "wav",
		Speed:          e.speed,
	})
	if err != nil {
		return tts.Clip{}, fmt.Errorf("remote: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return tts.Clip{}, fmt.Errorf("remote: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("remote: %w: %v", tts.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return tts.Clip{}, fmt.Errorf("remote: status %d: %w", resp.StatusCode, tts.ErrUnavailable)
		}
		return tts.Clip{}, fmt.Errorf("remote: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("remote: read body: %w", err)
	}
	pcm, rate, err := decodeWAV(wav)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("remote: %w", err)
	}
	return tts.Clip{PCM: pcm, Rate: rate}, nil
}

// CheckHealth verifies the endpoint answers; used by the health monitor.
func (e *Engine) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("remote: build health request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("remote: health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("remote: health status %d", resp.StatusCode)
	}
	return nil
}

// decodeWAV extracts 16-bit mono PCM and the sample rate from a RIFF/WAVE
// payload. Stereo input is downmixed by taking the first channel.
func decodeWAV(data []byte) ([]int16, int, error) {
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, errors.New("decode wav: not a RIFF/WAVE payload")
	}

	var (
		rate     int
		channels int
		bits     int
		pcmBytes []byte
	)
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			size = len(data) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, errors.New("decode wav: short fmt chunk")
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			rate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			pcmBytes = data[body : body+size]
		}
		// Chunks are word-aligned.
		off = body + size + size%2
	}

	if rate == 0 || pcmBytes == nil {
		return nil, 0, errors.New("decode wav: missing fmt or data chunk")
	}
	if bits != 16 {
		return nil, 0, fmt.Errorf("decode wav: unsupported bit depth %d", bits)
	}
	if channels <= 0 {
		channels = 1
	}

	frames := len(pcmBytes) / (2 * channels)
	pcm := make([]int16, frames)
	for i := 0; i < frames; i++ {
		o := i * 2 * channels
		pcm[i] = int16(pcmBytes[o]) | int16(pcmBytes[o+1])<<8
	}
	return pcm, rate, nil
}
