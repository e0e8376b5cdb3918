// Package realtime provides the streaming synthesis tier over the DashScope
// realtime WebSocket API (qwen-tts-realtime). Audio arrives as base64 PCM
// deltas while the service is still synthesizing, which is what lets long
// replies start playing before synthesis finishes.
package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/weny945/home-pi/pkg/provider/tts"
)

const (
	defaultURL     = "wss://dashscope.aliyuncs.com/api-ws/v1/realtime"
	defaultModel   = "qwen-tts-realtime"
	defaultVoice   = "Cherry"
	defaultRate    = 24000
	defaultTimeout = 30 * time.Second
)

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// WithURL sets the WebSocket endpoint.
func WithURL(u string) Option {
	return func(e *Engine) { e.url = u }
}

// WithModel sets the realtime model name.
func WithModel(model string) Option {
	return func(e *Engine) { e.model = model }
}

// WithVoice sets the voice name.
func WithVoice(voice string) Option {
	return func(e *Engine) { e.voice = voice }
}

// WithSampleRate sets the PCM rate requested from the service.
func WithSampleRate(rate int) Option {
	return func(e *Engine) { e.rate = rate }
}

// WithConnectTimeout bounds the WebSocket dial. Defaults to 30 s.
func WithConnectTimeout(d time.Duration) Option {
	return func(e *Engine) { e.connectTimeout = d }
}

// Engine implements tts.StreamingEngine over the realtime WebSocket.
type Engine struct {
	apiKey         string
	url            string
	model          string
	voice          string
	rate           int
	connectTimeout time.Duration
	logger         *slog.Logger
}

var _ tts.StreamingEngine = (*Engine)(nil)

// New creates a realtime Engine. apiKey must be non-empty.
func New(apiKey string, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if apiKey == "" {
		return nil, errors.New("realtime: apiKey must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		apiKey:         apiKey,
		url:            defaultURL,
		model:          defaultModel,
		voice:          defaultVoice,
		rate:           defaultRate,
		connectTimeout: defaultTimeout,
		logger:         logger,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

func (e *Engine) Name() string { return "realtime" }

func (e *Engine) Voice() string { return e.model + "/" + e.voice }

func (e *Engine) SampleRate() int { return e.rate }

// sessionUpdate configures voice and output format right after connect.
type sessionUpdate struct {
	Type    string  `json:"type"`
	Session session `json:"session"`
}

type session struct {
	Voice        string `json:"voice"`
	OutputFormat string `json:"response_format"`
	SampleRate   int    `json:"sample_rate"`
	Mode         string `json:"mode"`
}

// textAppend delivers one text fragment for synthesis.
type textAppend struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// serverEvent is the envelope of every message the service sends.
type serverEvent struct {
	Type  string `json:"type"`
	Audio string `json:"audio,omitempty"` // base64 16-bit little-endian PCM
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Synthesize accumulates the stream into one clip, so the engine also
// serves as a plain batch backend when the caller does not stream.
func (e *Engine) Synthesize(ctx context.Context, text string) (tts.Clip, error) {
	ch, err := e.SynthesizeStream(ctx, text)
	if err != nil {
		return tts.Clip{}, err
	}
	var pcm []int16
	for chunk := range ch {
		pcm = append(pcm, chunk...)
	}
	if err := ctx.Err(); err != nil {
		return tts.Clip{}, err
	}
	if len(pcm) == 0 {
		return tts.Clip{}, errors.New("realtime: no audio produced")
	}
	return tts.Clip{PCM: pcm, Rate: e.rate}, nil
}

// SynthesizeStream opens the WebSocket, sends the session config and the
// text, and returns a channel of decoded PCM chunks. The channel is closed
// on response.done, on error, or when ctx is cancelled.
func (e *Engine) SynthesizeStream(ctx context.Context, text string) (<-chan []int16, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("realtime: text must not be empty")
	}

	dialCtx, cancel := context.WithTimeout(ctx, e.connectTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, e.endpointURL(), &websocket.DialOptions{
		HTTPHeader: map[string][]string{
			"Authorization": {"Bearer " + e.apiKey},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("realtime: dial: %w: %v", tts.ErrUnavailable, err)
	}
	// Audio deltas for a full reply can exceed the default read limit.
	conn.SetReadLimit(1 << 22)

	cfg, _ := json.Marshal(sessionUpdate{
		Type: "session.update",
		Session: session{
			Voice:        e.voice,
			OutputFormat: "pcm",
			SampleRate:   e.rate,
			Mode:         "server_commit",
		},
	})
	if err := conn.Write(ctx, websocket.MessageText, cfg); err != nil {
		conn.Close(websocket.StatusInternalError, "session config failed")
		return nil, fmt.Errorf("realtime: send session config: %w", err)
	}

	appendMsg, _ := json.Marshal(textAppend{Type: "input_text_buffer.append", Text: text})
	if err := conn.Write(ctx, websocket.MessageText, appendMsg); err != nil {
		conn.Close(websocket.StatusInternalError, "text append failed")
		return nil, fmt.Errorf("realtime: send text: %w", err)
	}
	finish, _ := json.Marshal(map[string]string{"type": "input_text_buffer.finish"})
	if err := conn.Write(ctx, websocket.MessageText, finish); err != nil {
		conn.Close(websocket.StatusInternalError, "finish failed")
		return nil, fmt.Errorf("realtime: send finish: %w", err)
	}

	out := make(chan []int16, 64)
	go func() {
		defer close(out)
		defer conn.Close(websocket.StatusNormalClosure, "done")
		for {
			_, msg, err := conn.Read(ctx)
			if err != nil {
				if ctx.Err() == nil {
					e.logger.Warn("realtime tts read failed", "error", err)
				}
				return
			}
			var ev serverEvent
			if err := json.Unmarshal(msg, &ev); err != nil {
				continue
			}
			switch {
			case ev.Error != nil:
				e.logger.Warn("realtime tts server error", "message", ev.Error.Message)
				return
			case ev.Type == "response.done" || ev.Type == "session.finished":
				return
			case ev.Audio != "":
				raw, err := base64.StdEncoding.DecodeString(ev.Audio)
				if err != nil || len(raw) < 2 {
					continue
				}
				chunk := make([]int16, len(raw)/2)
				for i := range chunk {
					chunk[i] = int16(raw[2*i]) | int16(raw[2*i+1])<<8
				}
				select {
				case out <- chunk:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (e *Engine) endpointURL() string {
	return e.url + "?model=" + url.QueryEscape(e.model)
}
