// This file contains the Server recognizer, which talks to a running
// whisper-server binary over its REST API (POST /inference). It serves as
// the remote recognition tier when a beefier machine on the network hosts a
// larger model than the board can run.

package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/weny945/home-pi/pkg/provider/stt"
)

const defaultServerTimeout = 5 * time.Second

// ServerOption is a functional option for configuring a Server recognizer.
type ServerOption func(*Server)

// WithServerLanguage sets the language code sent with each request.
func WithServerLanguage(lang string) ServerOption {
	return func(s *Server) { s.language = lang }
}

// WithServerTimeout bounds each inference request. Defaults to 5 s.
func WithServerTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.client.Timeout = d }
}

// Server implements stt.Recognizer against a whisper-server REST endpoint.
type Server struct {
	baseURL  string
	language string
	client   *http.Client
}

var _ stt.Recognizer = (*Server)(nil)

// NewServer creates a Server recognizer for the given base URL, e.g.
// "http://192.168.1.20:8080".
func NewServer(baseURL string, opts ...ServerOption) (*Server, error) {
	if baseURL == "" {
		return nil, errors.New("whisper: baseURL must not be empty")
	}
	s := &Server{
		baseURL:  strings.TrimRight(baseURL, "/"),
		language: defaultLanguage,
		client:   &http.Client{Timeout: defaultServerTimeout},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Server) Name() string { return "whisper-server" }

// inferenceResponse is the JSON body whisper-server returns.
type inferenceResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// Transcribe uploads the utterance as a WAV file and returns the text.
func (s *Server) Transcribe(ctx context.Context, samples []int16) (stt.Result, error) {
	if len(samples) == 0 {
		return stt.Result{}, errors.New("whisper: empty audio")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: build upload: %w", err)
	}
	if _, err := fw.Write(encodeWAV(samples, 16000)); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: build upload: %w", err)
	}
	_ = mw.WriteField("language", s.language)
	_ = mw.WriteField("response_format", "json")
	if err := mw.Close(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/inference", &body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: inference request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return stt.Result{}, fmt.Errorf("whisper: server status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var ir inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: decode response: %w", err)
	}
	if ir.Error != "" {
		return stt.Result{}, fmt.Errorf("whisper: server error: %s", ir.Error)
	}

	return stt.Result{
		Text:    strings.TrimSpace(ir.Text),
		Audio:   time.Duration(len(samples)) * time.Second / 16000,
		Elapsed: time.Since(start),
	}, nil
}

// CheckHealth verifies the server answers; used by the health monitor.
func (s *Server) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("whisper: build health request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("whisper: health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("whisper: health status %d", resp.StatusCode)
	}
	return nil
}

// Close implements stt.Recognizer; the server connection is stateless.
func (s *Server) Close() error { return nil }
