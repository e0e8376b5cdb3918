// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify that sessions are created with the expected Config.
// Use Session to script per-frame results and inspect the frames submitted
// for processing.
package mock

import (
	"sync"

	"github.com/weny945/home-pi/pkg/provider/vad"
)

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by NewSession. If nil, NewSession
	// returns a new default Session.
	Session vad.SessionHandle

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// NewSessionCalls records the Config of every NewSession call in order.
	NewSessionCalls []vad.Config
}

var _ vad.Engine = (*Engine)(nil)

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, cfg)
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Session is a mock implementation of vad.SessionHandle. Results are consumed
// in order; when the script runs out, every remaining frame gets Fallback.
type Session struct {
	mu sync.Mutex

	// Results is the per-call script, consumed front to back.
	Results []vad.Result

	// Fallback is returned once Results is exhausted.
	Fallback vad.Result

	// Err, if non-nil, is returned by every ProcessFrame call.
	Err error

	// Frames records a copy of every frame passed to ProcessFrame.
	Frames [][]int16

	// ResetCalls counts Reset invocations.
	ResetCalls int

	closed bool
}

var _ vad.SessionHandle = (*Session)(nil)

func (s *Session) ProcessFrame(samples []int16) (vad.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.Result{}, vad.ErrSessionClosed
	}
	frame := make([]int16, len(samples))
	copy(frame, samples)
	s.Frames = append(s.Frames, frame)
	if s.Err != nil {
		return vad.Result{}, s.Err
	}
	if len(s.Results) > 0 {
		r := s.Results[0]
		s.Results = s.Results[1:]
		return r, nil
	}
	return s.Fallback, nil
}

func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCalls++
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
