// Package mock provides a scripted test double for the stt package.
package mock

import (
	"context"
	"sync"

	"github.com/weny945/home-pi/pkg/provider/stt"
)

// Recognizer is a mock implementation of stt.Recognizer. Results are
// consumed in order; when the script runs out, Fallback is returned.
type Recognizer struct {
	mu sync.Mutex

	// Results is the per-call script, consumed front to back.
	Results []stt.Result

	// Fallback is returned once Results is exhausted.
	Fallback stt.Result

	// Err, if non-nil, is returned by every Transcribe call.
	Err error

	// Calls records the sample count of every Transcribe call.
	Calls []int

	// Closed reports whether Close was called.
	Closed bool
}

var _ stt.Recognizer = (*Recognizer)(nil)

func (r *Recognizer) Transcribe(ctx context.Context, samples []int16) (stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return stt.Result{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, len(samples))
	if r.Err != nil {
		return stt.Result{}, r.Err
	}
	if len(r.Results) > 0 {
		res := r.Results[0]
		r.Results = r.Results[1:]
		return res, nil
	}
	return r.Fallback, nil
}

func (r *Recognizer) Name() string { return "mock" }

func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Closed = true
	return nil
}
