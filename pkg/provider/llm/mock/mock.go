// Package mock provides a scripted test double for the llm package.
package mock

import (
	"context"
	"sync"

	"github.com/weny945/home-pi/pkg/provider/llm"
)

// Client is a mock implementation of llm.Client. Replies are consumed in
// order; when the script runs out, Fallback is returned.
type Client struct {
	mu sync.Mutex

	// Replies is the per-call script, consumed front to back.
	Replies []string

	// Fallback is returned once Replies is exhausted. Defaults to "ok".
	Fallback string

	// Err, if non-nil, is returned by every Complete call.
	Err error

	// Delay, if set, blocks each call (honouring ctx) before replying.
	Delay func(ctx context.Context) error

	// Requests records every CompletionRequest in order.
	Requests []llm.CompletionRequest
}

var _ llm.Client = (*Client)(nil)

func (c *Client) Name() string { return "mock" }

func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	c.mu.Lock()
	c.Requests = append(c.Requests, req)
	errOut, delay := c.Err, c.Delay
	reply := c.Fallback
	if reply == "" {
		reply = "ok"
	}
	if len(c.Replies) > 0 {
		reply = c.Replies[0]
		c.Replies = c.Replies[1:]
	}
	c.mu.Unlock()

	if delay != nil {
		if err := delay(ctx); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if errOut != nil {
		return nil, errOut
	}
	return &llm.CompletionResponse{Content: reply}, nil
}

// RequestCount returns how many Complete calls were made.
func (c *Client) RequestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Requests)
}

// LastRequest returns the most recent request, or a zero value when none.
func (c *Client) LastRequest() llm.CompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Requests) == 0 {
		return llm.CompletionRequest{}
	}
	return c.Requests[len(c.Requests)-1]
}
