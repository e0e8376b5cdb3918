// Package llm defines the Client interface for chat-completion backends.
//
// The assistant needs only one call shape: a system prompt plus the bounded
// dialogue history in, one assistant reply out. Any OpenAI-compatible
// endpoint can serve it; the openai subpackage covers api.openai.com and the
// DashScope compatible mode (Qwen) through a base URL switch.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// Message is one turn in the conversation history.
type Message struct {
	// Role is "user" or "assistant"; the system prompt travels separately.
	Role string

	// Content is the text of the turn.
	Content string
}

// CompletionRequest carries one chat-completion call.
type CompletionRequest struct {
	// SystemPrompt frames the assistant persona. Optional.
	SystemPrompt string

	// Messages is the dialogue history, oldest first, ending with the
	// user's current utterance.
	Messages []Message

	// Temperature is the sampling temperature; zero means backend default.
	Temperature float64

	// MaxTokens caps the reply length; zero means backend default.
	MaxTokens int
}

// Usage reports token accounting from the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionResponse is one assistant reply.
type CompletionResponse struct {
	// Content is the reply text.
	Content string

	// Usage is the backend's token accounting, zero when not reported.
	Usage Usage
}

// Client is the abstraction over any chat-completion backend.
type Client interface {
	// Complete performs one chat completion. It honours ctx cancellation
	// and deadlines; on timeout the in-flight request is abandoned.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Name identifies the backend for logs.
	Name() string
}
