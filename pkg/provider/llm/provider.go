// Package llm defines the Provider interface for chat-completion
// backends used by the dialogue layer.
//
// The phone agent uses the model in two stateless request/response
// shapes at temperature 0: intent classification with a strict JSON
// answer and store FAQ answering with plain text. Both run under tight
// deadlines; implementations must honor ctx cancellation.
package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse reports that the backend answered without content.
// Callers treat it the same as a timeout: no answer.
var ErrEmptyResponse = errors.New("llm: empty response")

// Request carries one completion call.
type Request struct {
	// SystemPrompt is the instruction injected before the user message.
	SystemPrompt string

	// UserMessage drives the response.
	UserMessage string

	// Temperature controls randomness. The dialogue layer always uses 0.
	Temperature float64

	// MaxTokens caps the completion length; zero means provider default.
	MaxTokens int

	// JSONResponse requests a JSON-object response format when the
	// backend supports it.
	JSONResponse bool
}

// Usage holds token accounting returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is a completed request.
type Response struct {
	Content string
	Usage   Usage
}

// Provider is the abstraction over any chat-completion backend.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Complete performs one request/response exchange. An answer with no
	// content returns ErrEmptyResponse.
	Complete(ctx context.Context, req Request) (*Response, error)
}
