// Package llm defines the Provider interface for the language-model backends
// that turn a raw dictation into a structured report.
//
// Report generation is a single non-streaming chat completion: a system
// prompt plus one user message in, the assistant's text out. Providers are
// called exactly once per generation; callers must not retry.
//
// Implementors must be safe for concurrent use.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoContent is returned when the backend answered successfully but the
// reply carried no text.
var ErrNoContent = errors.New("llm: response has no content")

// StatusError reports a non-success HTTP status from a backend.
type StatusError struct {
	// Provider names the backend ("worker", "openai", ...).
	Provider string
	// StatusCode is the HTTP status returned by the backend.
	StatusCode int
	// Body is the (possibly truncated) response body, for logging.
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Usage holds token accounting information returned by the backend, when
// available.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a reply.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is sent as the first, "system"-role message.
	SystemPrompt string

	// Messages is the ordered conversation after the system prompt.
	Messages []Message

	// Temperature controls output randomness. Zero means provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int
}

// CompletionResponse is the model's full reply.
type CompletionResponse struct {
	// Content is the assistant's text, trimmed of surrounding whitespace.
	Content string

	// Usage contains token accounting for this request, if reported.
	Usage Usage
}

// Provider is the abstraction over any chat-completion backend.
type Provider interface {
	// Complete sends req and waits for the full reply. Implementations return
	// [ErrNoContent] when the reply text is empty and a [*StatusError] for
	// HTTP failures.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Conversation returns req as a flat message list with the system prompt,
// if any, first.
func (req CompletionRequest) Conversation() []Message {
	msgs := make([]Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: req.SystemPrompt})
	}
	return append(msgs, req.Messages...)
}
