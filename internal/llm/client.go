// Package llm adapts the node to a local OpenAI-compatible chat backend
// (Ollama, LM Studio, llama.cpp server). The runtime only depends on the
// Client interface; tests swap in the scripted implementation.
package llm

import (
	"context"
	"errors"
)

// Chat roles on the wire.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrNoChoices is returned when the backend answers without any choice.
var ErrNoChoices = errors.New("llm: response contains no choices")

// ChatMessage is one message in a chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a chat completion request. Zero values defer to the client's
// configured defaults.
type Request struct {
	Messages    []ChatMessage
	Temperature *float64
	MaxTokens   int
}

// StreamChunk is one fragment of a streamed completion. A chunk with a
// non-nil Err terminates the stream.
type StreamChunk struct {
	Content string
	Err     error
}

// Completion is a finished, non-streamed response.
type Completion struct {
	Content    string
	TokensUsed int
	LatencyMs  int64
	Metadata   map[string]string
}

// Client is the LLM backend surface the runtime consumes.
type Client interface {
	// Generate runs a blocking completion.
	Generate(ctx context.Context, req Request) (*Completion, error)

	// Stream runs a streaming completion. The returned channel is closed
	// after the final chunk; request-level failures surface as the error
	// return, mid-stream failures as a chunk with Err set.
	Stream(ctx context.Context, req Request) (<-chan StreamChunk, error)

	// Model reports the configured model name.
	Model() string
}
