package llm

import (
	"context"
	"errors"
	"sync"
)

// ErrScriptExhausted is returned when a scripted client runs out of
// responses. Tests enqueue exactly as many responses as cycles they run.
var ErrScriptExhausted = errors.New("llm: script exhausted")

// scriptedChunkSize is the number of runes per streamed chunk.
const scriptedChunkSize = 24

// ScriptedClient replays canned responses in order. It records every
// request so tests can assert on assembled prompts.
type ScriptedClient struct {
	mu        sync.Mutex
	responses []string
	calls     []Request
}

// NewScripted creates a scripted client preloaded with responses.
func NewScripted(responses ...string) *ScriptedClient {
	return &ScriptedClient{responses: append([]string(nil), responses...)}
}

// Push appends another response to the script.
func (c *ScriptedClient) Push(responses ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, responses...)
}

// Calls returns a copy of every request seen so far.
func (c *ScriptedClient) Calls() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Request(nil), c.calls...)
}

// Remaining reports how many scripted responses are left.
func (c *ScriptedClient) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.responses)
}

// Model reports a fixed placeholder name.
func (c *ScriptedClient) Model() string {
	return "scripted"
}

func (c *ScriptedClient) next(req Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, req)
	if len(c.responses) == 0 {
		return "", ErrScriptExhausted
	}
	response := c.responses[0]
	c.responses = c.responses[1:]
	return response, nil
}

// Generate pops the next scripted response.
func (c *ScriptedClient) Generate(ctx context.Context, req Request) (*Completion, error) {
	response, err := c.next(req)
	if err != nil {
		return nil, err
	}
	return &Completion{
		Content:    response,
		TokensUsed: len(response) / 4,
		Metadata:   map[string]string{"model": c.Model()},
	}, nil
}

// Stream pops the next scripted response and emits it in fixed-size chunks.
func (c *ScriptedClient) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	response, err := c.next(req)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamChunk, 8)
	go func() {
		defer close(out)
		runes := []rune(response)
		for start := 0; start < len(runes); start += scriptedChunkSize {
			end := start + scriptedChunkSize
			if end > len(runes) {
				end = len(runes)
			}
			select {
			case out <- StreamChunk{Content: string(runes[start:end])}:
			case <-ctx.Done():
				out <- StreamChunk{Err: ctx.Err()}
				return
			}
		}
	}()
	return out, nil
}
