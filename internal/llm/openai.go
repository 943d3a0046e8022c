package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/config"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/logger"
)

// OpenAIClient talks to any OpenAI-compatible /chat/completions endpoint.
// The default configuration points at a local Ollama server.
type OpenAIClient struct {
	cfg    config.LLMConfig
	client *http.Client
	logger *logger.Logger
}

// NewOpenAI creates a client from the node configuration.
func NewOpenAI(cfg config.LLMConfig, log *logger.Logger) *OpenAIClient {
	return &OpenAIClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.TimeoutDuration()},
		logger: log.WithFields(zap.String("component", "llm"), zap.String("model", cfg.Model)),
	}
}

// Model reports the configured model name.
func (c *OpenAIClient) Model() string {
	return c.cfg.Model
}

// chatRequest is the wire payload for /chat/completions.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatChoice struct {
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
	Error   *apiError    `json:"error,omitempty"`
}

type streamDelta struct {
	Content string `json:"content"`
}

type streamChoice struct {
	Delta        streamDelta `json:"delta"`
	FinishReason string      `json:"finish_reason"`
}

type streamResponse struct {
	Choices []streamChoice `json:"choices"`
	Error   *apiError      `json:"error,omitempty"`
}

// Generate runs a blocking completion.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (*Completion, error) {
	start := time.Now()

	resp, err := c.do(ctx, c.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("llm backend error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, ErrNoChoices
	}

	choice := parsed.Choices[0]
	completion := &Completion{
		Content:    choice.Message.Content,
		TokensUsed: parsed.Usage.TotalTokens,
		LatencyMs:  time.Since(start).Milliseconds(),
		Metadata: map[string]string{
			"model":         c.cfg.Model,
			"finish_reason": choice.FinishReason,
		},
	}

	c.logger.Debug("completion finished",
		zap.Int("tokens_used", completion.TokensUsed),
		zap.Int64("latency_ms", completion.LatencyMs))

	return completion, nil
}

// Stream runs a streaming completion, emitting SSE deltas as chunks.
func (c *OpenAIClient) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	resp, err := c.do(ctx, c.buildRequest(req, true))
	if err != nil {
		return nil, err
	}

	out := make(chan StreamChunk, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		// Deltas are small but a long reasoning line can exceed the
		// default scanner limit.
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if line == "" || !strings.HasPrefix(line, "data: ") {
				continue
			}

			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				return
			}

			var frame streamResponse
			if err := json.Unmarshal([]byte(payload), &frame); err != nil {
				out <- StreamChunk{Err: fmt.Errorf("failed to decode stream frame: %w", err)}
				return
			}
			if frame.Error != nil {
				out <- StreamChunk{Err: fmt.Errorf("llm backend error: %s", frame.Error.Message)}
				return
			}
			if len(frame.Choices) == 0 {
				continue
			}

			choice := frame.Choices[0]
			if choice.Delta.Content != "" {
				select {
				case out <- StreamChunk{Content: choice.Delta.Content}:
				case <-ctx.Done():
					out <- StreamChunk{Err: ctx.Err()}
					return
				}
			}
			if choice.FinishReason != "" {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			out <- StreamChunk{Err: fmt.Errorf("failed to read stream: %w", err)}
		}
	}()

	return out, nil
}

func (c *OpenAIClient) buildRequest(req Request, stream bool) chatRequest {
	wire := chatRequest{
		Model:       c.cfg.Model,
		Messages:    req.Messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		Stream:      stream,
	}
	if req.Temperature != nil {
		wire.Temperature = *req.Temperature
	}
	if req.MaxTokens > 0 {
		wire.MaxTokens = req.MaxTokens
	}
	return wire
}

func (c *OpenAIClient) do(ctx context.Context, wire chatRequest) (*http.Response, error) {
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// Local servers typically run without authentication.
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("llm request failed with status %d: %s", resp.StatusCode, string(detail))
	}
	return resp, nil
}
