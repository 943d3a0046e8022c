package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/config"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/logger"
)

func newTestClient(t *testing.T, baseURL string) *OpenAIClient {
	t.Helper()
	return NewOpenAI(config.LLMConfig{
		BaseURL:     baseURL,
		Model:       "llama3.2",
		Temperature: 0.7,
		MaxTokens:   256,
		Timeout:     5,
	}, logger.Default())
}

func TestGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "" {
			t.Errorf("expected no auth header for empty api key, got %q", auth)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"choices": [{"message": {"role": "assistant", "content": "hello there"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	completion, err := client.Generate(context.Background(), Request{
		Messages: []ChatMessage{{Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if completion.Content != "hello there" {
		t.Errorf("unexpected content %q", completion.Content)
	}
	if completion.TokensUsed != 15 {
		t.Errorf("expected 15 tokens, got %d", completion.TokensUsed)
	}
	if completion.Metadata["finish_reason"] != "stop" {
		t.Errorf("unexpected finish_reason %q", completion.Metadata["finish_reason"])
	}
	if completion.LatencyMs < 0 {
		t.Errorf("latency must be non-negative, got %d", completion.LatencyMs)
	}
}

func TestGenerateBackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "model not loaded")
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Generate(context.Background(), Request{})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if !strings.Contains(err.Error(), "status 500") {
		t.Errorf("error should carry the status, got: %v", err)
	}
}

func TestGenerateNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices": []}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Generate(context.Background(), Request{})
	if err != ErrNoChoices {
		t.Fatalf("expected ErrNoChoices, got %v", err)
	}
}

func TestStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		frames := []string{
			`{"choices": [{"delta": {"content": "Hello"}, "finish_reason": ""}]}`,
			`{"choices": [{"delta": {"content": " world"}, "finish_reason": ""}]}`,
			`{"choices": [{"delta": {"content": ""}, "finish_reason": "stop"}]}`,
		}
		for _, frame := range frames {
			fmt.Fprintf(w, "data: %s\n\n", frame)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	chunks, err := client.Stream(context.Background(), Request{
		Messages: []ChatMessage{{Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	var got strings.Builder
	for chunk := range chunks {
		if chunk.Err != nil {
			t.Fatalf("unexpected stream error: %v", chunk.Err)
		}
		got.WriteString(chunk.Content)
	}
	if got.String() != "Hello world" {
		t.Errorf("expected %q, got %q", "Hello world", got.String())
	}
}

func TestStreamBackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"error": {"message": "context canceled upstream"}}`+"\n\n")
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	chunks, err := client.Stream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	var streamErr error
	for chunk := range chunks {
		if chunk.Err != nil {
			streamErr = chunk.Err
		}
	}
	if streamErr == nil {
		t.Fatal("expected a terminal error chunk")
	}
	if !strings.Contains(streamErr.Error(), "context canceled upstream") {
		t.Errorf("error should carry the backend message, got: %v", streamErr)
	}
}

func TestScriptedClient(t *testing.T) {
	client := NewScripted("first response", "second response")

	completion, err := client.Generate(context.Background(), Request{
		Messages: []ChatMessage{{Role: RoleSystem, Content: "prompt"}},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if completion.Content != "first response" {
		t.Errorf("unexpected content %q", completion.Content)
	}

	chunks, err := client.Stream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	var got strings.Builder
	for chunk := range chunks {
		if chunk.Err != nil {
			t.Fatalf("unexpected stream error: %v", chunk.Err)
		}
		got.WriteString(chunk.Content)
	}
	if got.String() != "second response" {
		t.Errorf("expected %q, got %q", "second response", got.String())
	}

	if _, err := client.Generate(context.Background(), Request{}); err != ErrScriptExhausted {
		t.Errorf("expected ErrScriptExhausted, got %v", err)
	}
	if calls := client.Calls(); len(calls) != 3 {
		t.Errorf("expected 3 recorded calls, got %d", len(calls))
	}
}
