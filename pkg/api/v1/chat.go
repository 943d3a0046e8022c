package v1

import "time"

// ChatMessage is one entry of a chat request, OpenAI style.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /chat. The newest user message is handed
// to the caller's admin agent; earlier entries are context the client keeps
// for itself. Model is advisory and currently informational only.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
	Model    string        `json:"model,omitempty"`
	UserID   string        `json:"user_id,omitempty"`
}

// ChatResponse returns the admin agent's externalized reply for one chat
// turn. Response is empty when the cycle produced no user-facing text, for
// example when the output was blocked.
type ChatResponse struct {
	AgentID   string    `json:"agent_id"`
	Response  string    `json:"response"`
	Outcome   string    `json:"outcome"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status       string    `json:"status"`
	Version      string    `json:"version"`
	Compliant    bool      `json:"compliant"`
	BusConnected bool      `json:"bus_connected"`
	Timestamp    time.Time `json:"timestamp"`
}
