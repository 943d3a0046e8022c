package models

import (
	"fmt"
	"time"
)

// MessageRole is the conversational role of a history entry.
type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message is one entry in an agent's conversation history. History is
// append-only within a cycle; pruning happens between cycles under the cap.
type Message struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewSystemMessage returns a system-role message stamped with the current time.
func NewSystemMessage(content string) Message {
	return Message{Role: MessageRoleSystem, Content: content, Timestamp: time.Now().UTC()}
}

// NewUserMessage returns a user-role message stamped with the current time.
func NewUserMessage(content string) Message {
	return Message{Role: MessageRoleUser, Content: content, Timestamp: time.Now().UTC()}
}

// NewAssistantMessage returns an assistant-role message stamped with the current time.
func NewAssistantMessage(content string) Message {
	return Message{Role: MessageRoleAssistant, Content: content, Timestamp: time.Now().UTC()}
}

// FormatAgentMessage renders the inter-agent delivery format used by the
// send_message tool: "[From @<sender>]: <message>".
func FormatAgentMessage(senderID, message string) string {
	return fmt.Sprintf("[From @%s]: %s", senderID, message)
}

// FormatToolResultMessage renders the system message recording a tool result
// in the caller's history: "[TOOL_RESULT <name>] <summary>".
func FormatToolResultMessage(toolName, summary string) string {
	return fmt.Sprintf("[TOOL_RESULT %s] %s", toolName, summary)
}

// FormatBlockedMessage renders the system message appended when the guardian
// refuses to externalize an output.
func FormatBlockedMessage(reason string) string {
	return fmt.Sprintf("[SYSTEM] Output blocked: %s", reason)
}
