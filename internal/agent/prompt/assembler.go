package prompt

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/models"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/logger"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/llm"
)

// perMessageOverhead approximates the chat-format framing tokens each
// message costs on top of its content.
const perMessageOverhead = 4

// Assembler turns an agent's role, state, and history into the message
// list sent to the LLM.
type Assembler struct {
	table           *Table
	maxPromptTokens int
	logger          *logger.Logger
}

// NewAssembler builds an assembler over the given prompt table. A
// maxPromptTokens of zero disables history trimming.
func NewAssembler(table *Table, maxPromptTokens int, log *logger.Logger) *Assembler {
	if table == nil {
		table = defaultTable()
	}
	return &Assembler{
		table:           table,
		maxPromptTokens: maxPromptTokens,
		logger:          log.WithFields(zap.String("component", "prompt_assembler")),
	}
}

// ResolvePromptState maps an agent's live state to the state whose prompt
// should drive the next cycle. Processing defers to the state the agent
// held before the cycle began, and idle agents prompt as their role's
// default active state.
func ResolvePromptState(role models.Role, state, previous models.State) models.State {
	if state == models.StateProcessing {
		state = previous
	}
	if state == "" || state == models.StateIdle || state == models.StateProcessing {
		return models.DefaultActiveState(role)
	}
	return state
}

// Assemble builds the full LLM message list: the system prompt for the
// resolved state, the agent's history, and a trailing system message with
// per-cycle context. History is trimmed oldest-first when the total
// exceeds the token budget.
func (a *Assembler) Assemble(role models.Role, state, previous models.State, history []models.Message) []llm.ChatMessage {
	resolved := ResolvePromptState(role, state, previous)

	system, ok := a.table.Prompt(role, resolved)
	if !ok {
		a.logger.Warn("no prompt for role and state, agent driven by history alone",
			zap.String("role", string(role)),
			zap.String("state", string(resolved)))
	}

	messages := make([]llm.ChatMessage, 0, len(history)+2)
	messages = append(messages, llm.ChatMessage{Role: llm.RoleSystem, Content: system})
	for _, msg := range history {
		messages = append(messages, llm.ChatMessage{Role: string(msg.Role), Content: msg.Content})
	}
	if dynamic := a.dynamicContext(role); dynamic != "" {
		messages = append(messages, llm.ChatMessage{Role: llm.RoleSystem, Content: dynamic})
	}

	return a.trim(messages, len(history))
}

// BuildTransitionNotice renders the system message appended to an agent's
// history when it enters a new state. context carries transition-specific
// detail such as a task assignment.
func (a *Assembler) BuildTransitionNotice(newState models.State, context string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[SYSTEM] State transition to: %s", newState)
	b.WriteString("\n")
	b.WriteString(a.table.Guidance(newState))
	if context != "" {
		b.WriteString("\nContext: ")
		b.WriteString(context)
	}
	return b.String()
}

// dynamicContext builds the trailing system message. Admin agents get the
// wall clock so user-facing answers can reference it; every role gets the
// tool catalog.
func (a *Assembler) dynamicContext(role models.Role) string {
	var parts []string
	if role == models.RoleAdmin {
		parts = append(parts, "Current time: "+time.Now().UTC().Format(time.RFC3339))
	}
	if tools := a.table.ToolsDescription(); tools != "" {
		parts = append(parts, tools)
	}
	return strings.Join(parts, "\n\n")
}

// trim drops the oldest history messages until the conversation fits the
// token budget. The leading system prompt and the trailing dynamic context
// are never dropped. historyLen is the number of messages between them.
func (a *Assembler) trim(messages []llm.ChatMessage, historyLen int) []llm.ChatMessage {
	if a.maxPromptTokens <= 0 || historyLen == 0 {
		return messages
	}

	costs := make([]int, len(messages))
	total := 0
	for i, msg := range messages {
		costs[i] = CountTokens(msg.Content) + perMessageOverhead
		total += costs[i]
	}
	if total <= a.maxPromptTokens {
		return messages
	}

	dropped := 0
	for dropped < historyLen && total > a.maxPromptTokens {
		total -= costs[1+dropped]
		dropped++
	}
	if dropped == 0 {
		return messages
	}

	a.logger.Debug("trimmed history to fit token budget",
		zap.Int("dropped_messages", dropped),
		zap.Int("remaining_tokens", total))

	trimmed := make([]llm.ChatMessage, 0, len(messages)-dropped)
	trimmed = append(trimmed, messages[0])
	trimmed = append(trimmed, messages[1+dropped:]...)
	return trimmed
}
