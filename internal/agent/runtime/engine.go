package runtime

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/models"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/llm"
)

// thoughtLimit bounds the informational thought event emitted per turn.
const thoughtLimit = 240

// ProcessMessage runs one prompt round and returns its event stream. The
// producer closes the channel when the turn ends; a stream failure surfaces
// as a single error event. At most one structural event or final response is
// emitted per turn.
func (a *Agent) ProcessMessage(ctx context.Context) <-chan models.Event {
	events := make(chan models.Event, 4)

	a.mu.Lock()
	role := a.role
	state := a.state
	previous := a.previousState
	history := make([]models.Message, len(a.history))
	copy(history, a.history)
	a.mu.Unlock()

	go func() {
		defer close(events)

		messages := a.assembler.Assemble(role, state, previous, history)
		stream, err := a.llm.Stream(ctx, llm.Request{Messages: messages})
		if err != nil {
			a.logger.Error("llm stream failed to open", zap.Error(err))
			a.emit(ctx, events, models.ErrorEvent(err))
			return
		}

		var buf strings.Builder
		for chunk := range stream {
			if chunk.Err != nil {
				a.logger.Error("llm stream broke mid-turn", zap.Error(chunk.Err))
				a.emit(ctx, events, models.ErrorEvent(chunk.Err))
				return
			}
			buf.WriteString(chunk.Content)
		}

		text := strings.TrimSpace(buf.String())
		if !a.emit(ctx, events, models.ThoughtEvent(summarize(text))) {
			return
		}
		a.emit(ctx, events, a.classify(text))
	}()

	return events
}

// classify applies the extraction priority to the buffered turn text:
// tool requests, then worker request, then plan, then task list, then
// state change; anything else is the final response.
func (a *Agent) classify(text string) models.Event {
	if result := a.parser.ParseToolCalls(text); result.OK && len(result.Calls) > 0 {
		return models.ToolRequestsEvent(result.Calls)
	}
	if req := a.parser.ExtractCreateWorkerRequest(text); req != nil {
		return models.WorkerRequestEvent(*req)
	}
	if plan := a.parser.ExtractPlan(text); plan != nil {
		return models.PlanEvent(*plan)
	}
	if tasks := a.parser.ExtractTaskList(text); len(tasks) > 0 {
		return models.TaskListEvent(tasks)
	}
	if newState, ok := a.parser.ExtractStateChange(text); ok {
		return models.StateChangeEvent(newState)
	}
	return models.FinalResponseEvent(text)
}

// emit delivers an event unless the consumer is gone.
func (a *Agent) emit(ctx context.Context, events chan<- models.Event, event models.Event) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

// summarize truncates turn text to the thought limit on a rune boundary.
func summarize(text string) string {
	if utf8.RuneCountInString(text) <= thoughtLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:thoughtLimit]) + "..."
}
