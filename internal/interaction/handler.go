// Package interaction mediates between agents and the tool registry. Every
// tool call crosses this boundary: the handler validates the call, opens a
// span, executes it through the registry, counts the outcome, and keeps a
// bounded audit trail. It never mutates the calling agent's history; the
// cycle handler owns that.
package interaction

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/models"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/logger"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/telemetry"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/tools"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/tracing"
)

// auditTrailCap bounds the in-memory audit ring.
const auditTrailCap = 256

// AuditEntry records one mediated tool call. Argument names are kept for
// diagnosis; argument values never are.
type AuditEntry struct {
	AgentID   string            `json:"agent_id"`
	Tool      string            `json:"tool"`
	ArgNames  []string          `json:"arg_names,omitempty"`
	Status    models.ToolStatus `json:"status"`
	Duration  time.Duration     `json:"duration"`
	Timestamp time.Time         `json:"timestamp"`
}

// Handler is the single entry point for agent-initiated tool execution.
type Handler struct {
	registry *tools.Registry
	metrics  *telemetry.Metrics
	tracer   trace.Tracer
	logger   *logger.Logger

	mu    sync.Mutex
	trail []AuditEntry
	next  int
	full  bool
}

// NewHandler creates an interaction handler over the given registry.
func NewHandler(registry *tools.Registry, metrics *telemetry.Metrics, log *logger.Logger) *Handler {
	return &Handler{
		registry: registry,
		metrics:  metrics,
		tracer:   tracing.Tracer("interaction"),
		logger:   log.WithFields(zap.String("component", "interaction_handler")),
		trail:    make([]AuditEntry, 0, auditTrailCap),
	}
}

// ExecuteToolCall runs one tool call on behalf of an agent. Failures come
// back as error results, never as panics or Go errors; the caller records
// the summary in the agent's history.
func (h *Handler) ExecuteToolCall(ctx context.Context, agentID string, toolCall models.ToolCall) models.ToolResult {
	if toolCall.Name == "" {
		result := models.ErrorResult("", "tool call has no name")
		h.record(agentID, toolCall, result, 0)
		return result
	}

	ctx, span := h.tracer.Start(ctx, "tool.execute",
		trace.WithAttributes(
			attribute.String("tool.name", toolCall.Name),
			attribute.String("agent.id", agentID),
		))
	defer span.End()

	if toolCall.Fallback {
		h.logger.Warn("executing fallback-parsed tool call",
			zap.String("agent_id", agentID),
			zap.String("tool", toolCall.Name))
	}

	start := time.Now()
	result := h.registry.Execute(ctx, tools.Invocation{AgentID: agentID, Call: toolCall})
	elapsed := time.Since(start)

	span.SetAttributes(attribute.String("tool.status", string(result.Status)))
	h.record(agentID, toolCall, result, elapsed)

	if result.OK() {
		h.logger.Debug("tool call completed",
			zap.String("agent_id", agentID),
			zap.String("tool", toolCall.Name),
			zap.Duration("duration", elapsed))
	} else {
		h.logger.Warn("tool call failed",
			zap.String("agent_id", agentID),
			zap.String("tool", toolCall.Name),
			zap.String("error", result.Error))
	}
	return result
}

// record appends to the audit ring and counts the outcome.
func (h *Handler) record(agentID string, toolCall models.ToolCall, result models.ToolResult, elapsed time.Duration) {
	if h.metrics != nil {
		h.metrics.IncToolCall(toolCall.Name, string(result.Status))
	}

	entry := AuditEntry{
		AgentID:   agentID,
		Tool:      toolCall.Name,
		Status:    result.Status,
		Duration:  elapsed,
		Timestamp: time.Now().UTC(),
	}
	for name := range toolCall.Args {
		entry.ArgNames = append(entry.ArgNames, name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.trail) < auditTrailCap {
		h.trail = append(h.trail, entry)
		return
	}
	h.trail[h.next] = entry
	h.next = (h.next + 1) % auditTrailCap
	h.full = true
}

// AuditTrail returns the retained entries, oldest first.
func (h *Handler) AuditTrail() []AuditEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.full {
		out := make([]AuditEntry, len(h.trail))
		copy(out, h.trail)
		return out
	}
	out := make([]AuditEntry, 0, auditTrailCap)
	out = append(out, h.trail[h.next:]...)
	out = append(out, h.trail[:h.next]...)
	return out
}
