// Package tools holds the registry of named capabilities agents can invoke
// through structured output. The registry is populated once at startup;
// there is no runtime tool discovery. Execution is bounded by a per-call
// timeout and never panics across the call boundary.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/models"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/logger"
)

// DefaultTimeout bounds a single tool execution when the registry is built
// with a zero timeout.
const DefaultTimeout = 30 * time.Second

// Invocation is one tool execution request: the parsed call plus the id of
// the agent that issued it.
type Invocation struct {
	AgentID string
	Call    models.ToolCall
}

// Arg returns the named argument, or "" when absent.
func (inv Invocation) Arg(name string) string {
	return inv.Call.Args[name]
}

// Handler executes one tool call. Handlers report failure through the
// result's status, not by panicking; the registry converts panics and
// timeouts into error results.
type Handler func(ctx context.Context, inv Invocation) models.ToolResult

// Tool is one registered capability.
type Tool struct {
	Name        string
	Description string
	Handler     Handler
}

// Registry maps tool names to handlers.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	timeout time.Duration
	logger  *logger.Logger
}

// NewRegistry creates an empty registry with the given per-call timeout.
func NewRegistry(timeout time.Duration, log *logger.Logger) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{
		tools:   make(map[string]Tool),
		timeout: timeout,
		logger:  log.WithFields(zap.String("component", "tool_registry")),
	}
}

// Register adds a tool. Re-registering a name overwrites the previous
// handler with a warning.
func (r *Registry) Register(tool Tool) {
	if tool.Name == "" || tool.Handler == nil {
		r.logger.Warn("ignoring tool with empty name or nil handler")
		return
	}
	r.mu.Lock()
	_, exists := r.tools[tool.Name]
	r.tools[tool.Name] = tool
	r.mu.Unlock()
	if exists {
		r.logger.Warn("tool re-registered, previous handler replaced", zap.String("tool", tool.Name))
		return
	}
	r.logger.Debug("tool registered", zap.String("tool", tool.Name))
}

// Execute runs one tool call to completion. Unknown tools, handler panics,
// and timeouts all come back as error results; Execute itself never fails.
func (r *Registry) Execute(ctx context.Context, inv Invocation) models.ToolResult {
	name := inv.Call.Name
	if name == "" {
		return models.ErrorResult(name, "empty tool name")
	}

	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return models.ErrorResult(name, fmt.Sprintf("unknown tool %q", name))
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan models.ToolResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("tool handler panicked",
					zap.String("tool", name), zap.Any("panic", rec))
				done <- models.ErrorResult(name, fmt.Sprintf("tool panicked: %v", rec))
			}
		}()
		done <- tool.Handler(ctx, inv)
	}()

	select {
	case result := <-done:
		result.Name = name
		return result
	case <-ctx.Done():
		return models.ErrorResult(name, fmt.Sprintf("timed out after %s", r.timeout))
	}
}

// List returns the registered tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		out = append(out, tool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Has reports whether a tool name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}
