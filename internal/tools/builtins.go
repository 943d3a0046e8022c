package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/models"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/memory"
)

// Directory is the agent-manager surface the messaging tools use. Tools
// never hold agent references; every cross-agent effect goes through the
// manager by id.
type Directory interface {
	// DeliverMessage appends a formatted inter-agent message to the target's
	// history and schedules a cycle for it.
	DeliverMessage(ctx context.Context, fromID, toID, message string) error

	// AgentSummaries returns the redacted status of every registered agent.
	AgentSummaries() []models.AgentStatus
}

// BuiltinDeps carries the collaborators the built-in tools close over.
type BuiltinDeps struct {
	Directory Directory
	Memory    memory.Store

	// SearchCacheSize bounds the memory_search result cache. Zero disables
	// caching.
	SearchCacheSize int
}

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 25
)

// RegisterBuiltins registers the node's built-in tool set: send_message,
// list_agents, memory_store, memory_search, and current_time.
func RegisterBuiltins(reg *Registry, deps BuiltinDeps) error {
	var cache *ResultCache
	if deps.SearchCacheSize > 0 {
		var err error
		cache, err = NewResultCache(deps.SearchCacheSize)
		if err != nil {
			return fmt.Errorf("build tool result cache: %w", err)
		}
	}

	reg.Register(Tool{
		Name:        "send_message",
		Description: "Send a message to another agent by id. Args: target_agent_id, message.",
		Handler:     sendMessageHandler(deps.Directory),
	})
	reg.Register(Tool{
		Name:        "list_agents",
		Description: "List every active agent with its role, state, and health.",
		Handler:     listAgentsHandler(deps.Directory),
	})
	reg.Register(Tool{
		Name:        "memory_store",
		Description: "Persist a memory. Args: content, type (optional), importance (optional).",
		Handler:     memoryStoreHandler(deps.Memory, cache),
	})

	searchHandler := memorySearchHandler(deps.Memory)
	if cache != nil {
		searchHandler = cache.Wrap(searchHandler)
	}
	reg.Register(Tool{
		Name:        "memory_search",
		Description: "Search stored memories. Args: query, limit (optional).",
		Handler:     searchHandler,
	})

	reg.Register(Tool{
		Name:        "current_time",
		Description: "Return the current UTC time in RFC 3339 format.",
		Handler: func(_ context.Context, _ Invocation) models.ToolResult {
			return models.OKResult("current_time", time.Now().UTC().Format(time.RFC3339))
		},
	})
	return nil
}

func sendMessageHandler(dir Directory) Handler {
	return func(ctx context.Context, inv Invocation) models.ToolResult {
		if dir == nil {
			return models.ErrorResult("send_message", "agent directory unavailable")
		}
		target := strings.TrimSpace(inv.Arg("target_agent_id"))
		message := inv.Arg("message")
		if target == "" {
			return models.ErrorResult("send_message", "missing target_agent_id")
		}
		if message == "" {
			return models.ErrorResult("send_message", "missing message")
		}
		if err := dir.DeliverMessage(ctx, inv.AgentID, target, message); err != nil {
			return models.ErrorResult("send_message", err.Error())
		}
		return models.OKResult("send_message", "ok")
	}
}

func listAgentsHandler(dir Directory) Handler {
	return func(_ context.Context, _ Invocation) models.ToolResult {
		if dir == nil {
			return models.ErrorResult("list_agents", "agent directory unavailable")
		}
		summaries := dir.AgentSummaries()
		if len(summaries) == 0 {
			return models.OKResult("list_agents", "no active agents")
		}
		var b strings.Builder
		for i, s := range summaries {
			if i > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "%s role=%s state=%s health=%.2f", s.ID, s.Role, s.State, s.Metrics.HealthScore)
		}
		return models.OKResult("list_agents", b.String())
	}
}

func memoryStoreHandler(store memory.Store, cache *ResultCache) Handler {
	return func(ctx context.Context, inv Invocation) models.ToolResult {
		if store == nil {
			return models.ErrorResult("memory_store", "memory store unavailable")
		}
		content := inv.Arg("content")
		if strings.TrimSpace(content) == "" {
			return models.ErrorResult("memory_store", "missing content")
		}
		recType := inv.Arg("type")
		if recType == "" {
			recType = "fact"
		}
		rec := &memory.Record{
			AgentID:    inv.AgentID,
			Type:       recType,
			Content:    content,
			Importance: memory.ParseImportance(inv.Arg("importance")),
		}
		if err := store.Save(ctx, rec); err != nil {
			return models.ErrorResult("memory_store", err.Error())
		}
		if cache != nil {
			cache.InvalidateAgent(inv.AgentID)
		}
		return models.OKResult("memory_store", "stored "+rec.ID)
	}
}

func memorySearchHandler(store memory.Store) Handler {
	return func(ctx context.Context, inv Invocation) models.ToolResult {
		if store == nil {
			return models.ErrorResult("memory_search", "memory store unavailable")
		}
		query := strings.TrimSpace(inv.Arg("query"))
		if query == "" {
			return models.ErrorResult("memory_search", "missing query")
		}
		limit := defaultSearchLimit
		if raw := inv.Arg("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				return models.ErrorResult("memory_search", fmt.Sprintf("invalid limit %q", raw))
			}
			if n > maxSearchLimit {
				n = maxSearchLimit
			}
			limit = n
		}
		results, err := store.Search(ctx, inv.AgentID, query, limit)
		if err != nil {
			return models.ErrorResult("memory_search", err.Error())
		}
		if len(results) == 0 {
			return models.OKResult("memory_search", "no matching memories")
		}
		var b strings.Builder
		for i, res := range results {
			if i > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "%d. (%.2f) %s", i+1, res.Score, res.Record.Content)
		}
		return models.OKResult("memory_search", b.String())
	}
}
