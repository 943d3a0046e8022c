package tools

import (
	"context"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/models"
)

// ResultCache memoizes results of read-only tools. Keys are scoped to the
// calling agent so one agent's cached results never surface to another.
// Writers invalidate their agent's entries.
type ResultCache struct {
	entries *lru.Cache[string, models.ToolResult]
}

// NewResultCache creates a cache holding at most size results.
func NewResultCache(size int) (*ResultCache, error) {
	entries, err := lru.New[string, models.ToolResult](size)
	if err != nil {
		return nil, err
	}
	return &ResultCache{entries: entries}, nil
}

// Wrap returns a handler that serves repeated identical invocations from the
// cache. Only successful results are cached.
func (c *ResultCache) Wrap(h Handler) Handler {
	return func(ctx context.Context, inv Invocation) models.ToolResult {
		key := cacheKey(inv)
		if cached, ok := c.entries.Get(key); ok {
			return cached
		}
		result := h(ctx, inv)
		if result.OK() {
			c.entries.Add(key, result)
		}
		return result
	}
}

// InvalidateAgent drops every cached result belonging to one agent.
func (c *ResultCache) InvalidateAgent(agentID string) {
	prefix := agentID + "\x00"
	for _, key := range c.entries.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.entries.Remove(key)
		}
	}
}

// Len returns the number of cached results.
func (c *ResultCache) Len() int {
	return c.entries.Len()
}

// cacheKey builds a stable key from the calling agent, the tool name, and
// the sorted argument list.
func cacheKey(inv Invocation) string {
	var b strings.Builder
	b.WriteString(inv.AgentID)
	b.WriteByte(0)
	b.WriteString(inv.Call.Name)
	keys := make([]string, 0, len(inv.Call.Args))
	for k := range inv.Call.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte(0)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(inv.Call.Args[k])
	}
	return b.String()
}
