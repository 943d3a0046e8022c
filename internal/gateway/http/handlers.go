package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/lifecycle"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/models"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/logger"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/events"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/events/bus"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/guardian"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/memory"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/peers"
	v1 "github.com/gaborkukucska/hai-net-seed-sub000/pkg/api/v1"
)

const defaultMemoryLimit = 50

// Handlers carries the REST facade's dependencies. Peers and memory may be
// nil when those subsystems are disabled; their endpoints then answer with
// empty lists or 503.
type Handlers struct {
	version     string
	manager     *lifecycle.Manager
	guardian    *guardian.Guardian
	memory      memory.Store
	peers       *peers.Registry
	eventBus    bus.EventBus
	chatTimeout time.Duration
	logger      *logger.Logger
}

// NewHandlers creates the REST handler set.
func NewHandlers(version string, manager *lifecycle.Manager, guard *guardian.Guardian, store memory.Store, peerReg *peers.Registry, eventBus bus.EventBus, chatTimeout time.Duration, log *logger.Logger) *Handlers {
	if chatTimeout <= 0 {
		chatTimeout = defaultChatTimeout
	}
	return &Handlers{
		version:     version,
		manager:     manager,
		guardian:    guard,
		memory:      store,
		peers:       peerReg,
		eventBus:    eventBus,
		chatTimeout: chatTimeout,
		logger:      log.WithFields(zap.String("component", "rest_handlers")),
	}
}

// Register mounts all REST routes on the engine.
func (h *Handlers) Register(router *gin.Engine) {
	router.GET("/health", h.health)
	router.GET("/agents", h.listAgents)
	router.POST("/agents/create", h.createAgent)
	router.POST("/chat", h.chat)
	router.GET("/memory/:agent_id", h.listMemory)
	router.POST("/memory/:agent_id/search", h.searchMemory)
	router.GET("/memory/:agent_id/summary", h.summarizeMemory)
	router.DELETE("/memory/:agent_id/:id", h.deleteMemory)
	router.GET("/violations", h.listViolations)
	router.POST("/violations/:id/acknowledge", h.acknowledgeViolation)
	router.GET("/compliance", h.compliance)
	router.GET("/peers", h.listPeers)
	router.GET("/stats", h.stats)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (h *Handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, v1.HealthResponse{
		Status:       "ok",
		Version:      h.version,
		Compliant:    h.guardian.Compliant(),
		BusConnected: h.eventBus.IsConnected(),
		Timestamp:    time.Now().UTC(),
	})
}

func (h *Handlers) listAgents(c *gin.Context) {
	summaries := h.manager.AgentSummaries()
	agents := make([]v1.Agent, 0, len(summaries))
	for _, status := range summaries {
		agents = append(agents, toAPIAgent(status))
	}
	c.JSON(http.StatusOK, v1.AgentListResponse{Agents: agents, Count: len(agents)})
}

func (h *Handlers) createAgent(c *gin.Context) {
	var req v1.CreateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	agent, err := h.manager.CreateAgent(c.Request.Context(), role, req.UserID, req.Capabilities)
	if err != nil {
		switch {
		case errors.Is(err, lifecycle.ErrAgentCapReached):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, lifecycle.ErrShuttingDown):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			h.logger.Error("agent creation failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "agent creation failed"})
		}
		return
	}
	c.JSON(http.StatusCreated, v1.CreateAgentResponse{ID: agent.ID()})
}

// chat hands the newest user message to the caller's admin agent and waits
// for that agent's cycle to finish. The subscription is installed before the
// cycle is scheduled so the completion event cannot be missed.
func (h *Handlers) chat(c *gin.Context) {
	var req v1.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	text := latestUserContent(req.Messages)
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no user message in request"})
		return
	}

	waiter := newCycleWaiter()
	sub, err := h.eventBus.Subscribe(events.AllCycleEvents, waiter.observe)
	if err != nil {
		h.logger.Error("chat subscription failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event bus unavailable"})
		return
	}
	defer sub.Unsubscribe()

	adminID, err := h.manager.HandleUserMessage(c.Request.Context(), text, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, lifecycle.ErrAgentCapReached):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		case errors.Is(err, lifecycle.ErrShuttingDown):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			h.logger.Error("chat dispatch failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "chat dispatch failed"})
		}
		return
	}

	event, ok := waiter.await(c.Request.Context(), adminID, h.chatTimeout)
	if !ok {
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"error":    "timed out waiting for agent reply",
			"agent_id": adminID,
		})
		return
	}

	if event.Type == events.CycleFailed {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":    "agent cycle failed",
			"agent_id": adminID,
			"detail":   stringField(event.Data, "error"),
		})
		return
	}

	c.JSON(http.StatusOK, v1.ChatResponse{
		AgentID:   adminID,
		Response:  stringField(event.Data, "final"),
		Outcome:   stringField(event.Data, "outcome"),
		Timestamp: time.Now().UTC(),
	})
}

func (h *Handlers) listMemory(c *gin.Context) {
	if h.memory == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "memory store disabled"})
		return
	}
	agentID := c.Param("agent_id")
	limit := defaultMemoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	records, err := h.memory.Recent(c.Request.Context(), agentID, limit)
	if err != nil {
		h.logger.Error("memory listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "memory listing failed"})
		return
	}
	wire := make([]v1.MemoryRecord, 0, len(records))
	for _, rec := range records {
		wire = append(wire, toAPIMemoryRecord(rec))
	}
	c.JSON(http.StatusOK, v1.MemoryListResponse{AgentID: agentID, Records: wire, Count: len(wire)})
}

func (h *Handlers) searchMemory(c *gin.Context) {
	if h.memory == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "memory store disabled"})
		return
	}
	agentID := c.Param("agent_id")
	var req v1.MemorySearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.Query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultMemoryLimit
	}

	results, err := h.memory.Search(c.Request.Context(), agentID, req.Query, limit)
	if err != nil {
		h.logger.Error("memory search failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "memory search failed"})
		return
	}
	wire := make([]v1.MemorySearchResult, 0, len(results))
	for _, res := range results {
		wire = append(wire, v1.MemorySearchResult{
			Record: toAPIMemoryRecord(res.Record),
			Score:  res.Score,
		})
	}
	c.JSON(http.StatusOK, v1.MemorySearchResponse{AgentID: agentID, Results: wire, Count: len(wire)})
}

func (h *Handlers) summarizeMemory(c *gin.Context) {
	if h.memory == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "memory store disabled"})
		return
	}
	agentID := c.Param("agent_id")
	summary, err := h.memory.Summarize(c.Request.Context(), agentID)
	if err != nil {
		h.logger.Error("memory summary failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "memory summary failed"})
		return
	}
	c.JSON(http.StatusOK, v1.MemorySummaryResponse{
		AgentID:      summary.AgentID,
		Total:        summary.Total,
		ByType:       summary.ByType,
		ByImportance: summary.ByImportance,
		OldestAt:     summary.OldestAt,
		NewestAt:     summary.NewestAt,
	})
}

func (h *Handlers) deleteMemory(c *gin.Context) {
	if h.memory == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "memory store disabled"})
		return
	}
	agentID := c.Param("agent_id")
	id := c.Param("id")
	removed, err := h.memory.Delete(c.Request.Context(), agentID, id)
	if err != nil {
		h.logger.Error("memory delete failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "memory delete failed"})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// listViolations serves the process-lifetime record; ?source=archive reads
// the persisted history spanning past runs instead.
func (h *Handlers) listViolations(c *gin.Context) {
	var violations []guardian.Violation
	if c.Query("source") == "archive" {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = parsed
		}
		archived, err := h.guardian.Archived(c.Request.Context(), limit)
		if err != nil {
			if errors.Is(err, guardian.ErrNoArchive) {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "violation archive disabled"})
				return
			}
			h.logger.Error("violation archive listing failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "violation archive listing failed"})
			return
		}
		violations = archived
	} else {
		violations = h.guardian.Violations()
	}

	wire := make([]v1.Violation, 0, len(violations))
	for _, violation := range violations {
		wire = append(wire, toAPIViolation(violation))
	}
	c.JSON(http.StatusOK, v1.ViolationListResponse{Violations: wire, Count: len(wire)})
}

func (h *Handlers) acknowledgeViolation(c *gin.Context) {
	id := c.Param("id")
	if !h.guardian.Acknowledge(c.Request.Context(), id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown violation id: " + id})
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": id})
}

func (h *Handlers) compliance(c *gin.Context) {
	metrics := h.guardian.Compliance()
	byType := make(map[string]int, len(metrics.ByType))
	for k, v := range metrics.ByType {
		byType[string(k)] = v
	}
	bySeverity := make(map[string]int, len(metrics.BySeverity))
	for k, v := range metrics.BySeverity {
		bySeverity[string(k)] = v
	}
	c.JSON(http.StatusOK, v1.ComplianceResponse{
		TotalViolations:       metrics.TotalViolations,
		ByType:                byType,
		BySeverity:            bySeverity,
		PrivacyScore:          metrics.PrivacyScore,
		HumanRightsScore:      metrics.HumanRightsScore,
		DecentralizationScore: metrics.DecentralizationScore,
		CommunityScore:        metrics.CommunityScore,
		OverallScore:          metrics.OverallScore,
		UpdatedAt:             metrics.UpdatedAt,
	})
}

func (h *Handlers) listPeers(c *gin.Context) {
	var known []peers.Peer
	if h.peers != nil {
		known = h.peers.List()
	}
	wire := make([]v1.Peer, 0, len(known))
	for _, peer := range known {
		wire = append(wire, v1.Peer{
			ID:                    peer.ID,
			Address:               peer.Address,
			Port:                  peer.Port,
			Role:                  peer.Role,
			Capabilities:          peer.Capabilities,
			ConstitutionalVersion: peer.ConstitutionalVersion,
			Trust:                 string(peer.Trust),
			FirstSeen:             peer.FirstSeen,
			LastSeen:              peer.LastSeen,
		})
	}
	c.JSON(http.StatusOK, v1.PeerListResponse{Peers: wire, Count: len(wire)})
}

func (h *Handlers) stats(c *gin.Context) {
	stats := h.manager.GetStats()
	states := make(map[string]int, len(stats.States))
	for state, count := range stats.States {
		states[string(state)] = count
	}
	c.JSON(http.StatusOK, v1.StatsResponse{
		TotalCreated:    stats.TotalCreated,
		Active:          stats.Active,
		CyclesRun:       int(stats.CyclesRun),
		TotalViolations: int(stats.TotalViolations),
		AverageHealth:   stats.AverageHealth,
		States:          states,
	})
}

// latestUserContent returns the content of the newest user entry, falling
// back to the last message when the client sends untagged history.
func latestUserContent(messages []v1.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" && messages[i].Content != "" {
			return messages[i].Content
		}
	}
	if n := len(messages); n > 0 {
		return messages[n-1].Content
	}
	return ""
}

func toAPIAgent(status models.AgentStatus) v1.Agent {
	return v1.Agent{
		ID:           status.ID,
		Role:         string(status.Role),
		State:        string(status.State),
		Capabilities: status.Capabilities,
		Metrics: v1.AgentMetrics{
			TasksCompleted: status.Metrics.TasksCompleted,
			TasksFailed:    status.Metrics.TasksFailed,
			CyclesRun:      status.Metrics.CyclesRun,
			Violations:     status.Metrics.Violations,
			HealthScore:    status.Metrics.HealthScore,
			LastHeartbeat:  status.Metrics.LastHeartbeat,
		},
		UptimeSeconds: status.UptimeSeconds,
		Compliant:     status.Compliant,
		HistoryLength: status.HistoryLength,
		CreatedAt:     status.CreatedAt,
		LastActivity:  status.LastActivity,
	}
}

func toAPIMemoryRecord(rec memory.Record) v1.MemoryRecord {
	return v1.MemoryRecord{
		ID:         rec.ID,
		AgentID:    rec.AgentID,
		Type:       rec.Type,
		Content:    rec.Content,
		Importance: string(rec.Importance),
		Metadata:   rec.Metadata,
		CreatedAt:  rec.CreatedAt,
		ExpiresAt:  rec.ExpiresAt,
	}
}

func toAPIViolation(violation guardian.Violation) v1.Violation {
	return v1.Violation{
		ID:              violation.ID,
		Type:            string(violation.Type),
		Severity:        string(violation.Severity),
		Principle:       violation.Principle,
		Description:     violation.Description,
		SourceComponent: violation.SourceComponent,
		SourceAgent:     violation.SourceAgent,
		Timestamp:       violation.Timestamp,
		Details:         violation.Details,
		AutoResolved:    violation.AutoResolved,
		Acknowledged:    violation.Acknowledged,
	}
}

func stringField(data map[string]interface{}, key string) string {
	if value, ok := data[key].(string); ok {
		return value
	}
	return ""
}

// cycleWaiter buffers cycle terminations so the chat handler can wait for a
// specific agent's cycle without racing the subscription.
type cycleWaiter struct {
	mu     sync.Mutex
	events []*bus.Event
	notify chan struct{}
}

func newCycleWaiter() *cycleWaiter {
	return &cycleWaiter{notify: make(chan struct{}, 1)}
}

func (w *cycleWaiter) observe(_ context.Context, event *bus.Event) error {
	if event.Type != events.CycleCompleted && event.Type != events.CycleFailed {
		return nil
	}
	w.mu.Lock()
	w.events = append(w.events, event)
	w.mu.Unlock()
	select {
	case w.notify <- struct{}{}:
	default:
	}
	return nil
}

// await blocks until a termination event for agentID arrives, the context
// ends, or the timeout expires.
func (w *cycleWaiter) await(ctx context.Context, agentID string, timeout time.Duration) (*bus.Event, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		if event := w.find(agentID); event != nil {
			return event, true
		}
		select {
		case <-w.notify:
		case <-ctx.Done():
			return nil, false
		case <-deadline.C:
			return nil, false
		}
	}
}

func (w *cycleWaiter) find(agentID string) *bus.Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, event := range w.events {
		if id, ok := event.Data["agent_id"].(string); ok && id == agentID {
			return event
		}
	}
	return nil
}
