// Package lifecycle owns the agent registry: creation under the agent cap,
// removal, lookup, cycle scheduling, and node-wide shutdown. It is the single
// entry point for everything outside the core; agents never hold references
// to each other, all inter-agent effects route through the Manager by id.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/models"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/parser"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/prompt"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/runtime"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/config"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/logger"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/events"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/events/bus"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/guardian"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/llm"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/memory"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/orchestrator/cycle"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/telemetry"
)

// defaultUserKey buckets requests that carry no user id.
const defaultUserKey = "default"

var (
	// ErrAgentCapReached is returned when creation would exceed MaxAgents.
	// No partial state is created.
	ErrAgentCapReached = errors.New("lifecycle: agent cap reached")

	// ErrUnknownAgent is returned for operations addressing an id that is
	// not in the registry.
	ErrUnknownAgent = errors.New("lifecycle: unknown agent")

	// ErrShuttingDown is returned once Shutdown has begun.
	ErrShuttingDown = errors.New("lifecycle: manager is shutting down")
)

// Options carries the collaborators every agent is built from. All state
// mutation flows through these; the Manager holds no globals.
type Options struct {
	Runtime   config.RuntimeConfig
	LLM       llm.Client
	Assembler *prompt.Assembler
	Parser    *parser.Parser
	Memory    memory.Store
	Cycles    *cycle.Handler
	Guardian  *guardian.Guardian
	EventBus  bus.EventBus
	Metrics   *telemetry.Metrics
	Logger    *logger.Logger
}

// Manager is the agent registry and scheduler.
type Manager struct {
	cfg       config.RuntimeConfig
	llm       llm.Client
	assembler *prompt.Assembler
	parser    *parser.Parser
	memory    memory.Store
	cycles    *cycle.Handler
	guardian  *guardian.Guardian
	eventBus  bus.EventBus
	metrics   *telemetry.Metrics
	logger    *logger.Logger

	mu           sync.RWMutex
	agents       map[string]*runtime.Agent
	adminByUser  map[string]string
	serial       int
	totalCreated int
	closed       bool

	// sem caps node-wide concurrent cycles; per-agent exclusivity is the
	// agent's own cycle slot.
	sem      *semaphore.Weighted
	cycleWG  sync.WaitGroup
	inflight atomic.Int64

	cycleCtx    context.Context
	cancelCycle context.CancelFunc
}

// NewManager creates the agent manager. The caller binds it into the
// workflow manager and cycle handler afterwards; see BindSpawner on both.
func NewManager(opts Options) *Manager {
	cfg := opts.Runtime
	maxConcurrent := cfg.MaxConcurrentCycles
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:         cfg,
		llm:         opts.LLM,
		assembler:   opts.Assembler,
		parser:      opts.Parser,
		memory:      opts.Memory,
		cycles:      opts.Cycles,
		guardian:    opts.Guardian,
		eventBus:    opts.EventBus,
		metrics:     opts.Metrics,
		logger:      opts.Logger.WithFields(zap.String("component", "agent_manager")),
		agents:      make(map[string]*runtime.Agent),
		adminByUser: make(map[string]string),
		sem:         semaphore.NewWeighted(int64(maxConcurrent)),
		cycleCtx:    ctx,
		cancelCycle: cancel,
	}
}

// CreateAgent builds, starts, and registers a new agent. Creation beyond the
// cap is refused, recorded as a system violation, and leaves no partial
// state.
func (m *Manager) CreateAgent(ctx context.Context, role models.Role, userID string, capabilities []string) (*runtime.Agent, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("lifecycle: unknown role %q", role)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if len(m.agents) >= m.cfg.MaxAgents {
		m.mu.Unlock()
		m.guardian.RecordViolation(ctx, &guardian.Violation{
			Type:            guardian.ViolationSystem,
			Severity:        guardian.SeverityMedium,
			Description:     fmt.Sprintf("agent creation refused: cap of %d reached", m.cfg.MaxAgents),
			SourceComponent: "agent_manager",
		})
		m.logger.Warn("agent creation refused", zap.Int("max_agents", m.cfg.MaxAgents))
		return nil, ErrAgentCapReached
	}

	m.serial++
	id := fmt.Sprintf("agent_%s_%d_%s", role, m.serial, randomSuffix())
	agent := runtime.New(id, role, runtime.Options{
		UserID:            userID,
		Capabilities:      capabilities,
		HistoryCap:        m.cfg.HistoryCap,
		HeartbeatInterval: m.cfg.HeartbeatIntervalDuration(),
		LLM:               m.llm,
		Assembler:         m.assembler,
		Parser:            m.parser,
		Memory:            m.memory,
		Logger:            m.logger,
	})
	if err := agent.Start(); err != nil {
		m.serial--
		m.mu.Unlock()
		return nil, fmt.Errorf("start agent %s: %w", id, err)
	}
	m.agents[id] = agent
	m.totalCreated++
	if role == models.RoleAdmin {
		m.adminByUser[userKey(userID)] = id
	}
	active := len(m.agents)
	m.mu.Unlock()

	m.metrics.SetActiveAgents(active)
	m.publishAgentEvent(ctx, events.AgentCreated, id, map[string]interface{}{
		"agent_id": id,
		"role":     string(role),
		"user_id":  userID,
	})
	m.logger.Info("agent created",
		zap.String("agent_id", id),
		zap.String("role", string(role)),
		zap.Int("active", active))
	return agent, nil
}

// RemoveAgent stops and deregisters an agent. Unknown ids are a no-op.
func (m *Manager) RemoveAgent(ctx context.Context, id string) bool {
	m.mu.Lock()
	agent, ok := m.agents[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.agents, id)
	for user, adminID := range m.adminByUser {
		if adminID == id {
			delete(m.adminByUser, user)
		}
	}
	active := len(m.agents)
	m.mu.Unlock()

	if err := agent.Stop(ctx); err != nil {
		m.logger.Error("failed to stop agent", zap.String("agent_id", id), zap.Error(err))
	}

	m.metrics.SetActiveAgents(active)
	m.publishAgentEvent(ctx, events.AgentRemoved, id, map[string]interface{}{
		"agent_id": id,
		"role":     string(agent.Role()),
	})
	m.logger.Info("agent removed", zap.String("agent_id", id), zap.Int("active", active))
	return true
}

// GetAgent returns the registered agent or nil.
func (m *Manager) GetAgent(id string) *runtime.Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.agents[id]
}

// GetAgentsByRole returns agents of one role sorted by id.
func (m *Manager) GetAgentsByRole(role models.Role) []*runtime.Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*runtime.Agent
	for _, agent := range m.agents {
		if agent.Role() == role {
			out = append(out, agent)
		}
	}
	sortAgents(out)
	return out
}

// GetAllAgents returns every registered agent sorted by id.
func (m *Manager) GetAllAgents() []*runtime.Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*runtime.Agent, 0, len(m.agents))
	for _, agent := range m.agents {
		out = append(out, agent)
	}
	sortAgents(out)
	return out
}

// Stats is the aggregate view surfaced on the management API.
type Stats struct {
	TotalCreated    int            `json:"total_created"`
	Active          int            `json:"active"`
	CyclesRun       int64          `json:"cycles_run"`
	TotalViolations int64          `json:"total_violations"`
	AverageHealth   float64        `json:"average_health"`
	States          map[string]int `json:"states"`
}

// GetStats aggregates counters, average health, and a state histogram over
// the active registry.
func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	agents := make([]*runtime.Agent, 0, len(m.agents))
	for _, agent := range m.agents {
		agents = append(agents, agent)
	}
	totalCreated := m.totalCreated
	m.mu.RUnlock()

	stats := Stats{
		TotalCreated: totalCreated,
		Active:       len(agents),
		States:       make(map[string]int),
	}
	var healthSum float64
	for _, agent := range agents {
		metrics := agent.Metrics()
		stats.CyclesRun += int64(metrics.CyclesRun)
		stats.TotalViolations += int64(metrics.Violations)
		healthSum += metrics.HealthScore
		stats.States[string(agent.State())]++
	}
	if len(agents) > 0 {
		stats.AverageHealth = healthSum / float64(len(agents))
	}
	return stats
}

// Shutdown drains in-flight cycles, then stops every agent. Cycles that
// outlive the context are cancelled so no agent is left processing.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.logger.Info("agent manager shutting down")

	drained := make(chan struct{})
	go func() {
		m.cycleWG.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		m.logger.Warn("cancelling in-flight cycles", zap.Error(ctx.Err()))
		m.cancelCycle()
		<-drained
	}
	m.cancelCycle()

	var firstErr error
	for _, agent := range m.GetAllAgents() {
		if err := agent.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	m.mu.Lock()
	m.agents = make(map[string]*runtime.Agent)
	m.adminByUser = make(map[string]string)
	m.mu.Unlock()
	m.metrics.SetActiveAgents(0)

	m.logger.Info("agent manager stopped")
	return firstErr
}

func (m *Manager) publishAgentEvent(ctx context.Context, eventType, agentID string, data map[string]interface{}) {
	if m.eventBus == nil {
		return
	}
	evt := bus.NewEvent(eventType, "agent_manager", data)
	subject := eventType + "." + agentID
	if err := m.eventBus.Publish(ctx, subject, evt); err != nil {
		m.logger.Warn("failed to publish agent event", zap.String("event_type", eventType), zap.Error(err))
	}
}

func userKey(userID string) string {
	if strings.TrimSpace(userID) == "" {
		return defaultUserKey
	}
	return userID
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

func sortAgents(agents []*runtime.Agent) {
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID() < agents[j].ID() })
}

// waitSettled blocks until no cycle is in flight or the context expires.
// A cycle scheduled by another in-flight cycle extends the wait.
func (m *Manager) waitSettled(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if m.inflight.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
