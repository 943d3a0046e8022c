// Package workflow owns the agent state machine and the project-creation
// workflows. All state changes except the cycle handler's reserved
// processing edge go through the Manager, which validates them against a
// fixed transition table, injects the transition-notice system message, and
// fires registered callbacks.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/models"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/prompt"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/logger"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/events"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/events/bus"
)

var (
	// ErrInvalidTransition is returned when the requested edge is not in the
	// transition table. The agent is left untouched.
	ErrInvalidTransition = errors.New("workflow: invalid state transition")

	// ErrReservedState is returned when a caller other than the cycle
	// handler asks for the processing state.
	ErrReservedState = errors.New("workflow: processing is reserved for the cycle handler")

	// ErrNoSpawner is returned when a plan or task-list workflow fires
	// before an agent spawner has been bound.
	ErrNoSpawner = errors.New("workflow: no agent spawner bound")
)

// Agent is the view of an agent the Manager needs to drive transitions and
// plan hand-offs. *runtime.Agent implements it.
type Agent interface {
	ID() string
	Role() models.Role
	State() models.State
	// ApplyTransition mutates state and previous_state under the agent's
	// lock and appends the returned entry to its state history.
	ApplyTransition(to models.State, reason string) models.StateTransition
	AppendSystem(content string)
	AppendUser(content string)
	SetWorkingMemory(key string, value interface{})
}

// Spawner creates and activates agents on behalf of workflow progression.
// The agent manager implements it; main binds it after construction.
type Spawner interface {
	SpawnAgent(ctx context.Context, role models.Role, userID string) (Agent, error)
	ScheduleCycle(agentID, reason string)
}

// TransitionCallback observes committed transitions. Callbacks run outside
// the agent lock and must not block.
type TransitionCallback func(agentID string, transition models.StateTransition)

// Manager validates and commits agent state transitions and runs the
// plan -> manager and task-list -> team workflows.
type Manager struct {
	assembler *prompt.Assembler
	eventBus  bus.EventBus
	logger    *logger.Logger

	mu        sync.RWMutex
	spawner   Spawner
	callbacks []TransitionCallback
}

// NewManager creates a workflow manager. The spawner is bound later via
// BindSpawner because the agent manager is constructed after the workflow
// layer.
func NewManager(assembler *prompt.Assembler, eventBus bus.EventBus, log *logger.Logger) *Manager {
	return &Manager{
		assembler: assembler,
		eventBus:  eventBus,
		logger:    log.WithFields(zap.String("component", "workflow_manager")),
	}
}

// BindSpawner wires the agent manager in. Must be called before any plan or
// task-list workflow runs.
func (m *Manager) BindSpawner(s Spawner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spawner = s
}

// AddTransitionCallback registers an observer for committed transitions.
func (m *Manager) AddTransitionCallback(fn TransitionCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// ChangeAgentState validates and commits a transition. A same-state request
// is committed as a recognizable no-op history entry. On an illegal edge the
// agent is left untouched and ErrInvalidTransition is returned.
func (m *Manager) ChangeAgentState(ctx context.Context, agent Agent, newState models.State, contextMsg string) error {
	if newState == models.StateProcessing {
		return ErrReservedState
	}
	if !newState.Valid() {
		return fmt.Errorf("%w: unknown state %q", ErrInvalidTransition, newState)
	}

	from := agent.State()
	if from == newState {
		tr := agent.ApplyTransition(newState, "no-op state change request")
		m.logger.Debug("same-state change request recorded as no-op",
			zap.String("agent_id", agent.ID()),
			zap.String("state", string(newState)))
		m.notify(ctx, agent.ID(), tr)
		return nil
	}

	if !CanTransition(from, newState) {
		m.logger.Error("rejected state transition",
			zap.String("agent_id", agent.ID()),
			zap.String("from", string(from)),
			zap.String("to", string(newState)))
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, newState)
	}

	reason := contextMsg
	if reason == "" {
		reason = "requested"
	}
	tr := agent.ApplyTransition(newState, reason)
	agent.AppendSystem(m.assembler.BuildTransitionNotice(newState, contextMsg))

	m.logger.Info("agent state changed",
		zap.String("agent_id", agent.ID()),
		zap.String("from", string(tr.From)),
		zap.String("to", string(tr.To)))

	m.notify(ctx, agent.ID(), tr)
	return nil
}

// BeginProcessing takes the reserved cycle-begin edge. Only the cycle
// handler calls this; the edge is recorded in state history but exempt from
// table validation.
func (m *Manager) BeginProcessing(ctx context.Context, agent Agent) (models.StateTransition, error) {
	from := agent.State()
	if from == models.StateProcessing {
		return models.StateTransition{}, fmt.Errorf("%w: already processing", ErrInvalidTransition)
	}
	if from.Terminal() {
		return models.StateTransition{}, fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, from)
	}
	tr := agent.ApplyTransition(models.StateProcessing, "cycle started")
	m.notify(ctx, agent.ID(), tr)
	return tr, nil
}

// FinishProcessing leaves the processing state. The target must be on the
// processing row of the table; the cycle handler uses idle on success and
// error on failure.
func (m *Manager) FinishProcessing(ctx context.Context, agent Agent, to models.State, reason string) error {
	from := agent.State()
	if from != models.StateProcessing {
		return fmt.Errorf("%w: agent %s is in %s, not processing", ErrInvalidTransition, agent.ID(), from)
	}
	if !CanTransition(models.StateProcessing, to) {
		return fmt.Errorf("%w: processing -> %s", ErrInvalidTransition, to)
	}
	tr := agent.ApplyTransition(to, reason)
	m.notify(ctx, agent.ID(), tr)
	return nil
}

// notify fires callbacks and publishes the state-changed event. Never called
// while an agent lock is held.
func (m *Manager) notify(ctx context.Context, agentID string, tr models.StateTransition) {
	m.mu.RLock()
	callbacks := make([]TransitionCallback, len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.RUnlock()

	for _, fn := range callbacks {
		fn(agentID, tr)
	}

	if m.eventBus == nil {
		return
	}
	evt := bus.NewEvent(events.AgentStateChanged, "workflow_manager", map[string]interface{}{
		"agent_id": agentID,
		"from":     string(tr.From),
		"to":       string(tr.To),
		"reason":   tr.Reason,
	})
	if err := m.eventBus.Publish(ctx, events.BuildAgentStateSubject(agentID), evt); err != nil {
		m.logger.Warn("failed to publish state change", zap.Error(err))
	}
}

func (m *Manager) boundSpawner() (Spawner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.spawner == nil {
		return nil, ErrNoSpawner
	}
	return m.spawner, nil
}
