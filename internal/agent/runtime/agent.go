// Package runtime implements the agent itself: per-agent state, history,
// working memory, metrics, the heartbeat loop, and the engine that turns one
// prompt round into a stream of cycle events. Agents never reference each
// other; all cross-agent effects go through the manager by id.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/models"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/parser"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/prompt"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/logger"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/llm"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/memory"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/workflow"
)

// ErrAlreadyRunning is returned by Start on a running agent.
var ErrAlreadyRunning = errors.New("runtime: agent already running")

const (
	defaultHistoryCap        = 1000
	defaultHeartbeatInterval = 30 * time.Second

	// workingMemoryTTL is how long an untouched working-memory entry
	// survives; the heartbeat prunes older entries.
	workingMemoryTTL = time.Hour
)

// StateChangeCallback observes recorded transitions. Invoked outside the
// agent lock.
type StateChangeCallback func(transition models.StateTransition)

// Options carries the collaborators and tuning an agent is built with.
type Options struct {
	UserID            string
	Capabilities      []string
	HistoryCap        int
	HeartbeatInterval time.Duration

	LLM       llm.Client
	Assembler *prompt.Assembler
	Parser    *parser.Parser
	Memory    memory.Store
	Logger    *logger.Logger
}

type workingEntry struct {
	value     interface{}
	updatedAt time.Time
}

// Agent is one named, role-typed participant. Its mutex guards state,
// history, metrics, working memory, and the transition log; callbacks are
// fired outside the critical section.
type Agent struct {
	id           string
	role         models.Role
	userID       string
	capabilities []string

	llm        llm.Client
	assembler  *prompt.Assembler
	parser     *parser.Parser
	store      memory.Store
	logger     *logger.Logger
	historyCap int
	heartbeat  time.Duration

	mu            sync.Mutex
	state         models.State
	previousState models.State
	history       []models.Message
	stateHistory  []models.StateTransition
	working       map[string]workingEntry
	metrics       models.AgentMetrics
	callbacks     []StateChangeCallback
	createdAt     time.Time
	lastActivity  time.Time
	running       bool

	// cycleSlot serializes cycles: holding the token is what makes cycles
	// exclusive per agent.
	cycleSlot chan struct{}

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates an agent in the idle state. Start launches its heartbeat.
func New(id string, role models.Role, opts Options) *Agent {
	if opts.HistoryCap <= 0 {
		opts.HistoryCap = defaultHistoryCap
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = defaultHeartbeatInterval
	}
	if opts.Capabilities == nil {
		opts.Capabilities = models.DefaultCapabilities(role)
	}
	log := opts.Logger.WithFields(
		zap.String("component", "agent"),
		zap.String("agent_id", id),
		zap.String("role", string(role)))
	if opts.Parser == nil {
		opts.Parser = parser.New(opts.Logger)
	}

	now := time.Now().UTC()
	return &Agent{
		id:            id,
		role:          role,
		userID:        opts.UserID,
		capabilities:  opts.Capabilities,
		llm:           opts.LLM,
		assembler:     opts.Assembler,
		parser:        opts.Parser,
		store:         opts.Memory,
		logger:        log,
		historyCap:    opts.HistoryCap,
		heartbeat:     opts.HeartbeatInterval,
		state:         models.StateIdle,
		previousState: models.StateIdle,
		working:       make(map[string]workingEntry),
		metrics:       models.NewAgentMetrics(),
		createdAt:     now,
		lastActivity:  now,
		cycleSlot:     make(chan struct{}, 1),
	}
}

// ID returns the agent id.
func (a *Agent) ID() string { return a.id }

// Role returns the agent role.
func (a *Agent) Role() models.Role { return a.role }

// UserID returns the owning user, empty for system-spawned agents.
func (a *Agent) UserID() string { return a.userID }

// Capabilities returns a copy of the capability tags.
func (a *Agent) Capabilities() []string {
	out := make([]string, len(a.capabilities))
	copy(out, a.capabilities)
	return out
}

// State returns the current lifecycle state.
func (a *Agent) State() models.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// PreviousState returns the state held before the current one. While the
// agent is processing it names the state the cycle started from.
func (a *Agent) PreviousState() models.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.previousState
}

// ApplyTransition commits a state change and records it in the transition
// log. Validation belongs to the workflow manager; the agent only mutates.
func (a *Agent) ApplyTransition(to models.State, reason string) models.StateTransition {
	a.mu.Lock()
	tr := models.StateTransition{
		From:      a.state,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
	if to != a.state {
		a.previousState = a.state
	}
	a.state = to
	a.stateHistory = append(a.stateHistory, tr)
	a.lastActivity = tr.Timestamp
	a.recomputeHealthLocked()
	callbacks := make([]StateChangeCallback, len(a.callbacks))
	copy(callbacks, a.callbacks)
	a.mu.Unlock()

	for _, fn := range callbacks {
		fn(tr)
	}
	return tr
}

// AddStateChangeCallback registers a hook invoked after each recorded
// transition.
func (a *Agent) AddStateChangeCallback(fn StateChangeCallback) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callbacks = append(a.callbacks, fn)
}

// StateHistory returns a copy of the transition log.
func (a *Agent) StateHistory() []models.StateTransition {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.StateTransition, len(a.stateHistory))
	copy(out, a.stateHistory)
	return out
}

// AppendSystem appends a system-role message to history.
func (a *Agent) AppendSystem(content string) {
	a.appendMessage(models.NewSystemMessage(content))
}

// AppendUser appends a user-role message to history.
func (a *Agent) AppendUser(content string) {
	a.appendMessage(models.NewUserMessage(content))
}

// AppendAssistant appends an assistant-role message to history.
func (a *Agent) AppendAssistant(content string) {
	a.appendMessage(models.NewAssistantMessage(content))
}

func (a *Agent) appendMessage(msg models.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, msg)
	a.lastActivity = msg.Timestamp
}

// History returns a copy of the conversation history.
func (a *Agent) History() []models.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.Message, len(a.history))
	copy(out, a.history)
	return out
}

// HistoryLen returns the current history length.
func (a *Agent) HistoryLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.history)
}

// PruneHistory drops the oldest entries beyond the cap. Called at cycle
// boundaries and from the heartbeat.
func (a *Agent) PruneHistory() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pruneHistoryLocked()
}

func (a *Agent) pruneHistoryLocked() int {
	excess := len(a.history) - a.historyCap
	if excess <= 0 {
		return 0
	}
	a.history = append([]models.Message(nil), a.history[excess:]...)
	return excess
}

// SetWorkingMemory stores a scratch value. Entries untouched for an hour are
// dropped by the heartbeat.
func (a *Agent) SetWorkingMemory(key string, value interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.working[key] = workingEntry{value: value, updatedAt: time.Now().UTC()}
}

// WorkingMemory fetches a scratch value.
func (a *Agent) WorkingMemory(key string) (interface{}, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.working[key]
	if !ok {
		return nil, false
	}
	return entry.value, true
}

// ClearWorkingMemory removes one scratch entry.
func (a *Agent) ClearWorkingMemory(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.working, key)
}

// AcquireCycle blocks until this agent's cycle slot is free. Pair with
// ReleaseCycle.
func (a *Agent) AcquireCycle(ctx context.Context) error {
	select {
	case a.cycleSlot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquireCycle takes the cycle slot without blocking.
func (a *Agent) TryAcquireCycle() bool {
	select {
	case a.cycleSlot <- struct{}{}:
		return true
	default:
		return false
	}
}

// ReleaseCycle frees the cycle slot.
func (a *Agent) ReleaseCycle() {
	select {
	case <-a.cycleSlot:
	default:
	}
}

// IncrementCycles bumps the cycle counter at cycle start.
func (a *Agent) IncrementCycles() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metrics.CyclesRun++
}

// MarkTaskCompleted records a successfully externalized turn.
func (a *Agent) MarkTaskCompleted() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metrics.TasksCompleted++
	a.recomputeHealthLocked()
}

// MarkTaskFailed records a failed turn.
func (a *Agent) MarkTaskFailed() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metrics.TasksFailed++
	a.recomputeHealthLocked()
}

// RecordViolation counts a guardian violation against this agent.
func (a *Agent) RecordViolation() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metrics.Violations++
	a.recomputeHealthLocked()
}

// recomputeHealthLocked rebuilds the health score: 1.0 minus violation
// penalty (0.1 each, capped at 0.5), minus failure rate (capped at 0.3),
// minus 0.4 while in the error state, clamped to [0,1].
func (a *Agent) recomputeHealthLocked() {
	score := 1.0
	if p := 0.1 * float64(a.metrics.Violations); p > 0 {
		if p > 0.5 {
			p = 0.5
		}
		score -= p
	}
	if p := a.metrics.FailureRate(); p > 0 {
		if p > 0.3 {
			p = 0.3
		}
		score -= p
	}
	if a.state == models.StateError {
		score -= 0.4
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	a.metrics.HealthScore = score
}

// Metrics returns a copy of the agent's counters.
func (a *Agent) Metrics() models.AgentMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.metrics
}

// GetStatus returns the redacted view exposed over the REST facade. It never
// includes history content or working memory.
func (a *Agent) GetStatus() models.AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return models.AgentStatus{
		ID:            a.id,
		Role:          a.role,
		State:         a.state,
		Capabilities:  append([]string(nil), a.capabilities...),
		Metrics:       a.metrics,
		UptimeSeconds: time.Since(a.createdAt).Seconds(),
		Compliant:     a.metrics.Violations == 0,
		HistoryLength: len(a.history),
		CreatedAt:     a.createdAt,
		LastActivity:  a.lastActivity,
	}
}

// Snapshot returns the durable record persisted when the agent stops.
func (a *Agent) Snapshot() models.AgentSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	transitions := make([]models.StateTransition, len(a.stateHistory))
	copy(transitions, a.stateHistory)
	return models.AgentSnapshot{
		ID:           a.id,
		Role:         a.role,
		FinalState:   a.state,
		Metrics:      a.metrics,
		Transitions:  transitions,
		HistoryCount: len(a.history),
		StoppedAt:    time.Now().UTC(),
	}
}

// Start records the startup transitions and launches the heartbeat.
func (a *Agent) Start() error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return ErrAlreadyRunning
	}
	a.running = true
	a.stopCh = make(chan struct{})
	a.mu.Unlock()

	a.ApplyTransition(models.StateStartup, "agent start")
	a.ApplyTransition(models.StateIdle, "startup complete")

	a.wg.Add(1)
	go a.heartbeatLoop()

	a.logger.Info("agent started")
	return nil
}

// Stop halts the heartbeat, drives the agent to shutdown, and persists a
// snapshot. Safe to call on a stopped agent.
func (a *Agent) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	close(a.stopCh)
	a.mu.Unlock()

	a.wg.Wait()

	if a.State() != models.StateShutdown {
		if !workflow.CanReachShutdown(a.State()) {
			a.ApplyTransition(models.StateIdle, "stop requested")
		}
		a.ApplyTransition(models.StateShutdown, "stopped")
	}

	a.persistSnapshot(ctx)
	a.logger.Info("agent stopped")
	return nil
}

// Running reports whether the heartbeat is active.
func (a *Agent) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// persistSnapshot writes the final state through the memory store. Failures
// are logged, never returned; stopping must succeed.
func (a *Agent) persistSnapshot(ctx context.Context) {
	if a.store == nil {
		return
	}
	snap := a.Snapshot()
	payload, err := json.Marshal(snap)
	if err != nil {
		a.logger.Warn("failed to encode agent snapshot", zap.Error(err))
		return
	}
	rec := &memory.Record{
		AgentID:    a.id,
		Type:       "snapshot",
		Content:    string(payload),
		Importance: memory.ImportanceHigh,
		Metadata:   map[string]string{"final_state": string(snap.FinalState)},
	}
	if err := a.store.Save(ctx, rec); err != nil {
		a.logger.Warn("failed to persist agent snapshot", zap.Error(err))
	}
}

// heartbeatLoop periodically refreshes the heartbeat stamp, recomputes
// health, and prunes history and stale working memory.
func (a *Agent) heartbeatLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			a.beat()
		}
	}
}

func (a *Agent) beat() {
	a.mu.Lock()
	a.metrics.LastHeartbeat = time.Now().UTC()
	a.recomputeHealthLocked()
	pruned := a.pruneHistoryLocked()

	cutoff := time.Now().UTC().Add(-workingMemoryTTL)
	var stale []string
	for key, entry := range a.working {
		if entry.updatedAt.Before(cutoff) {
			stale = append(stale, key)
		}
	}
	for _, key := range stale {
		delete(a.working, key)
	}
	a.mu.Unlock()

	if pruned > 0 || len(stale) > 0 {
		a.logger.Debug("heartbeat pruned",
			zap.Int("history_entries", pruned),
			zap.Int("working_keys", len(stale)))
	}
}
