// Package cycle drives one processing cycle of one agent: it consumes the
// agent's event stream and dispatches tool calls to the interaction handler,
// state changes and workflows to the workflow manager, and final responses
// through the guardian. A failure anywhere inside the cycle moves the agent
// to the error state; no error escapes the cycle boundary unhandled.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/models"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/runtime"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/logger"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/events"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/events/bus"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/guardian"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/interaction"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/telemetry"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/tracing"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/workflow"
)

// DefaultTimeout bounds one cycle's wall clock when the handler is built
// with a zero timeout.
const DefaultTimeout = 120 * time.Second

// Outcomes recorded per cycle.
const (
	OutcomeCompleted  = "completed"
	OutcomeBlocked    = "blocked"
	OutcomeNoResponse = "no_response"
	OutcomeFailed     = "failed"
	OutcomeSkipped    = "skipped"
)

// Handler runs cycles. One handler serves every agent; per-agent exclusivity
// comes from the agent's cycle slot.
type Handler struct {
	timeout  time.Duration
	workflow *workflow.Manager
	executor *interaction.Handler
	guardian *guardian.Guardian
	eventBus bus.EventBus
	metrics  *telemetry.Metrics
	tracer   trace.Tracer
	logger   *logger.Logger

	mu      sync.RWMutex
	spawner workflow.Spawner
}

// NewHandler creates a cycle handler. The spawner is bound after the agent
// manager exists.
func NewHandler(
	timeout time.Duration,
	wf *workflow.Manager,
	executor *interaction.Handler,
	guard *guardian.Guardian,
	eventBus bus.EventBus,
	metrics *telemetry.Metrics,
	log *logger.Logger,
) *Handler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Handler{
		timeout:  timeout,
		workflow: wf,
		executor: executor,
		guardian: guard,
		eventBus: eventBus,
		metrics:  metrics,
		tracer:   tracing.Tracer("cycle"),
		logger:   log.WithFields(zap.String("component", "cycle_handler")),
	}
}

// BindSpawner wires the agent manager in for worker creation.
func (h *Handler) BindSpawner(s workflow.Spawner) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.spawner = s
}

func (h *Handler) boundSpawner() workflow.Spawner {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.spawner
}

// RunCycle drives one cycle for one agent to completion. An agent already
// processing is skipped; a second caller for the same agent otherwise waits
// on the agent's cycle slot. After return the agent is never left in the
// processing state.
func (h *Handler) RunCycle(ctx context.Context, agent *runtime.Agent) error {
	if agent.State() == models.StateProcessing {
		h.logger.Info("cycle skipped, agent already processing",
			zap.String("agent_id", agent.ID()))
		return nil
	}
	if err := agent.AcquireCycle(ctx); err != nil {
		return fmt.Errorf("acquire cycle slot: %w", err)
	}
	defer agent.ReleaseCycle()

	if agent.State().Terminal() {
		h.logger.Info("cycle skipped, agent shut down", zap.String("agent_id", agent.ID()))
		return nil
	}

	cycleID := uuid.New().String()
	log := h.logger.WithAgentID(agent.ID()).WithCycleID(cycleID)

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	ctx, span := h.tracer.Start(ctx, "cycle.run",
		trace.WithAttributes(
			attribute.String("agent.id", agent.ID()),
			attribute.String("agent.role", string(agent.Role())),
			attribute.String("cycle.id", cycleID),
		))
	defer span.End()

	tr, err := h.workflow.BeginProcessing(ctx, agent)
	if err != nil {
		log.Warn("cycle refused", zap.Error(err))
		return err
	}

	agent.IncrementCycles()
	h.metrics.IncActiveCycles()
	defer h.metrics.DecActiveCycles()
	start := time.Now()
	h.publishCycle(ctx, events.CycleStarted, agent.ID(), map[string]interface{}{
		"cycle_id": cycleID,
		"state":    string(tr.From),
	})
	log.Info("cycle started", zap.String("from_state", string(tr.From)))

	outcome, finalText, cycleErr := h.dispatchLoop(ctx, log, agent)

	if cycleErr != nil {
		h.failCycle(ctx, log, agent, cycleErr)
		agent.PruneHistory()
		h.observe(agent, OutcomeFailed, time.Since(start))
		h.publishCycle(ctx, events.CycleFailed, agent.ID(), map[string]interface{}{
			"cycle_id": cycleID,
			"error":    cycleErr.Error(),
		})
		span.SetAttributes(attribute.String("cycle.outcome", OutcomeFailed))
		log.WithError(cycleErr).Warn("cycle failed")
		return cycleErr
	}

	// A mid-cycle workflow commit may already have moved the agent on;
	// otherwise the cycle ends back in idle.
	if agent.State() == models.StateProcessing {
		if err := h.workflow.FinishProcessing(ctx, agent, models.StateIdle, "cycle completed"); err != nil {
			log.Error("failed to leave processing state", zap.Error(err))
		}
	}
	agent.PruneHistory()

	h.observe(agent, outcome, time.Since(start))
	h.publishCycle(ctx, events.CycleCompleted, agent.ID(), map[string]interface{}{
		"cycle_id": cycleID,
		"outcome":  outcome,
		"final":    finalText,
		"state":    string(agent.State()),
	})
	span.SetAttributes(attribute.String("cycle.outcome", outcome))
	log.Info("cycle completed",
		zap.String("outcome", outcome),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// dispatchLoop consumes the agent's event stream in production order and
// applies the dispatch rules. It returns the cycle outcome, the externalized
// final text (empty when blocked or absent), and any failure.
func (h *Handler) dispatchLoop(ctx context.Context, log *logger.Logger, agent *runtime.Agent) (string, string, error) {
	outcome := OutcomeNoResponse
	finalText := ""

	for event := range agent.ProcessMessage(ctx) {
		switch event.Kind {
		case models.EventThought:
			h.publishThought(ctx, agent.ID(), event.Thought)

		case models.EventToolRequests:
			for _, toolCall := range event.Calls {
				result := h.executor.ExecuteToolCall(ctx, agent.ID(), toolCall)
				agent.AppendSystem(models.FormatToolResultMessage(result.Name, result.Summary()))
			}

		case models.EventStateChangeRequested:
			if err := h.workflow.ChangeAgentState(ctx, agent, event.NewState, "requested by agent"); err != nil {
				log.Warn("state change request rejected",
					zap.String("new_state", string(event.NewState)), zap.Error(err))
				agent.AppendSystem(fmt.Sprintf("[SYSTEM] State change to %s rejected: %v", event.NewState, err))
			}

		case models.EventPlanCreated:
			if _, err := h.workflow.ProcessPlanCreation(ctx, agent, event.Plan); err != nil {
				log.Error("plan workflow failed", zap.Error(err))
				agent.AppendSystem(fmt.Sprintf("[SYSTEM] Plan could not be handed off: %v", err))
			}

		case models.EventTaskListCreated:
			if err := h.workflow.ProcessTaskListCreation(ctx, agent, event.Tasks); err != nil {
				log.Error("task list workflow failed", zap.Error(err))
				agent.AppendSystem(fmt.Sprintf("[SYSTEM] Task list could not be stored: %v", err))
			}

		case models.EventCreateWorkerRequest:
			h.handleWorkerRequest(ctx, log, agent, *event.Worker)

		case models.EventFinalResponse:
			verdict := h.guardian.ReviewOutput(ctx, agent.ID(), event.Content)
			if !verdict.Compliant {
				agent.AppendSystem(models.FormatBlockedMessage(verdict.Reason))
				agent.RecordViolation()
				log.Warn("final response blocked", zap.String("reason", verdict.Reason))
				return OutcomeBlocked, "", nil
			}
			if event.Content != "" {
				agent.AppendAssistant(event.Content)
			}
			agent.MarkTaskCompleted()
			return OutcomeCompleted, event.Content, nil

		case models.EventError:
			return "", "", errors.New(event.Error)

		default:
			log.Warn("unknown cycle event", zap.String("kind", string(event.Kind)))
		}
	}

	if err := ctx.Err(); err != nil {
		return "", "", fmt.Errorf("cycle aborted: %w", err)
	}
	// End of stream without a final response is a no-op turn.
	return outcome, finalText, nil
}

// handleWorkerRequest spawns a worker, hands it its task, moves it to work,
// and schedules its first cycle.
func (h *Handler) handleWorkerRequest(ctx context.Context, log *logger.Logger, pm *runtime.Agent, req models.WorkerRequest) {
	spawner := h.boundSpawner()
	if spawner == nil {
		log.Error("worker request with no spawner bound")
		pm.AppendSystem("[SYSTEM] Worker creation failed: agent manager unavailable")
		return
	}

	worker, err := spawner.SpawnAgent(ctx, models.RoleWorker, "")
	if err != nil {
		log.Error("worker creation failed", zap.Error(err))
		pm.AppendSystem(fmt.Sprintf("[SYSTEM] Worker creation failed: %v", err))
		return
	}

	task := h.lookupTask(pm, req.TaskID)
	if task == nil {
		task = &models.Task{ID: req.TaskID, Name: req.Specialty}
	}
	worker.AppendUser(task.FormatForWorker())

	if err := h.workflow.ChangeAgentState(ctx, worker, models.StateWork, "task "+req.TaskID+" assigned"); err != nil {
		log.Error("failed to activate worker", zap.Error(err))
	}
	spawner.ScheduleCycle(worker.ID(), "task assigned")
	h.workflow.NotifyTaskAssigned(ctx, pm.ID(), worker.ID(), req.TaskID)

	pm.AppendSystem(fmt.Sprintf("[SYSTEM] Worker agent %s created for task %s.", worker.ID(), req.TaskID))
	log.Info("worker assigned",
		zap.String("worker_id", worker.ID()),
		zap.String("task_id", req.TaskID))
}

// lookupTask resolves a task id against the manager's stored task list.
func (h *Handler) lookupTask(pm *runtime.Agent, taskID string) *models.Task {
	value, ok := pm.WorkingMemory(workflow.WorkingMemoryTasks)
	if !ok {
		return nil
	}
	tasks, ok := value.([]models.Task)
	if !ok {
		return nil
	}
	for i := range tasks {
		if tasks[i].ID == taskID {
			return &tasks[i]
		}
	}
	return nil
}

// failCycle moves a failed agent to the error state. The agent may have left
// processing through a mid-cycle commit; any state with an error edge is
// escorted there.
func (h *Handler) failCycle(ctx context.Context, log *logger.Logger, agent *runtime.Agent, cycleErr error) {
	agent.MarkTaskFailed()

	if agent.State() == models.StateProcessing {
		if err := h.workflow.FinishProcessing(ctx, agent, models.StateError, "cycle failed: "+cycleErr.Error()); err != nil {
			log.Error("failed to enter error state", zap.Error(err))
		}
		return
	}
	if workflow.CanTransition(agent.State(), models.StateError) {
		if err := h.workflow.ChangeAgentState(ctx, agent, models.StateError, "cycle failed"); err != nil {
			log.Error("failed to enter error state", zap.Error(err))
		}
		return
	}
	log.Warn("cycle failed with no error edge from current state",
		zap.String("state", string(agent.State())))
}

func (h *Handler) observe(agent *runtime.Agent, outcome string, duration time.Duration) {
	h.metrics.ObserveCycle(string(agent.Role()), outcome, duration)
}

func (h *Handler) publishCycle(ctx context.Context, eventType, agentID string, data map[string]interface{}) {
	if h.eventBus == nil {
		return
	}
	data["agent_id"] = agentID
	evt := bus.NewEvent(eventType, "cycle_handler", data)
	if err := h.eventBus.Publish(ctx, events.BuildCycleSubject(eventType, agentID), evt); err != nil {
		h.logger.Warn("failed to publish cycle event", zap.Error(err))
	}
}

func (h *Handler) publishThought(ctx context.Context, agentID, thought string) {
	if h.eventBus == nil {
		return
	}
	evt := bus.NewEvent(events.AgentThought, "cycle_handler", map[string]interface{}{
		"agent_id": agentID,
		"thought":  thought,
	})
	if err := h.eventBus.Publish(ctx, events.BuildAgentThoughtSubject(agentID), evt); err != nil {
		h.logger.Warn("failed to publish thought", zap.Error(err))
	}
}

// Timeout reports the per-cycle wall-clock bound.
func (h *Handler) Timeout() time.Duration {
	return h.timeout
}
