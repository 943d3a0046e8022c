package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/models"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/events"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/events/bus"
)

// WorkingMemoryTasks is the working-memory key a project manager's task list
// is stored under.
const WorkingMemoryTasks = "tasks"

// ProcessPlanCreation hands a plan produced by an admin agent to a freshly
// spawned project manager: the plan is appended to the manager's history as
// a user message, the manager is moved idle -> startup, a cycle is scheduled
// for it, and the admin is notified. Returns the new manager's id.
func (m *Manager) ProcessPlanCreation(ctx context.Context, admin Agent, plan *models.Plan) (string, error) {
	if plan == nil {
		return "", fmt.Errorf("workflow: nil plan")
	}
	spawner, err := m.boundSpawner()
	if err != nil {
		return "", err
	}

	pm, err := spawner.SpawnAgent(ctx, models.RoleManager, "")
	if err != nil {
		return "", fmt.Errorf("spawn project manager: %w", err)
	}

	pm.AppendUser(plan.FormatForManager())

	planContext := fmt.Sprintf("New project plan received: %s", plan.ProjectName)
	if err := m.ChangeAgentState(ctx, pm, models.StateStartup, planContext); err != nil {
		return "", fmt.Errorf("activate project manager: %w", err)
	}

	spawner.ScheduleCycle(pm.ID(), "plan created")

	admin.AppendSystem(fmt.Sprintf(
		"[SYSTEM] Project Manager agent %s has been created to execute plan %q.",
		pm.ID(), plan.ProjectName))

	m.logger.Info("plan handed to project manager",
		zap.String("admin_id", admin.ID()),
		zap.String("pm_id", pm.ID()),
		zap.String("project", plan.ProjectName))

	m.publishWorkflow(ctx, events.WorkflowPlanCreated, map[string]interface{}{
		"admin_id":   admin.ID(),
		"pm_id":      pm.ID(),
		"project":    plan.ProjectName,
		"objectives": len(plan.Objectives),
	})
	return pm.ID(), nil
}

// ProcessTaskListCreation stores a manager's task list in its working
// memory, moves the manager to build_team_tasks, and schedules its next
// cycle. Tasks without ids are numbered in place.
func (m *Manager) ProcessTaskListCreation(ctx context.Context, pm Agent, tasks []models.Task) error {
	if len(tasks) == 0 {
		return fmt.Errorf("workflow: empty task list")
	}
	spawner, err := m.boundSpawner()
	if err != nil {
		return err
	}

	for i := range tasks {
		if tasks[i].ID == "" {
			tasks[i].ID = fmt.Sprintf("task_%d", i+1)
		}
	}
	pm.SetWorkingMemory(WorkingMemoryTasks, tasks)

	taskContext := fmt.Sprintf("%d tasks defined; assemble the team", len(tasks))
	if err := m.ChangeAgentState(ctx, pm, models.StateBuildTeamTasks, taskContext); err != nil {
		return fmt.Errorf("advance project manager: %w", err)
	}

	spawner.ScheduleCycle(pm.ID(), "task list created")

	m.logger.Info("task list stored",
		zap.String("pm_id", pm.ID()),
		zap.Int("tasks", len(tasks)))

	m.publishWorkflow(ctx, events.WorkflowTasksCreated, map[string]interface{}{
		"pm_id": pm.ID(),
		"tasks": len(tasks),
	})
	return nil
}

// NotifyTaskAssigned publishes the task-assignment event when a worker picks
// up a task. The cycle handler calls this after spawning the worker.
func (m *Manager) NotifyTaskAssigned(ctx context.Context, pmID, workerID, taskID string) {
	m.publishWorkflow(ctx, events.WorkflowTaskAssigned, map[string]interface{}{
		"pm_id":     pmID,
		"worker_id": workerID,
		"task_id":   taskID,
	})
}

func (m *Manager) publishWorkflow(ctx context.Context, eventType string, data map[string]interface{}) {
	if m.eventBus == nil {
		return
	}
	evt := bus.NewEvent(eventType, "workflow_manager", data)
	if err := m.eventBus.Publish(ctx, eventType, evt); err != nil {
		m.logger.Warn("failed to publish workflow event",
			zap.String("event_type", eventType), zap.Error(err))
	}
}
