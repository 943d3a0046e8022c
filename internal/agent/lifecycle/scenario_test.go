package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/models"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/guardian"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/workflow"
)

func findMessage(history []models.Message, role models.MessageRole, substr string) bool {
	for _, msg := range history {
		if msg.Role == role && strings.Contains(msg.Content, substr) {
			return true
		}
	}
	return false
}

func TestSingleTurnChat(t *testing.T) {
	fx := newFixture(t, 5, "Hi there.")
	ctx := context.Background()

	adminID, err := fx.manager.HandleUserMessage(ctx, "Hello", "")
	if err != nil {
		t.Fatalf("HandleUserMessage returned error: %v", err)
	}
	fx.settle(t)

	admin := fx.manager.GetAgent(adminID)
	if admin == nil {
		t.Fatalf("admin %s not resolvable", adminID)
	}
	history := admin.History()
	if len(history) != 2 {
		t.Fatalf("admin history has %d messages, want 2: %+v", len(history), history)
	}
	if history[0].Role != models.MessageRoleUser || history[0].Content != "Hello" {
		t.Errorf("first message = %s %q, want user %q", history[0].Role, history[0].Content, "Hello")
	}
	if history[1].Role != models.MessageRoleAssistant || history[1].Content != "Hi there." {
		t.Errorf("second message = %s %q, want assistant %q", history[1].Role, history[1].Content, "Hi there.")
	}
	if admin.State() != models.StateIdle {
		t.Errorf("admin state = %s, want idle", admin.State())
	}
	metrics := admin.Metrics()
	if metrics.CyclesRun != 1 {
		t.Errorf("cycles run = %d, want 1", metrics.CyclesRun)
	}
	if metrics.Violations != 0 {
		t.Errorf("violations = %d, want 0", metrics.Violations)
	}
}

func TestToolInvocationDeliversMessage(t *testing.T) {
	fx := newFixture(t, 5)
	ctx := context.Background()

	worker, err := fx.manager.CreateAgent(ctx, models.RoleWorker, "", nil)
	if err != nil {
		t.Fatalf("CreateAgent returned error: %v", err)
	}
	fx.client.Push(
		fmt.Sprintf(`<tool_requests><calls><tool_call><name>send_message</name>`+
			`<args><target_agent_id>%s</target_agent_id><message>do X</message></args>`+
			`</tool_call></calls></tool_requests>`, worker.ID()),
		"Understood.",
	)

	adminID, err := fx.manager.HandleUserMessage(ctx, "tell the worker to do X", "")
	if err != nil {
		t.Fatalf("HandleUserMessage returned error: %v", err)
	}
	fx.settle(t)

	admin := fx.manager.GetAgent(adminID)
	if !findMessage(admin.History(), models.MessageRoleSystem, "[TOOL_RESULT send_message] ok") {
		t.Errorf("admin history missing tool result: %+v", admin.History())
	}
	if admin.State() != models.StateIdle {
		t.Errorf("admin state = %s, want idle", admin.State())
	}

	delivered := models.FormatAgentMessage(adminID, "do X")
	if !findMessage(worker.History(), models.MessageRoleUser, delivered) {
		t.Errorf("worker history missing %q: %+v", delivered, worker.History())
	}
	if !findMessage(worker.History(), models.MessageRoleAssistant, "Understood.") {
		t.Errorf("worker never answered its scheduled cycle: %+v", worker.History())
	}
	if worker.State() != models.StateIdle {
		t.Errorf("worker state = %s, want idle", worker.State())
	}
}

func TestProjectWorkflowEndToEnd(t *testing.T) {
	fx := newFixture(t, 10,
		`<plan><project_name>Deploy</project_name>`+
			`<description>Ship the service</description>`+
			"<objectives>- build it\n- ship it</objectives>"+
			"<deliverables>- running service</deliverables></plan>",
		`<task_list>`+
			`<task><id>t1</id><name>Build</name><description>Build the service</description></task>`+
			`<task><id>t2</id><name>Ship</name><description>Ship the service</description></task>`+
			`</task_list>`,
		`<create_worker_request><task_id>t1</task_id><specialty>builder</specialty></create_worker_request>`,
		"Task t1 done.",
	)
	ctx := context.Background()

	adminID, err := fx.manager.HandleUserMessage(ctx, "deploy the service", "")
	if err != nil {
		t.Fatalf("HandleUserMessage returned error: %v", err)
	}
	fx.settle(t)

	admin := fx.manager.GetAgent(adminID)
	if !findMessage(admin.History(), models.MessageRoleSystem, "Project Manager agent") {
		t.Errorf("admin history missing manager creation notice: %+v", admin.History())
	}

	managers := fx.manager.GetAgentsByRole(models.RoleManager)
	if len(managers) != 1 {
		t.Fatalf("managers registered = %d, want 1", len(managers))
	}
	pm := managers[0]
	if !findMessage(pm.History(), models.MessageRoleUser, "New project plan: Deploy") {
		t.Errorf("manager history missing plan hand-off: %+v", pm.History())
	}
	value, ok := pm.WorkingMemory(workflow.WorkingMemoryTasks)
	if !ok {
		t.Fatalf("manager working memory has no task list")
	}
	if tasks := value.([]models.Task); len(tasks) != 2 {
		t.Errorf("manager stored %d tasks, want 2", len(tasks))
	}
	if !findMessage(pm.History(), models.MessageRoleSystem, "created for task t1") {
		t.Errorf("manager history missing worker notice: %+v", pm.History())
	}
	if pm.State() != models.StateIdle {
		t.Errorf("manager state = %s, want idle", pm.State())
	}

	workers := fx.manager.GetAgentsByRole(models.RoleWorker)
	if len(workers) != 1 {
		t.Fatalf("workers registered = %d, want 1", len(workers))
	}
	worker := workers[0]
	if !findMessage(worker.History(), models.MessageRoleUser, "[TASK t1] Build") {
		t.Errorf("worker history missing task message: %+v", worker.History())
	}
	if !findMessage(worker.History(), models.MessageRoleAssistant, "Task t1 done.") {
		t.Errorf("worker history missing final report: %+v", worker.History())
	}
	if worker.State() != models.StateIdle {
		t.Errorf("worker state = %s, want idle", worker.State())
	}
	if got := worker.Metrics().TasksCompleted; got != 1 {
		t.Errorf("worker tasks completed = %d, want 1", got)
	}

	stats := fx.manager.GetStats()
	if stats.TotalCreated != 3 {
		t.Errorf("total created = %d, want 3", stats.TotalCreated)
	}
	if stats.CyclesRun != 4 {
		t.Errorf("cycles run = %d, want 4 (admin, manager x2, worker)", stats.CyclesRun)
	}
	if left := fx.client.Remaining(); left != 0 {
		t.Errorf("scripted responses left unconsumed = %d, want 0", left)
	}
}

func TestGuardianBlocksWorkerOutput(t *testing.T) {
	fx := newFixture(t, 5)
	ctx := context.Background()

	worker, err := fx.manager.CreateAgent(ctx, models.RoleWorker, "", nil)
	if err != nil {
		t.Fatalf("CreateAgent returned error: %v", err)
	}
	fx.client.Push("The card on file is a credit card ending 1111.")
	worker.AppendUser("what payment method is on file?")
	fx.manager.ScheduleCycle(worker.ID(), "test")
	fx.settle(t)

	if findMessage(worker.History(), models.MessageRoleAssistant, "") {
		t.Errorf("blocked output appended as assistant message: %+v", worker.History())
	}
	if !findMessage(worker.History(), models.MessageRoleSystem, "[SYSTEM] Output blocked: Privacy violation") {
		t.Errorf("worker history missing blocked notice: %+v", worker.History())
	}
	if worker.State() != models.StateIdle {
		t.Errorf("worker state = %s, want idle", worker.State())
	}
	if got := worker.Metrics().Violations; got != 1 {
		t.Errorf("worker violations = %d, want 1", got)
	}

	violations := fx.guard.Violations()
	if len(violations) != 1 {
		t.Fatalf("guardian recorded %d violations, want 1", len(violations))
	}
	if violations[0].Type != guardian.ViolationPrivacy || violations[0].Severity != guardian.SeverityHigh {
		t.Errorf("violation = %s/%s, want privacy/high", violations[0].Type, violations[0].Severity)
	}
	if got := fx.guard.Compliance().PrivacyScore; got > 0.91 || got < 0.89 {
		t.Errorf("privacy score = %f, want 0.9", got)
	}
}
