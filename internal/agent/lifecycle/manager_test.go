package lifecycle

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/models"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/parser"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/prompt"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/config"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/logger"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/guardian"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/interaction"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/llm"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/orchestrator/cycle"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/tools"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/workflow"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "debug", Format: "console", OutputPath: "stdout"})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return log
}

type fixture struct {
	client  *llm.ScriptedClient
	guard   *guardian.Guardian
	manager *Manager
}

// newFixture wires the full core: workflow manager, tool registry with
// builtins, interaction handler, cycle handler, and the agent manager bound
// as spawner and directory. Only the LLM is scripted.
func newFixture(t *testing.T, maxAgents int, responses ...string) *fixture {
	t.Helper()
	log := newTestLogger(t)

	table, err := prompt.LoadTable("", log)
	if err != nil {
		t.Fatalf("failed to load prompt table: %v", err)
	}
	assembler := prompt.NewAssembler(table, 8192, log)
	client := llm.NewScripted(responses...)
	guard := guardian.New(config.GuardianConfig{}, nil, nil, nil, nil, log)

	registry := tools.NewRegistry(time.Second, log)
	executor := interaction.NewHandler(registry, nil, log)
	wf := workflow.NewManager(assembler, nil, log)
	cycles := cycle.NewHandler(5*time.Second, wf, executor, guard, nil, nil, log)

	manager := NewManager(Options{
		Runtime: config.RuntimeConfig{
			MaxAgents:           maxAgents,
			CycleTimeout:        5,
			ToolTimeout:         5,
			HistoryCap:          100,
			HeartbeatInterval:   60,
			MaxConcurrentCycles: 4,
		},
		LLM:       client,
		Assembler: assembler,
		Parser:    parser.New(log),
		Cycles:    cycles,
		Guardian:  guard,
		Logger:    log,
	})
	wf.BindSpawner(manager)
	cycles.BindSpawner(manager)
	if err := tools.RegisterBuiltins(registry, tools.BuiltinDeps{Directory: manager}); err != nil {
		t.Fatalf("failed to register builtins: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = manager.Shutdown(ctx)
	})
	return &fixture{client: client, guard: guard, manager: manager}
}

// settle waits until every scheduled cycle, including cycles scheduled by
// other cycles, has finished.
func (fx *fixture) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fx.manager.waitSettled(ctx); err != nil {
		t.Fatalf("cycles did not settle: %v", err)
	}
}

func TestCreateAgentRegistersAndStarts(t *testing.T) {
	fx := newFixture(t, 5)
	ctx := context.Background()

	agent, err := fx.manager.CreateAgent(ctx, models.RoleWorker, "", nil)
	if err != nil {
		t.Fatalf("CreateAgent returned error: %v", err)
	}
	if agent.State() != models.StateIdle {
		t.Errorf("new agent state = %s, want idle", agent.State())
	}
	if !agent.Running() {
		t.Errorf("new agent heartbeat not running")
	}
	if got := fx.manager.GetAgent(agent.ID()); got != agent {
		t.Errorf("GetAgent did not return the registered agent")
	}
	if got := len(fx.manager.GetAgentsByRole(models.RoleWorker)); got != 1 {
		t.Errorf("workers registered = %d, want 1", got)
	}
}

func TestCreateAgentCapRefused(t *testing.T) {
	fx := newFixture(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := fx.manager.CreateAgent(ctx, models.RoleWorker, "", nil); err != nil {
			t.Fatalf("CreateAgent %d returned error: %v", i+1, err)
		}
	}

	agent, err := fx.manager.CreateAgent(ctx, models.RoleWorker, "", nil)
	if err != ErrAgentCapReached {
		t.Fatalf("CreateAgent over cap = (%v, %v), want ErrAgentCapReached", agent, err)
	}
	if agent != nil {
		t.Errorf("over-cap creation returned an agent")
	}
	if got := len(fx.manager.GetAllAgents()); got != 2 {
		t.Errorf("registry size after refused creation = %d, want 2", got)
	}

	violations := fx.guard.Violations()
	if len(violations) != 1 {
		t.Fatalf("guardian recorded %d violations, want 1", len(violations))
	}
	if violations[0].Type != guardian.ViolationSystem {
		t.Errorf("violation type = %s, want system", violations[0].Type)
	}
}

func TestCreateAgentRejectsUnknownRole(t *testing.T) {
	fx := newFixture(t, 5)
	if _, err := fx.manager.CreateAgent(context.Background(), models.Role("wizard"), "", nil); err == nil {
		t.Fatalf("CreateAgent accepted an unknown role")
	}
}

func TestRemoveAgent(t *testing.T) {
	fx := newFixture(t, 5)
	ctx := context.Background()

	agent, err := fx.manager.CreateAgent(ctx, models.RoleWorker, "", nil)
	if err != nil {
		t.Fatalf("CreateAgent returned error: %v", err)
	}

	if !fx.manager.RemoveAgent(ctx, agent.ID()) {
		t.Fatalf("RemoveAgent returned false for a registered agent")
	}
	if agent.State() != models.StateShutdown {
		t.Errorf("removed agent state = %s, want shutdown", agent.State())
	}
	if fx.manager.GetAgent(agent.ID()) != nil {
		t.Errorf("removed agent still resolvable")
	}
	if fx.manager.RemoveAgent(ctx, agent.ID()) {
		t.Errorf("RemoveAgent returned true for an unknown id")
	}
	if fx.manager.RemoveAgent(ctx, "agent_worker_99_cafe0000") {
		t.Errorf("RemoveAgent returned true for a never-registered id")
	}
}

func TestGetStats(t *testing.T) {
	fx := newFixture(t, 5, "Hi there.")
	ctx := context.Background()

	adminID, err := fx.manager.HandleUserMessage(ctx, "Hello", "")
	if err != nil {
		t.Fatalf("HandleUserMessage returned error: %v", err)
	}
	fx.settle(t)

	if _, err := fx.manager.CreateAgent(ctx, models.RoleWorker, "", nil); err != nil {
		t.Fatalf("CreateAgent returned error: %v", err)
	}

	stats := fx.manager.GetStats()
	if stats.TotalCreated != 2 || stats.Active != 2 {
		t.Errorf("stats counts = created %d active %d, want 2/2", stats.TotalCreated, stats.Active)
	}
	if stats.CyclesRun != 1 {
		t.Errorf("stats cycles = %d, want 1", stats.CyclesRun)
	}
	if stats.States[string(models.StateIdle)] != 2 {
		t.Errorf("state histogram = %v, want 2 idle", stats.States)
	}
	if stats.AverageHealth <= 0 || stats.AverageHealth > 1 {
		t.Errorf("average health = %f, want (0, 1]", stats.AverageHealth)
	}
	if fx.manager.GetAgent(adminID) == nil {
		t.Errorf("admin not resolvable after stats")
	}
}

func TestHandleUserMessageReusesAdmin(t *testing.T) {
	fx := newFixture(t, 5, "First.", "Second.")
	ctx := context.Background()

	first, err := fx.manager.HandleUserMessage(ctx, "one", "alice")
	if err != nil {
		t.Fatalf("first HandleUserMessage returned error: %v", err)
	}
	fx.settle(t)

	second, err := fx.manager.HandleUserMessage(ctx, "two", "alice")
	if err != nil {
		t.Fatalf("second HandleUserMessage returned error: %v", err)
	}
	fx.settle(t)

	if first != second {
		t.Errorf("admin ids differ across messages: %s vs %s", first, second)
	}
	if got := len(fx.manager.GetAgentsByRole(models.RoleAdmin)); got != 1 {
		t.Errorf("admins registered = %d, want 1", got)
	}
}

func TestHandleUserMessageRejectsEmpty(t *testing.T) {
	fx := newFixture(t, 5)
	if _, err := fx.manager.HandleUserMessage(context.Background(), "   ", ""); err == nil {
		t.Fatalf("empty message accepted")
	}
	if got := len(fx.manager.GetAllAgents()); got != 0 {
		t.Errorf("empty message created %d agents", got)
	}
}

func TestScheduleCycleSkipsProcessingAgent(t *testing.T) {
	fx := newFixture(t, 5, "never consumed")
	ctx := context.Background()

	agent, err := fx.manager.CreateAgent(ctx, models.RoleWorker, "", nil)
	if err != nil {
		t.Fatalf("CreateAgent returned error: %v", err)
	}
	agent.ApplyTransition(models.StateProcessing, "simulated in-flight cycle")

	fx.manager.ScheduleCycle(agent.ID(), "test")
	fx.settle(t)

	if calls := len(fx.client.Calls()); calls != 0 {
		t.Errorf("LLM called %d times for a skipped cycle, want 0", calls)
	}
}

func TestDeliverMessageUnknownAgent(t *testing.T) {
	fx := newFixture(t, 5)
	err := fx.manager.DeliverMessage(context.Background(), "a", "agent_worker_9_dead0000", "hi")
	if err == nil {
		t.Fatalf("DeliverMessage accepted an unknown target")
	}
}

// Sequential sends from one sender must land in the target's history in send
// order. Delivery appends before the cycle is scheduled, so the order holds
// regardless of when the target's cycles run.
func TestDeliverMessageKeepsSenderOrder(t *testing.T) {
	fx := newFixture(t, 5, "ack one", "ack two")
	ctx := context.Background()

	worker, err := fx.manager.CreateAgent(ctx, models.RoleWorker, "", nil)
	if err != nil {
		t.Fatalf("CreateAgent returned error: %v", err)
	}

	sender := "agent_admin_1_aaaa0000"
	if err := fx.manager.DeliverMessage(ctx, sender, worker.ID(), "first"); err != nil {
		t.Fatalf("DeliverMessage returned error: %v", err)
	}
	if err := fx.manager.DeliverMessage(ctx, sender, worker.ID(), "second"); err != nil {
		t.Fatalf("DeliverMessage returned error: %v", err)
	}
	fx.settle(t)

	var delivered []string
	for _, msg := range worker.History() {
		if msg.Role == models.MessageRoleUser {
			delivered = append(delivered, msg.Content)
		}
	}
	if len(delivered) != 2 {
		t.Fatalf("worker received %d user messages, want 2: %v", len(delivered), delivered)
	}
	if !strings.Contains(delivered[0], "first") || !strings.Contains(delivered[1], "second") {
		t.Errorf("messages out of order: %v", delivered)
	}
}

func TestShutdownStopsEverything(t *testing.T) {
	fx := newFixture(t, 5)
	ctx := context.Background()

	agent, err := fx.manager.CreateAgent(ctx, models.RoleWorker, "", nil)
	if err != nil {
		t.Fatalf("CreateAgent returned error: %v", err)
	}

	if err := fx.manager.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
	if agent.State() != models.StateShutdown {
		t.Errorf("agent state after shutdown = %s, want shutdown", agent.State())
	}
	if agent.Running() {
		t.Errorf("agent heartbeat still running after shutdown")
	}
	if got := len(fx.manager.GetAllAgents()); got != 0 {
		t.Errorf("registry size after shutdown = %d, want 0", got)
	}
	if _, err := fx.manager.CreateAgent(ctx, models.RoleWorker, "", nil); err != ErrShuttingDown {
		t.Errorf("CreateAgent after shutdown error = %v, want ErrShuttingDown", err)
	}
	if err := fx.manager.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown returned error: %v", err)
	}
}
