package parser

import (
	"reflect"
	"testing"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/models"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/logger"
)

func newTestParser() *Parser {
	return New(logger.Default())
}

func TestParseToolCalls(t *testing.T) {
	p := newTestParser()

	text := `I will look that up now.

<tool_requests>
  <calls>
    <tool_call>
      <name>memory_search</name>
      <args>
        <query>solar installation permits</query>
        <limit>5</limit>
      </args>
    </tool_call>
    <tool_call>
      <name>current_time</name>
      <args>
      </args>
    </tool_call>
  </calls>
</tool_requests>

Waiting for results.`

	result := p.ParseToolCalls(text)
	if !result.OK {
		t.Fatalf("expected OK result, got error: %v", result.Err)
	}
	if len(result.Calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(result.Calls))
	}
	first := result.Calls[0]
	if first.Name != "memory_search" {
		t.Errorf("expected first call memory_search, got %q", first.Name)
	}
	if first.Args["query"] != "solar installation permits" {
		t.Errorf("unexpected query arg: %q", first.Args["query"])
	}
	if first.Args["limit"] != "5" {
		t.Errorf("unexpected limit arg: %q", first.Args["limit"])
	}
	if first.Fallback {
		t.Error("structured parse should not be flagged as fallback")
	}
	second := result.Calls[1]
	if second.Name != "current_time" {
		t.Errorf("expected second call current_time, got %q", second.Name)
	}
	if second.Args == nil {
		t.Error("args map should never be nil")
	}
}

func TestParseToolCallsNoBlock(t *testing.T) {
	p := newTestParser()

	result := p.ParseToolCalls("Just a normal response with no structured content.")
	if result.OK {
		t.Fatal("expected parse to fail without a tool_requests block")
	}
	if result.Err == nil {
		t.Error("expected an error describing the missing block")
	}
}

func TestParseToolCallsSkipsEmptyName(t *testing.T) {
	p := newTestParser()

	text := `<tool_requests>
  <calls>
    <tool_call>
      <name></name>
      <args><x>1</x></args>
    </tool_call>
    <tool_call>
      <name>list_agents</name>
      <args></args>
    </tool_call>
  </calls>
</tool_requests>`

	result := p.ParseToolCalls(text)
	if !result.OK {
		t.Fatalf("expected OK result, got error: %v", result.Err)
	}
	if len(result.Calls) != 1 {
		t.Fatalf("expected 1 call after skipping empty name, got %d", len(result.Calls))
	}
	if result.Calls[0].Name != "list_agents" {
		t.Errorf("expected list_agents, got %q", result.Calls[0].Name)
	}
}

func TestParseToolCallsFallback(t *testing.T) {
	p := newTestParser()

	// Unclosed <calls> makes the XML decoder fail; the delimiter scan still
	// recovers the single call.
	text := `<tool_requests>
  <calls>
    <tool_call>
      <name>send_message</name>
      <args>
        <target_agent_id>agent-2</target_agent_id>
        <message>status update please</message>
      </args>
    </tool_call>
</tool_requests>`

	result := p.ParseToolCalls(text)
	if !result.OK {
		t.Fatalf("expected fallback to recover the call, got error: %v", result.Err)
	}
	if len(result.Calls) != 1 {
		t.Fatalf("expected 1 recovered call, got %d", len(result.Calls))
	}
	call := result.Calls[0]
	if !call.Fallback {
		t.Error("recovered call must be flagged as fallback")
	}
	if call.Name != "send_message" {
		t.Errorf("expected send_message, got %q", call.Name)
	}
	if call.Args["target_agent_id"] != "agent-2" {
		t.Errorf("unexpected target_agent_id: %q", call.Args["target_agent_id"])
	}
	if call.Args["message"] != "status update please" {
		t.Errorf("unexpected message: %q", call.Args["message"])
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	p := newTestParser()

	calls := []models.ToolCall{
		{
			Name: "memory_store",
			Args: map[string]string{
				"content":    "kickoff meeting moved to Tuesday",
				"importance": "high",
			},
		},
		{
			Name: "list_agents",
			Args: map[string]string{},
		},
	}

	result := p.ParseToolCalls(SerializeToolCalls(calls))
	if !result.OK {
		t.Fatalf("round trip parse failed: %v", result.Err)
	}
	if len(result.Calls) != len(calls) {
		t.Fatalf("expected %d calls, got %d", len(calls), len(result.Calls))
	}
	for i, call := range result.Calls {
		if call.Name != calls[i].Name {
			t.Errorf("call %d: expected name %q, got %q", i, calls[i].Name, call.Name)
		}
		if !reflect.DeepEqual(call.Args, calls[i].Args) {
			t.Errorf("call %d: args mismatch: %v != %v", i, call.Args, calls[i].Args)
		}
	}
}

func TestExtractPlan(t *testing.T) {
	p := newTestParser()

	text := `Here is the project plan.

<plan>
  <project_name>Community Garden Portal</project_name>
  <description>A portal for plot bookings and seasonal schedules.</description>
  <objectives>
    - collect plot availability
    - publish watering rota
  </objectives>
  <deliverables>
    - booking page
    - rota export
  </deliverables>
</plan>`

	plan := p.ExtractPlan(text)
	if plan == nil {
		t.Fatal("expected a plan")
	}
	if plan.ProjectName != "Community Garden Portal" {
		t.Errorf("unexpected project name: %q", plan.ProjectName)
	}
	if len(plan.Objectives) != 2 || plan.Objectives[1] != "publish watering rota" {
		t.Errorf("unexpected objectives: %v", plan.Objectives)
	}
	if len(plan.Deliverables) != 2 || plan.Deliverables[0] != "booking page" {
		t.Errorf("unexpected deliverables: %v", plan.Deliverables)
	}
}

func TestExtractPlanMissingOrMalformed(t *testing.T) {
	p := newTestParser()

	if plan := p.ExtractPlan("no plan here"); plan != nil {
		t.Errorf("expected nil plan, got %+v", plan)
	}
	if plan := p.ExtractPlan("<plan><project_name>x</plan>"); plan != nil {
		t.Errorf("expected nil plan for malformed block, got %+v", plan)
	}
}

func TestExtractTaskList(t *testing.T) {
	p := newTestParser()

	text := `<task_list>
  <task>
    <id>t-1</id>
    <name>Design schema</name>
    <description>Model plots and bookings.</description>
    <required_skills>sql</required_skills>
    <priority>high</priority>
  </task>
  <task>
    <name>Build rota export</name>
    <description>CSV export of the watering rota.</description>
  </task>
</task_list>`

	tasks := p.ExtractTaskList(text)
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].ID != "t-1" || tasks[0].Name != "Design schema" {
		t.Errorf("unexpected first task: %+v", tasks[0])
	}
	if tasks[0].RequiredSkills != "sql" {
		t.Errorf("unexpected required skills: %q", tasks[0].RequiredSkills)
	}
	if tasks[0].Fields["priority"] != "high" {
		t.Errorf("unknown tag should land in Fields, got %v", tasks[0].Fields)
	}
	if tasks[1].Fields != nil {
		t.Errorf("second task should carry no extra fields, got %v", tasks[1].Fields)
	}
}

func TestExtractTaskListEmpty(t *testing.T) {
	p := newTestParser()

	if tasks := p.ExtractTaskList("nothing structured"); tasks != nil {
		t.Errorf("expected nil, got %v", tasks)
	}
	if tasks := p.ExtractTaskList("<task_list></task_list>"); tasks != nil {
		t.Errorf("expected nil for empty list, got %v", tasks)
	}
}

func TestExtractCreateWorkerRequest(t *testing.T) {
	p := newTestParser()

	text := `<create_worker_request>
  <task_id>t-7</task_id>
  <specialty>frontend</specialty>
</create_worker_request>`

	req := p.ExtractCreateWorkerRequest(text)
	if req == nil {
		t.Fatal("expected a worker request")
	}
	if req.TaskID != "t-7" || req.Specialty != "frontend" {
		t.Errorf("unexpected request: %+v", req)
	}

	missing := p.ExtractCreateWorkerRequest("<create_worker_request><specialty>qa</specialty></create_worker_request>")
	if missing != nil {
		t.Errorf("request without task_id must be rejected, got %+v", missing)
	}
}

func TestExtractStateChange(t *testing.T) {
	p := newTestParser()

	state, ok := p.ExtractStateChange("<state_change><new_state>planning</new_state></state_change>")
	if !ok || state != models.StatePlanning {
		t.Fatalf("expected planning, got %q ok=%v", state, ok)
	}

	// State names are matched case-insensitively.
	state, ok = p.ExtractStateChange("<state_change><new_state>BUILD_TEAM_TASKS</new_state></state_change>")
	if !ok || state != models.StateBuildTeamTasks {
		t.Fatalf("expected build_team_tasks, got %q ok=%v", state, ok)
	}

	if _, ok := p.ExtractStateChange("<state_change><new_state>flying</new_state></state_change>"); ok {
		t.Error("unknown state must be rejected")
	}
	if _, ok := p.ExtractStateChange("no block"); ok {
		t.Error("missing block must not report a state")
	}
}
