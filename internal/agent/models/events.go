package models

// EventKind identifies what an agent asked the orchestration to do during a
// processing cycle.
type EventKind string

const (
	// EventThought is an informational summary of the turn.
	EventThought EventKind = "agent_thought"

	// EventToolRequests carries one or more tool calls to execute.
	EventToolRequests EventKind = "tool_requests"

	// EventStateChangeRequested asks the workflow manager for a transition.
	EventStateChangeRequested EventKind = "state_change_requested"

	// EventPlanCreated carries a project plan to hand to a manager agent.
	EventPlanCreated EventKind = "plan_created"

	// EventTaskListCreated carries a decomposed task list.
	EventTaskListCreated EventKind = "task_list_created"

	// EventCreateWorkerRequest asks for a new specialist worker agent.
	EventCreateWorkerRequest EventKind = "create_worker_request"

	// EventFinalResponse is the agent's externalizable answer for the turn.
	EventFinalResponse EventKind = "final_response"

	// EventError surfaces a stream-read failure to the cycle handler. The
	// cycle transitions the agent to the error state and ends.
	EventError EventKind = "error"
)

// Event is the tagged variant produced by Agent.ProcessMessage and consumed
// by the cycle handler. Only the fields matching Kind are populated; events
// are value objects with no lifetime beyond the cycle that produced them.
type Event struct {
	Kind EventKind `json:"kind"`

	// EventThought
	Thought string `json:"thought,omitempty"`

	// EventToolRequests
	Calls []ToolCall `json:"calls,omitempty"`

	// EventStateChangeRequested
	NewState State `json:"new_state,omitempty"`

	// EventPlanCreated
	Plan *Plan `json:"plan,omitempty"`

	// EventTaskListCreated
	Tasks []Task `json:"tasks,omitempty"`

	// EventCreateWorkerRequest
	Worker *WorkerRequest `json:"worker,omitempty"`

	// EventFinalResponse
	Content string `json:"content,omitempty"`

	// EventError
	Error string `json:"error,omitempty"`
}

// ThoughtEvent builds an informational summary event.
func ThoughtEvent(text string) Event {
	return Event{Kind: EventThought, Thought: text}
}

// ToolRequestsEvent builds an event carrying extracted tool calls.
func ToolRequestsEvent(calls []ToolCall) Event {
	return Event{Kind: EventToolRequests, Calls: calls}
}

// StateChangeEvent builds a transition request event.
func StateChangeEvent(newState State) Event {
	return Event{Kind: EventStateChangeRequested, NewState: newState}
}

// PlanEvent builds a plan-created event.
func PlanEvent(plan Plan) Event {
	return Event{Kind: EventPlanCreated, Plan: &plan}
}

// TaskListEvent builds a task-list-created event.
func TaskListEvent(tasks []Task) Event {
	return Event{Kind: EventTaskListCreated, Tasks: tasks}
}

// WorkerRequestEvent builds a create-worker request event.
func WorkerRequestEvent(req WorkerRequest) Event {
	return Event{Kind: EventCreateWorkerRequest, Worker: &req}
}

// FinalResponseEvent builds the terminal response event for a cycle.
func FinalResponseEvent(content string) Event {
	return Event{Kind: EventFinalResponse, Content: content}
}

// ErrorEvent builds a stream-failure event.
func ErrorEvent(err error) Event {
	if err == nil {
		return Event{Kind: EventError}
	}
	return Event{Kind: EventError, Error: err.Error()}
}
