// Package events defines the subjects published on the runtime event bus
// and helpers for building agent-scoped subject names.
package events

import "strings"

// Event types for the agent lifecycle
const (
	AgentCreated      = "agent.created"
	AgentRemoved      = "agent.removed"
	AgentStateChanged = "agent.state_changed"
	AgentMessage      = "agent.message" // inter-agent or user-facing message delivered
	AgentThought      = "agent.thought" // streamed reasoning fragment
)

// Event types for reasoning cycles
const (
	CycleStarted   = "cycle.started"
	CycleCompleted = "cycle.completed"
	CycleFailed    = "cycle.failed"
)

// Event types for constitutional compliance
const (
	GuardianViolation = "guardian.violation" // an output was penalized or blocked
	GuardianAlert     = "guardian.alert"     // monitor flagged an unhealthy agent
)

// Event types for workflow progression
const (
	WorkflowPlanCreated  = "workflow.plan_created"
	WorkflowTasksCreated = "workflow.tasks_created"
	WorkflowTaskAssigned = "workflow.task_assigned"
)

// Event types for local-network peer visibility
const (
	PeerDiscovered = "peer.discovered"
	PeerLost       = "peer.lost"
)

// Wildcard patterns for bridge subscriptions.
const (
	AllAgentEvents    = "agent.>"
	AllCycleEvents    = "cycle.>"
	AllGuardianEvents = "guardian.>"
	AllWorkflowEvents = "workflow.>"
	AllPeerEvents     = "peer.>"
)

// BuildAgentStateSubject creates a per-agent state change subject.
func BuildAgentStateSubject(agentID string) string {
	return AgentStateChanged + "." + agentID
}

// BuildAgentThoughtSubject creates a per-agent thought stream subject.
func BuildAgentThoughtSubject(agentID string) string {
	return AgentThought + "." + agentID
}

// BuildCycleSubject scopes a cycle event type to one agent.
func BuildCycleSubject(eventType, agentID string) string {
	return eventType + "." + agentID
}

// SubjectRoot returns the first dotted segment of a subject, e.g. "cycle"
// for "cycle.completed.agent_admin_1_aaaa0000".
func SubjectRoot(subject string) string {
	if i := strings.IndexByte(subject, '.'); i >= 0 {
		return subject[:i]
	}
	return subject
}
