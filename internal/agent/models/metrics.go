package models

import "time"

// AgentMetrics tracks per-agent counters and the derived health score.
// Guarded by the owning agent's mutex.
type AgentMetrics struct {
	TasksCompleted int       `json:"tasks_completed"`
	TasksFailed    int       `json:"tasks_failed"`
	CyclesRun      int       `json:"cycles_run"`
	Violations     int       `json:"violations"`
	HealthScore    float64   `json:"health_score"`
	LastHeartbeat  time.Time `json:"last_heartbeat"`
}

// NewAgentMetrics returns metrics in their initial state: perfect health,
// zero counters.
func NewAgentMetrics() AgentMetrics {
	return AgentMetrics{HealthScore: 1.0, LastHeartbeat: time.Now().UTC()}
}

// FailureRate returns failed / (completed + failed), or 0 when idle.
func (m AgentMetrics) FailureRate() float64 {
	total := m.TasksCompleted + m.TasksFailed
	if total == 0 {
		return 0
	}
	return float64(m.TasksFailed) / float64(total)
}

// AgentStatus is the redacted view of an agent returned by GetStatus and the
// REST facade. It never exposes history content or working memory.
type AgentStatus struct {
	ID            string       `json:"id"`
	Role          Role         `json:"role"`
	State         State        `json:"state"`
	Capabilities  []string     `json:"capabilities"`
	Metrics       AgentMetrics `json:"metrics"`
	UptimeSeconds float64      `json:"uptime_seconds"`
	Compliant     bool         `json:"compliant"`
	HistoryLength int          `json:"history_length"`
	CreatedAt     time.Time    `json:"created_at"`
	LastActivity  time.Time    `json:"last_activity"`
}

// AgentSnapshot is the durable record persisted when an agent stops.
type AgentSnapshot struct {
	ID           string            `json:"id"`
	Role         Role              `json:"role"`
	FinalState   State             `json:"final_state"`
	Metrics      AgentMetrics      `json:"metrics"`
	Transitions  []StateTransition `json:"transitions"`
	HistoryCount int               `json:"history_count"`
	StoppedAt    time.Time         `json:"stopped_at"`
}
