// Package v1 defines the wire types of the REST and WebSocket facade.
package v1

import "time"

// AgentMetrics carries an agent's counters on the wire.
type AgentMetrics struct {
	TasksCompleted int       `json:"tasks_completed"`
	TasksFailed    int       `json:"tasks_failed"`
	CyclesRun      int       `json:"cycles_run"`
	Violations     int       `json:"violations"`
	HealthScore    float64   `json:"health_score"`
	LastHeartbeat  time.Time `json:"last_heartbeat"`
}

// Agent is the redacted agent view returned by GET /agents. History content
// and working memory never appear here.
type Agent struct {
	ID            string       `json:"id"`
	Role          string       `json:"role"`
	State         string       `json:"state"`
	Capabilities  []string     `json:"capabilities,omitempty"`
	Metrics       AgentMetrics `json:"metrics"`
	UptimeSeconds float64      `json:"uptime_seconds"`
	Compliant     bool         `json:"compliant"`
	HistoryLength int          `json:"history_length"`
	CreatedAt     time.Time    `json:"created_at"`
	LastActivity  time.Time    `json:"last_activity"`
}

// AgentListResponse wraps GET /agents.
type AgentListResponse struct {
	Agents []Agent `json:"agents"`
	Count  int     `json:"count"`
}

// CreateAgentRequest is the body of POST /agents/create.
type CreateAgentRequest struct {
	Role         string   `json:"role"`
	UserID       string   `json:"user_id,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// CreateAgentResponse returns the id of the created agent.
type CreateAgentResponse struct {
	ID string `json:"id"`
}

// StatsResponse is the aggregate runtime view returned by GET /stats.
type StatsResponse struct {
	TotalCreated    int            `json:"total_created"`
	Active          int            `json:"active"`
	CyclesRun       int            `json:"cycles_run"`
	TotalViolations int            `json:"total_violations"`
	AverageHealth   float64        `json:"average_health"`
	States          map[string]int `json:"states"`
}
