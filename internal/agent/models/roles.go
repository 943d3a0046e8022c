// Package models defines the domain types of the agent orchestration runtime:
// roles, lifecycle states, messages, cycle events, tool calls, and the
// decomposition artifacts (plans, tasks) extracted from model output.
package models

import "fmt"

// Role identifies what kind of participant an agent is.
type Role string

const (
	RoleAdmin    Role = "admin"    // user-facing conversational agent
	RoleManager  Role = "manager"  // project manager decomposing plans into tasks
	RoleWorker   Role = "worker"   // specialist executing a single task
	RoleGuardian Role = "guardian" // constitutional compliance oversight
)

// ParseRole converts a string into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleManager, RoleWorker, RoleGuardian:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown agent role: %q", s)
	}
}

// Valid reports whether the role is one of the defined roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleWorker, RoleGuardian:
		return true
	}
	return false
}

// DefaultCapabilities returns the capability tags derived from a role.
func DefaultCapabilities(role Role) []string {
	switch role {
	case RoleAdmin:
		return []string{"user_interface", "planning", "delegation"}
	case RoleManager:
		return []string{"project_management", "task_decomposition", "worker_coordination"}
	case RoleWorker:
		return []string{"task_execution"}
	case RoleGuardian:
		return []string{"output_review", "compliance_monitoring"}
	default:
		return nil
	}
}
