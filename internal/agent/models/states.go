package models

import "time"

// State is a position in the agent lifecycle state machine. It controls which
// prompt the agent is assembled with and which transitions are legal.
type State string

const (
	StateIdle            State = "idle"
	StateStartup         State = "startup"
	StatePlanning        State = "planning"
	StateConversation    State = "conversation"
	StateWork            State = "work"
	StateWait            State = "wait"
	StateStandby         State = "standby"
	StateManage          State = "manage"
	StateBuildTeamTasks  State = "build_team_tasks"
	StateActivateWorkers State = "activate_workers"
	StateMaintenance     State = "maintenance"
	StateShutdown        State = "shutdown"
	StateError           State = "error"

	// StateProcessing is reserved as the "currently running a cycle" marker.
	// Only the cycle handler moves an agent into it.
	StateProcessing State = "processing"
)

// allStates lists every defined state, in declaration order.
var allStates = []State{
	StateIdle, StateStartup, StatePlanning, StateConversation, StateWork,
	StateWait, StateStandby, StateManage, StateBuildTeamTasks,
	StateActivateWorkers, StateMaintenance, StateShutdown, StateError,
	StateProcessing,
}

// ParseState converts a string into a State. Unknown names return false.
func ParseState(s string) (State, bool) {
	for _, st := range allStates {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// Valid reports whether the state is one of the defined states.
func (s State) Valid() bool {
	_, ok := ParseState(string(s))
	return ok
}

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateShutdown
}

// DefaultActiveState returns the state an idle agent of the given role is
// resolved to for prompt lookup.
func DefaultActiveState(role Role) State {
	switch role {
	case RoleAdmin:
		return StateConversation
	case RoleManager:
		return StateStartup
	case RoleWorker:
		return StateWork
	case RoleGuardian:
		return StateIdle
	default:
		return StateIdle
	}
}

// StateTransition is one entry in an agent's append-only state history.
type StateTransition struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NoOp reports whether the transition recorded a same-state change request.
func (t StateTransition) NoOp() bool {
	return t.From == t.To
}
