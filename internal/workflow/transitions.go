package workflow

import "github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/models"

// transitionTable enumerates every legal (from, to) edge. Entering
// processing is absent on purpose: the cycle handler takes that edge
// directly and it is exempt from table validation.
var transitionTable = map[models.State][]models.State{
	models.StateIdle: {
		models.StateStartup, models.StateConversation, models.StatePlanning,
		models.StateWork, models.StateManage, models.StateStandby,
		models.StateMaintenance, models.StateShutdown,
	},
	models.StateStartup: {
		models.StateIdle, models.StateConversation, models.StateWork,
		models.StateBuildTeamTasks, models.StateStandby, models.StateError,
		models.StateShutdown,
	},
	models.StateConversation: {
		models.StateIdle, models.StatePlanning, models.StateWait, models.StateError,
	},
	models.StatePlanning: {
		models.StateIdle, models.StateConversation, models.StateError,
	},
	models.StateWork: {
		models.StateIdle, models.StateWait, models.StateError,
	},
	models.StateWait: {
		models.StateIdle, models.StateWork, models.StateError,
	},
	models.StateStandby: {
		models.StateIdle, models.StateManage, models.StateError, models.StateShutdown,
	},
	models.StateManage: {
		models.StateIdle, models.StateStandby, models.StateActivateWorkers, models.StateError,
	},
	models.StateBuildTeamTasks: {
		models.StateIdle, models.StateActivateWorkers, models.StateError,
	},
	models.StateActivateWorkers: {
		models.StateIdle, models.StateManage, models.StateError,
	},
	models.StateMaintenance: {
		models.StateIdle, models.StateShutdown, models.StateError,
	},
	models.StateError: {
		models.StateIdle, models.StateMaintenance, models.StateShutdown,
	},
	// The processing row covers workflow commits that land while an agent's
	// cycle is still running, e.g. a manager moving Startup -> BuildTeamTasks
	// from inside its own cycle.
	models.StateProcessing: {
		models.StateIdle, models.StateError, models.StateStartup,
		models.StateConversation, models.StatePlanning, models.StateWork,
		models.StateWait, models.StateStandby, models.StateManage,
		models.StateBuildTeamTasks, models.StateActivateWorkers,
	},
	// Shutdown is terminal.
	models.StateShutdown: {},
}

// CanTransition reports whether the table permits from -> to. Same-state
// requests are permitted everywhere and recorded as no-ops by the caller.
func CanTransition(from, to models.State) bool {
	if from == to {
		return true
	}
	for _, next := range transitionTable[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns a copy of the legal targets for a state.
func AllowedTransitions(from models.State) []models.State {
	targets := transitionTable[from]
	out := make([]models.State, len(targets))
	copy(out, targets)
	return out
}

// CanReachShutdown reports whether a state has a direct shutdown edge.
// Agents parked elsewhere route through idle first when stopping.
func CanReachShutdown(from models.State) bool {
	return CanTransition(from, models.StateShutdown)
}
