package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/models"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from models.State
		to   models.State
		want bool
	}{
		{"idle to conversation", models.StateIdle, models.StateConversation, true},
		{"idle to startup", models.StateIdle, models.StateStartup, true},
		{"conversation to planning", models.StateConversation, models.StatePlanning, true},
		{"planning back to conversation", models.StatePlanning, models.StateConversation, true},
		{"planning to shutdown", models.StatePlanning, models.StateShutdown, false},
		{"startup to build_team_tasks", models.StateStartup, models.StateBuildTeamTasks, true},
		{"build_team_tasks to activate_workers", models.StateBuildTeamTasks, models.StateActivateWorkers, true},
		{"work to wait", models.StateWork, models.StateWait, true},
		{"wait to work", models.StateWait, models.StateWork, true},
		{"work to manage", models.StateWork, models.StateManage, false},
		{"error to maintenance", models.StateError, models.StateMaintenance, true},
		{"error to idle", models.StateError, models.StateIdle, true},
		{"shutdown is terminal", models.StateShutdown, models.StateIdle, false},
		{"same state is permitted", models.StateWork, models.StateWork, true},
		{"processing to build_team_tasks", models.StateProcessing, models.StateBuildTeamTasks, true},
		{"processing to idle", models.StateProcessing, models.StateIdle, true},
		{"processing to shutdown", models.StateProcessing, models.StateShutdown, false},
		{"no table entry grants processing", models.StateIdle, models.StateProcessing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestEveryTransitionTargetIsDefined(t *testing.T) {
	for from, targets := range transitionTable {
		assert.True(t, from.Valid(), "table keys unknown state %q", from)
		for _, to := range targets {
			assert.True(t, to.Valid(), "table maps %s to unknown state %q", from, to)
			assert.NotEqual(t, models.StateProcessing, to, "table grants %s -> processing; that edge is reserved", from)
		}
	}
}

func TestAllowedTransitionsReturnsCopy(t *testing.T) {
	first := AllowedTransitions(models.StateIdle)
	require.NotEmpty(t, first, "idle should have outgoing transitions")
	first[0] = models.StateShutdown
	second := AllowedTransitions(models.StateIdle)
	if second[0] == models.StateShutdown && transitionTable[models.StateIdle][0] == models.StateShutdown {
		t.Error("AllowedTransitions leaked the backing slice")
	}
}

func TestCanReachShutdown(t *testing.T) {
	assert.True(t, CanReachShutdown(models.StateIdle), "idle should reach shutdown directly")
	assert.False(t, CanReachShutdown(models.StateConversation), "conversation has no direct shutdown edge")
}
