package lifecycle

import (
	"context"
	"fmt"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/models"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/events"
)

// DeliverMessage appends an inter-agent message to the target's history and
// schedules a cycle for it. Appends from one sender arrive in send order;
// the message format is the one agents are prompted to recognize.
func (m *Manager) DeliverMessage(ctx context.Context, fromID, toID, message string) error {
	target := m.GetAgent(toID)
	if target == nil {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, toID)
	}

	target.AppendUser(models.FormatAgentMessage(fromID, message))
	m.publishAgentEvent(ctx, events.AgentMessage, toID, map[string]interface{}{
		"from":    fromID,
		"to":      toID,
		"message": message,
	})
	m.ScheduleCycle(toID, "message from "+fromID)
	return nil
}

// AgentSummaries returns the redacted status of every agent, sorted by id.
// Backs the list_agents tool and the REST listing.
func (m *Manager) AgentSummaries() []models.AgentStatus {
	agents := m.GetAllAgents()
	out := make([]models.AgentStatus, 0, len(agents))
	for _, agent := range agents {
		out = append(out, agent.GetStatus())
	}
	return out
}
