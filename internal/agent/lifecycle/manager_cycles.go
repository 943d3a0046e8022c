package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/models"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/agent/runtime"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/workflow"
)

// HandleUserMessage finds or creates the admin agent for the user, appends
// the text to its history, and schedules a cycle. Returns the admin's id so
// the caller can follow the cycle's events.
func (m *Manager) HandleUserMessage(ctx context.Context, text, userID string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("lifecycle: empty message")
	}
	admin, err := m.adminFor(ctx, userID)
	if err != nil {
		return "", err
	}
	admin.AppendUser(text)
	m.ScheduleCycle(admin.ID(), "user message")
	return admin.ID(), nil
}

// adminFor resolves the admin agent serving one user, creating it on first
// contact.
func (m *Manager) adminFor(ctx context.Context, userID string) (*runtime.Agent, error) {
	key := userKey(userID)
	m.mu.RLock()
	id, ok := m.adminByUser[key]
	m.mu.RUnlock()
	if ok {
		if agent := m.GetAgent(id); agent != nil {
			return agent, nil
		}
	}
	return m.CreateAgent(ctx, models.RoleAdmin, userID, nil)
}

// ScheduleCycle launches a cycle for the agent as a detached task. An agent
// already processing is skipped with a warning. Detached tasks wait their
// turn on the node-wide semaphore, then on the agent's own cycle slot, so
// cycles run concurrently across agents but never overlap on one agent.
func (m *Manager) ScheduleCycle(agentID, reason string) {
	agent := m.GetAgent(agentID)
	if agent == nil {
		m.logger.Warn("cycle requested for unknown agent", zap.String("agent_id", agentID))
		return
	}
	if agent.State() == models.StateProcessing {
		m.logger.Warn("cycle skipped, agent already processing",
			zap.String("agent_id", agentID),
			zap.String("reason", reason))
		return
	}

	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		m.logger.Warn("cycle refused during shutdown", zap.String("agent_id", agentID))
		return
	}

	m.cycleWG.Add(1)
	m.inflight.Add(1)
	go func() {
		defer m.cycleWG.Done()
		defer m.inflight.Add(-1)

		if err := m.sem.Acquire(m.cycleCtx, 1); err != nil {
			m.logger.Warn("cycle cancelled before start",
				zap.String("agent_id", agentID), zap.Error(err))
			return
		}
		defer m.sem.Release(1)

		if err := m.cycles.RunCycle(m.cycleCtx, agent); err != nil {
			m.logger.Warn("scheduled cycle failed",
				zap.String("agent_id", agentID),
				zap.String("reason", reason),
				zap.Error(err))
		}
	}()
	m.logger.Debug("cycle scheduled",
		zap.String("agent_id", agentID),
		zap.String("reason", reason))
}

// SpawnAgent lets workflow progression create managers and workers through
// the same capped path as the API.
func (m *Manager) SpawnAgent(ctx context.Context, role models.Role, userID string) (workflow.Agent, error) {
	agent, err := m.CreateAgent(ctx, role, userID, nil)
	if err != nil {
		return nil, err
	}
	return agent, nil
}
