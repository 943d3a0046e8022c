package websocket

import (
	"context"

	"go.uber.org/zap"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/logger"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/events"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/events/bus"
	v1 "github.com/gaborkukucska/hai-net-seed-sub000/pkg/api/v1"
)

// bridgedSubjects are the bus wildcards mirrored to WebSocket clients.
var bridgedSubjects = []string{
	events.AllAgentEvents,
	events.AllCycleEvents,
	events.AllGuardianEvents,
	events.AllWorkflowEvents,
	events.AllPeerEvents,
}

// Bridge subscribes to the runtime bus and forwards every event to the hub
// as a JSON frame.
type Bridge struct {
	hub      *Hub
	eventBus bus.EventBus
	subs     []bus.Subscription
	logger   *logger.Logger
}

// NewBridge creates a bridge between the bus and the hub.
func NewBridge(hub *Hub, eventBus bus.EventBus, log *logger.Logger) *Bridge {
	return &Bridge{
		hub:      hub,
		eventBus: eventBus,
		logger:   log.WithFields(zap.String("component", "ws_bridge")),
	}
}

// Start subscribes to all bridged subjects.
func (b *Bridge) Start() error {
	for _, subject := range bridgedSubjects {
		sub, err := b.eventBus.Subscribe(subject, b.forward)
		if err != nil {
			b.Stop()
			return err
		}
		b.subs = append(b.subs, sub)
	}
	b.logger.Info("Event bridge started", zap.Int("subjects", len(b.subs)))
	return nil
}

// Stop drops all bus subscriptions.
func (b *Bridge) Stop() {
	for _, sub := range b.subs {
		if err := sub.Unsubscribe(); err != nil {
			b.logger.Warn("Failed to unsubscribe", zap.Error(err))
		}
	}
	b.subs = nil
}

func (b *Bridge) forward(_ context.Context, event *bus.Event) error {
	frame := &v1.EventFrame{
		Type:      "event",
		Stream:    streamOf(event.Type),
		Event:     event.Type,
		Timestamp: event.Timestamp,
		Data:      event.Data,
	}
	if agentID, ok := event.Data["agent_id"].(string); ok {
		frame.AgentID = agentID
	}
	b.hub.Broadcast(frame)
	return nil
}
