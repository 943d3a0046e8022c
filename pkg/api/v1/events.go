package v1

import "time"

// EventFrame is one bus event delivered over the WebSocket gateway. Type is
// always "event"; Event carries the bus event type ("agent.state_changed",
// "cycle.completed", ...) and Stream its first token ("agent", "cycle",
// "guardian", "workflow", "peer").
type EventFrame struct {
	Type      string                 `json:"type"`
	Stream    string                 `json:"stream"`
	Event     string                 `json:"event"`
	AgentID   string                 `json:"agent_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// WSCommand is a client-to-server frame on the WebSocket gateway.
type WSCommand struct {
	Action  string   `json:"action"`            // subscribe, unsubscribe, ping
	Streams []string `json:"streams,omitempty"` // stream roots the action applies to
}

// WSAck answers a WSCommand.
type WSAck struct {
	Type    string   `json:"type"` // "ack" or "error"
	Action  string   `json:"action,omitempty"`
	Streams []string `json:"streams,omitempty"`
	Error   string   `json:"error,omitempty"`
}
