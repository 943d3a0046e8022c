package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/logger"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/events"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/events/bus"
	v1 "github.com/gaborkukucska/hai-net-seed-sub000/pkg/api/v1"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "debug", Format: "console", OutputPath: "stdout"})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return log
}

type wsFixture struct {
	bus    *bus.MemoryEventBus
	hub    *Hub
	server *httptest.Server
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	log := newTestLogger(t)
	eventBus := bus.NewMemoryEventBus(log)

	hub := NewHub(log)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	bridge := NewBridge(hub, eventBus, log)
	if err := bridge.Start(); err != nil {
		t.Fatalf("bridge start failed: %v", err)
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler := NewHandler(hub, log)
	router.GET("/ws/:client_id", handler.HandleConnection)

	server := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		bridge.Stop()
		cancel()
		eventBus.Close()
	})
	return &wsFixture{bus: eventBus, hub: hub, server: server}
}

func (fx *wsFixture) dial(t *testing.T, clientID string) *gorillaws.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(fx.server.URL, "http") + "/ws/" + clientID
	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readRaw reads the next message from the connection. The write pump batches
// queued frames into one message separated by newlines, so one read may
// yield several.
func readRaw(t *testing.T, conn *gorillaws.Conn) [][]byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var parts [][]byte
	for _, part := range strings.Split(string(data), "\n") {
		if part != "" {
			parts = append(parts, []byte(part))
		}
	}
	return parts
}

func readEventFrame(t *testing.T, conn *gorillaws.Conn) *v1.EventFrame {
	t.Helper()
	for _, raw := range readRaw(t, conn) {
		var frame v1.EventFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			t.Fatalf("failed to parse frame %q: %v", raw, err)
		}
		if frame.Type == "event" {
			return &frame
		}
	}
	return readEventFrame(t, conn)
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d clients, have %d", want, hub.ClientCount())
}

func TestHubBroadcastsBusEvents(t *testing.T) {
	fx := newWSFixture(t)
	conn := fx.dial(t, "ui-1")
	waitForClients(t, fx.hub, 1)

	event := bus.NewEvent(events.AgentStateChanged, "workflow", map[string]interface{}{
		"agent_id": "agent_admin_1_abc",
		"from":     "idle",
		"to":       "conversation",
	})
	if err := fx.bus.Publish(context.Background(), events.BuildAgentStateSubject("agent_admin_1_abc"), event); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	frame := readEventFrame(t, conn)
	if frame.Event != events.AgentStateChanged {
		t.Errorf("expected event %q, got %q", events.AgentStateChanged, frame.Event)
	}
	if frame.Stream != "agent" {
		t.Errorf("expected stream agent, got %q", frame.Stream)
	}
	if frame.AgentID != "agent_admin_1_abc" {
		t.Errorf("expected agent id propagated, got %q", frame.AgentID)
	}
	if frame.Data["to"] != "conversation" {
		t.Errorf("expected data passthrough, got %v", frame.Data)
	}
	if frame.Timestamp.IsZero() {
		t.Error("expected a timestamp")
	}
}

func TestClientStreamFilter(t *testing.T) {
	fx := newWSFixture(t)
	conn := fx.dial(t, "ui-2")
	waitForClients(t, fx.hub, 1)

	cmd, _ := json.Marshal(v1.WSCommand{Action: ActionSubscribe, Streams: []string{"guardian"}})
	if err := conn.WriteMessage(gorillaws.TextMessage, cmd); err != nil {
		t.Fatalf("failed to send subscribe: %v", err)
	}

	// Wait for the ack so the filter is installed before publishing.
	var ack v1.WSAck
	if err := json.Unmarshal(readRaw(t, conn)[0], &ack); err != nil {
		t.Fatalf("failed to parse ack: %v", err)
	}
	if ack.Type != "ack" {
		t.Fatalf("expected ack, got %+v", ack)
	}

	agentEvent := bus.NewEvent(events.AgentCreated, "agent_manager", map[string]interface{}{"agent_id": "a1"})
	if err := fx.bus.Publish(context.Background(), events.AgentCreated+".a1", agentEvent); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	guardianEvent := bus.NewEvent(events.GuardianViolation, "guardian", map[string]interface{}{"principle": "privacy"})
	if err := fx.bus.Publish(context.Background(), events.GuardianViolation, guardianEvent); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	frame := readEventFrame(t, conn)
	if frame.Event != events.GuardianViolation {
		t.Errorf("expected only the guardian event, got %q", frame.Event)
	}
}

func TestClientUnknownAction(t *testing.T) {
	fx := newWSFixture(t)
	conn := fx.dial(t, "ui-3")
	waitForClients(t, fx.hub, 1)

	cmd, _ := json.Marshal(v1.WSCommand{Action: "launch"})
	if err := conn.WriteMessage(gorillaws.TextMessage, cmd); err != nil {
		t.Fatalf("failed to send command: %v", err)
	}

	var ack v1.WSAck
	if err := json.Unmarshal(readRaw(t, conn)[0], &ack); err != nil {
		t.Fatalf("failed to parse ack: %v", err)
	}
	if ack.Type != "error" || ack.Error == "" {
		t.Errorf("expected error ack for unknown action, got %+v", ack)
	}
}

func TestHubDisconnectCleanup(t *testing.T) {
	fx := newWSFixture(t)
	conn := fx.dial(t, "ui-4")
	waitForClients(t, fx.hub, 1)

	conn.Close()
	waitForClients(t, fx.hub, 0)
}
