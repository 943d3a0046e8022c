package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/logger"
	v1 "github.com/gaborkukucska/hai-net-seed-sub000/pkg/api/v1"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024 // 64KB; commands are tiny
)

// Client actions understood by the gateway.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionPing        = "ping"
)

// Client represents a single WebSocket connection. A client with no stream
// subscriptions receives every event; subscribing narrows delivery to the
// chosen stream roots.
type Client struct {
	ID   string
	conn *websocket.Conn
	hub  *Hub
	send chan []byte

	mu      sync.RWMutex
	streams map[string]bool

	logger *logger.Logger
}

// NewClient creates a client for an upgraded connection.
func NewClient(id string, conn *websocket.Conn, hub *Hub, log *logger.Logger) *Client {
	return &Client{
		ID:      id,
		conn:    conn,
		hub:     hub,
		send:    make(chan []byte, 256),
		streams: make(map[string]bool),
		logger:  log.WithFields(zap.String("client_id", id)),
	}
}

// wants reports whether the client's filter admits the stream.
func (c *Client) wants(stream string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.streams) == 0 {
		return true
	}
	return c.streams[stream]
}

// ReadPump pumps commands from the WebSocket connection. It unregisters the
// client when the connection drops.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket read error", zap.Error(err))
			}
			break
		}

		var cmd v1.WSCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			c.logger.Debug("Failed to parse command", zap.Error(err))
			c.sendAck(v1.WSAck{Type: "error", Error: "invalid command format"})
			continue
		}
		c.handleCommand(cmd)
	}
}

func (c *Client) handleCommand(cmd v1.WSCommand) {
	switch cmd.Action {
	case ActionSubscribe:
		c.mu.Lock()
		for _, stream := range cmd.Streams {
			if stream != "" {
				c.streams[stream] = true
			}
		}
		c.mu.Unlock()
		c.sendAck(v1.WSAck{Type: "ack", Action: cmd.Action, Streams: c.subscribed()})

	case ActionUnsubscribe:
		c.mu.Lock()
		for _, stream := range cmd.Streams {
			delete(c.streams, stream)
		}
		c.mu.Unlock()
		c.sendAck(v1.WSAck{Type: "ack", Action: cmd.Action, Streams: c.subscribed()})

	case ActionPing:
		c.sendAck(v1.WSAck{Type: "ack", Action: cmd.Action})

	default:
		c.sendAck(v1.WSAck{Type: "error", Action: cmd.Action, Error: "unknown action"})
	}
}

func (c *Client) subscribed() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	streams := make([]string, 0, len(c.streams))
	for stream := range c.streams {
		streams = append(streams, stream)
	}
	return streams
}

func (c *Client) sendAck(ack v1.WSAck) {
	data, err := json.Marshal(ack)
	if err != nil {
		c.logger.Error("Failed to marshal ack", zap.Error(err))
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("Client send buffer full")
	}
}

// WritePump pumps frames from the hub to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Batch additional queued messages
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
