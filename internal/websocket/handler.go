package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chatsync/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Free-text usernames, no credentials: origin checking is left to the
		// deployment's proxy layer.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// EventSink receives connection lifecycle signals and decoded inbound
// events. The session coordinator implements it; the indirection keeps this
// package free of business logic.
type EventSink interface {
	Connect(ctx context.Context, connID string, sender Sender)
	HandleEvent(ctx context.Context, connID string, env *types.Envelope) error
	Disconnect(connID string)
}

// HeartbeatConfig tunes the ping/pong liveness checks on each connection.
type HeartbeatConfig struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
}

// DefaultHeartbeat matches a 30s ping against a 60s read deadline.
func DefaultHeartbeat() HeartbeatConfig {
	return HeartbeatConfig{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
	}
}

// Handler upgrades HTTP requests into live chat connections and pumps their
// inbound events into the sink in arrival order.
type Handler struct {
	sink      EventSink
	heartbeat HeartbeatConfig
}

// NewHandler creates a WebSocket handler feeding the supplied sink.
func NewHandler(sink EventSink, heartbeat HeartbeatConfig) *Handler {
	if heartbeat.PingInterval <= 0 || heartbeat.ReadTimeout <= 0 {
		heartbeat = DefaultHeartbeat()
	}
	return &Handler{sink: sink, heartbeat: heartbeat}
}

// HandleWebSocket upgrades the request, registers the connection, and runs
// its read loop until disconnect.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	// The request context dies when this handler returns; session work gets
	// a background context so snapshots and mutations outlive the upgrade.
	wsConn := NewConnection(uuid.NewString(), conn)
	h.sink.Connect(context.Background(), wsConn.ID(), wsConn)

	go h.readLoop(wsConn)
}

// readLoop processes one connection's inbound events in arrival order.
// Cleanup is unconditional: the sink hears about the disconnect even when
// the read loop exits on error.
func (h *Handler) readLoop(conn *Connection) {
	defer func() {
		h.sink.Disconnect(conn.ID())
		_ = conn.Close()
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.heartbeat.ReadTimeout)); err != nil {
		log.Printf("failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.heartbeat.ReadTimeout))
	})

	go h.pingLoop(conn)

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket read error on %s: %v", conn.ID(), err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("malformed envelope from %s: %v", conn.ID(), err)
			continue
		}

		// Events run inline so a connection's own events keep their arrival
		// order; other connections have their own read loops. The background
		// context lets an in-flight mutation complete and broadcast even if
		// this connection disconnects meanwhile.
		if err := h.sink.HandleEvent(context.Background(), conn.ID(), &env); err != nil {
			log.Printf("event %q from %s failed: %v", env.Event, conn.ID(), err)
		}
	}
}

func (h *Handler) pingLoop(conn *Connection) {
	ticker := time.NewTicker(h.heartbeat.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		case <-conn.ctx.Done():
			return
		}
	}
}
