package controlplane

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/syedmehfooz47/Friday2/internal/observe"
	"github.com/syedmehfooz47/Friday2/internal/session"
)

// clientQueueSize bounds each client's outbound queue. A client that falls
// this far behind is pruned rather than allowed to stall the broadcaster.
const clientQueueSize = 32

// client is one connected WebSocket consumer with its own send queue.
type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
}

// Hub fans session events out to every connected WebSocket client. It
// implements [session.Notifier], so the session loop pushes transcript,
// speaking-state, and assistant-text events into it directly.
type Hub struct {
	log     *slog.Logger
	metrics *observe.Metrics

	mu      sync.Mutex
	clients map[uuid.UUID]*client
}

var _ session.Notifier = (*Hub)(nil)

// NewHub creates an empty hub.
func NewHub(log *slog.Logger, metrics *observe.Metrics) *Hub {
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Hub{
		log:     log,
		metrics: metrics,
		clients: make(map[uuid.UUID]*client),
	}
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends msg to every connected client. Clients whose queue is
// full are dropped; a consumer that cannot keep up with live session events
// is not worth blocking the session for.
func (h *Hub) Broadcast(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("broadcast marshal failed", "type", msg.Type, "err", err)
		return
	}

	var stale []*client
	h.mu.Lock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			delete(h.clients, c.id)
			stale = append(stale, c)
		}
	}
	h.mu.Unlock()

	for _, c := range stale {
		h.metrics.ControlClients.Add(context.Background(), -1)
		close(c.send)
		h.log.Warn("dropping slow websocket client", "client_id", c.id)
	}
}

// ── session.Notifier ──

func (h *Hub) TranscriptLogged(role, text string) {
	h.Broadcast(ServerMessage{Type: MsgTranscript, Role: role, Text: text})
}

func (h *Hub) SpeakingChanged(speaking bool) {
	h.Broadcast(ServerMessage{Type: MsgSpeaking, Speaking: &speaking})
}

func (h *Hub) AssistantText(fragment string) {
	h.Broadcast(ServerMessage{Type: MsgAssistantText, Text: fragment})
}

// register adds a connection and starts its writer goroutine.
func (h *Hub) register(ctx context.Context, conn *websocket.Conn) *client {
	c := &client{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, clientQueueSize),
	}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.metrics.ControlClients.Add(ctx, 1)
	h.log.Info("websocket client connected", "client_id", c.id)

	go c.writeLoop(ctx)
	return c
}

// unregister removes a connection. Safe to call after the hub already
// pruned the client as slow.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, present := h.clients[c.id]
	delete(h.clients, c.id)
	h.mu.Unlock()

	if present {
		h.metrics.ControlClients.Add(context.Background(), -1)
		close(c.send)
	}
	h.log.Info("websocket client disconnected", "client_id", c.id)
}

// writeLoop drains the client's send queue onto the wire. It exits when the
// queue is closed (unregister or slow-client pruning) or a write fails.
func (c *client) writeLoop(ctx context.Context) {
	for data := range c.send {
		if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
			return
		}
	}
}

// reply queues a direct message for a single client.
func (h *Hub) reply(c *client, msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("reply marshal failed", "type", msg.Type, "err", err)
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
