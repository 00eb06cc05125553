package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/kettle-bridge/internal/bridges/kettlebridge"
	"github.com/nerrad567/kettle-bridge/internal/infrastructure/logging"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// ChannelKettleState carries one event per successful publish iteration.
const ChannelKettleState = "kettle.state"

const (
	// wsQueueSize is the per-client outbound queue; a client that falls
	// further behind misses events rather than stalling the bridge.
	wsQueueSize = 16

	wsMaxMessageSize = 4096
	wsPingInterval   = 30 * time.Second
	wsPongTimeout    = 10 * time.Second
)

// WSMessage is an outbound WebSocket frame.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// wsRequest is an inbound WebSocket frame. Payload is decoded per type.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload for subscribe/unsubscribe messages.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

var _ kettlebridge.StateObserver = (*Hub)(nil)

// Hub fans bridge telemetry out to WebSocket clients.
//
// New clients start subscribed to ChannelKettleState and immediately receive
// the most recent kettle.state event, if there has been one.
//
// Thread Safety: All methods are safe for concurrent use.
type Hub struct {
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	latest  []byte // last kettle.state frame, replayed on connect
	closed  bool
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client. Clients
// connecting afterwards are refused.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.shutdown()
	}
}

// OnTelemetry broadcasts a publish iteration on ChannelKettleState.
func (h *Hub) OnTelemetry(t kettlebridge.Telemetry) {
	h.Broadcast(ChannelKettleState, t)
}

// Broadcast sends an event to every client subscribed to channel.
func (h *Hub) Broadcast(channel string, payload any) {
	frame, err := encodeFrame(WSMessage{Type: WSTypeEvent, EventType: channel, Payload: payload})
	if err != nil {
		h.logger.Error("failed to encode websocket event", "channel", channel, "error", err)
		return
	}

	h.mu.Lock()
	if channel == ChannelKettleState {
		h.latest = frame
	}
	recipients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		recipients = append(recipients, c)
	}
	h.mu.Unlock()

	sent := 0
	for _, c := range recipients {
		if c.subscribed(channel) && c.enqueue(frame) {
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("websocket event sent", "channel", channel, "recipients", sent)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// attach registers c and queues the replay frame. It reports false once the
// hub has shut down.
func (h *Hub) attach(c *wsClient) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	latest := h.latest
	count := len(h.clients)
	h.mu.Unlock()

	if latest != nil {
		c.enqueue(latest)
	}
	h.logger.Debug("websocket client connected", "clients", count)
	return true
}

// detach removes c. Safe to call more than once.
func (h *Hub) detach(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()

	c.shutdown()
	h.logger.Debug("websocket client disconnected", "clients", count)
}

// wsClient is one connected WebSocket peer.
type wsClient struct {
	hub  *Hub
	conn *websocket.Conn

	mu       sync.Mutex
	queue    chan []byte
	channels map[string]bool
	done     bool
}

func newWSClient(hub *Hub, conn *websocket.Conn) *wsClient {
	return &wsClient{
		hub:      hub,
		conn:     conn,
		queue:    make(chan []byte, wsQueueSize),
		channels: map[string]bool{ChannelKettleState: true},
	}
}

// enqueue hands frame to the writer without blocking. It reports false if
// the client is gone or its queue is full.
func (c *wsClient) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return false
	}
	select {
	case c.queue <- frame:
		return true
	default:
		return false
	}
}

// shutdown closes the queue so the writer sends a close frame and exits.
func (c *wsClient) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.done {
		c.done = true
		close(c.queue)
	}
}

func (c *wsClient) subscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channels[channel]
}

func (c *wsClient) setChannels(channels []string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		if on {
			c.channels[ch] = true
		} else {
			delete(c.channels, ch)
		}
	}
}

// handleWebSocket upgrades the request and starts the client's pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// The stream is read-only; any page on a trusted network may watch it.
		CheckOrigin: func(*http.Request) bool { return true },
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(s.hub, conn)
	if !s.hub.attach(client) {
		//nolint:errcheck // Best-effort close of a refused connection
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	go client.writeLoop()
	go client.readLoop()
}

// readLoop handles requests until the peer goes away.
func (c *wsClient) readLoop() {
	defer c.hub.detach(c)

	deadline := func() error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongTimeout))
	}

	c.conn.SetReadLimit(wsMaxMessageSize)
	//nolint:errcheck // Best-effort initial deadline
	deadline()
	c.conn.SetPongHandler(func(string) error { return deadline() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		//nolint:errcheck // Any request counts as liveness
		deadline()
		c.handleRequest(data)
	}
}

// writeLoop drains the queue and keeps the connection alive with pings.
func (c *wsClient) writeLoop() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		//nolint:errcheck // A missed deadline surfaces as a write error
		c.conn.SetWriteDeadline(time.Now().Add(wsPongTimeout))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case frame, ok := <-c.queue:
			if !ok {
				//nolint:errcheck // Best-effort close frame
				write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := write(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleRequest answers one inbound frame.
func (c *wsClient) handleRequest(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply("", WSTypeError, map[string]string{"message": "invalid JSON message"})
		return
	}

	switch req.Type {
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)

	case WSTypeSubscribe, WSTypeUnsubscribe:
		var sub WSSubscribePayload
		if err := json.Unmarshal(req.Payload, &sub); err != nil {
			c.reply(req.ID, WSTypeError, map[string]string{"message": "invalid " + req.Type + " payload"})
			return
		}
		on := req.Type == WSTypeSubscribe
		c.setChannels(sub.Channels, on)

		key := "unsubscribed"
		if on {
			key = "subscribed"
		}
		c.reply(req.ID, WSTypeResponse, map[string]any{key: sub.Channels})

	default:
		c.reply(req.ID, WSTypeError, map[string]string{"message": "unknown message type: " + req.Type})
	}
}

func (c *wsClient) reply(id, msgType string, payload any) {
	frame, err := encodeFrame(WSMessage{Type: msgType, ID: id, Payload: payload})
	if err != nil {
		return
	}
	c.enqueue(frame)
}

// encodeFrame stamps msg with the current time and marshals it.
func encodeFrame(msg WSMessage) ([]byte, error) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return json.Marshal(msg)
}
