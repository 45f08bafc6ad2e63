package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-relay/internal/auth"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-relay/internal/relay"
)

// WebSocket message types.
const (
	WSTypePing  = "ping"
	WSTypePong  = "pong"
	WSTypeEvent = "event"
	WSTypeError = "error"
)

// WebSocket defaults used when the config leaves a value at zero.
const (
	defaultSendBuffer     = 256
	defaultMaxMessageSize = 8192
	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 10 * time.Second
)

// WSMessage represents a message sent to/from a WebSocket client.
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	EventType string          `json:"event_type,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Hub owns the set of connected web clients and fans events out to them.
//
// Broadcast never blocks: a client whose send buffer is full is removed from
// the hub and disconnected, and every other client keeps receiving.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	closed  bool
	mu      sync.RWMutex

	evicted atomic.Uint64
}

// WSClient represents a connected WebSocket client.
type WSClient struct {
	id          string
	hub         *Hub
	conn        *websocket.Conn
	session     auth.Session
	connectedAt time.Time

	// send is closed exactly once, under mu, when the client leaves.
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{
		cfg:     cfg,
		logger:  logger.With("component", "websocket"),
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client. Joins
// after that are refused.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// newClient creates a client bound to conn. It is not receiving events
// until Join.
func (h *Hub) newClient(conn *websocket.Conn, session auth.Session) *WSClient {
	size := h.cfg.SendBuffer
	if size <= 0 {
		size = defaultSendBuffer
	}
	return &WSClient{
		id:          uuid.NewString(),
		hub:         h,
		conn:        conn,
		session:     session,
		connectedAt: time.Now(),
		send:        make(chan []byte, size),
	}
}

// Join adds client to the broadcast set. Events broadcast before Join are
// not delivered. It returns false once the hub has shut down.
func (h *Hub) Join(client *WSClient) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("websocket client joined",
		"client_id", client.id,
		"user", client.session.Username(),
		"clients", count,
	)
	return true
}

// Leave removes client and closes its send queue so the writer exits.
// Calling it more than once, or for a client that never joined, is safe.
func (h *Hub) Leave(client *WSClient) {
	h.mu.Lock()
	delete(h.clients, client)
	count := len(h.clients)
	h.mu.Unlock()

	if client.shutdown() {
		h.logger.Debug("websocket client left",
			"client_id", client.id,
			"connected_for", time.Since(client.connectedAt).Round(time.Second),
			"clients", count,
		)
	}
}

// Broadcast delivers ev to every joined client. The payload is written
// byte-for-byte as routed.
func (h *Hub) Broadcast(ev relay.Event) {
	data, err := encodeMessage(WSMessage{
		Type:      WSTypeEvent,
		EventType: ev.Name,
		Timestamp: ev.ReceivedAt.UTC().Format(time.RFC3339Nano),
		Payload:   ev.Payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "event", ev.Name, "error", err)
		return
	}

	// Snapshot client list under hub lock, then release before sending
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if !client.trySend(data) {
			h.evicted.Add(1)
			h.logger.Warn("websocket client too slow, disconnecting",
				"client_id", client.id,
				"event", ev.Name,
			)
			h.Leave(client)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Evicted returns how many clients were disconnected for a full send buffer.
func (h *Hub) Evicted() uint64 {
	return h.evicted.Load()
}

// closeAll disconnects all clients and refuses further joins.
func (h *Hub) closeAll() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		h.Leave(client)
		if client.conn != nil {
			client.conn.Close()
		}
	}
}

func (h *Hub) pingInterval() time.Duration {
	if h.cfg.PingInterval <= 0 {
		return defaultPingInterval
	}
	return time.Duration(h.cfg.PingInterval) * time.Second
}

func (h *Hub) pongTimeout() time.Duration {
	if h.cfg.PongTimeout <= 0 {
		return defaultPongTimeout
	}
	return time.Duration(h.cfg.PongTimeout) * time.Second
}

func (h *Hub) maxMessageSize() int64 {
	if h.cfg.MaxMessageSize <= 0 {
		return defaultMaxMessageSize
	}
	return int64(h.cfg.MaxMessageSize)
}

// trySend queues data without blocking. It returns false only when the
// buffer is full; frames for a client that already left are discarded.
func (c *WSClient) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// shutdown closes the send queue. Only the first call returns true.
func (c *WSClient) shutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	c.closed = true
	close(c.send)
	return true
}

// handleWebSocket upgrades the HTTP connection to a WebSocket connection.
//
// Browsers cannot set headers on the upgrade request, so a single-use
// ticket from POST /auth/ws-ticket is accepted as ?ticket=. Without one the
// request must carry a bearer token or the session cookie.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var (
		session auth.Session
		err     error
	)
	if ticket := r.URL.Query().Get("ticket"); ticket != "" {
		session, err = s.gate.RedeemTicket(r.Context(), ticket)
	} else {
		session, err = s.gate.Verify(r)
	}
	if err != nil {
		if !errors.Is(err, auth.ErrUnauthenticated) {
			s.logger.Error("websocket session verification failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "session store unavailable")
			return
		}
		writeUnauthorized(w, msgNotAuthenticated)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkWebSocketOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the error response.
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := s.hub.newClient(conn, session)
	if !s.hub.Join(client) {
		//nolint:errcheck // Best-effort close frame during shutdown
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// checkWebSocketOrigin applies the CORS origin list to upgrades. Requests
// without an Origin header come from non-browser clients and are allowed.
func (s *Server) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || s.isAllowedOrigin(origin)
}

// readPump reads messages from the WebSocket connection until it fails.
func (c *WSClient) readPump() {
	defer func() {
		c.hub.Leave(c)
		c.conn.Close()
	}()

	pingInterval := c.hub.pingInterval()
	pongWait := c.hub.pongTimeout()

	c.conn.SetReadLimit(c.hub.maxMessageSize())
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "client_id", c.id, "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "client_id", c.id, "error", err)
			}
			return
		}
		// Any client message counts as liveness, for browsers that do not
		// answer protocol-level pings.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump is the only writer on the connection.
func (c *WSClient) writePump() {
	ticker := time.NewTicker(c.hub.pingInterval())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	writeWait := c.hub.pongTimeout()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Left the hub
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Debug("websocket write failed", "client_id", c.id, "error", err)
				c.hub.Leave(c)
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.Leave(c)
				return
			}
		}
	}
}

// handleMessage answers client messages. The stream is server to client
// only, so apart from ping every message type is an error.
func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(WSMessage{Type: WSTypeError, Error: "invalid JSON message"})
		return
	}

	switch msg.Type {
	case WSTypePing:
		c.reply(WSMessage{Type: WSTypePong, ID: msg.ID})
	default:
		c.reply(WSMessage{Type: WSTypeError, ID: msg.ID, Error: "unsupported message type: " + msg.Type})
	}
}

func (c *WSClient) reply(msg WSMessage) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := encodeMessage(msg)
	if err != nil {
		c.hub.logger.Error("failed to marshal websocket reply", "error", err)
		return
	}
	if !c.trySend(data) {
		c.hub.Leave(c)
	}
}

// encodeMessage marshals msg without HTML escaping so an event payload is
// carried unchanged.
func encodeMessage(msg WSMessage) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(msg); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
