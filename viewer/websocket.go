package viewer

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raykavin/vegaview/core"
	"github.com/raykavin/vegaview/logger"
)

// WebSocketMessage represents a message sent over WebSocket
type WebSocketMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// writeWait bounds a single write so one stalled tab cannot back up the
// broadcast loop
const writeWait = 10 * time.Second

// client tracks one connected tab. The mutex serializes writes to the
// connection; the websocket protocol allows a single concurrent writer.
type client struct {
	id string
	mu sync.Mutex
}

// WebSocketManager handles the supplementary live-update channel. It is an
// optimization on top of the watch endpoint: tabs that support it get pushes
// instead of polling. A tab that connects after the spec already exists is
// synced immediately.
type WebSocketManager struct {
	sync.RWMutex
	clients       map[*websocket.Conn]*client
	upgrader      websocket.Upgrader
	broadcastChan chan WebSocketMessage
	registry      core.Registry
	log           logger.Logger
}

// NewWebSocketManager creates a new WebSocket manager
func NewWebSocketManager(log logger.Logger, registry core.Registry) *WebSocketManager {
	manager := &WebSocketManager{
		clients: make(map[*websocket.Conn]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		broadcastChan: make(chan WebSocketMessage, 100),
		registry:      registry,
		log:           log,
	}

	// Start broadcast handler
	go manager.handleBroadcasts()

	return manager
}

// BroadcastSession queues a session update for delivery to every connection
// subscribed to its id
func (m *WebSocketManager) BroadcastSession(sess core.Session) {
	m.broadcastChan <- WebSocketMessage{
		Type: "update",
		Payload: specResponse{
			ID:       sess.ID,
			Spec:     sess.Spec,
			Revision: sess.Revision,
		},
	}
}

// ClientCount returns the number of connected clients
func (m *WebSocketManager) ClientCount() int {
	m.RLock()
	defer m.RUnlock()
	return len(m.clients)
}

// send writes one message to a connection, serialized against any other
// writer on the same connection and bounded by writeWait
func (m *WebSocketManager) send(conn *websocket.Conn, cl *client, msg WebSocketMessage) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

// handleBroadcasts processes messages from the broadcast channel
func (m *WebSocketManager) handleBroadcasts() {
	for msg := range m.broadcastChan {
		payload, ok := msg.Payload.(specResponse)
		if !ok {
			continue
		}

		// Snapshot the subscribers first so a slow write never holds the lock
		m.RLock()
		targets := make(map[*websocket.Conn]*client, len(m.clients))
		for conn, cl := range m.clients {
			if cl.id == payload.ID {
				targets[conn] = cl
			}
		}
		m.RUnlock()

		for conn, cl := range targets {
			if err := m.send(conn, cl, msg); err != nil {
				m.log.WithError(err).Error("error sending WebSocket message")
				conn.Close()
				// Removal from the map happens in the client handler once it
				// detects the closed connection
			}
		}
	}
}

// HandleWebSocket upgrades a live-channel request and subscribes the
// connection to the id in the request path
func (m *WebSocketManager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "Missing visualization id", http.StatusBadRequest)
		return
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.WithError(err).Error("failed to upgrade connection to WebSocket")
		return
	}

	// Register client
	cl := &client{id: id}
	m.Lock()
	m.clients[conn] = cl
	clientCount := len(m.clients)
	m.Unlock()

	m.log.WithField("id", id).Debugf("WebSocket client connected, total: %d", clientCount)

	// Sync the new client with the current state, if any
	go m.sendInitialState(conn, cl)

	// Handle client messages
	go m.handleClient(conn)
}

// handleClient processes messages from a client
func (m *WebSocketManager) handleClient(conn *websocket.Conn) {
	defer func() {
		// Remove client on disconnect
		m.Lock()
		delete(m.clients, conn)
		remaining := len(m.clients)
		m.Unlock()
		conn.Close()
		m.log.Debugf("WebSocket client disconnected, remaining: %d", remaining)
	}()

	// Keep connection alive with ping/pong
	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(websocket.PongMessage, []byte{}, time.Now().Add(10*time.Second))
	})

	// Read messages (we don't expect any, but need to handle disconnects)
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.log.WithError(err).Error("WebSocket read error")
			}
			break
		}
	}
}

// sendInitialState pushes the current session to a newly connected client
func (m *WebSocketManager) sendInitialState(conn *websocket.Conn, cl *client) {
	sess, err := m.registry.Get(cl.id)
	if err != nil {
		// Tab opened before the spec exists; it will receive the first update
		return
	}

	msg := WebSocketMessage{
		Type: "init",
		Payload: specResponse{
			ID:       sess.ID,
			Spec:     sess.Spec,
			Revision: sess.Revision,
		},
	}

	if err := m.send(conn, cl, msg); err != nil {
		m.log.WithError(err).Error("error sending initial state")
	}
}
