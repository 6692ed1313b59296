package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/poolhall/go/internal/table/events"
	"github.com/rs/zerolog/log"
)

// MessageHandler receives frames and closes from table connections.
// Calls arrive on the connection's read goroutine.
type MessageHandler interface {
	HandleMessage(key string, message []byte)
	HandleClose(key string)
}

// ConnectionManager manages the WebSocket connections of the table
type ConnectionManager struct {
	connections map[string]*Connection
	mu          sync.RWMutex

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	// Connection configuration
	config  ConnectionConfig
	handler MessageHandler

	// Event broadcasting
	broadcastCh chan BroadcastMessage

	broadcasts atomic.Uint64
	dropped    atomic.Uint64
	evicted    atomic.Uint64
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	// Connection metadata
	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage is one queued delivery.
// Target limits it to one connection, Exclude skips one.
type BroadcastMessage struct {
	Event   *events.Event
	Target  string
	Exclude string
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  64 * 1024, // table payloads carry every ball position
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		// nil keeps gorilla's same-origin check
		CheckOrigin: nil,
	}
}

// AllowOrigins returns a CheckOrigin func accepting the listed origins.
// "*" allows any origin. Requests without an Origin header come from
// non-browser clients and are accepted.
func AllowOrigins(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		log.Warn().
			Str("origin", origin).
			Str("remote_addr", r.RemoteAddr).
			Msg("rejected WebSocket upgrade from disallowed origin")
		return false
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, handler MessageHandler) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		handler:     handler,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// Start begins processing broadcast messages
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and starts its pumps
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")

	return connection, nil
}

// registerConnection adds a connection to the manager
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connections[conn.ID] = conn

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
}

// unregisterConnection removes a connection and tells the handler once
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	existing, ok := cm.connections[conn.ID]
	removed := ok && existing == conn
	if removed {
		delete(cm.connections, conn.ID)
		close(conn.Send)
	}
	cm.mu.Unlock()

	if !removed {
		return
	}

	log.Info().
		Str("connection_id", conn.ID).
		Dur("connected_for", time.Since(conn.ConnectedAt)).
		Msg("connection unregistered")

	if cm.handler != nil {
		cm.handler.HandleClose(conn.ID)
	}
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	open := make([]*Connection, 0, len(cm.connections))
	for _, conn := range cm.connections {
		open = append(open, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range open {
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}
}

func (cm *ConnectionManager) enqueue(message BroadcastMessage) {
	select {
	case cm.broadcastCh <- message:
	default:
		cm.dropped.Add(1)
		log.Warn().
			Str("event_type", string(message.Event.Type)).
			Str("target", message.Target).
			Msg("broadcast channel full, dropping message")
	}
}

// Broadcast sends an event to every connection
func (cm *ConnectionManager) Broadcast(event *events.Event) {
	cm.enqueue(BroadcastMessage{Event: event})
}

// SendTo sends an event to a single connection
func (cm *ConnectionManager) SendTo(key string, event *events.Event) {
	cm.enqueue(BroadcastMessage{Event: event, Target: key})
}

// BroadcastExcept sends an event to every connection but key
func (cm *ConnectionManager) BroadcastExcept(key string, event *events.Event) {
	cm.enqueue(BroadcastMessage{Event: event, Exclude: key})
}

// handleBroadcast processes a broadcast message
func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	// Marshal the event once
	eventData, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	// Sends happen under the read lock so unregister cannot close a Send
	// channel mid-broadcast. Slow connections are evicted after it is released.
	var slow []*Connection
	delivered := 0

	cm.mu.RLock()
	for id, conn := range cm.connections {
		if message.Target != "" && id != message.Target {
			continue
		}
		if message.Exclude != "" && id == message.Exclude {
			continue
		}
		select {
		case conn.Send <- eventData:
			delivered++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		cm.evicted.Add(1)
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	cm.broadcasts.Add(1)
	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("target", message.Target).
		Int("connections", delivered).
		Msg("event broadcasted")
}

// ConnectionStats summarizes the manager's connections and traffic
type ConnectionStats struct {
	TotalConnections int    `json:"total_connections"`
	Broadcasts       uint64 `json:"broadcasts"`
	Dropped          uint64 `json:"dropped"`
	Evicted          uint64 `json:"evicted"`
	QueuedMessages   int    `json:"queued_messages"`
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	total := len(cm.connections)
	cm.mu.RUnlock()

	return ConnectionStats{
		TotalConnections: total,
		Broadcasts:       cm.broadcasts.Load(),
		Dropped:          cm.dropped.Load(),
		Evicted:          cm.evicted.Load(),
		QueuedMessages:   len(cm.broadcastCh),
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))

		if messageType != websocket.TextMessage {
			log.Debug().Str("connection_id", c.ID).Int("message_type", messageType).Msg("ignoring non-text frame")
			continue
		}
		if c.Manager.handler != nil {
			c.Manager.handler.HandleMessage(c.ID, message)
		}
	}
}
