// Package handlers provides HTTP request handlers for the portrisk API.
// This file implements the WebSocket endpoint streaming live scan progress.
package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/anstrom/portrisk/internal/api/middleware"
	"github.com/anstrom/portrisk/internal/logging"
	"github.com/anstrom/portrisk/internal/risk"
	"github.com/anstrom/portrisk/internal/scanning"
	"github.com/anstrom/portrisk/internal/workers"
)

const (
	// WebSocket configuration constants.
	writeWait       = 10 * time.Second                                   // Time allowed to write a message to the peer
	pongWait        = 60 * time.Second                                   // Time to read next pong message from peer
	pingPeriodRatio = 0.9                                                // Ratio of pongWait for pingPeriod
	pingPeriod      = time.Duration(float64(pongWait) * pingPeriodRatio) // Send pings to peer (must be < pongWait)
	maxMessageSize  = 512                                                // Maximum message size allowed from peer
	bufferSize      = 256                                                // Size of each client's send buffer
)

// Message types sent to clients.
const (
	MessagePortOpen     = "port_open"
	MessageScanFinished = "scan_finished"
)

// WebSocketMessage represents a WebSocket message structure.
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// PortOpenMessage reports an open port found by a running scan.
type PortOpenMessage struct {
	JobID     string `json:"job_id"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Service   string `json:"service,omitempty"`
	RiskLevel string `json:"risk_level,omitempty"`
	Probed    int    `json:"probed"`
	Total     int    `json:"total"`
}

// client is one connected WebSocket peer.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// WebSocketHandler handles WebSocket connections and fans scan events out to
// them. It implements workers.Listener.
type WebSocketHandler struct {
	logger   *logging.Logger
	upgrader websocket.Upgrader

	mutex    sync.RWMutex
	clients  map[*client]struct{}
	closed   bool
	shutdown chan struct{}
	once     sync.Once
}

var _ workers.Listener = (*WebSocketHandler)(nil)

// NewWebSocketHandler creates a new WebSocket handler. allowedOrigins limits
// browser origins; an empty list or "*" accepts any.
func NewWebSocketHandler(logger *logging.Logger, allowedOrigins []string) *WebSocketHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebSocketHandler{
		logger: logger.WithFields("handler", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		clients:  make(map[*client]struct{}),
		shutdown: make(chan struct{}),
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || len(set) == 0 || set["*"] || set[origin]
	}
}

// ScanWebSocket upgrades the connection and streams scan events until the
// peer disconnects or the handler is closed.
func (h *WebSocketHandler) ScanWebSocket(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", "request_id", requestID, "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, bufferSize)}
	if !h.register(c) {
		_ = conn.Close()
		return
	}
	h.logger.Debug("Client registered", "request_id", requestID, "total_clients", h.ClientCount())

	go h.writePump(c, requestID)
	h.readPump(c, requestID)
}

func (h *WebSocketHandler) register(c *client) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *WebSocketHandler) unregister(c *client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// readPump drains the peer so pongs and close frames are processed.
func (h *WebSocketHandler) readPump(c *client, requestID string) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
		h.logger.Debug("Client unregistered", "request_id", requestID, "total_clients", h.ClientCount())
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		h.logger.Error("Failed to set read deadline", "request_id", requestID, "error", err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("WebSocket unexpected close", "request_id", requestID, "error", err)
			}
			return
		}
		// Incoming messages are ignored.
	}
}

// writePump sends queued messages and keepalive pings to the peer.
func (h *WebSocketHandler) writePump(c *client, requestID string) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Debug("Write failed, closing connection", "request_id", requestID, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.logger.Debug("Ping failed, closing connection", "request_id", requestID, "error", err)
				return
			}
		case <-h.shutdown:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}

// broadcast queues a message for every client. Clients whose buffer is full
// are disconnected rather than allowed to stall the scan.
func (h *WebSocketHandler) broadcast(messageType string, data interface{}) {
	payload, err := json.Marshal(WebSocketMessage{
		Type:      messageType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		h.logger.Error("Failed to encode WebSocket message", "type", messageType, "error", err)
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("Client too slow, dropping connection")
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// OnProgress implements workers.Listener.
func (h *WebSocketHandler) OnProgress(jobID string, p scanning.Progress) {
	msg := PortOpenMessage{
		JobID:  jobID,
		Host:   p.Host,
		Port:   p.Port,
		Probed: p.Probed,
		Total:  p.Total,
	}
	if entry, ok := risk.Lookup(p.Port); ok {
		msg.Service = entry.Service
		msg.RiskLevel = entry.Level.String()
	}
	h.broadcast(MessagePortOpen, msg)
}

// OnJobFinished implements workers.Listener.
func (h *WebSocketHandler) OnJobFinished(rec workers.JobRecord) {
	h.broadcast(MessageScanFinished, rec)
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHandler) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *WebSocketHandler) Close() {
	h.once.Do(func() {
		h.mutex.Lock()
		h.closed = true
		h.mutex.Unlock()
		close(h.shutdown)
	})
}
