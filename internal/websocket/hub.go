// Package websocket implements the live reload hub. Browsers connect through
// HandleWebSocket; build results reach them through Broadcast.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/sitesmith/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
)

// Hub tracks connected reload clients and fans messages out to them.
//
// A single goroutine fans broadcasts out. The clients map is guarded by mu; a
// client's send channel is closed only while holding the write lock, so
// broadcasts under the read lock never race a close.
type Hub struct {
	clients map[*websocket.Conn]*Client
	mu      sync.RWMutex

	broadcast chan []byte

	origins OriginValidator
	logger  logging.Logger

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

// NewHub creates a hub and starts its loop. A nil validator only admits
// same-host origins.
func NewHub(origins OriginValidator, logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	if origins == nil {
		origins = AllowedHosts(nil)
	}

	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		clients:   make(map[*websocket.Conn]*Client),
		broadcast: make(chan []byte, 256),
		origins:   origins,
		logger:    logger.WithComponent("reload-hub"),
		ctx:       ctx,
		cancel:    cancel,
	}

	go h.run()

	return h
}

// HandleWebSocket upgrades a browser connection and registers it.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.ctx.Err() != nil {
		http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
		return
	}

	origin := r.Header.Get("Origin")
	if !h.allowOrigin(origin, r.Host) {
		h.logger.Warn(r.Context(), nil, "Rejected reload connection", "origin", logging.SanitizeForLog(origin))
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	// Origin was checked above.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
		CompressionMode:    websocket.CompressionDisabled,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "WebSocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := &Client{
		conn: conn,
		send: make(chan []byte, 64),
	}

	if !h.add(client) {
		conn.Close(websocket.StatusGoingAway, "Server shutting down")
		return
	}

	go h.writeToClient(client)
	h.readFromClient(client)
}

func (h *Hub) add(client *Client) bool {
	h.mu.Lock()
	if h.ctx.Err() != nil {
		h.mu.Unlock()
		return false
	}
	h.clients[client.conn] = client
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug(h.ctx, "Reload client connected", "clients", count)
	return true
}

func (h *Hub) allowOrigin(origin, requestHost string) bool {
	if origin == "" {
		return false
	}
	host, ok := originHost(origin)
	if !ok {
		return false
	}
	if host == requestHost {
		return true
	}
	return h.origins.IsAllowedOrigin(origin)
}

func originHost(origin string) (string, bool) {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return u.Host, true
}

func (h *Hub) run() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case message := <-h.broadcast:
			h.fanOut(message)
		}
	}
}

func (h *Hub) fanOut(message []byte) {
	var slow []*websocket.Conn

	h.mu.RLock()
	for conn, client := range h.clients {
		select {
		case client.send <- message:
		default:
			slow = append(slow, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range slow {
		h.remove(conn, websocket.StatusPolicyViolation, "Client too slow")
	}
}

func (h *Hub) remove(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	h.mu.Lock()
	client, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		close(client.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		conn.Close(code, reason)
		h.logger.Debug(h.ctx, "Reload client disconnected", "clients", count)
	}
}

func (h *Hub) readFromClient(client *Client) {
	defer h.remove(client.conn, websocket.StatusNormalClosure, "")

	for {
		// The client never sends anything meaningful; reading keeps control
		// frames flowing and notices disconnects.
		if _, _, err := client.conn.Read(h.ctx); err != nil {
			return
		}
	}
}

func (h *Hub) writeToClient(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-client.send:
			if !ok {
				return
			}

			ctx, cancel := context.WithTimeout(h.ctx, writeWait)
			err := client.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				h.logger.Debug(h.ctx, "WebSocket write failed", "error", err.Error())
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(h.ctx, writeWait)
			err := client.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}

		case <-h.ctx.Done():
			return
		}
	}
}

// Broadcast queues msg for every connected client. A zero timestamp is set
// to now. Messages are dropped once the hub is shut down or its queue is full.
func (h *Hub) Broadcast(msg UpdateMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error(h.ctx, err, "Failed to marshal reload message")
		return
	}

	select {
	case h.broadcast <- data:
	case <-h.ctx.Done():
	default:
		h.logger.Warn(h.ctx, nil, "Broadcast queue full, dropping message", "type", msg.Type)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown closes every connection and stops the hub. It is safe to call more
// than once.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.shutdownOnce.Do(func() {
		h.cancel()

		h.mu.Lock()
		conns := make([]*websocket.Conn, 0, len(h.clients))
		for conn, client := range h.clients {
			close(client.send)
			conns = append(conns, conn)
		}
		h.clients = make(map[*websocket.Conn]*Client)
		h.mu.Unlock()

		for _, conn := range conns {
			conn.Close(websocket.StatusGoingAway, "Server shutdown")
		}

		h.logger.Info(ctx, "Reload hub shut down", "clients", len(conns))
	})

	return nil
}
