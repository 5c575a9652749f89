package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/conneroisu/clips/internal/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Messages buffered per client before it is dropped.
	sendBuffer = 16
)

// Client is a connected live reload browser.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// ID returns the client id.
func (c *Client) ID() string { return c.id }

// Hub tracks live reload clients and fans out broadcasts.
type Hub struct {
	logger     logging.Logger
	metrics    Metrics
	clients    map[string]*Client
	mutex      sync.RWMutex
	register   chan *Client
	unregister chan *Client
	messages   chan []byte
	done       chan struct{}
	closeOnce  sync.Once
}

func newHub(logger logging.Logger, metrics Metrics) *Hub {
	return &Hub{
		logger:     logger,
		metrics:    metrics,
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		messages:   make(chan []byte, 8),
		done:       make(chan struct{}),
	}
}

func (h *Hub) count() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// broadcast queues a message for every client. It never blocks the caller
// once the hub has stopped.
func (h *Hub) broadcast(message []byte) {
	select {
	case h.messages <- message:
	case <-h.done:
	}
}

func (h *Hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-h.done:
			return
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client.id] = client
			total := len(h.clients)
			h.mutex.Unlock()
			h.metrics.ClientConnected()
			h.logger.Debug(ctx, "Client connected", "client", client.id, "total", total)

		case client := <-h.unregister:
			h.remove(client, websocket.StatusNormalClosure)

		case message := <-h.messages:
			h.mutex.RLock()
			var failed []*Client
			for _, client := range h.clients {
				select {
				case client.send <- message:
				default:
					failed = append(failed, client)
				}
			}
			h.mutex.RUnlock()

			for _, client := range failed {
				h.logger.Warn(ctx, nil, "Dropping slow client", "client", client.id)
				h.remove(client, websocket.StatusPolicyViolation)
			}
		}
	}
}

func (h *Hub) remove(client *Client, code websocket.StatusCode) {
	h.mutex.Lock()
	_, ok := h.clients[client.id]
	if ok {
		delete(h.clients, client.id)
	}
	total := len(h.clients)
	h.mutex.Unlock()

	if !ok {
		return
	}
	close(client.send)
	_ = client.conn.Close(code, "")
	h.metrics.ClientDisconnected()
	h.logger.Debug(context.Background(), "Client disconnected", "client", client.id, "total", total)
}

// closeAll disconnects every client and stops the hub.
func (h *Hub) closeAll() {
	h.closeOnce.Do(func() {
		close(h.done)

		h.mutex.Lock()
		clients := h.clients
		h.clients = make(map[string]*Client)
		h.mutex.Unlock()

		for _, client := range clients {
			close(client.send)
			_ = client.conn.Close(websocket.StatusGoingAway, "server shutting down")
			h.metrics.ClientDisconnected()
		}
	})
}

func (s *PreviewServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	allowed, ok := s.checkOrigin(r)
	if !ok {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: allowed,
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "WebSocket upgrade error")
		return
	}

	client := &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		hub:  s.hub,
	}

	hello, _ := json.Marshal(UpdateMessage{
		Type:      MessageConnected,
		Client:    client.id,
		Timestamp: time.Now(),
	})
	client.send <- hello

	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go client.writePump()
	client.readPump()
}

// checkOrigin validates the request origin. Browsers always send one; the
// page's own host and the configured address are allowed.
func (s *PreviewServer) checkOrigin(r *http.Request) ([]string, bool) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return nil, false
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return nil, false
	}
	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return nil, false
	}

	port := s.config.Server.Port
	allowed := []string{
		r.Host,
		s.config.Address(),
		fmt.Sprintf("localhost:%d", port),
		fmt.Sprintf("127.0.0.1:%d", port),
	}
	for _, host := range allowed {
		if originURL.Host == host {
			return allowed, true
		}
	}
	return nil, false
}

// readPump reads until the connection fails. Live reload clients send
// nothing, but reading processes pongs and close frames.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	ctx := context.Background()
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && status != -1 {
				c.hub.logger.Warn(ctx, err, "WebSocket error", "client", c.id)
			}
			return
		}
	}
}

// writePump writes queued messages and pings the peer.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	ctx := context.Background()
	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.hub.logger.Debug(ctx, "WebSocket write failed", "client", c.id, "error", err.Error())
				_ = c.conn.CloseNow()
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				_ = c.conn.CloseNow()
				return
			}
		}
	}
}
