// Package websocket pushes inbox cache updates to connected watchers. Every
// applied event becomes one message to every client; filtering happens on the
// client side where the inbox view lives.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mailgoatai/mailgoat-inbox/internal/domain"
)

// MessageType labels a frame on the watch socket.
type MessageType string

const (
	MessageTypeInboxUpdate MessageType = "inbox_update"
	MessageTypePing        MessageType = "ping"
	MessageTypePong        MessageType = "pong"
)

// Message is the wire frame pushed to watchers.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// InboxUpdateData is the payload of an inbox_update frame.
type InboxUpdateData struct {
	MessageID     string   `json:"messageId"`
	From          string   `json:"from"`
	To            []string `json:"to"`
	Subject       string   `json:"subject"`
	Snippet       string   `json:"snippet,omitempty"`
	LastEventType string   `json:"lastEventType"`
	LastEventAt   string   `json:"lastEventAt"`
	Read          bool     `json:"read"`
}

// upgraderFactory builds an upgrader that enforces the configured origins.
func upgraderFactory(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			for _, origin := range allowedOrigins {
				if origin == "*" {
					return true
				}
			}

			requestOrigin := r.Header.Get("Origin")
			if requestOrigin == "" {
				// Same-origin and non-browser clients send no Origin.
				return true
			}
			for _, origin := range allowedOrigins {
				if requestOrigin == origin {
					return true
				}
			}
			return false
		},
	}
}

// Client is one connected watcher.
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub fans applied projection updates out to all connected watchers.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	mu         sync.RWMutex
	log        *zap.Logger
	upgrader   websocket.Upgrader
}

// NewHub creates the watch hub.
func NewHub(allowedOrigins []string, log *zap.Logger) *Hub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		log:        log,
		upgrader:   upgraderFactory(allowedOrigins),
	}
}

// Run owns the client set until ctx is done. Call it from its own goroutine.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info("watch hub stopped")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			h.log.Debug("watcher connected", zap.String("id", client.ID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.send)
				h.log.Debug("watcher disconnected", zap.String("id", client.ID))
			}
			h.mu.Unlock()

		case data := <-h.broadcast:
			h.fanOut(data)

		case <-ticker.C:
			h.pingAllClients()
		}
	}
}

// BroadcastMessage pushes one projection update to every watcher. Safe to
// call from any goroutine; drops the frame when the hub's buffer is full.
func (h *Hub) BroadcastMessage(msg *domain.CachedMessage) {
	data, err := json.Marshal(InboxUpdateData{
		MessageID:     msg.MessageID,
		From:          msg.From,
		To:            msg.To,
		Subject:       msg.Subject,
		Snippet:       msg.Snippet,
		LastEventType: string(msg.LastEventType),
		LastEventAt:   msg.LastEventAt.Format(time.RFC3339),
		Read:          msg.Read,
	})
	if err != nil {
		h.log.Error("failed to marshal inbox update", zap.Error(err))
		return
	}

	frame, err := json.Marshal(Message{
		Type:      MessageTypeInboxUpdate,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return
	}

	select {
	case h.broadcast <- frame:
	default:
		h.log.Warn("watch broadcast buffer full, dropping update",
			zap.String("message_id", msg.MessageID))
	}
}

// HandleConnection upgrades one HTTP request into a watch socket.
func (h *Hub) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		ID:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, 64),
		hub:  h,
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// fanOut delivers one frame to every connected client, skipping slow ones.
func (h *Hub) fanOut(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
			h.log.Warn("watcher send buffer full, skipping", zap.String("id", client.ID))
		}
	}
}

// pingAllClients keeps idle connections alive through proxies.
func (h *Hub) pingAllClients() {
	frame, err := json.Marshal(Message{Type: MessageTypePing, Timestamp: time.Now().UTC()})
	if err != nil {
		return
	}
	h.fanOut(frame)
}

// closeAllClients tears the client set down on shutdown.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		close(client.send)
		client.conn.Close()
		delete(h.clients, id)
	}
}

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	maxFrameBytes = 4096
	pingPeriod    = 9 * pongWait / 10
)

// readPump drains client frames, answering pings and enforcing liveness.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Type == MessageTypePing {
			pong, err := json.Marshal(Message{Type: MessageTypePong, Timestamp: time.Now().UTC()})
			if err == nil {
				select {
				case c.send <- pong:
				default:
				}
			}
		}
	}
}

// writePump serializes all writes to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
