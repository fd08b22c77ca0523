package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/playmatatu/experiment/internal/events"
	"github.com/playmatatu/experiment/internal/flow"
)

// Renderer computes the current view for a session.
type Renderer interface {
	Render(ctx context.Context, sessionID, rawQuery string) (flow.Rendered, error)
}

// Presence counts a session's open channels.
type Presence interface {
	Connected(ctx context.Context, sessionID string) error
	Disconnected(ctx context.Context, sessionID string) error
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are checked by middleware.WebSocketCORSCheck.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one participant's live channel. Its views are rendered one at
// a time by renderLoop; dirty coalesces requests that arrive meanwhile.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	sessionID string
	rawQuery  string
	send      chan []byte
	done      chan struct{}
	dirty     chan struct{}

	mu       sync.Mutex
	playerID string
	gameID   string
	last     flow.View
	sent     bool
	force    bool
}

func newClient(hub *Hub, conn *websocket.Conn, sessionID, rawQuery string) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		sessionID: sessionID,
		rawQuery:  rawQuery,
		send:      make(chan []byte, 16),
		done:      make(chan struct{}),
		dirty:     make(chan struct{}, 1),
	}
}

// markDirty asks for a fresh render. force resends the view even when it
// has not changed.
func (c *Client) markDirty(force bool) {
	if force {
		c.mu.Lock()
		c.force = true
		c.mu.Unlock()
	}
	select {
	case c.dirty <- struct{}{}:
	default:
	}
}

// renderLoop renders for the client until it disconnects. A render always
// starts after the previous one was sent, so the last view pushed is the
// newest.
func (c *Client) renderLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-c.dirty:
			c.mu.Lock()
			force := c.force
			c.force = false
			c.mu.Unlock()
			c.hub.push(ctx, c, force)
		}
	}
}

// Hub maintains the set of active clients and pushes recomputed views to
// them when events arrive.
type Hub struct {
	clients    map[string]*Client // sessionID -> Client
	register   chan *Client
	unregister chan *Client
	events     chan events.Event
	renderer   Renderer
	presence   Presence
	mu         sync.RWMutex
}

func NewHub(r Renderer, p Presence) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan events.Event, 64),
		renderer:   r,
		presence:   p,
	}
}

// Notify queues an event for delivery to matching clients.
func (h *Hub) Notify(ev events.Event) {
	select {
	case h.events <- ev:
	default:
		log.Printf("[WS] event buffer full, dropping %s", ev.Type)
	}
}

// Run serves registrations and events until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			if old, exists := h.clients[client.sessionID]; exists {
				log.Printf("[WS] Session %s reconnecting - closing old connection", client.sessionID)
				old.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "replaced by new connection"),
					time.Now().Add(5*time.Second))
				old.conn.Close()
			}
			h.clients[client.sessionID] = client
			h.mu.Unlock()

			if err := h.presence.Connected(ctx, client.sessionID); err != nil {
				log.Printf("[WS] presence connect for session %s: %v", client.sessionID, err)
			}
			log.Printf("[WS] Session %s connected", client.sessionID)
			go client.renderLoop(ctx)
			client.markDirty(false)

		case client := <-h.unregister:
			h.mu.Lock()
			if cur, ok := h.clients[client.sessionID]; ok && cur == client {
				delete(h.clients, client.sessionID)
			}
			h.mu.Unlock()
			close(client.done)

			if err := h.presence.Disconnected(ctx, client.sessionID); err != nil {
				log.Printf("[WS] presence disconnect for session %s: %v", client.sessionID, err)
			}
			log.Printf("[WS] Session %s disconnected", client.sessionID)

		case ev := <-h.events:
			h.mu.RLock()
			for _, client := range h.clients {
				client.mu.Lock()
				match := ev.Matches(client.sessionID, client.playerID, client.gameID)
				client.mu.Unlock()
				if match {
					client.markDirty(false)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// push recomputes the client's view and sends it when it changed, or always
// when force is set. Only renderLoop calls it.
func (h *Hub) push(ctx context.Context, c *Client, force bool) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	r, err := h.renderer.Render(ctx, c.sessionID, c.rawQuery)
	if err != nil {
		log.Printf("[WS] render for session %s: %v", c.sessionID, err)
		c.sendError("view unavailable")
		return
	}

	c.mu.Lock()
	changed := !c.sent || c.last != r.View
	c.last, c.sent = r.View, true
	c.playerID, c.gameID = r.PlayerID, r.GameID
	c.mu.Unlock()

	if changed || force {
		c.enqueue(map[string]interface{}{"type": "view", "view": r.View})
	}
}

// Message types
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (c *Client) enqueue(message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("[WS] Error marshaling message: %v", err)
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		log.Printf("[WS] send buffer full for session %s, dropping message", c.sessionID)
	}
}

// sendError sends an error message to the client
func (c *Client) sendError(message string) {
	c.enqueue(map[string]interface{}{
		"type":    "error",
		"message": message,
	})
}

// writePump writes messages to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[WS] write error for session %s: %v", c.sessionID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("[WS] ping error for session %s: %v", c.sessionID, err)
				return
			}
		}
	}
}

// readPump reads client messages until the connection closes.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] unexpected close for session %s: %v", c.sessionID, err)
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.sendError("invalid message")
			continue
		}

		switch msg.Type {
		case "refresh":
			c.markDirty(true)
		default:
			c.sendError("unknown message type")
		}
	}
}
