package broadcast

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// Client represents a connected WebSocket subscriber for one tenant.
type Client struct {
	hub      *Hub
	tenantID string
	conn     *websocket.Conn
	send     chan []byte
}

type envelope struct {
	tenantID string
	payload  []byte
}

// Hub maintains the set of live subscribers grouped by tenant and fans
// events out to them. Delivery is best-effort: a slow client's buffer
// fills and the client is dropped rather than blocking a state commit.
type Hub struct {
	clients    map[string]map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	log        *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        logger,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			group, ok := h.clients[client.tenantID]
			if !ok {
				group = make(map[*Client]bool)
				h.clients[client.tenantID] = group
			}
			group[client] = true
			h.log.Debug("subscriber registered", zap.String("tenant_id", client.tenantID))
		case client := <-h.unregister:
			h.removeClient(client)
		case msg := <-h.broadcast:
			h.dispatch(msg)
		}
	}
}

// dispatch fans one event out to a tenant's subscribers. A subscriber whose
// buffer is full is evicted rather than blocking the loop.
func (h *Hub) dispatch(msg envelope) {
	for client := range h.clients[msg.tenantID] {
		select {
		case client.send <- msg.payload:
		default:
			h.removeClient(client)
		}
	}
}

// removeClient drops a subscriber and its tenant group once emptied, so
// departed tenants leave nothing behind.
func (h *Hub) removeClient(client *Client) {
	group, ok := h.clients[client.tenantID]
	if !ok {
		return
	}
	if _, ok := group[client]; ok {
		delete(group, client)
		close(client.send)
	}
	if len(group) == 0 {
		delete(h.clients, client.tenantID)
	}
}

type wsEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Send queues an event for a tenant's subscribers without blocking the
// caller. Under overload the event is dropped; the pollable snapshot still
// reflects the committed state.
func (h *Hub) Send(tenantID, eventType string, data interface{}) {
	payload, err := json.Marshal(wsEvent{Type: eventType, Data: data})
	if err != nil {
		h.log.Warn("marshal ws event failed", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- envelope{tenantID: tenantID, payload: payload}:
	default:
		h.log.Warn("ws broadcast queue full, event dropped", zap.String("tenant_id", tenantID))
	}
}

// ServeWs upgrades an HTTP request to a WebSocket subscription for one
// tenant's status feed.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request, tenantID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := &Client{hub: h, tenantID: tenantID, conn: conn, send: make(chan []byte, 256)}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		// Subscribers only listen; inbound frames are heartbeats at most.
	}
}

func (c *Client) writePump() {
	defer func() {
		c.conn.Close()
	}()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
