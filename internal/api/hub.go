package api

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Hub fans encoded messages out to one room's websocket clients. It
// implements game.Sender. Both send paths are non-blocking: a client
// whose buffer is full gets its connection dropped rather than stalling
// the simulation.
type Hub struct {
	roomID string

	mu      sync.Mutex
	clients map[string]*Client // by player id
}

// NewHub creates an empty hub for one room.
func NewHub(roomID string) *Hub {
	return &Hub{
		roomID:  roomID,
		clients: make(map[string]*Client),
	}
}

// Add registers a client under its player id.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	h.clients[c.playerID] = c
	h.mu.Unlock()
	metricWSConnections.Inc()
}

// Remove unregisters a client. Returns the number of clients left.
func (h *Hub) Remove(playerID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[playerID]; ok {
		delete(h.clients, playerID)
		metricWSConnections.Dec()
	}
	return len(h.clients)
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// SendTo queues a message for one client.
func (h *Hub) SendTo(playerID string, msg []byte) {
	h.mu.Lock()
	c, ok := h.clients[playerID]
	h.mu.Unlock()
	if ok {
		c.queue(msg)
	}
}

// Broadcast queues a message for every client in the room.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.queue(msg)
	}
}

// CloseAll tears down every connection, used on server shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// Client is one websocket connection with its outbound queue. sendMu
// orders queue against close so nothing ever writes a closed channel.
type Client struct {
	playerID string
	conn     *websocket.Conn
	send     chan []byte

	sendMu sync.Mutex
	closed bool
}

// NewClient wraps an upgraded connection.
func NewClient(playerID string, conn *websocket.Conn) *Client {
	return &Client{
		playerID: playerID,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
	}
}

// queue enqueues without blocking. A full buffer means the client
// cannot keep up with the replication stream; disconnect it.
func (c *Client) queue(msg []byte) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		RecordRejected("slow_client")
		log.Printf("⚠️ client %s: send buffer full, disconnecting", c.playerID)
		c.closeLocked()
	}
}

func (c *Client) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump drains the send queue onto the wire and keeps the
// connection alive with pings. Runs in its own goroutine per client.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
