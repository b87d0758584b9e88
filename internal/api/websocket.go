package api

import (
	crand "crypto/rand"
	"encoding/hex"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"blastline/internal/game"
	"blastline/internal/protocol"
)

// AllowedOrigins for CORS and websocket upgrades, beyond localhost.
var AllowedOrigins = []string{
	"https://blastline.io",
	"https://www.blastline.io",
}

// IsAllowedOrigin reports whether a browser origin may connect.
func IsAllowedOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	if strings.HasPrefix(origin, "http://localhost") || strings.HasPrefix(origin, "http://127.0.0.1") {
		return true
	}
	for _, allowed := range AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return strings.HasSuffix(origin, ".blastline.io")
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Non-browser clients send no Origin header.
		origin := r.Header.Get("Origin")
		return origin == "" || IsAllowedOrigin(origin)
	},
}

// newPlayerID generates a server-assigned player id. Ids are opaque to
// clients; uniqueness inside a room is all that matters.
func newPlayerID() string {
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err != nil {
		return "p-fallback"
	}
	return "p-" + hex.EncodeToString(buf[:])
}

// handleWS upgrades a connection and runs its read loop until the
// client disconnects. Query params: room (required), name (optional).
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)
	if !s.wsLimiter.Allow(ip) {
		RecordRejected("ws_per_ip")
		http.Error(w, "Too Many Connections", http.StatusTooManyRequests)
		return
	}
	defer s.wsLimiter.Release(ip)

	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		http.Error(w, "missing room parameter", http.StatusBadRequest)
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		name = "anon"
	}
	if len(name) > 24 {
		name = name[:24]
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("⚠️ websocket upgrade from %s: %v", ip, err)
		return
	}

	playerID := newPlayerID()
	client := NewClient(playerID, conn)

	hub, room := s.roomFor(roomID)

	// Register before joining so the join-time state sync lands in the
	// client's buffered queue.
	hub.Add(client)

	if _, err := room.Join(playerID, name); err != nil {
		hub.Remove(playerID)
		RecordRejected("room_full")
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		conn.Close()
		return
	}
	metricRoomsActive.Set(float64(s.manager.Count()))

	go client.writePump()
	s.readPump(client, room, hub)
}

// readPump dispatches inbound messages to the room until the
// connection dies, then tears the player down.
func (s *Server) readPump(c *Client, room *game.Room, hub *Hub) {
	consented := false
	defer func() {
		room.Leave(c.playerID, consented)
		c.close()
		if hub.Remove(c.playerID) == 0 {
			s.maybeDisposeRoom(room.ID())
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				consented = true
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("⚠️ client %s: %v", c.playerID, err)
			}
			return
		}

		msg, err := protocol.Decode(raw)
		if err != nil {
			RecordRejected("bad_message")
			log.Printf("⚠️ client %s: %v", c.playerID, err)
			continue
		}

		switch msg.Type {
		case protocol.MsgMove:
			var mv protocol.MoveData
			if err := msg.DecodeData(&mv); err != nil {
				RecordRejected("bad_message")
				continue
			}
			room.HandleMove(c.playerID, mv)
		case protocol.MsgDash:
			var d protocol.DashData
			if err := msg.DecodeData(&d); err != nil {
				RecordRejected("bad_message")
				continue
			}
			room.HandleDash(c.playerID, d)
		case protocol.MsgShoot:
			var sh protocol.ShootData
			if err := msg.DecodeData(&sh); err != nil {
				RecordRejected("bad_message")
				continue
			}
			room.HandleShoot(c.playerID, sh)
		default:
			RecordRejected("unknown_type")
			log.Printf("⚠️ client %s: unknown message type %q", c.playerID, msg.Type)
		}
	}
}
