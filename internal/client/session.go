// Package client implements the client-side core of the shooter: the
// network session, remote-player interpolation, local prediction
// reconciliation and bullet visual tracking. Rendering, input and
// audio live outside; the core receives frame deltas and server
// messages and decides what the visuals should do.
package client

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"blastline/internal/protocol"
	"blastline/internal/world"
)

// Handlers is the typed event surface of a session. Nil entries are
// skipped. Handlers run on the Listen goroutine, one at a time.
type Handlers struct {
	TeamAssigned      func(protocol.TeamAssignedData)
	RemotePlayerAdded func(protocol.PlayerState)
	PlayerUpdated     func(protocol.PlayerState)
	PlayerRemoved     func(id string)
	LocalServerUpdate func(protocol.PlayerState)
	BulletAdded       func(protocol.BulletState)
	BulletRemoved     func(protocol.BulletRemovedData)
	PlayerKilled      func(protocol.PlayerKilledData)
	MatchEnded        func(protocol.MatchEndedData)
	StateChanged      func(protocol.StateChangedData)
}

// Session is one connection to a room. It owns the local identity and
// routes every inbound message through exactly one creation path:
// player-added events that arrive before team-assigned are buffered
// and replayed once the local id is known, so the identity race never
// reaches the consumer.
type Session struct {
	conn     *websocket.Conn
	handlers Handlers

	mu      sync.RWMutex
	localID string
	team    world.Team
	roomID  string

	pendingAdds []protocol.PlayerState

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial connects to a room server. url is the full websocket endpoint,
// e.g. "ws://host:8080/ws?room=arena&name=ana".
func Dial(url string, h Handlers) (*Session, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", url)
	}
	return &Session{conn: conn, handlers: h}, nil
}

// LocalID returns the server-assigned id, empty before team-assigned.
func (s *Session) LocalID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.localID
}

// Team returns the assigned team, empty before team-assigned.
func (s *Session) Team() world.Team {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.team
}

// RoomID returns the joined room id.
func (s *Session) RoomID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roomID
}

// Listen reads and dispatches messages until the connection closes.
// Returns nil on a clean close.
func (s *Session) Listen() error {
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return errors.Wrap(err, "read message")
		}

		msg, err := protocol.Decode(raw)
		if err != nil {
			log.Printf("⚠️ session: %v", err)
			continue
		}
		s.dispatch(msg)
	}
}

func (s *Session) dispatch(msg protocol.Message) {
	switch msg.Type {
	case protocol.MsgTeamAssigned:
		var d protocol.TeamAssignedData
		if err := msg.DecodeData(&d); err != nil {
			log.Printf("⚠️ session: %v", err)
			return
		}
		s.mu.Lock()
		s.localID = d.PlayerID
		s.team = d.Team
		s.roomID = d.RoomID
		pending := s.pendingAdds
		s.pendingAdds = nil
		s.mu.Unlock()

		if s.handlers.TeamAssigned != nil {
			s.handlers.TeamAssigned(d)
		}
		for _, st := range pending {
			s.routeAdded(st)
		}

	case protocol.MsgPlayerAdded:
		var st protocol.PlayerState
		if err := msg.DecodeData(&st); err != nil {
			log.Printf("⚠️ session: %v", err)
			return
		}
		s.mu.Lock()
		if s.localID == "" {
			s.pendingAdds = append(s.pendingAdds, st)
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		s.routeAdded(st)

	case protocol.MsgPlayerUpdated:
		var st protocol.PlayerState
		if err := msg.DecodeData(&st); err != nil {
			log.Printf("⚠️ session: %v", err)
			return
		}
		if st.ID == s.LocalID() {
			if s.handlers.LocalServerUpdate != nil {
				s.handlers.LocalServerUpdate(st)
			}
			return
		}
		if s.handlers.PlayerUpdated != nil {
			s.handlers.PlayerUpdated(st)
		}

	case protocol.MsgPlayerRemoved:
		var d protocol.PlayerRemovedData
		if err := msg.DecodeData(&d); err != nil {
			log.Printf("⚠️ session: %v", err)
			return
		}
		if s.handlers.PlayerRemoved != nil {
			s.handlers.PlayerRemoved(d.ID)
		}

	case protocol.MsgBulletAdded:
		var st protocol.BulletState
		if err := msg.DecodeData(&st); err != nil {
			log.Printf("⚠️ session: %v", err)
			return
		}
		if s.handlers.BulletAdded != nil {
			s.handlers.BulletAdded(st)
		}

	case protocol.MsgBulletRemoved:
		var d protocol.BulletRemovedData
		if err := msg.DecodeData(&d); err != nil {
			log.Printf("⚠️ session: %v", err)
			return
		}
		if s.handlers.BulletRemoved != nil {
			s.handlers.BulletRemoved(d)
		}

	case protocol.MsgPlayerKilled:
		var d protocol.PlayerKilledData
		if err := msg.DecodeData(&d); err != nil {
			log.Printf("⚠️ session: %v", err)
			return
		}
		if s.handlers.PlayerKilled != nil {
			s.handlers.PlayerKilled(d)
		}

	case protocol.MsgMatchEnded:
		var d protocol.MatchEndedData
		if err := msg.DecodeData(&d); err != nil {
			log.Printf("⚠️ session: %v", err)
			return
		}
		if s.handlers.MatchEnded != nil {
			s.handlers.MatchEnded(d)
		}

	case protocol.MsgStateChanged:
		var d protocol.StateChangedData
		if err := msg.DecodeData(&d); err != nil {
			log.Printf("⚠️ session: %v", err)
			return
		}
		if s.handlers.StateChanged != nil {
			s.handlers.StateChanged(d)
		}

	default:
		log.Printf("⚠️ session: unknown message type %q", msg.Type)
	}
}

// routeAdded is the single remote-player creation path. The local
// player never becomes a remote entity.
func (s *Session) routeAdded(st protocol.PlayerState) {
	if st.ID == s.LocalID() {
		return
	}
	if s.handlers.RemotePlayerAdded != nil {
		s.handlers.RemotePlayerAdded(st)
	}
}

// SendMove reports the locally simulated pose.
func (s *Session) SendMove(mv protocol.MoveData) error {
	return s.send(protocol.MsgMove, mv)
}

// SendDash toggles the dash VFX flag.
func (s *Session) SendDash(isDashing bool) error {
	return s.send(protocol.MsgDash, protocol.DashData{IsDashing: isDashing})
}

// SendShoot requests a bullet at the muzzle position.
func (s *Session) SendShoot(x, y float64) error {
	return s.send(protocol.MsgShoot, protocol.ShootData{X: x, Y: y})
}

func (s *Session) send(msgType string, payload any) error {
	raw, err := protocol.Encode(msgType, payload)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return errors.Wrapf(s.conn.WriteMessage(websocket.TextMessage, raw), "send %s", msgType)
}

// Leave closes the connection with a normal closure, which the server
// records as a consented departure.
func (s *Session) Leave() {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "leaving"))
		s.writeMu.Unlock()
		s.conn.Close()
	})
}
