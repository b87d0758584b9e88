// Package protocol defines the wire messages exchanged between the room
// server and its clients. Every message is a JSON envelope with a type
// string and a typed payload.
package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"

	"blastline/internal/world"
)

// Message type identifiers, client -> server.
const (
	MsgMove  = "move"
	MsgDash  = "dash"
	MsgShoot = "shoot"
)

// Message type identifiers, server -> client.
const (
	MsgTeamAssigned  = "team-assigned"
	MsgPlayerKilled  = "player-killed"
	MsgMatchEnded    = "match-ended"
	MsgPlayerAdded   = "player-added"
	MsgPlayerUpdated = "player-updated"
	MsgPlayerRemoved = "player-removed"
	MsgBulletAdded   = "bullet-added"
	MsgBulletRemoved = "bullet-removed"
	MsgStateChanged  = "state-changed"
)

// Message is the wire envelope. Data holds the type-specific payload.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MoveData updates a live player's pose. The server trusts position,
// velocity and facing; it never trusts client bullet velocity.
type MoveData struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	VelocityX float64 `json:"velocityX"`
	VelocityY float64 `json:"velocityY"`
	FlipX     bool    `json:"flipX"`
}

// DashData toggles the transient dash flag, replicated for VFX only.
type DashData struct {
	IsDashing bool `json:"isDashing"`
}

// ShootData requests a bullet at the muzzle position. Velocity is
// computed server-side from the shooter's facing.
type ShootData struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// TeamAssignedData is sent directly to a client on join.
type TeamAssignedData struct {
	Team       world.Team `json:"team"`
	PlayerID   string     `json:"playerId"`
	RoomID     string     `json:"roomId"`
	PlayerName string     `json:"playerName"`
}

// PlayerKilledData is broadcast when a bullet kills a player.
type PlayerKilledData struct {
	KillerID   string `json:"killerId"`
	VictimID   string `json:"victimId"`
	KillerName string `json:"killerName"`
	VictimName string `json:"victimName"`
}

// Scores holds the per-team kill counts.
type Scores struct {
	Red  int `json:"red"`
	Blue int `json:"blue"`
}

// MatchEndedData is broadcast exactly once when a team reaches the
// winning score.
type MatchEndedData struct {
	WinningTeam world.Team `json:"winningTeam"`
	Scores      Scores     `json:"scores"`
}

// PlayerState is the replicated view of one player. Used for
// player-added and player-updated diffs.
type PlayerState struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Team         world.Team `json:"team"`
	X            float64    `json:"x"`
	Y            float64    `json:"y"`
	VelocityX    float64    `json:"velocityX"`
	VelocityY    float64    `json:"velocityY"`
	FlipX        bool       `json:"flipX"`
	Health       int        `json:"health"`
	IsDead       bool       `json:"isDead"`
	RespawnTimer float64    `json:"respawnTimer"`
	IsDashing    bool       `json:"isDashing"`
	Kills        int        `json:"kills"`
	Deaths       int        `json:"deaths"`
}

// PlayerRemovedData announces a departure.
type PlayerRemovedData struct {
	ID string `json:"id"`
}

// BulletState is the replicated view of one bullet at creation.
type BulletState struct {
	ID        string     `json:"id"`
	X         float64    `json:"x"`
	Y         float64    `json:"y"`
	VelocityX float64    `json:"velocityX"`
	OwnerID   string     `json:"ownerId"`
	OwnerTeam world.Team `json:"ownerTeam"`
}

// BulletRemovedData carries the bullet's final position so clients can
// place impact effects.
type BulletRemovedData struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// StateChangedData replicates room-level state transitions.
type StateChangedData struct {
	GameState   world.GameState `json:"gameState"`
	Scores      Scores          `json:"scores"`
	WinningTeam world.Team      `json:"winningTeam,omitempty"`
	GameTime    float64         `json:"gameTime"`
}

// RoomSnapshot is the full room state served over HTTP for spectators
// and the lobby debug view.
type RoomSnapshot struct {
	RoomID      string          `json:"roomId"`
	GameState   world.GameState `json:"gameState"`
	GameTime    float64         `json:"gameTime"`
	Scores      Scores          `json:"scores"`
	WinningTeam world.Team      `json:"winningTeam,omitempty"`
	Players     []PlayerState   `json:"players"`
	Bullets     []BulletState   `json:"bullets"`
}

// RoomMetadata is the lobby-searchable summary, refreshed on every
// join/leave and game-state transition.
type RoomMetadata struct {
	RoomID    string          `json:"roomId"`
	RedCount  int             `json:"redCount"`
	BlueCount int             `json:"blueCount"`
	GameState world.GameState `json:"gameState"`
}

// Encode wraps a payload in the envelope and marshals it.
func Encode(msgType string, payload any) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrapf(err, "encode %s payload", msgType)
		}
		data = raw
	}
	return json.Marshal(Message{Type: msgType, Data: data})
}

// Decode parses the envelope. The payload stays raw until DecodeData.
func Decode(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, errors.Wrap(err, "decode message envelope")
	}
	return msg, nil
}

// DecodeData unmarshals the payload into the given struct.
func (m Message) DecodeData(v any) error {
	if len(m.Data) == 0 {
		return errors.Errorf("message %s has no payload", m.Type)
	}
	return errors.Wrapf(json.Unmarshal(m.Data, v), "decode %s payload", m.Type)
}
