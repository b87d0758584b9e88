package game

import (
	"encoding/json"
	"time"

	"blastline/internal/world"
)

// EventType classifies match log events.
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypePlayerJoin
	EventTypePlayerLeave
	EventTypeShot
	EventTypeKill
	EventTypeRespawn
	EventTypeMatchEnd
)

// EventVersion for backwards compatibility when replaying old logs.
const EventVersion uint8 = 1

// Event is one entry in the append-only match log.
type Event struct {
	Version   uint8     `json:"version"`
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"` // Unix nano
	Sequence  uint64    `json:"sequence"`  // Monotonic per log
	RoomID    string    `json:"roomId"`
	PlayerID  string    `json:"playerId"` // Source player, used for rate limiting
	Payload   []byte    `json:"payload"`  // JSON-encoded payload
}

// String returns the human-readable event type.
func (t EventType) String() string {
	switch t {
	case EventTypePlayerJoin:
		return "player_join"
	case EventTypePlayerLeave:
		return "player_leave"
	case EventTypeShot:
		return "shot"
	case EventTypeKill:
		return "kill"
	case EventTypeRespawn:
		return "respawn"
	case EventTypeMatchEnd:
		return "match_end"
	default:
		return "unknown"
	}
}

// JoinPayload records a player entering the room.
type JoinPayload struct {
	PlayerID   string     `json:"playerId"`
	PlayerName string     `json:"playerName"`
	Team       world.Team `json:"team"`
	SpawnX     float64    `json:"spawnX"`
	SpawnY     float64    `json:"spawnY"`
}

// LeavePayload records a departure.
type LeavePayload struct {
	PlayerID  string `json:"playerId"`
	Consented bool   `json:"consented"`
}

// ShotPayload records a bullet spawn.
type ShotPayload struct {
	BulletID  string  `json:"bulletId"`
	OwnerID   string  `json:"ownerId"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	VelocityX float64 `json:"velocityX"`
}

// KillPayload records a kill and the score after it.
type KillPayload struct {
	KillerID  string `json:"killerId"`
	VictimID  string `json:"victimId"`
	RedScore  int    `json:"redScore"`
	BlueScore int    `json:"blueScore"`
}

// RespawnPayload records a player returning to its team spawn.
type RespawnPayload struct {
	PlayerID string  `json:"playerId"`
	SpawnX   float64 `json:"spawnX"`
	SpawnY   float64 `json:"spawnY"`
}

// MatchEndPayload records the final result.
type MatchEndPayload struct {
	WinningTeam world.Team `json:"winningTeam"`
	RedScore    int        `json:"redScore"`
	BlueScore   int        `json:"blueScore"`
	GameTimeMS  float64    `json:"gameTimeMs"`
}

// EncodePayload marshals a payload to JSON bytes.
func EncodePayload(payload interface{}) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// NewEvent creates an event stamped with the current time.
func NewEvent(eventType EventType, roomID, playerID string, payload interface{}) Event {
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Timestamp: time.Now().UnixNano(),
		RoomID:    roomID,
		PlayerID:  playerID,
		Payload:   EncodePayload(payload),
	}
}
