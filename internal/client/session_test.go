package client

import (
	"testing"

	"blastline/internal/protocol"
	"blastline/internal/world"
)

// deliver encodes and dispatches a message as if it came off the wire.
func deliver(t *testing.T, s *Session, msgType string, payload any) {
	t.Helper()
	raw, err := protocol.Encode(msgType, payload)
	if err != nil {
		t.Fatalf("encode %s: %v", msgType, err)
	}
	msg, err := protocol.Decode(raw)
	if err != nil {
		t.Fatalf("decode %s: %v", msgType, err)
	}
	s.dispatch(msg)
}

func TestAddedBufferedUntilTeamAssigned(t *testing.T) {
	var added []string
	s := &Session{handlers: Handlers{
		RemotePlayerAdded: func(st protocol.PlayerState) { added = append(added, st.ID) },
	}}

	// The replicated state can arrive before the identity message.
	deliver(t, s, protocol.MsgPlayerAdded, protocol.PlayerState{ID: "me", Team: world.TeamRed})
	deliver(t, s, protocol.MsgPlayerAdded, protocol.PlayerState{ID: "r1", Team: world.TeamBlue})

	if len(added) != 0 {
		t.Fatalf("added = %v before team-assigned, want none", added)
	}

	deliver(t, s, protocol.MsgTeamAssigned, protocol.TeamAssignedData{
		Team: world.TeamRed, PlayerID: "me", RoomID: "arena",
	})

	if len(added) != 1 || added[0] != "r1" {
		t.Errorf("added = %v, want only r1 replayed", added)
	}
	if s.LocalID() != "me" || s.Team() != world.TeamRed || s.RoomID() != "arena" {
		t.Errorf("identity = %s/%s/%s", s.LocalID(), s.Team(), s.RoomID())
	}
}

func TestLocalUpdateRouting(t *testing.T) {
	var localUpdates, remoteUpdates int
	s := &Session{handlers: Handlers{
		LocalServerUpdate: func(protocol.PlayerState) { localUpdates++ },
		PlayerUpdated:     func(protocol.PlayerState) { remoteUpdates++ },
	}}

	deliver(t, s, protocol.MsgTeamAssigned, protocol.TeamAssignedData{PlayerID: "me", Team: world.TeamRed})

	deliver(t, s, protocol.MsgPlayerUpdated, protocol.PlayerState{ID: "me", X: 100})
	deliver(t, s, protocol.MsgPlayerUpdated, protocol.PlayerState{ID: "r1", X: 200})

	if localUpdates != 1 {
		t.Errorf("localUpdates = %d, want 1", localUpdates)
	}
	if remoteUpdates != 1 {
		t.Errorf("remoteUpdates = %d, want 1", remoteUpdates)
	}
}

func TestLocalAddedNeverBecomesRemote(t *testing.T) {
	var added int
	s := &Session{handlers: Handlers{
		RemotePlayerAdded: func(protocol.PlayerState) { added++ },
	}}

	deliver(t, s, protocol.MsgTeamAssigned, protocol.TeamAssignedData{PlayerID: "me", Team: world.TeamRed})
	deliver(t, s, protocol.MsgPlayerAdded, protocol.PlayerState{ID: "me"})

	if added != 0 {
		t.Errorf("local player surfaced as remote %d times", added)
	}
}

func TestDiscreteEventRouting(t *testing.T) {
	var kills, ends, states int
	s := &Session{handlers: Handlers{
		PlayerKilled: func(protocol.PlayerKilledData) { kills++ },
		MatchEnded:   func(protocol.MatchEndedData) { ends++ },
		StateChanged: func(protocol.StateChangedData) { states++ },
	}}

	deliver(t, s, protocol.MsgPlayerKilled, protocol.PlayerKilledData{KillerID: "a", VictimID: "b"})
	deliver(t, s, protocol.MsgMatchEnded, protocol.MatchEndedData{WinningTeam: world.TeamRed})
	deliver(t, s, protocol.MsgStateChanged, protocol.StateChangedData{GameState: world.GameEnded})

	if kills != 1 || ends != 1 || states != 1 {
		t.Errorf("routing = %d/%d/%d, want 1/1/1", kills, ends, states)
	}
}

func TestUnknownTypeTolerated(t *testing.T) {
	s := &Session{}
	s.dispatch(protocol.Message{Type: "mystery"})
}

func TestNilHandlersTolerated(t *testing.T) {
	s := &Session{}
	deliver(t, s, protocol.MsgTeamAssigned, protocol.TeamAssignedData{PlayerID: "me"})
	deliver(t, s, protocol.MsgPlayerAdded, protocol.PlayerState{ID: "r1"})
	deliver(t, s, protocol.MsgBulletAdded, protocol.BulletState{ID: "r1-1"})
	deliver(t, s, protocol.MsgPlayerRemoved, protocol.PlayerRemovedData{ID: "r1"})
}
