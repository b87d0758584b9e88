package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blastline/internal/game"
	"blastline/internal/protocol"
	"blastline/internal/world"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server, *game.Manager) {
	t.Helper()

	manager := game.NewManager(nil, nil)
	srv := NewServer(ServerConfig{
		Manager:    manager,
		MaxWSPerIP: 64,
		RateLimitConfig: &RateLimitConfig{
			RequestsPerSecond: 1000,
			Burst:             1000,
			CleanupInterval:   time.Minute,
		},
		DisableLogging: true,
	})

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		manager.Shutdown()
		srv.rateLimiter.Stop()
	})
	return srv, ts, manager
}

func wsURL(ts *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?" + query
}

// readUntil reads messages until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) protocol.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", msgType)
		msg, err := protocol.Decode(raw)
		require.NoError(t, err)
		if msg.Type == msgType {
			return msg
		}
	}
}

func TestHealth(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRoomsEmptyAndNotFound(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()

	var metas []protocol.RoomMetadata
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&metas))
	assert.Empty(t, metas)

	resp2, err := http.Get(ts.URL + "/api/rooms/nope/state")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestWebSocketJoinFlow(t *testing.T) {
	_, ts, manager := newTestServer(t)

	connA, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "room=arena&name=ana"), nil)
	require.NoError(t, err)
	defer connA.Close()

	var assignedA protocol.TeamAssignedData
	require.NoError(t, readUntil(t, connA, protocol.MsgTeamAssigned).DecodeData(&assignedA))
	assert.Equal(t, world.TeamRed, assignedA.Team)
	assert.Equal(t, "arena", assignedA.RoomID)
	assert.NotEmpty(t, assignedA.PlayerID)

	connB, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "room=arena&name=bo"), nil)
	require.NoError(t, err)
	defer connB.Close()

	var assignedB protocol.TeamAssignedData
	require.NoError(t, readUntil(t, connB, protocol.MsgTeamAssigned).DecodeData(&assignedB))
	assert.Equal(t, world.TeamBlue, assignedB.Team)

	// A learns about B through the broadcast diff. A's own join is
	// broadcast too, so skip that echo.
	var added protocol.PlayerState
	for {
		require.NoError(t, readUntil(t, connA, protocol.MsgPlayerAdded).DecodeData(&added))
		if added.ID != assignedA.PlayerID {
			break
		}
	}
	assert.Equal(t, assignedB.PlayerID, added.ID)
	assert.Equal(t, float64(2800), added.X)

	// A moves; B observes the update.
	move, err := protocol.Encode(protocol.MsgMove, protocol.MoveData{X: 900, Y: 500, VelocityX: 120})
	require.NoError(t, err)
	require.NoError(t, connA.WriteMessage(websocket.TextMessage, move))

	for {
		var upd protocol.PlayerState
		require.NoError(t, readUntil(t, connB, protocol.MsgPlayerUpdated).DecodeData(&upd))
		if upd.ID == assignedA.PlayerID {
			assert.Equal(t, float64(900), upd.X)
			break
		}
	}

	// Lobby metadata reflects the match.
	resp, err := http.Get(ts.URL + "/api/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()
	var metas []protocol.RoomMetadata
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&metas))
	require.Len(t, metas, 1)
	assert.Equal(t, 1, metas[0].RedCount)
	assert.Equal(t, 1, metas[0].BlueCount)
	assert.Equal(t, world.GamePlaying, metas[0].GameState)

	// Spectator snapshot.
	resp2, err := http.Get(ts.URL + "/api/rooms/arena/state")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var snap protocol.RoomSnapshot
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&snap))
	assert.Len(t, snap.Players, 2)

	// Last client out turns the lights off.
	connA.Close()
	connB.Close()
	assert.Eventually(t, func() bool { return manager.Count() == 0 },
		3*time.Second, 20*time.Millisecond, "room should be disposed")
}

func TestWebSocketRequiresRoom(t *testing.T) {
	_, ts, _ := newTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "name=ana"), nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	}
}

func TestShootOverWire(t *testing.T) {
	_, ts, _ := newTestServer(t)

	connA, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "room=pit&name=ana"), nil)
	require.NoError(t, err)
	defer connA.Close()
	readUntil(t, connA, protocol.MsgTeamAssigned)

	connB, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "room=pit&name=bo"), nil)
	require.NoError(t, err)
	defer connB.Close()
	readUntil(t, connB, protocol.MsgTeamAssigned)

	shoot, err := protocol.Encode(protocol.MsgShoot, protocol.ShootData{X: 200, Y: 400})
	require.NoError(t, err)
	require.NoError(t, connA.WriteMessage(websocket.TextMessage, shoot))

	var b protocol.BulletState
	require.NoError(t, readUntil(t, connB, protocol.MsgBulletAdded).DecodeData(&b))
	assert.Equal(t, world.BulletSpeed, b.VelocityX)
	assert.Equal(t, world.TeamRed, b.OwnerTeam)

	// The bullet flies off-world and its removal is replicated.
	var rm protocol.BulletRemovedData
	require.NoError(t, readUntil(t, connB, protocol.MsgBulletRemoved).DecodeData(&rm))
	assert.Equal(t, b.ID, rm.ID)
}

func TestRateLimitMiddleware(t *testing.T) {
	manager := game.NewManager(nil, nil)
	defer manager.Shutdown()

	srv := NewServer(ServerConfig{
		Manager: manager,
		RateLimitConfig: &RateLimitConfig{
			RequestsPerSecond: 1,
			Burst:             1,
			CleanupInterval:   time.Minute,
		},
		DisableLogging: true,
	})
	defer srv.rateLimiter.Stop()

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp2.StatusCode)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(*http.Request)
		remote string
		want   string
	}{
		{"remote addr", func(*http.Request) {}, "10.0.0.1:1234", "10.0.0.1"},
		{"x-forwarded-for", func(r *http.Request) {
			r.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
		}, "10.0.0.1:1234", "1.2.3.4"},
		{"x-real-ip", func(r *http.Request) {
			r.Header.Set("X-Real-IP", "5.6.7.8")
		}, "10.0.0.1:1234", "5.6.7.8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			tt.setup(r)
			assert.Equal(t, tt.want, GetClientIP(r))
		})
	}
}

func TestIsAllowedOrigin(t *testing.T) {
	assert.True(t, IsAllowedOrigin("http://localhost:3000"))
	assert.True(t, IsAllowedOrigin("https://blastline.io"))
	assert.True(t, IsAllowedOrigin("https://eu.blastline.io"))
	assert.False(t, IsAllowedOrigin("https://evil.example.com"))
	assert.False(t, IsAllowedOrigin(""))
}

func TestWebSocketPerIPLimit(t *testing.T) {
	wrl := NewWebSocketRateLimiter(2)
	assert.True(t, wrl.Allow("1.1.1.1"))
	assert.True(t, wrl.Allow("1.1.1.1"))
	assert.False(t, wrl.Allow("1.1.1.1"))
	assert.True(t, wrl.Allow("2.2.2.2"))

	wrl.Release("1.1.1.1")
	assert.True(t, wrl.Allow("1.1.1.1"))
	assert.Equal(t, 2, wrl.ConnectionCount("1.1.1.1"))
}
