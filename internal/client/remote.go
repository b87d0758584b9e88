package client

import (
	"math"
	"sync"

	"blastline/internal/protocol"
	"blastline/internal/world"
)

// IndicatorColor classifies a remote player's prediction distance for
// the network-quality overlay.
type IndicatorColor string

const (
	IndicatorGreen  IndicatorColor = "green"
	IndicatorYellow IndicatorColor = "yellow"
	IndicatorRed    IndicatorColor = "red"
)

// RemotePlayer mirrors one server-owned player. (X, Y) is the smoothed
// visual position; (TargetX, TargetY) is the last authoritative sample.
// Everything except position mirrors the server immediately.
type RemotePlayer struct {
	ID   string
	Name string
	Team world.Team

	X, Y             float64
	TargetX, TargetY float64

	VelocityX, VelocityY float64
	FlipX                bool
	Health               int
	IsDead               bool
	IsDashing            bool
	Kills, Deaths        int
}

// PredictionDistance is the gap between the visual position and the
// last server sample, in pixels.
func (rp *RemotePlayer) PredictionDistance() float64 {
	return math.Hypot(rp.X-rp.TargetX, rp.Y-rp.TargetY)
}

// IndicatorColor maps the prediction distance to the overlay bands.
func (rp *RemotePlayer) IndicatorColor() IndicatorColor {
	d := rp.PredictionDistance()
	switch {
	case d <= world.IndicatorGoodPx:
		return IndicatorGreen
	case d <= world.IndicatorWarnPx:
		return IndicatorYellow
	default:
		return IndicatorRed
	}
}

// RemoteSet holds every remote player and advances their interpolation
// each frame. Creation happens only through Add; an update for an
// unknown id is dropped, the session layer guarantees added-before-
// updated ordering.
type RemoteSet struct {
	mu      sync.Mutex
	players map[string]*RemotePlayer

	showIndicators bool

	// DeathEdge fires on isDead transitions: true when the player just
	// died, false on respawn. Cosmetic hook for dim/restore.
	DeathEdge func(rp *RemotePlayer, died bool)
}

// NewRemoteSet creates an empty set.
func NewRemoteSet() *RemoteSet {
	return &RemoteSet{players: make(map[string]*RemotePlayer)}
}

// Add creates a remote player from a server sample. Adding an existing
// id refreshes it in place instead of creating a second entity.
func (rs *RemoteSet) Add(st protocol.PlayerState) *RemotePlayer {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rp, ok := rs.players[st.ID]; ok {
		rs.applyLocked(rp, st)
		return rp
	}

	rp := &RemotePlayer{
		ID:      st.ID,
		Name:    st.Name,
		Team:    st.Team,
		X:       st.X,
		Y:       st.Y,
		TargetX: st.X,
		TargetY: st.Y,
	}
	rs.applyLocked(rp, st)
	rs.players[st.ID] = rp
	return rp
}

// Update refreshes a remote player from a server sample. Unknown ids
// are dropped.
func (rs *RemoteSet) Update(st protocol.PlayerState) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rp, ok := rs.players[st.ID]
	if !ok {
		return
	}
	rs.applyLocked(rp, st)
}

func (rs *RemoteSet) applyLocked(rp *RemotePlayer, st protocol.PlayerState) {
	wasDead := rp.IsDead

	rp.TargetX, rp.TargetY = st.X, st.Y
	rp.VelocityX, rp.VelocityY = st.VelocityX, st.VelocityY
	rp.FlipX = st.FlipX
	rp.Health = st.Health
	rp.IsDashing = st.IsDashing
	rp.IsDead = st.IsDead
	rp.Kills, rp.Deaths = st.Kills, st.Deaths

	if st.IsDead != wasDead {
		if st.IsDead {
			rp.VelocityX, rp.VelocityY = 0, 0
		} else {
			// Respawn teleport, do not glide across the map.
			rp.X, rp.Y = st.X, st.Y
		}
		if rs.DeathEdge != nil {
			rs.DeathEdge(rp, st.IsDead)
		}
	}
}

// Remove drops a remote player.
func (rs *RemoteSet) Remove(id string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	delete(rs.players, id)
}

// Get returns a remote player by id.
func (rs *RemoteSet) Get(id string) (*RemotePlayer, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rp, ok := rs.players[id]
	return rp, ok
}

// TeamOf returns a player's team, for bullet coloring.
func (rs *RemoteSet) TeamOf(id string) (world.Team, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rp, ok := rs.players[id]; ok {
		return rp.Team, true
	}
	return "", false
}

// Step advances interpolation by one frame. The smoothing constant is
// tuned per frame at 60 Hz; converting it through the real delta keeps
// the glide speed identical at any frame rate.
func (rs *RemoteSet) Step(dtSeconds float64) {
	alpha := 1 - math.Pow(1-world.RemoteSmoothPerFrame, dtSeconds*world.TickHz)

	rs.mu.Lock()
	defer rs.mu.Unlock()
	for _, rp := range rs.players {
		rp.X += (rp.TargetX - rp.X) * alpha
		rp.Y += (rp.TargetY - rp.Y) * alpha
	}
}

// SetShowIndicators toggles the network-quality overlay.
func (rs *RemoteSet) SetShowIndicators(on bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.showIndicators = on
}

// ShowIndicators reports the overlay toggle.
func (rs *RemoteSet) ShowIndicators() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.showIndicators
}

// Count returns the number of remote players.
func (rs *RemoteSet) Count() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.players)
}

// Clear removes everything, used on leave.
func (rs *RemoteSet) Clear() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.players = make(map[string]*RemotePlayer)
}
