package client

import (
	"log"
	"sync"

	"blastline/internal/protocol"
	"blastline/internal/world"
)

// Core is the multiplayer coordinator: it owns the session, the remote
// set, the local reconciler and the bullet tracker, and wires the
// session callbacks to them. The presentation layer provides the
// capability bundle at construction and calls Update every frame.
type Core struct {
	Session   *Session
	Remotes   *RemoteSet
	Reconcile *Reconciler
	Bullets   *BulletTracker
	Pool      *LocalBulletPool

	// KillFeed receives kill announcements for the HUD. Optional.
	KillFeed func(protocol.PlayerKilledData)

	// MatchOver receives the final result. Optional.
	MatchOver func(protocol.MatchEndedData)

	// Replicated room phase, written by the session goroutine and read
	// by the frame loop.
	stateMu   sync.RWMutex
	gameState world.GameState
	scores    protocol.Scores
}

// CoreConfig bundles the injected collaborators.
type CoreConfig struct {
	URL     string
	Effects Effects
	Sink    RenderSink

	KillFeed  func(protocol.PlayerKilledData)
	MatchOver func(protocol.MatchEndedData)
}

// Connect dials the room and assembles the client core. Call Listen on
// the returned core's session (usually in a goroutine) and Update each
// frame.
func Connect(cfg CoreConfig) (*Core, error) {
	local := &LocalPlayer{Alpha: 1}
	remotes := NewRemoteSet()
	pool := NewLocalBulletPool(0)

	c := &Core{
		Remotes:   remotes,
		Reconcile: NewReconciler(local, cfg.Effects),
		Bullets:   NewBulletTracker(cfg.Sink, cfg.Effects, pool, remotes.TeamOf),
		Pool:      pool,
		KillFeed:  cfg.KillFeed,
		MatchOver: cfg.MatchOver,
		gameState: world.GameWaiting,
	}

	session, err := Dial(cfg.URL, Handlers{
		TeamAssigned: func(d protocol.TeamAssignedData) {
			c.Bullets.SetLocalID(d.PlayerID)
			x, y := world.SpawnPoint(d.Team)
			c.Reconcile.Seed(x, y)
			log.Printf("🎯 assigned to %s team in room %s", d.Team, d.RoomID)
		},
		RemotePlayerAdded: func(st protocol.PlayerState) { remotes.Add(st) },
		PlayerUpdated:     func(st protocol.PlayerState) { remotes.Update(st) },
		PlayerRemoved:     func(id string) { remotes.Remove(id) },
		LocalServerUpdate: func(st protocol.PlayerState) { c.Reconcile.ApplyServerUpdate(st) },
		BulletAdded:       func(st protocol.BulletState) { c.Bullets.HandleAdded(st) },
		BulletRemoved:     func(d protocol.BulletRemovedData) { c.Bullets.HandleRemoved(d) },
		PlayerKilled: func(d protocol.PlayerKilledData) {
			if c.KillFeed != nil {
				c.KillFeed(d)
			}
		},
		MatchEnded: func(d protocol.MatchEndedData) {
			if c.MatchOver != nil {
				c.MatchOver(d)
			}
		},
		StateChanged: func(d protocol.StateChangedData) { c.setRoomState(d) },
	})
	if err != nil {
		return nil, err
	}
	c.Session = session
	return c, nil
}

// Update advances one frame: local error bleed-off, remote
// interpolation, bullet dead reckoning.
func (c *Core) Update(dtSeconds float64) {
	c.Reconcile.Step(dtSeconds)
	c.Remotes.Step(dtSeconds)
	c.Bullets.Step(dtSeconds)
	c.Pool.Step(dtSeconds)
}

func (c *Core) setRoomState(d protocol.StateChangedData) {
	c.stateMu.Lock()
	c.gameState = d.GameState
	c.scores = d.Scores
	c.stateMu.Unlock()
}

// GameState returns the last replicated room phase.
func (c *Core) GameState() world.GameState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.gameState
}

// Scores returns the last replicated team scores.
func (c *Core) Scores() protocol.Scores {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.scores
}

// Shoot predicts the bullet locally and asks the server for the
// authoritative one.
func (c *Core) Shoot(x, y float64) error {
	vx := world.BulletSpeed
	if c.Reconcile.Snapshot().FlipX {
		vx = -world.BulletSpeed
	}
	c.Pool.Spawn(x, y, vx)
	return c.Session.SendShoot(x, y)
}

// Dash toggles the dash flag locally and on the wire.
func (c *Core) Dash(isDashing bool) error {
	c.Reconcile.SetDashing(isDashing)
	return c.Session.SendDash(isDashing)
}

// ReportPose sends the locally simulated pose to the server.
func (c *Core) ReportPose() error {
	p := c.Reconcile.Snapshot()
	return c.Session.SendMove(protocol.MoveData{
		X:         p.X,
		Y:         p.Y,
		VelocityX: p.VelocityX,
		VelocityY: p.VelocityY,
		FlipX:     p.FlipX,
	})
}

// Leave tears the whole multiplayer state down: disconnect, destroy
// remote visuals, clear tracked bullets and indicators.
func (c *Core) Leave() {
	c.Session.Leave()
	c.Remotes.Clear()
	c.Remotes.SetShowIndicators(false)
	c.Bullets.Clear()
}
