package game

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"blastline/internal/protocol"
	"blastline/internal/world"
)

// ErrRoomFull is returned when a ninth client tries to join.
var ErrRoomFull = errors.New("room is full")

// Sender delivers encoded messages to connected clients. The transport
// layer implements it; it must never call back into the room, because
// the room holds its lock while sending.
type Sender interface {
	SendTo(playerID string, msg []byte)
	Broadcast(msg []byte)
}

// Metrics receives room gauges and counters. The API layer wires this
// to Prometheus; tests use NopMetrics.
type Metrics interface {
	TickDuration(seconds float64)
	RoomCounts(roomID string, players, bullets int)
	KillRecorded()
}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) TickDuration(float64)          {}
func (NopMetrics) RoomCounts(string, int, int)   {}
func (NopMetrics) KillRecorded()                 {}

// RoomConfig bundles the collaborators a room needs.
type RoomConfig struct {
	Sender  Sender
	Metrics Metrics
	Events  *EventLog // optional
}

// Room is one isolated match: up to eight players, authoritative
// simulation at 60 Hz. All state is guarded by mu; message handlers,
// the tick loop and bullet lifetime timers all take it, so no two
// handlers for the same room ever run concurrently.
type Room struct {
	mu sync.Mutex

	id      string
	sender  Sender
	metrics Metrics
	events  *EventLog

	state       world.GameState
	gameTime    float64 // ms since the match started
	players     map[string]*Player
	bullets     []*Bullet
	scores      protocol.Scores
	winningTeam world.Team

	// Lifetime safety-net timers by bullet id. The tick's platform and
	// off-world checks usually remove bullets first; the timer catches
	// the rest. Both paths are idempotent.
	lifetimes map[string]*time.Timer

	running  bool
	ticker   *time.Ticker
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewRoom creates a room in the waiting state.
func NewRoom(id string, cfg RoomConfig) *Room {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Room{
		id:        id,
		sender:    cfg.Sender,
		metrics:   metrics,
		events:    cfg.Events,
		state:     world.GameWaiting,
		players:   make(map[string]*Player),
		lifetimes: make(map[string]*time.Timer),
		stopChan:  make(chan struct{}),
	}
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// Start launches the fixed-rate tick loop.
func (r *Room) Start() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	select {
	case <-r.stopChan:
		// Already stopped, never restart a dead room.
		r.mu.Unlock()
		return
	default:
	}
	r.running = true
	r.ticker = time.NewTicker(time.Second / world.TickHz)
	r.mu.Unlock()

	go func() {
		last := time.Now()
		for {
			select {
			case now := <-r.ticker.C:
				dtMs := float64(now.Sub(last).Microseconds()) / 1000.0
				last = now
				start := time.Now()
				r.Tick(dtMs)
				r.metrics.TickDuration(time.Since(start).Seconds())
			case <-r.stopChan:
				return
			}
		}
	}()

	log.Printf("🎮 room %s: simulation started at %d Hz", r.id, world.TickHz)
}

// Stop halts the tick loop and cancels all bullet timers.
func (r *Room) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.running = false
		if r.ticker != nil {
			r.ticker.Stop()
		}
		for id, timer := range r.lifetimes {
			timer.Stop()
			delete(r.lifetimes, id)
		}
		close(r.stopChan)
		r.mu.Unlock()
		log.Printf("🛑 room %s: simulation stopped", r.id)
	})
}

// Join adds a player, balancing teams by live headcount (tie goes to
// red). The joiner receives team-assigned plus the current room state;
// everyone receives player-added.
func (r *Room) Join(playerID, name string) (*Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.players) >= world.MaxClients {
		return nil, ErrRoomFull
	}
	if _, ok := r.players[playerID]; ok {
		return nil, errors.Errorf("player %s already in room %s", playerID, r.id)
	}

	team := r.pickTeamLocked()
	p := NewPlayer(playerID, name, team)
	r.players[playerID] = p

	if r.state == world.GameWaiting {
		r.state = world.GamePlaying
		r.broadcastLocked(protocol.MsgStateChanged, r.stateChangedLocked())
	}

	r.sendToLocked(playerID, protocol.MsgTeamAssigned, protocol.TeamAssignedData{
		Team:       team,
		PlayerID:   playerID,
		RoomID:     r.id,
		PlayerName: name,
	})

	// Initial state sync for the joiner.
	for _, other := range r.players {
		if other.ID != playerID {
			r.sendToLocked(playerID, protocol.MsgPlayerAdded, other.State())
		}
	}
	for _, b := range r.bullets {
		r.sendToLocked(playerID, protocol.MsgBulletAdded, b.State())
	}
	r.sendToLocked(playerID, protocol.MsgStateChanged, r.stateChangedLocked())

	r.broadcastLocked(protocol.MsgPlayerAdded, p.State())

	if r.events != nil {
		r.events.EmitSimple(EventTypePlayerJoin, r.id, playerID, JoinPayload{
			PlayerID: playerID, PlayerName: name, Team: team, SpawnX: p.X, SpawnY: p.Y,
		})
	}
	r.metrics.RoomCounts(r.id, len(r.players), len(r.bullets))

	log.Printf("👤 room %s: %s joined as %s (%s team)", r.id, name, playerID, team)
	return p, nil
}

// Leave removes a player. In-flight bullets fired by the leaver stay
// valid until their natural end.
func (r *Room) Leave(playerID string, consented bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[playerID]
	if !ok {
		return
	}
	delete(r.players, playerID)

	r.broadcastLocked(protocol.MsgPlayerRemoved, protocol.PlayerRemovedData{ID: playerID})

	if r.events != nil {
		r.events.EmitSimple(EventTypePlayerLeave, r.id, playerID, LeavePayload{
			PlayerID: playerID, Consented: consented,
		})
	}
	r.metrics.RoomCounts(r.id, len(r.players), len(r.bullets))

	log.Printf("👋 room %s: %s left", r.id, p.Name)
}

// Empty reports whether the room has no players.
func (r *Room) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players) == 0
}

// pickTeamLocked assigns the team with fewer players; red wins ties.
func (r *Room) pickTeamLocked() world.Team {
	red, blue := 0, 0
	for _, p := range r.players {
		if p.Team == world.TeamRed {
			red++
		} else {
			blue++
		}
	}
	if blue < red {
		return world.TeamBlue
	}
	return world.TeamRed
}

// HandleMove updates a live player's pose. Non-finite coordinates are
// logged and dropped; moves from dead or unknown players are ignored.
func (r *Room) HandleMove(playerID string, mv protocol.MoveData) {
	if !world.Finite(mv.X) || !world.Finite(mv.Y) ||
		!world.Finite(mv.VelocityX) || !world.Finite(mv.VelocityY) {
		log.Printf("⚠️ room %s: dropping move with non-finite fields from %s", r.id, playerID)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[playerID]
	if !ok || p.IsDead {
		return
	}

	p.X, p.Y = mv.X, mv.Y
	p.VelocityX, p.VelocityY = mv.VelocityX, mv.VelocityY
	p.FlipX = mv.FlipX

	r.broadcastLocked(protocol.MsgPlayerUpdated, p.State())
}

// HandleDash mirrors the transient dash flag for VFX.
func (r *Room) HandleDash(playerID string, d protocol.DashData) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[playerID]
	if !ok || p.IsDead {
		return
	}

	p.IsDashing = d.IsDashing
	r.broadcastLocked(protocol.MsgPlayerUpdated, p.State())
}

// HandleShoot spawns a bullet at the reported muzzle position. The
// server computes velocity from the shooter's facing; any
// client-supplied velocity is ignored.
func (r *Room) HandleShoot(playerID string, sh protocol.ShootData) {
	if !world.Finite(sh.X) || !world.Finite(sh.Y) {
		log.Printf("⚠️ room %s: dropping shoot with non-finite position from %s", r.id, playerID)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != world.GamePlaying {
		return
	}
	p, ok := r.players[playerID]
	if !ok || p.IsDead {
		return
	}

	b := NewBullet(p, sh.X, sh.Y)
	if !world.Finite(b.X) || !world.Finite(b.Y) || !world.Finite(b.VelocityX) {
		log.Printf("⚠️ room %s: rejecting bullet with non-finite fields from %s", r.id, playerID)
		return
	}

	r.bullets = append(r.bullets, b)
	r.broadcastLocked(protocol.MsgBulletAdded, b.State())

	id := b.ID
	r.lifetimes[id] = time.AfterFunc(
		time.Duration(world.BulletLifetimeMS)*time.Millisecond,
		func() { r.ExpireBullet(id) },
	)

	if r.events != nil {
		r.events.EmitSimple(EventTypeShot, r.id, playerID, ShotPayload{
			BulletID: b.ID, OwnerID: playerID, X: b.X, Y: b.Y, VelocityX: b.VelocityX,
		})
	}
	r.metrics.RoomCounts(r.id, len(r.players), len(r.bullets))
}

// ExpireBullet removes a bullet when its lifetime elapses. A no-op if
// the tick already removed it.
func (r *Room) ExpireBullet(bulletID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, b := range r.bullets {
		if b.ID == bulletID {
			r.removeBulletAtLocked(i)
			return
		}
	}
}

// Tick advances the simulation by dtMs. Order matters: respawn timers
// first, then bullet CCD, then deferred removal.
func (r *Room) Tick(dtMs float64) {
	if !world.Finite(dtMs) {
		log.Printf("⚠️ room %s: skipping tick, bad delta %v", r.id, dtMs)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != world.GamePlaying {
		return
	}
	r.gameTime += dtMs

	for _, p := range r.players {
		if p.IsDead && p.RespawnTimer > 0 {
			p.RespawnTimer -= dtMs
			if p.RespawnTimer <= 0 {
				p.Respawn()
				r.broadcastLocked(protocol.MsgPlayerUpdated, p.State())
				if r.events != nil {
					r.events.EmitSimple(EventTypeRespawn, r.id, p.ID, RespawnPayload{
						PlayerID: p.ID, SpawnX: p.X, SpawnY: p.Y,
					})
				}
			}
		}
	}

	dt := dtMs / 1000.0
	var removal []int
	for i, b := range r.bullets {
		if !world.Finite(b.X) || !world.Finite(b.VelocityX) {
			removal = append(removal, i)
			continue
		}

		nextX := b.X + b.VelocityX*dt
		swept := b.SweptAABB(nextX)

		hit := false
		for _, p := range r.players {
			if !b.CanHit(p) {
				continue
			}
			if swept.Overlaps(p.AABB()) {
				r.resolveHitLocked(b, p)
				hit = true
				break
			}
		}
		if hit {
			removal = append(removal, i)
			continue
		}

		b.X = nextX
		if b.HitsPlatform() || b.OffWorld() {
			removal = append(removal, i)
		}
	}

	r.spliceBulletsLocked(removal)
}

// resolveHitLocked applies damage, scores kills and fires the
// match-end transition exactly once.
func (r *Room) resolveHitLocked(b *Bullet, victim *Player) {
	died := victim.TakeDamage(world.BulletDamage)
	r.broadcastLocked(protocol.MsgPlayerUpdated, victim.State())
	if !died {
		return
	}

	killerName := b.OwnerName
	if killer, ok := r.players[b.OwnerID]; ok {
		killer.Kills++
		killerName = killer.Name
		r.broadcastLocked(protocol.MsgPlayerUpdated, killer.State())
	}

	r.broadcastLocked(protocol.MsgPlayerKilled, protocol.PlayerKilledData{
		KillerID:   b.OwnerID,
		VictimID:   victim.ID,
		KillerName: killerName,
		VictimName: victim.Name,
	})

	var teamScore int
	if b.OwnerTeam == world.TeamRed {
		r.scores.Red++
		teamScore = r.scores.Red
	} else {
		r.scores.Blue++
		teamScore = r.scores.Blue
	}
	r.metrics.KillRecorded()

	if r.events != nil {
		r.events.EmitSimple(EventTypeKill, r.id, b.OwnerID, KillPayload{
			KillerID: b.OwnerID, VictimID: victim.ID,
			RedScore: r.scores.Red, BlueScore: r.scores.Blue,
		})
	}
	log.Printf("💀 room %s: %s killed %s (%d:%d)", r.id, killerName, victim.Name, r.scores.Red, r.scores.Blue)

	// Only the first crossing fixes the winner. Later kills in the same
	// tick still score, but cannot change the outcome.
	if r.winningTeam == "" && teamScore >= world.WinScore {
		r.state = world.GameEnded
		r.winningTeam = b.OwnerTeam
		r.broadcastLocked(protocol.MsgStateChanged, r.stateChangedLocked())
		r.broadcastLocked(protocol.MsgMatchEnded, protocol.MatchEndedData{
			WinningTeam: r.winningTeam,
			Scores:      r.scores,
		})
		if r.events != nil {
			r.events.EmitSimple(EventTypeMatchEnd, r.id, "", MatchEndPayload{
				WinningTeam: r.winningTeam,
				RedScore:    r.scores.Red,
				BlueScore:   r.scores.Blue,
				GameTimeMS:  r.gameTime,
			})
		}
		log.Printf("🏁 room %s: match ended, %s wins %d:%d", r.id, r.winningTeam, r.scores.Red, r.scores.Blue)
	}
}

// spliceBulletsLocked removes the given indices: dedupe, sort
// descending, splice. Removal is announced with the bullet's final
// position for client impact effects.
func (r *Room) spliceBulletsLocked(indices []int) {
	if len(indices) == 0 {
		return
	}

	seen := make(map[int]struct{}, len(indices))
	unique := indices[:0]
	for _, i := range indices {
		if _, dup := seen[i]; !dup {
			seen[i] = struct{}{}
			unique = append(unique, i)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(unique)))

	for _, i := range unique {
		if i < 0 || i >= len(r.bullets) {
			continue
		}
		r.removeBulletAtLocked(i)
	}
}

func (r *Room) removeBulletAtLocked(i int) {
	b := r.bullets[i]
	if timer, ok := r.lifetimes[b.ID]; ok {
		timer.Stop()
		delete(r.lifetimes, b.ID)
	}
	r.bullets = append(r.bullets[:i], r.bullets[i+1:]...)
	r.broadcastLocked(protocol.MsgBulletRemoved, protocol.BulletRemovedData{
		ID: b.ID, X: b.X, Y: b.Y,
	})
	r.metrics.RoomCounts(r.id, len(r.players), len(r.bullets))
}

func (r *Room) stateChangedLocked() protocol.StateChangedData {
	return protocol.StateChangedData{
		GameState:   r.state,
		Scores:      r.scores,
		WinningTeam: r.winningTeam,
		GameTime:    r.gameTime,
	}
}

// Metadata returns the lobby-searchable summary.
func (r *Room) Metadata() protocol.RoomMetadata {
	r.mu.Lock()
	defer r.mu.Unlock()

	meta := protocol.RoomMetadata{RoomID: r.id, GameState: r.state}
	for _, p := range r.players {
		if p.Team == world.TeamRed {
			meta.RedCount++
		} else {
			meta.BlueCount++
		}
	}
	return meta
}

// Snapshot returns the full room state for the HTTP spectator view.
func (r *Room) Snapshot() protocol.RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := protocol.RoomSnapshot{
		RoomID:      r.id,
		GameState:   r.state,
		GameTime:    r.gameTime,
		Scores:      r.scores,
		WinningTeam: r.winningTeam,
		Players:     make([]protocol.PlayerState, 0, len(r.players)),
		Bullets:     make([]protocol.BulletState, 0, len(r.bullets)),
	}
	for _, p := range r.players {
		snap.Players = append(snap.Players, p.State())
	}
	sort.Slice(snap.Players, func(i, j int) bool { return snap.Players[i].ID < snap.Players[j].ID })
	for _, b := range r.bullets {
		snap.Bullets = append(snap.Bullets, b.State())
	}
	return snap
}

// Player returns the live player record, for tests and the HTTP layer.
func (r *Room) Player(id string) (*Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	return p, ok
}

// BulletCount returns the number of in-flight bullets.
func (r *Room) BulletCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bullets)
}

func (r *Room) sendToLocked(playerID, msgType string, payload any) {
	if r.sender == nil {
		return
	}
	raw, err := protocol.Encode(msgType, payload)
	if err != nil {
		log.Printf("⚠️ room %s: encode %s: %v", r.id, msgType, err)
		return
	}
	r.sender.SendTo(playerID, raw)
}

func (r *Room) broadcastLocked(msgType string, payload any) {
	if r.sender == nil {
		return
	}
	raw, err := protocol.Encode(msgType, payload)
	if err != nil {
		log.Printf("⚠️ room %s: encode %s: %v", r.id, msgType, err)
		return
	}
	r.sender.Broadcast(raw)
}
