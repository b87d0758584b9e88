package client

import (
	"math"
	"sync"

	"blastline/internal/protocol"
	"blastline/internal/world"
)

// RenderSink receives bullet visual commands. The renderer implements
// it; the tracker only decides when and where.
type RenderSink interface {
	SpawnBullet(id string, x, y float64, team world.Team)
	MoveBullet(id string, x, y float64)
	RemoveBullet(id string)
}

// NopRenderSink discards all commands, for tests.
type NopRenderSink struct{}

func (NopRenderSink) SpawnBullet(string, float64, float64, world.Team) {}
func (NopRenderSink) MoveBullet(string, float64, float64)              {}
func (NopRenderSink) RemoveBullet(string)                              {}

type trackedBullet struct {
	x, y  float64
	vx    float64
	ageMS float64
}

// BulletTracker mirrors server bullets into per-bullet visual
// lifetimes. Remote bullets get a visual advanced by dead reckoning;
// the local player's own bullets are already predicted by the weapon
// system, so their server echoes only matter at removal time, when the
// nearest pooled bullet is deactivated.
type BulletTracker struct {
	mu      sync.Mutex
	tracked map[string]*trackedBullet

	sink    RenderSink
	effects Effects
	pool    *LocalBulletPool

	// teamOf resolves an owner id to a team when the wire sample lacks
	// one. Unknown owners fall back to red.
	teamOf func(id string) (world.Team, bool)

	localID string
}

// NewBulletTracker wires the tracker. teamOf may be nil.
func NewBulletTracker(sink RenderSink, effects Effects, pool *LocalBulletPool, teamOf func(id string) (world.Team, bool)) *BulletTracker {
	if sink == nil {
		sink = NopRenderSink{}
	}
	if effects == nil {
		effects = NopEffects{}
	}
	if pool == nil {
		pool = NewLocalBulletPool(0)
	}
	return &BulletTracker{
		tracked: make(map[string]*trackedBullet),
		sink:    sink,
		effects: effects,
		pool:    pool,
		teamOf:  teamOf,
	}
}

// SetLocalID tells the tracker which bullets are its own.
func (bt *BulletTracker) SetLocalID(id string) {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	bt.localID = id
}

// HandleAdded starts tracking a server bullet. Own bullets are skipped;
// the local pool already shows them.
func (bt *BulletTracker) HandleAdded(st protocol.BulletState) {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	if st.OwnerID == bt.localID {
		return
	}
	if _, ok := bt.tracked[st.ID]; ok {
		return
	}

	team := st.OwnerTeam
	if !team.Valid() {
		if bt.teamOf != nil {
			if t, ok := bt.teamOf(st.OwnerID); ok {
				team = t
			}
		}
		if !team.Valid() {
			team = world.TeamRed
		}
	}

	bt.tracked[st.ID] = &trackedBullet{x: st.X, y: st.Y, vx: st.VelocityX}
	bt.sink.SpawnBullet(st.ID, st.X, st.Y, team)
}

// HandleRemoved finishes a bullet. Tracked visuals get an impact at
// their last dead-reckoned position; an untracked id is assumed to be
// one of our own and reconciled against the local pool.
func (bt *BulletTracker) HandleRemoved(d protocol.BulletRemovedData) {
	bt.mu.Lock()
	tb, ok := bt.tracked[d.ID]
	if ok {
		delete(bt.tracked, d.ID)
	}
	bt.mu.Unlock()

	if ok {
		bt.effects.ImpactEffect(tb.x, tb.y)
		bt.sink.RemoveBullet(d.ID)
		return
	}

	if x, y, found := bt.pool.DeactivateNear(d.X, 50); found {
		bt.effects.ImpactEffect(x, y)
	}
}

// Step advances every tracked visual by dead reckoning. Bullets the
// server never reclaims (lost removal) die at the shared lifetime.
func (bt *BulletTracker) Step(dtSeconds float64) {
	bt.mu.Lock()
	var expired []string
	for id, tb := range bt.tracked {
		tb.ageMS += dtSeconds * 1000
		if tb.ageMS >= world.BulletLifetimeMS {
			expired = append(expired, id)
			continue
		}
		tb.x += tb.vx * dtSeconds
		bt.sink.MoveBullet(id, tb.x, tb.y)
	}
	for _, id := range expired {
		delete(bt.tracked, id)
	}
	bt.mu.Unlock()

	for _, id := range expired {
		bt.sink.RemoveBullet(id)
	}
}

// TrackedCount returns the number of live remote visuals.
func (bt *BulletTracker) TrackedCount() int {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	return len(bt.tracked)
}

// Clear drops all visuals, used on leave.
func (bt *BulletTracker) Clear() {
	bt.mu.Lock()
	ids := make([]string, 0, len(bt.tracked))
	for id := range bt.tracked {
		ids = append(ids, id)
	}
	bt.tracked = make(map[string]*trackedBullet)
	bt.mu.Unlock()

	for _, id := range ids {
		bt.sink.RemoveBullet(id)
	}
}

// LocalBullet is one locally predicted bullet owned by the weapon
// system.
type LocalBullet struct {
	X, Y      float64
	VelocityX float64
	Active    bool
}

// LocalBulletPool is a fixed pool of predicted bullets for the local
// player. The weapon system spawns and advances them; the tracker
// deactivates them when the server reports the authoritative removal.
type LocalBulletPool struct {
	mu      sync.Mutex
	bullets []*LocalBullet
}

// NewLocalBulletPool creates a pool. size <= 0 picks a default.
func NewLocalBulletPool(size int) *LocalBulletPool {
	if size <= 0 {
		size = 32
	}
	bullets := make([]*LocalBullet, size)
	for i := range bullets {
		bullets[i] = &LocalBullet{}
	}
	return &LocalBulletPool{bullets: bullets}
}

// Spawn activates a free bullet, or returns nil when the pool is
// exhausted.
func (p *LocalBulletPool) Spawn(x, y, vx float64) *LocalBullet {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range p.bullets {
		if !b.Active {
			b.X, b.Y, b.VelocityX = x, y, vx
			b.Active = true
			return b
		}
	}
	return nil
}

// Step advances active bullets and deactivates the ones leaving the
// world.
func (p *LocalBulletPool) Step(dtSeconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range p.bullets {
		if !b.Active {
			continue
		}
		b.X += b.VelocityX * dtSeconds
		if b.X < world.WorldMinX || b.X > world.WorldMaxX {
			b.Active = false
		}
	}
}

// DeactivateNear retires the active bullet closest to x within the
// given radius and returns its position. Used to match a server
// removal to its locally predicted twin.
func (p *LocalBulletPool) DeactivateNear(x, radius float64) (bx, by float64, found bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	best := -1
	bestDist := radius
	for i, b := range p.bullets {
		if !b.Active {
			continue
		}
		if d := math.Abs(b.X - x); d <= bestDist {
			best = i
			bestDist = d
		}
	}
	if best < 0 {
		return 0, 0, false
	}
	b := p.bullets[best]
	b.Active = false
	return b.X, b.Y, true
}

// ActiveCount returns the number of live predicted bullets.
func (p *LocalBulletPool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.bullets {
		if b.Active {
			n++
		}
	}
	return n
}
