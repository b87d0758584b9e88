package client

import (
	"math"
	"sync"

	"blastline/internal/protocol"
	"blastline/internal/world"
)

// Effects is the capability bundle the reconciliation core needs from
// the presentation layer. Injected at construction; the core never
// reaches into scene state.
type Effects interface {
	HitEffect(x, y float64)
	HitSound()
	DeathEffect(x, y float64)
	DeathSound()
	ImpactEffect(x, y float64)
}

// NopEffects satisfies Effects with no output, for tests.
type NopEffects struct{}

func (NopEffects) HitEffect(float64, float64)    {}
func (NopEffects) HitSound()                     {}
func (NopEffects) DeathEffect(float64, float64)  {}
func (NopEffects) DeathSound()                   {}
func (NopEffects) ImpactEffect(float64, float64) {}

// LocalPlayer is the predicted local entity. The movement state machine
// writes X/Y/velocity every frame through Reconciler.SetPose; the
// reconciler corrects them against server truth. Alpha is the render
// opacity, faded while dead.
type LocalPlayer struct {
	X, Y                 float64
	VelocityX, VelocityY float64
	FlipX                bool

	Health       int
	IsDead       bool
	RespawnTimer float64 // ms, mirrored from server
	Alpha        float64
}

// Reconciler corrects the predicted local player against authoritative
// updates with a tolerance-banded rule: tiny errors are ignored,
// moderate ones bleed off smoothly, large ones teleport. Server updates
// arrive on the session goroutine while Step runs on the frame loop, so
// the player and error state are guarded by mu.
type Reconciler struct {
	mu      sync.Mutex
	player  *LocalPlayer
	effects Effects

	errX, errY float64
	hasError   bool

	isDashing   bool
	dashGraceMS float64
}

// NewReconciler wires the reconciler to the predicted player and the
// effects bundle.
func NewReconciler(player *LocalPlayer, effects Effects) *Reconciler {
	if effects == nil {
		effects = NopEffects{}
	}
	if player.Alpha == 0 {
		player.Alpha = 1
	}
	return &Reconciler{player: player, effects: effects}
}

// SetDashing tracks the dash state. The widened snap threshold stays
// active for a short grace window after the dash ends, because the
// server may still be catching up to the high-speed move.
func (r *Reconciler) SetDashing(dashing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isDashing && !dashing {
		r.dashGraceMS = world.DashSnapGraceMS
	}
	r.isDashing = dashing
}

// SetPose overwrites the predicted pose from the movement state
// machine. Goes through the reconciler so frame-loop writes and
// network-goroutine corrections never interleave.
func (r *Reconciler) SetPose(x, y, vx, vy float64, flipX bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.player
	p.X, p.Y = x, y
	p.VelocityX, p.VelocityY = vx, vy
	p.FlipX = flipX
}

// Seed places the local player at a spawn with full health.
func (r *Reconciler) Seed(x, y float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.player
	p.X, p.Y = x, y
	p.Health = world.PlayerMaxHealth
	p.IsDead = false
	p.Alpha = 1
}

// Snapshot returns a copy of the predicted player.
func (r *Reconciler) Snapshot() LocalPlayer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.player
}

func (r *Reconciler) snapThreshold() float64 {
	if r.isDashing || r.dashGraceMS > 0 {
		return world.SnapThresholdDashPx
	}
	return world.SnapThresholdPx
}

// PredictionError returns the stored error vector, zero when inside
// the dead band.
func (r *Reconciler) PredictionError() (x, y float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasError {
		return 0, 0
	}
	return r.errX, r.errY
}

// ApplyServerUpdate reconciles one authoritative sample. Effects fire
// after the lock is released so they may call back into the core.
func (r *Reconciler) ApplyServerUpdate(st protocol.PlayerState) {
	var fire []func()

	r.mu.Lock()
	p := r.player

	// Health before position: the effects want the pre-correction spot.
	prevHealth := p.Health
	wasDead := p.IsDead
	atX, atY := p.X, p.Y

	if st.Health < prevHealth && st.Health > 0 {
		fire = append(fire, func() {
			r.effects.HitEffect(atX, atY)
			r.effects.HitSound()
		})
	}
	if st.IsDead && !wasDead {
		fire = append(fire, func() {
			r.effects.DeathEffect(atX, atY)
			r.effects.DeathSound()
		})
		p.Alpha = 0.4
	}
	if !st.IsDead && wasDead {
		p.Alpha = 1
	}

	p.Health = st.Health
	p.IsDead = st.IsDead
	p.RespawnTimer = st.RespawnTimer

	ex := st.X - p.X
	ey := st.Y - p.Y
	dist := math.Hypot(ex, ey)

	switch {
	case dist <= world.ReconcileDeadBandPx:
		r.errX, r.errY = 0, 0
		r.hasError = false
	case dist > r.snapThreshold():
		p.X, p.Y = st.X, st.Y
		r.errX, r.errY = 0, 0
		r.hasError = false
	default:
		r.errX, r.errY = ex, ey
		r.hasError = true
	}
	r.mu.Unlock()

	for _, f := range fire {
		f()
	}
}

// Step bleeds off the stored error, moving the visible player toward
// the server position a little each frame until it settles.
func (r *Reconciler) Step(dtSeconds float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dashGraceMS > 0 {
		r.dashGraceMS -= dtSeconds * 1000
		if r.dashGraceMS < 0 {
			r.dashGraceMS = 0
		}
	}

	if !r.hasError {
		return
	}

	decay := world.ReconcileRate * dtSeconds
	if decay > 1 {
		decay = 1
	}
	dx := r.errX * decay
	dy := r.errY * decay
	r.player.X += dx
	r.player.Y += dy
	r.errX -= dx
	r.errY -= dy

	if math.Abs(r.errX) < world.ReconcileSettlePx && math.Abs(r.errY) < world.ReconcileSettlePx {
		// Land exactly on the server position and stop.
		r.player.X += r.errX
		r.player.Y += r.errY
		r.errX, r.errY = 0, 0
		r.hasError = false
	}
}

// RespawnCountdown returns the whole seconds left on the respawn
// timer, for the HUD.
func (r *Reconciler) RespawnCountdown() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.player.IsDead || r.player.RespawnTimer <= 0 {
		return 0
	}
	return int(math.Ceil(r.player.RespawnTimer / 1000))
}
