package client

import (
	"math"
	"sync"
	"testing"

	"blastline/internal/protocol"
	"blastline/internal/world"
)

type recEffects struct {
	hits, hitSounds     int
	deaths, deathSounds int
	impacts             int
	lastX, lastY        float64
}

func (e *recEffects) HitEffect(x, y float64) { e.hits++; e.lastX, e.lastY = x, y }
func (e *recEffects) HitSound()              { e.hitSounds++ }
func (e *recEffects) DeathEffect(x, y float64) {
	e.deaths++
	e.lastX, e.lastY = x, y
}
func (e *recEffects) DeathSound()                 { e.deathSounds++ }
func (e *recEffects) ImpactEffect(x, y float64)   { e.impacts++; e.lastX, e.lastY = x, y }

func newTestReconciler() (*Reconciler, *LocalPlayer, *recEffects) {
	p := &LocalPlayer{X: 1000, Y: 500, Health: 100, Alpha: 1}
	fx := &recEffects{}
	return NewReconciler(p, fx), p, fx
}

func serverAt(x, y float64) protocol.PlayerState {
	return protocol.PlayerState{X: x, Y: y, Health: 100}
}

func TestSnapOnLargeError(t *testing.T) {
	r, p, _ := newTestReconciler()

	r.ApplyServerUpdate(serverAt(1500, 500))

	if p.X != 1500 {
		t.Errorf("x = %v, want teleport to 1500", p.X)
	}
	if ex, ey := r.PredictionError(); ex != 0 || ey != 0 {
		t.Errorf("predictionError = (%v, %v), want cleared", ex, ey)
	}
}

func TestDeadBandIgnoresJitter(t *testing.T) {
	r, p, _ := newTestReconciler()

	r.ApplyServerUpdate(serverAt(1003, 500))

	if p.X != 1000 {
		t.Errorf("x = %v, want unchanged", p.X)
	}
	if ex, _ := r.PredictionError(); ex != 0 {
		t.Errorf("error stored inside dead band: %v", ex)
	}
}

func TestSmoothConvergence(t *testing.T) {
	r, p, _ := newTestReconciler()

	r.ApplyServerUpdate(serverAt(1050, 520))
	if p.X != 1000 {
		t.Fatal("moderate error should not teleport")
	}

	const dt = 1.0 / 60
	for i := 0; i < 5000; i++ {
		r.Step(dt)
		if ex, ey := r.PredictionError(); ex == 0 && ey == 0 {
			break
		}
	}

	if math.Abs(p.X-1050) > world.ReconcileSettlePx || math.Abs(p.Y-520) > world.ReconcileSettlePx {
		t.Errorf("did not converge: (%v, %v)", p.X, p.Y)
	}
}

func TestErrorBleedsMonotonically(t *testing.T) {
	r, p, _ := newTestReconciler()
	r.ApplyServerUpdate(serverAt(1080, 500))

	prev := p.X
	for i := 0; i < 10; i++ {
		r.Step(1.0 / 60)
		if p.X < prev {
			t.Fatalf("x moved away from server at step %d", i)
		}
		prev = p.X
	}
	if p.X <= 1000 || p.X > 1080 {
		t.Errorf("x = %v, want between 1000 and 1080", p.X)
	}
}

func TestDashWidensSnapThreshold(t *testing.T) {
	r, p, _ := newTestReconciler()
	r.SetDashing(true)

	// 200 px error: snaps when walking, smooths when dashing.
	r.ApplyServerUpdate(serverAt(1200, 500))
	if p.X == 1200 {
		t.Error("dashing 200px error should smooth, not teleport")
	}

	// Beyond even the dash threshold.
	r.ApplyServerUpdate(serverAt(1600, 500))
	if p.X != 1600 {
		t.Errorf("x = %v, want teleport past dash threshold", p.X)
	}
}

func TestDashGraceWindow(t *testing.T) {
	r, p, _ := newTestReconciler()
	r.SetDashing(true)
	r.SetDashing(false)

	// Inside the grace window the wide threshold still applies.
	r.ApplyServerUpdate(serverAt(1200, 500))
	if p.X == 1200 {
		t.Error("grace window should keep the wide threshold")
	}

	// Burn past the grace window.
	for i := 0; i < 30; i++ {
		r.Step(1.0 / 60)
	}
	p.X = 1000
	r.ApplyServerUpdate(serverAt(1200, 500))
	if p.X != 1200 {
		t.Errorf("x = %v, want teleport after grace expires", p.X)
	}
}

func TestHitEffectsOnHealthDrop(t *testing.T) {
	r, _, fx := newTestReconciler()

	st := serverAt(1000, 500)
	st.Health = 75
	r.ApplyServerUpdate(st)

	if fx.hits != 1 || fx.hitSounds != 1 {
		t.Errorf("hit effects = %d/%d, want 1/1", fx.hits, fx.hitSounds)
	}
	if fx.deaths != 0 {
		t.Error("no death effect expected")
	}
}

func TestDeathAndRespawnEffects(t *testing.T) {
	r, p, fx := newTestReconciler()

	st := serverAt(1000, 500)
	st.Health = 0
	st.IsDead = true
	st.RespawnTimer = 3000
	r.ApplyServerUpdate(st)

	if fx.deaths != 1 || fx.deathSounds != 1 {
		t.Errorf("death effects = %d/%d, want 1/1", fx.deaths, fx.deathSounds)
	}
	if fx.hits != 0 {
		t.Error("death is not a hit")
	}
	if p.Alpha >= 1 {
		t.Errorf("alpha = %v, want faded", p.Alpha)
	}

	respawn := serverAt(200, 500)
	r.ApplyServerUpdate(respawn)
	if p.Alpha != 1 {
		t.Errorf("alpha = %v after respawn, want 1", p.Alpha)
	}
	if p.X != 200 {
		t.Errorf("x = %v, want respawn teleport to 200", p.X)
	}
}

func TestConcurrentUpdatesAndSteps(t *testing.T) {
	// Server updates land on the session goroutine while the frame loop
	// steps and rewrites the pose; run under -race.
	r, _, _ := newTestReconciler()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			r.ApplyServerUpdate(serverAt(1000+float64(i%60), 500))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			r.Step(1.0 / 60)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			r.SetPose(1000, 500, 120, 0, i%2 == 0)
			r.PredictionError()
		}
	}()
	wg.Wait()

	p := r.Snapshot()
	if math.IsNaN(p.X) || math.IsNaN(p.Y) {
		t.Fatalf("pose corrupted: (%v, %v)", p.X, p.Y)
	}
}

func TestRespawnCountdown(t *testing.T) {
	r, p, _ := newTestReconciler()

	if r.RespawnCountdown() != 0 {
		t.Error("alive player has no countdown")
	}

	p.IsDead = true
	p.RespawnTimer = 2500
	if got := r.RespawnCountdown(); got != 3 {
		t.Errorf("countdown = %d, want 3", got)
	}
	p.RespawnTimer = 1
	if got := r.RespawnCountdown(); got != 1 {
		t.Errorf("countdown = %d, want 1", got)
	}
	p.RespawnTimer = 0
	if got := r.RespawnCountdown(); got != 0 {
		t.Errorf("countdown = %d, want 0", got)
	}
}
