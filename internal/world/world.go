// Package world holds the constants and geometry shared by the
// authoritative room simulation and the client core.
//
// IMPORTANT: These values are the SINGLE SOURCE OF TRUTH for both sides.
// Server hit detection and client prediction must agree bit-exact, so
// never duplicate them elsewhere.
package world

import "math"

// Team identifies one of the two sides of a match.
type Team string

const (
	TeamRed  Team = "red"
	TeamBlue Team = "blue"
)

// Opponent returns the other team.
func (t Team) Opponent() Team {
	if t == TeamRed {
		return TeamBlue
	}
	return TeamRed
}

// Valid reports whether t is one of the two playable teams.
func (t Team) Valid() bool {
	return t == TeamRed || t == TeamBlue
}

// GameState is the lifecycle phase of a room.
type GameState string

const (
	GameWaiting GameState = "waiting"
	GamePlaying GameState = "playing"
	GameEnded   GameState = "ended"
)

// Simulation cadence and match rules.
const (
	TickHz     = 60
	MaxClients = 8
	WinScore   = 30
	RespawnMS  = 3000.0
)

// Bullet tuning. Bullets fly horizontally only.
const (
	BulletSpeed      = 1200.0 // px/s
	BulletLifetimeMS = 3000.0
	BulletDamage     = 25
	BulletWidth      = 8.0
	BulletHeight     = 8.0
	BulletHalfWidth  = BulletWidth / 2
	BulletHalfHeight = BulletHeight / 2
)

// Player hitbox. Position convention: (X, Y) is the bottom-center of the
// sprite, so the hitbox center sits at (X, Y - PlayerHalfHeight).
const (
	PlayerHalfWidth  = 18.0
	PlayerHalfHeight = 26.0
	PlayerMaxHealth  = 100
)

// Spawn points and horizontal world bounds.
const (
	RedSpawnX  = 200.0
	RedSpawnY  = 500.0
	BlueSpawnX = 2800.0
	BlueSpawnY = 500.0

	WorldMinX = -100.0
	WorldMaxX = 3100.0
)

// Client reconciliation tuning.
const (
	ReconcileDeadBandPx  = 5.0
	SnapThresholdPx      = 100.0
	SnapThresholdDashPx  = 300.0
	ReconcileRate        = 0.3 // fraction of error bled off per second
	ReconcileSettlePx    = 0.1
	DashSnapGraceMS      = 300.0 // widened snap window after a dash ends
	RemoteSmoothPerFrame = 0.2   // exponential smoothing at 60 Hz
)

// Network-quality indicator bands (prediction distance in px).
const (
	IndicatorGoodPx = 50.0
	IndicatorWarnPx = 100.0
)

// SpawnPoint returns the spawn position for a team.
func SpawnPoint(t Team) (x, y float64) {
	if t == TeamBlue {
		return BlueSpawnX, BlueSpawnY
	}
	return RedSpawnX, RedSpawnY
}

// AABB is an axis-aligned box stored as center plus half extents.
type AABB struct {
	CX, CY float64
	HW, HH float64
}

// Overlaps reports whether two boxes intersect. Touching edges count as
// an overlap, which keeps the swept-bullet test conservative.
func (a AABB) Overlaps(b AABB) bool {
	return math.Abs(a.CX-b.CX) <= a.HW+b.HW &&
		math.Abs(a.CY-b.CY) <= a.HH+b.HH
}

// Rect is a platform rectangle: top-left corner plus size.
type Rect struct {
	X, Y float64
	W, H float64
}

// AABB converts the rectangle to center/half-extent form.
func (r Rect) AABB() AABB {
	return AABB{
		CX: r.X + r.W/2,
		CY: r.Y + r.H/2,
		HW: r.W / 2,
		HH: r.H / 2,
	}
}

// Platforms is the static level geometry. The ground spans the whole
// arena at the spawn height; three floating platforms sit above it.
// Bullets stop on any of these.
var Platforms = []Rect{
	{X: -100, Y: 500, W: 3200, H: 100}, // ground
	{X: 600, Y: 380, W: 300, H: 20},
	{X: 1350, Y: 300, W: 300, H: 20},
	{X: 2100, Y: 380, W: 300, H: 20},
}

// PlayerAABB builds a player hitbox from its bottom-center position.
func PlayerAABB(x, y float64) AABB {
	return AABB{
		CX: x,
		CY: y - PlayerHalfHeight,
		HW: PlayerHalfWidth,
		HH: PlayerHalfHeight,
	}
}

// Finite reports whether v is a usable simulation number. NaN and both
// infinities corrupt swept collision math, so every client-supplied
// coordinate passes through this.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
