package game

import (
	"fmt"

	"blastline/internal/protocol"
	"blastline/internal/world"
)

// Bullet is an authoritative projectile. Bullets only travel
// horizontally; vertical velocity is always zero in this game.
type Bullet struct {
	ID        string
	X, Y      float64
	VelocityX float64
	OwnerID   string
	OwnerTeam world.Team

	// OwnerName is kept so the kill feed stays correct even after the
	// shooter disconnects mid-flight.
	OwnerName string
}

// NewBullet creates a bullet fired by owner at the given muzzle
// position. The id combines the owner with its monotonic shot counter,
// so two shots inside the same millisecond still get distinct ids.
func NewBullet(owner *Player, x, y float64) *Bullet {
	vx := world.BulletSpeed
	if owner.FlipX {
		vx = -world.BulletSpeed
	}
	return &Bullet{
		ID:        fmt.Sprintf("%s-%d", owner.ID, owner.NextShotSeq()),
		X:         x,
		Y:         y,
		VelocityX: vx,
		OwnerID:   owner.ID,
		OwnerTeam: owner.Team,
		OwnerName: owner.Name,
	}
}

// AABB is the static bullet box at its current position.
func (b *Bullet) AABB() world.AABB {
	return world.AABB{CX: b.X, CY: b.Y, HW: world.BulletHalfWidth, HH: world.BulletHalfHeight}
}

// SweptAABB covers the horizontal path from the current position to
// nextX, enlarged by the bullet half width on both ends. A fast bullet
// that would tunnel through a player in one tick still overlaps this
// box (CCD).
func (b *Bullet) SweptAABB(nextX float64) world.AABB {
	minX := b.X - world.BulletHalfWidth
	maxX := nextX + world.BulletHalfWidth
	if b.VelocityX < 0 {
		minX = nextX - world.BulletHalfWidth
		maxX = b.X + world.BulletHalfWidth
	}
	return world.AABB{
		CX: (minX + maxX) / 2,
		CY: b.Y,
		HW: (maxX - minX) / 2,
		HH: world.BulletHalfHeight,
	}
}

// CanHit reports whether the bullet may damage the target. Same-team
// players, the owner, and the dead are immune.
func (b *Bullet) CanHit(p *Player) bool {
	return p.Team != b.OwnerTeam && p.ID != b.OwnerID && !p.IsDead
}

// OffWorld reports whether the bullet left the horizontal play bounds.
func (b *Bullet) OffWorld() bool {
	return b.X < world.WorldMinX || b.X > world.WorldMaxX
}

// HitsPlatform tests the bullet box against the static level geometry.
func (b *Bullet) HitsPlatform() bool {
	box := b.AABB()
	for _, plat := range world.Platforms {
		if box.Overlaps(plat.AABB()) {
			return true
		}
	}
	return false
}

// State returns the replicated view of the bullet.
func (b *Bullet) State() protocol.BulletState {
	return protocol.BulletState{
		ID:        b.ID,
		X:         b.X,
		Y:         b.Y,
		VelocityX: b.VelocityX,
		OwnerID:   b.OwnerID,
		OwnerTeam: b.OwnerTeam,
	}
}
