package game

import (
	"blastline/internal/protocol"
	"blastline/internal/world"
)

// Player is the authoritative server-side record of one connected
// client. All fields are guarded by the owning room's lock.
type Player struct {
	ID   string
	Name string
	Team world.Team

	// Pose. (X, Y) is the bottom-center of the sprite. The client
	// simulates its own movement and reports it; the server trusts
	// pose but never bullet velocity.
	X, Y                 float64
	VelocityX, VelocityY float64
	FlipX                bool

	Health       int
	IsDead       bool
	RespawnTimer float64 // ms remaining while dead
	IsDashing    bool

	Kills  int
	Deaths int

	// Monotonic per-owner shot counter. Part of the bullet id so two
	// shots in the same millisecond cannot collide.
	shotSeq uint64
}

// NewPlayer creates a player at its team spawn with full health.
func NewPlayer(id, name string, team world.Team) *Player {
	x, y := world.SpawnPoint(team)
	return &Player{
		ID:     id,
		Name:   name,
		Team:   team,
		X:      x,
		Y:      y,
		Health: world.PlayerMaxHealth,
	}
}

// AABB returns the player hitbox.
func (p *Player) AABB() world.AABB {
	return world.PlayerAABB(p.X, p.Y)
}

// TakeDamage applies bullet damage and reports whether this hit killed
// the player. Invariant: health == 0 exactly while dead.
func (p *Player) TakeDamage(amount int) bool {
	if p.IsDead {
		return false
	}
	p.Health -= amount
	if p.Health <= 0 {
		p.Health = 0
		p.IsDead = true
		p.RespawnTimer = world.RespawnMS
		p.Deaths++
		return true
	}
	return false
}

// Respawn restores the player at its team spawn.
func (p *Player) Respawn() {
	p.IsDead = false
	p.Health = world.PlayerMaxHealth
	p.RespawnTimer = 0
	p.X, p.Y = world.SpawnPoint(p.Team)
	p.VelocityX, p.VelocityY = 0, 0
	p.IsDashing = false
}

// NextShotSeq advances the per-owner bullet counter.
func (p *Player) NextShotSeq() uint64 {
	p.shotSeq++
	return p.shotSeq
}

// State returns the replicated view of the player.
func (p *Player) State() protocol.PlayerState {
	timer := p.RespawnTimer
	if timer < 0 {
		timer = 0
	}
	return protocol.PlayerState{
		ID:           p.ID,
		Name:         p.Name,
		Team:         p.Team,
		X:            p.X,
		Y:            p.Y,
		VelocityX:    p.VelocityX,
		VelocityY:    p.VelocityY,
		FlipX:        p.FlipX,
		Health:       p.Health,
		IsDead:       p.IsDead,
		RespawnTimer: timer,
		IsDashing:    p.IsDashing,
		Kills:        p.Kills,
		Deaths:       p.Deaths,
	}
}
