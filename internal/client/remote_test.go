package client

import (
	"math"
	"testing"

	"blastline/internal/protocol"
	"blastline/internal/world"
)

func remoteState(id string, x, y float64) protocol.PlayerState {
	return protocol.PlayerState{ID: id, Name: id, Team: world.TeamBlue, X: x, Y: y, Health: 100}
}

func TestAddCreatesAtServerPosition(t *testing.T) {
	rs := NewRemoteSet()
	rp := rs.Add(remoteState("r1", 2800, 500))

	if rp.X != 2800 || rp.TargetX != 2800 {
		t.Errorf("pos = (%v, target %v), want both 2800", rp.X, rp.TargetX)
	}
	if rs.Count() != 1 {
		t.Errorf("count = %d, want 1", rs.Count())
	}
}

func TestDuplicateAddRefreshesInPlace(t *testing.T) {
	rs := NewRemoteSet()
	first := rs.Add(remoteState("r1", 2800, 500))
	second := rs.Add(remoteState("r1", 2700, 500))

	if first != second {
		t.Error("duplicate add created a second entity")
	}
	if rs.Count() != 1 {
		t.Errorf("count = %d, want 1", rs.Count())
	}
	if first.TargetX != 2700 {
		t.Errorf("targetX = %v, want refreshed to 2700", first.TargetX)
	}
}

func TestUpdateUnknownIsDropped(t *testing.T) {
	rs := NewRemoteSet()
	rs.Update(remoteState("ghost", 100, 500))
	if rs.Count() != 0 {
		t.Error("update must not create players")
	}
}

func TestInterpolationConverges(t *testing.T) {
	rs := NewRemoteSet()
	rp := rs.Add(remoteState("r1", 100, 500))
	rs.Update(remoteState("r1", 300, 500))

	if rp.X != 100 {
		t.Fatal("visual position should not jump on update")
	}

	for i := 0; i < 240; i++ {
		rs.Step(1.0 / 60)
	}
	if math.Abs(rp.X-300) > 0.5 {
		t.Errorf("x = %v after 4s, want ~300", rp.X)
	}
}

func TestInterpolationFrameRateIndependent(t *testing.T) {
	a := NewRemoteSet()
	b := NewRemoteSet()
	pa := a.Add(remoteState("r", 0, 0))
	pb := b.Add(remoteState("r", 0, 0))
	a.Update(remoteState("r", 100, 0))
	b.Update(remoteState("r", 100, 0))

	// One second at 60 Hz vs one second at 30 Hz.
	for i := 0; i < 60; i++ {
		a.Step(1.0 / 60)
	}
	for i := 0; i < 30; i++ {
		b.Step(1.0 / 30)
	}

	if math.Abs(pa.X-pb.X) > 1 {
		t.Errorf("divergent glide: %v vs %v", pa.X, pb.X)
	}
}

func TestIndicatorBands(t *testing.T) {
	rp := &RemotePlayer{X: 0, Y: 0}

	rp.TargetX = 10
	if got := rp.IndicatorColor(); got != IndicatorGreen {
		t.Errorf("10px = %s, want green", got)
	}
	rp.TargetX = 80
	if got := rp.IndicatorColor(); got != IndicatorYellow {
		t.Errorf("80px = %s, want yellow", got)
	}
	rp.TargetX = 200
	if got := rp.IndicatorColor(); got != IndicatorRed {
		t.Errorf("200px = %s, want red", got)
	}
}

func TestPredictionDistanceUsesRealTarget(t *testing.T) {
	rp := &RemotePlayer{X: 100, Y: 100, TargetX: 130, TargetY: 140}
	if got := rp.PredictionDistance(); got != 50 {
		t.Errorf("distance = %v, want 50", got)
	}
}

func TestDeathEdges(t *testing.T) {
	rs := NewRemoteSet()
	var edges []bool
	rs.DeathEdge = func(_ *RemotePlayer, died bool) { edges = append(edges, died) }

	rp := rs.Add(remoteState("r1", 1000, 500))
	rp.VelocityX = 300

	dead := remoteState("r1", 1000, 500)
	dead.Health = 0
	dead.IsDead = true
	rs.Update(dead)

	if rp.VelocityX != 0 {
		t.Error("death should zero velocity")
	}

	// Repeated dead samples are not new edges.
	rs.Update(dead)

	respawn := remoteState("r1", 2800, 500)
	rs.Update(respawn)
	if rp.X != 2800 {
		t.Errorf("x = %v, want respawn teleport to 2800", rp.X)
	}

	want := []bool{true, false}
	if len(edges) != len(want) {
		t.Fatalf("edges = %v, want %v", edges, want)
	}
	for i := range want {
		if edges[i] != want[i] {
			t.Fatalf("edges = %v, want %v", edges, want)
		}
	}
}

func TestRemoveAndClear(t *testing.T) {
	rs := NewRemoteSet()
	rs.Add(remoteState("r1", 100, 500))
	rs.Add(remoteState("r2", 200, 500))

	rs.Remove("r1")
	if _, ok := rs.Get("r1"); ok {
		t.Error("r1 should be gone")
	}

	rs.SetShowIndicators(true)
	rs.Clear()
	if rs.Count() != 0 {
		t.Errorf("count = %d after clear, want 0", rs.Count())
	}
}

func TestTeamOf(t *testing.T) {
	rs := NewRemoteSet()
	rs.Add(remoteState("r1", 100, 500))

	if team, ok := rs.TeamOf("r1"); !ok || team != world.TeamBlue {
		t.Errorf("TeamOf = %s/%v, want blue/true", team, ok)
	}
	if _, ok := rs.TeamOf("ghost"); ok {
		t.Error("unknown id should not resolve")
	}
}
