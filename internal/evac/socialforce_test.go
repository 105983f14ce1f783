package evac

import "testing"

func forceConfig() Config {
	cfg := quietConfig()
	cfg.FollowMode = FollowSocialForce
	cfg.MergeGroups = false
	return cfg
}

func TestSocialForce_AttractionAndObstacle(t *testing.T) {
	w := mustWorld(t,
		WithPlan(openRoom(20, 20, P(19, 10))),
		WithConfig(forceConfig()),
		WithTraitsAgent("leader", leaderTraits(0.9), 10, 10),
		WithTraitsAgent("follower", plainTraits(), 5, 10),
		WithGroup(0, 1),
	)
	f := w.Agents()[1]

	// Pull of 0.6 toward the leader, minus the leader itself as the
	// nearest obstacle: 0.2 / 5.
	got := w.Engine().SocialForce(f)
	if !approx(got.X, 0.56) || !approx(got.Y, 0) {
		t.Fatalf("expected (0.56,0), got %s", got)
	}
}

func TestSocialForce_MemberRepulsion(t *testing.T) {
	w := mustWorld(t,
		WithPlan(openRoom(20, 20, P(19, 10))),
		WithConfig(forceConfig()),
		WithTraitsAgent("leader", leaderTraits(0.9), 10, 10),
		WithTraitsAgent("follower", plainTraits(), 5, 10),
		WithTraitsAgent("follower", plainTraits(), 5, 12),
		WithGroup(0, 1, 2),
	)
	f := w.Agents()[1]

	// The other member two cells south pushes north twice: 0.3/2 as a
	// group-mate and 0.2/2 as the nearest obstacle.
	got := w.Engine().SocialForce(f)
	if !approx(got.X, 0.6) || !approx(got.Y, -0.25) {
		t.Fatalf("expected (0.60,-0.25), got %s", got)
	}
}

func TestSocialForce_NoLeaderNoForce(t *testing.T) {
	w := mustWorld(t,
		WithPlan(openRoom(10, 10, P(9, 5))),
		WithConfig(forceConfig()),
		WithTraitsAgent("solo", plainTraits(), 5, 5),
	)
	if got := w.Engine().SocialForce(w.Agents()[0]); got != (Vec2{}) {
		t.Fatalf("expected zero force, got %s", got)
	}
}

func TestRepel_FloorsDistance(t *testing.T) {
	got := repel(Vec2{1, 1}, Vec2{1.1, 1}, 0.3)
	if !approx(got.X, -0.6) || !approx(got.Y, 0) {
		t.Fatalf("expected (-0.60,0) with the distance floored at 0.5, got %s", got)
	}
	if got := repel(Vec2{1, 1}, Vec2{1, 1}, 0.3); got != (Vec2{}) {
		t.Fatalf("coincident agents have no direction, got %s", got)
	}
}

func TestMoveBySocialForce_StepsAndKeepsFraction(t *testing.T) {
	w := mustWorld(t,
		WithPlan(openRoom(20, 20, P(19, 10))),
		WithConfig(forceConfig()),
		WithTraitsAgent("leader", leaderTraits(0.9), 10, 10),
		WithTraitsAgent("follower", plainTraits(), 5, 10),
		WithGroup(0, 1),
	)
	f := w.Agents()[1]

	w.Engine().moveBySocialForce(f)
	if f.Pos != P(6, 10) {
		t.Fatalf("expected follower at (6,10), got %s", f.Pos)
	}
	if !approx(f.fpos.X, 5.56) || !approx(f.vel.X, 0.56) {
		t.Fatalf("expected fpos.x 5.56 and vel.x 0.56, got %s %s", f.fpos, f.vel)
	}
	if f.vel.Len() > w.Config().Force.MaxSpeed+1e-9 {
		t.Fatalf("velocity %s above max speed", f.vel)
	}
}

func TestMoveBySocialForce_StopsWithinFollowDistance(t *testing.T) {
	w := mustWorld(t,
		WithPlan(openRoom(20, 20, P(19, 10))),
		WithConfig(forceConfig()),
		WithTraitsAgent("leader", leaderTraits(0.9), 10, 10),
		WithTraitsAgent("follower", plainTraits(), 9, 10),
		WithGroup(0, 1),
	)
	f := w.Agents()[1]
	f.vel = Vec2{0.8, 0}

	w.Engine().moveBySocialForce(f)
	if f.Pos != P(9, 10) || f.vel != (Vec2{}) {
		t.Fatalf("expected follower to hold at (9,10) with zero velocity, got %s %s", f.Pos, f.vel)
	}
}

func TestMoveBySocialForce_BlockedByWallStops(t *testing.T) {
	w := mustWorld(t,
		WithPlan(openRoom(8, 3, P(7, 1))),
		WithConfig(forceConfig()),
		WithTraitsAgent("leader", leaderTraits(0.9), 5, 0),
		WithTraitsAgent("follower", plainTraits(), 1, 0),
		WithGroup(0, 1),
	)
	f := w.Agents()[1]
	// Velocity pointing off the north edge of the grid.
	f.vel = Vec2{0, -5}

	w.Engine().moveBySocialForce(f)
	if f.Pos != P(1, 0) {
		t.Fatalf("expected no move, got %s", f.Pos)
	}
	if f.vel != (Vec2{}) {
		t.Fatalf("expected velocity reset, got %s", f.vel)
	}
}

// TestSocialForce_GroupReachesExit walks a leader and three force-following
// members through an open room until everybody is out.
func TestSocialForce_GroupReachesExit(t *testing.T) {
	w := mustWorld(t,
		WithPlan(openRoom(20, 12, P(19, 6))),
		WithConfig(forceConfig()),
		WithTraitsAgent("leader", leaderTraits(0.9), 4, 6),
		WithTraitsAgent("follower", plainTraits(), 3, 5),
		WithTraitsAgent("follower", plainTraits(), 3, 6),
		WithTraitsAgent("follower", plainTraits(), 3, 7),
		WithGroup(0, 1, 2, 3),
	)
	defer dumpLog(t, w)

	for i := 0; i < 400 && !w.Done(); i++ {
		w.Step()
		checkGroupSymmetry(t, w)
		checkNoSharedCells(t, w)
	}
	if !w.Done() {
		t.Fatalf("expected everyone out, %d left", w.Present())
	}
	if w.Metrics().ReachedExit != 4 {
		t.Fatalf("expected 4 exits, got %d", w.Metrics().ReachedExit)
	}
}

func TestMoveBySocialForce_DetoursAroundHazard(t *testing.T) {
	w := mustWorld(t,
		WithPlan(openRoom(20, 20, P(19, 10))),
		WithConfig(forceConfig()),
		WithTraitsAgent("leader", leaderTraits(0.9), 10, 10),
		WithTraitsAgent("follower", plainTraits(), 5, 10),
		WithGroup(0, 1),
		WithFire(6, 10),
	)
	defer dumpLog(t, w)
	f := w.Agents()[1]

	// The force points east into the fire; the first safe neighbour in
	// scan order is north.
	w.Engine().moveBySocialForce(f)
	if f.Pos != P(5, 9) {
		t.Fatalf("expected detour to (5,9), got %s", f.Pos)
	}
	if w.Hazards().IsHazard(f.Pos) {
		t.Fatalf("follower walked into the fire at %s", f.Pos)
	}
	if f.vel != (Vec2{}) || f.fpos != P(5, 9).Vec() {
		t.Fatalf("expected velocity reset and position snapped to the cell, got %s %s", f.vel, f.fpos)
	}
	if !w.Log().HasEntry("hazard", "detour", "(5,9)") {
		t.Fatal("expected a detour event")
	}
}

func TestMoveBySocialForce_ReversalKeepsLeaderGoal(t *testing.T) {
	w := mustWorld(t,
		WithPlan(openRoom(20, 20, P(19, 10))),
		WithConfig(forceConfig()),
		WithTraitsAgent("leader", leaderTraits(0.9), 10, 10),
		WithTraitsAgent("follower", plainTraits(), 5, 10),
		WithGroup(0, 1),
		WithFire(5, 9), WithFire(6, 9), WithFire(6, 10),
		WithFire(6, 11), WithFire(5, 11), WithFire(4, 11),
	)
	defer dumpLog(t, w)
	f := w.Agents()[1]
	f.lastDir = DirE
	before, hadGoal := f.Goal()

	// Everything ahead and to the sides burns, so the only way out is
	// straight back west.
	w.Engine().moveBySocialForce(f)
	if f.Pos != P(4, 10) {
		t.Fatalf("expected a step back to (4,10), got %s", f.Pos)
	}
	if f.vel != (Vec2{}) {
		t.Fatalf("expected velocity reset after the detour, got %s", f.vel)
	}
	if after, ok := f.Goal(); ok != hadGoal || after != before {
		t.Fatalf("follower goal changed from %s to %s", before, after)
	}
	if got := w.Metrics().GoalReassignments; got != 0 {
		t.Fatalf("expected no goal reassignment for a follower, got %d", got)
	}
	if w.Log().CountCategory("goal", "reversal") != 0 {
		t.Fatal("expected no reversal event for a follower")
	}
}
