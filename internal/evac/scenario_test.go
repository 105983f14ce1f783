package evac

import (
	"testing"

	"github.com/Garsondee/Evac-Sense/internal/floorplan"
)

// TestScenario_StraightLineExit walks one agent down a precomputed path and
// out through the exit at the fifth tick.
func TestScenario_StraightLineExit(t *testing.T) {
	w := mustWorld(t,
		WithPlan(openRoom(15, 11, P(10, 5))),
		WithConfig(quietConfig()),
		WithTraitsAgent("adult", plainTraits(), 5, 5),
	)
	defer dumpLog(t, w)

	a := w.Agents()[0]
	evacuate(a, P(10, 5))
	a.SetPath([]Pos{P(6, 5), P(7, 5), P(8, 5), P(9, 5), P(10, 5)})
	t.Log("=== A0 at (5,5), exit at (10,5), path preset ===")

	for i := 1; i <= 4; i++ {
		w.Step()
		if a.State.Gone() {
			t.Fatalf("agent left early at T=%d", w.Tick())
		}
		if want := P(5+i, 5); a.Pos != want {
			t.Fatalf("T=%d: expected agent at %s, got %s", w.Tick(), want, a.Pos)
		}
	}
	w.Step()

	if a.State != StateAtExit {
		t.Fatalf("expected at_exit after 5 ticks, got %s", a.State)
	}
	m := w.Metrics()
	if m.ReachedExit != 1 || m.AgentsRemaining != 0 {
		t.Fatalf("expected 1 exited and 0 remaining, got %s", m)
	}
	if !w.Done() {
		t.Fatal("expected the building to be empty")
	}

	// A second exit for the same agent is a no-op.
	w.Engine().HandleExit(a)
	w.Engine().reachGoal(a)
	if m := w.Metrics(); m.ReachedExit != 1 || m.AgentsRemaining != 0 {
		t.Fatalf("repeated exit changed counters: %s", m)
	}
	if got := w.Log().CountCategory("state", "exit"); got != 1 {
		t.Fatalf("expected one exit event, got %d", got)
	}
}

// TestScenario_ForgotItemGroupReturns sends a leader back for an item. Both
// empathetic followers turn round with it, track its goal the whole way and
// head out again once the leader is back at its origin.
func TestScenario_ForgotItemGroupReturns(t *testing.T) {
	cfg := quietConfig()
	cfg.MergeGroups = false

	lt := plainTraits()
	lt.Leadership = 0.9
	lt.ForgetDelay = 3
	lt.ForgetChance = 1

	ft := plainTraits()
	ft.Empathy = 0.9

	w := mustWorld(t,
		WithPlan(openRoom(20, 11, P(19, 5))),
		WithConfig(cfg),
		WithTraitsAgent("leader", lt, 5, 5),
		WithTraitsAgent("follower", ft, 4, 5),
		WithTraitsAgent("follower", ft, 3, 5),
		WithGroup(0, 1, 2),
	)
	defer dumpLog(t, w)

	leader := w.Agents()[0]
	followers := []*Agent{w.Agents()[1], w.Agents()[2]}
	t.Log("=== A0 leads A1,A2 east; A0 forgets an item at T=3 ===")

	if g, _ := leader.Goal(); g != P(19, 5) {
		t.Fatalf("expected leader goal (19,5), got %s", g)
	}

	w.RunTicks(3)

	if leader.State != StateReturningForItem {
		t.Fatalf("expected leader returning for item, got %s", leader.State)
	}
	lg, _ := leader.Goal()
	if lg != leader.Origin {
		t.Fatalf("expected leader goal to be its origin %s, got %s", leader.Origin, lg)
	}
	for _, f := range followers {
		if !f.ReturningWithGroup() {
			t.Errorf("%s: expected returning-with-group after T=3", f.Label)
		}
		if f.Leader() != leader.ID {
			t.Errorf("%s: expected to still follow A0, got A%d", f.Label, f.Leader())
		}
		if fg, _ := f.Goal(); fg != lg {
			t.Errorf("%s: expected goal %s, got %s", f.Label, lg, fg)
		}
	}

	for i := 0; i < 20 && leader.State == StateReturningForItem; i++ {
		w.Step()
		lg, _ := leader.Goal()
		for _, f := range followers {
			if fg, _ := f.Goal(); fg != lg {
				t.Fatalf("T=%d %s: goal %s diverged from leader goal %s", w.Tick(), f.Label, fg, lg)
			}
		}
	}

	if leader.State != StateSeekingExit {
		t.Fatalf("expected leader back to seeking_exit, got %s", leader.State)
	}
	if leader.Pos != leader.Origin {
		t.Fatalf("expected leader to have reached its origin, at %s", leader.Pos)
	}
	for _, f := range followers {
		if f.ReturningWithGroup() {
			t.Errorf("%s: returning flag not cleared", f.Label)
		}
		if fg, _ := f.Goal(); fg != P(19, 5) {
			t.Errorf("%s: expected exit goal after the errand, got %s", f.Label, fg)
		}
	}
	m := w.Metrics()
	if m.ItemReturns != 1 || m.GroupSplits != 0 || m.GroupLeaves != 0 {
		t.Fatalf("unexpected counters: %s", m)
	}
	if err := w.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
}

// TestScenario_HazardReversalSwapsExit blocks a corridor with fire directly
// ahead. The only safe neighbour is behind, so the agent turns round and
// cycles to the other exit.
func TestScenario_HazardReversalSwapsExit(t *testing.T) {
	cfg := quietConfig()
	cfg.Hazard.FireSpreadChance = 0
	cfg.Hazard.SmokeDelay = 100

	w := mustWorld(t,
		WithPlan(floorplan.MustParse(`
#########
E.......E
#########
`)),
		WithConfig(cfg),
		WithTraitsAgent("adult", plainTraits(), 4, 1),
		WithFire(5, 1),
	)
	defer dumpLog(t, w)

	a := w.Agents()[0]
	evacuate(a, P(8, 1))
	a.lastDir = DirE
	t.Log("=== A0 at (4,1) heading east to (8,1), fire at (5,1) ===")

	w.Step()

	if g, _ := a.Goal(); g != P(0, 1) {
		t.Fatalf("expected goal swapped to (0,1), got %s", g)
	}
	if got := w.Metrics().GoalReassignments; got != 1 {
		t.Fatalf("expected 1 goal reassignment, got %d", got)
	}
	if a.Pos != P(3, 1) {
		t.Fatalf("expected agent to step back to (3,1), got %s", a.Pos)
	}
	if a.LastDir() != DirW {
		t.Fatalf("expected heading W, got %s", a.LastDir())
	}
	if !w.Log().HasEntry("goal", "reversal", "(0,1)") {
		t.Fatal("expected a reversal event")
	}

	if w.RunUntil(func(*World) bool { return a.State.Gone() }, 20) < 0 {
		t.Fatalf("agent never left, at %s", a.Pos)
	}
	if a.State != StateAtExit {
		t.Fatalf("expected at_exit, got %s", a.State)
	}
}

// TestScenario_HazardReversalSwitchesStairCluster turns an agent away from
// a burning front stair toward the back cluster, which then hands it on to
// the exit.
func TestScenario_HazardReversalSwitchesStairCluster(t *testing.T) {
	cfg := quietConfig()
	cfg.Hazard.FireSpreadChance = 0
	cfg.Hazard.SmokeDelay = 100

	w := mustWorld(t,
		WithPlan(floorplan.MustParse(`
###########
EB.......F#
###########
`)),
		WithConfig(cfg),
		WithTraitsAgent("adult", plainTraits(), 5, 1),
		WithFire(6, 1),
	)
	defer dumpLog(t, w)

	a := w.Agents()[0]
	evacuate(a, P(9, 1))
	a.lastDir = DirE

	w.Step()
	if g, _ := a.Goal(); g != P(1, 1) {
		t.Fatalf("expected goal on the back stair (1,1), got %s", g)
	}

	if w.RunUntil(func(*World) bool { return a.State.Gone() }, 20) < 0 {
		t.Fatalf("agent never left, at %s", a.Pos)
	}
	if !w.Log().HasEntry("goal", "waypoint", "(0,1)") {
		t.Fatal("expected the back stair to hand the agent on to the exit")
	}
	if a.State != StateAtExit || a.Pos != P(0, 1) {
		t.Fatalf("expected exit at (0,1), got %s at %s", a.State, a.Pos)
	}
}

// TestScenario_TrappedWalksIntoHazard surrounds an agent with fire. With no
// safe neighbour the planned cell is kept and the event is logged.
func TestScenario_TrappedWalksIntoHazard(t *testing.T) {
	opts := []WorldOption{
		WithPlan(openRoom(5, 5, P(4, 2))),
		WithConfig(quietConfig()),
		WithTraitsAgent("adult", plainTraits(), 2, 2),
	}
	for _, d := range scanOrder {
		c := P(2, 2).Add(d.Delta())
		opts = append(opts, WithFire(c.X, c.Y))
	}
	w := mustWorld(t, opts...)
	defer dumpLog(t, w)

	a := w.Agents()[0]
	res := w.Engine().AvoidHazard(a, P(3, 2))
	if res.Redirected || res.Cell != P(3, 2) {
		t.Fatalf("expected the candidate back unchanged, got %+v", res)
	}
	e, ok := w.Log().LastOf("hazard", "trapped")
	if !ok {
		t.Fatal("expected a trapped event")
	}
	if e.NumVal != 1 {
		t.Fatalf("expected nearest hazard at distance 1, got %.0f", e.NumVal)
	}
}

// TestScenario_RescueCarriesVictimOut has a strong, empathetic agent find
// an unconscious one, pick it up and carry it out at half speed.
func TestScenario_RescueCarriesVictimOut(t *testing.T) {
	ht := plainTraits()
	ht.Strength = 0.9
	ht.Empathy = 0.9

	w := mustWorld(t,
		WithPlan(openRoom(20, 11, P(19, 5))),
		WithConfig(quietConfig()),
		WithTraitsAgent("helper", ht, 5, 5),
		WithTraitsAgent("victim", plainTraits(), 8, 5),
	)
	defer dumpLog(t, w)

	h, v := w.Agents()[0], w.Agents()[1]
	evacuate(h, P(19, 5))
	v.State = StateIncapacitated
	v.Conscious = false
	v.Health = 20

	w.Step()
	if h.State != StateHelpingDistressed || h.Helped() != v.ID || v.Helper() != h.ID {
		t.Fatalf("expected a two-sided rescue commitment, got %s helped=%d helper=%d",
			h.State, h.Helped(), v.Helper())
	}

	w.RunTicks(2)
	if v.State != StateBeingCarried {
		t.Fatalf("expected victim carried at T=3, got %s", v.State)
	}
	if h.State != StateSeekingExit {
		t.Fatalf("expected helper heading out, got %s", h.State)
	}

	// Carrying halves the helper's pace.
	start := h.Pos
	w.Step()
	if h.Pos == start {
		t.Fatalf("expected a step on even tick T=%d", w.Tick())
	}
	moved := h.Pos
	w.Step()
	if h.Pos != moved {
		t.Fatalf("expected no step on odd tick T=%d", w.Tick())
	}
	if v.Pos != h.Pos {
		t.Fatalf("carried agent at %s, helper at %s", v.Pos, h.Pos)
	}

	if w.RunUntil(func(*World) bool { return h.State.Gone() }, 60) < 0 {
		t.Fatalf("helper never left, at %s", h.Pos)
	}
	if v.State != StateAtExit {
		t.Fatalf("expected victim delivered, got %s", v.State)
	}
	m := w.Metrics()
	if m.Rescues != 1 || m.ReachedExit != 2 || m.AgentsRemaining != 0 {
		t.Fatalf("unexpected counters: %s", m)
	}
	if err := w.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
}

// TestScenario_LeaderExitReleasesFollowers lets a leader leave first. Its
// follower is released toward the nearest exit and follows it out a tick
// later.
func TestScenario_LeaderExitReleasesFollowers(t *testing.T) {
	lt := plainTraits()
	lt.Leadership = 0.9

	w := mustWorld(t,
		WithPlan(openRoom(12, 3, P(11, 1))),
		WithConfig(quietConfig()),
		WithTraitsAgent("leader", lt, 8, 1),
		WithTraitsAgent("follower", plainTraits(), 7, 1),
		WithGroup(0, 1),
	)
	defer dumpLog(t, w)

	leader, f := w.Agents()[0], w.Agents()[1]
	w.RunTicks(3)

	if leader.State != StateAtExit {
		t.Fatalf("expected leader out at T=3, got %s at %s", leader.State, leader.Pos)
	}
	if !f.LeaderAtExit() || f.Leader() != NoAgent {
		t.Fatalf("expected follower released with leader-at-exit, leader=A%d flag=%v", f.Leader(), f.LeaderAtExit())
	}
	if g, _ := f.Goal(); g != P(11, 1) {
		t.Fatalf("expected follower goal (11,1), got %s", g)
	}
	if got := w.Metrics().GroupsDisbanded; got != 1 {
		t.Fatalf("expected 1 disbanded group, got %d", got)
	}

	w.Step()
	if f.State != StateAtExit {
		t.Fatalf("expected follower out at T=4, got %s at %s", f.State, f.Pos)
	}
}

// TestScenario_DormantActivatesOnNearbyFire checks the proximity term: an
// agent two cells from a fire starts evacuating at once while a calm agent
// far away stays put.
func TestScenario_DormantActivatesOnNearbyFire(t *testing.T) {
	cfg := quietConfig()
	cfg.Hazard.FireSpreadChance = 0
	cfg.Hazard.SmokeDelay = 100

	calm := plainTraits()
	calm.RiskThreshold = 0.9

	w := mustWorld(t,
		WithPlan(openRoom(20, 11, P(19, 5))),
		WithConfig(cfg),
		WithTraitsAgent("adult", plainTraits(), 5, 5),
		WithTraitsAgent("calm", calm, 15, 2),
		WithFire(7, 5),
	)
	defer dumpLog(t, w)

	near, far := w.Agents()[0], w.Agents()[1]
	w.Step()

	if near.State != StateSeekingExit {
		t.Fatalf("expected near agent evacuating, got %s", near.State)
	}
	if g, _ := near.Goal(); g != P(19, 5) {
		t.Fatalf("expected goal (19,5), got %s", g)
	}
	if !w.Log().HasEntry("state", "activate", "risk 0.85") {
		t.Fatal("expected activation with risk 0.85")
	}
	if far.State != StateDormant {
		t.Fatalf("expected far calm agent still dormant, got %s", far.State)
	}
}

func TestScenario_AlarmActivatesAtAlarmTick(t *testing.T) {
	cfg := quietConfig()
	cfg.AlarmTick = 3

	w := mustWorld(t,
		WithPlan(openRoom(10, 5, P(9, 2))),
		WithConfig(cfg),
		WithTraitsAgent("adult", plainTraits(), 2, 2),
	)
	defer dumpLog(t, w)

	a := w.Agents()[0]
	w.RunTicks(2)
	if a.State != StateDormant {
		t.Fatalf("expected dormant before the alarm, got %s", a.State)
	}
	w.Step()
	if a.State != StateSeekingExit {
		t.Fatalf("expected evacuation at the alarm tick, got %s", a.State)
	}
}

// TestScenario_BurnsUnconsciousThenDies walls an agent in on a burning cell.
func TestScenario_BurnsUnconsciousThenDies(t *testing.T) {
	plan := floorplan.New(3, 3)
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			if x != 1 || y != 1 {
				plan.Set(x, y, floorplan.CellWall)
			}
		}
	}
	w := mustWorld(t,
		WithPlan(plan),
		WithConfig(quietConfig()),
		WithTraitsAgent("adult", plainTraits(), 1, 1),
		WithFire(1, 1),
	)
	defer dumpLog(t, w)

	a := w.Agents()[0]
	sawUnconscious := false
	got := w.RunUntil(func(*World) bool {
		if a.State == StateIncapacitated {
			sawUnconscious = true
		}
		return a.State == StateRemoved
	}, 100)
	if got < 0 {
		t.Fatalf("expected death within 100 ticks, health %d", a.Health)
	}
	if !sawUnconscious {
		t.Fatal("expected the agent to pass through incapacitated")
	}
	m := w.Metrics()
	if m.Unconscious != 1 || m.Deaths != 1 || m.AgentsRemaining != 0 {
		t.Fatalf("unexpected counters: %s", m)
	}
	if w.Present() != 0 {
		t.Fatalf("expected an empty index, got %d", w.Present())
	}
}

// TestScenario_MobilityGate moves a slow agent only on multiples of its
// mobility.
func TestScenario_MobilityGate(t *testing.T) {
	slow := plainTraits()
	slow.Mobility = 3

	w := mustWorld(t,
		WithPlan(openRoom(20, 3, P(19, 1))),
		WithConfig(quietConfig()),
		WithTraitsAgent("elderly", slow, 2, 1),
	)
	a := w.Agents()[0]
	evacuate(a, P(19, 1))

	want := []int{2, 2, 3, 3, 3, 4}
	for i, x := range want {
		w.Step()
		if a.Pos.X != x {
			t.Fatalf("T=%d: expected x=%d, got %s", i+1, x, a.Pos)
		}
	}
}

// TestScenario_UnreachableGoalIsNoOp leaves an agent with a goal behind a
// wall. Movement does nothing and no trip is active.
func TestScenario_UnreachableGoalIsNoOp(t *testing.T) {
	w := mustWorld(t,
		WithPlan(floorplan.MustParse(`
#######
#..#E.#
#######
`)),
		WithConfig(quietConfig()),
		WithTraitsAgent("adult", plainTraits(), 1, 1),
	)
	a := w.Agents()[0]
	evacuate(a, P(4, 1))

	w.RunTicks(5)
	if a.Pos != P(1, 1) {
		t.Fatalf("expected agent to stay at (1,1), got %s", a.Pos)
	}
	if a.tripActive {
		t.Fatal("expected no active trip")
	}
	if w.Metrics().ReachedExit != 0 {
		t.Fatal("expected nobody to exit")
	}
}

// TestAvoidHazard_ReversalSwapsGoalForLeadersOnly puts a leader and its
// follower on either side of a fire in a corridor. Both turn back; only the
// leader picks a new exit, the follower keeps tracking the leader.
func TestAvoidHazard_ReversalSwapsGoalForLeadersOnly(t *testing.T) {
	cfg := quietConfig()
	cfg.MergeGroups = false
	w := mustWorld(t,
		WithPlan(floorplan.MustParse(`
#########
E.......E
#########
`)),
		WithConfig(cfg),
		WithTraitsAgent("leader", leaderTraits(0.9), 4, 1),
		WithTraitsAgent("follower", plainTraits(), 6, 1),
		WithGroup(0, 1),
		WithFire(5, 1),
	)
	defer dumpLog(t, w)
	leader, f := w.Agents()[0], w.Agents()[1]
	leader.setGoal(P(8, 1))
	leader.lastDir = DirE
	f.lastDir = DirW
	before, _ := f.Goal()

	res := w.Engine().AvoidHazard(f, P(5, 1))
	if !res.Redirected || res.Cell != P(7, 1) {
		t.Fatalf("expected the follower redirected to (7,1), got %+v", res)
	}
	if res.GoalChanged {
		t.Fatal("expected the follower's goal left to its leader")
	}
	if g, _ := f.Goal(); g != before {
		t.Fatalf("follower goal changed from %s to %s", before, g)
	}
	if got := w.Metrics().GoalReassignments; got != 0 {
		t.Fatalf("expected no reassignment yet, got %d", got)
	}

	res = w.Engine().AvoidHazard(leader, P(5, 1))
	if !res.GoalChanged || res.NewGoal != P(0, 1) || res.Cell != P(3, 1) {
		t.Fatalf("expected the leader to turn back toward (0,1), got %+v", res)
	}
	if got := w.Metrics().GoalReassignments; got != 1 {
		t.Fatalf("expected 1 goal reassignment, got %d", got)
	}
}

func TestScenario_OneHelperPerVictim(t *testing.T) {
	ht := plainTraits()
	ht.Strength = 0.9
	ht.Empathy = 0.9

	w := mustWorld(t,
		WithPlan(openRoom(20, 11, P(19, 5))),
		WithConfig(quietConfig()),
		WithTraitsAgent("helper", ht, 5, 5),
		WithTraitsAgent("helper", ht, 5, 7),
		WithTraitsAgent("victim", plainTraits(), 8, 5),
	)
	defer dumpLog(t, w)

	h1, h2, v := w.Agents()[0], w.Agents()[1], w.Agents()[2]
	evacuate(h1, P(19, 5))
	evacuate(h2, P(19, 5))
	v.State = StateIncapacitated
	v.Conscious = false
	v.Health = 20

	w.Step()
	if v.Helper() != h1.ID || h1.Helped() != v.ID {
		t.Fatalf("expected A0 committed to the victim, helper=%d helped=%d", v.Helper(), h1.Helped())
	}
	if h2.State == StateHelpingDistressed || h2.Helped() != NoAgent {
		t.Fatalf("expected A1 to leave the victim to A0, got %s helped=%d", h2.State, h2.Helped())
	}
	if got := w.Log().CountCategory("rescue", "commit"); got != 1 {
		t.Fatalf("expected one rescue commitment, got %d", got)
	}
}
