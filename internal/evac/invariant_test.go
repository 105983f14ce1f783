package evac

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Garsondee/Evac-Sense/internal/floorplan"
)

// office is a two-room floor with a corridor, both stair clusters and a
// restricted store room.
const office = `
##############################
#............#...............#
#............#...............#
#F...........................E
#............#...............#
#######.##########.###########
#............#...............#
#............#...............#
E............................#
#B...........#..........xx...#
##############################
`

// --- Invariant helpers ---

// checkGroupSymmetry verifies the two-sided group and rescue links.
func checkGroupSymmetry(t *testing.T, w *World) {
	t.Helper()
	if err := w.CheckInvariants(); err != nil {
		t.Fatalf("T=%d: %v", w.Tick(), err)
	}
}

// checkNoSharedCells verifies that no two conscious agents stand on the same
// cell. Carried and collapsed agents may share.
func checkNoSharedCells(t *testing.T, w *World) {
	t.Helper()
	seen := make(map[Pos]string)
	for _, a := range w.Agents() {
		if a.State.Gone() || !a.Conscious {
			continue
		}
		if other, dup := seen[a.Pos]; dup {
			t.Fatalf("T=%d: %s and %s share %s", w.Tick(), other, a.Label, a.Pos)
		}
		seen[a.Pos] = a.Label
	}
}

// checkWalkable verifies every present agent stands on a walkable cell.
func checkWalkable(t *testing.T, w *World) {
	t.Helper()
	for _, a := range w.Agents() {
		if a.State.Gone() {
			continue
		}
		if !w.IsWalkable(a.Pos) {
			t.Fatalf("T=%d: %s on non-walkable %s", w.Tick(), a.Label, a.Pos)
		}
	}
}

// checkHeadcount verifies that every spawned agent is accounted for.
func checkHeadcount(t *testing.T, w *World, spawned int) {
	t.Helper()
	m := w.Metrics()
	if m.AgentsRemaining != w.Present() {
		t.Fatalf("T=%d: remaining=%d but %d present", w.Tick(), m.AgentsRemaining, w.Present())
	}
	if m.ReachedExit+m.Deaths+m.AgentsRemaining != spawned {
		t.Fatalf("T=%d: exited=%d deaths=%d remaining=%d do not add up to %d",
			w.Tick(), m.ReachedExit, m.Deaths, m.AgentsRemaining, spawned)
	}
}

// checkHazardGrowth verifies prev is still entirely hazardous and returns
// the current cells.
func checkHazardGrowth(t *testing.T, w *World, prev []Pos) []Pos {
	t.Helper()
	for _, p := range prev {
		if !w.Hazards().IsHazard(p) {
			t.Fatalf("T=%d: hazard at %s retreated", w.Tick(), p)
		}
	}
	return w.Hazards().Cells()
}

func runOffice(t *testing.T, seed int64, cfg Config, ticks int) *World {
	t.Helper()
	const population = 40
	w := mustWorld(t,
		WithPlan(floorplan.MustParse(office)),
		WithConfig(cfg),
		WithSeed(seed),
		WithPopulation(population, ArchetypeNames(), 0.1),
	)

	var hazards []Pos
	for i := 0; i < ticks && !w.Done(); i++ {
		w.Step()
		checkGroupSymmetry(t, w)
		checkNoSharedCells(t, w)
		checkWalkable(t, w)
		checkHeadcount(t, w, population)
		hazards = checkHazardGrowth(t, w, hazards)
	}
	return w
}

func officeConfig() Config {
	cfg := DefaultConfig()
	cfg.Hazard.IgniteTick = 5
	cfg.AlarmTick = 10
	return cfg
}

func TestInvariants_OfficeGridFollow(t *testing.T) {
	for _, seed := range []int64{1, 7, 42} {
		w := runOffice(t, seed, officeConfig(), 300)
		t.Logf("seed %d: %s", seed, w.Metrics())
		if w.Metrics().ReachedExit == 0 {
			dumpLog(t, w)
			t.Fatalf("seed %d: expected somebody to get out", seed)
		}
	}
}

func TestInvariants_OfficeSocialForce(t *testing.T) {
	cfg := officeConfig()
	cfg.FollowMode = FollowSocialForce
	for _, seed := range []int64{3, 11} {
		w := runOffice(t, seed, cfg, 300)
		t.Logf("seed %d: %s", seed, w.Metrics())
	}
}

func TestInvariants_OfficeRestless(t *testing.T) {
	cfg := officeConfig()
	cfg.GroupLeaveChance = 0.9
	cfg.EmpathyThreshold = 0.7
	w := runOffice(t, 5, cfg, 300)
	t.Logf("%s", w.Metrics())
}

// TestInvariants_Deterministic replays the same seed twice.
func TestInvariants_Deterministic(t *testing.T) {
	a := runOffice(t, 99, officeConfig(), 150)
	b := runOffice(t, 99, officeConfig(), 150)
	if a.Metrics() != b.Metrics() {
		t.Fatalf("same seed diverged:\n%s\n%s", a.Metrics(), b.Metrics())
	}
	sa, sb := a.Snapshot(), b.Snapshot()
	if len(sa.Agents) != len(sb.Agents) {
		t.Fatalf("snapshot sizes differ: %d vs %d", len(sa.Agents), len(sb.Agents))
	}
	for i := range sa.Agents {
		if sa.Agents[i] != sb.Agents[i] {
			t.Fatalf("agent %d differs: %+v vs %+v", i, sa.Agents[i], sb.Agents[i])
		}
	}
}

func TestCheckGroupInvariants_DetectsBrokenLinks(t *testing.T) {
	mk := func(id AgentID) *Agent { return NewAgent(id, fmt.Sprintf("A%d", id), P(int(id), 0), plainTraits()) }

	t.Run("unlisted follower", func(t *testing.T) {
		l, f := mk(0), mk(1)
		f.leader = l.ID
		err := CheckGroupInvariants([]*Agent{l, f})
		if !errors.Is(err, ErrGroupInvariant) {
			t.Fatalf("expected ErrGroupInvariant, got %v", err)
		}
	})
	t.Run("listed by two leaders", func(t *testing.T) {
		l1, l2, f := mk(0), mk(1), mk(2)
		f.leader = l1.ID
		l1.members, l1.isLeader = []AgentID{f.ID}, true
		l2.members, l2.isLeader = []AgentID{f.ID}, true
		if err := CheckGroupInvariants([]*Agent{l1, l2, f}); err == nil {
			t.Fatal("expected an error")
		}
	})
	t.Run("one-sided rescue", func(t *testing.T) {
		h, v := mk(0), mk(1)
		h.helped = v.ID
		if err := CheckGroupInvariants([]*Agent{h, v}); err == nil {
			t.Fatal("expected an error")
		}
	})
	t.Run("gone but grouped", func(t *testing.T) {
		l, f := mk(0), mk(1)
		f.leader = l.ID
		l.members, l.isLeader = []AgentID{f.ID}, true
		l.State = StateAtExit
		if err := CheckGroupInvariants([]*Agent{l, f}); err == nil {
			t.Fatal("expected an error")
		}
	})
	t.Run("consistent", func(t *testing.T) {
		l, f, h, v := mk(0), mk(1), mk(2), mk(3)
		f.leader = l.ID
		l.members, l.isLeader = []AgentID{f.ID}, true
		h.helped, v.helper = v.ID, h.ID
		if err := CheckGroupInvariants([]*Agent{l, f, h, v}); err != nil {
			t.Fatal(err)
		}
	})
}
