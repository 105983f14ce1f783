package evac

import (
	"math"
	"testing"

	"github.com/Garsondee/Evac-Sense/internal/floorplan"
)

// quietConfig is DefaultConfig without the random fire and with the group
// leave dice always falling on "stay".
func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.Hazard.IgniteTick = -1
	cfg.GroupLeaveChance = 0
	return cfg
}

// plainTraits never forgets anything, never helps, never pushes and never
// leads.
func plainTraits() Traits {
	return Traits{
		RiskThreshold: 0.5,
		Aggression:    Passive,
		Mobility:      1,
		Strength:      0.1,
		Empathy:       0.2,
		Collaboration: 0.1,
		Leadership:    0.1,
		ForgetDelay:   1000,
		ForgetChance:  0,
	}
}

// openRoom is a wall-less floor of the given size with exits at the listed
// cells.
func openRoom(cols, rows int, exits ...Pos) *floorplan.Plan {
	p := floorplan.New(cols, rows)
	for _, e := range exits {
		p.Set(e.X, e.Y, floorplan.CellExit)
	}
	return p
}

func mustWorld(t *testing.T, opts ...WorldOption) *World {
	t.Helper()
	w, err := NewWorld(opts...)
	if err != nil {
		t.Fatalf("NewWorld: %v", err)
	}
	return w
}

// evacuate puts a straight into SeekingExit toward goal, skipping perception.
func evacuate(a *Agent, goal Pos) {
	a.State = StateSeekingExit
	a.setGoal(goal)
}

// dumpLog prints the full log on failure.
func dumpLog(t *testing.T, w *World) {
	t.Helper()
	if t.Failed() {
		t.Logf("Log dump:\n%s", w.Log().Format())
		t.Log(w.Summary())
	}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }
