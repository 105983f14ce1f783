package evac

import (
	"fmt"
	"strings"
)

// reportWindowTicks is the default sliding window for recent-behaviour reports.
const reportWindowTicks = 100

// TickReport is a summary of the simulation at one tick. It is a plain
// value, safe to hand to other goroutines.
type TickReport struct {
	Tick int `json:"tick"`

	States  map[string]int `json:"states"` // AgentState name → count, present agents only
	Present int            `json:"present"`

	Leaders   int `json:"leaders"`
	Followers int `json:"followers"`
	Carried   int `json:"carried"`

	AvgHealth float64 `json:"avg_health"`
	Injured   int     `json:"injured"` // health below max but conscious

	Fire  int `json:"fire"`
	Smoke int `json:"smoke"`

	Metrics Metrics `json:"metrics"`
}

// Reporter collects periodic reports and summarises them over a sliding
// window of ticks.
type Reporter struct {
	history     []TickReport
	windowTicks int
}

// NewReporter creates a reporter with the given window size.
func NewReporter(windowTicks int) *Reporter {
	if windowTicks <= 0 {
		windowTicks = reportWindowTicks
	}
	return &Reporter{windowTicks: windowTicks}
}

// Collect gathers a report from the world's current state and keeps it.
func (r *Reporter) Collect(w *World) TickReport {
	rpt := BuildTickReport(w)
	r.history = append(r.history, rpt)

	// Prune old history beyond 2x window to prevent unbounded growth.
	maxKeep := max(r.windowTicks*2, 100)
	if len(r.history) > maxKeep {
		r.history = r.history[len(r.history)-maxKeep:]
	}
	return rpt
}

// BuildTickReport summarises w without recording it anywhere.
func BuildTickReport(w *World) TickReport {
	rpt := TickReport{
		Tick:    w.Tick(),
		States:  make(map[string]int),
		Fire:    w.hazards.FireCount(),
		Smoke:   w.hazards.SmokeCount(),
		Metrics: w.Metrics(),
	}
	health := 0
	for _, a := range w.agents {
		if a.State.Gone() {
			continue
		}
		rpt.Present++
		rpt.States[a.State.String()]++
		health += a.Health
		if a.Conscious && a.Health < MaxHealth {
			rpt.Injured++
		}
		switch {
		case len(a.members) > 0:
			rpt.Leaders++
		case a.leader != NoAgent:
			rpt.Followers++
		}
		if a.State == StateBeingCarried {
			rpt.Carried++
		}
	}
	if rpt.Present > 0 {
		rpt.AvgHealth = float64(health) / float64(rpt.Present)
	}
	return rpt
}

// Latest returns the most recent report, or nil if none collected yet.
func (r *Reporter) Latest() *TickReport {
	if len(r.history) == 0 {
		return nil
	}
	return &r.history[len(r.history)-1]
}

// History returns all retained reports.
func (r *Reporter) History() []TickReport {
	return r.history
}

// WindowReport is an aggregated summary over a time window.
type WindowReport struct {
	FromTick, ToTick int
	SampleCount      int

	// State distribution as percentages (0-100) of agent-samples.
	StatePct map[string]float64

	AvgPresent   float64
	AvgFollowers float64
	AvgHealth    float64

	// Counter deltas across the window.
	Exited   int
	Deaths   int
	Pushed   int
	Splits   int
	Reroutes int

	FireGrowth int
}

// WindowSummary aggregates the reports inside the most recent window.
func (r *Reporter) WindowSummary() *WindowReport {
	if len(r.history) == 0 {
		return nil
	}
	latest := r.history[len(r.history)-1]
	cutoff := latest.Tick - r.windowTicks
	var window []TickReport
	for i := len(r.history) - 1; i >= 0; i-- {
		if r.history[i].Tick < cutoff {
			break
		}
		window = append(window, r.history[i])
	}
	first := window[len(window)-1]

	wr := &WindowReport{
		FromTick:    first.Tick,
		ToTick:      latest.Tick,
		SampleCount: len(window),
		StatePct:    make(map[string]float64),
		Exited:      latest.Metrics.ReachedExit - first.Metrics.ReachedExit,
		Deaths:      latest.Metrics.Deaths - first.Metrics.Deaths,
		Pushed:      latest.Metrics.Pushed - first.Metrics.Pushed,
		Splits:      latest.Metrics.GroupSplits - first.Metrics.GroupSplits,
		Reroutes:    latest.Metrics.GoalReassignments - first.Metrics.GoalReassignments,
		FireGrowth:  latest.Fire - first.Fire,
	}

	n := float64(len(window))
	total := 0.0
	for _, rpt := range window {
		for s, c := range rpt.States {
			wr.StatePct[s] += float64(c)
			total += float64(c)
		}
		wr.AvgPresent += float64(rpt.Present)
		wr.AvgFollowers += float64(rpt.Followers)
		wr.AvgHealth += rpt.AvgHealth
	}
	if total > 0 {
		for s, c := range wr.StatePct {
			wr.StatePct[s] = c / total * 100
		}
	}
	wr.AvgPresent /= n
	wr.AvgFollowers /= n
	wr.AvgHealth /= n
	return wr
}

// Format returns a human-readable multi-line string of the window summary.
func (wr *WindowReport) Format() string {
	if wr == nil {
		return "No data collected yet.\n"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== Evacuation Report (T=%d..%d, %d samples) ===\n",
		wr.FromTick, wr.ToTick, wr.SampleCount)

	sb.WriteString("\n--- State Distribution ---\n")
	for s := StateDormant; s <= StateBeingCarried; s++ {
		if pct := wr.StatePct[s.String()]; pct > 0.5 {
			fmt.Fprintf(&sb, "  %-18s %5.1f%%\n", s, pct)
		}
	}

	sb.WriteString("\n--- Occupancy ---\n")
	fmt.Fprintf(&sb, "  present=%.1f  following=%.1f  avg_health=%.1f\n",
		wr.AvgPresent, wr.AvgFollowers, wr.AvgHealth)

	sb.WriteString("\n--- Window Deltas ---\n")
	fmt.Fprintf(&sb, "  exited=%d deaths=%d pushed=%d splits=%d reroutes=%d fire_growth=%d\n",
		wr.Exited, wr.Deaths, wr.Pushed, wr.Splits, wr.Reroutes, wr.FireGrowth)
	return sb.String()
}

// ExitCurve returns the cumulative reached-exit count for each retained
// report, in tick order.
func (r *Reporter) ExitCurve() []int {
	out := make([]int, len(r.history))
	for i, rpt := range r.history {
		out[i] = rpt.Metrics.ReachedExit
	}
	return out
}

// FormatLatest returns a concise snapshot of the most recent report.
func (r *Reporter) FormatLatest() string {
	rpt := r.Latest()
	if rpt == nil {
		return "No data.\n"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- Snapshot T=%d ---\n", rpt.Tick)
	fmt.Fprintf(&sb, "present=%d leaders=%d followers=%d carried=%d injured=%d avg_health=%.1f\n",
		rpt.Present, rpt.Leaders, rpt.Followers, rpt.Carried, rpt.Injured, rpt.AvgHealth)
	fmt.Fprintf(&sb, "hazard: fire=%d smoke=%d\n", rpt.Fire, rpt.Smoke)
	fmt.Fprintf(&sb, "%s\n", rpt.Metrics)
	return sb.String()
}
