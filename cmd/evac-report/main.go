package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/atotto/clipboard"

	"github.com/Garsondee/Evac-Sense/internal/evac"
	"github.com/Garsondee/Evac-Sense/internal/persistence/eventlog"
	"github.com/Garsondee/Evac-Sense/internal/persistence/runindex"
	"github.com/Garsondee/Evac-Sense/internal/scenario"
)

type options struct {
	runs     int
	ticks    int
	seedBase int64
	seedStep int64
	scenario string
	events   string
	db       string
	copy     bool
}

type runStats struct {
	runIndex int
	seed     int64
	runID    string
	ticks    int
	spawned  int

	firstActivateTick int
	firstIgniteTick   int
	firstExitTick     int
	firstReversalTick int
	firstDeathTick    int
	halfExitTick      int
	lastExitTick      int

	metrics  evac.Metrics
	detours  int
	pickups  int
	affected map[string]struct{}

	windowSummary *evac.WindowReport
	eventLog      string
}

func main() {
	var o options
	flag.IntVar(&o.runs, "runs", 5, "number of headless simulation runs")
	flag.IntVar(&o.ticks, "ticks", 0, "ticks per run (0 uses the scenario's length)")
	flag.Int64Var(&o.seedBase, "seed-base", 42, "base RNG seed for run 1")
	flag.Int64Var(&o.seedStep, "seed-step", 1, "seed increment between runs")
	flag.StringVar(&o.scenario, "scenario", scenario.DefaultName,
		"built-in scenario ("+strings.Join(scenario.BuiltinNames(), ", ")+") or path to a YAML file")
	flag.StringVar(&o.events, "events", "", "directory for compressed per-run event logs")
	flag.StringVar(&o.db, "db", "", "SQLite run index to record runs in")
	flag.BoolVar(&o.copy, "copy", false, "copy the report to the clipboard")
	flag.Parse()

	if err := run(context.Background(), o, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, stdout io.Writer) error {
	if o.runs <= 0 {
		return fmt.Errorf("-runs must be > 0")
	}
	if o.ticks < 0 {
		return fmt.Errorf("-ticks must be >= 0")
	}
	sc, err := scenario.Resolve(o.scenario)
	if err != nil {
		return err
	}
	if o.ticks == 0 {
		o.ticks = sc.Ticks
	}

	var idx *runindex.Index
	if o.db != "" {
		idx, err = runindex.Open(o.db)
		if err != nil {
			return err
		}
		defer idx.Close()
	}

	var buf bytes.Buffer
	out := io.MultiWriter(stdout, &buf)

	fmt.Fprintf(out, "=== Evacuation Report ===\n")
	fmt.Fprintf(out, "scenario=%s runs=%d ticks=%d seed_base=%d seed_step=%d\n\n", sc.Name, o.runs, o.ticks, o.seedBase, o.seedStep)

	all := make([]runStats, 0, o.runs)
	for i := 0; i < o.runs; i++ {
		seed := o.seedBase + int64(i)*o.seedStep
		stats, err := runScenario(sc, i+1, seed, o.ticks, o.events)
		if err != nil {
			return fmt.Errorf("run %d: %w", i+1, err)
		}
		if idx != nil {
			if _, err := idx.Record(ctx, runindex.Run{
				ID:       stats.runID,
				Scenario: sc.Name,
				Seed:     seed,
				Ticks:    stats.ticks,
				Agents:   stats.spawned,
				EventLog: stats.eventLog,
				Metrics:  stats.metrics,
			}); err != nil {
				return err
			}
		}
		all = append(all, stats)
		printRun(out, stats)
	}
	printAggregate(out, all)

	if idx != nil {
		st, err := idx.ScenarioStats(ctx, sc.Name)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n=== Run Index (%s) ===\n", o.db)
		fmt.Fprintf(out, "indexed_runs=%d avg_exited=%.1f avg_deaths=%.1f avg_rescues=%.1f max_deaths=%d\n",
			st.Runs, st.AvgExited, st.AvgDeaths, st.AvgRescues, st.MaxDeaths)
	}

	if o.copy {
		if err := clipboard.WriteAll(buf.String()); err != nil {
			fmt.Fprintf(stdout, "\nclipboard unavailable: %v\n", err)
		} else {
			fmt.Fprintf(stdout, "\n(report copied to clipboard)\n")
		}
	}
	return nil
}

func runScenario(sc *scenario.Scenario, runIndex int, seed int64, ticks int, eventsDir string) (rs runStats, err error) {
	runID := runindex.NewRunID()
	var wr *eventlog.Writer
	if eventsDir != "" {
		wr, err = eventlog.Create(filepath.Join(eventsDir, fmt.Sprintf("%s-%s.jsonl.zst", sc.Name, runID)))
		if err != nil {
			return rs, err
		}
		defer func() {
			if cerr := wr.Close(); err == nil {
				err = cerr
			}
		}()
	}

	w, err := sc.Build(seed)
	if err != nil {
		return rs, err
	}
	spawned := len(w.Agents())
	if wr != nil {
		if err := wr.WriteHeader(eventlog.Header{RunID: runID, Scenario: sc.Name, Seed: seed, Agents: spawned}); err != nil {
			return rs, err
		}
		w.Log().Attach(wr)
	}

	rep := evac.NewReporter(0)
	half := -1
	for i := 0; i < ticks && !w.Done(); i++ {
		w.Step()
		tr := rep.Collect(w)
		if half < 0 && halfOut(tr, spawned) {
			half = tr.Tick
		}
		if wr != nil {
			if err := wr.WriteTick(tr); err != nil {
				return rs, err
			}
		}
	}
	if err := w.Log().Err(); err != nil {
		return rs, fmt.Errorf("event log: %w", err)
	}

	entries := w.Log().Entries()
	affected := map[string]struct{}{}
	detours, pickups := 0, 0
	lastExit := -1
	for _, e := range entries {
		switch e.Category {
		case "hazard":
			if e.Key == "detour" || e.Key == "trapped" {
				detours++
				affected[e.Agent] = struct{}{}
			}
		case "rescue":
			if e.Key == "pickup" {
				pickups++
				affected[e.Agent] = struct{}{}
			}
		case "state":
			switch e.Key {
			case "incapacitated", "death":
				affected[e.Agent] = struct{}{}
			case "exit":
				lastExit = e.Tick
			}
		}
	}

	rs = runStats{
		runIndex:          runIndex,
		seed:              seed,
		runID:             runID,
		ticks:             w.Tick(),
		spawned:           spawned,
		firstActivateTick: firstTick(entries, "state", "activate", ""),
		firstIgniteTick:   firstTick(entries, "hazard", "ignite", ""),
		firstExitTick:     firstTick(entries, "state", "exit", ""),
		firstReversalTick: firstTick(entries, "goal", "reversal", ""),
		firstDeathTick:    firstTick(entries, "state", "death", ""),
		halfExitTick:      half,
		lastExitTick:      lastExit,
		metrics:           w.Metrics(),
		detours:           detours,
		pickups:           pickups,
		affected:          affected,
		windowSummary:     rep.WindowSummary(),
	}
	if wr != nil {
		rs.eventLog = wr.Path()
	}
	return rs, nil
}

func firstTick(entries []evac.SimLogEntry, category, key, contains string) int {
	for _, e := range entries {
		if e.Category != category || e.Key != key {
			continue
		}
		if contains == "" || strings.Contains(e.Value, contains) {
			return e.Tick
		}
	}
	return -1
}

// halfOut reports whether at least half of spawned agents had reached an
// exit by r.
func halfOut(r evac.TickReport, spawned int) bool {
	return spawned > 0 && r.Metrics.ReachedExit*2 >= spawned
}

// outcomeCounts splits the population into exited, dead and still inside.
func outcomeCounts(m evac.Metrics) (exited, dead, inside int) {
	return m.ReachedExit, m.Deaths, m.AgentsRemaining
}

// detectCongestion flags runs where most occupants got out, but only after
// heavy pushing at the doors.
func detectCongestion(rs runStats) (bool, string) {
	if rs.spawned <= 0 {
		return false, "no_agents"
	}
	survival := float64(rs.metrics.ReachedExit) / float64(rs.spawned)
	if survival < 0.75 {
		return false, fmt.Sprintf("low_survival=%.2f", survival)
	}
	pushRate := float64(rs.metrics.Pushed) / float64(rs.spawned)
	if pushRate < 0.5 {
		return false, fmt.Sprintf("low_push_rate=%.2f", pushRate)
	}
	return true, fmt.Sprintf("high_survival=%.2f push_rate=%.2f", survival, pushRate)
}

func printRun(out io.Writer, rs runStats) {
	exited, dead, inside := outcomeCounts(rs.metrics)
	fmt.Fprintf(out, "--- Run %d (seed=%d id=%s) ---\n", rs.runIndex, rs.seed, rs.runID)
	fmt.Fprintf(out, "outcome: spawned=%d exited=%d dead=%d inside=%d ticks=%d\n",
		rs.spawned, exited, dead, inside, rs.ticks)
	fmt.Fprintf(out, "phase_markers: ignite=%d activate=%d first_exit=%d half_out=%d last_exit=%d first_reversal=%d first_death=%d\n",
		rs.firstIgniteTick, rs.firstActivateTick, rs.firstExitTick, rs.halfExitTick, rs.lastExitTick, rs.firstReversalTick, rs.firstDeathTick)
	fmt.Fprintf(out, "counters: %s\n", rs.metrics)
	fmt.Fprintf(out, "hazard_events: detours=%d pickups=%d affected=%d\n", rs.detours, rs.pickups, len(rs.affected))
	fmt.Fprintf(out, "affected_labels: %s\n", joinSet(rs.affected))
	if congested, reason := detectCongestion(rs); congested {
		fmt.Fprintf(out, "congestion: yes (%s)\n", reason)
	} else {
		fmt.Fprintf(out, "congestion: no (%s)\n", reason)
	}
	if rs.windowSummary != nil {
		fmt.Fprint(out, rs.windowSummary.Format())
	}
	if rs.eventLog != "" {
		fmt.Fprintf(out, "event_log: %s\n", rs.eventLog)
	}
	fmt.Fprintln(out)
}

func printAggregate(out io.Writer, all []runStats) {
	var total evac.Metrics
	totalSpawned := 0
	congested := 0
	activateTicks := make([]int, 0, len(all))
	halfTicks := make([]int, 0, len(all))
	lastTicks := make([]int, 0, len(all))
	deathTicks := make([]int, 0, len(all))
	affectedGlobal := map[string]int{}

	for _, rs := range all {
		m := rs.metrics
		totalSpawned += rs.spawned
		total.ReachedExit += m.ReachedExit
		total.Deaths += m.Deaths
		total.AgentsRemaining += m.AgentsRemaining
		total.Unconscious += m.Unconscious
		total.GroupsFormed += m.GroupsFormed
		total.GroupSplits += m.GroupSplits
		total.GroupLeaves += m.GroupLeaves
		total.GroupMerges += m.GroupMerges
		total.Pushed += m.Pushed
		total.Rescues += m.Rescues
		total.ItemReturns += m.ItemReturns
		total.GoalReassignments += m.GoalReassignments
		if ok, _ := detectCongestion(rs); ok {
			congested++
		}
		if rs.firstActivateTick >= 0 {
			activateTicks = append(activateTicks, rs.firstActivateTick)
		}
		if rs.halfExitTick >= 0 {
			halfTicks = append(halfTicks, rs.halfExitTick)
		}
		if rs.lastExitTick >= 0 {
			lastTicks = append(lastTicks, rs.lastExitTick)
		}
		if rs.firstDeathTick >= 0 {
			deathTicks = append(deathTicks, rs.firstDeathTick)
		}
		for label := range rs.affected {
			affectedGlobal[label]++
		}
	}

	n := len(all)
	fmt.Fprintln(out, "=== Aggregate ===")
	fmt.Fprintf(out, "runs=%d spawned=%d survival=%.1f%% congested_runs=%d\n",
		n, totalSpawned, pct(total.ReachedExit, totalSpawned), congested)
	fmt.Fprintf(out, "avg_outcome_per_run: exited=%.1f dead=%.1f inside=%.1f unconscious=%.1f\n",
		avg(total.ReachedExit, n), avg(total.Deaths, n), avg(total.AgentsRemaining, n), avg(total.Unconscious, n))
	fmt.Fprintf(out, "avg_group_events_per_run: formed=%.1f splits=%.1f leaves=%.1f merges=%.1f\n",
		avg(total.GroupsFormed, n), avg(total.GroupSplits, n), avg(total.GroupLeaves, n), avg(total.GroupMerges, n))
	fmt.Fprintf(out, "avg_behaviour_per_run: pushed=%.1f rescues=%.1f item_returns=%.1f reroutes=%.1f\n",
		avg(total.Pushed, n), avg(total.Rescues, n), avg(total.ItemReturns, n), avg(total.GoalReassignments, n))
	fmt.Fprintf(out, "phase_marker_avg_ticks: activate=%s half_out=%s last_exit=%s first_death=%s\n",
		avgTickString(activateTicks), avgTickString(halfTicks), avgTickString(lastTicks), avgTickString(deathTicks))
	fmt.Fprintf(out, "most_affected: %s\n", topLabels(affectedGlobal, 5))
}

func avg(sum int, n int) float64 {
	if n <= 0 {
		return 0
	}
	return float64(sum) / float64(n)
}

func pct(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

func avgTickString(vals []int) string {
	if len(vals) == 0 {
		return "n/a"
	}
	sum := 0
	for _, v := range vals {
		sum += v
	}
	return fmt.Sprintf("%.1f", float64(sum)/float64(len(vals)))
}

// topLabels lists up to k labels by count, highest first, ties by label.
func topLabels(counts map[string]int, k int) string {
	if len(counts) == 0 {
		return "none"
	}
	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		if counts[labels[i]] != counts[labels[j]] {
			return counts[labels[i]] > counts[labels[j]]
		}
		return labels[i] < labels[j]
	})
	if len(labels) > k {
		labels = labels[:k]
	}
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = fmt.Sprintf("%s(%d)", l, counts[l])
	}
	return strings.Join(parts, ",")
}

func joinSet(s map[string]struct{}) string {
	if len(s) == 0 {
		return "none"
	}
	labels := make([]string, 0, len(s))
	for k := range s {
		labels = append(labels, k)
	}
	sort.Strings(labels)
	return strings.Join(labels, ",")
}
