package evac

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/Garsondee/Evac-Sense/internal/floorplan"
)

// ErrNoPlan is returned by NewWorld when no floor plan was supplied.
var ErrNoPlan = errors.New("evac: world has no floor plan")

// World is the headless host: it owns the floor plan, the agent table, a
// spatial index over agents and the hazard field, and drives the Engine
// once per agent per tick in ID order.
type World struct {
	plan    *floorplan.Plan
	cfg     Config
	goals   Goals
	agents  []*Agent
	index   *spatialIndex
	hazards *HazardField
	engine  *Engine
	metrics Metrics
	log     *SimLog
	rng     *rand.Rand
	tick    int

	sink EntrySink
	errs []error
}

// worldOptionKind controls the pass in which an option is applied.
type worldOptionKind int

const (
	worldOptInfra  worldOptionKind = iota // plan, config, seed, logging
	worldOptAgent                         // spawn agents, once the plan and index exist
	worldOptGroup                         // scripted groups, once agents exist
	worldOptScript                        // scripted hazards and agent state
)

// WorldOption is a builder function applied to a World during construction.
type WorldOption struct {
	kind worldOptionKind
	fn   func(*World)
}

// WithPlan sets the floor plan.
func WithPlan(p *floorplan.Plan) WorldOption {
	return WorldOption{worldOptInfra, func(w *World) {
		w.plan = p
	}}
}

// WithConfig replaces the behaviour configuration.
func WithConfig(cfg Config) WorldOption {
	return WorldOption{worldOptInfra, func(w *World) {
		w.cfg = cfg
	}}
}

// WithSeed sets the RNG seed for deterministic runs.
func WithSeed(seed int64) WorldOption {
	return WorldOption{worldOptInfra, func(w *World) {
		w.rng = rand.New(rand.NewSource(seed)) // #nosec G404 -- simulation RNG
	}}
}

// WithVerbose enables per-tick verbose logging.
func WithVerbose(v bool) WorldOption {
	return WorldOption{worldOptInfra, func(w *World) {
		w.log = NewSimLog(v)
	}}
}

// WithSink streams every log entry to sink as it is recorded.
func WithSink(sink EntrySink) WorldOption {
	return WorldOption{worldOptInfra, func(w *World) {
		w.sink = sink
	}}
}

// WithAgent spawns one agent of the named archetype at (x,y).
func WithAgent(archetype string, x, y int) WorldOption {
	return WorldOption{worldOptAgent, func(w *World) {
		if _, err := w.Spawn(archetype, P(x, y)); err != nil {
			w.errs = append(w.errs, err)
		}
	}}
}

// WithTraitsAgent spawns an agent with explicit traits at (x,y).
func WithTraitsAgent(kind string, t Traits, x, y int) WorldOption {
	return WorldOption{worldOptAgent, func(w *World) {
		if _, err := w.SpawnTraits(kind, t, P(x, y)); err != nil {
			w.errs = append(w.errs, err)
		}
	}}
}

// WithPopulation spawns n agents on random free floor cells, cycling
// archetypes at random from names and jittering their traits by spread.
func WithPopulation(n int, names []string, spread float64) WorldOption {
	return WorldOption{worldOptAgent, func(w *World) {
		if err := w.spawnPopulation(n, names, spread); err != nil {
			w.errs = append(w.errs, err)
		}
	}}
}

// WithGroup puts the listed members under leader, all heading for the
// leader's nearest goal.
func WithGroup(leader AgentID, members ...AgentID) WorldOption {
	return WorldOption{worldOptGroup, func(w *World) {
		if err := w.formGroup(leader, members); err != nil {
			w.errs = append(w.errs, err)
		}
	}}
}

// WithFire ignites (x,y) before the first tick.
func WithFire(x, y int) WorldOption {
	return WorldOption{worldOptScript, func(w *World) {
		w.hazards.IgniteAt(P(x, y), 0)
	}}
}

// WithSmoke fills (x,y) with smoke before the first tick.
func WithSmoke(x, y int) WorldOption {
	return WorldOption{worldOptScript, func(w *World) {
		w.hazards.AddSmoke(P(x, y), 0)
	}}
}

// NewWorld constructs a World from the given options in ordered passes:
//  1. Infrastructure (plan, config, seed, logging)
//  2. Hazard field, spatial index and engine
//  3. Agents
//  4. Groups
//  5. Scripted hazards
func NewWorld(opts ...WorldOption) (*World, error) {
	w := &World{
		cfg: DefaultConfig(),
		log: NewSimLog(false),
		rng: rand.New(rand.NewSource(1)), // #nosec G404 -- simulation RNG default
	}
	for _, o := range opts {
		if o.kind == worldOptInfra {
			o.fn(w)
		}
	}
	if w.plan == nil {
		return nil, ErrNoPlan
	}
	if w.sink != nil {
		w.log.Attach(w.sink)
	}
	w.goals = goalsFromPlan(w.plan)
	w.index = newSpatialIndex(w.plan.Cols(), w.plan.Rows())
	w.hazards = NewHazardField(w.cfg.Hazard)
	w.engine = NewEngine(w, w.hazards, w.cfg, &w.metrics, w.log, w.rng)

	for _, kind := range []worldOptionKind{worldOptAgent, worldOptGroup, worldOptScript} {
		for _, o := range opts {
			if o.kind == kind {
				o.fn(w)
			}
		}
	}
	if len(w.errs) > 0 {
		return nil, fmt.Errorf("build world: %w", errors.Join(w.errs...))
	}
	return w, nil
}

func goalsFromPlan(p *floorplan.Plan) Goals {
	conv := func(cs [][2]int) []Pos {
		out := make([]Pos, len(cs))
		for i, c := range cs {
			out[i] = P(c[0], c[1])
		}
		return out
	}
	return Goals{
		Exits:       conv(p.Exits()),
		FrontStairs: conv(p.FrontStairs()),
		BackStairs:  conv(p.BackStairs()),
	}
}

// Spawn registers a new agent of the named archetype at p.
func (w *World) Spawn(archetype string, p Pos) (*Agent, error) {
	t, err := LookupArchetype(archetype)
	if err != nil {
		return nil, err
	}
	return w.SpawnTraits(archetype, t, p)
}

// SpawnTraits registers a new agent with explicit traits at p. The cell
// must be walkable and free.
func (w *World) SpawnTraits(kind string, t Traits, p Pos) (*Agent, error) {
	if !w.InBounds(p) || !w.IsWalkable(p) {
		return nil, fmt.Errorf("spawn %s at %s: cell is not walkable", kind, p)
	}
	if len(w.index.at(p)) > 0 {
		return nil, fmt.Errorf("spawn %s at %s: cell is occupied", kind, p)
	}
	id := AgentID(len(w.agents))
	a := NewAgent(id, fmt.Sprintf("A%d", id), p, t)
	a.Kind = kind
	if w.cfg.Trace {
		a.thoughts = NewThoughtLog()
	}
	w.agents = append(w.agents, a)
	w.index.add(id, p)
	w.metrics.AgentsRemaining++
	w.log.Add(w.tick, a.Label, "state", "spawn", fmt.Sprintf("%s at %s", kind, p), 0)
	return a, nil
}

func (w *World) spawnPopulation(n int, names []string, spread float64) error {
	if len(names) == 0 {
		return errors.New("population: no archetypes")
	}
	var free []Pos
	for _, c := range w.WalkableCells() {
		if !w.IsRestricted(c) && len(w.index.at(c)) == 0 {
			free = append(free, c)
		}
	}
	if n > len(free) {
		return fmt.Errorf("population: %d agents but only %d free cells", n, len(free))
	}
	order := w.rng.Perm(len(free))
	for i := 0; i < n; i++ {
		name := names[w.rng.Intn(len(names))]
		t, err := LookupArchetype(name)
		if err != nil {
			return err
		}
		if spread > 0 {
			t = t.Jitter(spread, w.rng.Float64)
		}
		if _, err := w.SpawnTraits(name, t, free[order[i]]); err != nil {
			return err
		}
	}
	return nil
}

func (w *World) formGroup(leaderID AgentID, members []AgentID) error {
	leader := w.Agent(leaderID)
	if leader == nil {
		return fmt.Errorf("group: no leader A%d", leaderID)
	}
	w.engine.activate(leader, "scripted group")
	for _, id := range members {
		m := w.Agent(id)
		if m == nil {
			return fmt.Errorf("group: no member A%d", id)
		}
		if !w.engine.Join(leader, m) {
			return fmt.Errorf("group: A%d cannot join A%d", id, leaderID)
		}
	}
	return nil
}

// --- Host ---

// FindPath returns the cells from→to excluding from.
func (w *World) FindPath(from, to Pos) []Pos {
	cells := w.plan.FindPath(from.X, from.Y, to.X, to.Y)
	if len(cells) == 0 {
		return nil
	}
	out := make([]Pos, len(cells))
	for i, c := range cells {
		out[i] = P(c[0], c[1])
	}
	return out
}

func (w *World) InBounds(p Pos) bool     { return w.plan.InBounds(p.X, p.Y) }
func (w *World) IsWalkable(p Pos) bool   { return w.plan.IsWalkable(p.X, p.Y) }
func (w *World) IsRestricted(p Pos) bool { return w.plan.IsRestricted(p.X, p.Y) }

// WalkableCells lists every walkable cell in row-major order.
func (w *World) WalkableCells() []Pos {
	cells := w.plan.WalkableCells()
	out := make([]Pos, len(cells))
	for i, c := range cells {
		out[i] = P(c[0], c[1])
	}
	return out
}

// NearestAgent searches outward ring by ring and returns the lowest-ID agent
// on the first ring holding a candidate.
func (w *World) NearestAgent(p Pos, exclude ...AgentID) *Agent {
	if w.index.count() == 0 {
		return nil
	}
	maxR := max(w.plan.Cols(), w.plan.Rows())
	for r := 0; r <= maxR; r++ {
		var best *Agent
		for y := p.Y - r; y <= p.Y+r; y++ {
			for x := p.X - r; x <= p.X+r; x++ {
				if max(iabs(x-p.X), iabs(y-p.Y)) != r {
					continue
				}
				for _, id := range w.index.at(P(x, y)) {
					if excluded(id, exclude) {
						continue
					}
					if best == nil || id < best.ID {
						best = w.agents[id]
					}
				}
			}
		}
		if best != nil {
			return best
		}
	}
	return nil
}

func excluded(id AgentID, ids []AgentID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// AgentsWithinRadius returns present agents within Chebyshev radius r of p
// in ID order.
func (w *World) AgentsWithinRadius(p Pos, r int) []*Agent {
	var out []*Agent
	for y := p.Y - r; y <= p.Y+r; y++ {
		for x := p.X - r; x <= p.X+r; x++ {
			for _, id := range w.index.at(P(x, y)) {
				out = append(out, w.agents[id])
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Agent resolves a handle, or nil if it was never issued.
func (w *World) Agent(id AgentID) *Agent {
	if id < 0 || int(id) >= len(w.agents) {
		return nil
	}
	return w.agents[id]
}

// MoveAgent relocates a and keeps the spatial index in step.
func (w *World) MoveAgent(a *Agent, to Pos) {
	if a.Pos == to {
		return
	}
	w.index.move(a.ID, a.Pos, to)
	a.Pos = to
}

// RemoveAgent takes a out of the spatial index. The record stays in the
// agent table so handles keep resolving.
func (w *World) RemoveAgent(a *Agent) {
	w.index.remove(a.ID, a.Pos)
}

func (w *World) CurrentTick() int { return w.tick }
func (w *World) Goals() Goals     { return w.goals }

// --- Driver ---

// Step advances the world one tick: hazards spread, then every agent acts
// once in ID order.
func (w *World) Step() {
	w.tick++
	tick := w.tick

	hadFire := w.hazards.Burning()
	hazardCount := w.hazards.Count()
	w.hazards.Step(w, w.rng, tick)
	if !hadFire && w.hazards.Burning() {
		cells := w.hazards.Cells()
		w.log.Add(tick, "--", "hazard", "ignite", fmt.Sprintf("fire at %s", cells[0]), 0)
	}
	if n := w.hazards.Count(); n != hazardCount {
		w.log.AddVerbose(tick, "--", "hazard", "spread",
			fmt.Sprintf("fire=%d smoke=%d", w.hazards.FireCount(), w.hazards.SmokeCount()), float64(n))
	}

	prevStates := make([]AgentState, len(w.agents))
	prevGoals := make([]Pos, len(w.agents))
	prevHas := make([]bool, len(w.agents))
	for i, a := range w.agents {
		prevStates[i] = a.State
		prevGoals[i], prevHas[i] = a.Goal()
	}

	for _, a := range w.agents {
		w.engine.Step(a)
	}

	for i, a := range w.agents {
		if a.State != prevStates[i] {
			w.log.Add(tick, a.Label, "state", "change",
				fmt.Sprintf("%s → %s", prevStates[i], a.State), 0)
		}
		g, has := a.Goal()
		if has && (!prevHas[i] || g != prevGoals[i]) && !a.State.Gone() {
			w.log.Add(tick, a.Label, "goal", "change",
				fmt.Sprintf("%s → %s (%s)", goalLabel(prevGoals[i], prevHas[i]), g, w.goals.Kind(g)), 0)
		}
		if !a.State.Gone() {
			w.log.AddVerbose(tick, a.Label, "move", "position", a.Pos.String(), 0)
		}
	}
}

func goalLabel(p Pos, ok bool) string {
	if !ok {
		return "none"
	}
	return p.String()
}

// RunTicks advances the simulation n ticks.
func (w *World) RunTicks(n int) {
	for i := 0; i < n; i++ {
		w.Step()
	}
}

// RunUntil advances the simulation up to maxTicks, stopping early if
// predicate returns true. Returns the tick at which the predicate was
// satisfied, or -1.
func (w *World) RunUntil(predicate func(*World) bool, maxTicks int) int {
	for i := 0; i < maxTicks; i++ {
		w.Step()
		if predicate(w) {
			return w.tick
		}
	}
	return -1
}

// Done reports whether no agent is left in the building.
func (w *World) Done() bool { return w.index.count() == 0 }

// Tick returns the number of ticks run so far.
func (w *World) Tick() int { return w.tick }

// Agents returns the agent table in ID order, including agents that left.
func (w *World) Agents() []*Agent { return w.agents }

// Metrics returns a copy of the counters.
func (w *World) Metrics() Metrics { return w.metrics.Snapshot() }

func (w *World) Log() *SimLog { return w.log }

func (w *World) Hazards() *HazardField { return w.hazards }

func (w *World) Engine() *Engine { return w.engine }

func (w *World) Plan() *floorplan.Plan { return w.plan }

func (w *World) Config() Config { return w.engine.Config() }

// CheckInvariants verifies group and rescue link symmetry.
func (w *World) CheckInvariants() error { return CheckGroupInvariants(w.agents) }

// Present is the number of agents still in the building.
func (w *World) Present() int { return w.index.count() }

// Summary formats the current state for test output.
func (w *World) Summary() string { return w.log.Summary(w.tick, w.agents, w.metrics) }

// AgentByLabel finds an agent by its label, e.g. "A3".
func (w *World) AgentByLabel(l string) *Agent {
	for _, a := range w.agents {
		if a.Label == l {
			return a
		}
	}
	return nil
}

// Snapshot captures a lightweight state summary.
type Snapshot struct {
	Tick   int             `json:"tick"`
	Agents []AgentSnapshot `json:"agents"`
	Fire   int             `json:"fire"`
	Smoke  int             `json:"smoke"`
}

// AgentSnapshot is a copy of one agent's state at a tick.
type AgentSnapshot struct {
	ID     AgentID    `json:"id"`
	Label  string     `json:"label"`
	Kind   string     `json:"kind"`
	X      int        `json:"x"`
	Y      int        `json:"y"`
	State  AgentState `json:"state"`
	Health int        `json:"health"`
	Leader AgentID    `json:"leader"`
}

// Snapshot returns the current state of all agents still in the building.
func (w *World) Snapshot() Snapshot {
	snap := Snapshot{Tick: w.tick, Fire: w.hazards.FireCount(), Smoke: w.hazards.SmokeCount()}
	for _, a := range w.agents {
		if a.State.Gone() {
			continue
		}
		snap.Agents = append(snap.Agents, AgentSnapshot{
			ID:     a.ID,
			Label:  a.Label,
			Kind:   a.Kind,
			X:      a.Pos.X,
			Y:      a.Pos.Y,
			State:  a.State,
			Health: a.Health,
			Leader: a.leader,
		})
	}
	return snap
}
