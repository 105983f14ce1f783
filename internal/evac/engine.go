package evac

import (
	"fmt"
	"math/rand"
)

// Engine advances agents one tick at a time. It owns no agents: everything
// is read and written through the Host, and every counter goes to the
// shared Metrics accumulator.
type Engine struct {
	host    Host
	hazards *HazardField
	cfg     Config
	metrics *Metrics
	log     *SimLog
	rng     *rand.Rand
}

// NewEngine wires an engine to its collaborators. log may be nil.
func NewEngine(host Host, hazards *HazardField, cfg Config, metrics *Metrics, log *SimLog, rng *rand.Rand) *Engine {
	if cfg.MaxGroupSize < 2 {
		cfg.MaxGroupSize = 2
	}
	if cfg.FollowDistance < 1 {
		cfg.FollowDistance = 1
	}
	if cfg.FollowMode == "" {
		cfg.FollowMode = FollowGrid
	}
	return &Engine{
		host:    host,
		hazards: hazards,
		cfg:     cfg,
		metrics: metrics,
		log:     log,
		rng:     rng,
	}
}

// Config returns the engine's normalised configuration.
func (e *Engine) Config() Config { return e.cfg }

// Metrics returns the shared accumulator.
func (e *Engine) Metrics() *Metrics { return e.metrics }

// event records a log entry for a and mirrors it into the agent's trace.
func (e *Engine) event(a *Agent, category, key, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	tick := e.host.CurrentTick()
	label := "--"
	if a != nil {
		label = a.Label
		if a.thoughts != nil {
			a.thoughts.Add(tick, key+": "+msg)
		}
	}
	e.log.Add(tick, label, category, key, msg, 0)
}

func (e *Engine) verbose(a *Agent, category, key, format string, args ...any) {
	if !e.log.Verbose() {
		return
	}
	e.log.AddVerbose(e.host.CurrentTick(), a.Label, category, key, fmt.Sprintf(format, args...), 0)
}

// agent resolves a handle, treating agents that already left as missing.
func (e *Engine) agent(id AgentID) *Agent {
	if id == NoAgent {
		return nil
	}
	a := e.host.Agent(id)
	if a == nil || a.State.Gone() {
		return nil
	}
	return a
}

// initialGoal is the destination an agent picks for itself: the nearest
// viable goal, which may be a stair waypoint on the way to an exit.
func (e *Engine) initialGoal(a *Agent) (Pos, bool) {
	return e.host.Goals().NearestAny(a.Pos)
}

// rederiveGoal gives an agent released from a group or an errand its own
// destination again.
func (e *Engine) rederiveGoal(a *Agent) {
	if g, ok := e.initialGoal(a); ok {
		a.setGoal(g)
		return
	}
	a.clearGoal()
}

// carrying reports whether a is physically carrying someone.
func (e *Engine) carrying(a *Agent) *Agent {
	v := e.agent(a.helped)
	if v == nil || v.State != StateBeingCarried || v.helper != a.ID {
		return nil
	}
	return v
}

// stepTo moves a one cell, dragging a carried agent along.
func (e *Engine) stepTo(a *Agent, cell Pos) {
	if d, ok := DirBetween(a.Pos, cell); ok {
		a.lastDir = d
	}
	e.host.MoveAgent(a, cell)
	a.fpos = cell.Vec()
	if v := e.carrying(a); v != nil {
		e.host.MoveAgent(v, cell)
		v.fpos = cell.Vec()
	}
	e.verbose(a, "move", "step", "%s dir=%s", cell, a.lastDir)
}
