package evac

import "fmt"

// interruption is the single errand check an agent runs in a tick.
type interruption int

const (
	interruptNone interruption = iota
	interruptForgotItem
	interruptDistressScan
)

func (i interruption) String() string {
	switch i {
	case interruptForgotItem:
		return "forgot_item"
	case interruptDistressScan:
		return "distress_scan"
	default:
		return "none"
	}
}

// movement is the single movement routine an agent runs in a tick.
type movement int

const (
	moveNone movement = iota
	moveSolo
	moveLeader
	moveFollowGrid
	moveFollowForce
	moveCarried
)

func (m movement) String() string {
	switch m {
	case moveSolo:
		return "solo"
	case moveLeader:
		return "leader"
	case moveFollowGrid:
		return "follow_grid"
	case moveFollowForce:
		return "follow_force"
	case moveCarried:
		return "carried"
	default:
		return "none"
	}
}

// selectInterruption picks the errand check for a. Only agents heading out
// on their own account check anything: followers already walking back with
// their group and agents committed to a rescue do not.
func (e *Engine) selectInterruption(a *Agent, tick int) interruption {
	if !a.active() || a.State != StateSeekingExit {
		return interruptNone
	}
	if a.returningWithGroup || a.helped != NoAgent {
		return interruptNone
	}
	if !a.forgetRolled && tick >= a.Traits.ForgetDelay {
		return interruptForgotItem
	}
	if a.Traits.CanHelp(e.cfg) {
		return interruptDistressScan
	}
	return interruptNone
}

// selectMovement picks the movement routine from state and group role.
func (e *Engine) selectMovement(a *Agent) movement {
	switch {
	case a.State == StateBeingCarried:
		return moveCarried
	case !a.active() || a.State == StateDormant:
		return moveNone
	case a.leader != NoAgent:
		if e.cfg.FollowMode == FollowSocialForce {
			return moveFollowForce
		}
		return moveFollowGrid
	case len(a.members) > 0:
		return moveLeader
	}
	return moveSolo
}

// Step advances a by one tick: hazard exposure, perception, one errand
// check, then one movement routine.
func (e *Engine) Step(a *Agent) {
	if a.State.Gone() {
		return
	}
	tick := e.host.CurrentTick()
	if !e.expose(a) {
		return
	}
	e.Validate(a)

	switch a.State {
	case StateIncapacitated:
		return
	case StateDormant:
		if !e.perceive(a, tick) {
			return
		}
	}

	switch e.selectInterruption(a, tick) {
	case interruptForgotItem:
		e.rollForgotItem(a)
	case interruptDistressScan:
		e.scanDistress(a)
	}
	if a.State == StateHelpingDistressed {
		e.trackVictim(a)
	}

	mv := e.selectMovement(a)
	if mv != moveCarried && mv != moveNone && !e.mobile(a, tick) {
		return
	}
	e.verbose(a, "move", "routine", "%s", mv)
	switch mv {
	case moveSolo:
		e.advance(a)
	case moveLeader:
		e.lead(a)
	case moveFollowGrid:
		e.followGrid(a)
	case moveFollowForce:
		e.moveBySocialForce(a)
	case moveCarried:
		e.followHelper(a)
	}
}

// mobile applies the speed gate. A helper carrying someone moves at half
// its normal rate.
func (e *Engine) mobile(a *Agent, tick int) bool {
	m := max(1, a.Traits.Mobility)
	if e.carrying(a) != nil {
		m *= 2
	}
	return tick%m == 0
}

// expose applies this tick's hazard damage. Returns false if a died.
func (e *Engine) expose(a *Agent) bool {
	dmg := e.hazards.DamageAt(a.Pos)
	if dmg == 0 {
		return true
	}
	a.exposure++
	a.Health = max(0, a.Health-dmg)
	e.log.AddVerbose(e.host.CurrentTick(), a.Label, "stats", "health",
		fmt.Sprintf("%d (-%d)", a.Health, dmg), float64(a.Health))
	if a.Health == 0 {
		e.die(a)
		return false
	}
	if a.Conscious && a.Health <= e.cfg.UnconsciousHealth {
		e.incapacitate(a)
	}
	return true
}

func (e *Engine) incapacitate(a *Agent) {
	e.releaseRole(a)
	a.Conscious = false
	a.State = StateIncapacitated
	a.clearGoal()
	a.vel = Vec2{}
	e.metrics.Unconscious++
	e.event(a, "state", "incapacitated", "health %d at %s", a.Health, a.Pos)
}

func (e *Engine) die(a *Agent) {
	e.releaseRole(a)
	a.Conscious = false
	a.State = StateRemoved
	a.clearGoal()
	e.host.RemoveAgent(a)
	e.metrics.Deaths++
	e.metrics.AgentsRemaining--
	e.event(a, "state", "death", "at %s after %d ticks of exposure", a.Pos, a.exposure)
}

// perceive sums the risk terms for a dormant agent and starts its
// evacuation once they reach its threshold. Returns true on activation.
func (e *Engine) perceive(a *Agent, tick int) bool {
	risk := 0.0
	if _, d, ok := e.hazards.NearestHazard(a.Pos); ok && d <= e.cfg.HazardRiskRadius {
		risk += 1 - float64(d)/float64(e.cfg.HazardRiskRadius+1)
	}
	if e.cfg.AlarmTick >= 0 && tick >= e.cfg.AlarmTick {
		risk += e.cfg.AlarmRisk
	}
	others, moving := 0, 0
	for _, c := range e.host.AgentsWithinRadius(a.Pos, e.cfg.PerceptionRadius) {
		if c == a {
			continue
		}
		others++
		if c.active() && c.State != StateDormant {
			moving++
		}
	}
	if others > 0 {
		risk += e.cfg.SocialRiskWeight * float64(moving) / float64(others)
	}
	e.log.AddVerbose(tick, a.Label, "stats", "risk", fmt.Sprintf("%.2f", risk), risk)

	if risk < a.Traits.RiskThreshold {
		return false
	}
	e.activate(a, fmt.Sprintf("risk %.2f", risk))
	e.TryForm(a)
	return true
}

// rollForgotItem is the once-per-agent forgot-item check.
func (e *Engine) rollForgotItem(a *Agent) {
	a.forgetRolled = true
	if a.Traits.ForgetChance <= 0 || a.Pos == a.Origin {
		return
	}
	if e.rng.Float64() >= a.Traits.ForgetChance {
		return
	}
	switch {
	case len(a.members) > 0:
		e.LeaderInterrupt(a, InterruptForgotItem, a.Origin)
	case a.leader != NoAgent:
		e.FollowerInterrupt(a, InterruptForgotItem, a.Origin)
	}
	a.State = StateReturningForItem
	a.setGoal(a.Origin)
	e.metrics.ItemReturns++
	e.event(a, "goal", "forgot_item", "back to %s with %d", a.Origin, len(a.members))
}

// finishItemErrand sends a and anyone who came along back toward an exit.
func (e *Engine) finishItemErrand(a *Agent) {
	a.State = StateSeekingExit
	if g, ok := e.host.Goals().NearestExit(a.Pos); ok {
		a.setGoal(g)
	}
	g, _ := a.Goal()
	for _, id := range a.members {
		if m := e.host.Agent(id); m != nil {
			m.returningWithGroup = false
			m.setGoal(g)
		}
	}
	e.event(a, "goal", "item_done", "heading for %s", g)
}

// scanDistress looks for an unconscious agent nobody is helping yet.
func (e *Engine) scanDistress(a *Agent) {
	for _, c := range e.host.AgentsWithinRadius(a.Pos, e.cfg.HelpRadius) {
		if c == a || c.State != StateIncapacitated || c.helper != NoAgent {
			continue
		}
		e.commitRescue(a, c)
		return
	}
}

// commitRescue links helper and victim on both sides before the helper sets
// off, so a victim has at most one helper on the way and scanDistress passes
// it over. Pickup on arrival only changes states.
func (e *Engine) commitRescue(a, v *Agent) {
	switch {
	case len(a.members) > 0:
		e.LeaderInterrupt(a, InterruptDistress, v.Pos)
	case a.leader != NoAgent:
		e.FollowerInterrupt(a, InterruptDistress, v.Pos)
	}
	a.helped = v.ID
	v.helper = a.ID
	a.State = StateHelpingDistressed
	a.setGoal(v.Pos)
	e.event(a, "rescue", "commit", "going for %s at %s", v.Label, v.Pos)
}

// trackVictim keeps a helper's goal on the victim and picks it up once
// both share a cell.
func (e *Engine) trackVictim(a *Agent) {
	v := e.agent(a.helped)
	if v == nil || v.helper != a.ID {
		e.abandonRescue(a, "victim gone")
		return
	}
	a.setGoal(v.Pos)
	if a.Pos == v.Pos {
		e.pickup(a, v)
	}
}

func (e *Engine) pickup(a, v *Agent) {
	v.State = StateBeingCarried
	v.fpos = a.fpos
	a.State = StateSeekingExit
	if g, ok := e.host.Goals().NearestExit(a.Pos); ok {
		a.setGoal(g)
	}
	e.event(a, "rescue", "pickup", "carrying %s", v.Label)
}

// abandonRescue drops a's commitment on both sides.
func (e *Engine) abandonRescue(a *Agent, why string) {
	if v := e.host.Agent(a.helped); v != nil && v.helper == a.ID {
		v.helper = NoAgent
		if v.State == StateBeingCarried {
			v.State = StateIncapacitated
		}
	}
	a.helped = NoAgent
	if a.State == StateHelpingDistressed {
		a.State = StateSeekingExit
	}
	e.rederiveGoal(a)
	e.event(a, "rescue", "abandon", "%s", why)
}

// followHelper keeps a carried agent on its helper's cell.
func (e *Engine) followHelper(v *Agent) {
	h := e.agent(v.helper)
	if h == nil || h.helped != v.ID {
		v.helper = NoAgent
		v.State = StateIncapacitated
		return
	}
	if v.Pos != h.Pos {
		e.host.MoveAgent(v, h.Pos)
		v.fpos = h.Pos.Vec()
	}
}

// lead runs a leader's tick: pick up stragglers, merge with a nearby group,
// bring the followers' errand state in line, then walk the path.
func (e *Engine) lead(a *Agent) {
	e.recruit(a)
	e.tryMerge(a)
	if a.leader != NoAgent {
		e.followGrid(a)
		return
	}
	g, ok := a.Goal()
	for _, id := range a.members {
		m := e.host.Agent(id)
		if m == nil {
			continue
		}
		m.returningWithGroup = a.State == StateReturningForItem
		if ok {
			m.setGoal(g)
		}
	}
	e.advance(a)
}

// advance is path following for solo agents and leaders: one path cell per
// call, through hazard avoidance and collision resolution.
func (e *Engine) advance(a *Agent) {
	goal, ok := a.Goal()
	if !ok {
		e.rederiveGoal(a)
		if goal, ok = a.Goal(); !ok {
			return
		}
	}
	if a.Pos == goal {
		e.reachGoal(a)
		return
	}

	next, ok := e.nextPathCell(a, goal)
	if !ok {
		e.verbose(a, "move", "no_path", "to %s", goal)
		return
	}
	res := e.AvoidHazard(a, next)
	if e.ResolveCollision(a, res.Cell) == CollisionBlocked {
		return
	}
	e.stepTo(a, res.Cell)
	if res.Redirected {
		a.clearPath()
	} else {
		a.pathIdx++
	}
	if g, ok := a.Goal(); ok && a.Pos == g {
		e.reachGoal(a)
	}
}

// nextPathCell returns the next cursor cell, asking the host for a new path
// when the cursor is exhausted or no longer starts next to a.
func (e *Engine) nextPathCell(a *Agent, goal Pos) (Pos, bool) {
	if a.pathIdx >= len(a.path) || Chebyshev(a.Pos, a.path[a.pathIdx]) != 1 {
		a.path = e.host.FindPath(a.Pos, goal)
		a.pathIdx = 0
		if len(a.path) == 0 {
			a.clearPath()
			return Pos{}, false
		}
	}
	a.tripActive = true
	return a.path[a.pathIdx], true
}

// followGrid walks a follower one cell toward its leader, stopping once
// within FollowDistance.
func (e *Engine) followGrid(f *Agent) {
	leader := e.agent(f.leader)
	if leader == nil {
		return
	}
	if g, ok := leader.Goal(); ok {
		f.setGoal(g)
	}
	if Chebyshev(f.Pos, leader.Pos) <= e.cfg.FollowDistance {
		return
	}
	path := e.host.FindPath(f.Pos, leader.Pos)
	if len(path) == 0 {
		f.tripActive = false
		return
	}
	f.path, f.pathIdx, f.tripActive = path, 0, true

	res := e.AvoidHazard(f, path[0])
	if e.ResolveCollision(f, res.Cell) == CollisionBlocked {
		return
	}
	e.stepTo(f, res.Cell)
	f.pathIdx++
}

// reachGoal handles arrival at the current goal. It is safe to call more
// than once: agents that already left and goals not yet reached are ignored.
func (e *Engine) reachGoal(a *Agent) {
	if a.State.Gone() {
		return
	}
	goal, ok := a.Goal()
	if !ok || a.Pos != goal {
		return
	}

	switch {
	case a.State == StateHelpingDistressed:
		e.trackVictim(a)
		return
	case a.State == StateReturningForItem && goal == a.Origin:
		e.finishItemErrand(a)
		return
	}

	goals := e.host.Goals()
	switch goals.Kind(goal) {
	case GoalExit:
		e.HandleExit(a)
	case GoalFrontStair, GoalBackStair:
		if g, ok := goals.NearestExit(a.Pos); ok && g != goal {
			a.setGoal(g)
			e.event(a, "goal", "waypoint", "%s reached, heading for %s", goals.Kind(goal), g)
		}
	default:
		if a.State == StateSeekingExit && a.leader == NoAgent {
			e.rederiveGoal(a)
		}
	}
}

// HandleExit removes a through an exit. A carried agent leaves with its
// helper and followers are released. Calling it again for an agent that
// already left does nothing.
func (e *Engine) HandleExit(a *Agent) {
	if a.State.Gone() {
		return
	}
	carried := e.carrying(a)
	e.releaseAtExit(a)
	e.detach(a)
	if carried == nil && a.helped != NoAgent {
		e.abandonRescue(a, "left through exit")
	}

	a.State = StateAtExit
	a.clearPath()
	e.host.RemoveAgent(a)
	e.metrics.ReachedExit++
	e.metrics.AgentsRemaining--
	e.event(a, "state", "exit", "at %s", a.Pos)

	if carried != nil {
		a.helped = NoAgent
		carried.helper = NoAgent
		carried.State = StateAtExit
		e.host.RemoveAgent(carried)
		e.metrics.ReachedExit++
		e.metrics.AgentsRemaining--
		e.metrics.Rescues++
		e.event(carried, "rescue", "delivered", "by %s", a.Label)
	}
}
