package evac

// AvoidanceResult describes how a planned step was adjusted for hazards.
type AvoidanceResult struct {
	Cell        Pos  // cell to attempt this tick
	Redirected  bool // Cell differs from the candidate
	GoalChanged bool // the detour reversed the heading and the goal was swapped
	NewGoal     Pos
}

// AvoidHazard checks the planned next cell against the hazard field. A
// hazardous candidate is replaced by the first safe neighbour of the agent
// in scan order. If that neighbour lies exactly behind the agent's last
// heading the way ahead is treated as a dead end and the goal is swapped:
// exits cycle to a different exit, stair waypoints switch to the other
// cluster, anything else falls back to the nearest viable goal. Followers
// keep the goal their leader sets, so only ungrouped agents and leaders swap
// goals. With no safe neighbour the candidate is returned as is and the agent
// walks into the hazard rather than stall.
func (e *Engine) AvoidHazard(a *Agent, candidate Pos) AvoidanceResult {
	res := AvoidanceResult{Cell: candidate}
	if !e.hazards.IsHazard(candidate) {
		return res
	}

	for _, d := range scanOrder {
		c := a.Pos.Add(d.Delta())
		if !e.host.InBounds(c) || !e.host.IsWalkable(c) || e.hazards.IsHazard(c) {
			continue
		}
		res.Cell = c
		res.Redirected = true
		if a.leader == NoAgent && a.lastDir != DirNone && d == a.lastDir.Opposite() {
			if g, ok := e.reversalGoal(a); ok {
				e.retarget(a, g)
				res.GoalChanged = true
				res.NewGoal = g
			}
		}
		e.event(a, "hazard", "detour", "%s → %s dir=%s", candidate, c, d)
		return res
	}

	_, dist, _ := e.hazards.NearestHazard(a.Pos)
	e.log.Add(e.host.CurrentTick(), a.Label, "hazard", "trapped",
		"no safe neighbour, entering "+candidate.String(), float64(dist))
	return res
}

// reversalGoal picks the replacement destination after a dead end.
func (e *Engine) reversalGoal(a *Agent) (Pos, bool) {
	goals := e.host.Goals()
	cur, ok := a.Goal()
	if !ok {
		return goals.NearestAny(a.Pos)
	}
	switch goals.Kind(cur) {
	case GoalExit:
		if g, ok := goals.NextExit(cur); ok {
			return g, true
		}
		return Pos{}, false
	case GoalFrontStair, GoalBackStair:
		if g, ok := goals.OtherCluster(a.Pos, cur); ok {
			return g, true
		}
		return goals.NearestExit(a.Pos)
	}
	g, ok := goals.NearestAny(a.Pos)
	if ok && g == cur {
		return Pos{}, false
	}
	return g, ok
}

// retarget applies a reversal goal. An agent on an errand (item or rescue)
// gives it up, since the way back is blocked.
func (e *Engine) retarget(a *Agent, g Pos) {
	prev, _ := a.Goal()
	switch a.State {
	case StateReturningForItem:
		e.finishItemErrand(a)
	case StateHelpingDistressed:
		e.abandonRescue(a, "route blocked")
	}
	a.setGoal(g)
	e.metrics.GoalReassignments++
	e.event(a, "goal", "reversal", "%s → %s", prev, g)
}
