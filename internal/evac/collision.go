package evac

// CollisionOutcome is the result of contesting a cell.
type CollisionOutcome int

const (
	CollisionClear   CollisionOutcome = iota // nobody there
	CollisionBlocked                         // mover must wait this tick
	CollisionPushed                          // occupant displaced, mover may enter
	CollisionSwapped                         // group-mate traded places with the mover
)

func (o CollisionOutcome) String() string {
	switch o {
	case CollisionClear:
		return "clear"
	case CollisionBlocked:
		return "blocked"
	case CollisionPushed:
		return "pushed"
	case CollisionSwapped:
		return "swapped"
	default:
		return "unknown"
	}
}

// occupant finds the agent standing on p via the host's nearest-agent
// lookup. The mover and the agent it carries or is heading for are never
// occupants, and neither is anybody being carried (they share their
// helper's cell).
func (e *Engine) occupant(p Pos, mover *Agent, extra ...AgentID) *Agent {
	exclude := append([]AgentID{mover.ID}, extra...)
	if mover.helped != NoAgent {
		exclude = append(exclude, mover.helped)
	}
	for {
		occ := e.host.NearestAgent(p, exclude...)
		if occ == nil || occ.Pos != p {
			return nil
		}
		if occ.State != StateBeingCarried {
			return occ
		}
		exclude = append(exclude, occ.ID)
	}
}

// sameGroup is true when a and b are leader and follower or both follow
// the same leader.
func sameGroup(a, b *Agent) bool {
	switch {
	case a.leader == b.ID, b.leader == a.ID:
		return true
	case a.leader != NoAgent && a.leader == b.leader:
		return true
	}
	return false
}

// ResolveCollision decides whether mover may enter next. A conscious
// group-mate trades places with the mover. Any other occupant is handled by
// the mover's aggression, which decides between waiting and pushing.
// A push moves the occupant one further step along the line from mover to
// occupant; the landing cell must be in bounds, walkable and empty, or the
// push is dropped and the mover waits.
func (e *Engine) ResolveCollision(mover *Agent, next Pos) CollisionOutcome {
	occ := e.occupant(next, mover)
	if occ == nil {
		return CollisionClear
	}
	if occ.active() && sameGroup(mover, occ) {
		e.host.MoveAgent(occ, mover.Pos)
		occ.fpos = mover.Pos.Vec()
		occ.clearPath()
		if v := e.carrying(occ); v != nil {
			e.host.MoveAgent(v, mover.Pos)
			v.fpos = mover.Pos.Vec()
		}
		e.verbose(mover, "collision", "swap", "with %s", occ.Label)
		return CollisionSwapped
	}
	if occ.State == StateIncapacitated || !mover.Traits.CanPush(occ.Traits) {
		e.verbose(mover, "collision", "blocked", "by %s at %s", occ.Label, next)
		return CollisionBlocked
	}

	dest := occ.Pos.Add(occ.Pos.Sub(mover.Pos))
	if !e.host.InBounds(dest) || !e.host.IsWalkable(dest) || e.occupant(dest, mover, occ.ID) != nil {
		e.verbose(mover, "collision", "push_dropped", "%s has no room at %s", occ.Label, dest)
		return CollisionBlocked
	}

	e.host.MoveAgent(occ, dest)
	occ.fpos = dest.Vec()
	occ.clearPath()
	if v := e.carrying(occ); v != nil {
		e.host.MoveAgent(v, dest)
		v.fpos = dest.Vec()
	}
	e.metrics.Pushed++
	e.event(mover, "collision", "push", "%s %s → %s", occ.Label, next, dest)
	return CollisionPushed
}
