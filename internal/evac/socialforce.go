package evac

// minForceDist keeps the inverse-distance terms finite for agents that
// share a cell.
const minForceDist = 0.5

// SocialForce is the net force on a follower: a pull toward its leader, a
// push away from each other member falling off with distance, and a push
// away from the single nearest other agent with the same falloff.
func (e *Engine) SocialForce(a *Agent) Vec2 {
	leader := e.agent(a.leader)
	if leader == nil {
		return Vec2{}
	}
	fc := e.cfg.Force

	f := leader.fpos.Sub(a.fpos).Normalize().Scale(fc.AttractK)

	for _, id := range leader.members {
		if id == a.ID {
			continue
		}
		m := e.agent(id)
		if m == nil {
			continue
		}
		f = f.Add(repel(a.fpos, m.fpos, fc.RepelK))
	}

	exclude := []AgentID{a.ID}
	if a.helped != NoAgent {
		exclude = append(exclude, a.helped)
	}
	if near := e.host.NearestAgent(a.Pos, exclude...); near != nil {
		f = f.Add(repel(a.fpos, near.fpos, fc.ObstacleK))
	}
	return f
}

// repel is a unit push from other toward self scaled by k / distance.
func repel(self, other Vec2, k float64) Vec2 {
	d := ChebyshevF(self, other)
	if d < minForceDist {
		d = minForceDist
	}
	return self.Sub(other).Normalize().Scale(k / d)
}

// moveBySocialForce integrates a follower's velocity for one tick and
// enters the resulting cell under the usual bounds, walkability,
// occupancy and hazard rules.
func (e *Engine) moveBySocialForce(a *Agent) {
	leader := e.agent(a.leader)
	if leader == nil {
		return
	}
	if Chebyshev(a.Pos, leader.Pos) <= e.cfg.FollowDistance {
		a.vel = Vec2{}
		a.fpos = a.Pos.Vec()
		return
	}

	a.vel = a.vel.Add(e.SocialForce(a)).Clamp(e.cfg.Force.MaxSpeed)
	target := a.fpos.Add(a.vel)
	cell := target.Round()
	if cell == a.Pos {
		a.fpos = target
		return
	}
	if Chebyshev(a.Pos, cell) > 1 {
		cell = a.Pos.Add(stepToward(a.Pos, cell))
	}
	if !e.host.InBounds(cell) || !e.host.IsWalkable(cell) {
		a.vel = Vec2{}
		a.fpos = a.Pos.Vec()
		return
	}

	res := e.AvoidHazard(a, cell)
	if res.Redirected {
		a.vel = Vec2{}
	}
	if e.ResolveCollision(a, res.Cell) == CollisionBlocked {
		a.vel = Vec2{}
		a.fpos = a.Pos.Vec()
		return
	}
	e.stepTo(a, res.Cell)
	if !res.Redirected && target.Round() == res.Cell {
		a.fpos = target
	}
}
