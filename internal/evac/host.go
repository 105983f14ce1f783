package evac

// Host is everything the behaviour core consumes from its surroundings:
// grid queries, the pathfinder, spatial lookups over agents, entity
// movement, and the clock. All calls are synchronous and assumed consistent
// for the duration of one tick.
type Host interface {
	// FindPath returns the cells from→to, excluding from. It may be empty.
	FindPath(from, to Pos) []Pos
	InBounds(p Pos) bool
	IsWalkable(p Pos) bool

	// NearestAgent returns the present agent closest to p (Chebyshev, ties by
	// ID) ignoring the excluded IDs, or nil.
	NearestAgent(p Pos, exclude ...AgentID) *Agent
	// AgentsWithinRadius returns present agents within Chebyshev radius r of
	// p, in ID order.
	AgentsWithinRadius(p Pos, r int) []*Agent
	Agent(id AgentID) *Agent

	// MoveAgent must be used for every position change so the spatial index
	// stays consistent with Agent.Pos.
	MoveAgent(a *Agent, to Pos)
	RemoveAgent(a *Agent)

	CurrentTick() int
	Goals() Goals
}

// Terrain is the static grid view the hazard field spreads over.
type Terrain interface {
	InBounds(p Pos) bool
	IsWalkable(p Pos) bool
	IsRestricted(p Pos) bool
	WalkableCells() []Pos
}

// GoalKind classifies a destination cell.
type GoalKind int

const (
	GoalOther GoalKind = iota
	GoalExit
	GoalFrontStair
	GoalBackStair
)

func (k GoalKind) String() string {
	switch k {
	case GoalExit:
		return "exit"
	case GoalFrontStair:
		return "front_stair"
	case GoalBackStair:
		return "back_stair"
	default:
		return "other"
	}
}

// Goals lists the viable evacuation destinations of a floor.
type Goals struct {
	Exits       []Pos
	FrontStairs []Pos
	BackStairs  []Pos
}

// Kind classifies p.
func (g Goals) Kind(p Pos) GoalKind {
	switch {
	case contains(g.Exits, p):
		return GoalExit
	case contains(g.FrontStairs, p):
		return GoalFrontStair
	case contains(g.BackStairs, p):
		return GoalBackStair
	}
	return GoalOther
}

// All returns exits followed by both stair clusters.
func (g Goals) All() []Pos {
	out := make([]Pos, 0, len(g.Exits)+len(g.FrontStairs)+len(g.BackStairs))
	out = append(out, g.Exits...)
	out = append(out, g.FrontStairs...)
	return append(out, g.BackStairs...)
}

// NearestExit returns the exit closest to from.
func (g Goals) NearestExit(from Pos) (Pos, bool) {
	return nearest(from, g.Exits)
}

// NextExit cycles to the exit after current in list order. With a single
// exit it returns that exit and false.
func (g Goals) NextExit(current Pos) (Pos, bool) {
	n := len(g.Exits)
	if n == 0 {
		return Pos{}, false
	}
	for i, e := range g.Exits {
		if e == current {
			next := g.Exits[(i+1)%n]
			return next, next != current
		}
	}
	return g.Exits[0], g.Exits[0] != current
}

// OtherCluster returns the nearest cell of the stair cluster opposite to the
// one containing current.
func (g Goals) OtherCluster(from, current Pos) (Pos, bool) {
	switch g.Kind(current) {
	case GoalFrontStair:
		return nearest(from, g.BackStairs)
	case GoalBackStair:
		return nearest(from, g.FrontStairs)
	}
	return Pos{}, false
}

// NearestAny returns the closest of all viable goals.
func (g Goals) NearestAny(from Pos) (Pos, bool) {
	return nearest(from, g.All())
}

func nearest(from Pos, cands []Pos) (Pos, bool) {
	best, bestD := Pos{}, -1
	for _, c := range cands {
		d := Chebyshev(from, c)
		if bestD < 0 || d < bestD {
			best, bestD = c, d
		}
	}
	return best, bestD >= 0
}

func contains(ps []Pos, p Pos) bool {
	for _, q := range ps {
		if q == p {
			return true
		}
	}
	return false
}
