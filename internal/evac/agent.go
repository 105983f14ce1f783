package evac

import "fmt"

// AgentID is a non-owning handle into the host's agent table.
type AgentID int

// NoAgent marks an unset relationship.
const NoAgent AgentID = -1

// MaxHealth is the starting health of every agent.
const MaxHealth = 100

// Aggression orders how readily an agent contests an occupied cell.
type Aggression int

const (
	Passive Aggression = iota
	Assertive
	Aggressive
)

func (a Aggression) String() string {
	switch a {
	case Passive:
		return "passive"
	case Assertive:
		return "assertive"
	case Aggressive:
		return "aggressive"
	default:
		return "unknown"
	}
}

// ParseAggression maps a config string to an Aggression tier.
func ParseAggression(s string) (Aggression, error) {
	switch s {
	case "passive", "":
		return Passive, nil
	case "assertive":
		return Assertive, nil
	case "aggressive":
		return Aggressive, nil
	}
	return Passive, fmt.Errorf("unknown aggression %q", s)
}

// AgentState is the high-level behaviour state.
type AgentState int

const (
	StateDormant           AgentState = iota // has not perceived the emergency
	StateSeekingExit                         // solo, leader, or follower movement
	StateReturningForItem                    // walking back to origin
	StateHelpingDistressed                   // heading to an unconscious agent
	StateIncapacitated                       // unconscious, waiting for a helper
	StateBeingCarried                        // moved by its helper
	StateAtExit                              // reached an exit this tick
	StateRemoved                             // gone from the simulation
)

func (s AgentState) String() string {
	switch s {
	case StateDormant:
		return "dormant"
	case StateSeekingExit:
		return "seeking_exit"
	case StateReturningForItem:
		return "returning_for_item"
	case StateHelpingDistressed:
		return "helping"
	case StateIncapacitated:
		return "incapacitated"
	case StateBeingCarried:
		return "carried"
	case StateAtExit:
		return "at_exit"
	case StateRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Gone reports whether the agent has left the simulation.
func (s AgentState) Gone() bool {
	return s == StateAtExit || s == StateRemoved
}

// Agent is one evacuee. Group and rescue relationships are IDs resolved
// through the Host; they are always updated on both sides together.
type Agent struct {
	ID     AgentID
	Label  string
	Kind   string // archetype name
	Pos    Pos
	Origin Pos

	Traits    Traits
	Health    int
	Conscious bool
	State     AgentState

	goal    Pos
	hasGoal bool

	// Group relationship. members is populated only on leaders.
	leader   AgentID
	members  []AgentID
	isLeader bool

	// Rescue relationship.
	helper AgentID
	helped AgentID

	// Path cursor, owned by this agent.
	path       []Pos
	pathIdx    int
	tripActive bool
	lastDir    Dir

	returningWithGroup bool
	leaderAtExit       bool
	forgetRolled       bool

	// Continuous follower state for the social force model.
	fpos Vec2
	vel  Vec2

	exposure int // ticks spent on hazard cells

	thoughts *ThoughtLog
}

// NewAgent builds a dormant agent at pos with full health.
func NewAgent(id AgentID, label string, pos Pos, traits Traits) *Agent {
	if traits.Mobility < 1 {
		traits.Mobility = 1
	}
	return &Agent{
		ID:        id,
		Label:     label,
		Pos:       pos,
		Origin:    pos,
		Traits:    traits,
		Health:    MaxHealth,
		Conscious: true,
		State:     StateDormant,
		leader:    NoAgent,
		helper:    NoAgent,
		helped:    NoAgent,
		lastDir:   DirNone,
		fpos:      pos.Vec(),
	}
}

// Goal returns the current destination, if any.
func (a *Agent) Goal() (Pos, bool) { return a.goal, a.hasGoal }

// setGoal changes the destination and drops the path cursor so it is
// recomputed on the next move.
func (a *Agent) setGoal(g Pos) {
	if a.hasGoal && a.goal == g {
		return
	}
	a.goal = g
	a.hasGoal = true
	a.clearPath()
}

func (a *Agent) clearGoal() {
	a.hasGoal = false
	a.clearPath()
}

func (a *Agent) clearPath() {
	a.path = nil
	a.pathIdx = 0
	a.tripActive = false
}

// Leader returns the leader handle, NoAgent when ungrouped or leading.
func (a *Agent) Leader() AgentID { return a.leader }

// IsLeader reports whether the agent currently leads a group.
func (a *Agent) IsLeader() bool { return a.isLeader }

// Members returns a copy of the follower list (leaders only).
func (a *Agent) Members() []AgentID {
	out := make([]AgentID, len(a.members))
	copy(out, a.members)
	return out
}

// Helper is the agent carrying this one, if any.
func (a *Agent) Helper() AgentID { return a.helper }

// Helped is the distressed agent this one committed to, if any.
func (a *Agent) Helped() AgentID { return a.helped }

// Grouped reports whether the agent is a leader with followers or a follower.
func (a *Agent) Grouped() bool {
	return a.leader != NoAgent || (a.isLeader && len(a.members) > 0)
}

// ReturningWithGroup is set on followers whose leader went back for an item.
func (a *Agent) ReturningWithGroup() bool { return a.returningWithGroup }

// LeaderAtExit is set on followers whose leader already left the building.
func (a *Agent) LeaderAtExit() bool { return a.leaderAtExit }

// LastDir is the most recent single-step travel direction.
func (a *Agent) LastDir() Dir { return a.lastDir }

// Path returns the remaining cells of the path cursor.
func (a *Agent) Path() []Pos {
	if a.pathIdx >= len(a.path) {
		return nil
	}
	return a.path[a.pathIdx:]
}

// SetPath installs a precomputed path cursor. Used by scripted scenarios.
func (a *Agent) SetPath(cells []Pos) {
	a.path = append([]Pos(nil), cells...)
	a.pathIdx = 0
	a.tripActive = len(cells) > 0
}

// Thoughts exposes the decision trace, nil when tracing is off.
func (a *Agent) Thoughts() *ThoughtLog { return a.thoughts }

func (a *Agent) hasMember(id AgentID) bool {
	for _, m := range a.members {
		if m == id {
			return true
		}
	}
	return false
}

func (a *Agent) removeMember(id AgentID) bool {
	for i, m := range a.members {
		if m == id {
			a.members = append(a.members[:i], a.members[i+1:]...)
			return true
		}
	}
	return false
}

// active is true for agents still taking decisions (conscious and present).
func (a *Agent) active() bool {
	return a.Conscious && !a.State.Gone() && a.State != StateIncapacitated && a.State != StateBeingCarried
}

func (a *Agent) String() string {
	return fmt.Sprintf("%s@%s[%s]", a.Label, a.Pos, a.State)
}
