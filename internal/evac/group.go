package evac

import (
	"errors"
	"fmt"
	"sort"
)

// InterruptKind names the errand that pulls an agent away from its exit.
type InterruptKind int

const (
	InterruptForgotItem InterruptKind = iota
	InterruptDistress
)

func (k InterruptKind) String() string {
	switch k {
	case InterruptForgotItem:
		return "forgot_item"
	case InterruptDistress:
		return "distress"
	default:
		return "unknown"
	}
}

// A group has no record of its own: it is a leader plus the members slice
// on that leader, mirrored by each member's leader handle. Every function
// here updates both sides before returning.

// groupable is true for agents free to be recruited or to lead a new group.
func (e *Engine) groupable(a *Agent) bool {
	if !a.active() || a.leader != NoAgent || len(a.members) > 0 {
		return false
	}
	if a.helped != NoAgent || a.helper != NoAgent {
		return false
	}
	return a.State == StateDormant || a.State == StateSeekingExit
}

// activate moves a dormant agent into evacuation with its own goal.
func (e *Engine) activate(a *Agent, why string) {
	if a.State != StateDormant {
		return
	}
	a.State = StateSeekingExit
	if _, ok := a.Goal(); !ok {
		e.rederiveGoal(a)
	}
	g, _ := a.Goal()
	e.event(a, "state", "activate", "%s, goal %s", why, g)
}

// TryForm looks for a group around a. The strongest eligible leader among
// the free agents within GroupRadius recruits the other free agents above
// the collaboration threshold. Candidates are scanned nearest first, so the
// closer agent wins a leadership tie and is recruited first. Returns true if
// a group was formed.
func (e *Engine) TryForm(a *Agent) bool {
	if !e.groupable(a) {
		return false
	}
	var pool []*Agent
	for _, c := range e.host.AgentsWithinRadius(a.Pos, e.cfg.GroupRadius) {
		if e.groupable(c) {
			pool = append(pool, c)
		}
	}
	sort.SliceStable(pool, func(i, j int) bool {
		return Chebyshev(a.Pos, pool[i].Pos) < Chebyshev(a.Pos, pool[j].Pos)
	})

	var leader *Agent
	for _, c := range pool {
		if c.Traits.Leadership < e.cfg.LeaderMinLeadership {
			continue
		}
		if leader == nil || c.Traits.Leadership > leader.Traits.Leadership {
			leader = c
		}
	}
	if leader == nil {
		return false
	}

	var recruits []*Agent
	for _, c := range pool {
		if c == leader || c.Traits.Collaboration <= e.cfg.CollaborationThreshold {
			continue
		}
		if 1+len(recruits) >= e.cfg.MaxGroupSize {
			break
		}
		recruits = append(recruits, c)
	}
	if len(recruits) == 0 {
		return false
	}

	e.activate(leader, "elected leader")
	for _, r := range recruits {
		e.Join(leader, r)
	}
	e.metrics.GroupsFormed++
	e.event(leader, "group", "form", "%d members", len(leader.members))
	return true
}

// recruit lets an existing leader pick up free neighbours while there is room.
func (e *Engine) recruit(leader *Agent) {
	if leader.State != StateSeekingExit || leader.helped != NoAgent {
		return
	}
	for _, c := range e.host.AgentsWithinRadius(leader.Pos, e.cfg.GroupRadius) {
		if 1+len(leader.members) >= e.cfg.MaxGroupSize {
			return
		}
		if c == leader || !e.groupable(c) || c.Traits.Collaboration <= e.cfg.CollaborationThreshold {
			continue
		}
		if e.Join(leader, c) {
			e.event(leader, "group", "recruit", "%s", c.Label)
		}
	}
}

// Join adds member to leader's group. Both must be free of conflicting
// membership; returns false and changes nothing otherwise.
func (e *Engine) Join(leader, member *Agent) bool {
	if leader == member || leader.leader != NoAgent {
		return false
	}
	if member.leader != NoAgent || len(member.members) > 0 {
		return false
	}
	member.leader = leader.ID
	member.leaderAtExit = false
	leader.members = append(leader.members, member.ID)
	leader.isLeader = true

	e.activate(member, "recruited by "+leader.Label)
	if g, ok := leader.Goal(); ok {
		member.setGoal(g)
	}
	return true
}

// detach removes member from its leader on both sides without counting it
// as a voluntary leave.
func (e *Engine) detach(member *Agent) {
	if member.leader == NoAgent {
		return
	}
	if l := e.host.Agent(member.leader); l != nil {
		l.removeMember(member.ID)
		l.isLeader = len(l.members) > 0
	}
	member.leader = NoAgent
	member.returningWithGroup = false
}

// Leave takes member out of its group. The member picks its own goal again
// unless it is already on an errand.
func (e *Engine) Leave(member *Agent) {
	if member.leader == NoAgent {
		return
	}
	from := member.leader
	e.detach(member)
	e.metrics.GroupLeaves++
	if member.State == StateSeekingExit {
		e.rederiveGoal(member)
	}
	e.event(member, "group", "leave", "left A%d", from)
}

// Disband releases every member of leader's group.
func (e *Engine) Disband(leader *Agent, reason string) {
	if len(leader.members) == 0 {
		return
	}
	n := len(leader.members)
	for _, id := range leader.members {
		m := e.host.Agent(id)
		if m == nil {
			continue
		}
		m.leader = NoAgent
		m.returningWithGroup = false
		if m.State == StateSeekingExit {
			e.rederiveGoal(m)
		}
	}
	leader.members = nil
	leader.isLeader = false
	e.metrics.GroupsDisbanded++
	e.event(leader, "group", "disband", "%s (%d released)", reason, n)
}

// ElectSuccessor hands leader's group to its member with the highest
// leadership (earliest joined on ties). The old leader ends up ungrouped.
// Returns the successor, or NoAgent if the group was empty.
func (e *Engine) ElectSuccessor(leader *Agent) AgentID {
	var succ *Agent
	for _, id := range leader.members {
		m := e.host.Agent(id)
		if m == nil || !m.active() {
			continue
		}
		if succ == nil || m.Traits.Leadership > succ.Traits.Leadership {
			succ = m
		}
	}
	if succ == nil {
		e.Disband(leader, "no successor")
		return NoAgent
	}

	rest := make([]AgentID, 0, len(leader.members)-1)
	for _, id := range leader.members {
		if id != succ.ID {
			rest = append(rest, id)
		}
	}
	leader.members = nil
	leader.isLeader = false

	succ.leader = NoAgent
	succ.returningWithGroup = false
	for _, id := range rest {
		m := e.host.Agent(id)
		if m == nil {
			continue
		}
		m.leader = succ.ID
		succ.members = append(succ.members, id)
	}
	succ.isLeader = len(succ.members) > 0
	if g, ok := succ.Goal(); !ok || e.host.Goals().Kind(g) == GoalOther {
		e.rederiveGoal(succ)
	}

	e.metrics.Successions++
	e.event(succ, "group", "succession", "%s → %s (%d members)", leader.Label, succ.Label, len(succ.members))
	return succ.ID
}

// Split partitions leader's members by empathy. Members at or above the
// threshold stay and adopt goal; for an item errand they are flagged as
// returning with the group. The rest break away and elect their own leader.
func (e *Engine) Split(leader *Agent, goal Pos, kind InterruptKind) (stayers, leavers []*Agent) {
	for _, id := range leader.members {
		m := e.host.Agent(id)
		if m == nil {
			continue
		}
		if m.Traits.Empathy >= e.cfg.EmpathyThreshold {
			stayers = append(stayers, m)
		} else {
			leavers = append(leavers, m)
		}
	}
	for _, m := range leavers {
		e.detach(m)
	}
	for _, m := range stayers {
		m.setGoal(goal)
		m.returningWithGroup = kind == InterruptForgotItem
	}
	if len(leavers) == 0 {
		return stayers, nil
	}
	e.metrics.GroupSplits++
	e.event(leader, "group", "split", "%s: %d stay, %d break away", kind, len(stayers), len(leavers))
	e.formSubgroup(leavers)
	return stayers, leavers
}

// formSubgroup runs leader election over agents that just broke away. An
// ineligible candidate goes solo and the election reruns over the rest.
func (e *Engine) formSubgroup(group []*Agent) {
	if len(group) == 0 {
		return
	}
	best := 0
	for i, a := range group {
		if a.Traits.Leadership > group[best].Traits.Leadership {
			best = i
		}
	}
	cand := group[best]
	rest := make([]*Agent, 0, len(group)-1)
	rest = append(rest, group[:best]...)
	rest = append(rest, group[best+1:]...)

	if cand.State == StateSeekingExit {
		e.rederiveGoal(cand)
	}
	if len(rest) == 0 {
		return
	}
	if cand.Traits.Leadership < e.cfg.LeaderMinLeadership || !cand.active() {
		e.formSubgroup(rest)
		return
	}
	for _, m := range rest {
		if 1+len(cand.members) >= e.cfg.MaxGroupSize {
			e.rederiveGoal(m)
			continue
		}
		e.Join(cand, m)
	}
	e.event(cand, "group", "subgroup", "leads %d", len(cand.members))
}

// MergeInto folds src's group (src included) into dst's. Refused when the
// combined group would exceed MaxGroupSize.
func (e *Engine) MergeInto(dst, src *Agent) bool {
	if dst == src || dst.leader != NoAgent || src.leader != NoAgent {
		return false
	}
	if 2+len(dst.members)+len(src.members) > e.cfg.MaxGroupSize {
		return false
	}
	moved := src.members
	src.members = nil
	src.isLeader = false

	src.leader = dst.ID
	dst.members = append(dst.members, src.ID)
	for _, id := range moved {
		if m := e.host.Agent(id); m != nil {
			m.leader = dst.ID
			dst.members = append(dst.members, id)
		}
	}
	dst.isLeader = true
	if g, ok := dst.Goal(); ok {
		src.setGoal(g)
		for _, id := range moved {
			if m := e.host.Agent(id); m != nil {
				m.setGoal(g)
			}
		}
	}
	e.metrics.GroupMerges++
	e.event(dst, "group", "merge", "absorbed %s (now %d members)", src.Label, len(dst.members))
	return true
}

// tryMerge joins leader's group with a nearby one if both are heading out
// and the result fits. The stronger leader (lower ID on ties) keeps command.
func (e *Engine) tryMerge(leader *Agent) {
	if !e.cfg.MergeGroups || leader.State != StateSeekingExit || leader.helped != NoAgent {
		return
	}
	for _, c := range e.host.AgentsWithinRadius(leader.Pos, e.cfg.GroupRadius) {
		if c == leader || len(c.members) == 0 || c.leader != NoAgent {
			continue
		}
		if c.State != StateSeekingExit || c.helped != NoAgent {
			continue
		}
		dst, src := leader, c
		if c.Traits.Leadership > leader.Traits.Leadership ||
			(c.Traits.Leadership == leader.Traits.Leadership && c.ID < leader.ID) {
			dst, src = c, leader
		}
		if e.MergeInto(dst, src) {
			return
		}
	}
}

// LeaderInterrupt adjusts leader's group before the leader turns to an
// errand heading for goal. With GroupLeaveChance the leader walks away from
// the group: a lone follower is released, a larger group gets a successor.
// Otherwise the group splits by empathy.
func (e *Engine) LeaderInterrupt(leader *Agent, kind InterruptKind, goal Pos) {
	if len(leader.members) == 0 {
		return
	}
	if e.rng.Float64() < e.cfg.GroupLeaveChance {
		if len(leader.members) == 1 {
			e.Disband(leader, kind.String())
		} else {
			e.ElectSuccessor(leader)
		}
		e.metrics.GroupLeaves++
		e.event(leader, "group", "leader_leave", "%s", kind)
		return
	}
	e.Split(leader, goal, kind)
}

// FollowerInterrupt is the follower-side counterpart. With GroupLeaveChance
// the follower simply leaves; otherwise it takes the empathetic part of the
// rest of the group along on its errand.
func (e *Engine) FollowerInterrupt(f *Agent, kind InterruptKind, goal Pos) {
	leader := e.agent(f.leader)
	if leader == nil {
		e.detach(f)
		return
	}
	if e.rng.Float64() < e.cfg.GroupLeaveChance {
		e.Leave(f)
		return
	}

	var takers []*Agent
	for _, id := range leader.members {
		if id == f.ID {
			continue
		}
		if m := e.host.Agent(id); m != nil && m.Traits.Empathy >= e.cfg.EmpathyThreshold {
			takers = append(takers, m)
		}
	}
	e.detach(f)
	if len(takers) == 0 {
		e.metrics.GroupLeaves++
		e.event(f, "group", "leave", "%s, nobody follows", kind)
		return
	}
	for _, m := range takers {
		e.detach(m)
		if 1+len(f.members) >= e.cfg.MaxGroupSize {
			e.rederiveGoal(m)
			continue
		}
		e.Join(f, m)
		m.setGoal(goal)
		m.returningWithGroup = kind == InterruptForgotItem
	}
	e.metrics.GroupSplits++
	e.event(f, "group", "split", "%s: takes %d from %s", kind, len(f.members), leader.Label)
}

// Validate repairs relationships that no longer hold on both sides. A
// follower with a stale leader goes back to picking its own goal, a leader
// drops members that no longer point at it, and half-broken rescue links are
// cleared. Returns true if anything changed.
func (e *Engine) Validate(a *Agent) bool {
	changed := false
	if a.leader != NoAgent {
		l := e.agent(a.leader)
		if l == nil || l.leader != NoAgent || !l.hasMember(a.ID) {
			e.detach(a)
			if a.State == StateSeekingExit {
				e.rederiveGoal(a)
			}
			e.event(a, "group", "stale_leader", "reverting to own goal")
			changed = true
		}
	}
	if len(a.members) > 0 {
		kept := a.members[:0]
		for _, id := range a.members {
			m := e.host.Agent(id)
			if m != nil && !m.State.Gone() && m.leader == a.ID {
				kept = append(kept, id)
				continue
			}
			changed = true
		}
		a.members = kept
	}
	a.isLeader = len(a.members) > 0

	if a.helped != NoAgent {
		v := e.agent(a.helped)
		if v == nil || v.helper != a.ID {
			e.abandonRescue(a, "rescue link lost")
			changed = true
		}
	}
	if a.helper != NoAgent {
		h := e.agent(a.helper)
		if h == nil || h.helped != a.ID {
			a.helper = NoAgent
			if a.State == StateBeingCarried {
				a.State = StateIncapacitated
			}
			changed = true
		}
	}
	return changed
}

// releaseRole drops every relationship a holds, used when a is knocked out
// or dies. Its group carries on under a successor.
func (e *Engine) releaseRole(a *Agent) {
	e.detach(a)
	switch {
	case len(a.members) > 1:
		e.ElectSuccessor(a)
	case len(a.members) == 1:
		e.Disband(a, "leader down")
	}
	if a.helped != NoAgent {
		if v := e.host.Agent(a.helped); v != nil && v.helper == a.ID {
			v.helper = NoAgent
			if v.State == StateBeingCarried {
				v.State = StateIncapacitated
			}
		}
		a.helped = NoAgent
	}
	if a.helper != NoAgent {
		if h := e.host.Agent(a.helper); h != nil && h.helped == a.ID {
			h.helped = NoAgent
			if h.State == StateHelpingDistressed {
				h.State = StateSeekingExit
			}
			if !h.State.Gone() {
				e.rederiveGoal(h)
			}
		}
		a.helper = NoAgent
	}
}

// releaseAtExit lets a departing leader's followers go, each heading for
// its own nearest exit.
func (e *Engine) releaseAtExit(leader *Agent) {
	if len(leader.members) == 0 {
		return
	}
	for _, id := range leader.members {
		m := e.host.Agent(id)
		if m == nil {
			continue
		}
		m.leader = NoAgent
		m.leaderAtExit = true
		m.returningWithGroup = false
		if g, ok := e.host.Goals().NearestExit(m.Pos); ok {
			m.setGoal(g)
		}
	}
	leader.members = nil
	leader.isLeader = false
	e.metrics.GroupsDisbanded++
}

// ErrGroupInvariant is wrapped by every CheckGroupInvariants failure.
var ErrGroupInvariant = errors.New("group invariant violated")

// CheckGroupInvariants verifies leader/member symmetry, single membership
// and rescue link symmetry across agents.
func CheckGroupInvariants(agents []*Agent) error {
	byID := make(map[AgentID]*Agent, len(agents))
	for _, a := range agents {
		byID[a.ID] = a
	}
	memberOf := make(map[AgentID]AgentID)

	for _, a := range agents {
		if a.State.Gone() {
			if a.leader != NoAgent || len(a.members) > 0 {
				return fmt.Errorf("%w: %s left but still grouped", ErrGroupInvariant, a.Label)
			}
			continue
		}
		if a.isLeader != (len(a.members) > 0) {
			return fmt.Errorf("%w: %s isLeader=%v with %d members", ErrGroupInvariant, a.Label, a.isLeader, len(a.members))
		}
		if a.leader != NoAgent {
			l, ok := byID[a.leader]
			if !ok || l.State.Gone() {
				return fmt.Errorf("%w: %s follows missing leader A%d", ErrGroupInvariant, a.Label, a.leader)
			}
			if !l.hasMember(a.ID) {
				return fmt.Errorf("%w: %s follows %s but is not listed", ErrGroupInvariant, a.Label, l.Label)
			}
			if len(a.members) > 0 {
				return fmt.Errorf("%w: %s both follows and leads", ErrGroupInvariant, a.Label)
			}
		}
		for _, id := range a.members {
			m, ok := byID[id]
			if !ok {
				return fmt.Errorf("%w: %s lists missing member A%d", ErrGroupInvariant, a.Label, id)
			}
			if m.leader != a.ID {
				return fmt.Errorf("%w: %s lists %s whose leader is A%d", ErrGroupInvariant, a.Label, m.Label, m.leader)
			}
			if prev, dup := memberOf[id]; dup {
				return fmt.Errorf("%w: %s listed by A%d and %s", ErrGroupInvariant, m.Label, prev, a.Label)
			}
			memberOf[id] = a.ID
		}
		if a.helped != NoAgent {
			v, ok := byID[a.helped]
			if !ok || v.helper != a.ID {
				return fmt.Errorf("%w: %s helps A%d without a matching helper link", ErrGroupInvariant, a.Label, a.helped)
			}
		}
		if a.helper != NoAgent {
			h, ok := byID[a.helper]
			if !ok || h.helped != a.ID {
				return fmt.Errorf("%w: %s is helped by A%d without a matching link", ErrGroupInvariant, a.Label, a.helper)
			}
		}
	}
	return nil
}
