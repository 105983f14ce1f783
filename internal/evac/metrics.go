package evac

import "fmt"

// Metrics is the shared counter accumulator. The core only ever increments
// these fields as side effects of state transitions; nothing in the core
// reads them back.
type Metrics struct {
	AgentsRemaining   int `json:"agents_remaining"`
	ReachedExit       int `json:"reached_exit"`
	Deaths            int `json:"deaths"`
	Unconscious       int `json:"unconscious"`
	GroupsFormed      int `json:"groups_formed"`
	GroupSplits       int `json:"group_splits"`
	GroupLeaves       int `json:"group_leaves"`
	GroupMerges       int `json:"group_merges"`
	GroupsDisbanded   int `json:"groups_disbanded"`
	Successions       int `json:"successions"`
	Pushed            int `json:"pushed"`
	Rescues           int `json:"rescues"`
	ItemReturns       int `json:"item_returns"`
	GoalReassignments int `json:"goal_reassignments"`
}

// Snapshot returns a copy for reporting.
func (m *Metrics) Snapshot() Metrics { return *m }

func (m Metrics) String() string {
	return fmt.Sprintf("remaining=%d exited=%d deaths=%d unconscious=%d groups=%d splits=%d leaves=%d merges=%d disbanded=%d successions=%d pushed=%d rescues=%d item_returns=%d reroutes=%d",
		m.AgentsRemaining, m.ReachedExit, m.Deaths, m.Unconscious, m.GroupsFormed,
		m.GroupSplits, m.GroupLeaves, m.GroupMerges, m.GroupsDisbanded, m.Successions,
		m.Pushed, m.Rescues, m.ItemReturns, m.GoalReassignments)
}
