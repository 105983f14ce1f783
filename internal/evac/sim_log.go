package evac

import (
	"fmt"
	"strings"
)

// SimLogEntry is one recorded event during a simulation.
type SimLogEntry struct {
	Tick     int     `json:"tick"`
	Agent    string  `json:"agent"`    // label e.g. "A3", or "--" for global events
	Category string  `json:"category"` // state, goal, group, move, hazard, collision, rescue, stats
	Key      string  `json:"key"`      // specific event name within the category
	Value    string  `json:"value"`    // human-readable detail
	NumVal   float64 `json:"num,omitempty"`
}

// String formats the entry as a fixed-width log line.
//
//	[T=042] A3   group     split            A1 → A3 (2 members)
func (e SimLogEntry) String() string {
	return fmt.Sprintf("[T=%03d] %-4s %-9s %-16s %s",
		e.Tick, e.Agent, e.Category, e.Key, e.Value)
}

// EntrySink receives every entry as it is recorded.
type EntrySink interface {
	WriteEntry(SimLogEntry) error
}

// SimLog collects structured events. It is unbounded and machine-readable.
type SimLog struct {
	entries []SimLogEntry
	verbose bool

	sink    EntrySink
	sinkErr error
}

// NewSimLog creates a SimLog. If verbose is true, per-tick position and
// health entries are also recorded.
func NewSimLog(verbose bool) *SimLog {
	return &SimLog{verbose: verbose}
}

// Attach replays the entries recorded so far to sink, then forwards every
// later one. The first sink error is kept and reported by Err; recording
// continues in memory regardless.
func (sl *SimLog) Attach(sink EntrySink) {
	sl.sink = sink
	for _, e := range sl.entries {
		if sl.sinkErr != nil {
			return
		}
		sl.sinkErr = sink.WriteEntry(e)
	}
}

// Err returns the first sink error.
func (sl *SimLog) Err() error { return sl.sinkErr }

// Add records a new entry.
func (sl *SimLog) Add(tick int, agent, category, key, value string, numVal float64) {
	if sl == nil {
		return
	}
	e := SimLogEntry{
		Tick:     tick,
		Agent:    agent,
		Category: category,
		Key:      key,
		Value:    value,
		NumVal:   numVal,
	}
	sl.entries = append(sl.entries, e)
	if sl.sink != nil && sl.sinkErr == nil {
		sl.sinkErr = sl.sink.WriteEntry(e)
	}
}

// AddVerbose records an entry only when verbose mode is on.
func (sl *SimLog) AddVerbose(tick int, agent, category, key, value string, numVal float64) {
	if sl == nil || !sl.verbose {
		return
	}
	sl.Add(tick, agent, category, key, value, numVal)
}

// Verbose reports whether per-tick entries are kept.
func (sl *SimLog) Verbose() bool { return sl != nil && sl.verbose }

// Entries returns all recorded entries.
func (sl *SimLog) Entries() []SimLogEntry {
	return sl.entries
}

// Filter returns entries matching the given category and/or key.
// Pass empty string to match any value for that field.
func (sl *SimLog) Filter(category, key string) []SimLogEntry {
	var out []SimLogEntry
	for _, e := range sl.entries {
		if category != "" && e.Category != category {
			continue
		}
		if key != "" && e.Key != key {
			continue
		}
		out = append(out, e)
	}
	return out
}

// FilterAgent returns entries for a specific agent label.
func (sl *SimLog) FilterAgent(label string) []SimLogEntry {
	var out []SimLogEntry
	for _, e := range sl.entries {
		if e.Agent == label {
			out = append(out, e)
		}
	}
	return out
}

// FilterTickRange returns entries within [fromTick, toTick] inclusive.
func (sl *SimLog) FilterTickRange(fromTick, toTick int) []SimLogEntry {
	var out []SimLogEntry
	for _, e := range sl.entries {
		if e.Tick >= fromTick && e.Tick <= toTick {
			out = append(out, e)
		}
	}
	return out
}

// CountCategory returns how many entries match the given category and key.
func (sl *SimLog) CountCategory(category, key string) int {
	return len(sl.Filter(category, key))
}

// LastOf returns the most recent entry matching category+key, or false if none.
func (sl *SimLog) LastOf(category, key string) (SimLogEntry, bool) {
	entries := sl.Filter(category, key)
	if len(entries) == 0 {
		return SimLogEntry{}, false
	}
	return entries[len(entries)-1], true
}

// HasEntry returns true if at least one entry matches category, key, and value substring.
func (sl *SimLog) HasEntry(category, key, valueSubstr string) bool {
	for _, e := range sl.entries {
		if category != "" && e.Category != category {
			continue
		}
		if key != "" && e.Key != key {
			continue
		}
		if valueSubstr != "" && !strings.Contains(e.Value, valueSubstr) {
			continue
		}
		return true
	}
	return false
}

// Format returns the full log as a single string for t.Log output.
func (sl *SimLog) Format() string {
	var sb strings.Builder
	for _, e := range sl.entries {
		sb.WriteString(e.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// FormatRange returns a log string filtered to a tick range.
func (sl *SimLog) FormatRange(fromTick, toTick int) string {
	var sb strings.Builder
	for _, e := range sl.FilterTickRange(fromTick, toTick) {
		sb.WriteString(e.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Summary returns a short human-readable summary of the simulation state.
func (sl *SimLog) Summary(tick int, agents []*Agent, m Metrics) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- Summary at T=%03d ---\n", tick)

	byState := map[AgentState]int{}
	leaders, followers := 0, 0
	for _, a := range agents {
		byState[a.State]++
		if a.State.Gone() {
			continue
		}
		if a.isLeader && len(a.members) > 0 {
			leaders++
		}
		if a.leader != NoAgent {
			followers++
		}
	}
	sb.WriteString("States: ")
	for s := StateDormant; s <= StateRemoved; s++ {
		if n := byState[s]; n > 0 {
			fmt.Fprintf(&sb, "%s=%d  ", s, n)
		}
	}
	sb.WriteByte('\n')
	fmt.Fprintf(&sb, "Groups: leaders=%d followers=%d\n", leaders, followers)
	fmt.Fprintf(&sb, "Metrics: %s\n", m)
	return sb.String()
}
