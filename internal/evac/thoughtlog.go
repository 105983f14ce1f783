package evac

const thoughtLogEntries = 32

// ThoughtEntry is a single line in an agent's decision trace.
type ThoughtEntry struct {
	Tick    int
	Message string
}

// ThoughtLog is a ring buffer of recent decisions for one agent.
type ThoughtLog struct {
	entries []ThoughtEntry
	head    int
	count   int
}

// NewThoughtLog creates a thought log with a fixed capacity.
func NewThoughtLog() *ThoughtLog {
	return &ThoughtLog{
		entries: make([]ThoughtEntry, thoughtLogEntries),
	}
}

// Add appends an entry, overwriting the oldest once full.
func (tl *ThoughtLog) Add(tick int, msg string) {
	tl.entries[tl.head] = ThoughtEntry{Tick: tick, Message: msg}
	tl.head = (tl.head + 1) % thoughtLogEntries
	if tl.count < thoughtLogEntries {
		tl.count++
	}
}

// Recent returns entries in chronological order (oldest first).
func (tl *ThoughtLog) Recent() []ThoughtEntry {
	result := make([]ThoughtEntry, tl.count)
	for i := 0; i < tl.count; i++ {
		idx := (tl.head - tl.count + i + thoughtLogEntries) % thoughtLogEntries
		result[i] = tl.entries[idx]
	}
	return result
}

// Len returns the number of retained entries.
func (tl *ThoughtLog) Len() int { return tl.count }
