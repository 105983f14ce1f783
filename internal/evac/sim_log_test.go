package evac

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

type memorySink struct {
	got  []SimLogEntry
	fail error
}

func (s *memorySink) WriteEntry(e SimLogEntry) error {
	if s.fail != nil {
		return s.fail
	}
	s.got = append(s.got, e)
	return nil
}

func TestSimLog_FiltersAndFormat(t *testing.T) {
	sl := NewSimLog(false)
	sl.Add(1, "A0", "state", "activate", "risk 0.60", 0.6)
	sl.Add(2, "A1", "group", "form", "2 members", 0)
	sl.Add(3, "A0", "goal", "reversal", "(8,1) → (0,1)", 0)
	sl.AddVerbose(3, "A0", "move", "position", "(3,1)", 0)

	if n := len(sl.Entries()); n != 3 {
		t.Fatalf("expected verbose entry dropped, got %d entries", n)
	}
	if n := len(sl.FilterAgent("A0")); n != 2 {
		t.Fatalf("expected 2 entries for A0, got %d", n)
	}
	if n := len(sl.FilterTickRange(2, 3)); n != 2 {
		t.Fatalf("expected 2 entries in T=2..3, got %d", n)
	}
	if n := sl.CountCategory("group", ""); n != 1 {
		t.Fatalf("expected 1 group entry, got %d", n)
	}
	if !sl.HasEntry("goal", "reversal", "(0,1)") || sl.HasEntry("goal", "reversal", "(9,9)") {
		t.Fatal("HasEntry substring match is wrong")
	}
	e, ok := sl.LastOf("state", "activate")
	if !ok || e.NumVal != 0.6 {
		t.Fatalf("unexpected LastOf result %+v %v", e, ok)
	}
	line := e.String()
	if !strings.HasPrefix(line, "[T=001] A0") || !strings.Contains(line, "activate") {
		t.Fatalf("unexpected format %q", line)
	}
	if got := strings.Count(sl.FormatRange(3, 3), "\n"); got != 1 {
		t.Fatalf("expected one line for T=3, got %d", got)
	}
}

func TestSimLog_VerboseKeepsPerTickEntries(t *testing.T) {
	sl := NewSimLog(true)
	sl.AddVerbose(1, "A0", "move", "position", "(1,1)", 0)
	if !sl.Verbose() || len(sl.Entries()) != 1 {
		t.Fatal("expected verbose entries to be kept")
	}
}

func TestSimLog_NilIsSafe(t *testing.T) {
	var sl *SimLog
	sl.Add(1, "A0", "state", "x", "y", 0)
	sl.AddVerbose(1, "A0", "state", "x", "y", 0)
	if sl.Verbose() {
		t.Fatal("nil log is never verbose")
	}
}

func TestSimLog_SinkReceivesEntriesAndKeepsFirstError(t *testing.T) {
	sink := &memorySink{}
	sl := NewSimLog(false)
	sl.Attach(sink)
	sl.Add(1, "A0", "state", "spawn", "adult at (1,1)", 0)
	if len(sink.got) != 1 || sink.got[0].Key != "spawn" {
		t.Fatalf("expected the entry forwarded, got %+v", sink.got)
	}

	boom := errors.New("disk full")
	sink.fail = boom
	sl.Add(2, "A0", "state", "exit", "at (9,1)", 0)
	sl.Add(3, "A0", "state", "exit", "again", 0)
	if !errors.Is(sl.Err(), boom) {
		t.Fatalf("expected the sink error kept, got %v", sl.Err())
	}
	if len(sl.Entries()) != 3 {
		t.Fatal("in-memory recording must continue after a sink error")
	}
}

func TestSimLog_AttachReplaysEarlierEntries(t *testing.T) {
	sl := NewSimLog(false)
	sl.Add(0, "A0", "state", "spawn", "adult at (1,1)", 0)
	sl.Add(0, "A1", "state", "spawn", "child at (2,1)", 0)

	sink := &memorySink{}
	sl.Attach(sink)
	sl.Add(1, "A0", "state", "activate", "alarm", 0)
	if len(sink.got) != 3 {
		t.Fatalf("expected 3 entries in the sink, got %d", len(sink.got))
	}
	if sink.got[0].Agent != "A0" || sink.got[1].Agent != "A1" || sink.got[2].Key != "activate" {
		t.Fatalf("expected recorded order kept, got %+v", sink.got)
	}

	failing := &memorySink{fail: errors.New("read-only")}
	late := NewSimLog(false)
	late.Add(0, "A0", "state", "spawn", "adult at (1,1)", 0)
	late.Attach(failing)
	if late.Err() == nil {
		t.Fatal("expected a replay failure to be kept")
	}
}

func TestWorld_SinkSeesTheRun(t *testing.T) {
	sink := &memorySink{}
	w := mustWorld(t,
		WithPlan(openRoom(8, 3, P(7, 1))),
		WithConfig(quietConfig()),
		WithSink(sink),
		WithTraitsAgent("adult", plainTraits(), 2, 1),
	)
	evacuate(w.Agents()[0], P(7, 1))
	w.RunTicks(6)
	if len(sink.got) != len(w.Log().Entries()) {
		t.Fatalf("sink saw %d entries, log has %d", len(sink.got), len(w.Log().Entries()))
	}
	if w.Log().Err() != nil {
		t.Fatal(w.Log().Err())
	}
}

func TestThoughtLog_RingBuffer(t *testing.T) {
	tl := NewThoughtLog()
	for i := 0; i < thoughtLogEntries+5; i++ {
		tl.Add(i, fmt.Sprintf("thought %d", i))
	}
	if tl.Len() != thoughtLogEntries {
		t.Fatalf("expected %d entries, got %d", thoughtLogEntries, tl.Len())
	}
	recent := tl.Recent()
	if recent[0].Tick != 5 || recent[len(recent)-1].Tick != thoughtLogEntries+4 {
		t.Fatalf("expected oldest-first from T=5, got T=%d..%d", recent[0].Tick, recent[len(recent)-1].Tick)
	}
}

func TestThoughtLog_FilledByEngineWhenTracing(t *testing.T) {
	cfg := quietConfig()
	cfg.Trace = true
	w := mustWorld(t,
		WithPlan(openRoom(8, 3, P(7, 1))),
		WithConfig(cfg),
		WithTraitsAgent("adult", plainTraits(), 5, 1),
	)
	a := w.Agents()[0]
	evacuate(a, P(7, 1))
	w.RunTicks(2)
	if a.Thoughts() == nil || a.Thoughts().Len() == 0 {
		t.Fatal("expected a decision trace")
	}
	last := a.Thoughts().Recent()[a.Thoughts().Len()-1]
	if !strings.HasPrefix(last.Message, "exit:") {
		t.Fatalf("expected the exit as last thought, got %q", last.Message)
	}
}
