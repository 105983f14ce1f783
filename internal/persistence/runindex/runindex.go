// Package runindex keeps a SQLite table of finished simulation runs.
package runindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Garsondee/Evac-Sense/internal/evac"
)

// ErrNotFound is returned by Get for an unknown run.
var ErrNotFound = errors.New("runindex: run not found")

// timeLayout keeps a fixed width so recorded_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Run is one indexed simulation run.
type Run struct {
	ID         string
	Scenario   string
	Seed       int64
	Ticks      int
	Agents     int
	EventLog   string // path to the compressed event log, may be empty
	RecordedAt time.Time
	Metrics    evac.Metrics
}

// Index is a handle on the run database.
type Index struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the database at path.
func Open(path string) (*Index, error) {
	if path == "" {
		return nil, fmt.Errorf("runindex: empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("runindex: pragmas: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("runindex: schema: %w", err)
	}
	return &Index{db: db, now: time.Now}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			scenario TEXT NOT NULL,
			seed INTEGER NOT NULL,
			ticks INTEGER NOT NULL,
			agents INTEGER NOT NULL,
			event_log TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			remaining INTEGER NOT NULL,
			exited INTEGER NOT NULL,
			deaths INTEGER NOT NULL,
			unconscious INTEGER NOT NULL,
			groups_formed INTEGER NOT NULL,
			group_splits INTEGER NOT NULL,
			group_leaves INTEGER NOT NULL,
			group_merges INTEGER NOT NULL,
			groups_disbanded INTEGER NOT NULL,
			successions INTEGER NOT NULL,
			pushed INTEGER NOT NULL,
			rescues INTEGER NOT NULL,
			item_returns INTEGER NOT NULL,
			goal_reassignments INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_scenario ON runs(scenario, recorded_at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// NewRunID returns a fresh random run identifier.
func NewRunID() string { return uuid.NewString() }

// Close closes the database.
func (x *Index) Close() error { return x.db.Close() }

// Record stores r. An empty ID is filled with a new one, a zero RecordedAt
// with the current time. The stored run is returned.
func (x *Index) Record(ctx context.Context, r Run) (Run, error) {
	if r.ID == "" {
		r.ID = NewRunID()
	} else if _, err := uuid.Parse(r.ID); err != nil {
		return r, fmt.Errorf("runindex: bad run id %q: %w", r.ID, err)
	}
	if r.RecordedAt.IsZero() {
		r.RecordedAt = x.now()
	}
	r.RecordedAt = r.RecordedAt.UTC()
	m := r.Metrics
	_, err := x.db.ExecContext(ctx, `INSERT INTO runs (
			id, scenario, seed, ticks, agents, event_log, recorded_at,
			remaining, exited, deaths, unconscious, groups_formed, group_splits,
			group_leaves, group_merges, groups_disbanded, successions, pushed,
			rescues, item_returns, goal_reassignments
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.Scenario, r.Seed, r.Ticks, r.Agents, r.EventLog,
		r.RecordedAt.Format(timeLayout),
		m.AgentsRemaining, m.ReachedExit, m.Deaths, m.Unconscious, m.GroupsFormed, m.GroupSplits,
		m.GroupLeaves, m.GroupMerges, m.GroupsDisbanded, m.Successions, m.Pushed,
		m.Rescues, m.ItemReturns, m.GoalReassignments,
	)
	if err != nil {
		return r, fmt.Errorf("runindex: insert %s: %w", r.ID, err)
	}
	return r, nil
}

const selectRun = `SELECT id, scenario, seed, ticks, agents, event_log, recorded_at,
	remaining, exited, deaths, unconscious, groups_formed, group_splits,
	group_leaves, group_merges, groups_disbanded, successions, pushed,
	rescues, item_returns, goal_reassignments FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		r  Run
		at string
	)
	m := &r.Metrics
	err := s.Scan(&r.ID, &r.Scenario, &r.Seed, &r.Ticks, &r.Agents, &r.EventLog, &at,
		&m.AgentsRemaining, &m.ReachedExit, &m.Deaths, &m.Unconscious, &m.GroupsFormed, &m.GroupSplits,
		&m.GroupLeaves, &m.GroupMerges, &m.GroupsDisbanded, &m.Successions, &m.Pushed,
		&m.Rescues, &m.ItemReturns, &m.GoalReassignments)
	if err != nil {
		return r, err
	}
	r.RecordedAt, err = time.Parse(timeLayout, at)
	return r, err
}

// Get returns the run with id.
func (x *Index) Get(ctx context.Context, id string) (Run, error) {
	r, err := scanRun(x.db.QueryRowContext(ctx, selectRun+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrNotFound
	}
	return r, err
}

// List returns runs newest first. An empty scenario matches all; limit <= 0
// means no limit.
func (x *Index) List(ctx context.Context, scenario string, limit int) ([]Run, error) {
	q := selectRun
	var args []any
	if scenario != "" {
		q += ` WHERE scenario = ?`
		args = append(args, scenario)
	}
	q += ` ORDER BY recorded_at DESC, id`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := x.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Stats aggregates the runs of one scenario.
type Stats struct {
	Runs       int
	AvgExited  float64
	AvgDeaths  float64
	AvgRescues float64
	MaxDeaths  int
}

// ScenarioStats summarises every run of scenario.
func (x *Index) ScenarioStats(ctx context.Context, scenario string) (Stats, error) {
	var s Stats
	var maxDeaths sql.NullInt64
	err := x.db.QueryRowContext(ctx, `SELECT COUNT(*),
			COALESCE(AVG(exited), 0), COALESCE(AVG(deaths), 0), COALESCE(AVG(rescues), 0), MAX(deaths)
		FROM runs WHERE scenario = ?`, scenario,
	).Scan(&s.Runs, &s.AvgExited, &s.AvgDeaths, &s.AvgRescues, &maxDeaths)
	if err != nil {
		return s, err
	}
	s.MaxDeaths = int(maxDeaths.Int64)
	return s, nil
}
