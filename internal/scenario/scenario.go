// Package scenario loads evacuation scenarios from YAML and turns them into
// world options.
package scenario

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Garsondee/Evac-Sense/internal/evac"
	"github.com/Garsondee/Evac-Sense/internal/floorplan"
)

// ErrInvalid marks a scenario that failed schema or semantic validation.
var ErrInvalid = errors.New("scenario: invalid")

// DefaultTicks is used when a scenario does not set a run length.
const DefaultTicks = 600

// Scenario is one building, its occupants and its scripted hazards.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Seed        int64  `yaml:"seed"`
	Ticks       int    `yaml:"ticks"`
	Plan        string `yaml:"plan"`

	// Config starts from evac.DefaultConfig; keys present in the file
	// override single fields.
	Config evac.Config `yaml:"config"`

	Population *Population `yaml:"population"`
	Agents     []Agent     `yaml:"agents"`
	Groups     []Group     `yaml:"groups"`
	Fires      []Cell      `yaml:"fires"`
	Smoke      []Cell      `yaml:"smoke"`

	plan *floorplan.Plan
}

// Population spawns Count agents on random free cells.
type Population struct {
	Count      int      `yaml:"count"`
	Archetypes []string `yaml:"archetypes"`
	Spread     float64  `yaml:"spread"`
}

// Agent places one archetype at a fixed cell.
type Agent struct {
	Archetype string `yaml:"archetype"`
	At        Cell   `yaml:"at"`
}

// Group binds agents by their index in the agents list.
type Group struct {
	Leader  int   `yaml:"leader"`
	Members []int `yaml:"members"`
}

// Cell is an [x, y] pair.
type Cell [2]int

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse validates raw YAML against the scenario schema and decodes it.
func Parse(raw []byte) (*Scenario, error) {
	if err := validateSchema(raw); err != nil {
		return nil, err
	}
	s := &Scenario{Config: evac.DefaultConfig()}
	if err := yaml.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := s.normalize(); err != nil {
		return nil, err
	}
	return s, nil
}

// normalize fills defaults and checks what the schema cannot express.
func (s *Scenario) normalize() error {
	if s.Ticks == 0 {
		s.Ticks = DefaultTicks
	}
	plan, err := floorplan.Parse(s.Plan)
	if err != nil {
		return fmt.Errorf("%w: plan: %w", ErrInvalid, err)
	}
	s.plan = plan

	if s.Population != nil {
		if len(s.Population.Archetypes) == 0 {
			s.Population.Archetypes = evac.ArchetypeNames()
		}
		for _, name := range s.Population.Archetypes {
			if _, err := evac.LookupArchetype(name); err != nil {
				return fmt.Errorf("%w: population: %w", ErrInvalid, err)
			}
		}
	}
	for i, a := range s.Agents {
		if _, err := evac.LookupArchetype(a.Archetype); err != nil {
			return fmt.Errorf("%w: agents[%d]: %w", ErrInvalid, i, err)
		}
		if err := s.checkCell(a.At); err != nil {
			return fmt.Errorf("%w: agents[%d]: %w", ErrInvalid, i, err)
		}
	}
	for i, g := range s.Groups {
		for _, idx := range append([]int{g.Leader}, g.Members...) {
			if idx >= len(s.Agents) {
				return fmt.Errorf("%w: groups[%d]: agent %d not defined", ErrInvalid, i, idx)
			}
		}
	}
	for _, cells := range [][]Cell{s.Fires, s.Smoke} {
		for _, c := range cells {
			if err := s.checkCell(c); err != nil {
				return fmt.Errorf("%w: hazard: %w", ErrInvalid, err)
			}
		}
	}
	return nil
}

func (s *Scenario) checkCell(c Cell) error {
	if !s.plan.IsWalkable(c[0], c[1]) {
		return fmt.Errorf("cell (%d,%d) is not walkable", c[0], c[1])
	}
	return nil
}

// FloorPlan returns the parsed plan.
func (s *Scenario) FloorPlan() *floorplan.Plan { return s.plan }

// Options converts the scenario into world options. Fixed agents are
// spawned before the random population so group indices equal agent IDs.
func (s *Scenario) Options(seed int64) []evac.WorldOption {
	opts := []evac.WorldOption{
		evac.WithPlan(s.plan),
		evac.WithConfig(s.Config),
		evac.WithSeed(seed),
	}
	for _, a := range s.Agents {
		opts = append(opts, evac.WithAgent(a.Archetype, a.At[0], a.At[1]))
	}
	if s.Population != nil && s.Population.Count > 0 {
		opts = append(opts, evac.WithPopulation(s.Population.Count, s.Population.Archetypes, s.Population.Spread))
	}
	for _, g := range s.Groups {
		members := make([]evac.AgentID, len(g.Members))
		for i, m := range g.Members {
			members[i] = evac.AgentID(m)
		}
		opts = append(opts, evac.WithGroup(evac.AgentID(g.Leader), members...))
	}
	for _, c := range s.Fires {
		opts = append(opts, evac.WithFire(c[0], c[1]))
	}
	for _, c := range s.Smoke {
		opts = append(opts, evac.WithSmoke(c[0], c[1]))
	}
	return opts
}

// Build creates a world for seed. Extra options are applied after the
// scenario's own, so they can attach sinks or change verbosity.
func (s *Scenario) Build(seed int64, extra ...evac.WorldOption) (*evac.World, error) {
	w, err := evac.NewWorld(append(s.Options(seed), extra...)...)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	return w, nil
}
