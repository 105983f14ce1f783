package evac

import (
	"math"
	"math/rand"

	"github.com/zyedidia/generic/mapset"
)

// HazardCell is one burning and/or smoky cell.
type HazardCell struct {
	Pos       Pos
	Fire      bool
	Smoke     bool
	Intensity float64 // fire strength, 0-1, grows with age
	Density   float64 // smoke density, 0-1, grows with age
	IgnitedAt int     // tick the cell first became hazardous
}

// ramp per tick for intensity and density.
const hazardRamp = 0.1

var fourNeighbours = [4]Pos{{0, -1}, {1, 0}, {0, 1}, {-1, 0}}

// HazardField tracks fire and smoke. Cells are only ever added; neither fire
// nor smoke retreats.
type HazardField struct {
	cfg HazardConfig

	cells map[Pos]*HazardCell
	fire  mapset.Set[Pos]
	smoke mapset.Set[Pos]
	// order is insertion order; all iteration goes through it so spread
	// consumes the RNG identically for a given seed.
	order []Pos

	firstFire int
}

// NewHazardField creates an empty field.
func NewHazardField(cfg HazardConfig) *HazardField {
	if cfg.FireSpreadEvery < 1 {
		cfg.FireSpreadEvery = 1
	}
	if cfg.SmokeSpreadEvery < 1 {
		cfg.SmokeSpreadEvery = 1
	}
	return &HazardField{
		cfg:       cfg,
		cells:     make(map[Pos]*HazardCell),
		fire:      mapset.New[Pos](),
		smoke:     mapset.New[Pos](),
		firstFire: -1,
	}
}

// Ignite starts a fire at a random walkable, non-restricted cell. Returns the
// chosen cell and false if there is no candidate.
func (h *HazardField) Ignite(t Terrain, rng *rand.Rand, tick int) (Pos, bool) {
	var cands []Pos
	for _, c := range t.WalkableCells() {
		if !t.IsRestricted(c) {
			cands = append(cands, c)
		}
	}
	if len(cands) == 0 {
		return Pos{}, false
	}
	p := cands[rng.Intn(len(cands))]
	h.IgniteAt(p, tick)
	return p, true
}

// IgniteAt marks p as burning.
func (h *HazardField) IgniteAt(p Pos, tick int) {
	c := h.touch(p, tick)
	if !c.Fire {
		c.Fire = true
		c.Intensity = hazardRamp
		h.fire.Put(p)
	}
	if h.firstFire < 0 {
		h.firstFire = tick
	}
}

// AddSmoke marks p as smoky.
func (h *HazardField) AddSmoke(p Pos, tick int) {
	c := h.touch(p, tick)
	if !c.Smoke {
		c.Smoke = true
		c.Density = hazardRamp
		h.smoke.Put(p)
	}
}

func (h *HazardField) touch(p Pos, tick int) *HazardCell {
	c, ok := h.cells[p]
	if !ok {
		c = &HazardCell{Pos: p, IgnitedAt: tick}
		h.cells[p] = c
		h.order = append(h.order, p)
	}
	return c
}

// Step advances fire and smoke by one tick.
func (h *HazardField) Step(t Terrain, rng *rand.Rand, tick int) {
	if h.firstFire < 0 {
		if h.cfg.IgniteTick >= 0 && tick >= h.cfg.IgniteTick {
			h.Ignite(t, rng, tick)
		}
		return
	}

	age := tick - h.firstFire
	snapshot := append([]Pos(nil), h.order...)

	for _, p := range snapshot {
		c := h.cells[p]
		if c.Fire {
			c.Intensity = math.Min(1, c.Intensity+hazardRamp)
		}
		if c.Smoke {
			c.Density = math.Min(1, c.Density+hazardRamp)
		}
	}

	if age > 0 && age%h.cfg.FireSpreadEvery == 0 {
		var ignite []Pos
		for _, p := range snapshot {
			if !h.fire.Has(p) {
				continue
			}
			for _, d := range fourNeighbours {
				n := p.Add(d)
				if !t.IsWalkable(n) || h.fire.Has(n) {
					continue
				}
				if rng.Float64() < h.cfg.FireSpreadChance {
					ignite = append(ignite, n)
				}
			}
		}
		for _, n := range ignite {
			h.IgniteAt(n, tick)
		}
	}

	if age < h.cfg.SmokeDelay {
		return
	}
	// Every burning cell also smokes.
	for _, p := range h.order {
		if h.fire.Has(p) && !h.smoke.Has(p) {
			h.AddSmoke(p, tick)
		}
	}
	if (age-h.cfg.SmokeDelay)%h.cfg.SmokeSpreadEvery != 0 {
		return
	}
	var spread []Pos
	for _, p := range snapshot {
		if !h.smoke.Has(p) {
			continue
		}
		for _, dir := range scanOrder {
			n := p.Add(dir.Delta())
			if !t.IsWalkable(n) || h.smoke.Has(n) {
				continue
			}
			if rng.Float64() < h.cfg.SmokeBranch {
				spread = append(spread, n)
			}
		}
	}
	for _, n := range spread {
		h.AddSmoke(n, tick)
	}
}

// IsHazard reports whether p is burning or smoky.
func (h *HazardField) IsHazard(p Pos) bool {
	_, ok := h.cells[p]
	return ok
}

// Cell returns the hazard state at p.
func (h *HazardField) Cell(p Pos) (HazardCell, bool) {
	c, ok := h.cells[p]
	if !ok {
		return HazardCell{}, false
	}
	return *c, true
}

// NearestHazard finds the hazard cell closest to p by Chebyshev distance.
// Ties go to the older cell.
func (h *HazardField) NearestHazard(p Pos) (Pos, int, bool) {
	best, bestD := Pos{}, -1
	for _, q := range h.order {
		d := Chebyshev(p, q)
		if bestD < 0 || d < bestD {
			best, bestD = q, d
			if d == 0 {
				break
			}
		}
	}
	return best, bestD, bestD >= 0
}

// DamageAt is the health lost by an agent standing on p for one tick.
func (h *HazardField) DamageAt(p Pos) int {
	c, ok := h.cells[p]
	if !ok {
		return 0
	}
	dmg := 0.0
	if c.Fire {
		dmg += float64(h.cfg.FireDamage) * (0.5 + 0.5*c.Intensity)
	}
	if c.Smoke {
		dmg += float64(h.cfg.SmokeDamage) * (0.5 + 0.5*c.Density)
	}
	return max(1, int(math.Round(dmg)))
}

// Burning reports whether any fire exists.
func (h *HazardField) Burning() bool { return h.firstFire >= 0 }

// Count returns the number of hazardous cells.
func (h *HazardField) Count() int { return len(h.order) }

// FireCount returns the number of burning cells.
func (h *HazardField) FireCount() int { return h.fire.Size() }

// SmokeCount returns the number of smoky cells.
func (h *HazardField) SmokeCount() int { return h.smoke.Size() }

// Cells returns hazard cells in the order they appeared.
func (h *HazardField) Cells() []Pos {
	return append([]Pos(nil), h.order...)
}
