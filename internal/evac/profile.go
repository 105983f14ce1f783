package evac

import (
	"fmt"
	"sort"
)

// Traits parameterise one agent. Every behavioural variant in the population
// is a different Traits value; there are no agent subtypes.
type Traits struct {
	RiskThreshold float64    // 0-1, perceived risk needed to start evacuating
	Aggression    Aggression // how the agent contests occupied cells
	Mobility      int        // advances only on ticks where tick%Mobility == 0
	Strength      float64    // 0-1, pushing and carrying capability
	Empathy       float64    // 0-1, stays with a group, helps the distressed
	Collaboration float64    // 0-1, willingness to be recruited into a group
	Leadership    float64    // 0-1, leader election score
	ForgetDelay   int        // tick after which the forgot-item roll happens
	ForgetChance  float64    // probability of turning back for an item
}

// archetypes collapses the occupant variants (calm/anxious, fast/slow,
// passive/pushy, staff/visitor) into presets.
var archetypes = map[string]Traits{
	"adult": {
		RiskThreshold: 0.45, Aggression: Assertive, Mobility: 1, Strength: 0.6,
		Empathy: 0.5, Collaboration: 0.6, Leadership: 0.4, ForgetDelay: 20, ForgetChance: 0.05,
	},
	"adult-anxious": {
		RiskThreshold: 0.2, Aggression: Assertive, Mobility: 1, Strength: 0.5,
		Empathy: 0.4, Collaboration: 0.7, Leadership: 0.2, ForgetDelay: 10, ForgetChance: 0.1,
	},
	"adult-calm": {
		RiskThreshold: 0.7, Aggression: Passive, Mobility: 1, Strength: 0.6,
		Empathy: 0.6, Collaboration: 0.5, Leadership: 0.5, ForgetDelay: 30, ForgetChance: 0.15,
	},
	"adult-pushy": {
		RiskThreshold: 0.35, Aggression: Aggressive, Mobility: 1, Strength: 0.8,
		Empathy: 0.1, Collaboration: 0.2, Leadership: 0.3, ForgetDelay: 20, ForgetChance: 0.02,
	},
	"elderly": {
		RiskThreshold: 0.5, Aggression: Passive, Mobility: 3, Strength: 0.25,
		Empathy: 0.7, Collaboration: 0.8, Leadership: 0.3, ForgetDelay: 15, ForgetChance: 0.2,
	},
	"child": {
		RiskThreshold: 0.3, Aggression: Passive, Mobility: 2, Strength: 0.15,
		Empathy: 0.6, Collaboration: 0.9, Leadership: 0.05, ForgetDelay: 40, ForgetChance: 0.05,
	},
	"staff": {
		RiskThreshold: 0.25, Aggression: Assertive, Mobility: 1, Strength: 0.7,
		Empathy: 0.8, Collaboration: 0.6, Leadership: 0.9, ForgetDelay: 0, ForgetChance: 0,
	},
	"mobility-impaired": {
		RiskThreshold: 0.4, Aggression: Passive, Mobility: 4, Strength: 0.2,
		Empathy: 0.5, Collaboration: 0.8, Leadership: 0.2, ForgetDelay: 0, ForgetChance: 0,
	},
	"responder": {
		RiskThreshold: 0.1, Aggression: Assertive, Mobility: 1, Strength: 0.9,
		Empathy: 0.95, Collaboration: 0.4, Leadership: 0.8, ForgetDelay: 0, ForgetChance: 0,
	},
}

// LookupArchetype returns the preset traits for name.
func LookupArchetype(name string) (Traits, error) {
	t, ok := archetypes[name]
	if !ok {
		return Traits{}, fmt.Errorf("unknown archetype %q", name)
	}
	return t, nil
}

// ArchetypeNames lists the presets in sorted order.
func ArchetypeNames() []string {
	names := make([]string, 0, len(archetypes))
	for n := range archetypes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Jitter perturbs the scalar traits by up to ±spread, keeping them in [0,1].
// Used to give a population of one archetype some spread.
func (t Traits) Jitter(spread float64, roll func() float64) Traits {
	j := func(v float64) float64 { return clamp01(v + (roll()*2-1)*spread) }
	t.RiskThreshold = j(t.RiskThreshold)
	t.Strength = j(t.Strength)
	t.Empathy = j(t.Empathy)
	t.Collaboration = j(t.Collaboration)
	t.Leadership = j(t.Leadership)
	return t
}

// CanHelp reports whether the traits qualify an agent to carry someone.
func (t Traits) CanHelp(cfg Config) bool {
	return t.Strength >= cfg.HelpMinStrength && t.Empathy >= cfg.HelpMinEmpathy
}

// CanPush applies the aggression table: passive never pushes, assertive
// pushes only weaker and no-more-aggressive occupants, aggressive always does.
func (t Traits) CanPush(occupant Traits) bool {
	switch t.Aggression {
	case Aggressive:
		return true
	case Assertive:
		return occupant.Aggression <= t.Aggression && occupant.Strength < t.Strength
	default:
		return false
	}
}
