package evac

// FollowMode selects how followers track their leader.
type FollowMode string

const (
	FollowGrid        FollowMode = "grid"         // path-step toward the leader
	FollowSocialForce FollowMode = "social-force" // continuous force integration
)

// ForceConfig holds the social force constants.
type ForceConfig struct {
	AttractK  float64 `yaml:"attract_k" json:"attract_k"`
	RepelK    float64 `yaml:"repel_k" json:"repel_k"`
	ObstacleK float64 `yaml:"obstacle_k" json:"obstacle_k"`
	MaxSpeed  float64 `yaml:"max_speed" json:"max_speed"`
}

// HazardConfig controls ignition, spread and damage of fire and smoke.
type HazardConfig struct {
	IgniteTick       int     `yaml:"ignite_tick" json:"ignite_tick"`
	FireSpreadEvery  int     `yaml:"fire_spread_every" json:"fire_spread_every"`
	FireSpreadChance float64 `yaml:"fire_spread_chance" json:"fire_spread_chance"`
	SmokeDelay       int     `yaml:"smoke_delay" json:"smoke_delay"`
	SmokeSpreadEvery int     `yaml:"smoke_spread_every" json:"smoke_spread_every"`
	SmokeBranch      float64 `yaml:"smoke_branch" json:"smoke_branch"`
	FireDamage       int     `yaml:"fire_damage" json:"fire_damage"`
	SmokeDamage      int     `yaml:"smoke_damage" json:"smoke_damage"`
}

// Config holds the behaviour constants. Zero values are not meaningful; start
// from DefaultConfig.
type Config struct {
	UnconsciousHealth int `yaml:"unconscious_health" json:"unconscious_health"`

	// Risk perception.
	PerceptionRadius int     `yaml:"perception_radius" json:"perception_radius"`
	HazardRiskRadius int     `yaml:"hazard_risk_radius" json:"hazard_risk_radius"`
	AlarmTick        int     `yaml:"alarm_tick" json:"alarm_tick"` // <0 disables the alarm
	AlarmRisk        float64 `yaml:"alarm_risk" json:"alarm_risk"`
	SocialRiskWeight float64 `yaml:"social_risk_weight" json:"social_risk_weight"`

	// Rescue.
	HelpRadius      int     `yaml:"help_radius" json:"help_radius"`
	HelpMinStrength float64 `yaml:"help_min_strength" json:"help_min_strength"`
	HelpMinEmpathy  float64 `yaml:"help_min_empathy" json:"help_min_empathy"`

	// Groups.
	GroupRadius            int     `yaml:"group_radius" json:"group_radius"`
	MaxGroupSize           int     `yaml:"max_group_size" json:"max_group_size"`
	LeaderMinLeadership    float64 `yaml:"leader_min_leadership" json:"leader_min_leadership"`
	CollaborationThreshold float64 `yaml:"collaboration_threshold" json:"collaboration_threshold"`
	EmpathyThreshold       float64 `yaml:"empathy_threshold" json:"empathy_threshold"`
	GroupLeaveChance       float64 `yaml:"group_leave_chance" json:"group_leave_chance"`
	MergeGroups            bool    `yaml:"merge_groups" json:"merge_groups"`

	// Following.
	FollowDistance int         `yaml:"follow_distance" json:"follow_distance"`
	FollowMode     FollowMode  `yaml:"follow_mode" json:"follow_mode"`
	Force          ForceConfig `yaml:"force" json:"force"`

	Hazard HazardConfig `yaml:"hazard" json:"hazard"`

	// Trace keeps a per-agent ThoughtLog.
	Trace bool `yaml:"trace" json:"trace"`
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	return Config{
		UnconsciousHealth: 30,

		PerceptionRadius: 6,
		HazardRiskRadius: 12,
		AlarmTick:        -1,
		AlarmRisk:        0.5,
		SocialRiskWeight: 0.4,

		HelpRadius:      5,
		HelpMinStrength: 0.5,
		HelpMinEmpathy:  0.6,

		GroupRadius:            3,
		MaxGroupSize:           6,
		LeaderMinLeadership:    0.3,
		CollaborationThreshold: 0.5,
		EmpathyThreshold:       0.5,
		GroupLeaveChance:       0.3,
		MergeGroups:            true,

		FollowDistance: 1,
		FollowMode:     FollowGrid,
		Force: ForceConfig{
			AttractK:  0.6,
			RepelK:    0.3,
			ObstacleK: 0.2,
			MaxSpeed:  1.0,
		},

		Hazard: HazardConfig{
			IgniteTick:       0,
			FireSpreadEvery:  4,
			FireSpreadChance: 0.35,
			SmokeDelay:       3,
			SmokeSpreadEvery: 2,
			SmokeBranch:      0.2,
			FireDamage:       12,
			SmokeDamage:      3,
		},
	}
}
