// Package config provides configuration loading for the battle simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalidArena is returned when the arena has a non-positive dimension.
var ErrInvalidArena = errors.New("arena dimensions must be positive")

// Config holds all simulation configuration parameters.
type Config struct {
	Arena       ArenaConfig       `yaml:"arena"`
	Spatial     SpatialConfig     `yaml:"spatial"`
	Population  PopulationConfig  `yaml:"population"`
	Agent       AgentConfig       `yaml:"agent"`
	Attention   AttentionConfig   `yaml:"attention"`
	Targeting   TargetingConfig   `yaml:"targeting"`
	Combat      CombatConfig      `yaml:"combat"`
	Memory      MemoryConfig      `yaml:"memory"`
	Foraging    ForagingConfig    `yaml:"foraging"`
	Breeding    BreedingConfig    `yaml:"breeding"`
	Environment EnvironmentConfig `yaml:"environment"`
	Parallel    ParallelConfig    `yaml:"parallel"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// ArenaConfig holds arena dimensions and the fixed time step.
type ArenaConfig struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
	DT     float64 `yaml:"dt"` // seconds per tick
}

// SpatialConfig controls how the grid cell size is derived from the arena.
type SpatialConfig struct {
	CellFraction float64 `yaml:"cell_fraction"` // fraction of the shorter arena side
	MinCell      float64 `yaml:"min_cell"`
	MaxCell      float64 `yaml:"max_cell"`
}

// PopulationConfig holds initial population and caps.
type PopulationConfig struct {
	Initial          int `yaml:"initial"`
	Strains          int `yaml:"strains"`           // number of founding families
	Max              int `yaml:"max"`               // births are skipped at this population
	RespawnThreshold int `yaml:"respawn_threshold"` // 0 disables respawn
	RespawnCount     int `yaml:"respawn_count"`
}

// AgentConfig holds per-agent scalar defaults.
type AgentConfig struct {
	MaxHealth       float64 `yaml:"max_health"`
	MaxEnergy       float64 `yaml:"max_energy"`
	MaxHunger       float64 `yaml:"max_hunger"`
	HungerRate      float64 `yaml:"hunger_rate"`      // hunger lost per second
	EnergyRegen     float64 `yaml:"energy_regen"`     // energy gained per second
	MaturityAge     float64 `yaml:"maturity_age"`     // seconds
	Speed           float64 `yaml:"speed"`            // units per second
	PerceptionRange float64 `yaml:"perception_range"` // neighbour query radius
	TraitJitter     float64 `yaml:"trait_jitter"`     // spread of founder personalities
}

// StimulusConfig configures one stimulus type.
type StimulusConfig struct {
	Base                 float64 `yaml:"base"`
	MinCommitment        float64 `yaml:"min_commitment"`        // seconds
	DistractionThreshold float64 `yaml:"distraction_threshold"` // 0..1
}

// AttentionConfig holds the per-stimulus priority table and urgency tuning.
type AttentionConfig struct {
	Priorities map[string]StimulusConfig `yaml:"priorities"`

	ForageStart     float64 `yaml:"forage_start"`      // hunger fraction below which forage is a stimulus
	HazardThreshold float64 `yaml:"hazard_threshold"`  // hazard level that registers as a stimulus
	RevengeUrgency  float64 `yaml:"revenge_urgency"`   // extra combat urgency with a revenge target near
	ExploreUrgency  float64 `yaml:"explore_urgency"`
	SocialUrgency   float64 `yaml:"social_urgency"`
}

// TargetingConfig holds target scoring weights and flee triggers.
type TargetingConfig struct {
	MaxEngagementRadius float64 `yaml:"max_engagement_radius"`
	StickinessMargin    float64 `yaml:"stickiness_margin"`

	DistanceWeight     float64 `yaml:"distance_weight"`
	ThreatWeight       float64 `yaml:"threat_weight"`
	RelationshipWeight float64 `yaml:"relationship_weight"`
	OpportunityWeight  float64 `yaml:"opportunity_weight"`
	PersonalityWeight  float64 `yaml:"personality_weight"`

	FleeHealthFraction float64 `yaml:"flee_health_fraction"`
	OutnumberedRatio   float64 `yaml:"outnumbered_ratio"`
	FleeSpeedBoost     float64 `yaml:"flee_speed_boost"`
}

// CombatConfig holds attack resolution parameters.
type CombatConfig struct {
	AttackRange    float64 `yaml:"attack_range"`
	BaseDamage     float64 `yaml:"base_damage"`
	DamageJitter   float64 `yaml:"damage_jitter"` // +/- fraction
	AttackCooldown float64 `yaml:"attack_cooldown"`
	AttackCost     float64 `yaml:"attack_cost"` // energy per attack
	MissChance     float64 `yaml:"miss_chance"`
	CritChance     float64 `yaml:"crit_chance"`
	CritMultiplier float64 `yaml:"crit_multiplier"`

	RevengeBonus         float64 `yaml:"revenge_bonus"`
	RevengeCap           float64 `yaml:"revenge_cap"`
	RivalBonus           float64 `yaml:"rival_bonus"`
	RivalCap             float64 `yaml:"rival_cap"`
	GangUpPerAlly        float64 `yaml:"gang_up_per_ally"`
	GangUpCap            float64 `yaml:"gang_up_cap"`
	FamilyProtectBonus   float64 `yaml:"family_protect_bonus"`
	FamilyProtectCap     float64 `yaml:"family_protect_cap"`
	WoundedFraction      float64 `yaml:"wounded_fraction"` // relative counts as wounded below this
	MaxCombinedModifier  float64 `yaml:"max_combined_modifier"`
	RivalDamageThreshold float64 `yaml:"rival_damage_threshold"` // fraction of max health
}

// MemoryConfig holds combat memory parameters.
type MemoryConfig struct {
	Horizon          float64 `yaml:"horizon"` // seconds
	MaxEntries       int     `yaml:"max_entries"`
	HeavyHitFraction float64 `yaml:"heavy_hit_fraction"`
	HeavyThreatFloor float64 `yaml:"heavy_threat_floor"`
	HeavyThreatBoost float64 `yaml:"heavy_threat_boost"`
	KilledMeBonus    float64 `yaml:"killed_me_bonus"`
}

// ForagingConfig holds food resource parameters.
type ForagingConfig struct {
	InitialFood          int     `yaml:"initial_food"`
	MaxFood              int     `yaml:"max_food"`
	SpawnRate            float64 `yaml:"spawn_rate"` // items per second
	FoodValue            float64 `yaml:"food_value"` // hunger restored
	FoodLifetime         float64 `yaml:"food_lifetime"`
	ForageRadiusFraction float64 `yaml:"forage_radius_fraction"` // of the shorter arena side
	SearchRadiusFraction float64 `yaml:"search_radius_fraction"`
}

// BreedingConfig holds reproduction eligibility parameters.
type BreedingConfig struct {
	BreedRadiusFraction float64 `yaml:"breed_radius_fraction"`
	MinHealthFraction   float64 `yaml:"min_health_fraction"`
	MinHungerFraction   float64 `yaml:"min_hunger_fraction"`
	Cooldown            float64 `yaml:"cooldown"`
	HungerCost          float64 `yaml:"hunger_cost"` // hunger paid by each parent
	SpawnOffset         float64 `yaml:"spawn_offset"`
	MutationRate        float64 `yaml:"mutation_rate"`  // chance each trait is mutated
	MutationPower       float64 `yaml:"mutation_power"` // 0 = offspring clone parent A
}

// EnvironmentConfig holds the noise fields for hazards and fertility.
type EnvironmentConfig struct {
	HazardScale     float64 `yaml:"hazard_scale"`
	HazardCutoff    float64 `yaml:"hazard_cutoff"` // noise below this is safe ground
	HazardDamage    float64 `yaml:"hazard_damage"` // health per second at full hazard
	FertilityScale  float64 `yaml:"fertility_scale"`
	FertilityOctave int     `yaml:"fertility_octaves"`
}

// ParallelConfig controls the decision worker pool.
type ParallelConfig struct {
	Enabled   bool `yaml:"enabled"`
	Threshold int  `yaml:"threshold"` // minimum live agents before fanning out
	Workers   int  `yaml:"workers"`   // 0 = GOMAXPROCS
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow float64 `yaml:"stats_window"` // seconds
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	CellSize     float64 // spatial grid cell size
	ShortSide    float64 // min(width, height)
	ForageRadius float64 // arena-scaled consumption radius
	SearchRadius float64 // arena-scaled food search radius
	BreedRadius  float64 // arena-scaled mate radius
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Load user config if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad is like Load but panics on error. Intended for tests.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(fmt.Sprintf("config: failed to load: %v", err))
	}
	return cfg
}

// Default returns the embedded defaults.
func Default() *Config {
	return MustLoad("")
}

// Normalize clamps out-of-range values and recomputes derived values.
// Call it again after mutating a loaded config.
func (c *Config) Normalize() error {
	if !(c.Arena.Width > 0) || !(c.Arena.Height > 0) {
		return fmt.Errorf("%w: %vx%v", ErrInvalidArena, c.Arena.Width, c.Arena.Height)
	}
	if !(c.Arena.DT > 0) {
		c.Arena.DT = 0.1
	}
	c.clamp()
	c.computeDerived()
	return nil
}

// clamp forces tunables into their documented safe ranges.
func (c *Config) clamp() {
	s := &c.Spatial
	s.CellFraction = clampRange(s.CellFraction, 0.01, 1, 0.1)
	s.MinCell = clampRange(s.MinCell, 0.1, math.MaxFloat64, 2)
	s.MaxCell = clampRange(s.MaxCell, s.MinCell, math.MaxFloat64, 64)

	for name, p := range c.Attention.Priorities {
		p.Base = clampRange(p.Base, 0, 1000, 0)
		p.MinCommitment = clampRange(p.MinCommitment, 0, 60, 0)
		p.DistractionThreshold = clampRange(p.DistractionThreshold, 0, 1, 0)
		c.Attention.Priorities[name] = p
	}

	t := &c.Targeting
	t.MaxEngagementRadius = clampRange(t.MaxEngagementRadius, 0, math.MaxFloat64, 0)
	t.StickinessMargin = clampRange(t.StickinessMargin, 0, 1, 0.15)
	t.FleeHealthFraction = clampRange(t.FleeHealthFraction, 0, 1, 0.25)
	if t.OutnumberedRatio <= 0 {
		t.OutnumberedRatio = 3
	}
	if t.FleeSpeedBoost < 1 {
		t.FleeSpeedBoost = 1
	}

	cb := &c.Combat
	cb.MissChance = clampRange(cb.MissChance, 0, 1, 0)
	cb.CritChance = clampRange(cb.CritChance, 0, 1, 0)
	cb.DamageJitter = clampRange(cb.DamageJitter, 0, 1, 0)
	if cb.CritMultiplier < 1 {
		cb.CritMultiplier = 1
	}
	if cb.MaxCombinedModifier < 1 {
		cb.MaxCombinedModifier = 1
	}

	m := &c.Memory
	if m.Horizon <= 0 {
		m.Horizon = 10
	}
	if m.MaxEntries <= 0 {
		m.MaxEntries = 32
	}
	m.HeavyHitFraction = clampRange(m.HeavyHitFraction, 0, 1, 0.3)
	m.HeavyThreatFloor = clampRange(m.HeavyThreatFloor, 0, 1, 0.7)
	m.KilledMeBonus = clampRange(m.KilledMeBonus, 0, 1, 0.3)

	if c.Parallel.Threshold < 1 {
		c.Parallel.Threshold = 1
	}
	if c.Telemetry.StatsWindow <= 0 {
		c.Telemetry.StatsWindow = 10
	}
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	short := math.Min(c.Arena.Width, c.Arena.Height)
	c.Derived.ShortSide = short
	c.Derived.CellSize = CellSizeFor(c.Arena.Width, c.Arena.Height, c.Spatial)
	c.Derived.ForageRadius = short * c.Foraging.ForageRadiusFraction
	c.Derived.SearchRadius = short * c.Foraging.SearchRadiusFraction
	c.Derived.BreedRadius = short * c.Breeding.BreedRadiusFraction
}

// CellSizeFor derives the grid cell size from arena dimensions only.
func CellSizeFor(width, height float64, s SpatialConfig) float64 {
	size := math.Min(width, height) * s.CellFraction
	if size < s.MinCell {
		return s.MinCell
	}
	if size > s.MaxCell {
		return s.MaxCell
	}
	return size
}

// clampRange clamps v to [lo, hi]; NaN becomes def.
func clampRange(v, lo, hi, def float64) float64 {
	if math.IsNaN(v) {
		return def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
