package components

// AgentID is the stable identifier of an agent for its whole lifetime.
// IDs are never reused within a run.
type AgentID uint32

// NoAgent is the zero id; real agents start at 1.
const NoAgent AgentID = 0

// DeathCause records why an agent died.
type DeathCause uint8

const (
	CauseNone DeathCause = iota
	CauseCombat
	CauseStarvation
	CauseHazard
)

// String returns the display name for a DeathCause.
func (c DeathCause) String() string {
	switch c {
	case CauseCombat:
		return "combat"
	case CauseStarvation:
		return "starvation"
	case CauseHazard:
		return "hazard"
	default:
		return "none"
	}
}

// Vitals tracks an agent's scalar state.
type Vitals struct {
	Health    float64    `inspect:"bar,max:100"`
	MaxHealth float64    `inspect:"skip"`
	Energy    float64    `inspect:"bar,max:100"`
	MaxEnergy float64    `inspect:"skip"`
	Hunger    float64    `inspect:"bar,max:100"` // 0 = starving, MaxHunger = full
	MaxHunger float64    `inspect:"skip"`
	Age       float64    `inspect:"label,fmt:%.1fs"`
	Mature    bool       `inspect:"bool"`
	Alive     bool       `inspect:"bool"`
	Cause     DeathCause `inspect:"skip"`
}

// HealthFraction returns Health/MaxHealth in [0, 1].
func (v *Vitals) HealthFraction() float64 {
	return fraction(v.Health, v.MaxHealth)
}

// HungerFraction returns Hunger/MaxHunger in [0, 1].
func (v *Vitals) HungerFraction() float64 {
	return fraction(v.Hunger, v.MaxHunger)
}

func fraction(v, max float64) float64 {
	if max <= 0 {
		return 0
	}
	f := v / max
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Organism bundles identity, lineage and timers.
type Organism struct {
	ID             AgentID `inspect:"label"`
	Strain         uint32  `inspect:"label"` // family identifier
	Generation     int     `inspect:"label"`
	ParentA        AgentID `inspect:"skip"`
	ParentB        AgentID `inspect:"skip"`
	BornAt         float64 `inspect:"label,fmt:%.1fs"`
	AttackCooldown float64 `inspect:"label,fmt:%.2fs"` // seconds until the next attack
	BreedCooldown  float64 `inspect:"label,fmt:%.1fs"` // seconds until breeding is allowed
}
