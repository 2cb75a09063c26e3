package components

// Personality holds trait axes that feed the data-driven scoring terms.
// Multipliers default to 1.0; axes are in [0, 1].
type Personality struct {
	Aggression  float64 `inspect:"bar"` // bias toward strong targets and fighting on
	Caution     float64 `inspect:"bar"` // bias toward weak targets and early flight
	Sociability float64 `inspect:"bar"`

	Persistence           float64 `inspect:"label,fmt:%.2fx"` // scales commitment duration
	DistractionResistance float64 `inspect:"label,fmt:%.2fx"` // scales distraction threshold
	Metabolism            float64 `inspect:"label,fmt:%.2fx"` // scales hunger depletion
	Strength              float64 `inspect:"label,fmt:%.2fx"` // scales damage dealt
	Speed                 float64 `inspect:"label,fmt:%.2fx"` // scales movement speed
}

// DefaultPersonality returns a neutral personality.
func DefaultPersonality() Personality {
	return Personality{
		Aggression:            0.5,
		Caution:               0.5,
		Sociability:           0.5,
		Persistence:           1,
		DistractionResistance: 1,
		Metabolism:            1,
		Strength:              1,
		Speed:                 1,
	}
}

// Sanitized returns a copy with axes clamped to [0, 1] and multipliers
// clamped to [0.1, 5]. Zero multipliers become 1.
func (p Personality) Sanitized() Personality {
	p.Aggression = clampUnit(p.Aggression)
	p.Caution = clampUnit(p.Caution)
	p.Sociability = clampUnit(p.Sociability)
	p.Persistence = clampMultiplier(p.Persistence)
	p.DistractionResistance = clampMultiplier(p.DistractionResistance)
	p.Metabolism = clampMultiplier(p.Metabolism)
	p.Strength = clampMultiplier(p.Strength)
	p.Speed = clampMultiplier(p.Speed)
	return p
}

func clampUnit(v float64) float64 {
	if !(v > 0) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampMultiplier(v float64) float64 {
	if v == 0 || v != v {
		return 1
	}
	if v < 0.1 {
		return 0.1
	}
	if v > 5 {
		return 5
	}
	return v
}
