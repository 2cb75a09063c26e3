package systems

import (
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/pthm-cable/brawl/components"
	"github.com/pthm-cable/brawl/config"
)

const (
	fertilityPersistence = 0.5
	fertileSampleTries   = 16
	gradientStep         = 1.0
)

// Environment holds the static noise fields of the arena: hazard zones that
// hurt agents standing in them and a fertility field that biases where food
// grows.
type Environment struct {
	cfg           config.EnvironmentConfig
	width, height float64
	hazard        opensimplex.Noise
	fertility     opensimplex.Noise
}

// NewEnvironment creates the fields for an arena. The same seed always yields
// the same fields.
func NewEnvironment(cfg config.EnvironmentConfig, width, height float64, seed int64) *Environment {
	if cfg.FertilityOctave < 1 {
		cfg.FertilityOctave = 1
	}
	return &Environment{
		cfg:       cfg,
		width:     width,
		height:    height,
		hazard:    opensimplex.NewNormalized(seed),
		fertility: opensimplex.NewNormalized(seed + 1),
	}
}

// HazardEnabled reports whether any ground can be hazardous.
func (e *Environment) HazardEnabled() bool {
	return e.cfg.HazardCutoff < 1 && e.cfg.HazardScale > 0
}

// Hazard returns the hazard level at p in [0, 1]. Noise below the cutoff is
// safe ground; above it the level rises linearly to 1.
func (e *Environment) Hazard(p components.Position) float64 {
	if !e.HazardEnabled() {
		return 0
	}
	n := e.hazard.Eval2(p.X*e.cfg.HazardScale, p.Y*e.cfg.HazardScale)
	if n <= e.cfg.HazardCutoff {
		return 0
	}
	return clamp01((n - e.cfg.HazardCutoff) / (1 - e.cfg.HazardCutoff))
}

// HazardDamage returns the health lost per second at p.
func (e *Environment) HazardDamage(p components.Position) float64 {
	return e.Hazard(p) * e.cfg.HazardDamage
}

// SafeDirection returns a unit vector pointing down the hazard gradient at
// p, or the zero vector on flat ground.
func (e *Environment) SafeDirection(p components.Position) components.Position {
	dx := e.Hazard(components.Position{X: p.X + gradientStep, Y: p.Y}) -
		e.Hazard(components.Position{X: p.X - gradientStep, Y: p.Y})
	dy := e.Hazard(components.Position{X: p.X, Y: p.Y + gradientStep}) -
		e.Hazard(components.Position{X: p.X, Y: p.Y - gradientStep})
	return components.Position{X: -dx, Y: -dy}.Normalize()
}

// Fertility returns the fertility at p in [0, 1].
func (e *Environment) Fertility(p components.Position) float64 {
	return clamp01(octaveNoise(e.fertility, p.X, p.Y, e.cfg.FertilityOctave, e.cfg.FertilityScale, fertilityPersistence))
}

// SampleFertile draws a position, preferring fertile and safe ground. It
// falls back to the last uniform draw after a bounded number of tries.
func (e *Environment) SampleFertile(rng *rand.Rand) components.Position {
	var p components.Position
	for i := 0; i < fertileSampleTries; i++ {
		p = components.Position{X: rng.Float64() * e.width, Y: rng.Float64() * e.height}
		if e.Hazard(p) > 0 {
			continue
		}
		if rng.Float64() < e.Fertility(p) {
			return p
		}
	}
	return p
}

// octaveNoise layers several frequencies of noise.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
