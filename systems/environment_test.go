package systems

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pthm-cable/brawl/components"
	"github.com/pthm-cable/brawl/config"
)

func TestEnvironmentDeterministic(t *testing.T) {
	cfg := config.Default().Environment
	a := NewEnvironment(cfg, 200, 200, 42)
	b := NewEnvironment(cfg, 200, 200, 42)

	for x := 0.0; x < 200; x += 17 {
		for y := 0.0; y < 200; y += 13 {
			p := components.Position{X: x, Y: y}
			assert.Equal(t, a.Hazard(p), b.Hazard(p))
			assert.Equal(t, a.Fertility(p), b.Fertility(p))
		}
	}
}

func TestEnvironmentRanges(t *testing.T) {
	cfg := config.Default().Environment
	cfg.HazardCutoff = 0.5
	env := NewEnvironment(cfg, 200, 200, 7)
	rng := rand.New(rand.NewSource(7))

	sawHazard := false
	for i := 0; i < 2000; i++ {
		p := components.Position{X: rng.Float64() * 200, Y: rng.Float64() * 200}
		h := env.Hazard(p)
		assert.GreaterOrEqual(t, h, 0.0)
		assert.LessOrEqual(t, h, 1.0)
		if h > 0 {
			sawHazard = true
			assert.InDelta(t, h*cfg.HazardDamage, env.HazardDamage(p), 1e-9)
		}
		f := env.Fertility(p)
		assert.GreaterOrEqual(t, f, 0.0)
		assert.LessOrEqual(t, f, 1.0)
	}
	assert.True(t, sawHazard, "a 0.5 cutoff should produce some hazard ground")
}

func TestEnvironmentHazardDisabled(t *testing.T) {
	cfg := config.Default().Environment
	cfg.HazardCutoff = 1
	env := NewEnvironment(cfg, 100, 100, 1)
	assert.False(t, env.HazardEnabled())
	assert.Equal(t, 0.0, env.Hazard(components.Position{X: 40, Y: 40}))
	assert.Equal(t, components.Position{}, env.SafeDirection(components.Position{X: 40, Y: 40}))
}

func TestEnvironmentSampleFertileInBounds(t *testing.T) {
	env := NewEnvironment(config.Default().Environment, 120, 80, 3)
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 500; i++ {
		p := env.SampleFertile(rng)
		assert.True(t, p.X >= 0 && p.X <= 120 && p.Y >= 0 && p.Y <= 80, "%v out of bounds", p)
	}
}
