package sim

import (
	"math/rand"

	"github.com/pthm-cable/brawl/components"
	"github.com/pthm-cable/brawl/config"
)

// ParentView is what a Breeder sees of a parent.
type ParentView struct {
	ID          components.AgentID
	Strain      uint32
	Generation  int
	Personality components.Personality
	Pos         components.Position
}

// ChildSpec describes an offspring to spawn.
type ChildSpec struct {
	Strain      uint32
	Generation  int
	Personality components.Personality
}

// Breeder produces offspring from two eligible parents. Implementations may
// draw from rng; they are called on the tick goroutine.
type Breeder interface {
	Offspring(a, b ParentView, rng *rand.Rand) ChildSpec
}

// CloneBreeder copies parent A. It does no trait inheritance.
type CloneBreeder struct{}

// Offspring implements Breeder.
func (CloneBreeder) Offspring(a, b ParentView, _ *rand.Rand) ChildSpec {
	gen := a.Generation
	if b.Generation > gen {
		gen = b.Generation
	}
	return ChildSpec{
		Strain:      a.Strain,
		Generation:  gen + 1,
		Personality: a.Personality,
	}
}

// NewBreeder returns the breeder configured by cfg: a BlendBreeder when
// mutation is enabled, otherwise a CloneBreeder.
func NewBreeder(cfg config.BreedingConfig) Breeder {
	if cfg.MutationPower <= 0 {
		return CloneBreeder{}
	}
	return BlendBreeder{Rate: cfg.MutationRate, Power: cfg.MutationPower}
}

// BlendBreeder mixes both parents' personalities trait by trait and then
// perturbs each trait with probability Rate. Axes move by up to Power;
// multipliers are scaled by up to 1 +/- Power.
type BlendBreeder struct {
	Rate  float64
	Power float64
}

type traitPair struct {
	dst  *float64
	x, y float64
}

// Offspring implements Breeder. The child joins parent A's strain.
func (bb BlendBreeder) Offspring(a, b ParentView, rng *rand.Rand) ChildSpec {
	child := CloneBreeder{}.Offspring(a, b, rng)

	pa, pb := a.Personality, b.Personality
	p := &child.Personality
	axes := []traitPair{
		{&p.Aggression, pa.Aggression, pb.Aggression},
		{&p.Caution, pa.Caution, pb.Caution},
		{&p.Sociability, pa.Sociability, pb.Sociability},
	}
	multipliers := []traitPair{
		{&p.Persistence, pa.Persistence, pb.Persistence},
		{&p.DistractionResistance, pa.DistractionResistance, pb.DistractionResistance},
		{&p.Metabolism, pa.Metabolism, pb.Metabolism},
		{&p.Strength, pa.Strength, pb.Strength},
		{&p.Speed, pa.Speed, pb.Speed},
	}

	for _, t := range axes {
		w := rng.Float64()
		*t.dst = w*t.x + (1-w)*t.y
		if rng.Float64() < bb.Rate {
			*t.dst += (rng.Float64()*2 - 1) * bb.Power
		}
	}
	for _, t := range multipliers {
		w := rng.Float64()
		*t.dst = w*t.x + (1-w)*t.y
		if rng.Float64() < bb.Rate {
			*t.dst *= 1 + (rng.Float64()*2-1)*bb.Power
		}
	}

	child.Personality = p.Sanitized()
	return child
}
