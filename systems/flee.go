package systems

import (
	"math"

	"github.com/pthm-cable/brawl/components"
)

// FleeReason records which trigger fired.
type FleeReason uint8

const (
	FleeNone FleeReason = iota
	FleeLowHealth
	FleeOutnumbered
)

// String returns the display name for a FleeReason.
func (r FleeReason) String() string {
	switch r {
	case FleeLowHealth:
		return "low_health"
	case FleeOutnumbered:
		return "outnumbered"
	default:
		return "none"
	}
}

// FleeCheck is the result of EvaluateFlee.
type FleeCheck struct {
	Flee      bool
	Reason    FleeReason
	Dir       components.Position // unit vector away from the hostile centroid
	Hostiles  int
	Allies    int
	Threshold float64 // health fraction trigger after personality
}

const (
	maxFleeThreshold = 0.6
	goldenAngle      = 2.399963229728653 // radians
)

// FleeThreshold returns the health fraction below which the agent flees:
// the base fraction scaled by (1 + caution - aggression), clamped to
// [0, 0.6]. A zero base disables the health trigger.
func (t *Targeter) FleeThreshold(p components.Personality) float64 {
	th := t.cfg.FleeHealthFraction * (1 + clamp01(p.Caution) - clamp01(p.Aggression))
	return clampFloat(th, 0, maxFleeThreshold)
}

// EvaluateFlee decides whether the actor should run from the agents around
// it. Only hostile neighbors can cause flight; the outnumbered trigger
// compares hostiles against friendly neighbors, with a lone agent counted as
// facing them with one ally. Neighbors outside the engagement radius still count since they are
// supplied by the caller's perception query.
func (t *Targeter) EvaluateFlee(a *Actor, neighbors []Candidate) FleeCheck {
	fc := FleeCheck{Threshold: t.FleeThreshold(a.Personality)}

	var cx, cy float64
	for i := range neighbors {
		c := &neighbors[i]
		if !c.Alive || c.ID == a.ID {
			continue
		}
		rel := a.Relations.Resolve(c.ID, a.Strain, c.Strain)
		if rel.Friendly() {
			fc.Allies++
			continue
		}
		fc.Hostiles++
		cx += c.Pos.X
		cy += c.Pos.Y
	}
	if fc.Hostiles == 0 {
		return fc
	}

	switch {
	case fractionOf(a.Health, a.MaxHealth) < fc.Threshold:
		fc.Reason = FleeLowHealth
	case float64(fc.Hostiles) > t.cfg.OutnumberedRatio*float64(max(fc.Allies, 1)):
		fc.Reason = FleeOutnumbered
	default:
		return fc
	}

	fc.Flee = true
	centroid := components.Position{X: cx / float64(fc.Hostiles), Y: cy / float64(fc.Hostiles)}
	fc.Dir = FleeDirection(a.ID, a.Pos, centroid)
	return fc
}

// FleeDirection returns the unit vector from centroid toward pos. When the
// two coincide a fixed per-agent heading is used.
func FleeDirection(id components.AgentID, pos, centroid components.Position) components.Position {
	away := pos.Sub(centroid)
	if away.Len() > 1e-9 {
		return away.Normalize()
	}
	angle := float64(id) * goldenAngle
	return components.Position{X: math.Cos(angle), Y: math.Sin(angle)}
}
