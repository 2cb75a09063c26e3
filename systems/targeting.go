package systems

import (
	"github.com/pthm-cable/brawl/components"
	"github.com/pthm-cable/brawl/config"
)

// DecisionKind is the kind of targeting result.
type DecisionKind uint8

const (
	DecisionNone DecisionKind = iota
	DecisionTarget
	DecisionFlee
)

// String returns the display name for a DecisionKind.
func (k DecisionKind) String() string {
	switch k {
	case DecisionTarget:
		return "target"
	case DecisionFlee:
		return "flee"
	default:
		return "none"
	}
}

// Decision is the outcome of Targeter.Select.
type Decision struct {
	Kind     DecisionKind
	Target   components.AgentID
	Score    float64
	Distance float64
	FleeDir  components.Position // unit vector, set for DecisionFlee
	Flee     FleeCheck
}

// Candidate is a read-only view of another agent as seen by the actor.
type Candidate struct {
	ID        components.AgentID
	Pos       components.Position
	Strain    uint32
	Health    float64
	MaxHealth float64
	Alive     bool
}

// Actor is the scoring agent's view of itself.
type Actor struct {
	ID          components.AgentID
	Pos         components.Position
	Strain      uint32
	Health      float64
	MaxHealth   float64
	Personality components.Personality
	Relations   components.Relations
	Memory      *CombatMemory
	PrevTarget  components.AgentID
}

// TargetScore is the per-candidate breakdown. Each term is in [0, 1].
type TargetScore struct {
	ID           components.AgentID
	Distance     float64 // raw distance to the candidate
	DistanceTerm float64
	Threat       float64
	Relationship float64
	Opportunity  float64
	Personality  float64
	Total        float64
}

// Relationship sub-scores.
const (
	relScoreRevenge = 1.0
	relScoreRival   = 0.8
	relScoreHostile = 0.7
	relScoreNeutral = 0.4
)

// Targeter selects combat targets and flee vectors.
type Targeter struct {
	cfg config.TargetingConfig
}

// NewTargeter creates a targeter from the targeting config.
func NewTargeter(cfg config.TargetingConfig) *Targeter {
	return &Targeter{cfg: cfg}
}

// Config returns the targeting config.
func (t *Targeter) Config() config.TargetingConfig { return t.cfg }

// Score rates candidate c for actor. It returns false when c is not a valid
// target: dead, the actor itself, beyond the engagement radius, or friendly.
func (t *Targeter) Score(a *Actor, c *Candidate, now float64) (TargetScore, bool) {
	if !c.Alive || c.ID == a.ID {
		return TargetScore{}, false
	}
	d := a.Pos.DistanceTo(c.Pos)
	if !(d <= t.cfg.MaxEngagementRadius) {
		return TargetScore{}, false
	}
	rel := a.Relations.Resolve(c.ID, a.Strain, c.Strain)
	if rel.Friendly() {
		return TargetScore{}, false
	}

	s := TargetScore{ID: c.ID, Distance: d}
	if t.cfg.MaxEngagementRadius > 0 {
		s.DistanceTerm = clamp01(1 - d/t.cfg.MaxEngagementRadius)
	} else {
		s.DistanceTerm = 1
	}
	if a.Memory != nil {
		s.Threat = a.Memory.ThreatOf(c.ID, now, rel.Revenge())
	} else if rel.Revenge() {
		s.Threat = 1
	}
	s.Relationship = relationshipScore(rel)
	s.Opportunity = clamp01(1 - fractionOf(c.Health, c.MaxHealth))
	s.Personality = personalityScore(a.Personality, a.Health, c.Health)

	s.Total = t.cfg.DistanceWeight*s.DistanceTerm +
		t.cfg.ThreatWeight*s.Threat +
		t.cfg.RelationshipWeight*s.Relationship +
		t.cfg.OpportunityWeight*s.Opportunity +
		t.cfg.PersonalityWeight*s.Personality
	return s, true
}

// ScoreAll scores every valid candidate, preserving candidate order.
func (t *Targeter) ScoreAll(a *Actor, candidates []Candidate, now float64) []TargetScore {
	out := make([]TargetScore, 0, len(candidates))
	for i := range candidates {
		if s, ok := t.Score(a, &candidates[i], now); ok {
			out = append(out, s)
		}
	}
	return out
}

// Select picks what the actor does about the agents around it. The flee
// check runs first for every focus; combat scoring only runs under the
// Combat focus. An empty or fully filtered candidate set yields DecisionNone.
func (t *Targeter) Select(a *Actor, focus Stimulus, candidates []Candidate, now float64) Decision {
	flee := t.EvaluateFlee(a, candidates)
	if flee.Flee {
		return Decision{Kind: DecisionFlee, FleeDir: flee.Dir, Flee: flee}
	}
	if focus != StimulusCombat {
		return Decision{Kind: DecisionNone, Flee: flee}
	}

	scores := t.ScoreAll(a, candidates, now)
	if len(scores) == 0 {
		return Decision{Kind: DecisionNone, Flee: flee}
	}

	best := scores[0]
	var prev *TargetScore
	for i := range scores {
		s := &scores[i]
		if s.ID == a.PrevTarget {
			prev = s
		}
		if s.Total > best.Total || (s.Total == best.Total && s.ID < best.ID) {
			best = *s
		}
	}

	// Keep the previous target unless something clearly better showed up.
	if prev != nil && best.ID != prev.ID && best.Total <= prev.Total+t.cfg.StickinessMargin {
		best = *prev
	}

	return Decision{
		Kind:     DecisionTarget,
		Target:   best.ID,
		Score:    best.Total,
		Distance: best.Distance,
		Flee:     flee,
	}
}

// relationshipScore maps a non-friendly relation to its sub-score.
func relationshipScore(rel components.Relation) float64 {
	switch {
	case rel.Revenge():
		return relScoreRevenge
	case rel.Kind == components.RelationRival:
		return relScoreRival
	case rel.Hostile || rel.Kind == components.RelationEnemy:
		return relScoreHostile
	default:
		return relScoreNeutral
	}
}

// personalityScore expresses the aggression/caution bias as one term:
// aggressive agents prefer targets stronger than themselves, cautious agents
// prefer weaker ones.
func personalityScore(p components.Personality, ownHealth, targetHealth float64) float64 {
	agg, caution := clamp01(p.Aggression), clamp01(p.Caution)
	if agg+caution == 0 {
		return 0.5
	}
	r := 0.5
	if sum := ownHealth + targetHealth; sum > 0 {
		r = clamp01(targetHealth / sum)
	}
	return clamp01((agg*r + caution*(1-r)) / (agg + caution))
}

func fractionOf(v, max float64) float64 {
	if !(max > 0) {
		return 0
	}
	return clamp01(v / max)
}
