package systems

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/brawl/components"
	"github.com/pthm-cable/brawl/config"
)

func testTargeter(t *testing.T) *Targeter {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return NewTargeter(cfg.Targeting)
}

func testActor(id components.AgentID, x, y float64) *Actor {
	return &Actor{
		ID:          id,
		Pos:         components.Position{X: x, Y: y},
		Strain:      1,
		Health:      100,
		MaxHealth:   100,
		Personality: components.DefaultPersonality(),
		Relations:   components.Relations{},
		Memory:      NewCombatMemory(testMemoryConfig(), 100),
	}
}

func enemy(id components.AgentID, x, y, health float64) Candidate {
	return Candidate{
		ID:        id,
		Pos:       components.Position{X: x, Y: y},
		Strain:    2,
		Health:    health,
		MaxHealth: 100,
		Alive:     true,
	}
}

func TestSelectEmptyCandidates(t *testing.T) {
	tg := testTargeter(t)
	a := testActor(1, 50, 50)

	d := tg.Select(a, StimulusCombat, nil, 0)
	assert.Equal(t, DecisionNone, d.Kind)

	// Only a relative nearby: everything is filtered out.
	kin := enemy(2, 51, 50, 100)
	kin.Strain = 1
	d = tg.Select(a, StimulusCombat, []Candidate{kin}, 0)
	assert.Equal(t, DecisionNone, d.Kind)
}

func TestSelectRequiresCombatFocus(t *testing.T) {
	tg := testTargeter(t)
	a := testActor(1, 50, 50)
	d := tg.Select(a, StimulusForage, []Candidate{enemy(2, 52, 50, 100)}, 0)
	assert.Equal(t, DecisionNone, d.Kind)
}

func TestScoreExclusions(t *testing.T) {
	tg := testTargeter(t)
	a := testActor(1, 0, 0)

	tests := []struct {
		name  string
		setup func(c *Candidate)
		valid bool
	}{
		{"neutral in range", func(c *Candidate) {}, true},
		{"dead", func(c *Candidate) { c.Alive = false }, false},
		{"self", func(c *Candidate) { c.ID = 1 }, false},
		{"beyond radius", func(c *Candidate) { c.Pos.X = 30.01 }, false},
		{"at radius", func(c *Candidate) { c.Pos.X = 30 }, true},
		{"family", func(c *Candidate) { c.Strain = 1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := enemy(5, 10, 0, 100)
			tt.setup(&c)
			_, ok := tg.Score(a, &c, 0)
			assert.Equal(t, tt.valid, ok)
		})
	}
}

func TestScoreRelationships(t *testing.T) {
	tg := testTargeter(t)

	tests := []struct {
		name string
		rel  components.Relation
		kin  bool
		want float64
	}{
		{"neutral", components.Relation{}, false, relScoreNeutral},
		{"rival", components.Relation{Kind: components.RelationRival}, false, relScoreRival},
		{"enemy", components.Relation{Kind: components.RelationEnemy}, false, relScoreHostile},
		{"revenge", components.Relation{KilledKin: true}, false, relScoreRevenge},
		{"hostile family", components.Relation{Kind: components.RelationFamily, Hostile: true}, true, relScoreHostile},
		{"family that killed kin", components.Relation{Kind: components.RelationFamily, KilledKin: true}, true, relScoreRevenge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := testActor(1, 0, 0)
			a.Relations.Set(9, tt.rel)
			c := enemy(9, 5, 0, 100)
			if tt.kin {
				c.Strain = a.Strain
			}
			s, ok := tg.Score(a, &c, 0)
			require.True(t, ok)
			assert.InDelta(t, tt.want, s.Relationship, 1e-9)
		})
	}

	// An ally entry is excluded even across strains.
	a := testActor(1, 0, 0)
	a.Relations.Set(9, components.Relation{Kind: components.RelationAlly})
	c := enemy(9, 5, 0, 100)
	_, ok := tg.Score(a, &c, 0)
	assert.False(t, ok)
}

func TestScoreRevengeThreat(t *testing.T) {
	tg := testTargeter(t)

	tests := []struct {
		name string
		rel  components.Relation
		want float64
	}{
		{"none", components.Relation{}, 0},
		{"killed me", components.Relation{KilledMe: true}, 0.3},
		{"killed kin", components.Relation{KilledKin: true}, 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := testActor(1, 0, 0)
			a.Relations.Set(9, tt.rel)
			c := enemy(9, 5, 0, 100)
			s, ok := tg.Score(a, &c, 0)
			require.True(t, ok)
			assert.InDelta(t, tt.want, s.Threat, 1e-9)
			assert.InDelta(t, a.Memory.ThreatOf(9, 0, tt.rel.Revenge()), s.Threat, 1e-9)
		})
	}
}

func TestScoreTermsBounded(t *testing.T) {
	tg := testTargeter(t)
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 500; i++ {
		a := testActor(1, rng.Float64()*100, rng.Float64()*100)
		a.Health = rng.Float64() * 100
		a.Personality.Aggression = rng.Float64()
		a.Personality.Caution = rng.Float64()
		c := enemy(2, rng.Float64()*100, rng.Float64()*100, rng.Float64()*100)
		a.Memory.Record(2, rng.Float64()*80, 0, false)

		s, ok := tg.Score(a, &c, rng.Float64()*5)
		if !ok {
			continue
		}
		for _, v := range []float64{s.DistanceTerm, s.Threat, s.Relationship, s.Opportunity, s.Personality} {
			require.GreaterOrEqual(t, v, 0.0)
			require.LessOrEqual(t, v, 1.0)
		}
		require.LessOrEqual(t, s.Total, 1.1)
	}
}

func TestPersonalityScore(t *testing.T) {
	tests := []struct {
		name       string
		agg, cau   float64
		own, other float64
		want       float64
	}{
		{"neutral traits", 0, 0, 100, 20, 0.5},
		{"aggressive vs strong", 1, 0, 50, 150, 0.75},
		{"aggressive vs weak", 1, 0, 150, 50, 0.25},
		{"cautious vs weak", 0, 1, 150, 50, 0.75},
		{"balanced", 0.5, 0.5, 100, 10, 0.5},
		{"both dead", 1, 0, 0, 0, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := components.Personality{Aggression: tt.agg, Caution: tt.cau}
			got := personalityScore(p, tt.own, tt.other)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestSelectPrefersCloserAndWeaker(t *testing.T) {
	tg := testTargeter(t)
	a := testActor(1, 0, 0)

	d := tg.Select(a, StimulusCombat, []Candidate{
		enemy(2, 20, 0, 100),
		enemy(3, 5, 0, 40),
	}, 0)
	require.Equal(t, DecisionTarget, d.Kind)
	assert.Equal(t, components.AgentID(3), d.Target)
	assert.InDelta(t, 5, d.Distance, 1e-9)
}

func TestSelectStickiness(t *testing.T) {
	tg := testTargeter(t)
	a := testActor(1, 0, 0)
	a.PrevTarget = 2

	// Candidate 3 is slightly better but within the stickiness margin.
	cands := []Candidate{enemy(2, 10, 0, 100), enemy(3, 8, 0, 100)}
	d := tg.Select(a, StimulusCombat, cands, 0)
	assert.Equal(t, components.AgentID(2), d.Target)

	// A badly wounded candidate right next to us clears the margin.
	cands = []Candidate{enemy(2, 10, 0, 100), enemy(3, 1, 0, 5)}
	d = tg.Select(a, StimulusCombat, cands, 0)
	assert.Equal(t, components.AgentID(3), d.Target)

	// Previous target out of range is dropped.
	cands = []Candidate{enemy(2, 40, 0, 100), enemy(3, 8, 0, 100)}
	d = tg.Select(a, StimulusCombat, cands, 0)
	assert.Equal(t, components.AgentID(3), d.Target)
}

func TestSelectNeverExceedsEngagementRadius(t *testing.T) {
	tg := testTargeter(t)
	radius := tg.Config().MaxEngagementRadius
	rng := rand.New(rand.NewSource(9))

	for trial := 0; trial < 300; trial++ {
		a := testActor(1, rng.Float64()*200, rng.Float64()*200)
		a.Personality.Aggression = 1
		a.Personality.Caution = 0
		n := rng.Intn(8)
		cands := make([]Candidate, 0, n)
		for i := 0; i < n; i++ {
			c := enemy(components.AgentID(i+2), rng.Float64()*200, rng.Float64()*200, 1+rng.Float64()*99)
			if rng.Intn(3) == 0 {
				c.Strain = 1
			}
			cands = append(cands, c)
		}
		if n > 0 && rng.Intn(2) == 0 {
			a.PrevTarget = cands[rng.Intn(n)].ID
		}
		d := tg.Select(a, StimulusCombat, cands, 0)
		if d.Kind != DecisionTarget {
			continue
		}
		for _, c := range cands {
			if c.ID == d.Target {
				require.LessOrEqual(t, a.Pos.DistanceTo(c.Pos), radius)
			}
		}
	}
}

func TestFleeThreshold(t *testing.T) {
	tg := testTargeter(t)
	tests := []struct {
		agg, cau float64
		want     float64
	}{
		{0.5, 0.5, 0.25},
		{0, 1, 0.5},
		{1, 0, 0},
		{0, 1.5, 0.5}, // caution clamps to 1
	}
	for _, tt := range tests {
		got := tg.FleeThreshold(components.Personality{Aggression: tt.agg, Caution: tt.cau})
		assert.InDelta(t, tt.want, got, 1e-9)
	}
}

func TestEvaluateFlee(t *testing.T) {
	tg := testTargeter(t)

	t.Run("low health", func(t *testing.T) {
		a := testActor(1, 50, 50)
		a.Health = 20
		fc := tg.EvaluateFlee(a, []Candidate{enemy(2, 53, 54, 100)})
		require.True(t, fc.Flee)
		assert.Equal(t, FleeLowHealth, fc.Reason)
		assert.InDelta(t, -0.6, fc.Dir.X, 1e-9)
		assert.InDelta(t, -0.8, fc.Dir.Y, 1e-9)
	})

	t.Run("low health without hostiles", func(t *testing.T) {
		a := testActor(1, 50, 50)
		a.Health = 5
		fc := tg.EvaluateFlee(a, nil)
		assert.False(t, fc.Flee)
	})

	t.Run("outnumbered", func(t *testing.T) {
		a := testActor(1, 50, 50)
		cands := []Candidate{
			enemy(2, 60, 50, 100), enemy(3, 60, 52, 100),
			enemy(4, 60, 48, 100), enemy(5, 62, 50, 100),
		}
		fc := tg.EvaluateFlee(a, cands)
		require.True(t, fc.Flee)
		assert.Equal(t, FleeOutnumbered, fc.Reason)
		assert.Less(t, fc.Dir.X, 0.0)

		// 4:1 is still past the 3:1 ratio.
		ally := enemy(6, 49, 50, 100)
		ally.Strain = 1
		fc = tg.EvaluateFlee(a, append(cands, ally))
		require.True(t, fc.Flee)
		assert.Equal(t, FleeOutnumbered, fc.Reason)
		assert.Equal(t, 1, fc.Allies)
		assert.Equal(t, 4, fc.Hostiles)

		// A second ally brings it to 4:2.
		ally2 := enemy(7, 49, 52, 100)
		ally2.Strain = 1
		fc = tg.EvaluateFlee(a, append(cands, ally, ally2))
		assert.False(t, fc.Flee)
		assert.Equal(t, 2, fc.Allies)
	})

	t.Run("outnumbered ratio", func(t *testing.T) {
		tests := []struct {
			name     string
			hostiles int
			allies   int
			flee     bool
		}{
			{"duel", 1, 0, false},
			{"three alone", 3, 0, false},
			{"four alone", 4, 0, true},
			{"five to one", 5, 1, true},
			{"six to two", 6, 2, false},
			{"seven to two", 7, 2, true},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				a := testActor(1, 50, 50)
				var cands []Candidate
				id := components.AgentID(2)
				for i := 0; i < tt.hostiles; i++ {
					cands = append(cands, enemy(id, 60, 40+float64(i), 100))
					id++
				}
				for i := 0; i < tt.allies; i++ {
					f := enemy(id, 45, 40+float64(i), 100)
					f.Strain = 1
					cands = append(cands, f)
					id++
				}
				fc := tg.EvaluateFlee(a, cands)
				assert.Equal(t, tt.flee, fc.Flee)
				assert.Equal(t, tt.hostiles, fc.Hostiles)
				assert.Equal(t, tt.allies, fc.Allies)
			})
		}
	})

	t.Run("flee overrides combat selection", func(t *testing.T) {
		a := testActor(1, 50, 50)
		a.Health = 10
		d := tg.Select(a, StimulusCombat, []Candidate{enemy(2, 51, 50, 100)}, 0)
		assert.Equal(t, DecisionFlee, d.Kind)
		assert.InDelta(t, 1, d.FleeDir.Len(), 1e-9)
	})
}

func TestFleeDirectionFallback(t *testing.T) {
	p := components.Position{X: 10, Y: 10}
	d1 := FleeDirection(3, p, p)
	d2 := FleeDirection(3, p, p)
	assert.Equal(t, d1, d2)
	assert.InDelta(t, 1, d1.Len(), 1e-9)
	assert.False(t, math.IsNaN(d1.X))
}
