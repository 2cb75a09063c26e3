package sim

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/brawl/components"
	"github.com/pthm-cable/brawl/config"
	"github.com/pthm-cable/brawl/telemetry"
)

// quietConfig returns a config with no founders, no food and no hazards so
// tests control every agent.
func quietConfig() *config.Config {
	cfg := config.Default()
	cfg.Arena.Width = 100
	cfg.Arena.Height = 100
	cfg.Population.Initial = 0
	cfg.Population.RespawnThreshold = 0
	cfg.Foraging.InitialFood = 0
	cfg.Foraging.MaxFood = 0
	cfg.Foraging.SpawnRate = 0
	cfg.Environment.HazardCutoff = 1
	cfg.Parallel.Enabled = false
	return cfg
}

func newSim(t *testing.T, cfg *config.Config, seed int64) *Simulation {
	t.Helper()
	s, err := New(cfg, seed)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func duelist() components.Personality {
	p := components.DefaultPersonality()
	p.Aggression = 1
	p.Caution = 0
	return p
}

func countEvents(events []telemetry.Event, typ telemetry.EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func TestNew_InvalidArena(t *testing.T) {
	tests := []struct {
		name          string
		width, height float64
	}{
		{"zero width", 0, 100},
		{"zero height", 100, 0},
		{"negative", -5, -5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := quietConfig()
			cfg.Arena.Width = tt.width
			cfg.Arena.Height = tt.height
			s, err := New(cfg, 1)
			assert.Nil(t, s)
			assert.True(t, errors.Is(err, ErrInvalidArena), "got %v", err)
		})
	}
}

func TestNew_SpawnsFounders(t *testing.T) {
	cfg := quietConfig()
	cfg.Population.Initial = 12
	cfg.Population.Strains = 3
	s := newSim(t, cfg, 7)

	assert.Equal(t, 12, s.LiveCount())
	assert.Equal(t, 0, s.BirthCount())

	events := s.Advance(0)
	assert.Equal(t, 12, countEvents(events, telemetry.EventBirth), "founder births arrive with the first tick")

	strains := map[uint32]int{}
	for _, a := range s.Snapshot() {
		strains[a.Strain]++
	}
	assert.Equal(t, map[uint32]int{1: 4, 2: 4, 3: 4}, strains)
}

func TestAdvance_ClockAndDefaultDT(t *testing.T) {
	s := newSim(t, quietConfig(), 1)
	s.Advance(0)
	s.Advance(0.5)
	assert.Equal(t, int32(2), s.Tick())
	assert.InDelta(t, 0.6, s.Time(), 1e-9)
}

func TestStarvation_DiesAtHundredSeconds(t *testing.T) {
	s := newSim(t, quietConfig(), 1)
	id := s.AddAgent(AgentSpec{Pos: components.Position{X: 50, Y: 50}, Strain: 1, Personality: components.DefaultPersonality()})

	var deaths []telemetry.Event
	for i := 0; i < 1100 && s.Alive(id); i++ {
		for _, ev := range s.Advance(0) {
			if ev.Type == telemetry.EventDeath {
				deaths = append(deaths, ev)
			}
		}
		if s.Tick() == 999 {
			require.True(t, s.Alive(id), "agent should still be alive at tick 999")
		}
	}

	require.Len(t, deaths, 1)
	assert.Equal(t, id, deaths[0].AgentID)
	assert.Equal(t, components.CauseStarvation, deaths[0].Cause)
	assert.Equal(t, int32(1000), deaths[0].Tick)
	assert.InDelta(t, 100.0, deaths[0].Time, 1e-6)
	assert.Equal(t, 1, s.DeathsBy(components.CauseStarvation))
}

func TestResolveStarvation_Idempotent(t *testing.T) {
	s := newSim(t, quietConfig(), 1)
	id := s.AddAgent(AgentSpec{Pos: components.Position{X: 10, Y: 10}, Strain: 1})
	s.vitalsMap.Get(s.entities[id]).Hunger = 0

	s.resolveStarvation()
	first := countEvents(s.events, telemetry.EventDeath)
	s.resolveStarvation()

	assert.Equal(t, 1, first)
	assert.Equal(t, 1, countEvents(s.events, telemetry.EventDeath))
	assert.Equal(t, 1, s.DeathCount())
	assert.Equal(t, 0, s.LiveCount())
	assert.False(t, s.Alive(id))
}

func TestKill_OnlyOnce(t *testing.T) {
	s := newSim(t, quietConfig(), 1)
	id := s.AddAgent(AgentSpec{Pos: components.Position{X: 10, Y: 10}, Strain: 1})

	assert.True(t, s.kill(id, components.CauseCombat, components.NoAgent))
	assert.False(t, s.kill(id, components.CauseHazard, components.NoAgent))
	assert.False(t, s.kill(999, components.CauseHazard, components.NoAgent))

	assert.Equal(t, 1, s.DeathCount())
	assert.Equal(t, 1, s.DeathsBy(components.CauseCombat))
	assert.Equal(t, 0, s.DeathsBy(components.CauseHazard))
	assert.Equal(t, components.CauseCombat, s.vitalsMap.Get(s.entities[id]).Cause)
}

func TestDuel_OneDeathAndMemoryMatchesEvents(t *testing.T) {
	s := newSim(t, quietConfig(), 3)
	a := s.AddAgent(AgentSpec{Pos: components.Position{X: 50, Y: 50}, Strain: 1, Personality: duelist()})
	b := s.AddAgent(AgentSpec{Pos: components.Position{X: 51, Y: 50}, Strain: 2, Personality: duelist()})
	s.MakeHostile(a, b)

	// Keep the survivor's mind past cleanup.
	minds := map[components.AgentID]*Mind{
		a: s.mindMap.Get(s.entities[a]),
		b: s.mindMap.Get(s.entities[b]),
	}
	memA, memB := minds[a].Memory, minds[b].Memory

	var all []telemetry.Event
	for i := 0; i < 500 && s.DeathCount() == 0; i++ {
		all = append(all, s.Advance(0)...)
	}
	require.Equal(t, 1, s.DeathCount(), "duel should end in a single death")
	require.Equal(t, 1, s.DeathsBy(components.CauseCombat))

	var loser components.AgentID
	for _, ev := range all {
		if ev.Type == telemetry.EventDeath {
			loser = ev.AgentID
			assert.Equal(t, components.CauseCombat, ev.Cause)
		}
	}
	winner := a
	winnerMem := memA
	if loser == a {
		winner = b
		winnerMem = memB
	}
	require.True(t, s.Alive(winner))
	require.False(t, s.Alive(loser))

	hitsBy := map[components.AgentID]int{}
	lethal := 0
	for _, ev := range all {
		if ev.IsHit() {
			hitsBy[ev.AgentID]++
			if ev.Lethal {
				lethal++
				assert.Equal(t, winner, ev.AgentID)
				assert.Equal(t, loser, ev.OtherID)
			}
		}
	}
	assert.Equal(t, 1, lethal)
	assert.Equal(t, hitsBy[loser], winnerMem.ReceivedCount())
	assert.Equal(t, 1, winnerMem.DistinctAttackers())
	assert.Zero(t, winnerMem.HitsFrom(loser), "dead attacker forgotten at cleanup")
	assert.Equal(t, hitsBy[winner], winnerMem.DealtCount())

	dbg, ok := s.Debug(winner)
	require.True(t, ok)
	assert.Equal(t, hitsBy[winner], dbg.HitsDealt)
	assert.Equal(t, hitsBy[loser], dbg.HitsTaken)
}

func TestHazard_KillsWithCause(t *testing.T) {
	cfg := quietConfig()
	cfg.Environment.HazardCutoff = 0
	cfg.Environment.HazardDamage = 1e6
	s := newSim(t, cfg, 5)
	id := s.AddAgent(AgentSpec{Pos: components.Position{X: 33, Y: 71}, Strain: 1})

	events := s.Advance(0)
	require.False(t, s.Alive(id))
	assert.Equal(t, 1, s.DeathsBy(components.CauseHazard))
	assert.Equal(t, 1, countEvents(events, telemetry.EventDeath))
}

func TestForage_EatsNearbyFood(t *testing.T) {
	s := newSim(t, quietConfig(), 1)
	id := s.AddAgent(AgentSpec{
		Pos:         components.Position{X: 50, Y: 50},
		Strain:      1,
		Hunger:      20,
		Personality: components.DefaultPersonality(),
	})
	s.food.spawn(components.Position{X: 52, Y: 50})
	require.Equal(t, 1, s.FoodCount())

	var foraged []telemetry.Event
	for i := 0; i < 50 && len(foraged) == 0; i++ {
		for _, ev := range s.Advance(0) {
			if ev.Type == telemetry.EventForage {
				foraged = append(foraged, ev)
			}
		}
	}
	require.Len(t, foraged, 1)
	assert.Equal(t, id, foraged[0].AgentID)
	assert.Greater(t, foraged[0].Amount, 0.0)
	assert.Equal(t, 0, s.FoodCount())
}

func TestMutualLethalExchange_FasterAttackerWins(t *testing.T) {
	fight := func(speedA, speedB float64) (components.AgentID, components.AgentID, components.AgentID) {
		cfg := quietConfig()
		cfg.Combat.MissChance = 0
		s := newSim(t, cfg, 7)

		pa, pb := duelist(), duelist()
		pa.Speed, pb.Speed = speedA, speedB
		a := s.AddAgent(AgentSpec{Pos: components.Position{X: 50, Y: 50}, Strain: 1, Personality: pa, Health: 1})
		b := s.AddAgent(AgentSpec{Pos: components.Position{X: 51, Y: 50}, Strain: 2, Personality: pb, Health: 1})
		s.MakeHostile(a, b)

		var loser components.AgentID
		for i := 0; i < 200 && loser == components.NoAgent; i++ {
			for _, ev := range s.Advance(0) {
				if ev.Type == telemetry.EventDeath {
					require.Equal(t, components.NoAgent, loser, "only one side dies")
					loser = ev.AgentID
				}
			}
		}
		require.Equal(t, 1, s.DeathCount())
		return a, b, loser
	}

	a, _, loser := fight(1, 1.5)
	assert.Equal(t, a, loser, "slower older agent loses")

	_, b, loser := fight(1.5, 1)
	assert.Equal(t, b, loser, "slower younger agent loses")
}

func TestBreed_ProducesOffspring(t *testing.T) {
	cfg := quietConfig()
	cfg.Agent.MaturityAge = 0
	cfg.Attention.ExploreUrgency = 0
	s := newSim(t, cfg, 1)
	a := s.AddAgent(AgentSpec{Pos: components.Position{X: 50, Y: 50}, Strain: 2, Generation: 3, Personality: components.DefaultPersonality()})
	b := s.AddAgent(AgentSpec{Pos: components.Position{X: 51, Y: 50}, Strain: 2, Generation: 1, Personality: components.DefaultPersonality()})

	var births []telemetry.Event
	for i := 0; i < 30 && s.BirthCount() == 0; i++ {
		for _, ev := range s.Advance(0) {
			if ev.Type == telemetry.EventBirth && ev.OtherID != components.NoAgent {
				births = append(births, ev)
			}
		}
	}
	require.Equal(t, 1, s.BirthCount())
	require.Len(t, births, 1, "offspring birth is emitted by the breeding tick")

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	child := snap[2]
	assert.Equal(t, births[0].AgentID, child.ID)
	assert.Equal(t, uint32(2), child.Strain)
	assert.Equal(t, 4, child.Generation)

	org := s.orgMap.Get(s.entities[child.ID])
	assert.ElementsMatch(t, []components.AgentID{a, b}, []components.AgentID{org.ParentA, org.ParentB})
	assert.ElementsMatch(t, []components.AgentID{a, b}, []components.AgentID{births[0].OtherID, births[0].SecondID})
	assert.Greater(t, s.orgMap.Get(s.entities[a]).BreedCooldown, 0.0)
}

func TestBreed_RespectsPopulationCap(t *testing.T) {
	cfg := quietConfig()
	cfg.Agent.MaturityAge = 0
	cfg.Attention.ExploreUrgency = 0
	cfg.Population.Max = 2
	s := newSim(t, cfg, 1)
	s.AddAgent(AgentSpec{Pos: components.Position{X: 50, Y: 50}, Strain: 1})
	s.AddAgent(AgentSpec{Pos: components.Position{X: 51, Y: 50}, Strain: 1})

	for i := 0; i < 30; i++ {
		s.Advance(0)
	}
	assert.Equal(t, 0, s.BirthCount())
	assert.Equal(t, 2, s.LiveCount())
}

type recordingSink struct {
	ticks  []int32
	events int
	agents int
	err    error
}

func (r *recordingSink) Consume(frame *telemetry.Snapshot) error {
	r.ticks = append(r.ticks, frame.Tick)
	r.events += len(frame.Events)
	r.agents = len(frame.Agents)
	return r.err
}

func TestSinks_ReceiveEveryFrame(t *testing.T) {
	cfg := quietConfig()
	cfg.Population.Initial = 4
	s := newSim(t, cfg, 2)

	ok := &recordingSink{}
	failing := &recordingSink{err: errors.New("disk full")}
	s.AddSink(ok)
	s.AddSink(failing)

	total := 0
	for i := 0; i < 5; i++ {
		total += len(s.Advance(0))
	}

	assert.Equal(t, []int32{1, 2, 3, 4, 5}, ok.ticks)
	assert.Equal(t, total, ok.events)
	assert.Equal(t, s.LiveCount(), ok.agents)
	assert.Len(t, failing.ticks, 5, "a failing sink keeps receiving frames")
	assert.EqualError(t, s.SinkErr(), "disk full")
}

func TestSnapshot_AscendingLiveAgents(t *testing.T) {
	s := newSim(t, quietConfig(), 1)
	var ids []components.AgentID
	for i := 0; i < 5; i++ {
		ids = append(ids, s.AddAgent(AgentSpec{Pos: components.Position{X: float64(10 * i), Y: 5}, Strain: 1}))
	}
	s.kill(ids[2], components.CauseCombat, components.NoAgent)

	snap := s.Snapshot()
	require.Len(t, snap, 4)
	for i := 1; i < len(snap); i++ {
		assert.Less(t, snap[i-1].ID, snap[i].ID)
	}
	for _, a := range snap {
		assert.NotEqual(t, ids[2], a.ID)
		assert.True(t, a.Alive)
	}
}

func TestAddAgent_ClampsToArena(t *testing.T) {
	s := newSim(t, quietConfig(), 1)
	id := s.AddAgent(AgentSpec{Pos: components.Position{X: -20, Y: 500}, Strain: 1})
	pos, ok := s.Position(id)
	require.True(t, ok)
	assert.Equal(t, components.Position{X: 0, Y: 100}, pos)
}

func TestDebug(t *testing.T) {
	s := newSim(t, quietConfig(), 1)
	id := s.AddAgent(AgentSpec{Pos: components.Position{X: 10, Y: 10}, Strain: 1})

	_, ok := s.Debug(999)
	assert.False(t, ok)

	d, ok := s.Debug(id)
	require.True(t, ok)
	assert.Equal(t, id, d.ID)
	assert.Equal(t, "idle", d.Focus)
	assert.NotEmpty(t, d.Fields)
	assert.Empty(t, d.Threats)
}
