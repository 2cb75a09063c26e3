package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/brawl/components"
	"github.com/pthm-cable/brawl/config"
	"github.com/pthm-cable/brawl/telemetry"
)

// battleConfig is a crowded default arena that produces fights, hazard
// deaths and breeding within a few hundred ticks.
func battleConfig() *config.Config {
	cfg := config.Default()
	cfg.Arena.Width = 120
	cfg.Arena.Height = 120
	cfg.Population.Initial = 48
	cfg.Agent.MaturityAge = 5
	cfg.Parallel.Enabled = false
	return cfg
}

func TestDeathsHappenExactlyOnce(t *testing.T) {
	for _, seed := range []int64{1, 2, 3} {
		s := newSim(t, battleConfig(), seed)

		deaths := map[components.AgentID]int{}
		births, deathEvents := 0, 0
		for i := 0; i < 800; i++ {
			for _, ev := range s.Advance(0) {
				switch ev.Type {
				case telemetry.EventDeath:
					deaths[ev.AgentID]++
					deathEvents++
					assert.False(t, s.Alive(ev.AgentID), "seed %d: dead agent %d still alive", seed, ev.AgentID)
				case telemetry.EventBirth:
					births++
				}
			}
		}

		for id, n := range deaths {
			assert.Equal(t, 1, n, "seed %d: agent %d died %d times", seed, id, n)
		}
		assert.Equal(t, s.DeathCount(), deathEvents, "seed %d", seed)
		assert.Equal(t, births-deathEvents, s.LiveCount(), "seed %d", seed)

		byCause := 0
		for c := components.CauseNone; c <= components.CauseHazard; c++ {
			byCause += s.DeathsBy(c)
		}
		assert.Equal(t, s.DeathCount(), byCause, "seed %d", seed)
	}
}

func TestIndexHasNoGhosts(t *testing.T) {
	s := newSim(t, battleConfig(), 11)

	for i := 0; i < 400; i++ {
		s.Advance(0)

		require.Equal(t, s.LiveCount(), s.agents.Len(), "tick %d", s.Tick())
		for _, a := range s.Snapshot() {
			pos, ok := s.agents.Position(a.ID)
			require.True(t, ok, "tick %d: live agent %d missing from index", s.Tick(), a.ID)
			assert.Equal(t, components.Position{X: a.X, Y: a.Y}, pos)
			found := s.agents.QueryRadius(pos, 0, true)
			assert.Contains(t, found, a.ID)
		}
		for id := range s.entities {
			if !s.Alive(id) {
				t.Fatalf("tick %d: dead agent %d survived cleanup", s.Tick(), id)
			}
		}
	}
}

func TestTargetsStayWithinEngagementRadius(t *testing.T) {
	cfg := battleConfig()
	cfg.Targeting.MaxEngagementRadius = 12
	s := newSim(t, cfg, 4)

	targeted := 0
	for i := 0; i < 300; i++ {
		s.Advance(0)
		for _, a := range s.Snapshot() {
			if a.Target == components.NoAgent {
				continue
			}
			targeted++
			d, ok := s.Debug(a.ID)
			require.True(t, ok)
			assert.LessOrEqual(t, d.TargetDistance, 12.0, "tick %d agent %d", s.Tick(), a.ID)
		}
	}
	assert.Positive(t, targeted, "expected some agents to pick targets")
}

func TestAttackRequiresRange(t *testing.T) {
	s := newSim(t, battleConfig(), 9)
	reach := s.Config().Combat.AttackRange

	for i := 0; i < 300; i++ {
		for _, ev := range s.Advance(0) {
			if !ev.IsHit() && ev.Type != telemetry.EventMiss {
				continue
			}
			pa, okA := s.agents.Position(ev.AgentID)
			pt, okT := s.agents.Position(ev.OtherID)
			if !okA || !okT {
				continue // one side died and was cleaned up
			}
			assert.LessOrEqual(t, pa.DistanceTo(pt), reach+1e-9, "tick %d", ev.Tick)
		}
	}
}

func TestParallelMatchesSerial(t *testing.T) {
	run := func(parallel bool) ([]telemetry.Event, []telemetry.AgentState) {
		cfg := battleConfig()
		cfg.Parallel.Enabled = parallel
		cfg.Parallel.Threshold = 1
		cfg.Parallel.Workers = 4
		s := newSim(t, cfg, 21)

		var events []telemetry.Event
		for i := 0; i < 300; i++ {
			events = append(events, s.Advance(0)...)
		}
		return events, s.Snapshot()
	}

	serialEvents, serialAgents := run(false)
	parallelEvents, parallelAgents := run(true)

	require.Equal(t, len(serialEvents), len(parallelEvents))
	assert.Equal(t, serialEvents, parallelEvents)
	assert.Equal(t, serialAgents, parallelAgents)
}

func TestSameSeedSameRun(t *testing.T) {
	run := func(seed int64) []telemetry.Event {
		s := newSim(t, battleConfig(), seed)
		var events []telemetry.Event
		for i := 0; i < 200; i++ {
			events = append(events, s.Advance(0)...)
		}
		return events
	}
	assert.Equal(t, run(5), run(5))
	assert.NotEqual(t, run(5), run(6))
}
