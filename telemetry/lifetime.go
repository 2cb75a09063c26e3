package telemetry

import (
	"sort"

	"github.com/pthm-cable/brawl/components"
)

// LifetimeStats tracks per-agent statistics over its lifetime.
type LifetimeStats struct {
	AgentID         components.AgentID    `csv:"agent_id"`
	Strain          uint32                `csv:"strain"`
	ParentA         components.AgentID    `csv:"parent_a"`
	ParentB         components.AgentID    `csv:"parent_b"`
	BirthTick       int32                 `csv:"birth_tick"`
	DeathTick       int32                 `csv:"death_tick"`
	SurvivalTimeSec float64               `csv:"survival_sec"`
	Cause           components.DeathCause `csv:"-"`
	CauseName       string                `csv:"cause"`
	KilledBy        components.AgentID    `csv:"killed_by"`

	// Combat
	Attacks     int     `csv:"attacks"`
	Hits        int     `csv:"hits"`
	Criticals   int     `csv:"criticals"`
	Kills       int     `csv:"kills"`
	DamageDealt float64 `csv:"damage_dealt"`
	DamageTaken float64 `csv:"damage_taken"`
	Flights     int     `csv:"flights"`

	// Reproduction
	Children int `csv:"children"`

	// Foraging
	FoodEaten   int     `csv:"food_eaten"`
	HungerGain  float64 `csv:"hunger_gain"`
	DistanceRun float64 `csv:"distance"`
}

// LifetimeTracker manages per-agent lifetime statistics. It is fed from the
// event stream only, so it never touches simulation state.
type LifetimeTracker struct {
	stats    map[components.AgentID]*LifetimeStats
	finished []LifetimeStats
	dt       float64
}

// NewLifetimeTracker creates a new lifetime tracker.
func NewLifetimeTracker(dt float64) *LifetimeTracker {
	return &LifetimeTracker{
		stats: make(map[components.AgentID]*LifetimeStats),
		dt:    dt,
	}
}

// Register creates lifetime stats for a new agent.
func (lt *LifetimeTracker) Register(id components.AgentID, birthTick int32, strain uint32, parentA, parentB components.AgentID) {
	lt.stats[id] = &LifetimeStats{
		AgentID:   id,
		Strain:    strain,
		ParentA:   parentA,
		ParentB:   parentB,
		BirthTick: birthTick,
	}
}

// Get returns the lifetime stats for an agent, or nil if not found.
func (lt *LifetimeTracker) Get(id components.AgentID) *LifetimeStats {
	return lt.stats[id]
}

// Consume updates the tracker from one tick's events.
func (lt *LifetimeTracker) Consume(events []Event) {
	for _, ev := range events {
		switch ev.Type {
		case EventBirth:
			lt.Register(ev.AgentID, ev.Tick, ev.Strain, ev.OtherID, ev.SecondID)
			lt.with(ev.OtherID, func(s *LifetimeStats) { s.Children++ })
			if ev.SecondID != ev.OtherID {
				lt.with(ev.SecondID, func(s *LifetimeStats) { s.Children++ })
			}
		case EventAttack, EventCritical:
			lt.with(ev.AgentID, func(s *LifetimeStats) {
				s.Attacks++
				s.Hits++
				if ev.Type == EventCritical {
					s.Criticals++
				}
				s.DamageDealt += ev.Amount
				if ev.Lethal {
					s.Kills++
				}
			})
			lt.with(ev.OtherID, func(s *LifetimeStats) { s.DamageTaken += ev.Amount })
		case EventMiss:
			lt.with(ev.AgentID, func(s *LifetimeStats) { s.Attacks++ })
		case EventForage:
			lt.with(ev.AgentID, func(s *LifetimeStats) {
				s.FoodEaten++
				s.HungerGain += ev.Amount
			})
		case EventFleeStart:
			lt.with(ev.AgentID, func(s *LifetimeStats) { s.Flights++ })
		case EventMove:
			lt.with(ev.AgentID, func(s *LifetimeStats) { s.DistanceRun += ev.Amount })
		case EventDeath:
			lt.finish(ev)
		}
	}
}

func (lt *LifetimeTracker) with(id components.AgentID, fn func(*LifetimeStats)) {
	if s := lt.stats[id]; s != nil {
		fn(s)
	}
}

// finish moves a dead agent's stats to the finished list.
func (lt *LifetimeTracker) finish(ev Event) {
	s := lt.stats[ev.AgentID]
	if s == nil {
		return
	}
	s.DeathTick = ev.Tick
	s.SurvivalTimeSec = float64(ev.Tick-s.BirthTick) * lt.dt
	s.Cause = ev.Cause
	s.CauseName = ev.Cause.String()
	s.KilledBy = ev.OtherID
	lt.finished = append(lt.finished, *s)
	delete(lt.stats, ev.AgentID)
}

// DrainFinished returns and clears the stats of agents that died since the
// last call.
func (lt *LifetimeTracker) DrainFinished() []LifetimeStats {
	out := lt.finished
	lt.finished = nil
	return out
}

// Alive returns the stats of agents still alive, updated to currentTick and
// ordered by id.
func (lt *LifetimeTracker) Alive(currentTick int32) []LifetimeStats {
	out := make([]LifetimeStats, 0, len(lt.stats))
	for _, s := range lt.stats {
		cp := *s
		cp.SurvivalTimeSec = float64(currentTick-s.BirthTick) * lt.dt
		cp.CauseName = "alive"
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// Count returns the number of tracked live agents.
func (lt *LifetimeTracker) Count() int {
	return len(lt.stats)
}

// ActiveStrainCount returns the number of unique strains among live agents.
func (lt *LifetimeTracker) ActiveStrainCount() int {
	seen := make(map[uint32]struct{})
	for _, s := range lt.stats {
		seen[s.Strain] = struct{}{}
	}
	return len(seen)
}
