// Package sim runs the tick loop of the battle simulation: agents stored in
// an ark ECS world, indexed spatially, driven by the attention and targeting
// models of package systems.
package sim

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/brawl/components"
	"github.com/pthm-cable/brawl/config"
	"github.com/pthm-cable/brawl/systems"
	"github.com/pthm-cable/brawl/telemetry"
)

// ErrInvalidArena is returned by New for non-positive arena dimensions.
var ErrInvalidArena = config.ErrInvalidArena

// hungerEpsilon snaps accumulated float error to an empty stomach.
const hungerEpsilon = 1e-6

// EventSink receives one frame per tick: the events the tick produced plus a
// copy of the population. Sinks run on the tick goroutine and must not
// retain the frame's slices past the call unless they copy them.
type EventSink interface {
	Consume(frame *telemetry.Snapshot) error
}

// AgentSpec describes an agent to add. Zero Health or Hunger means full.
type AgentSpec struct {
	Pos         components.Position
	Strain      uint32
	Generation  int
	Personality components.Personality
	Health      float64
	Hunger      float64
	ParentA     components.AgentID
	ParentB     components.AgentID
}

// Simulation holds the complete battle state.
type Simulation struct {
	cfg   *config.Config
	world *ecs.World
	rng   *rand.Rand
	seed  int64

	// Entity mappers
	agentMapper *ecs.Map6[
		components.Position,
		components.Velocity,
		components.Vitals,
		components.Organism,
		components.Personality,
		Mind,
	]
	agentFilter *ecs.Filter6[
		components.Position,
		components.Velocity,
		components.Vitals,
		components.Organism,
		components.Personality,
		Mind,
	]

	// Individual component mappers for lookups
	posMap    *ecs.Map1[components.Position]
	velMap    *ecs.Map1[components.Velocity]
	vitalsMap *ecs.Map1[components.Vitals]
	orgMap    *ecs.Map1[components.Organism]
	persMap   *ecs.Map1[components.Personality]
	mindMap   *ecs.Map1[Mind]

	// Stable id table; ids is ascending and holds every entity in the world
	entities map[components.AgentID]ecs.Entity
	ids      []components.AgentID

	agents     *systems.SpatialIndex[components.AgentID]
	food       *foodField
	env        *systems.Environment
	priorities *systems.PriorityTable
	targeter   *systems.Targeter
	modifiers  systems.DamageModifiers
	breeder    Breeder
	sinks      []EventSink
	sinkErr    error

	pool *workerPool
	perf *telemetry.PerfCollector

	// Per-tick scratch
	views   []agentView
	viewIdx map[components.AgentID]int
	intents []intent
	moved   []int
	attacks []attackIntent
	paired  map[components.AgentID]bool
	events  []telemetry.Event

	// State
	tick          int32
	time          float64
	nextID        components.AgentID
	liveCount     int
	deathCount    int
	birthCount    int
	deathsByCause [4]int
}

// New creates a simulation and spawns the initial population. The config is
// copied and normalized; a non-positive arena yields ErrInvalidArena.
func New(cfg *config.Config, seed int64) (*Simulation, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	c := *cfg
	c.Attention.Priorities = make(map[string]config.StimulusConfig, len(cfg.Attention.Priorities))
	for k, v := range cfg.Attention.Priorities {
		c.Attention.Priorities[k] = v
	}
	if err := c.Normalize(); err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}

	world := ecs.NewWorld()
	s := &Simulation{
		cfg:   &c,
		world: world,
		rng:   rand.New(rand.NewSource(seed)),
		seed:  seed,
		agentMapper: ecs.NewMap6[
			components.Position,
			components.Velocity,
			components.Vitals,
			components.Organism,
			components.Personality,
			Mind,
		](world),
		agentFilter: ecs.NewFilter6[
			components.Position,
			components.Velocity,
			components.Vitals,
			components.Organism,
			components.Personality,
			Mind,
		](world),
		posMap:    ecs.NewMap1[components.Position](world),
		velMap:    ecs.NewMap1[components.Velocity](world),
		vitalsMap: ecs.NewMap1[components.Vitals](world),
		orgMap:    ecs.NewMap1[components.Organism](world),
		persMap:   ecs.NewMap1[components.Personality](world),
		mindMap:   ecs.NewMap1[Mind](world),

		entities: make(map[components.AgentID]ecs.Entity),
		viewIdx:  make(map[components.AgentID]int),
		paired:   make(map[components.AgentID]bool),
		nextID:   1,
	}

	w, h := c.Arena.Width, c.Arena.Height
	s.agents = systems.NewSpatialIndex[components.AgentID](w, h, c.Derived.CellSize)
	s.food = newFoodField(c.Foraging, w, h, c.Derived.CellSize)
	s.env = systems.NewEnvironment(c.Environment, w, h, seed)
	s.priorities = systems.NewPriorityTable(c.Attention)
	s.targeter = systems.NewTargeter(c.Targeting)
	s.modifiers = systems.NewDamageModifiers(c.Combat)
	s.breeder = NewBreeder(c.Breeding)
	s.pool = newWorkerPool(c.Parallel.Enabled, c.Parallel.Workers, c.Parallel.Threshold)
	s.perf = telemetry.NewPerfCollector(s.windowTicks())

	s.food.seed(s.env, s.rng)
	s.spawnFounders(c.Population.Initial)

	slog.Info("spawned_population",
		"agents", s.liveCount,
		"strains", c.Population.Strains,
		"food", s.food.Len(),
		"cell_size", c.Derived.CellSize,
		"seed", seed,
	)
	return s, nil
}

func (s *Simulation) windowTicks() int {
	n := int(s.cfg.Telemetry.StatsWindow/s.cfg.Arena.DT + 0.5)
	if n < 1 {
		n = 1
	}
	return n
}

// SetBreeder replaces the offspring collaborator. Nil restores cloning.
func (s *Simulation) SetBreeder(b Breeder) {
	if b == nil {
		b = CloneBreeder{}
	}
	s.breeder = b
}

// AddSink registers a collaborator that receives every tick's frame.
func (s *Simulation) AddSink(sink EventSink) {
	s.sinks = append(s.sinks, sink)
}

// Close stops the decision workers.
func (s *Simulation) Close() {
	s.pool.stopWorkers()
}

// Advance runs one tick of dt seconds (the configured dt when dt <= 0) and
// returns the events it produced. Events from agents added between ticks
// are delivered with the next tick.
func (s *Simulation) Advance(dt float64) []telemetry.Event {
	if !(dt > 0) {
		dt = s.cfg.Arena.DT
	}
	s.tick++
	s.time += dt

	s.perf.StartTick()

	s.perf.StartPhase(telemetry.PhaseAge)
	s.phaseAge(dt)

	s.perf.StartPhase(telemetry.PhaseAttend)
	s.buildViews()
	s.phaseAttend()

	s.perf.StartPhase(telemetry.PhaseDecide)
	s.phaseDecide(dt)

	s.perf.StartPhase(telemetry.PhaseIndex)
	s.phaseIndex()

	s.perf.StartPhase(telemetry.PhaseAttack)
	s.phaseAttack()

	s.perf.StartPhase(telemetry.PhaseStarve)
	s.resolveStarvation()

	s.perf.StartPhase(telemetry.PhaseForage)
	s.phaseForage()

	s.perf.StartPhase(telemetry.PhaseBreed)
	s.phaseBreed()

	s.perf.StartPhase(telemetry.PhaseCleanup)
	s.cleanupDead()

	s.perf.EndTick()

	events := s.events
	s.events = nil
	s.publish(events)
	return events
}

// publish hands the tick's frame to every sink. Sink failures are logged and
// remembered; they never stop the simulation.
func (s *Simulation) publish(events []telemetry.Event) {
	if len(s.sinks) == 0 {
		return
	}
	frame := s.Frame(events)
	for _, sink := range s.sinks {
		if err := sink.Consume(frame); err != nil {
			slog.Error("sink_failed", "tick", s.tick, "err", err)
			if s.sinkErr == nil {
				s.sinkErr = err
			}
		}
	}
}

// SinkErr returns the first error a sink reported.
func (s *Simulation) SinkErr() error { return s.sinkErr }

// emit appends an event to the current tick.
func (s *Simulation) emit(ev telemetry.Event) {
	s.events = append(s.events, ev)
}

// Frame packages events with a copy of the current population.
func (s *Simulation) Frame(events []telemetry.Event) *telemetry.Snapshot {
	return &telemetry.Snapshot{
		Version:     telemetry.SnapshotVersion,
		RNGSeed:     s.seed,
		ArenaWidth:  s.cfg.Arena.Width,
		ArenaHeight: s.cfg.Arena.Height,
		Tick:        s.tick,
		Time:        s.time,
		Agents:      s.Snapshot(),
		Events:      events,
		Food:        s.food.Len(),
	}
}

// Snapshot returns read-only copies of every live agent in ascending id
// order.
func (s *Simulation) Snapshot() []telemetry.AgentState {
	out := make([]telemetry.AgentState, 0, s.liveCount)
	for _, id := range s.ids {
		e := s.entities[id]
		vit := s.vitalsMap.Get(e)
		if !vit.Alive {
			continue
		}
		pos := s.posMap.Get(e)
		vel := s.velMap.Get(e)
		org := s.orgMap.Get(e)
		mind := s.mindMap.Get(e)
		out = append(out, telemetry.AgentState{
			ID:         id,
			Strain:     org.Strain,
			Generation: org.Generation,
			X:          pos.X,
			Y:          pos.Y,
			VelX:       vel.X,
			VelY:       vel.Y,
			Health:     vit.Health,
			MaxHealth:  vit.MaxHealth,
			Energy:     vit.Energy,
			Hunger:     vit.Hunger,
			Age:        vit.Age,
			Mature:     vit.Mature,
			Alive:      vit.Alive,
			Focus:      mind.Attention.Focus().Stimulus.String(),
			Target:     mind.Target,
			Fleeing:    mind.Fleeing,
		})
	}
	return out
}

// Tick returns the number of completed ticks.
func (s *Simulation) Tick() int32 { return s.tick }

// Time returns the simulated seconds elapsed.
func (s *Simulation) Time() float64 { return s.time }

// LiveCount returns the number of live agents.
func (s *Simulation) LiveCount() int { return s.liveCount }

// DeathCount returns the number of deaths so far.
func (s *Simulation) DeathCount() int { return s.deathCount }

// DeathsBy returns the number of deaths with the given cause.
func (s *Simulation) DeathsBy(cause components.DeathCause) int {
	if int(cause) >= len(s.deathsByCause) {
		return 0
	}
	return s.deathsByCause[cause]
}

// BirthCount returns the number of offspring born so far. Founders and
// respawns are not births.
func (s *Simulation) BirthCount() int { return s.birthCount }

// FoodCount returns the number of food items in the arena.
func (s *Simulation) FoodCount() int { return s.food.Len() }

// Config returns the normalized configuration in use.
func (s *Simulation) Config() *config.Config { return s.cfg }

// Seed returns the RNG seed of the run.
func (s *Simulation) Seed() int64 { return s.seed }

// Perf returns the phase timing collector.
func (s *Simulation) Perf() *telemetry.PerfCollector { return s.perf }

// Alive reports whether id names a live agent.
func (s *Simulation) Alive(id components.AgentID) bool {
	e, ok := s.entities[id]
	return ok && s.vitalsMap.Get(e).Alive
}

// Position returns the current position of a live agent.
func (s *Simulation) Position(id components.AgentID) (components.Position, bool) {
	if !s.Alive(id) {
		return components.Position{}, false
	}
	return *s.posMap.Get(s.entities[id]), true
}

// MakeHostile marks a and b as hostile to each other, overriding kinship.
func (s *Simulation) MakeHostile(a, b components.AgentID) {
	if !s.Alive(a) || !s.Alive(b) || a == b {
		return
	}
	s.mindMap.Get(s.entities[a]).Relations.Update(b, func(r *components.Relation) { r.Hostile = true })
	s.mindMap.Get(s.entities[b]).Relations.Update(a, func(r *components.Relation) { r.Hostile = true })
}

// clampToArena keeps p inside the arena bounds.
func (s *Simulation) clampToArena(p components.Position) components.Position {
	if math.IsNaN(p.X) || math.IsNaN(p.Y) {
		return components.Position{X: s.cfg.Arena.Width / 2, Y: s.cfg.Arena.Height / 2}
	}
	p.X = math.Max(0, math.Min(s.cfg.Arena.Width, p.X))
	p.Y = math.Max(0, math.Min(s.cfg.Arena.Height, p.Y))
	return p
}
