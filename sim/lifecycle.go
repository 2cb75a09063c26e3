package sim

import (
	"log/slog"
	"math"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/brawl/components"
	"github.com/pthm-cable/brawl/systems"
	"github.com/pthm-cable/brawl/telemetry"
)

const founderPlacementTries = 16

// AddAgent spawns an agent outside the tick loop and returns its id. Its
// birth event is delivered with the next tick.
func (s *Simulation) AddAgent(spec AgentSpec) components.AgentID {
	return s.spawn(spec)
}

// spawnFounders creates n parentless agents spread over the strains.
func (s *Simulation) spawnFounders(n int) {
	strains := s.cfg.Population.Strains
	if strains < 1 {
		strains = 1
	}
	for i := 0; i < n; i++ {
		s.spawn(AgentSpec{
			Pos:         s.safeSpawnPoint(),
			Strain:      uint32(i%strains) + 1,
			Personality: s.founderPersonality(),
		})
	}
}

// safeSpawnPoint draws a uniform position, avoiding hazard zones when it can.
func (s *Simulation) safeSpawnPoint() components.Position {
	var p components.Position
	for i := 0; i < founderPlacementTries; i++ {
		p = components.Position{
			X: s.rng.Float64() * s.cfg.Arena.Width,
			Y: s.rng.Float64() * s.cfg.Arena.Height,
		}
		if s.env.Hazard(p) == 0 {
			break
		}
	}
	return p
}

// founderPersonality jitters the neutral personality.
func (s *Simulation) founderPersonality() components.Personality {
	j := s.cfg.Agent.TraitJitter
	spread := func() float64 { return (s.rng.Float64()*2 - 1) * j }
	p := components.DefaultPersonality()
	p.Aggression += spread()
	p.Caution += spread()
	p.Sociability += spread()
	p.Persistence *= 1 + spread()
	p.DistractionResistance *= 1 + spread()
	p.Metabolism *= 1 + spread()
	p.Strength *= 1 + spread()
	p.Speed *= 1 + spread()
	return p.Sanitized()
}

// spawn creates the entity, registers it everywhere and emits its birth.
func (s *Simulation) spawn(spec AgentSpec) components.AgentID {
	ac := &s.cfg.Agent

	id := s.nextID
	s.nextID++

	pers := spec.Personality.Sanitized()
	pos := s.clampToArena(spec.Pos)
	vel := components.Velocity{}

	health := spec.Health
	if !(health > 0) || health > ac.MaxHealth {
		health = ac.MaxHealth
	}
	hunger := spec.Hunger
	if !(hunger > 0) || hunger > ac.MaxHunger {
		hunger = ac.MaxHunger
	}
	vitals := components.Vitals{
		Health:    health,
		MaxHealth: ac.MaxHealth,
		Energy:    ac.MaxEnergy,
		MaxEnergy: ac.MaxEnergy,
		Hunger:    hunger,
		MaxHunger: ac.MaxHunger,
		Mature:    ac.MaturityAge <= 0,
		Alive:     true,
	}
	org := components.Organism{
		ID:         id,
		Strain:     spec.Strain,
		Generation: spec.Generation,
		ParentA:    spec.ParentA,
		ParentB:    spec.ParentB,
		BornAt:     s.time,
	}
	mind := newMind(s.priorities, systems.NewCombatMemory(s.cfg.Memory, ac.MaxHealth), pers)
	mind.Attention.Force(systems.StimulusIdle, s.time)

	entity := s.agentMapper.NewEntity(&pos, &vel, &vitals, &org, &pers, &mind)
	s.entities[id] = entity
	s.ids = append(s.ids, id)
	s.agents.Insert(id, pos)
	s.liveCount++

	s.emit(telemetry.NewBirthEvent(s.tick, s.time, id, spec.ParentA, spec.ParentB, spec.Strain, pos))
	return id
}

// kill performs the one-shot death transition. It returns false, changing
// nothing, when the agent is unknown or already dead.
func (s *Simulation) kill(id components.AgentID, cause components.DeathCause, killer components.AgentID) bool {
	e, ok := s.entities[id]
	if !ok {
		return false
	}
	vit := s.vitalsMap.Get(e)
	if !vit.Alive {
		return false
	}

	vit.Alive = false
	vit.Health = 0
	vit.Cause = cause

	pos := *s.posMap.Get(e)
	strain := s.orgMap.Get(e).Strain
	s.agents.Remove(id)
	s.liveCount--
	s.deathCount++
	s.deathsByCause[cause]++

	if killer != components.NoAgent {
		s.markKinKiller(strain, id, killer)
	}

	s.emit(telemetry.NewDeathEvent(s.tick, s.time, id, killer, cause, pos))
	slog.Debug("agent_died", "id", id, "cause", cause.String(), "killer", killer, "tick", s.tick)
	return true
}

// markKinKiller makes killer a revenge target for every live relative of the
// victim. The victim's own offspring carry its lineage on and remember the
// killer as having killed them.
func (s *Simulation) markKinKiller(strain uint32, victim, killer components.AgentID) {
	for _, id := range s.ids {
		if id == victim || id == killer {
			continue
		}
		e := s.entities[id]
		org := s.orgMap.Get(e)
		if !s.vitalsMap.Get(e).Alive || org.Strain != strain {
			continue
		}
		child := org.ParentA == victim || org.ParentB == victim
		s.mindMap.Get(e).Relations.Update(killer, func(r *components.Relation) {
			if child {
				r.KilledMe = true
			} else {
				r.KilledKin = true
			}
		})
	}
}

// resolveStarvation kills every live agent whose hunger ran out. Agents that
// are already dead are skipped, so repeating it within a tick is a no-op.
func (s *Simulation) resolveStarvation() {
	for _, id := range s.ids {
		e := s.entities[id]
		vit := s.vitalsMap.Get(e)
		if !vit.Alive || vit.Hunger > 0 {
			continue
		}
		s.kill(id, components.CauseStarvation, components.NoAgent)
	}
}

// canBreed reports breeding eligibility from vitals and timers.
func (s *Simulation) canBreed(vit *components.Vitals, org *components.Organism) bool {
	b := &s.cfg.Breeding
	return vit.Alive &&
		vit.Mature &&
		org.BreedCooldown <= 0 &&
		vit.HealthFraction() >= b.MinHealthFraction &&
		vit.HungerFraction() >= b.MinHungerFraction
}

// cleanupDead removes dead entities from the world and the id table.
func (s *Simulation) cleanupDead() {
	// First pass: collect dead entities (must complete before modifying)
	type deadInfo struct {
		entity ecs.Entity
		id     components.AgentID
	}
	var toRemove []deadInfo

	query := s.agentFilter.Query()
	for query.Next() {
		_, _, vit, org, _, _ := query.Get()
		if !vit.Alive {
			toRemove = append(toRemove, deadInfo{entity: query.Entity(), id: org.ID})
		}
	}

	// Second pass: remove entities (query iteration complete)
	for _, dead := range toRemove {
		s.world.RemoveEntity(dead.entity)
		delete(s.entities, dead.id)
	}

	if len(toRemove) > 0 {
		kept := s.ids[:0]
		for _, id := range s.ids {
			if _, ok := s.entities[id]; ok {
				kept = append(kept, id)
			}
		}
		s.ids = kept

		// Drop relationship and hit-count entries for agents that no longer exist
		for _, id := range s.ids {
			mind := s.mindMap.Get(s.entities[id])
			mind.Relations.Prune(s.Alive)
			mind.Memory.Forget(s.Alive)
		}
	}

	s.respawn()
}

// respawn tops the population up with founders when it falls below the
// configured floor.
func (s *Simulation) respawn() {
	pc := &s.cfg.Population
	if pc.RespawnThreshold <= 0 || s.liveCount >= pc.RespawnThreshold {
		return
	}
	slog.Info("respawn", "tick", s.tick, "live", s.liveCount, "count", pc.RespawnCount)
	s.spawnFounders(pc.RespawnCount)
}

// breedOffset returns a spawn point near the midpoint of two parents.
func (s *Simulation) breedOffset(a, b components.Position) components.Position {
	mid := components.Position{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
	angle := s.rng.Float64() * 2 * math.Pi
	off := s.cfg.Breeding.SpawnOffset
	return s.clampToArena(components.Position{
		X: mid.X + math.Cos(angle)*off,
		Y: mid.Y + math.Sin(angle)*off,
	})
}
