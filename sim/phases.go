package sim

import (
	"math"
	"sort"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/brawl/components"
	"github.com/pthm-cable/brawl/systems"
	"github.com/pthm-cable/brawl/telemetry"
)

// agentView captures read-only state of a live agent for the attend and
// decide phases.
type agentView struct {
	Entity      ecs.Entity
	ID          components.AgentID
	Strain      uint32
	Pos         components.Position
	Health      float64
	MaxHealth   float64
	HungerFrac  float64
	Personality components.Personality
	CanBreed    bool
	Mind        *Mind
}

// intent captures computed outputs to apply after a parallel phase.
type intent struct {
	Transition  *systems.Transition
	Decision    systems.Decision
	NewPos      components.Position
	NewVel      components.Velocity
	Moved       float64
	Waypoint    components.Position
	HasWaypoint bool
}

// attackIntent is one attack to resolve in the attack phase.
type attackIntent struct {
	attacker, target components.AgentID
	ae, te           ecs.Entity
	speed            float64
}

// phaseAge advances food, age, hunger, energy, cooldowns and hazard damage.
func (s *Simulation) phaseAge(dt float64) {
	s.food.step(dt, s.env, s.rng)

	ac := &s.cfg.Agent
	for _, id := range s.ids {
		e := s.entities[id]
		vit := s.vitalsMap.Get(e)
		if !vit.Alive {
			continue
		}
		org := s.orgMap.Get(e)
		pers := s.persMap.Get(e)

		vit.Age += dt
		if !vit.Mature && vit.Age >= ac.MaturityAge {
			vit.Mature = true
		}

		vit.Hunger -= ac.HungerRate * pers.Metabolism * dt
		if vit.Hunger < hungerEpsilon {
			vit.Hunger = 0
		}
		vit.Energy = math.Min(vit.MaxEnergy, vit.Energy+ac.EnergyRegen*dt)

		org.AttackCooldown = math.Max(0, org.AttackCooldown-dt)
		org.BreedCooldown = math.Max(0, org.BreedCooldown-dt)

		if s.env.HazardEnabled() {
			if dmg := s.env.HazardDamage(*s.posMap.Get(e)) * dt; dmg > 0 {
				vit.Health -= dmg
				if vit.Health <= 0 {
					s.kill(id, components.CauseHazard, components.NoAgent)
				}
			}
		}
	}
}

// buildViews snapshots every live agent in ascending id order.
func (s *Simulation) buildViews() {
	s.views = s.views[:0]
	clear(s.viewIdx)

	for _, id := range s.ids {
		e := s.entities[id]
		vit := s.vitalsMap.Get(e)
		if !vit.Alive {
			continue
		}
		org := s.orgMap.Get(e)
		s.viewIdx[id] = len(s.views)
		s.views = append(s.views, agentView{
			Entity:      e,
			ID:          id,
			Strain:      org.Strain,
			Pos:         *s.posMap.Get(e),
			Health:      vit.Health,
			MaxHealth:   vit.MaxHealth,
			HungerFrac:  vit.HungerFraction(),
			Personality: *s.persMap.Get(e),
			CanBreed:    s.canBreed(vit, org),
			Mind:        s.mindMap.Get(e),
		})
	}

	n := len(s.views)
	if cap(s.intents) < n {
		s.intents = make([]intent, n)
	}
	s.intents = s.intents[:n]
}

// neighbors fills scratch.Candidates with the live agents within perception
// range of v.
func (s *Simulation) neighbors(scratch *workerScratch, v *agentView) []systems.Candidate {
	scratch.Neighbors = s.agents.QueryRadiusInto(scratch.Neighbors[:0], v.Pos, s.cfg.Agent.PerceptionRange, true, v.ID)
	scratch.Candidates = scratch.Candidates[:0]
	for _, id := range scratch.Neighbors {
		idx, ok := s.viewIdx[id]
		if !ok {
			continue
		}
		o := &s.views[idx]
		scratch.Candidates = append(scratch.Candidates, systems.Candidate{
			ID:        o.ID,
			Pos:       o.Pos,
			Strain:    o.Strain,
			Health:    o.Health,
			MaxHealth: o.MaxHealth,
			Alive:     true,
		})
	}
	return scratch.Candidates
}

func actorOf(v *agentView) systems.Actor {
	return systems.Actor{
		ID:          v.ID,
		Pos:         v.Pos,
		Strain:      v.Strain,
		Health:      v.Health,
		MaxHealth:   v.MaxHealth,
		Personality: v.Personality,
		Relations:   v.Mind.Relations,
		Memory:      v.Mind.Memory,
		PrevTarget:  v.Mind.Target,
	}
}

// phaseAttend assembles each agent's stimuli and runs its attention model.
func (s *Simulation) phaseAttend() {
	s.pool.forEach(len(s.views), s.attendChunk)

	for i := range s.views {
		tr := s.intents[i].Transition
		if tr == nil {
			continue
		}
		s.emit(telemetry.NewFocusChangeEvent(s.tick, s.time, s.views[i].ID, tr.From.String(), tr.To.String(), tr.Held))
	}
}

func (s *Simulation) attendChunk(scratch *workerScratch, start, end int) {
	for i := start; i < end; i++ {
		v := &s.views[i]
		in := &s.intents[i]
		*in = intent{}

		cands := s.neighbors(scratch, v)
		clear(scratch.Stimuli)
		s.senseStimuli(v, cands, scratch.Stimuli)
		_, in.Transition = v.Mind.Attention.Evaluate(scratch.Stimuli, s.time)
	}
}

// senseStimuli computes the urgency of every stimulus present for v.
func (s *Simulation) senseStimuli(v *agentView, cands []systems.Candidate, out map[systems.Stimulus]float64) {
	ac := &s.cfg.Attention
	actor := actorOf(v)

	if fc := s.targeter.EvaluateFlee(&actor, cands); fc.Flee {
		out[systems.StimulusFlee] = 1
	}

	hostile, revenge := false, false
	for i := range cands {
		c := &cands[i]
		if v.Pos.DistanceTo(c.Pos) > s.cfg.Targeting.MaxEngagementRadius {
			continue
		}
		rel := v.Mind.Relations.Resolve(c.ID, v.Strain, c.Strain)
		if rel.Friendly() {
			continue
		}
		hostile = true
		if rel.Revenge() {
			revenge = true
			break
		}
	}
	if hostile {
		u := 0.5 + v.Personality.Aggression
		if revenge {
			u += ac.RevengeUrgency
		}
		out[systems.StimulusCombat] = u
	}

	if v.HungerFrac < ac.ForageStart {
		span := 1 - ac.ForageStart
		if span <= 0 {
			span = 1
		}
		out[systems.StimulusForage] = (1 - v.HungerFrac) / span
	}

	if s.env.HazardEnabled() {
		if level := s.env.Hazard(v.Pos); level > 0 && level >= ac.HazardThreshold {
			u := 1.0
			if ac.HazardThreshold > 0 {
				u = level / ac.HazardThreshold
			}
			out[systems.StimulusHazard] = u
		}
	}

	if ac.ExploreUrgency > 0 {
		out[systems.StimulusExplore] = ac.ExploreUrgency
	}

	if v.CanBreed && ac.SocialUrgency > 0 {
		if _, ok := s.nearestMate(v, cands); ok {
			out[systems.StimulusSocial] = ac.SocialUrgency * (0.5 + v.Personality.Sociability)
		}
	}
}

// nearestMate returns the closest breeding-eligible relative among cands.
func (s *Simulation) nearestMate(v *agentView, cands []systems.Candidate) (components.Position, bool) {
	best, bestD, found := components.Position{}, math.Inf(1), false
	for i := range cands {
		c := &cands[i]
		if c.Strain != v.Strain {
			continue
		}
		o := &s.views[s.viewIdx[c.ID]]
		if !o.CanBreed {
			continue
		}
		if d := v.Pos.DistanceTo(c.Pos); d < bestD {
			best, bestD, found = c.Pos, d, true
		}
	}
	return best, found
}

// phaseDecide runs targeting and steering for every agent, then applies the
// results in ascending id order.
func (s *Simulation) phaseDecide(dt float64) {
	s.pool.forEach(len(s.views), func(scratch *workerScratch, start, end int) {
		s.decideChunk(scratch, start, end, dt)
	})

	s.moved = s.moved[:0]
	for i := range s.views {
		v := &s.views[i]
		in := &s.intents[i]
		mind := v.Mind
		d := &in.Decision

		wasFleeing := mind.Fleeing
		mind.Fleeing = d.Kind == systems.DecisionFlee
		if mind.Fleeing {
			mind.FleeReason = d.Flee.Reason
			if !wasFleeing {
				s.emit(telemetry.NewFleeStartEvent(s.tick, s.time, v.ID, d.Flee.Reason.String(), v.Pos))
			}
		} else {
			mind.FleeReason = systems.FleeNone
		}

		if d.Kind == systems.DecisionTarget {
			mind.Target = d.Target
			mind.TargetDistance = d.Distance
		} else {
			mind.Target = components.NoAgent
			mind.TargetDistance = 0
		}
		mind.Waypoint = in.Waypoint
		mind.HasWaypoint = in.HasWaypoint

		*s.posMap.Get(v.Entity) = in.NewPos
		*s.velMap.Get(v.Entity) = in.NewVel
		if in.Moved > 0 {
			s.moved = append(s.moved, i)
			s.emit(telemetry.NewMoveEvent(s.tick, s.time, v.ID, in.NewPos, in.Moved))
		}
	}
}

func (s *Simulation) decideChunk(scratch *workerScratch, start, end int, dt float64) {
	for i := start; i < end; i++ {
		v := &s.views[i]
		in := &s.intents[i]

		cands := s.neighbors(scratch, v)
		actor := actorOf(v)
		focus := v.Mind.Attention.Focus().Stimulus
		in.Decision = s.targeter.Select(&actor, focus, cands, s.time)
		s.steer(v, in, focus, cands, dt)
	}
}

// steer turns the decision and focus into a movement for this tick.
func (s *Simulation) steer(v *agentView, in *intent, focus systems.Stimulus, cands []systems.Candidate, dt float64) {
	in.Waypoint, in.HasWaypoint = v.Mind.Waypoint, v.Mind.HasWaypoint
	step := s.cfg.Agent.Speed * v.Personality.Speed * dt

	var goal components.Position
	var stopShort float64
	hasGoal := false
	var dir components.Position

	switch d := &in.Decision; d.Kind {
	case systems.DecisionFlee:
		dir = d.FleeDir
		step *= s.cfg.Targeting.FleeSpeedBoost
	case systems.DecisionTarget:
		goal = s.views[s.viewIdx[d.Target]].Pos
		stopShort = s.cfg.Combat.AttackRange * 0.5
		hasGoal = true
	default:
		switch focus {
		case systems.StimulusForage:
			if _, p, ok := s.food.nearest(v.Pos, s.cfg.Derived.SearchRadius); ok {
				goal, hasGoal = p, true
			} else {
				goal, hasGoal = s.wander(v, in, step), true
			}
		case systems.StimulusHazard:
			dir = s.env.SafeDirection(v.Pos)
			if dir.Len() == 0 {
				goal, hasGoal = s.wander(v, in, step), true
			}
		case systems.StimulusSocial:
			if p, ok := s.nearestMate(v, cands); ok {
				goal, hasGoal = p, true
				stopShort = s.cfg.Derived.BreedRadius * 0.5
			}
		case systems.StimulusExplore, systems.StimulusCombat:
			goal, hasGoal = s.wander(v, in, step), true
		}
	}

	travel := step
	if hasGoal {
		gap := v.Pos.DistanceTo(goal) - stopShort
		if gap <= 0 {
			travel = 0
		} else {
			dir = goal.Sub(v.Pos).Normalize()
			travel = math.Min(step, gap)
		}
	}

	newPos := v.Pos
	if travel > 0 && dir.Len() > 0 {
		newPos = s.clampToArena(v.Pos.Add(dir.Scale(travel)))
	}
	in.NewPos = newPos
	in.Moved = newPos.DistanceTo(v.Pos)
	if dt > 0 {
		in.NewVel = components.Velocity{X: (newPos.X - v.Pos.X) / dt, Y: (newPos.Y - v.Pos.Y) / dt}
	}
}

// wander returns the agent's waypoint, choosing a new one when there is none
// or the current one is within reach. Waypoints are derived from the seed,
// the agent id and the tick so that decisions do not depend on worker order.
func (s *Simulation) wander(v *agentView, in *intent, step float64) components.Position {
	if in.HasWaypoint && v.Pos.DistanceTo(in.Waypoint) > step {
		return in.Waypoint
	}
	h := mix64(uint64(s.seed) ^ uint64(v.ID)<<32 ^ uint64(uint32(s.tick)))
	x := float64(h>>11) / (1 << 53)
	h = mix64(h)
	y := float64(h>>11) / (1 << 53)
	in.Waypoint = components.Position{X: x * s.cfg.Arena.Width, Y: y * s.cfg.Arena.Height}
	in.HasWaypoint = true
	return in.Waypoint
}

// mix64 is the splitmix64 finalizer.
func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// phaseIndex moves every agent that moved to its new cell.
func (s *Simulation) phaseIndex() {
	for _, i := range s.moved {
		v := &s.views[i]
		s.agents.Update(v.ID, *s.posMap.Get(v.Entity))
	}
}

// phaseAttack collects attack intents from the post-move state and resolves
// the fastest attackers first, ties in ascending attacker id. Intents whose
// attacker or target died earlier in the phase are dropped.
func (s *Simulation) phaseAttack() {
	cc := &s.cfg.Combat
	s.attacks = s.attacks[:0]

	for _, id := range s.ids {
		e := s.entities[id]
		vit := s.vitalsMap.Get(e)
		if !vit.Alive || vit.Energy < cc.AttackCost {
			continue
		}
		mind := s.mindMap.Get(e)
		if mind.Fleeing || mind.Target == components.NoAgent || mind.Attention.Focus().Stimulus != systems.StimulusCombat {
			continue
		}
		if s.orgMap.Get(e).AttackCooldown > 0 {
			continue
		}
		te, ok := s.entities[mind.Target]
		if !ok || !s.vitalsMap.Get(te).Alive {
			continue
		}
		if s.posMap.Get(e).DistanceTo(*s.posMap.Get(te)) > cc.AttackRange {
			continue
		}
		s.attacks = append(s.attacks, attackIntent{
			attacker: id,
			target:   mind.Target,
			ae:       e,
			te:       te,
			speed:    s.persMap.Get(e).Speed,
		})
	}

	// s.ids is ascending, so the stable sort keeps id order within a speed.
	sort.SliceStable(s.attacks, func(i, j int) bool {
		return s.attacks[i].speed > s.attacks[j].speed
	})
	for i := range s.attacks {
		s.resolveAttack(i)
	}
}

func (s *Simulation) resolveAttack(i int) {
	cc := &s.cfg.Combat
	at := &s.attacks[i]

	av := s.vitalsMap.Get(at.ae)
	tv := s.vitalsMap.Get(at.te)
	if !av.Alive || !tv.Alive {
		return
	}
	aorg := s.orgMap.Get(at.ae)
	torg := s.orgMap.Get(at.te)
	amind := s.mindMap.Get(at.ae)
	tmind := s.mindMap.Get(at.te)

	rel := amind.Relations.Resolve(at.target, aorg.Strain, torg.Strain)
	ctx := systems.DamageContext{
		Revenge:             rel.Revenge(),
		Rival:               rel.Kind == components.RelationRival,
		EngagingAllies:      s.engagingAllies(i, aorg.Strain, amind),
		DefendingWoundedKin: s.defendingWoundedKin(at.attacker, aorg.Strain, tmind),
	}

	aorg.AttackCooldown = cc.AttackCooldown
	av.Energy = math.Max(0, av.Energy-cc.AttackCost)

	roll := systems.RollAttack(*cc, s.persMap.Get(at.ae).Strength, s.modifiers.Multiplier(ctx), s.rng)
	if roll.Outcome == systems.OutcomeMiss {
		s.emit(telemetry.NewMissEvent(s.tick, s.time, at.attacker, at.target))
		return
	}

	tv.Health -= roll.Damage
	lethal := tv.Health <= 0
	tmind.Memory.Record(at.attacker, roll.Damage, s.time, lethal)
	amind.Memory.RecordDealt(at.target, roll.Damage, s.time, lethal)
	s.noteRival(tmind, at.attacker, tv.MaxHealth)

	s.emit(telemetry.NewAttackEvent(s.tick, s.time, at.attacker, at.target, roll.Damage, roll.Outcome == systems.OutcomeCritical, lethal))
	if lethal {
		s.kill(at.target, components.CauseCombat, at.attacker)
	}
}

// engagingAllies counts other live attackers friendly to attack i's attacker
// that hit the same target this tick.
func (s *Simulation) engagingAllies(i int, strain uint32, mind *Mind) int {
	at := &s.attacks[i]
	n := 0
	for j := range s.attacks {
		o := &s.attacks[j]
		if j == i || o.target != at.target || !s.vitalsMap.Get(o.ae).Alive {
			continue
		}
		if mind.Relations.Resolve(o.attacker, strain, s.orgMap.Get(o.ae).Strain).Friendly() {
			n++
		}
	}
	return n
}

// defendingWoundedKin reports whether the target is fighting a wounded
// relative of the attacker.
func (s *Simulation) defendingWoundedKin(attacker components.AgentID, strain uint32, tmind *Mind) bool {
	victim := tmind.Target
	if victim == components.NoAgent || victim == attacker {
		return false
	}
	e, ok := s.entities[victim]
	if !ok {
		return false
	}
	vit := s.vitalsMap.Get(e)
	return vit.Alive &&
		s.orgMap.Get(e).Strain == strain &&
		vit.HealthFraction() < s.cfg.Combat.WoundedFraction
}

// noteRival turns an attacker into a rival once its windowed damage crosses
// the threshold. A relative that hurts this much becomes hostile.
func (s *Simulation) noteRival(mind *Mind, attacker components.AgentID, maxHealth float64) {
	if mind.Memory.DamageFrom(attacker, s.time) < s.cfg.Combat.RivalDamageThreshold*maxHealth {
		return
	}
	mind.Relations.Update(attacker, func(r *components.Relation) {
		switch r.Kind {
		case components.RelationNone:
			r.Kind = components.RelationRival
		case components.RelationFamily, components.RelationAlly:
			r.Hostile = true
		}
	})
}

// phaseForage lets foraging agents eat food within reach.
func (s *Simulation) phaseForage() {
	radius := s.cfg.Derived.ForageRadius
	for _, id := range s.ids {
		e := s.entities[id]
		vit := s.vitalsMap.Get(e)
		if !vit.Alive || vit.Hunger >= vit.MaxHunger {
			continue
		}
		if s.mindMap.Get(e).Attention.Focus().Stimulus != systems.StimulusForage {
			continue
		}
		fid, _, ok := s.food.nearest(*s.posMap.Get(e), radius)
		if !ok {
			continue
		}
		value, ok := s.food.take(fid)
		if !ok {
			continue
		}
		before := vit.Hunger
		vit.Hunger = math.Min(vit.MaxHunger, vit.Hunger+value)
		s.emit(telemetry.NewForageEvent(s.tick, s.time, id, vit.Hunger-before))
	}
}

// phaseBreed pairs eligible agents in Social focus with an eligible relative
// in breeding range. Offspring are spawned after the scan.
func (s *Simulation) phaseBreed() {
	bc := &s.cfg.Breeding
	maxPop := s.cfg.Population.Max
	clear(s.paired)

	var births []AgentSpec
	var mates []components.AgentID

	for _, id := range s.ids {
		if maxPop > 0 && s.liveCount+len(births) >= maxPop {
			break
		}
		if s.paired[id] {
			continue
		}
		e := s.entities[id]
		vit := s.vitalsMap.Get(e)
		org := s.orgMap.Get(e)
		if !s.canBreed(vit, org) || s.mindMap.Get(e).Attention.Focus().Stimulus != systems.StimulusSocial {
			continue
		}

		pos := *s.posMap.Get(e)
		if !s.agents.AnyWithin(pos, s.cfg.Derived.BreedRadius, id) {
			continue
		}
		mates = s.agents.QueryRadiusInto(mates[:0], pos, s.cfg.Derived.BreedRadius, true, id)
		mate := components.NoAgent
		for _, mid := range mates {
			if s.paired[mid] || (mate != components.NoAgent && mid > mate) {
				continue
			}
			me := s.entities[mid]
			morg := s.orgMap.Get(me)
			if morg.Strain == org.Strain && s.canBreed(s.vitalsMap.Get(me), morg) {
				mate = mid
			}
		}
		if mate == components.NoAgent {
			continue
		}

		me := s.entities[mate]
		mvit := s.vitalsMap.Get(me)
		morg := s.orgMap.Get(me)
		s.paired[id], s.paired[mate] = true, true
		org.BreedCooldown, morg.BreedCooldown = bc.Cooldown, bc.Cooldown
		vit.Hunger = math.Max(0, vit.Hunger-bc.HungerCost)
		mvit.Hunger = math.Max(0, mvit.Hunger-bc.HungerCost)

		mpos := *s.posMap.Get(me)
		child := s.breeder.Offspring(
			ParentView{ID: id, Strain: org.Strain, Generation: org.Generation, Personality: *s.persMap.Get(e), Pos: pos},
			ParentView{ID: mate, Strain: morg.Strain, Generation: morg.Generation, Personality: *s.persMap.Get(me), Pos: mpos},
			s.rng,
		)
		births = append(births, AgentSpec{
			Pos:         s.breedOffset(pos, mpos),
			Strain:      child.Strain,
			Generation:  child.Generation,
			Personality: child.Personality,
			ParentA:     id,
			ParentB:     mate,
		})
	}

	for _, b := range births {
		s.spawn(b)
		s.birthCount++
	}
}
