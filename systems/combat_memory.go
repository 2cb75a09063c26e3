package systems

import (
	"sort"

	"github.com/pthm-cable/brawl/components"
	"github.com/pthm-cable/brawl/config"
)

// Encounter is one landed hit. For received hits Other is the attacker, for
// dealt hits it is the victim.
type Encounter struct {
	Other  components.AgentID
	Damage float64
	Time   float64
	Lethal bool
}

// CombatMemory is an agent's rolling log of hits taken and dealt. Windowed
// entries older than the horizon are pruned on the next record or query;
// lifetime counters are never pruned.
type CombatMemory struct {
	cfg       config.MemoryConfig
	maxHealth float64

	received []Encounter
	dealt    []Encounter

	// Lifetime aggregates
	hitsFrom       map[components.AgentID]int
	attackers      int
	receivedCount  int
	dealtCount     int
	damageTaken    float64
	damageDealt    float64
	lastAttacker   components.AgentID
	lastAttackedAt float64
}

// NewCombatMemory creates an empty memory. maxHealth normalizes threat.
func NewCombatMemory(cfg config.MemoryConfig, maxHealth float64) *CombatMemory {
	if cfg.Horizon <= 0 {
		cfg.Horizon = 10
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 32
	}
	if !(maxHealth > 0) {
		maxHealth = 1
	}
	return &CombatMemory{
		cfg:       cfg,
		maxHealth: maxHealth,
		hitsFrom:  make(map[components.AgentID]int),
	}
}

// Record logs a hit taken from attacker.
func (m *CombatMemory) Record(attacker components.AgentID, damage, t float64, lethal bool) {
	m.received = m.push(m.received, Encounter{Other: attacker, Damage: damage, Time: t, Lethal: lethal}, t)
	if m.hitsFrom[attacker] == 0 {
		m.attackers++
	}
	m.hitsFrom[attacker]++
	m.receivedCount++
	m.damageTaken += damage
	m.lastAttacker = attacker
	m.lastAttackedAt = t
}

// RecordDealt logs a hit this agent landed on victim.
func (m *CombatMemory) RecordDealt(victim components.AgentID, damage, t float64, lethal bool) {
	m.dealt = m.push(m.dealt, Encounter{Other: victim, Damage: damage, Time: t, Lethal: lethal}, t)
	m.dealtCount++
	m.damageDealt += damage
}

// push appends e after pruning, keeping at most MaxEntries.
func (m *CombatMemory) push(log []Encounter, e Encounter, now float64) []Encounter {
	log = m.pruneLog(log, now)
	if len(log) >= m.cfg.MaxEntries {
		drop := len(log) - m.cfg.MaxEntries + 1
		n := copy(log, log[drop:])
		log = log[:n]
	}
	return append(log, e)
}

// pruneLog drops entries older than the horizon. Entries are time ordered.
func (m *CombatMemory) pruneLog(log []Encounter, now float64) []Encounter {
	cut := 0
	for cut < len(log) && now-log[cut].Time > m.cfg.Horizon {
		cut++
	}
	if cut == 0 {
		return log
	}
	n := copy(log, log[cut:])
	return log[:n]
}

func (m *CombatMemory) prune(now float64) {
	m.received = m.pruneLog(m.received, now)
	m.dealt = m.pruneLog(m.dealt, now)
}

// Received returns the windowed hits taken, oldest first. The slice is
// shared; callers must not modify it.
func (m *CombatMemory) Received(now float64) []Encounter {
	m.prune(now)
	return m.received
}

// Dealt returns the windowed hits landed, oldest first.
func (m *CombatMemory) Dealt(now float64) []Encounter {
	m.prune(now)
	return m.dealt
}

// DamageFrom returns the windowed damage taken from id.
func (m *CombatMemory) DamageFrom(id components.AgentID, now float64) float64 {
	m.prune(now)
	total := 0.0
	for _, e := range m.received {
		if e.Other == id {
			total += e.Damage
		}
	}
	return total
}

// DamageByAttacker returns windowed damage totals per attacker.
func (m *CombatMemory) DamageByAttacker(now float64) map[components.AgentID]float64 {
	m.prune(now)
	out := make(map[components.AgentID]float64)
	for _, e := range m.received {
		out[e.Other] += e.Damage
	}
	return out
}

// Attackers returns the distinct windowed attackers in ascending id order.
func (m *CombatMemory) Attackers(now float64) []components.AgentID {
	totals := m.DamageByAttacker(now)
	ids := make([]components.AgentID, 0, len(totals))
	for id := range totals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ThreatOf scores how dangerous id has been recently, in [0, 1].
//
// Each hit counts with weight 1 - age/horizon and the sum is normalized by
// max health. An attacker whose windowed damage exceeds HeavyHitFraction of
// max health is boosted and floored at HeavyThreatFloor. killedMe adds
// KilledMeBonus even without recent hits.
func (m *CombatMemory) ThreatOf(id components.AgentID, now float64, killedMe bool) float64 {
	m.prune(now)
	weighted, raw := 0.0, 0.0
	for _, e := range m.received {
		if e.Other != id {
			continue
		}
		w := 1 - (now-e.Time)/m.cfg.Horizon
		if w > 1 {
			w = 1
		}
		if w > 0 {
			weighted += e.Damage * w
		}
		raw += e.Damage
	}

	score := weighted / m.maxHealth
	if raw > m.cfg.HeavyHitFraction*m.maxHealth {
		boost := m.cfg.HeavyThreatBoost
		if boost < 1 {
			boost = 1
		}
		score *= boost
		if score < m.cfg.HeavyThreatFloor {
			score = m.cfg.HeavyThreatFloor
		}
	}
	if killedMe {
		score += m.cfg.KilledMeBonus
	}
	return clamp01(score)
}

// MostDangerousAttacker returns the windowed attacker with the highest
// threat. killedMe may be nil. Ties go to the lower id.
func (m *CombatMemory) MostDangerousAttacker(now float64, killedMe func(components.AgentID) bool) (components.AgentID, bool) {
	best, bestThreat := components.NoAgent, -1.0
	for _, id := range m.Attackers(now) {
		km := killedMe != nil && killedMe(id)
		if th := m.ThreatOf(id, now, km); th > bestThreat {
			best, bestThreat = id, th
		}
	}
	return best, best != components.NoAgent
}

// LastAttacker returns the most recent attacker and when it struck.
func (m *CombatMemory) LastAttacker() (components.AgentID, float64, bool) {
	return m.lastAttacker, m.lastAttackedAt, m.lastAttacker != components.NoAgent
}

// HitsFrom returns the number of hits taken from id over its lifetime.
// Forgotten attackers report zero.
func (m *CombatMemory) HitsFrom(id components.AgentID) int { return m.hitsFrom[id] }

// Forget drops per-attacker hit counts for ids that alive rejects. Windowed
// entries expire on their own; the lifetime totals are kept.
func (m *CombatMemory) Forget(alive func(components.AgentID) bool) int {
	removed := 0
	for id := range m.hitsFrom {
		if !alive(id) {
			delete(m.hitsFrom, id)
			removed++
		}
	}
	return removed
}

// ReceivedCount returns the lifetime number of hits taken.
func (m *CombatMemory) ReceivedCount() int { return m.receivedCount }

// DealtCount returns the lifetime number of hits landed.
func (m *CombatMemory) DealtCount() int { return m.dealtCount }

// DistinctAttackers returns how many different agents ever hit this one.
func (m *CombatMemory) DistinctAttackers() int { return m.attackers }

// DamageTaken returns lifetime damage taken.
func (m *CombatMemory) DamageTaken() float64 { return m.damageTaken }

// DamageDealt returns lifetime damage dealt.
func (m *CombatMemory) DamageDealt() float64 { return m.damageDealt }
