package systems

import (
	"math"
	"math/rand"

	"github.com/pthm-cable/brawl/config"
)

// AttackOutcome is the result of an attack roll.
type AttackOutcome uint8

const (
	OutcomeMiss AttackOutcome = iota
	OutcomeHit
	OutcomeCritical
)

// String returns the event name for an AttackOutcome.
func (o AttackOutcome) String() string {
	switch o {
	case OutcomeHit:
		return "hit"
	case OutcomeCritical:
		return "critical"
	default:
		return "miss"
	}
}

// DamageContext describes the situation an attack lands in.
type DamageContext struct {
	Revenge             bool // target killed the attacker or its kin
	Rival               bool
	EngagingAllies      int  // other allies attacking the same target this tick
	DefendingWoundedKin bool // target is hurting a wounded relative of the attacker
}

// ModifierBreakdown lists each capped multiplier and their capped product.
type ModifierBreakdown struct {
	Revenge  float64
	Rival    float64
	GangUp   float64
	Family   float64
	Combined float64
}

// DamageModifiers computes the bounded multiplicative damage modifiers.
type DamageModifiers struct {
	cfg config.CombatConfig
}

// NewDamageModifiers creates modifiers from the combat config.
func NewDamageModifiers(cfg config.CombatConfig) DamageModifiers {
	return DamageModifiers{cfg: cfg}
}

// Breakdown returns every modifier for ctx. Each term is capped on its own
// and the product is capped by MaxCombinedModifier.
func (d DamageModifiers) Breakdown(ctx DamageContext) ModifierBreakdown {
	b := ModifierBreakdown{Revenge: 1, Rival: 1, GangUp: 1, Family: 1}
	if ctx.Revenge {
		b.Revenge = capModifier(d.cfg.RevengeBonus, d.cfg.RevengeCap)
	}
	if ctx.Rival {
		b.Rival = capModifier(d.cfg.RivalBonus, d.cfg.RivalCap)
	}
	if ctx.EngagingAllies > 0 {
		b.GangUp = capModifier(1+d.cfg.GangUpPerAlly*float64(ctx.EngagingAllies), d.cfg.GangUpCap)
	}
	if ctx.DefendingWoundedKin {
		b.Family = capModifier(d.cfg.FamilyProtectBonus, d.cfg.FamilyProtectCap)
	}
	b.Combined = capModifier(b.Revenge*b.Rival*b.GangUp*b.Family, d.cfg.MaxCombinedModifier)
	return b
}

// Multiplier returns the combined modifier for ctx.
func (d DamageModifiers) Multiplier(ctx DamageContext) float64 {
	return d.Breakdown(ctx).Combined
}

// capModifier bounds a multiplier to [1, limit]. A limit below 1 disables the
// modifier.
func capModifier(v, limit float64) float64 {
	if math.IsNaN(v) || v < 1 || limit < 1 {
		return 1
	}
	if v > limit {
		return limit
	}
	return v
}

// AttackRoll is a rolled attack.
type AttackRoll struct {
	Outcome AttackOutcome
	Damage  float64
}

// RollAttack rolls miss, jitter and critical in that order from rng.
// strength scales base damage; modifier is the combined damage modifier.
func RollAttack(cfg config.CombatConfig, strength, modifier float64, rng *rand.Rand) AttackRoll {
	if rng.Float64() < cfg.MissChance {
		return AttackRoll{Outcome: OutcomeMiss}
	}
	jitter := 1 + cfg.DamageJitter*(2*rng.Float64()-1)
	dmg := cfg.BaseDamage * strength * jitter * modifier
	if dmg < 0 {
		dmg = 0
	}
	if rng.Float64() < cfg.CritChance {
		return AttackRoll{Outcome: OutcomeCritical, Damage: dmg * cfg.CritMultiplier}
	}
	return AttackRoll{Outcome: OutcomeHit, Damage: dmg}
}
