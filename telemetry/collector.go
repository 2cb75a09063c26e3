package telemetry

import "github.com/pthm-cable/brawl/components"

// PopulationSample is the end-of-window population state supplied by the
// simulation when a window is flushed.
type PopulationSample struct {
	Live          int
	ActiveStrains int
	Healths       []float64
	Hungers       []float64
	Focus         map[string]int // focus name -> agent count
	Food          int
}

// Collector accumulates events within time windows and produces WindowStats.
type Collector struct {
	windowDurationSec   float64
	windowDurationTicks int32
	dt                  float64

	// Current window tracking
	windowStartTick int32

	// Event counters for current window
	births           int
	combatDeaths     int
	starvationDeaths int
	hazardDeaths     int
	hits             int
	criticals        int
	misses           int
	kills            int
	damage           float64
	focusChanges     int
	fleeStarts       int
	forages          int
}

// NewCollector creates a new stats collector.
// windowDurationSec: how long each stats window lasts in simulation seconds
// dt: seconds per tick (used for tick-to-time conversion)
func NewCollector(windowDurationSec, dt float64) *Collector {
	ticksPerWindow := int32(windowDurationSec/dt + 0.5)
	if ticksPerWindow < 1 {
		ticksPerWindow = 1
	}

	return &Collector{
		windowDurationSec:   windowDurationSec,
		windowDurationTicks: ticksPerWindow,
		dt:                  dt,
	}
}

// Record counts a single event.
func (c *Collector) Record(ev Event) {
	switch ev.Type {
	case EventAttack:
		c.hits++
		c.damage += ev.Amount
	case EventCritical:
		c.hits++
		c.criticals++
		c.damage += ev.Amount
	case EventMiss:
		c.misses++
	case EventBirth:
		c.births++
	case EventDeath:
		switch ev.Cause {
		case components.CauseCombat:
			c.combatDeaths++
			if ev.OtherID != components.NoAgent {
				c.kills++
			}
		case components.CauseStarvation:
			c.starvationDeaths++
		case components.CauseHazard:
			c.hazardDeaths++
		}
	case EventFocusChange:
		c.focusChanges++
	case EventFleeStart:
		c.fleeStarts++
	case EventForage:
		c.forages++
	}
}

// RecordAll counts every event of a tick.
func (c *Collector) RecordAll(events []Event) {
	for i := range events {
		c.Record(events[i])
	}
}

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(currentTick int32) bool {
	return currentTick-c.windowStartTick >= c.windowDurationTicks
}

// Flush produces a WindowStats and resets counters for the next window.
func (c *Collector) Flush(currentTick int32, pop PopulationSample) WindowStats {
	attacks := c.hits + c.misses
	var hitRate, killRate float64
	if attacks > 0 {
		hitRate = float64(c.hits) / float64(attacks)
	}
	if c.hits > 0 {
		killRate = float64(c.kills) / float64(c.hits)
	}

	health := ComputeDistribution(pop.Healths)
	hunger := ComputeDistribution(pop.Hungers)

	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,
		SimTimeSec:      float64(currentTick) * c.dt,

		Live:          pop.Live,
		ActiveStrains: pop.ActiveStrains,

		Births:           c.births,
		Deaths:           c.combatDeaths + c.starvationDeaths + c.hazardDeaths,
		CombatDeaths:     c.combatDeaths,
		StarvationDeaths: c.starvationDeaths,
		HazardDeaths:     c.hazardDeaths,
		FocusChanges:     c.focusChanges,
		FleeStarts:       c.fleeStarts,
		Forages:          c.forages,

		Attacks:   attacks,
		Hits:      c.hits,
		Criticals: c.criticals,
		Misses:    c.misses,
		Kills:     c.kills,
		Damage:    c.damage,
		HitRate:   hitRate,
		KillRate:  killRate,

		HealthMean: health.Mean,
		HealthStd:  health.Std,
		HealthP10:  health.P10,
		HealthP50:  health.P50,
		HealthP90:  health.P90,

		HungerMean: hunger.Mean,
		HungerStd:  hunger.Std,
		HungerP10:  hunger.P10,
		HungerP50:  hunger.P50,
		HungerP90:  hunger.P90,

		FocusIdle:    pop.Focus["idle"],
		FocusCombat:  pop.Focus["combat"],
		FocusFlee:    pop.Focus["flee"],
		FocusForage:  pop.Focus["forage"],
		FocusHazard:  pop.Focus["hazard"],
		FocusExplore: pop.Focus["explore"],
		FocusSocial:  pop.Focus["social"],

		Food: pop.Food,
	}

	// Reset for next window
	c.windowStartTick = currentTick
	c.births = 0
	c.combatDeaths = 0
	c.starvationDeaths = 0
	c.hazardDeaths = 0
	c.hits = 0
	c.criticals = 0
	c.misses = 0
	c.kills = 0
	c.damage = 0
	c.focusChanges = 0
	c.fleeStarts = 0
	c.forages = 0

	return stats
}

// WindowDurationTicks returns the number of ticks per window.
func (c *Collector) WindowDurationTicks() int32 {
	return c.windowDurationTicks
}
