package systems

import (
	"log/slog"
	"sort"

	"github.com/pthm-cable/brawl/config"
)

// Stimulus identifies a competing behavioral drive.
type Stimulus uint8

const (
	StimulusIdle Stimulus = iota
	StimulusCombat
	StimulusFlee
	StimulusForage
	StimulusHazard
	StimulusExplore
	StimulusSocial

	numStimuli
)

var stimulusNames = [numStimuli]string{
	StimulusIdle:    "idle",
	StimulusCombat:  "combat",
	StimulusFlee:    "flee",
	StimulusForage:  "forage",
	StimulusHazard:  "hazard",
	StimulusExplore: "explore",
	StimulusSocial:  "social",
}

// String returns the config name of the stimulus.
func (s Stimulus) String() string {
	if s < numStimuli {
		return stimulusNames[s]
	}
	return "unknown"
}

// ParseStimulus maps a config name to a Stimulus.
func ParseStimulus(name string) (Stimulus, bool) {
	for i, n := range stimulusNames {
		if n == name {
			return Stimulus(i), true
		}
	}
	return StimulusIdle, false
}

// AllStimuli returns every non-idle stimulus in evaluation order.
func AllStimuli() []Stimulus {
	return []Stimulus{
		StimulusCombat, StimulusFlee, StimulusForage,
		StimulusHazard, StimulusExplore, StimulusSocial,
	}
}

// StimulusPriority configures one stimulus type.
type StimulusPriority struct {
	Base                 float64
	MinCommitment        float64 // seconds
	DistractionThreshold float64 // 0..1, lower = easier to interrupt
}

// PriorityTable is the immutable per-stimulus configuration shared by all
// agents. Idle always has zero priority and zero commitment.
type PriorityTable struct {
	entries [numStimuli]StimulusPriority
}

// NewPriorityTable builds a table from the attention config. Values are
// expected to be clamped already by config.Normalize.
func NewPriorityTable(cfg config.AttentionConfig) *PriorityTable {
	t := &PriorityTable{}

	// Sorted so warnings come out in a stable order.
	names := make([]string, 0, len(cfg.Priorities))
	for name := range cfg.Priorities {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		s, ok := ParseStimulus(name)
		if !ok || s == StimulusIdle {
			slog.Warn("unknown_stimulus_priority", "name", name)
			continue
		}
		p := cfg.Priorities[name]
		t.entries[s] = StimulusPriority{
			Base:                 p.Base,
			MinCommitment:        p.MinCommitment,
			DistractionThreshold: p.DistractionThreshold,
		}
	}
	return t
}

// Get returns the priority entry for s.
func (t *PriorityTable) Get(s Stimulus) StimulusPriority {
	if t == nil || s >= numStimuli {
		return StimulusPriority{}
	}
	return t.entries[s]
}

// Focus is the single active stimulus of an agent and when it was adopted.
type Focus struct {
	Stimulus Stimulus
	Since    float64
}

// Transition describes a focus change.
type Transition struct {
	From Stimulus
	To   Stimulus
	Held float64 // seconds the previous focus was held
	At   float64
}

// Attention is the per-agent focus state machine.
type Attention struct {
	table       *PriorityTable
	focus       Focus
	persistence float64 // scales commitment
	resistance  float64 // scales distraction threshold
	effective   float64 // effective priority of the current focus at the last evaluation
}

// NewAttention creates an idle attention model. Non-positive trait
// multipliers default to 1.
func NewAttention(table *PriorityTable, persistence, resistance float64) *Attention {
	if !(persistence > 0) {
		persistence = 1
	}
	if !(resistance > 0) {
		resistance = 1
	}
	return &Attention{
		table:       table,
		persistence: persistence,
		resistance:  resistance,
	}
}

// Focus returns the current focus.
func (a *Attention) Focus() Focus { return a.focus }

// Effective returns the effective priority of the current focus as of the
// last evaluation.
func (a *Attention) Effective() float64 { return a.effective }

// Commitment returns the minimum hold time of the current focus after the
// persistence modifier.
func (a *Attention) Commitment() float64 {
	return a.table.Get(a.focus.Stimulus).MinCommitment * a.persistence
}

// CommitmentRemaining returns how long the current focus is still locked in.
func (a *Attention) CommitmentRemaining(now float64) float64 {
	rem := a.Commitment() - (now - a.focus.Since)
	if rem < 0 {
		return 0
	}
	return rem
}

// threshold returns the distraction threshold of the current focus after
// the resistance modifier.
func (a *Attention) threshold() float64 {
	return clamp01(a.table.Get(a.focus.Stimulus).DistractionThreshold * a.resistance)
}

// EffectivePriority returns base priority times urgency for s.
func (a *Attention) EffectivePriority(s Stimulus, urgency float64) float64 {
	if !(urgency > 0) {
		return 0
	}
	return a.table.Get(s).Base * urgency
}

// Evaluate folds the caller's urgency map into the focus state and returns the
// resulting focus. A non-nil Transition is returned when the focus changed.
//
// The current focus is kept while it is younger than its commitment. After
// that, a competitor must beat the current effective priority by more than
// current × threshold. A current stimulus missing from the map counts as
// zero, so an empty map lets the focus fall back to Idle once committed time
// has run out.
func (a *Attention) Evaluate(stimuli map[Stimulus]float64, now float64) (Focus, *Transition) {
	best, bestEff := StimulusIdle, 0.0
	for _, s := range AllStimuli() {
		eff := a.EffectivePriority(s, stimuli[s])
		if eff > bestEff {
			best, bestEff = s, eff
		}
	}

	cur := a.focus.Stimulus
	curEff := a.EffectivePriority(cur, stimuli[cur])

	if cur == StimulusIdle {
		a.effective = 0
		if best == StimulusIdle {
			return a.focus, nil
		}
		return a.switchTo(best, bestEff, now)
	}

	if now-a.focus.Since < a.Commitment() {
		a.effective = curEff
		return a.focus, nil
	}

	if best == cur {
		a.effective = curEff
		return a.focus, nil
	}
	if best == StimulusIdle {
		if curEff > 0 {
			a.effective = curEff
			return a.focus, nil
		}
		return a.switchTo(StimulusIdle, 0, now)
	}
	if bestEff > curEff+curEff*a.threshold() {
		return a.switchTo(best, bestEff, now)
	}
	a.effective = curEff
	return a.focus, nil
}

// Force replaces the focus without the commitment check. Used when an agent
// is created with an initial focus.
func (a *Attention) Force(s Stimulus, now float64) {
	a.focus = Focus{Stimulus: s, Since: now}
	a.effective = 0
}

func (a *Attention) switchTo(s Stimulus, eff, now float64) (Focus, *Transition) {
	tr := &Transition{
		From: a.focus.Stimulus,
		To:   s,
		Held: now - a.focus.Since,
		At:   now,
	}
	a.focus = Focus{Stimulus: s, Since: now}
	a.effective = eff
	return a.focus, tr
}
