package sim

import (
	"sort"

	"github.com/pthm-cable/brawl/components"
	"github.com/pthm-cable/brawl/inspector"
)

// ThreatEntry is one attacker as rated by an agent's combat memory.
type ThreatEntry struct {
	ID     components.AgentID `json:"id"`
	Threat float64            `json:"threat"`
	Damage float64            `json:"damage"` // windowed
}

// AgentDebug is the diagnostic view of one agent.
type AgentDebug struct {
	ID                  components.AgentID `json:"id"`
	Focus               string             `json:"focus"`
	FocusSince          float64            `json:"focus_since"`
	CommitmentRemaining float64            `json:"commitment_remaining"`
	Threats             []ThreatEntry      `json:"threats"`
	MostDangerous       components.AgentID `json:"most_dangerous,omitempty"`
	Target              components.AgentID `json:"target,omitempty"`
	TargetDistance      float64            `json:"target_distance,omitempty"`
	Fleeing             bool               `json:"fleeing"`
	FleeReason          string             `json:"flee_reason"`
	HitsTaken           int                `json:"hits_taken"`
	HitsDealt           int                `json:"hits_dealt"`
	Relations           int                `json:"relations"`
	Fields              []inspector.Field  `json:"fields"`
}

// Debug returns the diagnostic view of a live agent.
func (s *Simulation) Debug(id components.AgentID) (AgentDebug, bool) {
	if !s.Alive(id) {
		return AgentDebug{}, false
	}
	e := s.entities[id]
	mind := s.mindMap.Get(e)
	focus := mind.Attention.Focus()

	d := AgentDebug{
		ID:                  id,
		Focus:               focus.Stimulus.String(),
		FocusSince:          focus.Since,
		CommitmentRemaining: mind.Attention.CommitmentRemaining(s.time),
		Target:              mind.Target,
		TargetDistance:      mind.TargetDistance,
		Fleeing:             mind.Fleeing,
		FleeReason:          mind.FleeReason.String(),
		HitsTaken:           mind.Memory.ReceivedCount(),
		HitsDealt:           mind.Memory.DealtCount(),
		Relations:           len(mind.Relations),
		Fields: inspector.ExtractAll(
			s.vitalsMap.Get(e),
			s.orgMap.Get(e),
			s.persMap.Get(e),
		),
	}

	for attacker, dmg := range mind.Memory.DamageByAttacker(s.time) {
		d.Threats = append(d.Threats, ThreatEntry{
			ID:     attacker,
			Threat: mind.Memory.ThreatOf(attacker, s.time, mind.revengeOn(attacker)),
			Damage: dmg,
		})
	}
	sort.Slice(d.Threats, func(i, j int) bool {
		if d.Threats[i].Threat != d.Threats[j].Threat {
			return d.Threats[i].Threat > d.Threats[j].Threat
		}
		return d.Threats[i].ID < d.Threats[j].ID
	})
	if top, ok := mind.Memory.MostDangerousAttacker(s.time, mind.revengeOn); ok {
		d.MostDangerous = top
	}
	return d, true
}
