package sim

import (
	"github.com/pthm-cable/brawl/components"
	"github.com/pthm-cable/brawl/systems"
)

// Mind is the per-agent behavioral state stored as an ECS component. The
// pointer members are owned by exactly one agent and only written by that
// agent's decision work or by the serial phases.
type Mind struct {
	Attention *systems.Attention
	Memory    *systems.CombatMemory
	Relations components.Relations

	Target         components.AgentID
	TargetDistance float64 // distance when the target was chosen
	Fleeing        bool
	FleeReason     systems.FleeReason

	Waypoint    components.Position
	HasWaypoint bool
}

// newMind creates an idle mind for an agent with personality p.
func newMind(table *systems.PriorityTable, mem *systems.CombatMemory, p components.Personality) Mind {
	return Mind{
		Attention: systems.NewAttention(table, p.Persistence, p.DistractionResistance),
		Memory:    mem,
		Relations: make(components.Relations),
	}
}

// revengeOn reports whether other is a revenge target for this mind. It is
// the same flag Score hands to ThreatOf.
func (m *Mind) revengeOn(other components.AgentID) bool {
	rel, ok := m.Relations.Get(other)
	return ok && rel.Revenge()
}
