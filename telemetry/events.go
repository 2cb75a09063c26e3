// Package telemetry provides the battle event stream, window statistics,
// lifetime tracking, bookmarks and CSV output.
package telemetry

import (
	"fmt"

	"github.com/pthm-cable/brawl/components"
)

// EventType identifies telemetry events.
type EventType uint8

const (
	EventMove EventType = iota
	EventAttack
	EventCritical
	EventMiss
	EventDeath
	EventBirth
	EventFocusChange
	EventForage
	EventFleeStart
)

var eventTypeNames = []string{
	"move", "attack", "critical", "miss", "death",
	"birth", "focus_change", "forage", "flee_start",
}

// String returns the snake_case name of the event type.
func (t EventType) String() string {
	if int(t) < len(eventTypeNames) {
		return eventTypeNames[t]
	}
	return "unknown"
}

// MarshalText encodes the type by name.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a type name.
func (t *EventType) UnmarshalText(b []byte) error {
	for i, name := range eventTypeNames {
		if name == string(b) {
			*t = EventType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown event type %q", b)
}

// Event is one immutable state change produced by a tick.
type Event struct {
	Type    EventType          `json:"type"`
	Tick    int32              `json:"tick"`
	Time    float64            `json:"time"`
	AgentID components.AgentID `json:"agent"`

	// Optional fields depending on event type
	OtherID  components.AgentID    `json:"other,omitempty"`  // attack target, killer, first parent
	SecondID components.AgentID    `json:"second,omitempty"` // second parent
	Amount   float64               `json:"amount,omitempty"` // damage, hunger restored, distance moved
	X        float64               `json:"x,omitempty"`      // position after the change
	Y        float64               `json:"y,omitempty"`
	Cause    components.DeathCause `json:"cause,omitempty"`  // death only
	Strain   uint32                `json:"strain,omitempty"` // birth only
	From     string                `json:"from,omitempty"`   // focus change
	To       string                `json:"to,omitempty"`     // focus change, flee reason
	Held     float64               `json:"held,omitempty"`   // seconds the previous focus was held
	Lethal   bool                  `json:"lethal,omitempty"`
}

// IsHit reports whether the event is a landed attack.
func (e Event) IsHit() bool {
	return e.Type == EventAttack || e.Type == EventCritical
}

// NewMoveEvent creates a move event.
func NewMoveEvent(tick int32, t float64, id components.AgentID, pos components.Position, dist float64) Event {
	return Event{
		Type:    EventMove,
		Tick:    tick,
		Time:    t,
		AgentID: id,
		Amount:  dist,
		X:       pos.X,
		Y:       pos.Y,
	}
}

// NewAttackEvent creates a hit event; critical hits use EventCritical.
func NewAttackEvent(tick int32, t float64, attacker, target components.AgentID, damage float64, critical, lethal bool) Event {
	typ := EventAttack
	if critical {
		typ = EventCritical
	}
	return Event{
		Type:    typ,
		Tick:    tick,
		Time:    t,
		AgentID: attacker,
		OtherID: target,
		Amount:  damage,
		Lethal:  lethal,
	}
}

// NewMissEvent creates a missed attack event.
func NewMissEvent(tick int32, t float64, attacker, target components.AgentID) Event {
	return Event{
		Type:    EventMiss,
		Tick:    tick,
		Time:    t,
		AgentID: attacker,
		OtherID: target,
	}
}

// NewDeathEvent creates a death event. killer is NoAgent unless the cause is
// combat.
func NewDeathEvent(tick int32, t float64, id, killer components.AgentID, cause components.DeathCause, pos components.Position) Event {
	return Event{
		Type:    EventDeath,
		Tick:    tick,
		Time:    t,
		AgentID: id,
		OtherID: killer,
		Cause:   cause,
		X:       pos.X,
		Y:       pos.Y,
	}
}

// NewBirthEvent creates a birth event. Founders have no parents.
func NewBirthEvent(tick int32, t float64, child, parentA, parentB components.AgentID, strain uint32, pos components.Position) Event {
	return Event{
		Type:     EventBirth,
		Tick:     tick,
		Time:     t,
		AgentID:  child,
		OtherID:  parentA,
		SecondID: parentB,
		Strain:   strain,
		X:        pos.X,
		Y:        pos.Y,
	}
}

// NewFocusChangeEvent creates a focus change event.
func NewFocusChangeEvent(tick int32, t float64, id components.AgentID, from, to string, held float64) Event {
	return Event{
		Type:    EventFocusChange,
		Tick:    tick,
		Time:    t,
		AgentID: id,
		From:    from,
		To:      to,
		Held:    held,
	}
}

// NewForageEvent creates a foraging event.
func NewForageEvent(tick int32, t float64, id components.AgentID, amount float64) Event {
	return Event{
		Type:    EventForage,
		Tick:    tick,
		Time:    t,
		AgentID: id,
		Amount:  amount,
	}
}

// NewFleeStartEvent creates an event for an agent that starts fleeing.
func NewFleeStartEvent(tick int32, t float64, id components.AgentID, reason string, pos components.Position) Event {
	return Event{
		Type:    EventFleeStart,
		Tick:    tick,
		Time:    t,
		AgentID: id,
		To:      reason,
		X:       pos.X,
		Y:       pos.Y,
	}
}
