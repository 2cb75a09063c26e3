package components

// RelationKind classifies how an agent regards another agent.
type RelationKind uint8

const (
	RelationNone RelationKind = iota
	RelationFamily
	RelationAlly
	RelationRival
	RelationEnemy
)

// String returns the display name for a RelationKind.
func (k RelationKind) String() string {
	names := RelationKindNames()
	if int(k) < len(names) {
		return names[k]
	}
	return "unknown"
}

// RelationKindNames returns the display names for all relation kinds.
// The order matches the RelationKind constants.
func RelationKindNames() []string {
	return []string{"none", "family", "ally", "rival", "enemy"}
}

// Relation is one entry of an agent's relationship table.
type Relation struct {
	Kind      RelationKind
	Hostile   bool // overrides family/ally exclusion
	KilledMe  bool // this agent killed the owner in a previous life
	KilledKin bool // this agent killed one of the owner's relatives
}

// Revenge reports whether the relation marks a revenge target.
func (r Relation) Revenge() bool {
	return r.KilledMe || r.KilledKin
}

// Relations is an agent's relationship table keyed by the other agent's id.
// Entries are weak: an id that no longer resolves to a live agent is treated
// as having no relationship by the callers.
type Relations map[AgentID]Relation

// Get returns the stored relation for id, if any.
func (r Relations) Get(id AgentID) (Relation, bool) {
	rel, ok := r[id]
	return rel, ok
}

// Set stores rel for id.
func (r Relations) Set(id AgentID, rel Relation) {
	r[id] = rel
}

// Update applies fn to the stored relation for id (zero value if absent).
func (r Relations) Update(id AgentID, fn func(*Relation)) {
	rel := r[id]
	fn(&rel)
	r[id] = rel
}

// Prune drops entries for which alive returns false.
func (r Relations) Prune(alive func(AgentID) bool) int {
	removed := 0
	for id := range r {
		if !alive(id) {
			delete(r, id)
			removed++
		}
	}
	return removed
}

// Resolve classifies other as seen by an agent of ownStrain, taking stored
// relations first and falling back to strain kinship.
func (r Relations) Resolve(other AgentID, ownStrain, otherStrain uint32) Relation {
	if rel, ok := r[other]; ok && rel.Kind != RelationNone {
		return rel
	}
	rel := r[other]
	if ownStrain == otherStrain {
		rel.Kind = RelationFamily
	}
	return rel
}

// Friendly reports whether rel excludes the other agent as a combat target.
func (rel Relation) Friendly() bool {
	if rel.Hostile || rel.Revenge() {
		return false
	}
	return rel.Kind == RelationFamily || rel.Kind == RelationAlly
}
