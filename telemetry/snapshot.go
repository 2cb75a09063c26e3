package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pthm-cable/brawl/components"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// AgentState is a read-only copy of one agent taken at a tick boundary. It is
// what rendering and history collaborators see of the population.
type AgentState struct {
	ID         components.AgentID `json:"id"`
	Strain     uint32             `json:"strain"`
	Generation int                `json:"generation"`

	// Position and movement
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	VelX float64 `json:"vel_x"`
	VelY float64 `json:"vel_y"`

	// Vitals
	Health    float64 `json:"health"`
	MaxHealth float64 `json:"max_health"`
	Energy    float64 `json:"energy"`
	Hunger    float64 `json:"hunger"`
	Age       float64 `json:"age"`
	Mature    bool    `json:"mature"`
	Alive     bool    `json:"alive"`

	// Behavior
	Focus   string             `json:"focus"`
	Target  components.AgentID `json:"target,omitempty"`
	Fleeing bool               `json:"fleeing,omitempty"`
}

// Snapshot is one tick's population frame together with the events the tick
// produced. It is handed to event sinks, streamed to observers and written to
// disk when a bookmark fires.
type Snapshot struct {
	Version int    `json:"version"`
	RunID   string `json:"run_id,omitempty"`
	RNGSeed int64  `json:"rng_seed"`

	ArenaWidth  float64 `json:"arena_width"`
	ArenaHeight float64 `json:"arena_height"`

	Tick int32   `json:"tick"`
	Time float64 `json:"time"`

	Agents []AgentState `json:"agents"`
	Events []Event      `json:"events,omitempty"`
	Food   int          `json:"food"`

	Bookmark *Bookmark `json:"bookmark,omitempty"`
}

// SaveSnapshot writes a snapshot to disk.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	// Build filename
	name := fmt.Sprintf("snapshot_%d", snapshot.Tick)
	if snapshot.Bookmark != nil {
		sanitized := strings.ReplaceAll(string(snapshot.Bookmark.Type), " ", "_")
		name = fmt.Sprintf("snapshot_%d_%s", snapshot.Tick, sanitized)
	}
	name += ".json"

	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	return path, nil
}

// LoadSnapshot reads a snapshot from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snapshot.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snapshot.Version)
	}

	return &snapshot, nil
}
