package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pthm-cable/brawl/components"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frameAt(tick int32, live int, events ...Event) *Snapshot {
	agents := make([]AgentState, live)
	for i := range agents {
		agents[i] = AgentState{
			ID:     components.AgentID(i + 1),
			Strain: uint32(i % 2),
			Health: 100,
			Hunger: 50,
			Focus:  "idle",
			Alive:  true,
		}
	}
	return &Snapshot{Tick: tick, Time: float64(tick) * 0.1, Agents: agents, Events: events}
}

func TestSamplePopulation(t *testing.T) {
	agents := []AgentState{
		{ID: 1, Strain: 1, Health: 80, Hunger: 40, Focus: "combat", Alive: true},
		{ID: 2, Strain: 2, Health: 20, Hunger: 60, Focus: "flee", Alive: true},
		{ID: 3, Strain: 3, Health: 0, Focus: "idle", Alive: false},
	}

	pop := SamplePopulation(agents, 5)
	assert.Equal(t, 2, pop.Live)
	assert.Equal(t, 2, pop.ActiveStrains)
	assert.Equal(t, []float64{80, 20}, pop.Healths)
	assert.Equal(t, 1, pop.Focus["combat"])
	assert.Equal(t, 0, pop.Focus["idle"])
	assert.Equal(t, 5, pop.Food)
}

func TestRecorder_FlushesWindows(t *testing.T) {
	r := NewRecorder(RecorderOptions{DT: 0.1, StatsWindow: 1}, nil)

	for tick := int32(1); tick <= 25; tick++ {
		var events []Event
		if tick == 3 {
			events = append(events, NewAttackEvent(tick, 0.3, 1, 2, 10, false, false))
		}
		require.NoError(t, r.Consume(frameAt(tick, 4, events...)))
	}

	windows := r.Windows()
	require.Len(t, windows, 2)
	assert.Equal(t, int32(10), windows[0].WindowEndTick)
	assert.Equal(t, 1, windows[0].Hits)
	assert.Equal(t, 4, windows[0].Live)
	assert.Equal(t, 0, windows[1].Hits)
	assert.NoError(t, r.Close())
}

func TestRecorder_WritesOutputFiles(t *testing.T) {
	dir := t.TempDir()
	om, err := NewOutputManager(dir)
	require.NoError(t, err)

	r := NewRecorder(RecorderOptions{DT: 0.1, StatsWindow: 1}, om)
	r.AttachPerf(NewPerfCollector(10))
	death := NewDeathEvent(5, 0.5, 2, 1, components.CauseCombat, components.Position{})
	for tick := int32(1); tick <= 10; tick++ {
		frame := frameAt(tick, 1)
		switch tick {
		case 1:
			frame.Events = []Event{
				NewBirthEvent(0, 0, 1, 0, 0, 0, components.Position{}),
				NewBirthEvent(0, 0, 2, 0, 0, 1, components.Position{}),
			}
		case 5:
			frame.Events = []Event{death}
		}
		require.NoError(t, r.Consume(frame))
	}
	require.NoError(t, r.Close())

	for _, name := range []string{"telemetry.csv", "perf.csv", "bookmarks.csv", "lifetimes.csv"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	data, err := os.ReadFile(filepath.Join(dir, "lifetimes.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3, "header, the dead agent and the survivor")
	assert.Contains(t, lines[0], "agent_id")
	assert.Contains(t, lines[1], "combat")
	assert.Contains(t, lines[2], "alive")

	data, err = os.ReadFile(filepath.Join(dir, "telemetry.csv"))
	require.NoError(t, err)
	lines = strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 2)
}

func TestRecorder_BookmarkSnapshot(t *testing.T) {
	snapDir := t.TempDir()
	r := NewRecorder(RecorderOptions{RunID: "r1", Seed: 9, DT: 0.1, StatsWindow: 1, SnapshotDir: snapDir}, nil)

	// Two strains for a few windows, then one disappears.
	tick := int32(0)
	for w := 0; w < 3; w++ {
		for i := 0; i < 10; i++ {
			tick++
			require.NoError(t, r.Consume(frameAt(tick, 6)))
		}
	}
	for i := 0; i < 10; i++ {
		tick++
		frame := frameAt(tick, 6)
		for j := range frame.Agents {
			frame.Agents[j].Strain = 0
		}
		require.NoError(t, r.Consume(frame))
	}

	require.True(t, hasBookmark(r.Bookmarks(), BookmarkStrainExtinct))
	matches, err := filepath.Glob(filepath.Join(snapDir, "snapshot_*_strain_extinct.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	snap, err := LoadSnapshot(matches[0])
	require.NoError(t, err)
	assert.Equal(t, "r1", snap.RunID)
	assert.Equal(t, int64(9), snap.RNGSeed)
	assert.Len(t, snap.Agents, 6)
}
