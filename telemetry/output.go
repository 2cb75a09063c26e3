package telemetry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/brawl/config"
)

// Output file names inside the run directory.
const (
	TelemetryFile = "telemetry.csv"
	PerfFile      = "perf.csv"
	BookmarksFile = "bookmarks.csv"
	LifetimesFile = "lifetimes.csv"
	ConfigFile    = "config.yaml"
)

// csvTable is an append-only CSV file whose header is written with the first
// batch of rows.
type csvTable struct {
	name   string
	f      *os.File
	header bool
}

func createTable(dir, name string) (*csvTable, error) {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", name, err)
	}
	return &csvTable{name: name, f: f}, nil
}

// append marshals rows, a slice of csv-tagged structs.
func (t *csvTable) append(rows any) error {
	var err error
	if t.header {
		err = gocsv.MarshalWithoutHeaders(rows, t.f)
	} else {
		err = gocsv.Marshal(rows, t.f)
		t.header = err == nil
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", t.name, err)
	}
	return nil
}

func (t *csvTable) close() error {
	if t == nil || t.f == nil {
		return nil
	}
	return t.f.Close()
}

// OutputManager writes a run's CSV logs and config snapshot into one
// directory. A nil *OutputManager accepts every write and discards it.
type OutputManager struct {
	dir       string
	telemetry *csvTable
	perf      *csvTable
	bookmarks *csvTable
	lifetimes *csvTable
}

// NewOutputManager creates dir and the CSV files in it. An empty dir
// disables output and returns a nil manager.
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}
	for _, slot := range []struct {
		dst  **csvTable
		name string
	}{
		{&om.telemetry, TelemetryFile},
		{&om.perf, PerfFile},
		{&om.bookmarks, BookmarksFile},
		{&om.lifetimes, LifetimesFile},
	} {
		t, err := createTable(dir, slot.name)
		if err != nil {
			om.Close()
			return nil, err
		}
		*slot.dst = t
	}
	return om, nil
}

// WriteConfig saves cfg as config.yaml next to the logs.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, ConfigFile))
}

// WriteTelemetry appends one window to telemetry.csv.
func (om *OutputManager) WriteTelemetry(stats WindowStats) error {
	if om == nil {
		return nil
	}
	return om.telemetry.append([]WindowStats{stats})
}

// WritePerf appends one timing window to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, windowEnd int32) error {
	if om == nil {
		return nil
	}
	return om.perf.append([]PerfRow{stats.Row(windowEnd)})
}

// WriteBookmark appends b to bookmarks.csv.
func (om *OutputManager) WriteBookmark(b Bookmark) error {
	if om == nil {
		return nil
	}
	return om.bookmarks.append([]Bookmark{b})
}

// WriteLifetimes appends finished agent lifetimes to lifetimes.csv.
func (om *OutputManager) WriteLifetimes(stats []LifetimeStats) error {
	if om == nil || len(stats) == 0 {
		return nil
	}
	return om.lifetimes.append(stats)
}

// Dir returns the output directory, or "" when output is disabled.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close closes every file and reports all close errors.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}
	return errors.Join(
		om.telemetry.close(),
		om.perf.close(),
		om.bookmarks.close(),
		om.lifetimes.close(),
	)
}
