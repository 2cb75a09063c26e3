package telemetry

import (
	"fmt"
	"log/slog"
)

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	RunID       string
	Seed        int64
	DT          float64
	StatsWindow float64 // seconds
	LogStats    bool
	SnapshotDir string // bookmark snapshots are skipped when empty
}

// Recorder turns the per-tick frame stream into window stats, bookmarks and
// lifetime records, and writes them through an OutputManager. A nil output
// keeps everything in memory.
type Recorder struct {
	opts      RecorderOptions
	collector *Collector
	lifetimes *LifetimeTracker
	bookmarks *BookmarkDetector
	output    *OutputManager
	perf      *PerfCollector

	windows  []WindowStats
	marks    []Bookmark
	lastTick int32
}

// NewRecorder creates a recorder writing to output (which may be nil).
func NewRecorder(opts RecorderOptions, output *OutputManager) *Recorder {
	if opts.DT <= 0 {
		opts.DT = 0.1
	}
	if opts.StatsWindow <= 0 {
		opts.StatsWindow = 10
	}
	return &Recorder{
		opts:      opts,
		collector: NewCollector(opts.StatsWindow, opts.DT),
		lifetimes: NewLifetimeTracker(opts.DT),
		bookmarks: NewBookmarkDetector(10),
		output:    output,
	}
}

// AttachPerf makes window flushes also write the collector's timing stats.
func (r *Recorder) AttachPerf(p *PerfCollector) {
	r.perf = p
}

// Consume implements the simulation's event sink.
func (r *Recorder) Consume(frame *Snapshot) error {
	r.lastTick = frame.Tick
	r.collector.RecordAll(frame.Events)
	r.lifetimes.Consume(frame.Events)

	if err := r.output.WriteLifetimes(r.lifetimes.DrainFinished()); err != nil {
		return err
	}

	if !r.collector.ShouldFlush(frame.Tick) {
		return nil
	}
	return r.flush(frame)
}

func (r *Recorder) flush(frame *Snapshot) error {
	stats := r.collector.Flush(frame.Tick, SamplePopulation(frame.Agents, frame.Food))
	r.windows = append(r.windows, stats)

	if r.opts.LogStats {
		stats.LogStats()
	}
	if err := r.output.WriteTelemetry(stats); err != nil {
		return err
	}

	if r.perf != nil {
		perf := r.perf.Stats()
		perf.Population = stats.Live
		if r.opts.LogStats {
			perf.LogStats()
		}
		if err := r.output.WritePerf(perf, frame.Tick); err != nil {
			return err
		}
	}

	for _, b := range r.bookmarks.Check(stats) {
		b.LogBookmark()
		r.marks = append(r.marks, b)
		if err := r.output.WriteBookmark(b); err != nil {
			return err
		}
		if r.opts.SnapshotDir == "" {
			continue
		}
		snap := *frame
		snap.Version = SnapshotVersion
		snap.RunID = r.opts.RunID
		snap.RNGSeed = r.opts.Seed
		snap.Bookmark = &b
		path, err := SaveSnapshot(&snap, r.opts.SnapshotDir)
		if err != nil {
			return fmt.Errorf("bookmark snapshot: %w", err)
		}
		slog.Info("snapshot_saved", "path", path, "bookmark", string(b.Type))
	}
	return nil
}

// Windows returns every flushed window so far.
func (r *Recorder) Windows() []WindowStats {
	return r.windows
}

// Bookmarks returns every bookmark triggered so far.
func (r *Recorder) Bookmarks() []Bookmark {
	return r.marks
}

// Lifetimes exposes the lifetime tracker.
func (r *Recorder) Lifetimes() *LifetimeTracker {
	return r.lifetimes
}

// Close writes the lifetimes of surviving agents and closes the output.
func (r *Recorder) Close() error {
	if err := r.output.WriteLifetimes(r.lifetimes.Alive(r.lastTick)); err != nil {
		r.output.Close()
		return err
	}
	return r.output.Close()
}

// SamplePopulation reduces a population frame to the window sample.
func SamplePopulation(agents []AgentState, food int) PopulationSample {
	pop := PopulationSample{
		Focus: make(map[string]int),
		Food:  food,
	}
	strains := make(map[uint32]struct{})
	for _, a := range agents {
		if !a.Alive {
			continue
		}
		pop.Live++
		strains[a.Strain] = struct{}{}
		pop.Healths = append(pop.Healths, a.Health)
		pop.Hungers = append(pop.Hungers, a.Hunger)
		pop.Focus[a.Focus]++
	}
	pop.ActiveStrains = len(strains)
	return pop
}
