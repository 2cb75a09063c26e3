package telemetry

import (
	"log/slog"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Phase identifies one step of a simulation tick.
type Phase uint8

// Tick phases in execution order.
const (
	PhaseAge Phase = iota
	PhaseAttend
	PhaseDecide
	PhaseIndex
	PhaseAttack
	PhaseStarve
	PhaseForage
	PhaseBreed
	PhaseCleanup
	numPhases
)

var phaseNames = [numPhases]string{
	"age", "attend", "decide", "index", "attack",
	"starve", "forage", "breed", "cleanup",
}

// String returns the phase's column name.
func (p Phase) String() string {
	if p < numPhases {
		return phaseNames[p]
	}
	return "unknown"
}

// Phases returns every phase in execution order.
func Phases() []Phase {
	out := make([]Phase, numPhases)
	for i := range out {
		out[i] = Phase(i)
	}
	return out
}

// PhaseTimes holds one duration per phase.
type PhaseTimes [numPhases]time.Duration

type tickTiming struct {
	total  time.Duration
	phases PhaseTimes
}

// PerfCollector times ticks and their phases over a ring of recent ticks.
// It is driven from the tick loop only and is not safe for concurrent use.
type PerfCollector struct {
	ring   []tickTiming
	next   int
	filled int

	cur      tickTiming
	started  time.Time
	phase    Phase
	phaseAt  time.Time
	inPhase  bool
	lastTick time.Duration
}

// NewPerfCollector keeps the last window ticks.
func NewPerfCollector(window int) *PerfCollector {
	if window < 1 {
		window = 60
	}
	return &PerfCollector{ring: make([]tickTiming, window)}
}

// StartTick opens a new tick.
func (p *PerfCollector) StartTick() {
	p.cur = tickTiming{}
	p.started = time.Now()
	p.inPhase = false
}

// StartPhase closes the running phase, if any, and opens ph.
func (p *PerfCollector) StartPhase(ph Phase) {
	now := time.Now()
	p.closePhase(now)
	p.phase, p.phaseAt, p.inPhase = ph, now, true
}

func (p *PerfCollector) closePhase(now time.Time) {
	if p.inPhase && p.phase < numPhases {
		p.cur.phases[p.phase] += now.Sub(p.phaseAt)
	}
	p.inPhase = false
}

// EndTick closes the tick and stores it in the ring.
func (p *PerfCollector) EndTick() {
	now := time.Now()
	p.closePhase(now)
	p.cur.total = now.Sub(p.started)
	p.lastTick = p.cur.total

	p.ring[p.next] = p.cur
	p.next = (p.next + 1) % len(p.ring)
	if p.filled < len(p.ring) {
		p.filled++
	}
}

// LastTick returns the duration of the most recent tick.
func (p *PerfCollector) LastTick() time.Duration { return p.lastTick }

// PerfStats summarizes the ticks in the collector's window.
type PerfStats struct {
	Ticks int

	AvgTick    time.Duration
	MinTick    time.Duration
	MaxTick    time.Duration
	P95Tick    time.Duration
	TickStdDev time.Duration

	PhaseAvg PhaseTimes
	PhasePct [numPhases]float64

	TicksPerSecond float64

	// Live agents at the window end, filled in by the recorder.
	Population int
}

// Stats aggregates the window. An empty collector yields zero stats.
func (p *PerfCollector) Stats() PerfStats {
	ps := PerfStats{Ticks: p.filled}
	if p.filled == 0 {
		return ps
	}

	totals := make([]float64, p.filled)
	var sums PhaseTimes
	for i := 0; i < p.filled; i++ {
		tt := &p.ring[i]
		totals[i] = float64(tt.total)
		for ph, d := range tt.phases {
			sums[ph] += d
		}
	}

	mean, std := stat.MeanStdDev(totals, nil)
	if p.filled < 2 {
		std = 0
	}
	slices.Sort(totals)
	ps.AvgTick = time.Duration(mean)
	ps.TickStdDev = time.Duration(std)
	ps.MinTick = time.Duration(totals[0])
	ps.MaxTick = time.Duration(totals[len(totals)-1])
	ps.P95Tick = time.Duration(stat.Quantile(0.95, stat.Empirical, totals, nil))

	n := time.Duration(p.filled)
	for ph := range sums {
		ps.PhaseAvg[ph] = sums[ph] / n
		if mean > 0 {
			ps.PhasePct[ph] = float64(ps.PhaseAvg[ph]) / mean * 100
		}
	}
	if mean > 0 {
		ps.TicksPerSecond = float64(time.Second) / mean
	}
	return ps
}

// Slowest returns the phase with the largest average share.
func (s PerfStats) Slowest() (Phase, float64) {
	best := PhaseAge
	for ph := range s.PhasePct {
		if s.PhasePct[ph] > s.PhasePct[best] {
			best = Phase(ph)
		}
	}
	return best, s.PhasePct[best]
}

// LogStats logs the window at info level. Phases under 0.1% are omitted.
func (s PerfStats) LogStats() {
	attrs := []any{
		"ticks", s.Ticks,
		"avg_tick_us", s.AvgTick.Microseconds(),
		"p95_tick_us", s.P95Tick.Microseconds(),
		"max_tick_us", s.MaxTick.Microseconds(),
		"ticks_per_sec", int(s.TicksPerSecond),
	}
	if s.Population > 0 {
		attrs = append(attrs, "population", s.Population)
	}
	for ph, pct := range s.PhasePct {
		if pct > 0.1 {
			attrs = append(attrs, Phase(ph).String()+"_pct", float64(int(pct*10))/10)
		}
	}
	slog.Info("perf", attrs...)
}

// LogValue implements slog.LogValuer.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_tick_us", s.AvgTick.Microseconds()),
		slog.Int64("std_tick_us", s.TickStdDev.Microseconds()),
		slog.Int64("p95_tick_us", s.P95Tick.Microseconds()),
		slog.Float64("ticks_per_sec", s.TicksPerSecond),
	}
	for ph, pct := range s.PhasePct {
		attrs = append(attrs, slog.Float64(Phase(ph).String()+"_pct", pct))
	}
	return slog.GroupValue(attrs...)
}

// PerfRow is one perf.csv line.
type PerfRow struct {
	WindowEnd   int32   `csv:"window_end"`
	Population  int     `csv:"population"`
	Ticks       int     `csv:"ticks"`
	AvgTickUS   int64   `csv:"avg_tick_us"`
	StdTickUS   int64   `csv:"std_tick_us"`
	MinTickUS   int64   `csv:"min_tick_us"`
	P95TickUS   int64   `csv:"p95_tick_us"`
	MaxTickUS   int64   `csv:"max_tick_us"`
	TicksPerSec float64 `csv:"ticks_per_sec"`
	AgePct      float64 `csv:"age_pct"`
	AttendPct   float64 `csv:"attend_pct"`
	DecidePct   float64 `csv:"decide_pct"`
	IndexPct    float64 `csv:"index_pct"`
	AttackPct   float64 `csv:"attack_pct"`
	StarvePct   float64 `csv:"starve_pct"`
	ForagePct   float64 `csv:"forage_pct"`
	BreedPct    float64 `csv:"breed_pct"`
	CleanupPct  float64 `csv:"cleanup_pct"`
}

// Row flattens the stats for perf.csv.
func (s PerfStats) Row(windowEnd int32) PerfRow {
	pct := s.PhasePct
	return PerfRow{
		WindowEnd:   windowEnd,
		Population:  s.Population,
		Ticks:       s.Ticks,
		AvgTickUS:   s.AvgTick.Microseconds(),
		StdTickUS:   s.TickStdDev.Microseconds(),
		MinTickUS:   s.MinTick.Microseconds(),
		P95TickUS:   s.P95Tick.Microseconds(),
		MaxTickUS:   s.MaxTick.Microseconds(),
		TicksPerSec: s.TicksPerSecond,
		AgePct:      pct[PhaseAge],
		AttendPct:   pct[PhaseAttend],
		DecidePct:   pct[PhaseDecide],
		IndexPct:    pct[PhaseIndex],
		AttackPct:   pct[PhaseAttack],
		StarvePct:   pct[PhaseStarve],
		ForagePct:   pct[PhaseForage],
		BreedPct:    pct[PhaseBreed],
		CleanupPct:  pct[PhaseCleanup],
	}
}
