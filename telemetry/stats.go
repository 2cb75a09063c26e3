package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated statistics for a time window.
type WindowStats struct {
	WindowStartTick int32   `csv:"-"`
	WindowEndTick   int32   `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`

	// Population at window end
	Live          int `csv:"live"`
	ActiveStrains int `csv:"active_strains"`

	// Events during window
	Births           int `csv:"births"`
	Deaths           int `csv:"deaths"`
	CombatDeaths     int `csv:"combat_deaths"`
	StarvationDeaths int `csv:"starvation_deaths"`
	HazardDeaths     int `csv:"hazard_deaths"`
	FocusChanges     int `csv:"focus_changes"`
	FleeStarts       int `csv:"flee_starts"`
	Forages          int `csv:"forages"`

	// Combat
	Attacks   int     `csv:"attacks"` // hits + criticals + misses
	Hits      int     `csv:"hits"`
	Criticals int     `csv:"criticals"`
	Misses    int     `csv:"misses"`
	Kills     int     `csv:"kills"`
	Damage    float64 `csv:"damage"`
	HitRate   float64 `csv:"hit_rate"`
	KillRate  float64 `csv:"kill_rate"`

	// Distributions sampled at window end
	HealthMean float64 `csv:"health_mean"`
	HealthStd  float64 `csv:"health_std"`
	HealthP10  float64 `csv:"health_p10"`
	HealthP50  float64 `csv:"health_p50"`
	HealthP90  float64 `csv:"health_p90"`

	HungerMean float64 `csv:"hunger_mean"`
	HungerStd  float64 `csv:"hunger_std"`
	HungerP10  float64 `csv:"hunger_p10"`
	HungerP50  float64 `csv:"hunger_p50"`
	HungerP90  float64 `csv:"hunger_p90"`

	// Focus histogram at window end
	FocusIdle    int `csv:"focus_idle"`
	FocusCombat  int `csv:"focus_combat"`
	FocusFlee    int `csv:"focus_flee"`
	FocusForage  int `csv:"focus_forage"`
	FocusHazard  int `csv:"focus_hazard"`
	FocusExplore int `csv:"focus_explore"`
	FocusSocial  int `csv:"focus_social"`

	Food int `csv:"food"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Distribution summarizes a sample.
type Distribution struct {
	Mean, Std     float64
	P10, P50, P90 float64
}

// ComputeDistribution calculates mean, sample standard deviation and
// percentiles. Fewer than two values have zero spread.
func ComputeDistribution(values []float64) Distribution {
	n := len(values)
	if n == 0 {
		return Distribution{}
	}

	var d Distribution
	if n == 1 {
		d.Mean = values[0]
	} else {
		d.Mean, d.Std = stat.MeanStdDev(values, nil)
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	d.P10 = Percentile(sorted, 0.10)
	d.P50 = Percentile(sorted, 0.50)
	d.P90 = Percentile(sorted, 0.90)
	return d
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("window_start", int(s.WindowStartTick)),
		slog.Int("window_end", int(s.WindowEndTick)),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("live", s.Live),
		slog.Int("active_strains", s.ActiveStrains),
		slog.Int("births", s.Births),
		slog.Int("deaths", s.Deaths),
		slog.Int("combat_deaths", s.CombatDeaths),
		slog.Int("starvation_deaths", s.StarvationDeaths),
		slog.Int("hazard_deaths", s.HazardDeaths),
		slog.Int("attacks", s.Attacks),
		slog.Int("hits", s.Hits),
		slog.Int("criticals", s.Criticals),
		slog.Int("misses", s.Misses),
		slog.Int("kills", s.Kills),
		slog.Float64("damage", s.Damage),
		slog.Float64("hit_rate", s.HitRate),
		slog.Float64("kill_rate", s.KillRate),
		slog.Float64("health_mean", s.HealthMean),
		slog.Float64("health_p50", s.HealthP50),
		slog.Float64("hunger_mean", s.HungerMean),
		slog.Float64("hunger_p50", s.HungerP50),
		slog.Int("focus_changes", s.FocusChanges),
		slog.Int("flee_starts", s.FleeStarts),
		slog.Int("forages", s.Forages),
		slog.Int("food", s.Food),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndTick,
		"sim_time", s.SimTimeSec,
		"live", s.Live,
		"strains", s.ActiveStrains,
		"births", s.Births,
		"deaths", s.Deaths,
		"combat_deaths", s.CombatDeaths,
		"starvation_deaths", s.StarvationDeaths,
		"hazard_deaths", s.HazardDeaths,
		"hits", s.Hits,
		"criticals", s.Criticals,
		"misses", s.Misses,
		"kills", s.Kills,
		"hit_rate", s.HitRate,
		"health_mean", s.HealthMean,
		"hunger_mean", s.HungerMean,
		"focus_combat", s.FocusCombat,
		"focus_flee", s.FocusFlee,
		"focus_forage", s.FocusForage,
		"food", s.Food,
	)
}
