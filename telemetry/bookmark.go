package telemetry

import (
	"fmt"
	"log/slog"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkBloodbath       BookmarkType = "bloodbath"
	BookmarkFamine          BookmarkType = "famine"
	BookmarkPopulationCrash BookmarkType = "population_crash"
	BookmarkStrainExtinct   BookmarkType = "strain_extinct"
	BookmarkStalemate       BookmarkType = "stalemate"
)

// Bookmark represents an automatically triggered bookmark.
type Bookmark struct {
	Type        BookmarkType `csv:"type"`
	Tick        int32        `csv:"tick"`
	Description string       `csv:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"tick", b.Tick,
		"description", b.Description,
	)
}

// BookmarkDetector detects notable moments of a battle from window stats.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []WindowStats
	historySize int
	historyIdx  int
	historyFull bool

	// State tracking
	recentLivePeak     int // peak live count in recent history
	lastStrains        int
	stableWindowsCount int // consecutive windows with a stable population
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 5 {
		historySize = 5 // minimum for stalemate detection
	}
	return &BookmarkDetector{
		history:     make([]WindowStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats WindowStats) []Bookmark {
	var bookmarks []Bookmark

	if bd.historyFull || bd.historyIdx > 0 {
		checks := []func(WindowStats) *Bookmark{
			bd.checkBloodbath,
			bd.checkFamine,
			bd.checkPopulationCrash,
			bd.checkStrainExtinct,
			bd.checkStalemate,
		}
		for _, check := range checks {
			if b := check(stats); b != nil {
				bookmarks = append(bookmarks, *b)
			}
		}
	}

	bd.addToHistory(stats)

	if stats.Live > bd.recentLivePeak {
		bd.recentLivePeak = stats.Live
	}
	bd.lastStrains = stats.ActiveStrains

	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats WindowStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

func (bd *BookmarkDetector) getHistory() []WindowStats {
	if bd.historyFull {
		return bd.history
	}
	return bd.history[:bd.historyIdx]
}

// spike reports a count above twice its rolling average and at least floor.
func (bd *BookmarkDetector) spike(current int, field func(WindowStats) int, floor int) (avg float64, ok bool) {
	history := bd.getHistory()
	if len(history) < 3 || current < floor {
		return 0, false
	}
	total := 0
	for _, h := range history {
		total += field(h)
	}
	avg = float64(total) / float64(len(history))
	if avg == 0 {
		return 0, true
	}
	return avg, float64(current) > avg*2
}

func (bd *BookmarkDetector) checkBloodbath(stats WindowStats) *Bookmark {
	avg, ok := bd.spike(stats.CombatDeaths, func(w WindowStats) int { return w.CombatDeaths }, 3)
	if !ok {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkBloodbath,
		Tick:        stats.WindowEndTick,
		Description: fmt.Sprintf("%d combat deaths against a %.1f window average", stats.CombatDeaths, avg),
	}
}

func (bd *BookmarkDetector) checkFamine(stats WindowStats) *Bookmark {
	avg, ok := bd.spike(stats.StarvationDeaths, func(w WindowStats) int { return w.StarvationDeaths }, 3)
	if !ok {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkFamine,
		Tick:        stats.WindowEndTick,
		Description: fmt.Sprintf("%d starvation deaths against a %.1f window average", stats.StarvationDeaths, avg),
	}
}

func (bd *BookmarkDetector) checkPopulationCrash(stats WindowStats) *Bookmark {
	if bd.recentLivePeak == 0 {
		return nil
	}

	dropPercent := 1.0 - float64(stats.Live)/float64(bd.recentLivePeak)
	if dropPercent > 0.30 && stats.Live <= bd.recentLivePeak-5 {
		// Reset peak after crash
		oldPeak := bd.recentLivePeak
		bd.recentLivePeak = stats.Live

		return &Bookmark{
			Type:        BookmarkPopulationCrash,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Population crashed %.0f%% from peak %d to %d", dropPercent*100, oldPeak, stats.Live),
		}
	}

	return nil
}

func (bd *BookmarkDetector) checkStrainExtinct(stats WindowStats) *Bookmark {
	if stats.ActiveStrains >= bd.lastStrains {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkStrainExtinct,
		Tick:        stats.WindowEndTick,
		Description: fmt.Sprintf("Strains dropped from %d to %d", bd.lastStrains, stats.ActiveStrains),
	}
}

func (bd *BookmarkDetector) checkStalemate(stats WindowStats) *Bookmark {
	// A stalemate needs at least two sides still standing
	if stats.ActiveStrains < 2 || stats.Live < 4 {
		bd.stableWindowsCount = 0
		return nil
	}

	history := bd.getHistory()
	if len(history) < 4 {
		return nil
	}

	recent := history[len(history)-4:]
	var sum float64
	for _, h := range recent {
		sum += float64(h.Live)
	}
	mean := sum / 4

	var variance float64
	for _, h := range recent {
		d := float64(h.Live) - mean
		variance += d * d
	}
	variance /= 4

	cv2 := 0.0
	if mean > 0 {
		cv2 = variance / (mean * mean)
	}

	if cv2 < 0.04 { // CV^2 < 0.04 means CV < 0.2
		bd.stableWindowsCount++
	} else {
		bd.stableWindowsCount = 0
	}

	if bd.stableWindowsCount == 5 { // trigger exactly once at 5 windows
		return &Bookmark{
			Type:        BookmarkStalemate,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Stable %d agents across %d strains over 5+ windows", stats.Live, stats.ActiveStrains),
		}
	}

	return nil
}
