package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/pthm-cable/brawl/config"
	"github.com/pthm-cable/brawl/eventlog"
	"github.com/pthm-cable/brawl/observer"
	"github.com/pthm-cable/brawl/sim"
	"github.com/pthm-cable/brawl/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	writeConfig := flag.String("write-config", "", "Write the effective config to this path and exit")
	logStats := flag.Bool("log-stats", false, "Output window stats via slog")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	statsWindow := flag.Float64("stats-window", 0, "Stats window size in seconds (0 = use config)")
	snapshotDir := flag.String("snapshot-dir", "", "Directory for bookmark snapshot files")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	eventDB := flag.String("event-db", "", "SQLite file for the event log (empty = disabled)")
	eventMoves := flag.Bool("event-moves", false, "Store move events in the event log")
	observeAddr := flag.String("observe", "", "Serve the websocket observer on this address (e.g. :8080)")
	observeEvery := flag.Int("observe-every", 1, "Broadcast one frame every N ticks")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	maxTicks := flag.Int("max-ticks", 0, "Stop after N ticks (0 = unlimited)")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *statsWindow > 0 {
		cfg.Telemetry.StatsWindow = *statsWindow
	}

	if *writeConfig != "" {
		if err := cfg.WriteYAML(*writeConfig); err != nil {
			slog.Error("failed to write config", "error", err)
			os.Exit(1)
		}
		slog.Info("config_written", "path", *writeConfig)
		return
	}

	if err := run(cfg, runOptions{
		seed:         *seed,
		maxTicks:     *maxTicks,
		logStats:     *logStats,
		outputDir:    *outputDir,
		snapshotDir:  *snapshotDir,
		eventDB:      *eventDB,
		eventMoves:   *eventMoves,
		observeAddr:  *observeAddr,
		observeEvery: *observeEvery,
	}); err != nil {
		slog.Error("run_failed", "error", err)
		os.Exit(1)
	}
}

type runOptions struct {
	seed         int64
	maxTicks     int
	logStats     bool
	outputDir    string
	snapshotDir  string
	eventDB      string
	eventMoves   bool
	observeAddr  string
	observeEvery int
}

func run(cfg *config.Config, opts runOptions) error {
	// Set up seed
	rngSeed := opts.seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}
	runID := uuid.NewString()

	s, err := sim.New(cfg, rngSeed)
	if err != nil {
		return err
	}
	defer s.Close()

	output, err := telemetry.NewOutputManager(opts.outputDir)
	if err != nil {
		return err
	}
	if err := output.WriteConfig(s.Config()); err != nil {
		output.Close()
		return err
	}

	recorder := telemetry.NewRecorder(telemetry.RecorderOptions{
		RunID:       runID,
		Seed:        rngSeed,
		DT:          s.Config().Arena.DT,
		StatsWindow: s.Config().Telemetry.StatsWindow,
		LogStats:    opts.logStats,
		SnapshotDir: opts.snapshotDir,
	}, output)
	recorder.AttachPerf(s.Perf())
	s.AddSink(recorder)
	defer func() {
		if err := recorder.Close(); err != nil {
			slog.Error("recorder_close_failed", "error", err)
		}
	}()

	if opts.eventDB != "" {
		store, err := eventlog.Open(opts.eventDB, eventlog.Options{RunID: runID, IncludeMoves: opts.eventMoves})
		if err != nil {
			return err
		}
		defer store.Close()
		s.AddSink(store)
	}

	if opts.observeAddr != "" {
		hub := observer.NewHub(observer.Options{Every: opts.observeEvery})
		srv := &http.Server{Addr: opts.observeAddr, Handler: hub.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("observer_failed", "error", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
		s.AddSink(hub)
		slog.Info("observer_listening", "addr", opts.observeAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting headless simulation",
		"run_id", runID,
		"seed", rngSeed,
		"max_ticks", opts.maxTicks,
		"agents", s.LiveCount(),
	)

	for ctx.Err() == nil {
		s.Advance(0)

		if opts.maxTicks > 0 && int(s.Tick()) >= opts.maxTicks {
			slog.Info("max ticks reached", "tick", s.Tick())
			break
		}
	}

	slog.Info("simulation_finished",
		"tick", s.Tick(),
		"time", s.Time(),
		"live", s.LiveCount(),
		"births", s.BirthCount(),
		"deaths", s.DeathCount(),
		"sink_error", s.SinkErr(),
	)
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
