package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/brawl/config"
)

func TestRun_WritesOutputs(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Population.Initial = 12
	cfg.Telemetry.StatsWindow = 1

	err := run(cfg, runOptions{
		seed:      3,
		maxTicks:  25,
		outputDir: filepath.Join(dir, "out"),
		eventDB:   filepath.Join(dir, "events.db"),
	})
	require.NoError(t, err)

	for _, name := range []string{"config.yaml", "telemetry.csv", "perf.csv", "bookmarks.csv", "lifetimes.csv"} {
		_, err := os.Stat(filepath.Join(dir, "out", name))
		assert.NoError(t, err, name)
	}
	_, err = os.Stat(filepath.Join(dir, "events.db"))
	assert.NoError(t, err)

	written, err := config.Load(filepath.Join(dir, "out", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 12, written.Population.Initial)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"bogus": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}
