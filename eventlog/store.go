// Package eventlog persists the battle event stream to SQLite so runs can be
// queried after the fact.
package eventlog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/pthm-cable/brawl/telemetry"
)

// Options configures a Store.
type Options struct {
	// RunID labels every row. A random one is generated when empty.
	RunID string
	// IncludeMoves keeps move events, which dominate the stream.
	IncludeMoves bool
}

// RunInfo describes a run registered in the store.
type RunInfo struct {
	ID          string    `db:"id"`
	Seed        int64     `db:"seed"`
	ArenaWidth  float64   `db:"arena_width"`
	ArenaHeight float64   `db:"arena_height"`
	StartedAt   time.Time `db:"started_at"`
	Ticks       int32     `db:"ticks"`
}

// Row is one stored event.
type Row struct {
	RunID  string  `db:"run_id"`
	Tick   int32   `db:"tick"`
	Time   float64 `db:"time"`
	Type   string  `db:"type"`
	Agent  uint32  `db:"agent"`
	Other  uint32  `db:"other"`
	Second uint32  `db:"second"`
	Amount float64 `db:"amount"`
	X      float64 `db:"x"`
	Y      float64 `db:"y"`
	Cause  string  `db:"cause"`
	Strain uint32  `db:"strain"`
	From   string  `db:"from_focus"`
	To     string  `db:"to_focus"`
	Held   float64 `db:"held"`
	Lethal bool    `db:"lethal"`
}

// Store writes frames into a SQLite database.
type Store struct {
	conn    *sqlx.DB
	opts    Options
	started bool
}

// Open opens or creates the database at path.
func Open(path string, opts Options) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("eventlog: empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("eventlog: %w", err)
	}
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	s := &Store{conn: conn, opts: opts}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// RunID returns the id rows are labelled with.
func (s *Store) RunID() string { return s.opts.RunID }

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seed INTEGER NOT NULL,
		arena_width REAL NOT NULL,
		arena_height REAL NOT NULL,
		started_at TIMESTAMP NOT NULL,
		ticks INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		time REAL NOT NULL,
		type TEXT NOT NULL,
		agent INTEGER NOT NULL,
		other INTEGER NOT NULL DEFAULT 0,
		second INTEGER NOT NULL DEFAULT 0,
		amount REAL NOT NULL DEFAULT 0,
		x REAL NOT NULL DEFAULT 0,
		y REAL NOT NULL DEFAULT 0,
		cause TEXT NOT NULL DEFAULT '',
		strain INTEGER NOT NULL DEFAULT 0,
		from_focus TEXT NOT NULL DEFAULT '',
		to_focus TEXT NOT NULL DEFAULT '',
		held REAL NOT NULL DEFAULT 0,
		lethal INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_events_run_tick ON events(run_id, tick);
	CREATE INDEX IF NOT EXISTS idx_events_run_type ON events(run_id, type);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// Consume implements the simulation's sink: it stores the frame's events in
// one transaction and advances the run's tick counter.
func (s *Store) Consume(frame *telemetry.Snapshot) error {
	tx, err := s.conn.Beginx()
	if err != nil {
		return fmt.Errorf("eventlog: begin: %w", err)
	}
	defer tx.Rollback()

	if !s.started {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO runs (id, seed, arena_width, arena_height, started_at)
			VALUES (?, ?, ?, ?, ?)`,
			s.opts.RunID, frame.RNGSeed, frame.ArenaWidth, frame.ArenaHeight, time.Now().UTC()); err != nil {
			return fmt.Errorf("eventlog: register run: %w", err)
		}
	}

	stmt, err := tx.PrepareNamed(`INSERT INTO events
		(run_id, tick, time, type, agent, other, second, amount, x, y, cause, strain, from_focus, to_focus, held, lethal)
		VALUES (:run_id, :tick, :time, :type, :agent, :other, :second, :amount, :x, :y, :cause, :strain, :from_focus, :to_focus, :held, :lethal)`)
	if err != nil {
		return fmt.Errorf("eventlog: prepare: %w", err)
	}
	defer stmt.Close()

	for _, ev := range frame.Events {
		if ev.Type == telemetry.EventMove && !s.opts.IncludeMoves {
			continue
		}
		if _, err := stmt.Exec(s.rowOf(ev)); err != nil {
			return fmt.Errorf("eventlog: insert %s: %w", ev.Type, err)
		}
	}

	if _, err := tx.Exec(`UPDATE runs SET ticks = ? WHERE id = ?`, frame.Tick, s.opts.RunID); err != nil {
		return fmt.Errorf("eventlog: update run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("eventlog: commit: %w", err)
	}
	if !s.started {
		s.started = true
		slog.Info("eventlog_started", "run_id", s.opts.RunID)
	}
	return nil
}

func (s *Store) rowOf(ev telemetry.Event) Row {
	r := Row{
		RunID:  s.opts.RunID,
		Tick:   ev.Tick,
		Time:   ev.Time,
		Type:   ev.Type.String(),
		Agent:  uint32(ev.AgentID),
		Other:  uint32(ev.OtherID),
		Second: uint32(ev.SecondID),
		Amount: ev.Amount,
		X:      ev.X,
		Y:      ev.Y,
		Strain: ev.Strain,
		From:   ev.From,
		To:     ev.To,
		Held:   ev.Held,
		Lethal: ev.Lethal,
	}
	if ev.Type == telemetry.EventDeath {
		r.Cause = ev.Cause.String()
	}
	return r
}

// Run returns the registered run.
func (s *Store) Run(ctx context.Context) (RunInfo, error) {
	var info RunInfo
	err := s.conn.GetContext(ctx, &info, `SELECT id, seed, arena_width, arena_height, started_at, ticks
		FROM runs WHERE id = ?`, s.opts.RunID)
	return info, err
}

// Events returns this run's events of the given type in insertion order.
// An empty type returns every event.
func (s *Store) Events(ctx context.Context, eventType string) ([]Row, error) {
	query := `SELECT run_id, tick, time, type, agent, other, second, amount, x, y, cause, strain,
		from_focus, to_focus, held, lethal FROM events WHERE run_id = ?`
	args := []interface{}{s.opts.RunID}
	if eventType != "" {
		query += ` AND type = ?`
		args = append(args, eventType)
	}
	query += ` ORDER BY id`

	var rows []Row
	if err := s.conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// CountByType returns this run's event counts keyed by type name.
func (s *Store) CountByType(ctx context.Context) (map[string]int, error) {
	var counts []struct {
		Type  string `db:"type"`
		Count int    `db:"n"`
	}
	if err := s.conn.SelectContext(ctx, &counts,
		`SELECT type, COUNT(*) AS n FROM events WHERE run_id = ? GROUP BY type`, s.opts.RunID); err != nil {
		return nil, err
	}
	out := make(map[string]int, len(counts))
	for _, c := range counts {
		out[c.Type] = c.Count
	}
	return out, nil
}

// Kills returns, per killer, the number of combat deaths it caused.
func (s *Store) Kills(ctx context.Context) (map[uint32]int, error) {
	var kills []struct {
		Killer uint32 `db:"other"`
		Count  int    `db:"n"`
	}
	if err := s.conn.SelectContext(ctx, &kills,
		`SELECT other, COUNT(*) AS n FROM events
		WHERE run_id = ? AND type = 'death' AND cause = 'combat' AND other != 0
		GROUP BY other`, s.opts.RunID); err != nil {
		return nil, err
	}
	out := make(map[uint32]int, len(kills))
	for _, k := range kills {
		out[k.Killer] = k.Count
	}
	return out, nil
}
