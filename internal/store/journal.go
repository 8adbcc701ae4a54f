// Package store persists the scheduler's lifecycle notifications in SQLite
// so past runs can be inspected after the fact. The journal is diagnostics
// only: nothing reads it back to make decisions.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"acolyte/internal/logging"
	"acolyte/internal/scheduler"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	// ErrClosed is returned by a journal after Close.
	ErrClosed = errors.New("journal closed")
	// ErrReadOnly is returned when recording into a journal opened by Inspect.
	ErrReadOnly = errors.New("journal opened read-only")
)

// Entry is one journaled event.
type Entry struct {
	Seq        int64
	RunID      string
	Beat       uint64
	Kind       string
	Imperative string
	Impulse    string
	Priority   string
	Reaction   string
	Aborted    bool
	Detail     string
	At         time.Time
}

// Journal records scheduler events for one run. It implements
// scheduler.Listener; write failures are logged and never reach the
// scheduler.
type Journal struct {
	mu     sync.Mutex
	db     *sql.DB
	dbPath string
	runID  string
	closed bool

	written int64
	failed  int64
}

var _ scheduler.Listener = (*Journal)(nil)

// Open opens or creates the journal database at path and starts a new run.
func Open(path string) (*Journal, error) {
	j, err := open(path)
	if err != nil {
		return nil, err
	}
	j.runID = uuid.NewString()
	if _, err := j.db.Exec(`INSERT INTO runs (id, started_at) VALUES (?, ?)`, j.runID, time.Now().UnixNano()); err != nil {
		j.db.Close()
		return nil, fmt.Errorf("failed to start run: %w", err)
	}
	logging.Journal("journal open at %s (run %s)", path, j.runID)
	return j, nil
}

// Inspect opens an existing journal for reading without starting a run.
func Inspect(path string) (*Journal, error) {
	if path != ":memory:" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("journal %s: %w", path, err)
		}
	}
	return open(path)
}

func open(path string) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.JournalWarn("failed to set busy_timeout: %v", err)
	}
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			logging.JournalWarn("failed to set journal_mode=WAL: %v", err)
		}
	}

	j := &Journal{db: db, dbPath: path}
	if err := j.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure journal schema: %w", err)
	}
	return j, nil
}

func (j *Journal) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		beat INTEGER NOT NULL,
		kind TEXT NOT NULL,
		imperative TEXT NOT NULL DEFAULT '',
		impulse TEXT NOT NULL DEFAULT '',
		priority TEXT NOT NULL DEFAULT '',
		reaction TEXT NOT NULL DEFAULT '',
		aborted BOOLEAN NOT NULL DEFAULT 0,
		detail TEXT NOT NULL DEFAULT '',
		at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id);
	CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
	`
	_, err := j.db.Exec(schema)
	return err
}

// RunID identifies the run this journal writes to, empty when read-only.
func (j *Journal) RunID() string { return j.runID }

// OnEvent journals e.
func (j *Journal) OnEvent(e scheduler.Event) {
	if err := j.Record(e); err != nil && !errors.Is(err, ErrClosed) && !errors.Is(err, ErrReadOnly) {
		logging.JournalWarn("failed to record %s: %v", e.Kind, err)
	}
}

// Record writes one event.
func (j *Journal) Record(e scheduler.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	if j.runID == "" {
		return ErrReadOnly
	}

	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := j.db.Exec(`
		INSERT INTO events
		(run_id, beat, kind, imperative, impulse, priority, reaction, aborted, detail, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.runID, int64(e.Beat), e.Kind.String(), e.Imperative, e.Impulse, e.Priority,
		e.Reaction, e.Aborted, e.Detail, at.UnixNano())
	if err != nil {
		j.failed++
		return err
	}
	j.written++
	return nil
}

// Recent returns up to limit entries across all runs, newest first.
// A limit below one means no limit.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	return j.query(`WHERE 1 = 1`, limit)
}

// RunEntries returns up to limit entries of one run, newest first.
func (j *Journal) RunEntries(runID string, limit int) ([]Entry, error) {
	return j.query(`WHERE run_id = ?`, limit, runID)
}

func (j *Journal) query(where string, limit int, args ...interface{}) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil, ErrClosed
	}

	q := `SELECT seq, run_id, beat, kind, imperative, impulse, priority, reaction, aborted, detail, at
		FROM events ` + where + ` ORDER BY seq DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e    Entry
			beat int64
			at   int64
		)
		if err := rows.Scan(&e.Seq, &e.RunID, &beat, &e.Kind, &e.Imperative, &e.Impulse,
			&e.Priority, &e.Reaction, &e.Aborted, &e.Detail, &at); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		e.Beat = uint64(beat)
		e.At = time.Unix(0, at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// KindCounts tallies events of one run by kind.
func (j *Journal) KindCounts(runID string) (map[string]int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil, ErrClosed
	}

	rows, err := j.db.Query(`SELECT kind, COUNT(*) FROM events WHERE run_id = ? GROUP BY kind`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to count journal events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

// Runs returns run ids, most recent first.
func (j *Journal) Runs() ([]string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil, ErrClosed
	}

	rows, err := j.db.Query(`SELECT id FROM runs ORDER BY started_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Stats returns how many writes succeeded and failed.
func (j *Journal) Stats() (written, failed int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.written, j.failed
}

// Close closes the database. Further calls are no-ops.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	logging.Journal("journal closed (%d written, %d failed)", j.written, j.failed)
	return j.db.Close()
}
