package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/quizen/internal/model"

	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("run not found")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		stage TEXT NOT NULL,
		last_completed TEXT NOT NULL DEFAULT '',
		question_count INTEGER NOT NULL DEFAULT 0,
		snapshot TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_events (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		name TEXT NOT NULL,
		stage TEXT NOT NULL,
		payload TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		PRIMARY KEY (run_id, seq),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE TABLE IF NOT EXISTS operators (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS quizen_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save checkpoints a run. The snapshot row is replaced; events are appended
// and events already stored are never rewritten.
func (s *Store) Save(ctx context.Context, runID string, snap model.RunSnapshot) error {
	events := snap.Events
	snap.Events = nil
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, stage, last_completed, question_count, snapshot, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET stage = ?, last_completed = ?, question_count = ?, snapshot = ?, updated_at = ?`,
		runID, string(snap.Stage), string(snap.LastCompleted), len(snap.Questions), string(body), snap.CreatedAt, snap.UpdatedAt,
		string(snap.Stage), string(snap.LastCompleted), len(snap.Questions), string(body), snap.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}

	var stored int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM run_events WHERE run_id = ?`, runID).Scan(&stored); err != nil {
		return fmt.Errorf("read event high-water mark: %w", err)
	}
	for _, ev := range events {
		if ev.Seq <= stored {
			continue
		}
		payload := ""
		if len(ev.Payload) > 0 {
			raw, err := json.Marshal(ev.Payload)
			if err != nil {
				return fmt.Errorf("encode payload of event %d: %w", ev.Seq, err)
			}
			payload = string(raw)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO run_events (run_id, seq, name, stage, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			runID, ev.Seq, ev.Name, string(ev.Stage), payload, ev.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert event %d: %w", ev.Seq, err)
		}
	}

	return tx.Commit()
}

// Load returns the last checkpoint of a run with its full event log.
func (s *Store) Load(ctx context.Context, runID string) (model.RunSnapshot, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM runs WHERE id = ?`, runID).Scan(&body)
	if err == sql.ErrNoRows {
		return model.RunSnapshot{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return model.RunSnapshot{}, err
	}
	var snap model.RunSnapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		return model.RunSnapshot{}, fmt.Errorf("decode snapshot %s: %w", runID, err)
	}
	snap.Events, err = s.ListEvents(ctx, runID)
	if err != nil {
		return model.RunSnapshot{}, err
	}
	return snap, nil
}

// ListEvents returns a run's events in sequence order.
func (s *Store) ListEvents(ctx context.Context, runID string) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, name, stage, payload, created_at FROM run_events WHERE run_id = ? ORDER BY seq`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []model.Event
	for rows.Next() {
		var (
			ev      model.Event
			stage   string
			payload string
		)
		if err := rows.Scan(&ev.Seq, &ev.Name, &stage, &payload, &ev.Timestamp); err != nil {
			return nil, err
		}
		ev.Stage = model.Stage(stage)
		if payload != "" {
			if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
				return nil, fmt.Errorf("decode payload of event %d: %w", ev.Seq, err)
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ListRuns returns every stored run, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]model.RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, stage, question_count, created_at, updated_at FROM runs ORDER BY created_at DESC, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []model.RunSummary
	for rows.Next() {
		var (
			r     model.RunSummary
			stage string
		)
		if err := rows.Scan(&r.RunID, &stage, &r.Questions, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Stage = model.Stage(stage)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunCount returns the number of stored runs.
func (s *Store) RunCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&count)
	return count, err
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
