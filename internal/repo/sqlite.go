package repo

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type SQLiteRepo struct {
	db *sql.DB
}

func NewSQLiteRepo(path string) (*SQLiteRepo, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	r := &SQLiteRepo{db: db}
	if err := r.init(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLiteRepo) init() error {
	query := `
	CREATE TABLE IF NOT EXISTS gate_events (
		id TEXT PRIMARY KEY,
		cycle_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		raw_text TEXT NOT NULL,
		encoded TEXT NOT NULL,
		outcome TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_gate_events_created_at ON gate_events(created_at);
	`
	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create gate_events table: %w", err)
	}
	return nil
}

func (r *SQLiteRepo) Record(cycleID, kind, rawText, encoded, outcome string) error {
	query := `INSERT INTO gate_events (id, cycle_id, kind, raw_text, encoded, outcome, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.Exec(query, uuid.NewString(), cycleID, kind, rawText, encoded, outcome, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record gate event: %w", err)
	}
	return nil
}

func (r *SQLiteRepo) Recent(n int) ([]GateEvent, error) {
	query := `SELECT id, cycle_id, kind, raw_text, encoded, outcome, created_at
	          FROM gate_events ORDER BY created_at DESC, id LIMIT ?`
	rows, err := r.db.Query(query, n)
	if err != nil {
		return nil, fmt.Errorf("failed to list gate events: %w", err)
	}
	defer rows.Close()

	var events []GateEvent
	for rows.Next() {
		var e GateEvent
		if err := rows.Scan(&e.ID, &e.CycleID, &e.Kind, &e.RawText, &e.Encoded, &e.Outcome, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan gate event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}
