package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite-based storage.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &SQLiteStorage{db: db}

	if err := storage.init(); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

// init creates the necessary tables.
func (s *SQLiteStorage) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS effect_runs (
		id TEXT PRIMARY KEY,
		instance TEXT NOT NULL,
		effect TEXT NOT NULL,
		priority INTEGER NOT NULL,
		status TEXT NOT NULL,
		data TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_effect_runs_instance ON effect_runs(instance);
	CREATE INDEX IF NOT EXISTS idx_effect_runs_status ON effect_runs(status);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// SaveRun saves a run to the database.
func (s *SQLiteStorage) SaveRun(run *EffectRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	query := `
		INSERT INTO effect_runs (id, instance, effect, priority, status, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			instance = excluded.instance,
			effect = excluded.effect,
			priority = excluded.priority,
			status = excluded.status,
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err = s.db.Exec(query, run.ID, run.Instance, run.Effect, run.Priority, run.Status, string(data))
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	return nil
}

// GetRun retrieves a run from the database.
func (s *SQLiteStorage) GetRun(id string) (*EffectRun, error) {
	query := `SELECT data FROM effect_runs WHERE id = ?`

	var data string
	err := s.db.QueryRow(query, id).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run not found: %s", id)
		}
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	var run EffectRun
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}

	return &run, nil
}

// ListRuns returns every recorded run from the database, most recent first.
func (s *SQLiteStorage) ListRuns() ([]*EffectRun, error) {
	query := `SELECT data FROM effect_runs ORDER BY updated_at DESC`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []*EffectRun{}

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			continue
		}

		var run EffectRun
		if err := json.Unmarshal([]byte(data), &run); err != nil {
			continue
		}

		runs = append(runs, &run)
	}

	return runs, nil
}

// DeleteRun removes a run from the database.
func (s *SQLiteStorage) DeleteRun(id string) error {
	query := `DELETE FROM effect_runs WHERE id = ?`

	result, err := s.db.Exec(query, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("run not found: %s", id)
	}

	return nil
}

// UpdateRun updates an existing run in the database.
func (s *SQLiteStorage) UpdateRun(run *EffectRun) error {
	return s.SaveRun(run)
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
