package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresStorage implements Storage using PostgreSQL, for deployments
// that centralize effect-run history across several ambientled hosts
// instead of keeping it local to each device's SQLite file.
type PostgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage opens a PostgreSQL connection and ensures its schema.
func NewPostgresStorage(cfg Config) (*PostgresStorage, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storage := &PostgresStorage{db: db}
	if err := storage.init(); err != nil {
		db.Close()
		return nil, err
	}
	return storage, nil
}

func (s *PostgresStorage) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS effect_runs (
		id TEXT PRIMARY KEY,
		instance TEXT NOT NULL,
		effect TEXT NOT NULL,
		priority INTEGER NOT NULL,
		status TEXT NOT NULL,
		data TEXT NOT NULL,
		created_at TIMESTAMPTZ DEFAULT now(),
		updated_at TIMESTAMPTZ DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_effect_runs_instance ON effect_runs(instance);
	CREATE INDEX IF NOT EXISTS idx_effect_runs_status ON effect_runs(status);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveRun upserts a run into the database.
func (s *PostgresStorage) SaveRun(run *EffectRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	query := `
		INSERT INTO effect_runs (id, instance, effect, priority, status, data)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			instance = excluded.instance,
			effect = excluded.effect,
			priority = excluded.priority,
			status = excluded.status,
			data = excluded.data,
			updated_at = now()
	`
	if _, err := s.db.Exec(query, run.ID, run.Instance, run.Effect, run.Priority, run.Status, string(data)); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun retrieves a run from the database.
func (s *PostgresStorage) GetRun(id string) (*EffectRun, error) {
	query := `SELECT data FROM effect_runs WHERE id = $1`

	var data string
	if err := s.db.QueryRow(query, id).Scan(&data); err != nil {
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

// ListRuns returns every recorded run, most recently updated first.
func (s *PostgresStorage) ListRuns() ([]*EffectRun, error) {
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
func (s *PostgresStorage) DeleteRun(id string) error {
	query := `DELETE FROM effect_runs WHERE id = $1`

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
func (s *PostgresStorage) UpdateRun(run *EffectRun) error {
	return s.SaveRun(run)
}

// Close closes the database connection.
func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
