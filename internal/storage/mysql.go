package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStorage implements Storage using MySQL/MariaDB, for deployments
// that already run a MySQL instance and would rather not add PostgreSQL
// or SQLite to their stack.
type MySQLStorage struct {
	db *sql.DB
}

// NewMySQLStorage opens a MySQL connection and ensures its schema.
func NewMySQLStorage(cfg Config) (*MySQLStorage, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storage := &MySQLStorage{db: db}
	if err := storage.init(); err != nil {
		db.Close()
		return nil, err
	}
	return storage, nil
}

func (s *MySQLStorage) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS effect_runs (
		id VARCHAR(64) PRIMARY KEY,
		instance VARCHAR(255) NOT NULL,
		effect VARCHAR(255) NOT NULL,
		priority INT NOT NULL,
		status VARCHAR(32) NOT NULL,
		data LONGTEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		INDEX idx_effect_runs_instance (instance),
		INDEX idx_effect_runs_status (status)
	) ENGINE=InnoDB;
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveRun upserts a run into the database.
func (s *MySQLStorage) SaveRun(run *EffectRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	query := `
		INSERT INTO effect_runs (id, instance, effect, priority, status, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			instance = VALUES(instance),
			effect = VALUES(effect),
			priority = VALUES(priority),
			status = VALUES(status),
			data = VALUES(data)
	`
	if _, err := s.db.Exec(query, run.ID, run.Instance, run.Effect, run.Priority, run.Status, string(data)); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun retrieves a run from the database.
func (s *MySQLStorage) GetRun(id string) (*EffectRun, error) {
	query := `SELECT data FROM effect_runs WHERE id = ?`

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
func (s *MySQLStorage) ListRuns() ([]*EffectRun, error) {
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
func (s *MySQLStorage) DeleteRun(id string) error {
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
func (s *MySQLStorage) UpdateRun(run *EffectRun) error {
	return s.SaveRun(run)
}

// Close closes the database connection.
func (s *MySQLStorage) Close() error {
	return s.db.Close()
}
