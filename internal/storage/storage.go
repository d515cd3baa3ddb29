package storage

import (
	"fmt"
)

// Storage persists effect run history across instances.
type Storage interface {
	SaveRun(run *EffectRun) error
	GetRun(id string) (*EffectRun, error)
	ListRuns() ([]*EffectRun, error)
	DeleteRun(id string) error
	UpdateRun(run *EffectRun) error

	// Close closes the storage connection.
	Close() error
}

// StorageType defines the type of storage backend.
type StorageType string

const (
	StorageTypeSQLite     StorageType = "sqlite"
	StorageTypePostgreSQL StorageType = "postgres"
	StorageTypeMySQL      StorageType = "mysql"
	StorageTypeMongoDB    StorageType = "mongodb"
	StorageTypeFile       StorageType = "file"
)

// Config holds storage configuration.
type Config struct {
	Type StorageType
	Path string
	// Additional fields for different storage types
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// New creates a new storage instance based on configuration.
func New(config Config) (Storage, error) {
	switch config.Type {
	case StorageTypeSQLite:
		return NewSQLiteStorage(config.Path)
	case StorageTypePostgreSQL:
		return NewPostgresStorage(config)
	case StorageTypeMySQL:
		return NewMySQLStorage(config)
	case StorageTypeMongoDB:
		return NewMongoStorage(config)
	case StorageTypeFile:
		return NewFileStorage(config.Path)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Type)
	}
}
