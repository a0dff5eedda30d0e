package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// FileName is the name of the database file inside the data directory.
const FileName = "osintnexus.db"

var (
	// ErrProjectNotFound is returned when a project lookup finds nothing.
	ErrProjectNotFound = errors.New("project not found")

	// ErrDuplicateProject is returned when a project name is already taken.
	ErrDuplicateProject = errors.New("project already exists")

	// ErrInvalidEntity is returned for an entity without type, value or project.
	ErrInvalidEntity = errors.New("invalid entity")
)

// Store provides SQLite-based storage for projects and their graphs.
// It satisfies the engine's Store port.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Options configures Store behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the store inside dbDir.
func Open(dbDir string, opts Options) (*Store, error) {
	dbPath := filepath.Join(dbDir, FileName)

	mode := "rwc"
	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
		mode = "rw"
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?mode="+mode+"&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer. A single connection also serializes
	// the read-modify-write transactions below.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Entities are unique per project by (entity_type, value)
	CREATE TABLE IF NOT EXISTS entities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		entity_type TEXT NOT NULL,
		value TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		attributes TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(project_id, entity_type, value)
	);

	CREATE INDEX IF NOT EXISTS idx_entities_project ON entities(project_id);
	CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(entity_type);

	-- Connections accumulate weight instead of duplicating rows
	CREATE TABLE IF NOT EXISTS connections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		source_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
		target_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
		relationship TEXT NOT NULL DEFAULT '',
		weight REAL NOT NULL DEFAULT 1.0,
		attributes TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(project_id, source_id, target_id, relationship)
	);

	CREATE INDEX IF NOT EXISTS idx_connections_source ON connections(source_id);
	CREATE INDEX IF NOT EXISTS idx_connections_target ON connections(target_id);

	-- Scan results record every module run inside a project
	CREATE TABLE IF NOT EXISTS scan_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		scan_id TEXT NOT NULL DEFAULT '',
		module_name TEXT NOT NULL,
		input_data TEXT NOT NULL DEFAULT '{}',
		output_data TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		execution_time REAL NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_scan_results_project ON scan_results(project_id);
	CREATE INDEX IF NOT EXISTS idx_scan_results_created ON scan_results(created_at);
	`

	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999",
}

// parseTimestamp parses s with each of timestampFormats and returns the
// zero time if none matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
