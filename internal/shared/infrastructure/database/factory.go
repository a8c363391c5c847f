package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Config selects and configures the history database.
type Config struct {
	// Driver is postgres or sqlite. Empty or "auto" detects it from URL.
	Driver Driver
	// URL is the PostgreSQL connection string.
	URL string
	// SQLitePath is the SQLite file, or ":memory:". Defaults to ~/.cadence/cadence.db.
	SQLitePath string
	// MaxConns caps the PostgreSQL pool. Zero keeps the pgx default.
	MaxConns int
}

type opener func(ctx context.Context, cfg Config) (Connection, error)

// Driver packages register themselves from init; the container imports
// database/postgres and database/sqlite for that side effect.
var openers = map[Driver]opener{}

// RegisterPostgresDriver registers the PostgreSQL opener.
func RegisterPostgresDriver(fn func(ctx context.Context, cfg Config) (Connection, error)) {
	openers[DriverPostgres] = fn
}

// RegisterSQLiteDriver registers the SQLite opener.
func RegisterSQLiteDriver(fn func(ctx context.Context, cfg Config) (Connection, error)) {
	openers[DriverSQLite] = fn
}

// NewConnection opens the database cfg describes.
func NewConnection(ctx context.Context, cfg Config) (Connection, error) {
	driver := cfg.Driver
	if driver == "" || driver == "auto" {
		driver = DetectDriver(cfg.URL)
	}
	if !driver.IsValid() {
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
	open, ok := openers[driver]
	if !ok {
		return nil, fmt.Errorf("%s driver not registered", driver)
	}
	return open(ctx, cfg)
}

// DefaultSQLitePath returns ~/.cadence/cadence.db, or a relative path when
// the home directory is unknown.
func DefaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".cadence", "cadence.db")
}

// EnsureDirectory creates the parent directory of path.
func EnsureDirectory(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
