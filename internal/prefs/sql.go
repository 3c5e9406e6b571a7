package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// Import SQL drivers
	_ "github.com/go-sql-driver/mysql" // MySQL
	_ "github.com/lib/pq"              // PostgreSQL
)

// Dialect holds the statements for one SQL flavour.
type Dialect struct {
	Driver string
	Create string
	Select string
	Upsert string
}

// Dialects maps preference store names to SQL dialects.
var Dialects = map[string]Dialect{
	"postgres": {
		Driver: "postgres",
		Create: `CREATE TABLE IF NOT EXISTS wbctl_preferences (name VARCHAR(255) PRIMARY KEY, value TEXT NOT NULL)`,
		Select: `SELECT value FROM wbctl_preferences WHERE name = $1`,
		Upsert: `INSERT INTO wbctl_preferences (name, value) VALUES ($1, $2) ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value`,
	},
	"mysql": {
		Driver: "mysql",
		Create: `CREATE TABLE IF NOT EXISTS wbctl_preferences (name VARCHAR(255) PRIMARY KEY, value MEDIUMTEXT NOT NULL)`,
		Select: `SELECT value FROM wbctl_preferences WHERE name = ?`,
		Upsert: `INSERT INTO wbctl_preferences (name, value) VALUES (?, ?) ON DUPLICATE KEY UPDATE value = VALUES(value)`,
	},
}

// SQLStore keeps preferences in a single table.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQL connects to dsn with the named dialect and creates the table.
func OpenSQL(ctx context.Context, dialect, dsn string) (*SQLStore, error) {
	d, ok := Dialects[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported database type: %s", dialect)
	}

	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := NewSQLStore(db, d)
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// EnsureSchema creates the preference table if it does not exist.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.Create); err != nil {
		return fmt.Errorf("create preference table: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, name string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.dialect.Select, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read preference %s: %w", name, err)
	}
	return value, nil
}

// Set implements Store.
func (s *SQLStore) Set(ctx context.Context, name, value string) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.Upsert, name, value); err != nil {
		return fmt.Errorf("write preference %s: %w", name, err)
	}
	return nil
}

// Close releases the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
