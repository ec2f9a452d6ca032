package medium

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"digisafe/pkg/platform/sentinel"
)

// Dialect selects placeholder syntax for the SQL medium.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

type sqlQueries struct {
	schema string
	read   string
	write  string
}

var dialectQueries = map[Dialect]sqlQueries{
	DialectSQLite: {
		schema: `CREATE TABLE IF NOT EXISTS medium (addr INTEGER PRIMARY KEY, value INTEGER NOT NULL)`,
		read:   `SELECT value FROM medium WHERE addr = ?`,
		write:  `INSERT INTO medium (addr, value) VALUES (?, ?) ON CONFLICT (addr) DO UPDATE SET value = excluded.value`,
	},
	DialectPostgres: {
		schema: `CREATE TABLE IF NOT EXISTS medium (addr INTEGER PRIMARY KEY, value SMALLINT NOT NULL)`,
		read:   `SELECT value FROM medium WHERE addr = $1`,
		write:  `INSERT INTO medium (addr, value) VALUES ($1, $2) ON CONFLICT (addr) DO UPDATE SET value = EXCLUDED.value`,
	},
}

// SQL stores one row per written byte. Addresses never written read as 0.
type SQL struct {
	mu      sync.Mutex
	db      *sql.DB
	queries sqlQueries
	size    int
}

// NewSQL wraps db. Call Migrate before first use.
func NewSQL(db *sql.DB, dialect Dialect, size int) (*SQL, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}
	if err := validateSize(size); err != nil {
		return nil, err
	}
	q, ok := dialectQueries[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported medium dialect %q", dialect)
	}
	return &SQL{db: db, queries: q, size: size}, nil
}

// Migrate creates the medium table.
func (m *SQL) Migrate(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, m.queries.schema); err != nil {
		return fmt.Errorf("migrate medium: %w", err)
	}
	return nil
}

func (m *SQL) Read(ctx context.Context, addr uint16) (byte, error) {
	if err := checkAddr(addr, m.size); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var value int
	err := m.db.QueryRowContext(ctx, m.queries.read, int(addr)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read medium row %d: %w: %w", addr, sentinel.ErrUnavailable, err)
	}
	return byte(value), nil
}

func (m *SQL) Write(ctx context.Context, addr uint16, value byte) error {
	if err := checkAddr(addr, m.size); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.db.ExecContext(ctx, m.queries.write, int(addr), int(value)); err != nil {
		return fmt.Errorf("write medium row %d: %w: %w", addr, sentinel.ErrUnavailable, err)
	}
	return nil
}

func (m *SQL) Size() int { return m.size }
