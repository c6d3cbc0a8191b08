package db

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sync"
)

// Database names travel from job definitions and API payloads into DSNs
// and CREATE DATABASE statements, so they pass the same allow-list the
// persister applies to identifiers.
var databaseNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateDatabaseName rejects names unfit for a DSN or DDL statement.
func ValidateDatabaseName(name string) error {
	if name == "" {
		return fmt.Errorf("empty database name")
	}
	if len(name) > 63 {
		return fmt.Errorf("database name %q exceeds 63 characters", name)
	}
	if !databaseNamePattern.MatchString(name) {
		return fmt.Errorf("database name %q contains characters outside the allow-list", name)
	}
	return nil
}

// Manager hands out one connection per destination database, all sharing
// the configured host/credential profile. The default database's
// connection is seeded at startup; others open lazily on first use and
// live until Close.
type Manager struct {
	base Config

	mu    sync.Mutex
	conns map[string]*Connection
}

// NewManager wraps the already-established default connection.
func NewManager(base Config, defaultConn *Connection) *Manager {
	return &Manager{
		base:  base,
		conns: map[string]*Connection{base.DBName: defaultConn},
	}
}

// Get returns the connection for the named database, opening it if this
// is the first use. An empty name means the configured default.
func (m *Manager) Get(ctx context.Context, database string) (*Connection, error) {
	if database == "" {
		database = m.base.DBName
	}
	if err := ValidateDatabaseName(database); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if conn, ok := m.conns[database]; ok {
		return conn, nil
	}

	config := m.base
	config.DBName = database
	conn, err := NewConnection(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to database %q: %w", database, err)
	}
	m.conns[database] = conn
	return conn, nil
}

// Default returns the startup connection.
func (m *Manager) Default() *Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conns[m.base.DBName]
}

// ListDatabases returns the selectable destination databases, template
// databases excluded.
func (m *Manager) ListDatabases(ctx context.Context) ([]string, error) {
	conn := m.Default()
	rows, err := conn.Pool.Query(ctx,
		`SELECT datname FROM pg_database WHERE datistemplate = false ORDER BY datname`)
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan database name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate databases: %w", err)
	}
	return names, nil
}

// CreateDatabase creates a new destination database on the default host.
func (m *Manager) CreateDatabase(ctx context.Context, name string) error {
	if err := ValidateDatabaseName(name); err != nil {
		return err
	}
	conn := m.Default()
	if _, err := conn.Pool.Exec(ctx, fmt.Sprintf(`CREATE DATABASE %q`, name)); err != nil {
		return fmt.Errorf("create database %q: %w", name, err)
	}
	log.Printf("[db] created database %s", name)
	return nil
}

// Close closes every connection the manager opened, the default included.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, conn := range m.conns {
		conn.Close()
		delete(m.conns, name)
	}
}
