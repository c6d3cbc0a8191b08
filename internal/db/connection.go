package db

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds destination database configuration. Hosts is an ordered
// failover list; the first host that accepts a connection wins.
type Config struct {
	Hosts    []string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN renders the connection string for one host.
func (c Config) DSN(host string) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Connection wraps the database connection pool
type Connection struct {
	Pool *pgxpool.Pool
	// Host is the failover candidate that accepted the connection.
	Host string
}

// NewConnection walks the host list and returns a pool on the first host
// that answers a ping. Per-host failures are logged and the next candidate
// is tried; the returned error aggregates only when every host refused.
func NewConnection(ctx context.Context, config Config) (*Connection, error) {
	if len(config.Hosts) == 0 {
		return nil, fmt.Errorf("no database hosts configured")
	}

	var lastErr error
	for _, host := range config.Hosts {
		pool, err := connectHost(ctx, config, host)
		if err != nil {
			log.Printf("[db] host %s unavailable: %v", host, err)
			lastErr = err
			continue
		}
		log.Printf("[db] connected to %s:%d/%s", host, config.Port, config.DBName)
		return &Connection{Pool: pool, Host: host}, nil
	}
	return nil, fmt.Errorf("all %d database hosts unavailable, last error: %w", len(config.Hosts), lastErr)
}

func connectHost(ctx context.Context, config Config, host string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(config.DSN(host))
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	// Conservative pool settings; the engine serializes its own writes.
	poolConfig.MaxConns = 5
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Minute * 30
	poolConfig.MaxConnIdleTime = time.Minute * 5
	poolConfig.HealthCheckPeriod = time.Minute
	poolConfig.ConnConfig.ConnectTimeout = 5 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// Close closes the database connection pool
func (c *Connection) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
}

// Ping verifies the pool is still usable.
func (c *Connection) Ping(ctx context.Context) error {
	return c.Pool.Ping(ctx)
}

// WithTx executes a function within a database transaction
func (c *Connection) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := c.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if err := tx.Rollback(ctx); err != nil {
				log.Printf("Failed to rollback transaction: %v", err)
			}
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// DefaultConfig returns a default database configuration
func DefaultConfig() Config {
	return Config{
		Hosts:    []string{"localhost"},
		Port:     5432,
		User:     "postgres",
		Password: "admin",
		DBName:   "tallysync",
		SSLMode:  "disable",
	}
}
