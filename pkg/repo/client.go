// Package repo implements the Veldt entity repository on an embedded
// SQLite store.
//
// One Client owns one database file and one connection. Every statement
// executes under a single gate mutex: SQLite is a single-writer store,
// so callers queue rather than interleave raw statements. Multi-statement
// sequences run inside an immediate transaction with rollback on
// failure.
//
// Example:
//
//	client, err := repo.Open("./veldt.db")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	tenant, err := client.CreateTenant(ctx, &graph.Tenant{Name: "acme", Active: true})
package repo

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/veldtdb/veldt/pkg/graph"
	_ "modernc.org/sqlite"
)

// Client is the entity repository over one SQLite database file.
// Safe for concurrent use; all statement execution is serialized
// through the gate.
type Client struct {
	db     *sql.DB
	path   string
	gate   sync.Mutex
	closed bool
	mu     sync.RWMutex // protects closed
}

// Open opens (creating if necessary) the database at path and applies
// the schema.
func Open(path string) (*Client, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: database path required", graph.ErrValidation)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", graph.ErrStorage, path, err)
	}

	// Single connection behind the gate; SQLite is single-writer.
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(0)

	c := &Client{db: db, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%w: %s: %v", graph.ErrStorage, pragma, err)
		}
	}

	if err := c.initializeSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return c, nil
}

// Path returns the database file path.
func (c *Client) Path() string {
	return c.path
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.db.Close()
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// execute runs a single statement under the gate.
func (c *Client) execute(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if c.isClosed() {
		return nil, fmt.Errorf("%w: client closed", graph.ErrStorage)
	}

	c.gate.Lock()
	defer c.gate.Unlock()

	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: exec %q: %v", graph.ErrStorage, firstWords(query), err)
	}
	return res, nil
}

// queryRow runs a single-row query under the gate and scans into dest.
// Returns sql.ErrNoRows unchanged so callers can map it to ErrNotFound.
func (c *Client) queryRow(ctx context.Context, query string, args []any, dest ...any) error {
	if c.isClosed() {
		return fmt.Errorf("%w: client closed", graph.ErrStorage)
	}

	c.gate.Lock()
	defer c.gate.Unlock()

	return c.db.QueryRowContext(ctx, query, args...).Scan(dest...)
}

// queryAll runs a query under the gate and drains every row through scan
// before releasing the gate, so a slow consumer never holds it.
func (c *Client) queryAll(ctx context.Context, query string, args []any, scan func(*sql.Rows) error) error {
	if c.isClosed() {
		return fmt.Errorf("%w: client closed", graph.ErrStorage)
	}

	c.gate.Lock()
	defer c.gate.Unlock()

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: query %q: %v", graph.ErrStorage, firstWords(query), err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: query %q: %v", graph.ErrStorage, firstWords(query), err)
	}
	return nil
}

// withTx runs fn inside an immediate transaction under the gate,
// rolling back on error or context cancellation. Each entity mutation is
// either fully applied or fully unapplied.
func (c *Client) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if c.isClosed() {
		return fmt.Errorf("%w: client closed", graph.ErrStorage)
	}

	c.gate.Lock()
	defer c.gate.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", graph.ErrStorage, err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", graph.ErrStorage, err)
	}
	return nil
}

// now returns the repository clock. Timestamps are assigned here, never
// by callers.
func now() time.Time {
	return time.Now().UTC()
}

func firstWords(query string) string {
	const max = 48
	return query[:min(len(query), max)]
}
