// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/laurel/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// maxPingRetries bounds how long New waits for the database to come up.
const maxPingRetries = 6

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	queries
	db *sql.DB
}

// Compile-time checks that every unit of work implements store.Store.
var (
	_ store.Store = (*PostgresStore)(nil)
	_ store.Store = (*txStore)(nil)
	_ store.Store = (*connStore)(nil)
)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, waits for the server to answer, and runs
// any pending migrations.
func New(ctx context.Context, databaseURL string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ping := func() error { return db.PingContext(ctx) }
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxPingRetries), ctx)
	notify := func(err error, wait time.Duration) {
		logger.Warn("database not ready, retrying", "err", err, "wait", wait)
	}
	if err := backoff.RetryNotify(ping, b, notify); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return NewFromDB(db), nil
}

// NewFromDB wraps an already opened database without pinging or migrating it.
func NewFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{queries: queries{db: db}, db: db}
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return runTx(ctx, s.db, fn)
}

// WithConn pins one pooled connection for the duration of fn. Transactions
// opened through the connStore run on that connection.
func (s *PostgresStore) WithConn(ctx context.Context, fn func(conn store.Store) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()
	return fn(&connStore{queries: queries{db: conn}, conn: conn})
}

// txBeginner is satisfied by *sql.DB and *sql.Conn.
type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

func runTx(ctx context.Context, b txBeginner, fn func(tx store.Store) error) error {
	tx, err := b.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{queries: queries{db: tx}, tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	queries
	tx *sql.Tx
}

// RunInTransaction reuses the current transaction.
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// WithConn reuses the transaction's connection.
func (s *txStore) WithConn(ctx context.Context, fn func(conn store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}

// connStore implements store.Store on a single pinned *sql.Conn.
type connStore struct {
	queries
	conn *sql.Conn
}

func (s *connStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return runTx(ctx, s.conn, fn)
}

func (s *connStore) WithConn(ctx context.Context, fn func(conn store.Store) error) error {
	return fn(s)
}

// Close is a no-op; WithConn releases the connection when fn returns.
func (s *connStore) Close() error {
	return nil
}
