// Package store owns the embedded SQLite database behind the note
// hierarchy: the file, the schema, the bounded connection pool and the
// transaction lifecycle.
//
// Higher layers never hold a *sql.DB. They pass a closure to
// WithConnection or WithTransaction and receive a Querier bound to one
// pooled connection (or one transaction on it).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/ChienNQuang/Note/internal/errs"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds store configuration.
type Config struct {
	// Path is the database file. Its directory is created if missing.
	Path string
	// MaxConnections bounds the pool. Acquisition beyond it blocks for
	// at most AcquireTimeout.
	MaxConnections int
	AcquireTimeout time.Duration
	// BusyTimeout is how long SQLite waits on a locked database file.
	BusyTimeout time.Duration
	Logger      *slog.Logger
}

// DefaultConfig returns the default configuration for a database at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		MaxConnections: 5,
		AcquireTimeout: 10 * time.Second,
		BusyTimeout:    5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig(c.Path)
	if c.MaxConnections <= 0 {
		c.MaxConnections = d.MaxConnections
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = d.AcquireTimeout
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = d.BusyTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// dsn carries the pragmas in the connection string so that every pooled
// connection gets them, not just the first one.
func (c Config) dsn() string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout("+strconv.FormatInt(c.BusyTimeout.Milliseconds(), 10)+")")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Set("_txlock", "immediate")
	return c.Path + "?" + q.Encode()
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Querier is the subset of *sql.Conn and *sql.Tx that operation bodies use.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a handle on one database file.
type Store struct {
	db    *sql.DB
	cfg   Config
	log   *slog.Logger
	hooks storeHooks

	userMu sync.RWMutex
	userID string
}

type storeHooks struct {
	beginTx func(ctx context.Context, conn *sql.Conn) (*sql.Tx, error)
	commit  func(tx *sql.Tx) error
}

func (s *Store) beginTxHook(ctx context.Context, conn *sql.Conn) (*sql.Tx, error) {
	if s.hooks.beginTx != nil {
		return s.hooks.beginTx(ctx, conn)
	}
	return conn.BeginTx(ctx, nil)
}

func (s *Store) commitHook(tx *sql.Tx) error {
	if s.hooks.commit != nil {
		return s.hooks.commit(tx)
	}
	return tx.Commit()
}

// Open opens (creating if needed) the database at cfg.Path, bootstraps
// the schema and makes sure the local user row exists. Opening an
// already initialized database is a no-op beyond connecting.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	const op = "store.Open"
	if cfg.Path == "" {
		return nil, errs.Errorf(errs.KindValidation, op, "database path is required")
	}
	cfg = cfg.withDefaults()

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
		return nil, errs.E(errs.KindStoreUnavailable, op, fmt.Errorf("create data dir: %w", err))
	}

	db, err := openDB("sqlite", cfg.dsn())
	if err != nil {
		return nil, errs.E(errs.KindStoreUnavailable, op, fmt.Errorf("open database: %w", err))
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections)

	s := &Store{db: db, cfg: cfg, log: cfg.Logger}
	if err := s.bootstrap(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s.log.Info("store opened", "path", cfg.Path, "max_connections", cfg.MaxConnections)
	return s, nil
}

// Close closes every pooled connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.cfg.Path }

// LocalUserID returns the id of the single local actor.
func (s *Store) LocalUserID() string {
	s.userMu.RLock()
	defer s.userMu.RUnlock()
	return s.userID
}

// acquire checks a connection out of the pool, waiting at most
// AcquireTimeout. The caller must Close the connection.
func (s *Store) acquire(ctx context.Context, op string) (*sql.Conn, error) {
	actx, cancel := context.WithTimeout(ctx, s.cfg.AcquireTimeout)
	defer cancel()

	conn, err := s.db.Conn(actx)
	if err != nil {
		s.log.Warn("connection pool exhausted", "op", op, "timeout", s.cfg.AcquireTimeout, "err", err)
		return nil, errs.E(errs.KindStoreUnavailable, op, fmt.Errorf("acquire connection: %w", err))
	}
	return conn, nil
}

// WithConnection runs fn against one pooled connection. The connection
// goes back to the pool when fn returns, whatever the outcome.
func (s *Store) WithConnection(ctx context.Context, fn func(ctx context.Context, q Querier) error) error {
	const op = "store.WithConnection"
	conn, err := s.acquire(ctx, op)
	if err != nil {
		return err
	}
	defer conn.Close() //nolint:errcheck

	return errs.FromStore(op, fn(ctx, conn))
}

// WithTransaction runs fn inside one transaction and commits only if fn
// returns nil. Any error, or a panic, rolls the whole transaction back.
//
// Once the transaction has begun it is detached from ctx cancellation:
// it always runs to commit or rollback.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, q Querier) error) error {
	const op = "store.WithTransaction"
	conn, err := s.acquire(ctx, op)
	if err != nil {
		return err
	}
	defer conn.Close() //nolint:errcheck

	txCtx := context.WithoutCancel(ctx)
	tx, err := s.beginTxHook(txCtx, conn)
	if err != nil {
		return errs.E(errs.KindStoreUnavailable, op, fmt.Errorf("begin transaction: %w", err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txCtx, tx); err != nil {
		_ = tx.Rollback()
		return errs.FromStore(op, err)
	}
	if err := s.commitHook(tx); err != nil {
		_ = tx.Rollback()
		return errs.E(errs.KindStoreUnavailable, op, fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}
