/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence interface of the leave domain using SQLite.
  In production the same patterns apply to PostgreSQL, with only minor SQL
  dialect differences.

INTERFACES IMPLEMENTED:
  timeoff.ProfileStore:  profiles + contracts, atomic read-modify-write
  timeoff.RequestStore:  requests, conditional status transitions
  timeoff.HolidayStore:  one-off and recurring holidays
  timeoff.Directory:     employee display names and departments

KEY TABLES:
  profiles:   one row per employee (approvers, mode, balances cache, version)
  contracts:  employment contracts, unique (employee_id, contract_no)
  requests:   leave/swap/replace; approver columns are indexed for the inbox
  holidays:   non-working days
  employees:  directory

CONCURRENCY GUARD:
  A decision is a single conditional UPDATE:

    UPDATE requests SET status = ?, ...
    WHERE id = ? AND status = ? AND <approver column> = ?

  Zero affected rows means the guard missed; the row is re-read inside the
  same transaction to report the current status (Conflict) or the identity
  mismatch (Authorization).

PROFILE WRITES:
  UpdateProfile reads the profile and its contracts, applies the caller's
  function and writes everything back in one SQL transaction. The profile
  UPDATE is conditional on the version that was read.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection, since SQLite
  allows one writer at a time and ":memory:" databases are per connection.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - timeoff/store.go: Interface definitions
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	// Logger receives lookup failures that cannot be returned to the caller.
	Logger *zap.Logger
}

var (
	_ timeoff.ProfileStore = (*Store)(nil)
	_ timeoff.RequestStore = (*Store)(nil)
	_ timeoff.HolidayStore = (*Store)(nil)
	_ timeoff.Directory    = (*Store)(nil)
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *Store) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Employee profiles
	CREATE TABLE IF NOT EXISTS profiles (
		employee_id TEXT PRIMARY KEY,
		join_date TEXT NOT NULL,
		manager_id TEXT NOT NULL DEFAULT '',
		gm_id TEXT NOT NULL DEFAULT '',
		coo_id TEXT NOT NULL DEFAULT '',
		approval_mode TEXT NOT NULL DEFAULT '',
		current_contract_start TEXT NOT NULL DEFAULT '',
		balances_json TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		updated_at TEXT NOT NULL
	);

	-- Employment contracts
	CREATE TABLE IF NOT EXISTS contracts (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL REFERENCES profiles(employee_id) ON DELETE CASCADE,
		contract_no INTEGER NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL DEFAULT '',
		closed_at TEXT,
		carry_in TEXT NOT NULL DEFAULT '0',
		accrual_baseline INTEGER NOT NULL DEFAULT 0,
		UNIQUE(employee_id, contract_no)
	);

	CREATE INDEX IF NOT EXISTS idx_contracts_employee
		ON contracts(employee_id, start_date);

	-- Leave, swap and replace requests
	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		requester_id TEXT NOT NULL,
		approval_mode TEXT NOT NULL,
		status TEXT NOT NULL,
		manager_id TEXT NOT NULL DEFAULT '',
		gm_id TEXT NOT NULL DEFAULT '',
		coo_id TEXT NOT NULL DEFAULT '',
		total_days TEXT NOT NULL,
		reason TEXT,
		detail_json TEXT NOT NULL,
		approvals_json TEXT NOT NULL DEFAULT '[]',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_requester
		ON requests(requester_id, kind);
	CREATE INDEX IF NOT EXISTS idx_requests_status
		ON requests(status);
	CREATE INDEX IF NOT EXISTS idx_requests_manager
		ON requests(manager_id, status);
	CREATE INDEX IF NOT EXISTS idx_requests_gm
		ON requests(gm_id, status);
	CREATE INDEX IF NOT EXISTS idx_requests_coo
		ON requests(coo_id, status);

	-- Holidays
	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		recurring BOOLEAN DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_holidays_date
		ON holidays(date);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_holidays_unique
		ON holidays(date, name);

	-- Employee directory
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		department TEXT NOT NULL DEFAULT '',
		email TEXT,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// withTx runs fn inside a SQL transaction. The caller holds s.mu.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// Reset clears all tables (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"contracts", "requests", "profiles", "holidays", "employees"}
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// ENCODING HELPERS
// =============================================================================

func formatDate(tp generic.TimePoint) string { return tp.String() }

func parseDate(s string) (generic.TimePoint, error) {
	if s == "" {
		return generic.TimePoint{}, nil
	}
	return generic.ParseDate(s)
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
