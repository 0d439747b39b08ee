/*
Package sqlite provides a SQLite-backed implementation of the leave storage
interfaces.

INTERFACES IMPLEMENTED:
  timeoff.TxStore:      leave types, balances, leaves, audit log
  timeoff.PersonStore:  person lookup data
  generic.HolidayStore: company holidays (feeds the holiday-aware calendar)

KEY TABLES:
  leave_types:    catalog with policy flags (name unique, case-insensitive)
  leave_balances: one row per (person_id, leave_type_id, year)
  leaves:         leave requests and their status
  persons:        lookup data for the person directory
  holidays:       company-specific and global holidays
  audit_log:      append-only who/what/when

ENCODING:
  Day quantities are stored as decimal TEXT (exact half days), calendar days
  as YYYY-MM-DD, instants as RFC 3339 in UTC.

TRANSACTIONS:
  Every query goes through a querier: the *sql.DB outside WithTx, the
  *sql.Tx inside it. WithTx is serialized by a mutex (SQLite has a single
  writer). Code running inside WithTx must use the Store it is handed,
  never the outer one.

ERRORS:
  sql.ErrNoRows becomes a timeoff.NotFoundError. Every other driver error is
  wrapped with generic.StorageError, so errors.Is matches both
  generic.ErrStorage and the driver cause.

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
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/timeoff"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements all storage interfaces using SQLite.
type Store struct {
	conn

	db   *sql.DB
	txMu sync.Mutex
}

// conn holds every table method. The store's conn queries the database;
// WithTx hands fn a conn bound to the transaction.
type conn struct {
	q querier
}

var (
	_ timeoff.TxStore      = (*Store)(nil)
	_ timeoff.PersonStore  = (*Store)(nil)
	_ generic.HolidayStore = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	store := NewFromDB(db)
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// NewFromDB wraps an open database without migrating it.
func NewFromDB(db *sql.DB) *Store {
	return &Store{conn: conn{q: db}, db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return generic.StorageError("ping", err)
	}
	return nil
}

// Migrate creates the database schema.
func (s *Store) Migrate(ctx context.Context) error {
	schema := `
	-- Leave types (catalog)
	CREATE TABLE IF NOT EXISTS leave_types (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		max_days_per_year TEXT NOT NULL,
		can_carry_over INTEGER NOT NULL DEFAULT 0,
		max_carry_over_days TEXT NOT NULL DEFAULT '0',
		notification_days INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_leave_types_name
		ON leave_types(name COLLATE NOCASE);

	-- Balances (one row per person / type / year)
	CREATE TABLE IF NOT EXISTS leave_balances (
		id TEXT PRIMARY KEY,
		person_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		allocated_days TEXT NOT NULL,
		used_days TEXT NOT NULL,
		pending_days TEXT NOT NULL,
		carried_over_days TEXT NOT NULL,
		manual_adjustment TEXT NOT NULL,
		monthly_accrual TEXT NOT NULL,
		accrued_to_date TEXT NOT NULL,
		last_accrual_date TEXT,
		adjustment_reason TEXT NOT NULL DEFAULT '',
		adjustment_date TEXT,
		available_days TEXT NOT NULL,
		remaining_days TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_balances_key
		ON leave_balances(person_id, leave_type_id, year);
	CREATE INDEX IF NOT EXISTS idx_balances_year_active
		ON leave_balances(year, is_active);

	-- Leaves (requests)
	CREATE TABLE IF NOT EXISTS leaves (
		id TEXT PRIMARY KEY,
		person_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		total_days TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		approved_by_id TEXT NOT NULL DEFAULT '',
		approved_at TEXT,
		approval_notes TEXT NOT NULL DEFAULT '',
		rejection_reason TEXT NOT NULL DEFAULT '',
		cancelled_by_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Conflict window lookups (hot path)
	CREATE INDEX IF NOT EXISTS idx_leaves_person_dates
		ON leaves(person_id, start_date, end_date);
	CREATE INDEX IF NOT EXISTS idx_leaves_status
		ON leaves(status);
	CREATE INDEX IF NOT EXISTS idx_leaves_type
		ON leaves(leave_type_id);

	-- Persons (lookup data)
	CREATE TABLE IF NOT EXISTS persons (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		department_id TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	-- Holidays (company-specific and global)
	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		recurring INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_holidays_company_date
		ON holidays(company_id, date);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_holidays_unique
		ON holidays(company_id, date, name);

	-- Audit log (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		subject TEXT NOT NULL,
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_subject
		ON audit_log(subject, timestamp);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return generic.StorageError("migrate", err)
	}
	return nil
}

// Reset clears all data (for testing).
func (s *Store) Reset(ctx context.Context) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	for _, table := range []string{"audit_log", "leaves", "leave_balances", "leave_types", "persons", "holidays"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return generic.StorageError("reset "+table, err)
		}
	}
	return nil
}

// =============================================================================
// TRANSACTION SUPPORT
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(timeoff.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return generic.StorageError("begin", err)
	}
	if err := fn(&conn{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, generic.StorageError("rollback", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return generic.StorageError("commit", err)
	}
	return nil
}

// =============================================================================
// ENCODING HELPERS
// =============================================================================

var storageErr = generic.StorageError

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func formatOptionalTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseOptionalTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func formatDate(tp generic.TimePoint) string {
	return tp.String()
}

func formatOptionalDate(tp generic.TimePoint) sql.NullString {
	if tp.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: tp.String(), Valid: true}
}

func parseDate(s string) generic.TimePoint {
	tp, err := generic.ParseDate(s)
	if err != nil {
		return generic.TimePoint{}
	}
	return tp
}

func parseOptionalDate(ns sql.NullString) generic.TimePoint {
	if !ns.Valid {
		return generic.TimePoint{}
	}
	return parseDate(ns.String)
}

// dayDecoder parses day-quantity columns and keeps the first failure, so a
// corrupt row surfaces as an error instead of as zero days.
type dayDecoder struct {
	err error
}

func (d *dayDecoder) parse(column, s string) decimal.Decimal {
	v, err := generic.ParseDays(s)
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("column %s: %w", column, err)
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// notFoundOr maps sql.ErrNoRows to a NotFoundError and wraps anything else.
func notFoundOr(err error, op, entity, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return &timeoff.NotFoundError{Entity: entity, ID: id}
	}
	return generic.StorageError(op, err)
}

// requireAffected turns a zero-row DELETE into a NotFoundError.
func requireAffected(res sql.Result, op, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return generic.StorageError(op, err)
	}
	if n == 0 {
		return &timeoff.NotFoundError{Entity: entity, ID: id}
	}
	return nil
}
