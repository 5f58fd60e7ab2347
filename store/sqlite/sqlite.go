/*
Package sqlite provides the SQLite backend for recurring accounts.

PURPOSE:
  Opens a SQLite database, migrates the schema and returns a sqlstore.Store
  configured for SQLite. This is the default backend for local runs and
  single-node deployments.

KEY TABLES:
  accounts_payable:    payables (supplier_id, cost_center_id)
  accounts_receivable: receivables (customer_id)
  projection_runs:     projection audit trail

INDEXES:
  - idx_<table>_templates: template scan (is_recurring, status)
  - idx_<table>_instance_unique: dedup key for generated instances,
    partial over is_recurring = 0

CONCURRENCY:
  A single connection plus the store's RWMutex. ":memory:" databases are
  per-connection in SQLite, so more than one connection would see an
  empty schema.

USAGE:
  store, err := sqlite.New("./data/recurring.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - store/sqlstore: Queries
  - store/postgres: PostgreSQL backend
*/
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/recurring-engine/recurring"
	"github.com/warp/recurring-engine/store/sqlstore"
)

// Store is a sqlstore.Store bound to SQLite.
type Store struct {
	*sqlstore.Store
}

// Dialect is the SQLite flavour of sqlstore.
var Dialect = sqlstore.Dialect{
	Name:          "sqlite",
	ClassifyError: classifyError,
	Serialize:     true,
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{Store: sqlstore.New(db, Dialect)}, nil
}

const schema = `
	-- Payables (templates and generated instances)
	CREATE TABLE IF NOT EXISTS accounts_payable (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		supplier_id TEXT NOT NULL,
		description TEXT NOT NULL,
		amount TEXT NOT NULL,
		due_date TEXT NOT NULL,
		payment_method TEXT,
		bank_account_id TEXT,
		notes TEXT,
		document_number TEXT,
		cost_center_id TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		is_recurring BOOLEAN NOT NULL DEFAULT FALSE,
		recurrence_frequency TEXT,
		recurrence_interval INTEGER,
		recurrence_end_date TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_payable_templates
		ON accounts_payable(is_recurring, status);
	CREATE INDEX IF NOT EXISTS idx_accounts_payable_company
		ON accounts_payable(company_id, due_date);

	-- At most one generated instance per dedup key
	CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_payable_instance_unique
		ON accounts_payable(company_id, supplier_id, description, due_date)
		WHERE is_recurring = 0;

	-- Receivables (templates and generated instances)
	CREATE TABLE IF NOT EXISTS accounts_receivable (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		description TEXT NOT NULL,
		amount TEXT NOT NULL,
		due_date TEXT NOT NULL,
		payment_method TEXT,
		bank_account_id TEXT,
		notes TEXT,
		document_number TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		is_recurring BOOLEAN NOT NULL DEFAULT FALSE,
		recurrence_frequency TEXT,
		recurrence_interval INTEGER,
		recurrence_end_date TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_receivable_templates
		ON accounts_receivable(is_recurring, status);
	CREATE INDEX IF NOT EXISTS idx_accounts_receivable_company
		ON accounts_receivable(company_id, due_date);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_receivable_instance_unique
		ON accounts_receivable(company_id, customer_id, description, due_date)
		WHERE is_recurring = 0;

	-- Projection runs (audit trail)
	CREATE TABLE IF NOT EXISTS projection_runs (
		id TEXT PRIMARY KEY,
		trigger_source TEXT NOT NULL,
		status TEXT NOT NULL,
		examined INTEGER NOT NULL DEFAULT 0,
		created INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		not_due INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_projection_runs_started
		ON projection_runs(started_at);
`

// classifyError maps SQLite constraint violations. A primary key clash is a
// duplicate account; any other unique violation is the instance dedup index.
func classifyError(err error) error {
	var se sqlite3.Error
	if !errors.As(err, &se) || se.Code != sqlite3.ErrConstraint {
		return nil
	}
	switch se.ExtendedCode {
	case sqlite3.ErrConstraintPrimaryKey:
		return recurring.ErrDuplicateAccount
	case sqlite3.ErrConstraintUnique:
		return recurring.ErrDuplicateInstance
	}
	return nil
}
