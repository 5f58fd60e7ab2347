/*
Package sqlstore implements the recurring store interfaces over database/sql.

PURPOSE:
  Shared query layer for the SQLite and PostgreSQL backends. Driver
  specifics (placeholders, schema, constraint error mapping) live in a
  Dialect supplied by store/sqlite and store/postgres.

KEY TABLES:
  accounts_payable:    payables, counterparty column supplier_id
  accounts_receivable: receivables, counterparty column customer_id
  projection_runs:     audit trail of projection runs

UNIQUENESS:
  Each account table carries a partial unique index over
  (company_id, counterparty, description, due_date) for non-recurring rows.
  This is the dedup key guard for concurrent runs; violations surface as
  recurring.ErrDuplicateInstance.

QUERIES:
  Written with '?' placeholders and rebound per dialect.

SEE ALSO:
  - recurring/store.go: Interface definitions
  - store/sqlite/sqlite.go, store/postgres/postgres.go: Backends
*/
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/warp/recurring-engine/recurring"
)

// Dialect captures driver differences.
type Dialect struct {
	Name string

	// Numbered placeholders ($1, $2...) instead of '?'.
	NumberedPlaceholders bool

	// ClassifyError maps constraint violations to recurring sentinel errors.
	// It returns nil for errors it does not recognize.
	ClassifyError func(err error) error

	// Serialize guards every call with a process-wide RWMutex. SQLite needs it.
	Serialize bool
}

// Store implements recurring.AccountStore and recurring.RunRecorder.
type Store struct {
	db *sql.DB
	d  Dialect
	mu sync.RWMutex
}

// New wraps an open database. The schema must already exist.
func New(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, d: d}
}

// DB exposes the underlying handle (used by migrations and tests).
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) lock() func() {
	if !s.d.Serialize {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) rlock() func() {
	if !s.d.Serialize {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

// Rebind converts '?' placeholders for the dialect.
func (s *Store) Rebind(query string) string {
	if !s.d.NumberedPlaceholders {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// =============================================================================
// TABLE LAYOUT
// =============================================================================

type table struct {
	name         string
	counterparty string
	costCenter   bool
}

var tables = map[recurring.Kind]table{
	recurring.KindPayable:    {name: "accounts_payable", counterparty: "supplier_id", costCenter: true},
	recurring.KindReceivable: {name: "accounts_receivable", counterparty: "customer_id"},
}

func tableFor(kind recurring.Kind) (table, error) {
	t, ok := tables[kind]
	if !ok {
		return table{}, fmt.Errorf("%w: %q", recurring.ErrInvalidKind, kind)
	}
	return t, nil
}

func (t table) columns() []string {
	cols := []string{
		"id", "company_id", t.counterparty, "description", "amount", "due_date",
		"payment_method", "bank_account_id", "notes", "document_number",
		"status", "is_recurring", "recurrence_frequency", "recurrence_interval",
		"recurrence_end_date", "created_at",
	}
	if t.costCenter {
		cols = append(cols, "cost_center_id")
	}
	return cols
}

func (t table) selectList() string { return strings.Join(t.columns(), ", ") }

func (t table) args(a recurring.Account) []any {
	var endDate any
	if a.EndDate != nil {
		endDate = a.EndDate.String()
	}
	var interval any
	if a.IsRecurring {
		interval = a.Interval
	}
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	args := []any{
		a.ID, a.CompanyID, a.CounterpartyID, a.Description, a.Amount.Round(2).StringFixed(2), a.DueDate.String(),
		nullString(a.PaymentMethod), nullString(a.BankAccountID), nullString(a.Notes), nullString(a.DocumentNumber),
		string(a.Status), a.IsRecurring, nullString(string(a.Frequency)), interval,
		endDate, created.UTC().Format(time.RFC3339),
	}
	if t.costCenter {
		args = append(args, nullString(a.CostCenterID))
	}
	return args
}

// =============================================================================
// PROJECTOR STORE (recurring.Store)
// =============================================================================

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ListTemplates returns pending recurring accounts of kind.
func (s *Store) ListTemplates(ctx context.Context, kind recurring.Kind) ([]recurring.Account, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	defer s.rlock()()

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE is_recurring = ? AND status = ?
		ORDER BY due_date ASC, id ASC
	`, t.selectList(), t.name)

	accounts, malformed, err := s.queryAccounts(ctx, kind, t, query, true, string(recurring.StatusPending))
	if err != nil {
		return nil, err
	}
	if len(malformed) > 0 {
		return accounts, &recurring.MalformedTemplatesError{Kind: kind, Rows: malformed}
	}
	return accounts, nil
}

// FindInstance checks the dedup key among non-recurring rows.
func (s *Store) FindInstance(ctx context.Context, key recurring.DedupKey) (bool, error) {
	t, err := tableFor(key.Kind)
	if err != nil {
		return false, err
	}
	defer s.rlock()()

	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM %s
		WHERE company_id = ? AND %s = ? AND description = ? AND due_date = ? AND is_recurring = ?
	`, t.name, t.counterparty)

	var count int
	err = s.db.QueryRowContext(ctx, s.Rebind(query),
		key.CompanyID, key.CounterpartyID, key.Description, key.DueDate.String(), false,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to look up instance: %w", err)
	}
	return count > 0, nil
}

func (s *Store) InsertInstance(ctx context.Context, inst recurring.Account) error {
	err := s.insert(ctx, inst)
	if errors.Is(err, recurring.ErrDuplicateAccount) {
		// Random IDs; a primary key clash is as much a duplicate as the index.
		return recurring.ErrDuplicateInstance
	}
	return err
}

// =============================================================================
// ACCOUNT CRUD (recurring.AccountStore)
// =============================================================================

func (s *Store) SaveAccount(ctx context.Context, a recurring.Account) error {
	return s.insert(ctx, a)
}

func (s *Store) insert(ctx context.Context, a recurring.Account) error {
	t, err := tableFor(a.Kind)
	if err != nil {
		return err
	}
	defer s.lock()()

	cols := t.columns()
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.name, strings.Join(cols, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))

	if _, err := s.db.ExecContext(ctx, s.Rebind(query), t.args(a)...); err != nil {
		if s.d.ClassifyError != nil {
			if mapped := s.d.ClassifyError(err); mapped != nil {
				return mapped
			}
		}
		return fmt.Errorf("failed to insert %s account: %w", a.Kind, err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, kind recurring.Kind, id string) (*recurring.Account, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	defer s.rlock()()

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", t.selectList(), t.name)
	accounts, malformed, err := s.queryAccounts(ctx, kind, t, query, id)
	if err != nil {
		return nil, err
	}
	if len(malformed) > 0 {
		return nil, malformedError(t, malformed)
	}
	if len(accounts) == 0 {
		return nil, recurring.ErrAccountNotFound
	}
	return &accounts[0], nil
}

func (s *Store) ListAccounts(ctx context.Context, kind recurring.Kind, f recurring.AccountFilter) ([]recurring.Account, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	defer s.rlock()()

	var where []string
	var args []any
	if f.CompanyID != "" {
		where = append(where, "company_id = ?")
		args = append(args, f.CompanyID)
	}
	if f.Recurring != nil {
		where = append(where, "is_recurring = ?")
		args = append(args, *f.Recurring)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}

	query := fmt.Sprintf("SELECT %s FROM %s", t.selectList(), t.name)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY due_date ASC, created_at ASC"
	if f.Limit > 0 {
		query += " LIMIT " + strconv.Itoa(f.Limit)
	}
	accounts, malformed, err := s.queryAccounts(ctx, kind, t, query, args...)
	if err != nil {
		return nil, err
	}
	if len(malformed) > 0 {
		return nil, malformedError(t, malformed)
	}
	return accounts, nil
}

func malformedError(t table, rows []recurring.MalformedRow) error {
	return fmt.Errorf("failed to decode %s row %s: %w", t.name, rows[0].ID, rows[0].Err)
}

// queryAccounts returns the decoded accounts and, separately, the rows whose
// values could not be decoded.
func (s *Store) queryAccounts(ctx context.Context, kind recurring.Kind, t table, query string, args ...any) ([]recurring.Account, []recurring.MalformedRow, error) {
	rows, err := s.db.QueryContext(ctx, s.Rebind(query), args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query %s: %w", t.name, err)
	}
	defer rows.Close()

	var accounts []recurring.Account
	var malformed []recurring.MalformedRow
	for rows.Next() {
		a, decodeErr, err := scanAccount(rows, kind, t)
		if err != nil {
			return nil, nil, err
		}
		if decodeErr != nil {
			malformed = append(malformed, recurring.MalformedRow{ID: a.ID, Err: decodeErr})
			continue
		}
		accounts = append(accounts, a)
	}
	return accounts, malformed, rows.Err()
}

// scanAccount reads one row. decodeErr reports a value stored in the row
// that does not parse; err is a failure of the scan itself.
func scanAccount(rows *sql.Rows, kind recurring.Kind, t table) (a recurring.Account, decodeErr error, err error) {
	a = recurring.Account{Kind: kind}
	var amount decimalValue
	var due dateValue
	var end nullDateValue
	var created timeValue
	var payment, bank, notes, document, freq, costCenter sql.NullString
	var status string
	var interval sql.NullInt64
	dest := []any{
		&a.ID, &a.CompanyID, &a.CounterpartyID, &a.Description, &amount, &due,
		&payment, &bank, &notes, &document,
		&status, &a.IsRecurring, &freq, &interval,
		&end, &created,
	}
	if t.costCenter {
		dest = append(dest, &costCenter)
	}
	if err := rows.Scan(dest...); err != nil {
		return a, nil, fmt.Errorf("failed to scan %s row: %w", t.name, err)
	}

	switch {
	case amount.Err != nil:
		return a, amount.Err, nil
	case due.Err != nil:
		return a, fmt.Errorf("due_date: %w", due.Err), nil
	case end.Err != nil:
		return a, fmt.Errorf("recurrence_end_date: %w", end.Err), nil
	case created.Err != nil:
		return a, fmt.Errorf("created_at: %w", created.Err), nil
	}

	a.Amount = amount.Decimal
	a.DueDate = due.Date
	a.PaymentMethod = payment.String
	a.BankAccountID = bank.String
	a.Notes = notes.String
	a.DocumentNumber = document.String
	a.CostCenterID = costCenter.String
	a.Status = recurring.Status(status)
	a.Frequency = recurring.Frequency(freq.String)
	a.Interval = int(interval.Int64)
	if end.Valid {
		d := end.Date
		a.EndDate = &d
	}
	a.CreatedAt = created.Time
	return a, nil, nil
}

// =============================================================================
// RUN RECORDER (recurring.RunRecorder)
// =============================================================================

// SaveRun upserts a projection run record.
func (s *Store) SaveRun(ctx context.Context, r recurring.ProjectionRun) error {
	defer s.lock()()

	query := `
		INSERT INTO projection_runs (id, trigger_source, status, examined, created, skipped,
			not_due, failed, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			examined = excluded.examined,
			created = excluded.created,
			skipped = excluded.skipped,
			not_due = excluded.not_due,
			failed = excluded.failed,
			error = excluded.error,
			completed_at = excluded.completed_at
	`

	var completedAt *string
	if r.CompletedAt != nil {
		c := r.CompletedAt.UTC().Format(time.RFC3339)
		completedAt = &c
	}

	_, err := s.db.ExecContext(ctx, s.Rebind(query),
		r.ID, r.Trigger, r.Status,
		r.Counts.Examined, r.Counts.Created, r.Counts.Skipped, r.Counts.NotDue, r.Counts.Failed,
		nullString(r.Error), r.StartedAt.UTC().Format(time.RFC3339), completedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save projection run: %w", err)
	}
	return nil
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]recurring.ProjectionRun, error) {
	defer s.rlock()()

	query := `
		SELECT id, trigger_source, status, examined, created, skipped, not_due, failed,
			error, started_at, completed_at
		FROM projection_runs
		ORDER BY started_at DESC
	`
	if limit > 0 {
		query += " LIMIT " + strconv.Itoa(limit)
	}

	rows, err := s.db.QueryContext(ctx, s.Rebind(query))
	if err != nil {
		return nil, fmt.Errorf("failed to query projection runs: %w", err)
	}
	defer rows.Close()

	var runs []recurring.ProjectionRun
	for rows.Next() {
		var r recurring.ProjectionRun
		var errText sql.NullString
		var started timeValue
		var completed nullTimeValue
		if err := rows.Scan(
			&r.ID, &r.Trigger, &r.Status,
			&r.Counts.Examined, &r.Counts.Created, &r.Counts.Skipped, &r.Counts.NotDue, &r.Counts.Failed,
			&errText, &started, &completed,
		); err != nil {
			return nil, fmt.Errorf("failed to scan projection run: %w", err)
		}
		if started.Err != nil {
			return nil, fmt.Errorf("projection run %s started_at: %w", r.ID, started.Err)
		}
		if completed.Err != nil {
			return nil, fmt.Errorf("projection run %s completed_at: %w", r.ID, completed.Err)
		}
		r.Error = errText.String
		r.StartedAt = started.Time
		if completed.Valid {
			t := completed.Time
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

var (
	_ recurring.AccountStore = (*Store)(nil)
	_ recurring.RunRecorder  = (*Store)(nil)
)
