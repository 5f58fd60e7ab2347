/*
types.go - Core types for recurring accounts

PURPOSE:
  Defines the account record shared by templates and generated instances,
  plus the small enums and value types the projector works with.

KEY CONCEPTS:
  - Template: an Account with IsRecurring=true. Defines frequency, interval
    and an optional inclusive end date.
  - Instance: an Account with IsRecurring=false generated from a template for
    one due date.
  - DedupKey: (kind, counterparty, description, due date, company). At most one
    instance exists per key.

MONEY:
  Amounts use decimal.Decimal. Stores keep two decimal places.

SEE ALSO:
  - projector.go: Next-date computation and materialization
  - store.go: Persistence interfaces
*/
package recurring

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENUMS
// =============================================================================

// Kind is the counterparty side of an account.
type Kind string

const (
	KindPayable    Kind = "payable"    // owed to a supplier
	KindReceivable Kind = "receivable" // owed by a customer
)

// Kinds lists every kind the projector scans.
var Kinds = []Kind{KindPayable, KindReceivable}

// ParseKind accepts both the singular and the plural URL forms.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "payable", "payables":
		return KindPayable, nil
	case "receivable", "receivables":
		return KindReceivable, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

type Frequency string

const (
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusOverdue, StatusCancelled:
		return true
	}
	return false
}

// InstanceSuffix is appended to a template description on generated instances.
const InstanceSuffix = " (Recorrente)"

// =============================================================================
// ACCOUNT
// =============================================================================

// Account is a payable or receivable record. Templates and instances share
// the type; IsRecurring tells them apart.
type Account struct {
	ID             string
	Kind           Kind
	CompanyID      string
	CounterpartyID string
	Description    string
	Amount         decimal.Decimal
	DueDate        Date

	PaymentMethod  string
	BankAccountID  string
	Notes          string
	DocumentNumber string
	CostCenterID   string // payables only

	Status      Status
	IsRecurring bool

	// Recurrence, meaningful on templates only.
	Frequency Frequency
	Interval  int
	EndDate   *Date

	CreatedAt time.Time
}

// DedupKey identifies a generated instance.
type DedupKey struct {
	Kind           Kind
	CounterpartyID string
	Description    string
	DueDate        Date
	CompanyID      string
}

func (k DedupKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", k.Kind, k.CompanyID, k.CounterpartyID, k.DueDate, k.Description)
}

// Key returns the dedup key of the account as stored.
func (a Account) Key() DedupKey {
	return DedupKey{
		Kind:           a.Kind,
		CounterpartyID: a.CounterpartyID,
		Description:    a.Description,
		DueDate:        a.DueDate,
		CompanyID:      a.CompanyID,
	}
}

// Validate checks the fields a user supplies when creating an account.
// Unknown frequencies are rejected here even though the projector tolerates
// them on records already stored.
func (a Account) Validate() error {
	if a.Kind != KindPayable && a.Kind != KindReceivable {
		return &ValidationError{Field: "kind", Message: fmt.Sprintf("unknown kind %q", a.Kind)}
	}
	if a.CompanyID == "" {
		return &ValidationError{Field: "company_id", Message: "required"}
	}
	if a.CounterpartyID == "" {
		return &ValidationError{Field: "counterparty_id", Message: "required"}
	}
	if a.Description == "" {
		return &ValidationError{Field: "description", Message: "required"}
	}
	if a.DueDate.IsZero() {
		return &ValidationError{Field: "due_date", Message: "required"}
	}
	if !a.Status.Valid() {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", a.Status)}
	}
	if !a.IsRecurring {
		return nil
	}
	if !a.Frequency.Valid() {
		return &ValidationError{Field: "recurrence_frequency", Message: fmt.Sprintf("unknown frequency %q", a.Frequency), Err: ErrInvalidFrequency}
	}
	if a.Interval < 1 {
		return &ValidationError{Field: "recurrence_interval", Message: "must be at least 1", Err: ErrInvalidInterval}
	}
	if a.EndDate != nil && a.EndDate.Before(a.DueDate) {
		return &ValidationError{Field: "recurrence_end_date", Message: "before due_date"}
	}
	return nil
}

// =============================================================================
// PROJECTION RESULTS
// =============================================================================

// Outcome of materializing one template.
type Outcome int

const (
	OutcomeNotDue Outcome = iota
	OutcomeCreated
	OutcomeSkipped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "not_due"
	}
}

// Counts tallies template outcomes for one scan.
type Counts struct {
	Examined int `json:"examined"`
	Created  int `json:"created"`
	Skipped  int `json:"skipped"`
	NotDue   int `json:"not_due"`
	Failed   int `json:"failed"`
}

func (c *Counts) add(o Outcome) {
	c.Examined++
	switch o {
	case OutcomeCreated:
		c.Created++
	case OutcomeSkipped:
		c.Skipped++
	case OutcomeFailed:
		c.Failed++
	default:
		c.NotDue++
	}
}

func (c *Counts) merge(other Counts) {
	c.Examined += other.Examined
	c.Created += other.Created
	c.Skipped += other.Skipped
	c.NotDue += other.NotDue
	c.Failed += other.Failed
}

// RunResult is the aggregate outcome of one projection run.
type RunResult struct {
	RunID     string
	Success   bool
	Message   string
	Timestamp time.Time
	Counts    Counts
	PerKind   map[Kind]Counts
}

// Run trigger names.
const (
	TriggerHTTP      = "http"
	TriggerScheduler = "scheduler"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// ProjectionRun is the persisted audit record of a run.
type ProjectionRun struct {
	ID          string
	Trigger     string
	Status      string
	Counts      Counts
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// InstanceCreated is published after an instance is inserted.
type InstanceCreated struct {
	InstanceID     string          `json:"instance_id"`
	TemplateID     string          `json:"template_id"`
	Kind           Kind            `json:"kind"`
	CompanyID      string          `json:"company_id"`
	CounterpartyID string          `json:"counterparty_id"`
	Description    string          `json:"description"`
	Amount         decimal.Decimal `json:"amount"`
	DueDate        Date            `json:"due_date"`
	CreatedAt      time.Time       `json:"created_at"`
}
