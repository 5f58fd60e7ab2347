/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON shapes of the HTTP API, kept apart from recurring.Account so storage
  fields can change without breaking clients.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

FIELD NAMES:
  snake_case, matching the column names of the accounts tables
  (recurrence_frequency, recurrence_interval, recurrence_end_date...).

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/recurring-engine/recurring"
)

// =============================================================================
// ACCOUNTS
// =============================================================================

// AccountDTO represents a payable or receivable in API responses.
type AccountDTO struct {
	ID                  string          `json:"id"`
	Kind                string          `json:"kind"`
	CompanyID           string          `json:"company_id"`
	CounterpartyID      string          `json:"counterparty_id"`
	Description         string          `json:"description"`
	Amount              decimal.Decimal `json:"amount"`
	DueDate             string          `json:"due_date"`
	PaymentMethod       string          `json:"payment_method,omitempty"`
	BankAccountID       string          `json:"bank_account_id,omitempty"`
	Notes               string          `json:"notes,omitempty"`
	DocumentNumber      string          `json:"document_number,omitempty"`
	CostCenterID        string          `json:"cost_center_id,omitempty"`
	Status              string          `json:"status"`
	IsRecurring         bool            `json:"is_recurring"`
	RecurrenceFrequency string          `json:"recurrence_frequency,omitempty"`
	RecurrenceInterval  int             `json:"recurrence_interval,omitempty"`
	RecurrenceEndDate   string          `json:"recurrence_end_date,omitempty"`
	NextDueDate         string          `json:"next_due_date,omitempty"`
	CreatedAt           string          `json:"created_at,omitempty"`
}

// CreateAccountRequest is the body of POST /api/accounts/{kind}.
// Amount is a string so clients never round-trip money through floats.
type CreateAccountRequest struct {
	ID                  string `json:"id"`
	CompanyID           string `json:"company_id"`
	CounterpartyID      string `json:"counterparty_id"`
	Description         string `json:"description"`
	Amount              string `json:"amount"`
	DueDate             string `json:"due_date"`
	PaymentMethod       string `json:"payment_method"`
	BankAccountID       string `json:"bank_account_id"`
	Notes               string `json:"notes"`
	DocumentNumber      string `json:"document_number"`
	CostCenterID        string `json:"cost_center_id"`
	Status              string `json:"status"`
	IsRecurring         bool   `json:"is_recurring"`
	RecurrenceFrequency string `json:"recurrence_frequency"`
	RecurrenceInterval  int    `json:"recurrence_interval"`
	RecurrenceEndDate   string `json:"recurrence_end_date"`
}

func toAccountDTO(a recurring.Account) AccountDTO {
	dto := AccountDTO{
		ID:             a.ID,
		Kind:           string(a.Kind),
		CompanyID:      a.CompanyID,
		CounterpartyID: a.CounterpartyID,
		Description:    a.Description,
		Amount:         a.Amount,
		DueDate:        a.DueDate.String(),
		PaymentMethod:  a.PaymentMethod,
		BankAccountID:  a.BankAccountID,
		Notes:          a.Notes,
		DocumentNumber: a.DocumentNumber,
		CostCenterID:   a.CostCenterID,
		Status:         string(a.Status),
		IsRecurring:    a.IsRecurring,
	}
	if a.IsRecurring {
		dto.RecurrenceFrequency = string(a.Frequency)
		dto.RecurrenceInterval = a.Interval
		dto.NextDueDate = recurring.ComputeNextDueDate(a.DueDate, a.Frequency, a.Interval).String()
		if a.EndDate != nil {
			dto.RecurrenceEndDate = a.EndDate.String()
		}
	}
	if !a.CreatedAt.IsZero() {
		dto.CreatedAt = a.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// PROJECTION RUNS
// =============================================================================

// RunResponse is the body of a completed POST /api/recurring/run.
type RunResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	RunID     string `json:"run_id,omitempty"`
	Created   int    `json:"created"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

// RunFailureResponse is the body of a POST /api/recurring/run that could not
// start or complete.
type RunFailureResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

// ProjectionRunDTO represents a recorded run.
type ProjectionRunDTO struct {
	ID          string           `json:"id"`
	Trigger     string           `json:"trigger"`
	Status      string           `json:"status"`
	Counts      recurring.Counts `json:"counts"`
	Error       string           `json:"error,omitempty"`
	StartedAt   string           `json:"started_at"`
	CompletedAt string           `json:"completed_at,omitempty"`
}

func toRunDTO(r recurring.ProjectionRun) ProjectionRunDTO {
	dto := ProjectionRunDTO{
		ID:        r.ID,
		Trigger:   r.Trigger,
		Status:    r.Status,
		Counts:    r.Counts,
		Error:     r.Error,
		StartedAt: r.StartedAt.Format(time.RFC3339),
	}
	if r.CompletedAt != nil {
		dto.CompletedAt = r.CompletedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// DEMO
// =============================================================================

// SeedDemoRequest is the body of POST /api/demo/seed.
type SeedDemoRequest struct {
	CompanyID string `json:"company_id"`
}

// SeedDemoResponse reports what the seed inserted.
type SeedDemoResponse struct {
	CompanyID string `json:"company_id"`
	Inserted  int    `json:"inserted"`
	Existing  int    `json:"existing"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}
