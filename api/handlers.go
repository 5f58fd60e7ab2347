/*
handlers.go - HTTP API handlers for recurring accounts

ENDPOINTS:
  Projection:
    POST   /api/recurring/run          Run the recurrence projector now
    GET    /api/recurring/runs         Recorded projection runs

  Accounts:
    GET    /api/accounts/{kind}        List payables or receivables
    POST   /api/accounts/{kind}        Create a template or single account
    GET    /api/accounts/{kind}/{id}   Get one account

  Demo:
    POST   /api/demo/seed              Seed demo data for a company

RUN CONTRACT:
  200 {success: true, message, timestamp, ...} whenever the run completes,
  even if individual templates were skipped or failed.
  500 {success: false, error, timestamp} only when the run could not start
  or complete (store unreachable, templates could not be listed).

ERROR HANDLING:
  - 400: Validation errors, invalid input
  - 404: Account not found
  - 409: Duplicate account or instance
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/recurring-engine/logging"
	"github.com/warp/recurring-engine/recurring"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     recurring.AccountStore
	Projector *recurring.Projector
	Log       zerolog.Logger

	// Now is the clock used for demo data. Nil means time.Now.
	Now func() time.Time
}

// NewHandler creates a new handler.
func NewHandler(store recurring.AccountStore, projector *recurring.Projector, log zerolog.Logger) *Handler {
	return &Handler{
		Store:     store,
		Projector: projector,
		Log:       log,
	}
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// =============================================================================
// PROJECTION HANDLERS
// =============================================================================

// RunProjection runs the projector synchronously. No body is required.
// POST /api/recurring/run
func (h *Handler) RunProjection(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	result, err := h.Projector.Run(r.Context(), recurring.TriggerHTTP)
	if err != nil {
		log.Error().Err(err).Str("run_id", result.RunID).Msg("projection run failed")
		writeJSON(w, http.StatusInternalServerError, RunFailureResponse{
			Success:   false,
			Error:     err.Error(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	writeJSON(w, http.StatusOK, RunResponse{
		Success:   true,
		Message:   result.Message,
		Timestamp: result.Timestamp.Format(time.RFC3339),
		RunID:     result.RunID,
		Created:   result.Counts.Created,
		Skipped:   result.Counts.Skipped,
		Failed:    result.Counts.Failed,
	})
}

// ListRuns returns recorded projection runs, newest first.
// GET /api/recurring/runs?limit=20
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	recorder, ok := h.Store.(recurring.RunRecorder)
	if !ok {
		writeJSON(w, http.StatusOK, []ProjectionRunDTO{})
		return
	}

	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	runs, err := recorder.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	dtos := make([]ProjectionRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns accounts of one kind.
// GET /api/accounts/{kind}?company_id=...&recurring=true&status=pending&limit=100
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	kind, err := recurring.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid account kind", err)
		return
	}

	q := r.URL.Query()
	filter := recurring.AccountFilter{
		CompanyID: q.Get("company_id"),
		Status:    recurring.Status(q.Get("status")),
	}
	if v := q.Get("recurring"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid recurring flag", err)
			return
		}
		filter.Recurring = &b
	}
	if filter.Limit, err = queryInt(r, "limit", 0); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	accounts, err := h.Store.ListAccounts(r.Context(), kind, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list accounts", err)
		return
	}

	dtos := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = toAccountDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAccount returns a single account.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	kind, err := recurring.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid account kind", err)
		return
	}

	account, err := h.Store.GetAccount(r.Context(), kind, chi.URLParam(r, "id"))
	if err != nil {
		if recurring.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Account not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get account", err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountDTO(*account))
}

// CreateAccount creates a template (is_recurring=true) or a single account.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	kind, err := recurring.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid account kind", err)
		return
	}

	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	account, err := accountFromRequest(kind, req)
	if err != nil {
		if recurring.IsClientError(err) {
			writeError(w, http.StatusBadRequest, "Invalid account", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create account", err)
		return
	}
	account.CreatedAt = h.now().UTC()

	if err := h.Store.SaveAccount(r.Context(), account); err != nil {
		switch {
		case errors.Is(err, recurring.ErrDuplicateAccount), errors.Is(err, recurring.ErrDuplicateInstance):
			writeError(w, http.StatusConflict, "Account already exists", err)
		case recurring.IsClientError(err):
			writeError(w, http.StatusBadRequest, "Invalid account", err)
		default:
			writeError(w, http.StatusInternalServerError, "Failed to create account", err)
		}
		return
	}

	log := logging.FromContext(r.Context())
	log.Info().
		Str("kind", string(kind)).
		Str("account_id", account.ID).
		Bool("is_recurring", account.IsRecurring).
		Msg("account created")

	writeJSON(w, http.StatusCreated, toAccountDTO(account))
}

func accountFromRequest(kind recurring.Kind, req CreateAccountRequest) (recurring.Account, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		return recurring.Account{}, &recurring.ValidationError{Field: "amount", Message: "must be a decimal number", Err: err}
	}
	due, err := recurring.ParseDate(req.DueDate)
	if err != nil {
		return recurring.Account{}, &recurring.ValidationError{Field: "due_date", Message: "use YYYY-MM-DD", Err: err}
	}

	a := recurring.Account{
		ID:             req.ID,
		Kind:           kind,
		CompanyID:      req.CompanyID,
		CounterpartyID: req.CounterpartyID,
		Description:    strings.TrimSpace(req.Description),
		Amount:         amount,
		DueDate:        due,
		PaymentMethod:  req.PaymentMethod,
		BankAccountID:  req.BankAccountID,
		Notes:          req.Notes,
		DocumentNumber: req.DocumentNumber,
		Status:         recurring.Status(req.Status),
		IsRecurring:    req.IsRecurring,
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = recurring.StatusPending
	}
	if kind == recurring.KindPayable {
		a.CostCenterID = req.CostCenterID
	}
	if req.IsRecurring {
		a.Frequency = recurring.Frequency(req.RecurrenceFrequency)
		a.Interval = req.RecurrenceInterval
		if a.Interval == 0 {
			a.Interval = 1
		}
		if req.RecurrenceEndDate != "" {
			end, err := recurring.ParseDate(req.RecurrenceEndDate)
			if err != nil {
				return recurring.Account{}, &recurring.ValidationError{Field: "recurrence_end_date", Message: "use YYYY-MM-DD", Err: err}
			}
			a.EndDate = &end
		}
	}
	return a, a.Validate()
}

// =============================================================================
// HELPERS
// =============================================================================

// Health pings the store.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
