/*
demo.go - Demo data seeding

PURPOSE:
  Populates a company with realistic payables and receivables so the
  projector has something to work on in demos and local development.

WHAT GETS SEEDED:
  Templates (is_recurring = true), anchored relative to today so that some
  fall inside the lookahead window and some do not:
    - office rent, monthly
    - cloud hosting, monthly
    - cleaning service, weekly
    - liability insurance, yearly (next occurrence months away)
    - accounting retainer, every 3 months, with an end date
    - consulting retainer receivable, monthly
    - software license receivable, yearly
  One-off accounts (is_recurring = false), paid and pending.

IDEMPOTENCY:
  IDs are derived from company and slug. Re-seeding the same company
  counts already present accounts as existing and inserts nothing twice.

USAGE VIA API:
  POST /api/demo/seed
  {"company_id": "acme"}
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/warp/recurring-engine/recurring"
)

// =============================================================================
// DEMO DEFINITIONS
// =============================================================================

type demoAccount struct {
	slug         string
	kind         recurring.Kind
	counterparty string
	description  string
	amount       string
	dueOffset    int // days relative to today; templates use the previous period
	method       string
	costCenter   string
	status       recurring.Status

	frequency recurring.Frequency
	interval  int
	endAfter  int // days after due date, 0 = open ended
}

var demoAccounts = []demoAccount{
	{slug: "rent", kind: recurring.KindPayable, counterparty: "sup-landlord", description: "Office rent",
		amount: "4500.00", dueOffset: -20, method: "bank_transfer", costCenter: "cc-admin",
		frequency: recurring.FrequencyMonthly, interval: 1},
	{slug: "hosting", kind: recurring.KindPayable, counterparty: "sup-cloud", description: "Cloud hosting",
		amount: "389.90", dueOffset: -10, method: "credit_card", costCenter: "cc-it",
		frequency: recurring.FrequencyMonthly, interval: 1},
	{slug: "cleaning", kind: recurring.KindPayable, counterparty: "sup-cleaning", description: "Cleaning service",
		amount: "220.00", dueOffset: -3, method: "pix", costCenter: "cc-admin",
		frequency: recurring.FrequencyWeekly, interval: 1},
	{slug: "insurance", kind: recurring.KindPayable, counterparty: "sup-insurer", description: "Liability insurance",
		amount: "12800.00", dueOffset: -60, method: "boleto", costCenter: "cc-admin",
		frequency: recurring.FrequencyYearly, interval: 1},
	{slug: "accounting", kind: recurring.KindPayable, counterparty: "sup-accountant", description: "Accounting retainer",
		amount: "1750.00", dueOffset: -75, method: "bank_transfer", costCenter: "cc-finance",
		frequency: recurring.FrequencyMonthly, interval: 3, endAfter: 365},
	{slug: "consulting", kind: recurring.KindReceivable, counterparty: "cus-globex", description: "Consulting retainer",
		amount: "9200.00", dueOffset: -15, method: "bank_transfer",
		frequency: recurring.FrequencyMonthly, interval: 1},
	{slug: "license", kind: recurring.KindReceivable, counterparty: "cus-initech", description: "Software license",
		amount: "24000.00", dueOffset: -340, method: "boleto",
		frequency: recurring.FrequencyYearly, interval: 1},
	{slug: "supplies", kind: recurring.KindPayable, counterparty: "sup-office", description: "Office supplies",
		amount: "312.45", dueOffset: -5, method: "credit_card", costCenter: "cc-admin", status: recurring.StatusPaid},
	{slug: "project-x", kind: recurring.KindReceivable, counterparty: "cus-globex", description: "Project X milestone 1",
		amount: "15000.00", dueOffset: 12, method: "bank_transfer"},
}

// SeedDemo inserts demo accounts for a company.
// POST /api/demo/seed
func (h *Handler) SeedDemo(w http.ResponseWriter, r *http.Request) {
	var req SeedDemoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.CompanyID == "" {
		writeError(w, http.StatusBadRequest, "company_id is required", nil)
		return
	}

	resp, err := h.seedDemo(r.Context(), req.CompanyID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to seed demo data", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) seedDemo(ctx context.Context, companyID string) (SeedDemoResponse, error) {
	resp := SeedDemoResponse{CompanyID: companyID}
	now := h.now().UTC()
	today := recurring.DateOf(now)

	for _, d := range demoAccounts {
		a := recurring.Account{
			ID:             fmt.Sprintf("demo-%s-%s", companyID, d.slug),
			Kind:           d.kind,
			CompanyID:      companyID,
			CounterpartyID: d.counterparty,
			Description:    d.description,
			Amount:         decimal.RequireFromString(d.amount),
			DueDate:        today.AddDays(d.dueOffset),
			PaymentMethod:  d.method,
			CostCenterID:   d.costCenter,
			Status:         d.status,
			IsRecurring:    d.frequency != "",
			Frequency:      d.frequency,
			Interval:       d.interval,
			CreatedAt:      now,
		}
		if a.Status == "" {
			a.Status = recurring.StatusPending
		}
		if d.endAfter > 0 {
			end := a.DueDate.AddDays(d.endAfter)
			a.EndDate = &end
		}
		if err := a.Validate(); err != nil {
			return resp, fmt.Errorf("demo account %s: %w", d.slug, err)
		}

		err := h.Store.SaveAccount(ctx, a)
		switch {
		case err == nil:
			resp.Inserted++
		case errors.Is(err, recurring.ErrDuplicateAccount), errors.Is(err, recurring.ErrDuplicateInstance):
			resp.Existing++
		default:
			return resp, fmt.Errorf("save demo account %s: %w", d.slug, err)
		}
	}

	h.Log.Info().Str("company_id", companyID).Int("inserted", resp.Inserted).Int("existing", resp.Existing).Msg("demo data seeded")
	return resp, nil
}
