package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/recurring-engine/recurring"
	"github.com/warp/recurring-engine/store/sqlstore"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"primary key", &pq.Error{Code: "23505", Constraint: "accounts_payable_pkey"}, recurring.ErrDuplicateAccount},
		{"dedup index", &pq.Error{Code: "23505", Constraint: "idx_accounts_payable_instance_unique"}, recurring.ErrDuplicateInstance},
		{"wrapped", fmt.Errorf("exec: %w", &pq.Error{Code: "23505", Constraint: "idx_accounts_receivable_instance_unique"}), recurring.ErrDuplicateInstance},
		{"other sqlstate", &pq.Error{Code: "23502"}, nil},
		{"not a pq error", errors.New("connection refused"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyError(tt.err))
		})
	}
}

func TestRebindNumbersPlaceholders(t *testing.T) {
	s := sqlstore.New(nil, Dialect)
	got := s.Rebind("SELECT * FROM t WHERE a = ? AND b = ? LIMIT 1")
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2 LIMIT 1", got)
}

// Integration test, runs only when POSTGRES_TEST_URL points at a scratch database.
func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_URL")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_URL not set")
	}
	ctx := context.Background()
	s, err := New(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	tpl := recurring.Account{
		ID:             "pg-tpl-" + time.Now().Format("150405.000000"),
		Kind:           recurring.KindReceivable,
		CompanyID:      "acme",
		CounterpartyID: "cus-1",
		Description:    "Retainer " + time.Now().Format(time.RFC3339Nano),
		DueDate:        recurring.MustParseDate("2025-01-15"),
		Status:         recurring.StatusPending,
		IsRecurring:    true,
		Frequency:      recurring.FrequencyMonthly,
		Interval:       1,
	}
	require.NoError(t, s.SaveAccount(ctx, tpl))
	assert.ErrorIs(t, s.SaveAccount(ctx, tpl), recurring.ErrDuplicateAccount)

	next := recurring.MustParseDate("2025-02-15")
	require.NoError(t, s.InsertInstance(ctx, recurring.NewInstance(tpl, next, time.Now())))
	assert.ErrorIs(t, s.InsertInstance(ctx, recurring.NewInstance(tpl, next, time.Now())), recurring.ErrDuplicateInstance)

	exists, err := s.FindInstance(ctx, recurring.InstanceKey(tpl, next))
	require.NoError(t, err)
	assert.True(t, exists)
}
