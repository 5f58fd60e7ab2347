package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/recurring-engine/recurring"
)

func account(id string, recurringFlag bool, due string) recurring.Account {
	return recurring.Account{
		ID:             id,
		Kind:           recurring.KindPayable,
		CompanyID:      "acme",
		CounterpartyID: "sup-1",
		Description:    "Hosting",
		DueDate:        recurring.MustParseDate(due),
		Status:         recurring.StatusPending,
		IsRecurring:    recurringFlag,
		Frequency:      recurring.FrequencyMonthly,
		Interval:       1,
	}
}

func TestMemory_InstanceUniqueness(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	a := account("i-1", false, "2025-02-15")
	require.NoError(t, m.InsertInstance(ctx, a))

	b := account("i-2", false, "2025-02-15")
	assert.ErrorIs(t, m.InsertInstance(ctx, b), recurring.ErrDuplicateInstance)

	found, err := m.FindInstance(ctx, a.Key())
	require.NoError(t, err)
	assert.True(t, found)
}

func TestMemory_TemplatesAreNotInstances(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	tpl := account("t-1", true, "2025-02-15")
	require.NoError(t, m.SaveAccount(ctx, tpl))

	found, err := m.FindInstance(ctx, tpl.Key())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, m.Instances())

	templates, err := m.ListTemplates(ctx, recurring.KindPayable)
	require.NoError(t, err)
	assert.Len(t, templates, 1)
}

func TestMemory_ListAccountsOrderAndLimit(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.SaveAccount(ctx, account("late", true, "2025-03-01")))
	require.NoError(t, m.SaveAccount(ctx, account("early", true, "2025-01-01")))

	got, err := m.ListAccounts(ctx, recurring.KindPayable, recurring.AccountFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "early", got[0].ID)
}

func TestMemory_RunsNewestFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, m.SaveRun(ctx, recurring.ProjectionRun{ID: "old", StartedAt: base}))
	require.NoError(t, m.SaveRun(ctx, recurring.ProjectionRun{ID: "new", StartedAt: base.Add(time.Hour)}))

	runs, err := m.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
}

func TestLock(t *testing.T) {
	var l Lock
	unlock, ok, err := l.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = l.TryLock(context.Background())
	assert.False(t, ok)

	unlock()
	_, ok, _ = l.TryLock(context.Background())
	assert.True(t, ok)
}
