package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/recurring-engine/recurring"
	"github.com/warp/recurring-engine/recurring/store"
)

func newTestScheduler(mem *store.Memory) *ProjectionScheduler {
	projector := recurring.NewProjector(mem, zerolog.Nop())
	projector.Now = func() time.Time { return testNow }
	return NewProjectionScheduler(projector, zerolog.Nop())
}

func TestScheduler_RunNow(t *testing.T) {
	mem := store.NewMemory()
	ps := newTestScheduler(mem)
	assert.True(t, ps.LastRun().IsZero())

	result, err := ps.RunNow(context.Background())

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, testNow, ps.LastRun())

	runs, err := mem.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, recurring.TriggerScheduler, runs[0].Trigger)
}

func TestScheduler_RunNowFailureKeepsLastRun(t *testing.T) {
	mem := store.NewMemory()
	mem.PingErr = errors.New("down")
	ps := newTestScheduler(mem)

	_, err := ps.RunNow(context.Background())

	assert.ErrorIs(t, err, recurring.ErrStoreUnavailable)
	assert.True(t, ps.LastRun().IsZero())
}

func TestScheduler_StartRunsImmediately(t *testing.T) {
	mem := store.NewMemory()
	ps := newTestScheduler(mem)
	ps.CheckInterval = time.Hour

	ps.Start()
	defer ps.Stop()

	assert.Eventually(t, func() bool { return !ps.LastRun().IsZero() }, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_Disabled(t *testing.T) {
	mem := store.NewMemory()
	ps := newTestScheduler(mem)
	ps.Enabled = false

	ps.Start()
	ps.Stop() // no-op

	runs, err := mem.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	ps := newTestScheduler(store.NewMemory())
	ps.Start()
	ps.Stop()
	ps.Stop()
}
