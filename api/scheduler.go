/*
scheduler.go - Periodic projection scheduler

PURPOSE:
  Runs the recurrence projector on a fixed interval inside the server
  process, for deployments without an external cron calling
  POST /api/recurring/run.

DESIGN:
  - Runs immediately on start, then every CheckInterval
  - Each tick is a full Projector.Run; overlapping ticks cannot happen
    because runs execute on the scheduler goroutine
  - Duplicate protection across replicas comes from the dedup key (and the
    optional Redis run lock), not from the scheduler

USAGE:
  scheduler := NewProjectionScheduler(projector, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunProjection endpoint (manual trigger)
  - recurring/projector.go: Projector
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/recurring-engine/recurring"
)

// ProjectionScheduler triggers projection runs periodically.
type ProjectionScheduler struct {
	Projector     *recurring.Projector
	CheckInterval time.Duration
	Enabled       bool
	Log           zerolog.Logger

	ticker *time.Ticker
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex

	lastMu  sync.Mutex
	lastRun time.Time
}

// NewProjectionScheduler creates a new scheduler.
func NewProjectionScheduler(projector *recurring.Projector, log zerolog.Logger) *ProjectionScheduler {
	return &ProjectionScheduler{
		Projector:     projector,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Log:           log.With().Str("component", "scheduler").Logger(),
	}
}

// Start begins the scheduler.
func (ps *ProjectionScheduler) Start() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if !ps.Enabled {
		ps.Log.Info().Msg("disabled, not starting")
		return
	}
	if ps.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	ps.cancel = cancel
	ps.ticker = time.NewTicker(ps.CheckInterval)
	ps.wg.Add(1)

	go ps.run(ctx, ps.ticker)

	ps.Log.Info().Dur("interval", ps.CheckInterval).Msg("started")
}

// Stop stops the scheduler and cancels an in-flight run.
func (ps *ProjectionScheduler) Stop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.ticker == nil {
		return
	}
	ps.ticker.Stop()
	ps.cancel()
	ps.wg.Wait()
	ps.ticker = nil
	ps.Log.Info().Msg("stopped")
}

func (ps *ProjectionScheduler) run(ctx context.Context, ticker *time.Ticker) {
	defer ps.wg.Done()

	// Run immediately on start
	ps.RunNow(ctx)

	for {
		select {
		case <-ticker.C:
			ps.RunNow(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunNow triggers an immediate run on the caller's goroutine.
func (ps *ProjectionScheduler) RunNow(ctx context.Context) (recurring.RunResult, error) {
	result, err := ps.Projector.Run(ctx, recurring.TriggerScheduler)
	if err != nil {
		ps.Log.Error().Err(err).Msg("scheduled projection failed")
		return result, err
	}

	ps.lastMu.Lock()
	ps.lastRun = result.Timestamp
	ps.lastMu.Unlock()
	return result, nil
}

// LastRun returns when the last successful run started.
func (ps *ProjectionScheduler) LastRun() time.Time {
	ps.lastMu.Lock()
	defer ps.lastMu.Unlock()
	return ps.lastRun
}
