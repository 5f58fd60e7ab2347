/*
projector.go - Recurrence projection engine

PURPOSE:
  For every pending recurring template, decides whether its next occurrence
  falls inside the lookahead window and, if so, creates exactly one instance
  for that date.

ALGORITHM (per template, independent of every other template):
  1. next := ComputeNextDueDate(template.DueDate, frequency, interval)
  2. ShouldMaterialize(template, next, today)
       - next > today+lookahead        -> not due yet
       - end date set and next > end   -> series ended
  3. Materialize(template, next)
       - instance already exists for the DedupKey -> Skipped
       - otherwise insert                          -> Created

ONE STEP AHEAD:
  "next" is always derived from the template's stored due date, which the
  projector never changes. A template left alone for months still produces a
  single instance, never a backfill of missed periods.

FAILURES:
  Lookup and insert errors, and templates the store could not decode, are
  logged per template and counted as failed; the batch continues. Only ping
  and listing failures fail the run. Re-runs are safe because the dedup
  lookup precedes every insert and the store rejects racing duplicates.

SEE ALSO:
  - store.go: Store, RunRecorder, Publisher, RunLocker
  - api/scheduler.go: Periodic trigger
  - api/handlers.go: HTTP trigger
*/
package recurring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// LookaheadDays is the default horizon within which instances are created.
const LookaheadDays = 30

// =============================================================================
// DATE PROJECTION
// =============================================================================

// ComputeNextDueDate advances anchor by interval units of freq. Unknown
// frequencies are treated as monthly and intervals below 1 as 1.
func ComputeNextDueDate(anchor Date, freq Frequency, interval int) Date {
	if interval < 1 {
		interval = 1
	}
	switch freq {
	case FrequencyWeekly:
		return anchor.AddDays(7 * interval)
	case FrequencyYearly:
		return anchor.AddYears(interval)
	default:
		return anchor.AddMonths(interval)
	}
}

// ShouldMaterialize reports whether next is inside the default lookahead
// window and not past the template's end date.
func ShouldMaterialize(template Account, next, today Date) bool {
	return shouldMaterializeWithin(template, next, today, LookaheadDays)
}

func shouldMaterializeWithin(template Account, next, today Date, lookahead int) bool {
	if next.After(today.AddDays(lookahead)) {
		return false
	}
	if template.EndDate != nil && next.After(*template.EndDate) {
		return false
	}
	return true
}

// NewInstance builds the instance generated from template for dueDate.
func NewInstance(template Account, dueDate Date, now time.Time) Account {
	inst := Account{
		ID:             uuid.NewString(),
		Kind:           template.Kind,
		CompanyID:      template.CompanyID,
		CounterpartyID: template.CounterpartyID,
		Description:    template.Description + InstanceSuffix,
		Amount:         template.Amount,
		DueDate:        dueDate,
		PaymentMethod:  template.PaymentMethod,
		BankAccountID:  template.BankAccountID,
		Notes:          template.Notes,
		DocumentNumber: template.DocumentNumber,
		Status:         StatusPending,
		IsRecurring:    false,
		CreatedAt:      now.UTC(),
	}
	if template.Kind == KindPayable {
		inst.CostCenterID = template.CostCenterID
	}
	return inst
}

// InstanceKey is the dedup key of the instance template would generate for dueDate.
func InstanceKey(template Account, dueDate Date) DedupKey {
	return DedupKey{
		Kind:           template.Kind,
		CounterpartyID: template.CounterpartyID,
		Description:    template.Description + InstanceSuffix,
		DueDate:        dueDate,
		CompanyID:      template.CompanyID,
	}
}

// =============================================================================
// PROJECTOR
// =============================================================================

// Projector runs the scan-and-generate batch.
type Projector struct {
	Store     Store
	Publisher Publisher
	Locker    RunLocker
	Log       zerolog.Logger

	// Lookahead in days. Zero means LookaheadDays.
	Lookahead int

	// Now is the clock. Nil means time.Now.
	Now func() time.Time
}

// NewProjector creates a projector with the default lookahead and no-op
// publisher.
func NewProjector(store Store, log zerolog.Logger) *Projector {
	return &Projector{
		Store:     store,
		Publisher: NopPublisher{},
		Log:       log,
		Lookahead: LookaheadDays,
	}
}

func (p *Projector) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Projector) lookahead() int {
	if p.Lookahead > 0 {
		return p.Lookahead
	}
	return LookaheadDays
}

// Materialize creates the instance for template at next unless one already
// exists under the same dedup key.
func (p *Projector) Materialize(ctx context.Context, template Account, next Date) (Outcome, error) {
	key := InstanceKey(template, next)

	exists, err := p.Store.FindInstance(ctx, key)
	if err != nil {
		return OutcomeFailed, &TemplateError{TemplateID: template.ID, Kind: template.Kind, Op: "lookup", Err: err}
	}
	if exists {
		return OutcomeSkipped, nil
	}

	inst := NewInstance(template, next, p.now())
	if err := p.Store.InsertInstance(ctx, inst); err != nil {
		if errors.Is(err, ErrDuplicateInstance) {
			return OutcomeSkipped, nil
		}
		return OutcomeFailed, &TemplateError{TemplateID: template.ID, Kind: template.Kind, Op: "insert", Err: err}
	}

	if p.Publisher != nil {
		event := InstanceCreated{
			InstanceID:     inst.ID,
			TemplateID:     template.ID,
			Kind:           inst.Kind,
			CompanyID:      inst.CompanyID,
			CounterpartyID: inst.CounterpartyID,
			Description:    inst.Description,
			Amount:         inst.Amount,
			DueDate:        inst.DueDate,
			CreatedAt:      inst.CreatedAt,
		}
		if err := p.Publisher.Publish(ctx, event); err != nil {
			p.Log.Warn().Err(err).Str("instance_id", inst.ID).Msg("failed to publish instance event")
		}
	}
	return OutcomeCreated, nil
}

// ProjectTemplate runs the full per-template sequence and never returns an
// error; failures are logged and reported as OutcomeFailed.
func (p *Projector) ProjectTemplate(ctx context.Context, template Account, today Date) Outcome {
	log := p.Log.With().Str("kind", string(template.Kind)).Str("template_id", template.ID).Logger()

	if !template.Frequency.Valid() {
		log.Warn().Str("frequency", string(template.Frequency)).Msg("unknown recurrence frequency, projecting as monthly")
	}
	if template.DueDate.IsZero() {
		log.Error().Msg("template has no due date, skipping")
		return OutcomeFailed
	}

	next := ComputeNextDueDate(template.DueDate, template.Frequency, template.Interval)
	if !shouldMaterializeWithin(template, next, today, p.lookahead()) {
		return OutcomeNotDue
	}

	outcome, err := p.Materialize(ctx, template, next)
	if err != nil {
		log.Error().Err(err).Str("due_date", next.String()).Msg("failed to materialize recurring instance")
		return OutcomeFailed
	}
	if outcome == OutcomeCreated {
		log.Info().Str("due_date", next.String()).Msg("created recurring instance")
	} else {
		log.Debug().Str("due_date", next.String()).Msg("recurring instance already exists")
	}
	return outcome
}

// Run scans payables and receivables concurrently and materializes every
// eligible template. It returns an error only when the store cannot be
// reached or templates cannot be listed.
func (p *Projector) Run(ctx context.Context, trigger string) (RunResult, error) {
	started := p.now()
	result := RunResult{
		RunID:     uuid.NewString(),
		Timestamp: started.UTC(),
		PerKind:   make(map[Kind]Counts, len(Kinds)),
	}
	log := p.Log.With().Str("run_id", result.RunID).Str("trigger", trigger).Logger()

	if err := p.Store.Ping(ctx); err != nil {
		return result, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if p.Locker != nil {
		unlock, ok, err := p.Locker.TryLock(ctx)
		if err != nil {
			return result, fmt.Errorf("acquire run lock: %w", err)
		}
		if !ok {
			log.Info().Msg("projection already running elsewhere, skipping")
			result.Success = true
			result.Message = "skipped: run already in progress"
			return result, nil
		}
		defer unlock()
	}

	recorder, _ := p.Store.(RunRecorder)
	run := ProjectionRun{ID: result.RunID, Trigger: trigger, Status: RunRunning, StartedAt: started.UTC()}
	if recorder != nil {
		if err := recorder.SaveRun(ctx, run); err != nil {
			log.Warn().Err(err).Msg("failed to save run record")
		}
	}

	today := DateOf(started.UTC())
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, kind := range Kinds {
		g.Go(func() error {
			counts, err := p.scan(gctx, kind, today)
			if err != nil {
				return err
			}
			mu.Lock()
			result.PerKind[kind] = counts
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()

	for _, c := range result.PerKind {
		result.Counts.merge(c)
	}
	completed := p.now().UTC()
	run.Counts = result.Counts
	run.CompletedAt = &completed

	if err != nil {
		run.Status = RunFailed
		run.Error = err.Error()
		p.saveRun(ctx, recorder, run, log)
		return result, err
	}

	run.Status = RunCompleted
	p.saveRun(ctx, recorder, run, log)

	result.Success = true
	result.Message = fmt.Sprintf("Recurring accounts processed: %d examined, %d created, %d skipped, %d failed",
		result.Counts.Examined, result.Counts.Created, result.Counts.Skipped, result.Counts.Failed)
	log.Info().
		Int("examined", result.Counts.Examined).
		Int("created", result.Counts.Created).
		Int("skipped", result.Counts.Skipped).
		Int("failed", result.Counts.Failed).
		Msg("projection run completed")
	return result, nil
}

func (p *Projector) scan(ctx context.Context, kind Kind, today Date) (Counts, error) {
	var counts Counts
	templates, err := p.Store.ListTemplates(ctx, kind)
	var malformed *MalformedTemplatesError
	switch {
	case errors.As(err, &malformed):
		for _, row := range malformed.Rows {
			p.Log.Error().Err(row.Err).Str("kind", string(kind)).Str("template_id", row.ID).Msg("malformed template, skipping")
			counts.add(OutcomeFailed)
		}
	case err != nil:
		return counts, fmt.Errorf("list %s templates: %w", kind, err)
	}
	for _, t := range templates {
		if ctx.Err() != nil {
			return counts, ctx.Err()
		}
		counts.add(p.ProjectTemplate(ctx, t, today))
	}
	return counts, nil
}

func (p *Projector) saveRun(ctx context.Context, recorder RunRecorder, run ProjectionRun, log zerolog.Logger) {
	if recorder == nil {
		return
	}
	// Record the outcome even when ctx is already cancelled.
	if err := recorder.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		log.Warn().Err(err).Msg("failed to save run record")
	}
}
