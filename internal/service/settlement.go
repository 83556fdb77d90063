package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/screening-settlement/internal/domain"
	"github.com/ayo6706/screening-settlement/internal/events"
	"github.com/ayo6706/screening-settlement/internal/gateway"
	"github.com/ayo6706/screening-settlement/internal/observability"
	"github.com/ayo6706/screening-settlement/internal/runlock"
	"github.com/ayo6706/screening-settlement/internal/worker"
	"go.uber.org/zap"
)

var (
	// ErrRunInProgress is returned when the same job is already running elsewhere.
	ErrRunInProgress = errors.New("settlement run already in progress")
	ErrUnknownJob    = errors.New("unknown settlement job")
)

// RunOptions tunes a single trigger invocation.
type RunOptions struct {
	RetryErrors bool
}

// Settlement is the trigger surface of the pipeline. Every entry point is
// idempotent and may be re-invoked for any past reference date.
type Settlement struct {
	ledger     RunLedger
	locker     runlock.Locker
	lockTTL    time.Duration
	classifier *Classifier
	payouts    *PayoutExecutor
	refunds    *RefundCompensator
	reconciler *ReconciliationService
}

// NewSettlement wires the four stages around a single store.
func NewSettlement(store SettlementStore, gw gateway.Gateway, venues *domain.VenueDirectory, pool *worker.Pool, locker runlock.Locker, publisher events.Publisher, opts Options) *Settlement {
	opts = opts.withDefaults()
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if locker == nil {
		locker = runlock.NewLocalLocker()
	}
	return &Settlement{
		ledger:     store,
		locker:     locker,
		lockTTL:    opts.RunLockTTL,
		classifier: NewClassifier(store, publisher),
		payouts:    NewPayoutExecutor(store, gw, venues, pool, publisher, opts),
		refunds:    NewRefundCompensator(store, gw, pool, publisher, opts),
		reconciler: NewReconciliationService(store),
	}
}

func (s *Settlement) RunOutcomeClassification(ctx context.Context, referenceDate time.Time) (RunSummary, error) {
	return s.RunJob(ctx, domain.JobClassify, referenceDate, RunOptions{})
}

func (s *Settlement) RunPayouts(ctx context.Context, referenceDate time.Time) (RunSummary, error) {
	return s.RunJob(ctx, domain.JobPayouts, referenceDate, RunOptions{})
}

func (s *Settlement) RunRefunds(ctx context.Context, referenceDate time.Time) (RunSummary, error) {
	return s.RunJob(ctx, domain.JobRefunds, referenceDate, RunOptions{})
}

func (s *Settlement) RunReconciliation(ctx context.Context, referenceDate time.Time) (RunSummary, error) {
	return s.RunJob(ctx, domain.JobReconcile, referenceDate, RunOptions{})
}

// RunJob runs one job under its run lock and records it in the run ledger.
func (s *Settlement) RunJob(ctx context.Context, job string, referenceDate time.Time, opts RunOptions) (RunSummary, error) {
	if !domain.IsJob(job) {
		return RunSummary{}, fmt.Errorf("%w: %q", ErrUnknownJob, job)
	}
	log := zap.L().With(zap.String("job", job), zap.String("reference_date", referenceDate.Format(domain.DateLayout)))

	release, err := s.locker.Acquire(ctx, job, s.lockTTL)
	if errors.Is(err, runlock.ErrHeld) {
		observability.IncrementRunLock(job, "held")
		log.Info("settlement run already in progress")
		return RunSummary{}, ErrRunInProgress
	}
	if err != nil {
		observability.IncrementRunLock(job, "error")
		observability.IncrementRun(job, "failed")
		return RunSummary{}, fmt.Errorf("acquire run lock: %w", err)
	}
	observability.IncrementRunLock(job, "acquired")
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("failed to release run lock", zap.Error(err))
		}
	}()

	run, err := s.ledger.StartRun(ctx, job, referenceDate)
	if err != nil {
		observability.IncrementRun(job, "failed")
		return RunSummary{}, fmt.Errorf("open settlement run: %w", err)
	}
	log = log.With(zap.String("run_id", run.ID.String()))
	log.Info("settlement run started")

	start := time.Now()
	summary, runErr := s.dispatch(ctx, job, referenceDate, opts)
	summary.RunID = run.ID
	summary.Job = job
	summary.ReferenceDate = referenceDate.Format(domain.DateLayout)

	status := domain.RunStatusCompleted
	result := "success"
	if runErr != nil {
		status = domain.RunStatusFailed
		result = "failed"
		summary.Error = runErr.Error()
	}

	raw, err := json.Marshal(summary)
	if err != nil {
		log.Error("failed to encode run summary", zap.Error(err))
	}
	if err := s.ledger.FinishRun(context.WithoutCancel(ctx), run.ID, status, raw); err != nil {
		log.Error("failed to close settlement run", zap.Error(err))
	}

	observability.IncrementRun(job, result)
	observability.AddUnits(job, string(OutcomeSucceeded), summary.Succeeded)
	observability.AddUnits(job, string(OutcomeFailed), summary.Failed)
	observability.AddUnits(job, string(OutcomeSkipped), summary.Skipped)

	fields := []zap.Field{
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Duration("elapsed", time.Since(start)),
	}
	if runErr != nil {
		log.Error("settlement run failed", append(fields, zap.Error(runErr))...)
		return summary, runErr
	}
	log.Info("settlement run finished", fields...)
	return summary, nil
}

func (s *Settlement) dispatch(ctx context.Context, job string, referenceDate time.Time, opts RunOptions) (RunSummary, error) {
	switch job {
	case domain.JobClassify:
		return s.classifier.Run(ctx, referenceDate)
	case domain.JobPayouts:
		return s.payouts.Run(ctx, referenceDate)
	case domain.JobRefunds:
		return s.refunds.Run(ctx, referenceDate, RefundOptions{RetryErrors: opts.RetryErrors})
	case domain.JobReconcile:
		return s.reconciler.Run(ctx, referenceDate)
	default:
		return RunSummary{}, fmt.Errorf("%w: %q", ErrUnknownJob, job)
	}
}
