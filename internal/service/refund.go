package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/screening-settlement/internal/domain"
	"github.com/ayo6706/screening-settlement/internal/events"
	"github.com/ayo6706/screening-settlement/internal/gateway"
	"github.com/ayo6706/screening-settlement/internal/models"
	"github.com/ayo6706/screening-settlement/internal/observability"
	"github.com/ayo6706/screening-settlement/internal/repository"
	"github.com/ayo6706/screening-settlement/internal/worker"
	"go.uber.org/zap"
)

// RefundOptions tunes a refund run.
type RefundOptions struct {
	// RetryErrors also reprocesses ERROR contributions whose failure was a
	// gateway or transport error.
	RetryErrors bool
}

// RefundCompensator returns every contribution of a FAILED campaign. Each
// contribution is its own unit and succeeds or fails independently.
type RefundCompensator struct {
	store          RefundStore
	scanner        *Scanner
	pool           *worker.Pool
	harness        *harness
	recoveryWindow time.Duration
	now            func() time.Time
}

func NewRefundCompensator(store RefundStore, gw gateway.Gateway, pool *worker.Pool, publisher events.Publisher, opts Options) *RefundCompensator {
	opts = opts.withDefaults()
	return &RefundCompensator{
		store:   store,
		scanner: NewScanner(store),
		pool:    pool,
		harness: &harness{
			gateway:     gw,
			successCode: opts.SuccessCode,
			timeout:     opts.GatewayTimeout,
			currency:    opts.Currency,
			publisher:   publisher,
		},
		recoveryWindow: opts.ClaimRecoveryWindow,
		now:            time.Now,
	}
}

// Run refunds the contributions of every FAILED campaign whose deadline is referenceDate.
func (r *RefundCompensator) Run(ctx context.Context, referenceDate time.Time, opts RefundOptions) (RunSummary, error) {
	abandoned, err := r.store.AbandonStaleRefunds(ctx, r.now().Add(-r.recoveryWindow))
	if err != nil {
		return RunSummary{}, fmt.Errorf("recover stale refund claims: %w", err)
	}
	if abandoned > 0 {
		zap.L().Warn("closed abandoned refund claims", zap.Int("count", abandoned))
	}

	campaigns, err := r.scanner.WithStatus(ctx, domain.CampaignStatusFailed, referenceDate)
	if err != nil {
		return RunSummary{}, err
	}

	states := []string{domain.ContributionStateSuccess}
	if opts.RetryErrors {
		states = append(states, domain.ContributionStateError)
	}

	var (
		units   []models.RefundCandidate
		results []UnitResult
	)
	for _, campaign := range campaigns {
		candidates, err := r.store.ListRefundCandidates(ctx, campaign.ID, states)
		if err != nil {
			zap.L().Error("failed to load refund candidates", zap.String("campaign_id", campaign.ID.String()), zap.Error(err))
			results = append(results, failed(campaign.ID, err))
			continue
		}
		for _, c := range candidates {
			if c.State == domain.ContributionStateError && !domain.Retryable(deref(c.FailureReason)) {
				continue
			}
			units = append(units, c)
		}
	}

	results = append(results, worker.FanOut(ctx, r.pool, units, r.refund, func(c models.RefundCandidate, err error) UnitResult {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return skipped(c.ID, skipCanceled)
		}
		return failed(c.ID, err)
	})...)

	summary := summarize(domain.JobRefunds, referenceDate, results)
	summary.Recovered = abandoned
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("refund run interrupted: %w", err)
	}
	return summary, nil
}

// refund is one unit of work for a single contribution.
func (r *RefundCompensator) refund(ctx context.Context, c models.RefundCandidate) UnitResult {
	log := zap.L().With(
		zap.String("contribution_id", c.ID.String()),
		zap.String("campaign_id", c.CampaignID.String()),
	)
	persistCtx := context.WithoutCancel(ctx)

	if err := refundPreconditions(c); err != nil {
		reason := domain.FailureReason(err)
		applied, finishErr := r.store.FinishRefund(persistCtx, repository.RefundCompletion{
			ContributionID: c.ID,
			FromState:      c.State,
			State:          domain.ContributionStateError,
			FailureReason:  reason,
		})
		if finishErr != nil {
			log.Error("failed to record refund precondition failure", zap.Error(finishErr))
			return failed(c.ID, finishErr)
		}
		if !applied {
			return skipped(c.ID, skipClaimHeld)
		}
		log.Warn("refund precondition failed", zap.String("reason", reason))
		r.publishRecorded(ctx, c, domain.ContributionStateError, "", reason)
		return failed(c.ID, err)
	}

	claimed, err := r.store.ClaimRefund(persistCtx, c.ID, c.State)
	if err != nil {
		log.Error("failed to claim contribution", zap.Error(err))
		return failed(c.ID, err)
	}
	if !claimed {
		return skipped(c.ID, skipClaimHeld)
	}

	ref, transferErr := r.harness.transfer(ctx, gateway.TransferRequest{
		SourceAccount:      *c.HoldingAccount,
		DestinationAccount: strings.TrimSpace(*c.BankAccount),
		DestinationBank:    deref(c.BankCode),
		Amount:             c.Amount,
		CorrelationID:      domain.CorrelationID("refund", c.ID),
	})

	completion := repository.RefundCompletion{
		ContributionID: c.ID,
		FromState:      domain.ContributionStateRefunding,
	}
	if transferErr == nil {
		completion.State = domain.ContributionStateRefunded
		completion.RefundRef = ref
	} else {
		completion.State = domain.ContributionStateError
		completion.FailureReason = domain.FailureReason(transferErr)
	}

	applied, err := r.store.FinishRefund(persistCtx, completion)
	if err != nil || !applied {
		if err == nil {
			err = fmt.Errorf("contribution %s left %s before its refund was recorded", c.ID, domain.ContributionStateRefunding)
		}
		log.Error("refund outcome could not be recorded",
			zap.String("state", completion.State),
			zap.String("refund_ref", ref),
			zap.Error(err),
		)
		if transferErr == nil {
			r.flagUnrecorded(persistCtx, log, c, ref)
			return UnitResult{ID: c.ID, Outcome: OutcomeFailed, Reason: CheckRefundUnrecorded, Err: err}
		}
		return failed(c.ID, err)
	}
	r.publishRecorded(ctx, c, completion.State, ref, completion.FailureReason)

	if transferErr != nil {
		log.Warn("refund transfer failed", zap.String("reason", completion.FailureReason), zap.Error(transferErr))
		return failed(c.ID, transferErr)
	}
	log.Info("contribution refunded", zap.Int64("amount", c.Amount), zap.String("refund_ref", ref))
	return succeeded(c.ID)
}

// flagUnrecorded surfaces a transfer the gateway accepted but the ledger does
// not show as REFUNDED.
func (r *RefundCompensator) flagUnrecorded(ctx context.Context, log *zap.Logger, c models.RefundCandidate, ref string) {
	observability.IncrementInvariantViolation(CheckRefundUnrecorded)
	log.Error("CRITICAL: refund transferred but not recorded", zap.String("refund_ref", ref))
	if err := r.store.RecordUnrecordedRefund(ctx, c.ID, ref); err != nil {
		log.Error("failed to audit unrecorded refund", zap.Error(err))
	}
}

func refundPreconditions(c models.RefundCandidate) error {
	if c.BankAccount == nil || strings.TrimSpace(*c.BankAccount) == "" {
		return domain.NewPrecondition(domain.ReasonAccountMissing, "participant "+c.ParticipantID.String())
	}
	if c.HoldingAccount == nil || strings.TrimSpace(*c.HoldingAccount) == "" {
		return domain.NewPrecondition(domain.ReasonHoldingAccountMissing, "")
	}
	if c.Amount <= 0 {
		return domain.NewPrecondition(domain.ReasonAmountMissing, "")
	}
	return nil
}

func (r *RefundCompensator) publishRecorded(ctx context.Context, c models.RefundCandidate, state, ref, reason string) {
	r.harness.publish(ctx, events.TypeRefundRecorded, c.CampaignID.String(), map[string]any{
		"contribution_id": c.ID,
		"campaign_id":     c.CampaignID,
		"participant_id":  c.ParticipantID,
		"amount":          c.Amount,
		"state":           state,
		"refund_ref":      ref,
		"failure_reason":  reason,
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
