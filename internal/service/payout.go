package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/screening-settlement/internal/domain"
	"github.com/ayo6706/screening-settlement/internal/events"
	"github.com/ayo6706/screening-settlement/internal/gateway"
	"github.com/ayo6706/screening-settlement/internal/models"
	"github.com/ayo6706/screening-settlement/internal/repository"
	"github.com/ayo6706/screening-settlement/internal/worker"
	"go.uber.org/zap"
)

const defaultClaimRecoveryWindow = 30 * time.Minute

// PayoutExecutor pays the pooled balance of each SUCCEEDED campaign to its venue,
// at most once per campaign.
type PayoutExecutor struct {
	store          PayoutStore
	scanner        *Scanner
	venues         *domain.VenueDirectory
	pool           *worker.Pool
	harness        *harness
	recoveryWindow time.Duration
	retryLookback  int
	now            func() time.Time
}

func NewPayoutExecutor(store PayoutStore, gw gateway.Gateway, venues *domain.VenueDirectory, pool *worker.Pool, publisher events.Publisher, opts Options) *PayoutExecutor {
	opts = opts.withDefaults()
	return &PayoutExecutor{
		store:   store,
		scanner: NewScanner(store),
		venues:  venues,
		pool:    pool,
		harness: &harness{
			gateway:     gw,
			successCode: opts.SuccessCode,
			timeout:     opts.GatewayTimeout,
			currency:    opts.Currency,
			publisher:   publisher,
		},
		recoveryWindow: opts.ClaimRecoveryWindow,
		retryLookback:  opts.PayoutRetryLookbackDays,
		now:            time.Now,
	}
}

// Run settles every SUCCEEDED campaign whose deadline is referenceDate, plus
// earlier campaigns inside the retry lookback whose last payout failed
// retryably. Re-running it never pays a campaign twice.
func (e *PayoutExecutor) Run(ctx context.Context, referenceDate time.Time) (RunSummary, error) {
	abandoned, err := e.store.AbandonStalePayouts(ctx, e.now().Add(-e.recoveryWindow))
	if err != nil {
		return RunSummary{}, fmt.Errorf("recover stale payout claims: %w", err)
	}
	if abandoned > 0 {
		zap.L().Warn("closed abandoned payout claims", zap.Int("count", abandoned))
	}

	campaigns, err := e.scanner.WithStatus(ctx, domain.CampaignStatusSucceeded, referenceDate)
	if err != nil {
		return RunSummary{}, err
	}
	retries, err := e.retries(ctx, referenceDate)
	if err != nil {
		return RunSummary{}, err
	}
	campaigns = append(campaigns, retries...)

	results := worker.FanOut(ctx, e.pool, campaigns, e.settle, func(c models.Campaign, err error) UnitResult {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return skipped(c.ID, skipCanceled)
		}
		return failed(c.ID, err)
	})

	summary := summarize(domain.JobPayouts, referenceDate, results)
	summary.Recovered = abandoned
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("payout run interrupted: %w", err)
	}
	return summary, nil
}

func (e *PayoutExecutor) retries(ctx context.Context, referenceDate time.Time) ([]models.Campaign, error) {
	if e.retryLookback <= 0 {
		return nil, nil
	}
	from := referenceDate.AddDate(0, 0, -e.retryLookback)
	candidates, err := e.store.ListPayoutRetries(ctx, from, referenceDate)
	if err != nil {
		return nil, fmt.Errorf("scan payout retries since %s: %w", from.Format(domain.DateLayout), err)
	}
	var out []models.Campaign
	for _, c := range candidates {
		if !domain.Retryable(c.LastFailureReason) {
			continue
		}
		out = append(out, c.Campaign)
	}
	if len(out) > 0 {
		zap.L().Info("retrying failed payouts from earlier dates",
			zap.Int("count", len(out)),
			zap.String("since", from.Format(domain.DateLayout)),
		)
	}
	return out, nil
}

// settle is one unit of work: guard, preconditions, claim, transfer, record.
func (e *PayoutExecutor) settle(ctx context.Context, campaign models.Campaign) UnitResult {
	log := zap.L().With(zap.String("campaign_id", campaign.ID.String()))
	persistCtx := context.WithoutCancel(ctx)

	paid, err := e.store.HasSuccessfulPayout(ctx, campaign.ID)
	if err != nil {
		log.Error("idempotency check failed", zap.Error(err))
		return failed(campaign.ID, err)
	}
	if paid {
		return skipped(campaign.ID, skipAlreadySettled)
	}

	claim := repository.PayoutClaim{
		CampaignID:    campaign.ID,
		VenueID:       campaign.VenueID,
		CorrelationID: domain.CorrelationID("payout", campaign.ID),
	}
	if campaign.PooledAmount != nil {
		claim.RequestedAmount = *campaign.PooledAmount
	}

	destination, err := e.preconditions(ctx, campaign)
	if err != nil {
		var pre *domain.PreconditionError
		if !errors.As(err, &pre) {
			log.Error("failed to evaluate payout preconditions", zap.Error(err))
			return failed(campaign.ID, err)
		}
		reason := domain.FailureReason(err)
		log.Warn("payout precondition failed", zap.String("reason", reason), zap.Error(err))
		record, recErr := e.store.RecordPayoutFailure(persistCtx, claim, reason)
		if recErr != nil {
			log.Error("failed to record payout precondition failure", zap.Error(recErr))
			return failed(campaign.ID, recErr)
		}
		e.publishRecorded(ctx, record)
		return failed(campaign.ID, err)
	}

	record, claimed, err := e.store.ClaimPayout(persistCtx, claim)
	if err != nil {
		log.Error("failed to claim payout", zap.Error(err))
		return failed(campaign.ID, err)
	}
	if !claimed {
		log.Info("payout claimed by another run; skipped")
		return skipped(campaign.ID, skipClaimHeld)
	}

	ref, transferErr := e.harness.transfer(ctx, gateway.TransferRequest{
		SourceAccount:      *campaign.HoldingAccount,
		DestinationAccount: destination,
		Amount:             claim.RequestedAmount,
		CorrelationID:      claim.CorrelationID,
	})

	completion := repository.PayoutCompletion{
		PayoutID:   record.ID,
		CampaignID: campaign.ID,
	}
	if transferErr == nil {
		completion.State = domain.PayoutStateSuccess
		completion.Amount = claim.RequestedAmount
		completion.TransactionRef = ref
	} else {
		completion.State = domain.PayoutStateError
		completion.FailureReason = domain.FailureReason(transferErr)
	}

	if err := e.store.CompletePayout(persistCtx, completion); err != nil {
		log.Error("payout outcome could not be recorded; claim left pending",
			zap.String("state", completion.State),
			zap.String("transaction_ref", ref),
			zap.Error(err),
		)
		return failed(campaign.ID, err)
	}

	record.State = completion.State
	record.Amount = completion.Amount
	if ref != "" {
		record.TransactionRef = &ref
	}
	if completion.FailureReason != "" {
		record.FailureReason = &completion.FailureReason
	}
	e.publishRecorded(ctx, record)

	if transferErr != nil {
		log.Warn("payout transfer failed", zap.String("reason", completion.FailureReason), zap.Error(transferErr))
		return failed(campaign.ID, transferErr)
	}
	log.Info("payout transferred",
		zap.Stringer("amount", domain.NewMoney(completion.Amount, e.harness.currency)),
		zap.String("transaction_ref", ref),
	)
	return succeeded(campaign.ID)
}

// preconditions validates everything locally and returns the venue payout account.
func (e *PayoutExecutor) preconditions(ctx context.Context, campaign models.Campaign) (string, error) {
	if campaign.HoldingAccount == nil || *campaign.HoldingAccount == "" {
		return "", domain.NewPrecondition(domain.ReasonHoldingAccountMissing, "")
	}
	if campaign.ScreeningPrice == nil || *campaign.ScreeningPrice <= 0 {
		return "", domain.NewPrecondition(domain.ReasonPriceMissing, "")
	}
	if campaign.PooledAmount == nil || *campaign.PooledAmount <= 0 {
		return "", domain.NewPrecondition(domain.ReasonAmountMissing, "")
	}

	venue, err := e.store.GetVenue(ctx, campaign.VenueID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", domain.NewPrecondition(domain.ReasonVenueUnresolved, "venue "+campaign.VenueID.String()+" not found")
	}
	if err != nil {
		return "", err
	}

	account, route, err := e.venues.Resolve(venue.ChainID, venue.DisplayName)
	if err != nil {
		return "", err
	}
	if route != domain.VenueRouteChainID {
		zap.L().Warn("venue routed without chain id",
			zap.String("campaign_id", campaign.ID.String()),
			zap.String("venue", venue.DisplayName),
			zap.String("route", route),
		)
	}
	return account, nil
}

func (e *PayoutExecutor) publishRecorded(ctx context.Context, record models.PayoutRecord) {
	e.harness.publish(ctx, events.TypePayoutRecorded, record.CampaignID.String(), record)
}
