package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ayo6706/screening-settlement/internal/domain"
	"github.com/ayo6706/screening-settlement/internal/observability"
	"go.uber.org/zap"
)

// Invariant checks reported by reconciliation.
const (
	CheckDuplicatePayout  = "duplicate_payout"
	CheckPayoutMismatch   = "payout_mismatch"
	CheckPayoutMissing    = "payout_missing"
	CheckPooledDrift      = "pooled_drift"
	CheckRefundOpen       = "refund_open"
	CheckRefundUnrecorded = "refund_unrecorded"
)

// ReconciliationService verifies settlement invariants for a reference date.
type ReconciliationService struct {
	store ReconciliationStore
}

// NewReconciliationService creates a reconciliation service.
func NewReconciliationService(store ReconciliationStore) *ReconciliationService {
	return &ReconciliationService{store: store}
}

// Run checks that each succeeded campaign was paid its pooled amount exactly once
// and that each failed campaign has no contribution left unrefunded. It is
// meant to run after the payout and refund stages for the same date.
func (s *ReconciliationService) Run(ctx context.Context, referenceDate time.Time) (RunSummary, error) {
	balances, err := s.store.PayoutBalances(ctx, referenceDate)
	if err != nil {
		return RunSummary{}, fmt.Errorf("load payout balances: %w", err)
	}
	open, err := s.store.OpenRefunds(ctx, referenceDate)
	if err != nil {
		return RunSummary{}, fmt.Errorf("load open refunds: %w", err)
	}

	results := make([]UnitResult, 0, len(balances)+len(open))
	for _, b := range balances {
		log := zap.L().With(zap.String("campaign_id", b.CampaignID.String()))
		pooled := int64(-1)
		if b.PooledAmount != nil {
			pooled = *b.PooledAmount
		}

		var check string
		switch {
		case b.SuccessCount > 1:
			check = CheckDuplicatePayout
		case b.SuccessCount == 1 && b.PaidAmount != pooled:
			check = CheckPayoutMismatch
		case pooled >= 0 && b.ContributedAmount != pooled:
			check = CheckPooledDrift
		case b.SuccessCount == 0:
			check = CheckPayoutMissing
		}
		if check != "" {
			observability.IncrementInvariantViolation(check)
			log.Error("CRITICAL: settlement invariant violated",
				zap.String("check", check),
				zap.Int64("pooled_amount", pooled),
				zap.Int64("contributed_amount", b.ContributedAmount),
				zap.Int64("paid_amount", b.PaidAmount),
				zap.Int64("success_payouts", b.SuccessCount),
			)
			results = append(results, UnitResult{ID: b.CampaignID, Outcome: OutcomeFailed, Reason: check})
			continue
		}
		results = append(results, succeeded(b.CampaignID))
	}

	for _, o := range open {
		observability.IncrementInvariantViolation(CheckRefundOpen)
		zap.L().Error("failed campaign has unrefunded contributions",
			zap.String("campaign_id", o.CampaignID.String()),
			zap.Int64("open_count", o.Count),
			zap.Int64("open_amount", o.Amount),
		)
		results = append(results, UnitResult{ID: o.CampaignID, Outcome: OutcomeFailed, Reason: CheckRefundOpen})
	}

	summary := summarize(domain.JobReconcile, referenceDate, results)
	if summary.Failed == 0 {
		zap.L().Info("settlement reconciled", zap.String("reference_date", summary.ReferenceDate))
	}
	return summary, nil
}
