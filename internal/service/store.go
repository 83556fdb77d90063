package service

import (
	"context"
	"time"

	"github.com/ayo6706/screening-settlement/internal/models"
	"github.com/ayo6706/screening-settlement/internal/repository"
	"github.com/google/uuid"
)

// CampaignStore lists campaigns by deadline and status.
type CampaignStore interface {
	ListCampaigns(ctx context.Context, deadline time.Time, status string) ([]models.Campaign, error)
}

// ClassificationStore is the data access contract of the outcome classifier.
type ClassificationStore interface {
	CampaignStore
	GetCampaignStat(ctx context.Context, campaignID uuid.UUID) (models.CampaignStat, error)
	ClassifyCampaign(ctx context.Context, campaignID uuid.UUID, next string) (repository.Classification, error)
}

// PayoutStore is the data access contract of the payout executor.
type PayoutStore interface {
	CampaignStore
	GetVenue(ctx context.Context, id uuid.UUID) (models.Venue, error)
	HasSuccessfulPayout(ctx context.Context, campaignID uuid.UUID) (bool, error)
	ClaimPayout(ctx context.Context, claim repository.PayoutClaim) (models.PayoutRecord, bool, error)
	CompletePayout(ctx context.Context, c repository.PayoutCompletion) error
	RecordPayoutFailure(ctx context.Context, claim repository.PayoutClaim, reason string) (models.PayoutRecord, error)
	AbandonStalePayouts(ctx context.Context, cutoff time.Time) (int, error)
	ListPayoutRetries(ctx context.Context, from, to time.Time) ([]repository.PayoutRetry, error)
}

// RefundStore is the data access contract of the refund compensator.
type RefundStore interface {
	CampaignStore
	ListRefundCandidates(ctx context.Context, campaignID uuid.UUID, states []string) ([]models.RefundCandidate, error)
	ClaimRefund(ctx context.Context, contributionID uuid.UUID, fromState string) (bool, error)
	FinishRefund(ctx context.Context, c repository.RefundCompletion) (bool, error)
	AbandonStaleRefunds(ctx context.Context, cutoff time.Time) (int, error)
	RecordUnrecordedRefund(ctx context.Context, contributionID uuid.UUID, refundRef string) error
}

// RunLedger records one row per trigger invocation.
type RunLedger interface {
	StartRun(ctx context.Context, job string, referenceDate time.Time) (models.SettlementRun, error)
	FinishRun(ctx context.Context, runID uuid.UUID, status string, summary []byte) error
}

// ReconciliationStore exposes the aggregates the invariant checks read.
type ReconciliationStore interface {
	PayoutBalances(ctx context.Context, referenceDate time.Time) ([]repository.PayoutBalance, error)
	OpenRefunds(ctx context.Context, referenceDate time.Time) ([]repository.OpenRefunds, error)
}

// SettlementStore is everything the settlement pipeline persists through.
// *repository.Repository satisfies it.
type SettlementStore interface {
	ClassificationStore
	PayoutStore
	RefundStore
	RunLedger
	ReconciliationStore
}

var _ SettlementStore = (*repository.Repository)(nil)
