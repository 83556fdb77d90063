package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/screening-settlement/internal/domain"
	"github.com/ayo6706/screening-settlement/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository exposes settlement persistence in domain terms. Every state
// transition is a conditional write paired with an audit row in one transaction.
type Repository struct {
	store *Store
}

func NewRepository(store *Store) *Repository {
	return &Repository{store: store}
}

// Classification is the result of a conditional campaign status update.
type Classification struct {
	Applied      bool
	PooledAmount int64
}

// PayoutClaim describes a payout attempt for a campaign.
type PayoutClaim struct {
	CampaignID      uuid.UUID
	VenueID         uuid.UUID
	RequestedAmount int64
	CorrelationID   string
}

// PayoutCompletion is the terminal outcome of a claimed payout.
type PayoutCompletion struct {
	PayoutID       uuid.UUID
	CampaignID     uuid.UUID
	State          string
	Amount         int64
	TransactionRef string
	FailureReason  string
}

// RefundCompletion moves a contribution out of fromState into a terminal state.
type RefundCompletion struct {
	ContributionID uuid.UUID
	FromState      string
	State          string
	RefundRef      string
	FailureReason  string
}

// PayoutBalance compares what a succeeded campaign pooled with what was paid out.
type PayoutBalance struct {
	CampaignID        uuid.UUID
	PooledAmount      *int64
	ContributedAmount int64
	PaidAmount        int64
	SuccessCount      int64
}

// PayoutRetry is a succeeded campaign whose latest payout attempt failed.
type PayoutRetry struct {
	Campaign          models.Campaign
	LastFailureReason string
}

// OpenRefunds counts contributions of a failed campaign not yet refunded or errored.
type OpenRefunds struct {
	CampaignID uuid.UUID
	Count      int64
	Amount     int64
}

func (r *Repository) ListCampaigns(ctx context.Context, deadline time.Time, status string) ([]models.Campaign, error) {
	rows, err := r.store.Queries().ListCampaignsByDeadlineAndStatus(ctx, ListCampaignsByDeadlineAndStatusParams{
		Deadline: ToPgDate(deadline),
		Status:   status,
	})
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	out := make([]models.Campaign, 0, len(rows))
	for _, row := range rows {
		out = append(out, toCampaign(row))
	}
	return out, nil
}

// ListPayoutRetries returns SUCCEEDED campaigns with a deadline in [from, to)
// whose latest payout record is ERROR.
func (r *Repository) ListPayoutRetries(ctx context.Context, from, to time.Time) ([]PayoutRetry, error) {
	rows, err := r.store.Queries().ListPayoutRetryCandidates(ctx, ListPayoutRetryCandidatesParams{
		From: ToPgDate(from),
		To:   ToPgDate(to),
	})
	if err != nil {
		return nil, fmt.Errorf("list payout retries: %w", err)
	}
	out := make([]PayoutRetry, 0, len(rows))
	for _, row := range rows {
		retry := PayoutRetry{Campaign: toCampaign(row.Campaign)}
		if row.LastReason != nil {
			retry.LastFailureReason = *row.LastReason
		}
		out = append(out, retry)
	}
	return out, nil
}

func (r *Repository) GetCampaign(ctx context.Context, id uuid.UUID) (models.Campaign, error) {
	row, err := r.store.Queries().GetCampaign(ctx, ToPgUUID(id))
	if err != nil {
		return models.Campaign{}, fmt.Errorf("get campaign %s: %w", id, notFound(err))
	}
	return toCampaign(row), nil
}

func (r *Repository) GetCampaignStat(ctx context.Context, campaignID uuid.UUID) (models.CampaignStat, error) {
	row, err := r.store.Queries().GetCampaignStat(ctx, ToPgUUID(campaignID))
	if err != nil {
		return models.CampaignStat{}, fmt.Errorf("get campaign stat %s: %w", campaignID, notFound(err))
	}
	return models.CampaignStat{
		CampaignID:       FromPgUUID(row.CampaignID),
		ParticipantCount: row.ParticipantCount,
		ViewCount:        row.ViewCount,
		FavoriteCount:    row.FavoriteCount,
	}, nil
}

func (r *Repository) GetVenue(ctx context.Context, id uuid.UUID) (models.Venue, error) {
	row, err := r.store.Queries().GetVenue(ctx, ToPgUUID(id))
	if err != nil {
		return models.Venue{}, fmt.Errorf("get venue %s: %w", id, notFound(err))
	}
	return models.Venue{
		ID:          FromPgUUID(row.ID),
		DisplayName: row.DisplayName,
		ChainID:     row.ChainID,
	}, nil
}

// ClassifyCampaign snapshots the pooled amount and moves an ACTIVE campaign to next.
func (r *Repository) ClassifyCampaign(ctx context.Context, campaignID uuid.UUID, next string) (Classification, error) {
	var result Classification
	err := r.store.RunInTx(ctx, func(qtx *Queries) error {
		pooled, err := qtx.SumSuccessfulContributions(ctx, ToPgUUID(campaignID))
		if err != nil {
			return fmt.Errorf("sum contributions: %w", err)
		}
		rows, err := qtx.ClassifyCampaign(ctx, ClassifyCampaignParams{
			ID:           ToPgUUID(campaignID),
			Status:       next,
			PooledAmount: &pooled,
		})
		if err != nil {
			return fmt.Errorf("classify campaign: %w", err)
		}
		if rows == 0 {
			return nil
		}
		result = Classification{Applied: true, PooledAmount: pooled}
		return writeAudit(ctx, qtx, EntityCampaign, campaignID, "classified", domain.CampaignStatusActive, next, map[string]any{
			"pooled_amount": pooled,
		})
	})
	if err != nil {
		return Classification{}, err
	}
	return result, nil
}

func (r *Repository) HasSuccessfulPayout(ctx context.Context, campaignID uuid.UUID) (bool, error) {
	_, err := r.store.Queries().GetSuccessfulPayout(ctx, ToPgUUID(campaignID))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("get successful payout: %w", err)
}

// ClaimPayout inserts a PENDING payout. It reports false when another run already
// holds or completed the campaign.
func (r *Repository) ClaimPayout(ctx context.Context, claim PayoutClaim) (models.PayoutRecord, bool, error) {
	var (
		record  models.PayoutRecord
		claimed bool
	)
	err := r.store.RunInTx(ctx, func(qtx *Queries) error {
		row, err := qtx.ClaimPayout(ctx, ClaimPayoutParams{
			ID:              ToPgUUID(uuid.New()),
			CampaignID:      ToPgUUID(claim.CampaignID),
			VenueID:         ToPgUUID(claim.VenueID),
			RequestedAmount: claim.RequestedAmount,
			CorrelationID:   claim.CorrelationID,
		})
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("claim payout: %w", err)
		}
		record = toPayout(row)
		claimed = true
		return writeAudit(ctx, qtx, EntityPayout, record.ID, "claimed", "", domain.PayoutStatePending, map[string]any{
			"campaign_id":    claim.CampaignID.String(),
			"correlation_id": claim.CorrelationID,
		})
	})
	if err != nil {
		return models.PayoutRecord{}, false, err
	}
	return record, claimed, nil
}

func (r *Repository) CompletePayout(ctx context.Context, c PayoutCompletion) error {
	return r.store.RunInTx(ctx, func(qtx *Queries) error {
		rows, err := qtx.CompletePayout(ctx, CompletePayoutParams{
			ID:             ToPgUUID(c.PayoutID),
			State:          c.State,
			Amount:         c.Amount,
			TransactionRef: textParam(c.TransactionRef),
			FailureReason:  textParam(c.FailureReason),
		})
		if err != nil {
			return fmt.Errorf("complete payout %s: %w", c.PayoutID, err)
		}
		if err := requireExactlyOne(rows, "complete payout"); err != nil {
			return err
		}
		return writeAudit(ctx, qtx, EntityPayout, c.PayoutID, "completed", domain.PayoutStatePending, c.State, map[string]any{
			"campaign_id":     c.CampaignID.String(),
			"amount":          c.Amount,
			"transaction_ref": c.TransactionRef,
			"failure_reason":  c.FailureReason,
		})
	})
}

// RecordPayoutFailure stores an ERROR attempt that never reached the gateway.
func (r *Repository) RecordPayoutFailure(ctx context.Context, claim PayoutClaim, reason string) (models.PayoutRecord, error) {
	var record models.PayoutRecord
	err := r.store.RunInTx(ctx, func(qtx *Queries) error {
		row, err := qtx.InsertPayoutError(ctx, InsertPayoutErrorParams{
			ID:              ToPgUUID(uuid.New()),
			CampaignID:      ToPgUUID(claim.CampaignID),
			VenueID:         ToPgUUID(claim.VenueID),
			RequestedAmount: claim.RequestedAmount,
			FailureReason:   textParam(reason),
			CorrelationID:   claim.CorrelationID,
		})
		if err != nil {
			return fmt.Errorf("insert payout error: %w", err)
		}
		record = toPayout(row)
		return writeAudit(ctx, qtx, EntityPayout, record.ID, "rejected", "", domain.PayoutStateError, map[string]any{
			"campaign_id":    claim.CampaignID.String(),
			"failure_reason": reason,
		})
	})
	if err != nil {
		return models.PayoutRecord{}, err
	}
	return record, nil
}

// AbandonStalePayouts closes PENDING claims created before cutoff as ERROR.
func (r *Repository) AbandonStalePayouts(ctx context.Context, cutoff time.Time) (int, error) {
	var count int
	err := r.store.RunInTx(ctx, func(qtx *Queries) error {
		stale, err := qtx.AbandonStalePayouts(ctx, ToPgTimestamptz(cutoff))
		if err != nil {
			return fmt.Errorf("abandon stale payouts: %w", err)
		}
		for _, row := range stale {
			if err := writeAudit(ctx, qtx, EntityPayout, FromPgUUID(row.ID), "abandoned", domain.PayoutStatePending, domain.PayoutStateError, map[string]any{
				"campaign_id": FromPgUUID(row.CampaignID).String(),
			}); err != nil {
				return err
			}
		}
		count = len(stale)
		return nil
	})
	return count, err
}

func (r *Repository) ListRefundCandidates(ctx context.Context, campaignID uuid.UUID, states []string) ([]models.RefundCandidate, error) {
	rows, err := r.store.Queries().ListRefundCandidates(ctx, ListRefundCandidatesParams{
		CampaignID: ToPgUUID(campaignID),
		States:     states,
	})
	if err != nil {
		return nil, fmt.Errorf("list refund candidates: %w", err)
	}
	out := make([]models.RefundCandidate, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.RefundCandidate{
			Contribution:   toContribution(row.Contribution),
			HoldingAccount: row.HoldingAccount,
			BankAccount:    row.BankAccount,
			BankCode:       row.BankCode,
		})
	}
	return out, nil
}

// ClaimRefund moves a contribution from fromState to REFUNDING. It reports false
// when the contribution is no longer in fromState.
func (r *Repository) ClaimRefund(ctx context.Context, contributionID uuid.UUID, fromState string) (bool, error) {
	var claimed bool
	err := r.store.RunInTx(ctx, func(qtx *Queries) error {
		rows, err := qtx.ClaimContribution(ctx, ClaimContributionParams{
			ID:        ToPgUUID(contributionID),
			FromState: fromState,
		})
		if err != nil {
			return fmt.Errorf("claim contribution %s: %w", contributionID, err)
		}
		if rows == 0 {
			return nil
		}
		claimed = true
		return writeAudit(ctx, qtx, EntityContribution, contributionID, "refund_claimed", fromState, domain.ContributionStateRefunding, nil)
	})
	return claimed, err
}

// FinishRefund records a terminal refund outcome. It reports false when the
// contribution is no longer in the expected state.
func (r *Repository) FinishRefund(ctx context.Context, c RefundCompletion) (bool, error) {
	var applied bool
	err := r.store.RunInTx(ctx, func(qtx *Queries) error {
		rows, err := qtx.FinishContribution(ctx, FinishContributionParams{
			ID:            ToPgUUID(c.ContributionID),
			FromState:     c.FromState,
			State:         c.State,
			RefundRef:     textParam(c.RefundRef),
			FailureReason: textParam(c.FailureReason),
		})
		if err != nil {
			return fmt.Errorf("finish contribution %s: %w", c.ContributionID, err)
		}
		if rows == 0 {
			return nil
		}
		applied = true
		return writeAudit(ctx, qtx, EntityContribution, c.ContributionID, "refund_finished", c.FromState, c.State, map[string]any{
			"refund_ref":     c.RefundRef,
			"failure_reason": c.FailureReason,
		})
	})
	return applied, err
}

// AbandonStaleRefunds closes REFUNDING claims older than cutoff as ERROR
// (claim-abandoned). The transfer may or may not have happened, so the row is
// left for an operator retry, which reuses the same correlation id.
func (r *Repository) AbandonStaleRefunds(ctx context.Context, cutoff time.Time) (int, error) {
	var count int
	err := r.store.RunInTx(ctx, func(qtx *Queries) error {
		stale, err := qtx.AbandonStaleRefunds(ctx, ToPgTimestamptz(cutoff))
		if err != nil {
			return fmt.Errorf("abandon stale refunds: %w", err)
		}
		for _, row := range stale {
			if err := writeAudit(ctx, qtx, EntityContribution, FromPgUUID(row.ID), "refund_abandoned", domain.ContributionStateRefunding, domain.ContributionStateError, map[string]any{
				"campaign_id":    FromPgUUID(row.CampaignID).String(),
				"failure_reason": domain.ReasonClaimAbandoned,
			}); err != nil {
				return err
			}
		}
		count = len(stale)
		return nil
	})
	return count, err
}

// RecordUnrecordedRefund leaves an audit entry for a transfer the gateway
// accepted but whose contribution had already left REFUNDING.
func (r *Repository) RecordUnrecordedRefund(ctx context.Context, contributionID uuid.UUID, refundRef string) error {
	return r.store.RunInTx(ctx, func(qtx *Queries) error {
		return writeAudit(ctx, qtx, EntityContribution, contributionID, "refund_unrecorded", domain.ContributionStateRefunding, "", map[string]any{
			"refund_ref": refundRef,
		})
	})
}

func (r *Repository) StartRun(ctx context.Context, job string, referenceDate time.Time) (models.SettlementRun, error) {
	row, err := r.store.Queries().CreateSettlementRun(ctx, CreateSettlementRunParams{
		ID:            ToPgUUID(uuid.New()),
		Job:           job,
		ReferenceDate: ToPgDate(referenceDate),
	})
	if err != nil {
		return models.SettlementRun{}, fmt.Errorf("create settlement run: %w", err)
	}
	return toRun(row), nil
}

func (r *Repository) FinishRun(ctx context.Context, runID uuid.UUID, status string, summary []byte) error {
	rows, err := r.store.Queries().FinishSettlementRun(ctx, FinishSettlementRunParams{
		ID:      ToPgUUID(runID),
		Status:  status,
		Summary: summary,
	})
	if err != nil {
		return fmt.Errorf("finish settlement run %s: %w", runID, err)
	}
	return requireExactlyOne(rows, "finish settlement run")
}

func (r *Repository) ListRuns(ctx context.Context, job string, limit int) ([]models.SettlementRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.store.Queries().ListSettlementRuns(ctx, ListSettlementRunsParams{
		Job:   textParam(job),
		Limit: int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("list settlement runs: %w", err)
	}
	out := make([]models.SettlementRun, 0, len(rows))
	for _, row := range rows {
		out = append(out, toRun(row))
	}
	return out, nil
}

func (r *Repository) PayoutBalances(ctx context.Context, referenceDate time.Time) ([]PayoutBalance, error) {
	rows, err := r.store.Queries().ListPayoutConservation(ctx, ToPgDate(referenceDate))
	if err != nil {
		return nil, fmt.Errorf("list payout conservation: %w", err)
	}
	out := make([]PayoutBalance, 0, len(rows))
	for _, row := range rows {
		out = append(out, PayoutBalance{
			CampaignID:        FromPgUUID(row.CampaignID),
			PooledAmount:      row.PooledAmount,
			ContributedAmount: row.ContributedAmount,
			PaidAmount:        row.PaidAmount,
			SuccessCount:      row.SuccessCount,
		})
	}
	return out, nil
}

func (r *Repository) OpenRefunds(ctx context.Context, referenceDate time.Time) ([]OpenRefunds, error) {
	rows, err := r.store.Queries().ListUnsettledRefunds(ctx, ToPgDate(referenceDate))
	if err != nil {
		return nil, fmt.Errorf("list unsettled refunds: %w", err)
	}
	out := make([]OpenRefunds, 0, len(rows))
	for _, row := range rows {
		out = append(out, OpenRefunds{
			CampaignID: FromPgUUID(row.CampaignID),
			Count:      row.OpenCount,
			Amount:     row.OpenAmount,
		})
	}
	return out, nil
}

func (r *Repository) ListPayouts(ctx context.Context, campaignID uuid.UUID) ([]models.PayoutRecord, error) {
	rows, err := r.store.Queries().ListPayoutsByCampaign(ctx, ToPgUUID(campaignID))
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	out := make([]models.PayoutRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, toPayout(row))
	}
	return out, nil
}

func (r *Repository) ListContributions(ctx context.Context, campaignID uuid.UUID) ([]models.Contribution, error) {
	rows, err := r.store.Queries().ListContributionsByCampaign(ctx, ToPgUUID(campaignID))
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	out := make([]models.Contribution, 0, len(rows))
	for _, row := range rows {
		out = append(out, toContribution(row))
	}
	return out, nil
}

func (r *Repository) AuditTrail(ctx context.Context, entityType string, entityID uuid.UUID) ([]models.AuditEntry, error) {
	rows, err := r.store.Queries().ListAuditLogByEntity(ctx, ListAuditLogByEntityParams{
		EntityType: entityType,
		EntityID:   ToPgUUID(entityID),
	})
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	out := make([]models.AuditEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.AuditEntry{
			ID:         row.ID,
			EntityType: row.EntityType,
			EntityID:   FromPgUUID(row.EntityID),
			Action:     row.Action,
			PrevState:  row.PrevState,
			NextState:  row.NextState,
			Metadata:   row.Metadata,
			CreatedAt:  row.CreatedAt.Time,
		})
	}
	return out, nil
}

func toCampaign(row Campaign) models.Campaign {
	return models.Campaign{
		ID:             FromPgUUID(row.ID),
		Title:          row.Title,
		VenueID:        FromPgUUID(row.VenueID),
		TargetCount:    row.TargetCount,
		Deadline:       row.Deadline.Time,
		HoldingAccount: row.HoldingAccount,
		ScreeningPrice: row.ScreeningPrice,
		Status:         row.Status,
		PooledAmount:   row.PooledAmount,
		ClassifiedAt:   timePtr(row.ClassifiedAt),
		CreatedAt:      row.CreatedAt.Time,
		UpdatedAt:      row.UpdatedAt.Time,
	}
}

func toContribution(row Contribution) models.Contribution {
	return models.Contribution{
		ID:            FromPgUUID(row.ID),
		CampaignID:    FromPgUUID(row.CampaignID),
		ParticipantID: FromPgUUID(row.ParticipantID),
		Amount:        row.Amount,
		State:         row.State,
		RefundRef:     row.RefundRef,
		FailureReason: row.FailureReason,
		ProcessedAt:   timePtr(row.ProcessedAt),
		CreatedAt:     row.CreatedAt.Time,
		UpdatedAt:     row.UpdatedAt.Time,
	}
}

func toPayout(row PayoutRecord) models.PayoutRecord {
	return models.PayoutRecord{
		ID:              FromPgUUID(row.ID),
		CampaignID:      FromPgUUID(row.CampaignID),
		VenueID:         FromPgUUID(row.VenueID),
		RequestedAmount: row.RequestedAmount,
		Amount:          row.Amount,
		TransactionRef:  row.TransactionRef,
		State:           row.State,
		FailureReason:   row.FailureReason,
		CorrelationID:   row.CorrelationID,
		ProcessedAt:     timePtr(row.ProcessedAt),
		CreatedAt:       row.CreatedAt.Time,
	}
}

func toRun(row SettlementRun) models.SettlementRun {
	return models.SettlementRun{
		ID:            FromPgUUID(row.ID),
		Job:           row.Job,
		ReferenceDate: row.ReferenceDate.Time,
		Status:        row.Status,
		StartedAt:     row.StartedAt.Time,
		FinishedAt:    timePtr(row.FinishedAt),
		Summary:       row.Summary,
	}
}
