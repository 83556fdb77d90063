package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const listRefundCandidates = `
SELECT c.id, c.campaign_id, c.participant_id, c.amount, c.state, c.refund_ref, c.failure_reason,
       c.processed_at, c.created_at, c.updated_at,
       cp.holding_account, p.bank_account, p.bank_code
FROM contributions c
JOIN campaigns cp ON cp.id = c.campaign_id
LEFT JOIN participants p ON p.id = c.participant_id
WHERE c.campaign_id = $1 AND c.state = ANY($2::text[])
ORDER BY c.created_at, c.id
`

type ListRefundCandidatesParams struct {
	CampaignID pgtype.UUID
	States     []string
}

type ListRefundCandidatesRow struct {
	Contribution
	HoldingAccount *string
	BankAccount    *string
	BankCode       *string
}

func (q *Queries) ListRefundCandidates(ctx context.Context, arg ListRefundCandidatesParams) ([]ListRefundCandidatesRow, error) {
	rows, err := q.db.Query(ctx, listRefundCandidates, arg.CampaignID, arg.States)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListRefundCandidatesRow
	for rows.Next() {
		var i ListRefundCandidatesRow
		if err := rows.Scan(
			&i.ID,
			&i.CampaignID,
			&i.ParticipantID,
			&i.Amount,
			&i.State,
			&i.RefundRef,
			&i.FailureReason,
			&i.ProcessedAt,
			&i.CreatedAt,
			&i.UpdatedAt,
			&i.HoldingAccount,
			&i.BankAccount,
			&i.BankCode,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listContributionsByCampaign = `
SELECT id, campaign_id, participant_id, amount, state, refund_ref, failure_reason, processed_at, created_at, updated_at
FROM contributions
WHERE campaign_id = $1
ORDER BY created_at, id
`

func (q *Queries) ListContributionsByCampaign(ctx context.Context, campaignID pgtype.UUID) ([]Contribution, error) {
	rows, err := q.db.Query(ctx, listContributionsByCampaign, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Contribution
	for rows.Next() {
		var i Contribution
		if err := rows.Scan(
			&i.ID,
			&i.CampaignID,
			&i.ParticipantID,
			&i.Amount,
			&i.State,
			&i.RefundRef,
			&i.FailureReason,
			&i.ProcessedAt,
			&i.CreatedAt,
			&i.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const claimContribution = `
UPDATE contributions
SET state = 'REFUNDING', claimed_at = NOW(), updated_at = NOW()
WHERE id = $1 AND state = $2
`

type ClaimContributionParams struct {
	ID        pgtype.UUID
	FromState string
}

func (q *Queries) ClaimContribution(ctx context.Context, arg ClaimContributionParams) (int64, error) {
	result, err := q.db.Exec(ctx, claimContribution, arg.ID, arg.FromState)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const finishContribution = `
UPDATE contributions
SET state = $3, refund_ref = $4, failure_reason = $5, processed_at = NOW(), claimed_at = NULL, updated_at = NOW()
WHERE id = $1 AND state = $2
`

type FinishContributionParams struct {
	ID            pgtype.UUID
	FromState     string
	State         string
	RefundRef     *string
	FailureReason *string
}

func (q *Queries) FinishContribution(ctx context.Context, arg FinishContributionParams) (int64, error) {
	result, err := q.db.Exec(ctx, finishContribution, arg.ID, arg.FromState, arg.State, arg.RefundRef, arg.FailureReason)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const abandonStaleRefunds = `
UPDATE contributions
SET state = 'ERROR', failure_reason = 'claim-abandoned', processed_at = NOW(), claimed_at = NULL, updated_at = NOW()
WHERE state = 'REFUNDING' AND claimed_at < $1
RETURNING id, campaign_id
`

type AbandonStaleRefundsRow struct {
	ID         pgtype.UUID
	CampaignID pgtype.UUID
}

func (q *Queries) AbandonStaleRefunds(ctx context.Context, cutoff pgtype.Timestamptz) ([]AbandonStaleRefundsRow, error) {
	rows, err := q.db.Query(ctx, abandonStaleRefunds, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AbandonStaleRefundsRow
	for rows.Next() {
		var i AbandonStaleRefundsRow
		if err := rows.Scan(&i.ID, &i.CampaignID); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listUnsettledRefunds = `
SELECT c.campaign_id, COUNT(*) AS open_count, COALESCE(SUM(c.amount), 0)::BIGINT AS open_amount
FROM contributions c
JOIN campaigns cp ON cp.id = c.campaign_id
WHERE cp.deadline = $1 AND cp.status = 'FAILED' AND c.state IN ('SUCCESS', 'REFUNDING')
GROUP BY c.campaign_id
ORDER BY c.campaign_id
`

type ListUnsettledRefundsRow struct {
	CampaignID pgtype.UUID
	OpenCount  int64
	OpenAmount int64
}

func (q *Queries) ListUnsettledRefunds(ctx context.Context, deadline pgtype.Date) ([]ListUnsettledRefundsRow, error) {
	rows, err := q.db.Query(ctx, listUnsettledRefunds, deadline)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListUnsettledRefundsRow
	for rows.Next() {
		var i ListUnsettledRefundsRow
		if err := rows.Scan(&i.CampaignID, &i.OpenCount, &i.OpenAmount); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
