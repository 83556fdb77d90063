package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const payoutColumns = `id, campaign_id, venue_id, requested_amount, amount, transaction_ref, state, failure_reason, correlation_id, processed_at, created_at`

func scanPayout(row interface{ Scan(...any) error }, i *PayoutRecord) error {
	return row.Scan(
		&i.ID,
		&i.CampaignID,
		&i.VenueID,
		&i.RequestedAmount,
		&i.Amount,
		&i.TransactionRef,
		&i.State,
		&i.FailureReason,
		&i.CorrelationID,
		&i.ProcessedAt,
		&i.CreatedAt,
	)
}

const getSuccessfulPayout = `
SELECT ` + payoutColumns + `
FROM payout_records
WHERE campaign_id = $1 AND state = 'SUCCESS'
`

func (q *Queries) GetSuccessfulPayout(ctx context.Context, campaignID pgtype.UUID) (PayoutRecord, error) {
	row := q.db.QueryRow(ctx, getSuccessfulPayout, campaignID)
	var i PayoutRecord
	err := scanPayout(row, &i)
	return i, err
}

const claimPayout = `
INSERT INTO payout_records (id, campaign_id, venue_id, requested_amount, amount, state, correlation_id)
VALUES ($1, $2, $3, $4, 0, 'PENDING', $5)
ON CONFLICT (campaign_id) WHERE state IN ('PENDING', 'SUCCESS') DO NOTHING
RETURNING ` + payoutColumns

type ClaimPayoutParams struct {
	ID              pgtype.UUID
	CampaignID      pgtype.UUID
	VenueID         pgtype.UUID
	RequestedAmount int64
	CorrelationID   string
}

// ClaimPayout inserts a PENDING record unless a PENDING or SUCCESS record already
// exists for the campaign, in which case pgx.ErrNoRows is returned.
func (q *Queries) ClaimPayout(ctx context.Context, arg ClaimPayoutParams) (PayoutRecord, error) {
	row := q.db.QueryRow(ctx, claimPayout, arg.ID, arg.CampaignID, arg.VenueID, arg.RequestedAmount, arg.CorrelationID)
	var i PayoutRecord
	err := scanPayout(row, &i)
	return i, err
}

const completePayout = `
UPDATE payout_records
SET state = $2, amount = $3, transaction_ref = $4, failure_reason = $5, processed_at = NOW(), updated_at = NOW()
WHERE id = $1 AND state = 'PENDING'
`

type CompletePayoutParams struct {
	ID             pgtype.UUID
	State          string
	Amount         int64
	TransactionRef *string
	FailureReason  *string
}

func (q *Queries) CompletePayout(ctx context.Context, arg CompletePayoutParams) (int64, error) {
	result, err := q.db.Exec(ctx, completePayout, arg.ID, arg.State, arg.Amount, arg.TransactionRef, arg.FailureReason)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const insertPayoutError = `
INSERT INTO payout_records (id, campaign_id, venue_id, requested_amount, amount, state, failure_reason, correlation_id, processed_at)
VALUES ($1, $2, $3, $4, 0, 'ERROR', $5, $6, NOW())
RETURNING ` + payoutColumns

type InsertPayoutErrorParams struct {
	ID              pgtype.UUID
	CampaignID      pgtype.UUID
	VenueID         pgtype.UUID
	RequestedAmount int64
	FailureReason   *string
	CorrelationID   string
}

func (q *Queries) InsertPayoutError(ctx context.Context, arg InsertPayoutErrorParams) (PayoutRecord, error) {
	row := q.db.QueryRow(ctx, insertPayoutError, arg.ID, arg.CampaignID, arg.VenueID, arg.RequestedAmount, arg.FailureReason, arg.CorrelationID)
	var i PayoutRecord
	err := scanPayout(row, &i)
	return i, err
}

const abandonStalePayouts = `
UPDATE payout_records
SET state = 'ERROR', failure_reason = 'claim-abandoned', processed_at = NOW(), updated_at = NOW()
WHERE state = 'PENDING' AND created_at < $1
RETURNING ` + payoutColumns

func (q *Queries) AbandonStalePayouts(ctx context.Context, cutoff pgtype.Timestamptz) ([]PayoutRecord, error) {
	rows, err := q.db.Query(ctx, abandonStalePayouts, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PayoutRecord
	for rows.Next() {
		var i PayoutRecord
		if err := scanPayout(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listPayoutsByCampaign = `
SELECT ` + payoutColumns + `
FROM payout_records
WHERE campaign_id = $1
ORDER BY created_at DESC, id
`

func (q *Queries) ListPayoutsByCampaign(ctx context.Context, campaignID pgtype.UUID) ([]PayoutRecord, error) {
	rows, err := q.db.Query(ctx, listPayoutsByCampaign, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PayoutRecord
	for rows.Next() {
		var i PayoutRecord
		if err := scanPayout(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
