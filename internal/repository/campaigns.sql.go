package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const campaignColumns = `id, title, venue_id, target_count, deadline, holding_account, screening_price, status, pooled_amount, classified_at, created_at, updated_at`

// scanCampaign scans campaignColumns followed by any extra selected columns.
func scanCampaign(row interface{ Scan(...any) error }, i *Campaign, extra ...any) error {
	dest := []any{
		&i.ID,
		&i.Title,
		&i.VenueID,
		&i.TargetCount,
		&i.Deadline,
		&i.HoldingAccount,
		&i.ScreeningPrice,
		&i.Status,
		&i.PooledAmount,
		&i.ClassifiedAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	}
	return row.Scan(append(dest, extra...)...)
}

const listCampaignsByDeadlineAndStatus = `
SELECT ` + campaignColumns + `
FROM campaigns
WHERE deadline = $1 AND status = $2
ORDER BY created_at, id
`

type ListCampaignsByDeadlineAndStatusParams struct {
	Deadline pgtype.Date
	Status   string
}

func (q *Queries) ListCampaignsByDeadlineAndStatus(ctx context.Context, arg ListCampaignsByDeadlineAndStatusParams) ([]Campaign, error) {
	rows, err := q.db.Query(ctx, listCampaignsByDeadlineAndStatus, arg.Deadline, arg.Status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Campaign
	for rows.Next() {
		var i Campaign
		if err := scanCampaign(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listPayoutRetryCandidates = `
SELECT ` + campaignColumns + `, last_reason
FROM (
    SELECT cp.*, last.failure_reason AS last_reason
    FROM campaigns cp
    JOIN LATERAL (
        SELECT pr.state, pr.failure_reason
        FROM payout_records pr
        WHERE pr.campaign_id = cp.id
        ORDER BY pr.created_at DESC, pr.id DESC
        LIMIT 1
    ) last ON TRUE
    WHERE cp.status = 'SUCCEEDED'
      AND cp.deadline >= $1 AND cp.deadline < $2
      AND last.state = 'ERROR'
) retry
ORDER BY deadline, id
`

type ListPayoutRetryCandidatesParams struct {
	From pgtype.Date
	To   pgtype.Date
}

type ListPayoutRetryCandidatesRow struct {
	Campaign   Campaign
	LastReason *string
}

// ListPayoutRetryCandidates returns SUCCEEDED campaigns with a deadline in
// [From, To) whose latest payout record is ERROR.
func (q *Queries) ListPayoutRetryCandidates(ctx context.Context, arg ListPayoutRetryCandidatesParams) ([]ListPayoutRetryCandidatesRow, error) {
	rows, err := q.db.Query(ctx, listPayoutRetryCandidates, arg.From, arg.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListPayoutRetryCandidatesRow
	for rows.Next() {
		var i ListPayoutRetryCandidatesRow
		if err := scanCampaign(rows, &i.Campaign, &i.LastReason); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getCampaign = `
SELECT ` + campaignColumns + `
FROM campaigns
WHERE id = $1
`

func (q *Queries) GetCampaign(ctx context.Context, id pgtype.UUID) (Campaign, error) {
	row := q.db.QueryRow(ctx, getCampaign, id)
	var i Campaign
	err := scanCampaign(row, &i)
	return i, err
}

const getCampaignStat = `
SELECT campaign_id, participant_count, view_count, favorite_count
FROM campaign_stats
WHERE campaign_id = $1
`

func (q *Queries) GetCampaignStat(ctx context.Context, campaignID pgtype.UUID) (CampaignStat, error) {
	row := q.db.QueryRow(ctx, getCampaignStat, campaignID)
	var i CampaignStat
	err := row.Scan(&i.CampaignID, &i.ParticipantCount, &i.ViewCount, &i.FavoriteCount)
	return i, err
}

const sumSuccessfulContributions = `
SELECT COALESCE(SUM(amount), 0)::BIGINT
FROM contributions
WHERE campaign_id = $1 AND state = 'SUCCESS'
`

func (q *Queries) SumSuccessfulContributions(ctx context.Context, campaignID pgtype.UUID) (int64, error) {
	row := q.db.QueryRow(ctx, sumSuccessfulContributions, campaignID)
	var total int64
	err := row.Scan(&total)
	return total, err
}

const classifyCampaign = `
UPDATE campaigns
SET status = $2, pooled_amount = $3, classified_at = NOW(), updated_at = NOW()
WHERE id = $1 AND status = 'ACTIVE'
`

type ClassifyCampaignParams struct {
	ID           pgtype.UUID
	Status       string
	PooledAmount *int64
}

// ClassifyCampaign moves an ACTIVE campaign to a terminal status. Zero rows means
// another run already classified it.
func (q *Queries) ClassifyCampaign(ctx context.Context, arg ClassifyCampaignParams) (int64, error) {
	result, err := q.db.Exec(ctx, classifyCampaign, arg.ID, arg.Status, arg.PooledAmount)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const getVenue = `
SELECT id, display_name, chain_id
FROM venues
WHERE id = $1
`

func (q *Queries) GetVenue(ctx context.Context, id pgtype.UUID) (Venue, error) {
	row := q.db.QueryRow(ctx, getVenue, id)
	var i Venue
	err := row.Scan(&i.ID, &i.DisplayName, &i.ChainID)
	return i, err
}

const listPayoutConservation = `
SELECT cp.id,
       cp.pooled_amount,
       COALESCE((SELECT SUM(c.amount) FROM contributions c WHERE c.campaign_id = cp.id AND c.state = 'SUCCESS'), 0)::BIGINT AS contributed_amount,
       COALESCE(SUM(pr.amount) FILTER (WHERE pr.state = 'SUCCESS'), 0)::BIGINT AS paid_amount,
       COUNT(pr.id) FILTER (WHERE pr.state = 'SUCCESS') AS success_count
FROM campaigns cp
LEFT JOIN payout_records pr ON pr.campaign_id = cp.id
WHERE cp.deadline = $1 AND cp.status = 'SUCCEEDED'
GROUP BY cp.id, cp.pooled_amount
ORDER BY cp.id
`

type ListPayoutConservationRow struct {
	CampaignID        pgtype.UUID
	PooledAmount      *int64
	ContributedAmount int64
	PaidAmount        int64
	SuccessCount      int64
}

func (q *Queries) ListPayoutConservation(ctx context.Context, deadline pgtype.Date) ([]ListPayoutConservationRow, error) {
	rows, err := q.db.Query(ctx, listPayoutConservation, deadline)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListPayoutConservationRow
	for rows.Next() {
		var i ListPayoutConservationRow
		if err := rows.Scan(&i.CampaignID, &i.PooledAmount, &i.ContributedAmount, &i.PaidAmount, &i.SuccessCount); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
