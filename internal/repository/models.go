package repository

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type Campaign struct {
	ID             pgtype.UUID
	Title          string
	VenueID        pgtype.UUID
	TargetCount    int64
	Deadline       pgtype.Date
	HoldingAccount *string
	ScreeningPrice *int64
	Status         string
	PooledAmount   *int64
	ClassifiedAt   pgtype.Timestamptz
	CreatedAt      pgtype.Timestamptz
	UpdatedAt      pgtype.Timestamptz
}

type CampaignStat struct {
	CampaignID       pgtype.UUID
	ParticipantCount int64
	ViewCount        int64
	FavoriteCount    int64
}

type Venue struct {
	ID          pgtype.UUID
	DisplayName string
	ChainID     *string
}

type Contribution struct {
	ID            pgtype.UUID
	CampaignID    pgtype.UUID
	ParticipantID pgtype.UUID
	Amount        int64
	State         string
	RefundRef     *string
	FailureReason *string
	ProcessedAt   pgtype.Timestamptz
	CreatedAt     pgtype.Timestamptz
	UpdatedAt     pgtype.Timestamptz
}

type PayoutRecord struct {
	ID              pgtype.UUID
	CampaignID      pgtype.UUID
	VenueID         pgtype.UUID
	RequestedAmount int64
	Amount          int64
	TransactionRef  *string
	State           string
	FailureReason   *string
	CorrelationID   string
	ProcessedAt     pgtype.Timestamptz
	CreatedAt       pgtype.Timestamptz
}

type AuditLog struct {
	ID         int64
	EntityType string
	EntityID   pgtype.UUID
	Action     string
	PrevState  *string
	NextState  *string
	Metadata   []byte
	CreatedAt  pgtype.Timestamptz
}

type SettlementRun struct {
	ID            pgtype.UUID
	Job           string
	ReferenceDate pgtype.Date
	Status        string
	StartedAt     pgtype.Timestamptz
	FinishedAt    pgtype.Timestamptz
	Summary       []byte
}
