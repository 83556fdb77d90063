package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Campaign struct {
	ID             uuid.UUID  `json:"id"`
	Title          string     `json:"title"`
	VenueID        uuid.UUID  `json:"venue_id"`
	TargetCount    int64      `json:"target_count"`
	Deadline       time.Time  `json:"deadline"`
	HoldingAccount *string    `json:"holding_account,omitempty"`
	ScreeningPrice *int64     `json:"screening_price,omitempty"`
	Status         string     `json:"status"` // EVALUATING, ACTIVE, SUCCEEDED, FAILED
	PooledAmount   *int64     `json:"pooled_amount,omitempty"`
	ClassifiedAt   *time.Time `json:"classified_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type CampaignStat struct {
	CampaignID       uuid.UUID `json:"campaign_id"`
	ParticipantCount int64     `json:"participant_count"`
	ViewCount        int64     `json:"view_count"`
	FavoriteCount    int64     `json:"favorite_count"`
}

type Venue struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	ChainID     *string   `json:"chain_id,omitempty"`
}

type Participant struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	BankAccount *string   `json:"bank_account,omitempty"`
	BankCode    *string   `json:"bank_code,omitempty"`
}

type Contribution struct {
	ID            uuid.UUID  `json:"id"`
	CampaignID    uuid.UUID  `json:"campaign_id"`
	ParticipantID uuid.UUID  `json:"participant_id"`
	Amount        int64      `json:"amount"`
	State         string     `json:"state"` // SUCCESS, REFUNDING, REFUNDED, ERROR
	RefundRef     *string    `json:"refund_ref,omitempty"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// RefundCandidate is a contribution joined with what a refund needs to reach the participant.
type RefundCandidate struct {
	Contribution
	HoldingAccount *string `json:"holding_account,omitempty"`
	BankAccount    *string `json:"bank_account,omitempty"`
	BankCode       *string `json:"bank_code,omitempty"`
}

type PayoutRecord struct {
	ID              uuid.UUID  `json:"id"`
	CampaignID      uuid.UUID  `json:"campaign_id"`
	VenueID         uuid.UUID  `json:"venue_id"`
	RequestedAmount int64      `json:"requested_amount"`
	Amount          int64      `json:"amount"`
	TransactionRef  *string    `json:"transaction_ref,omitempty"`
	State           string     `json:"state"` // PENDING, SUCCESS, ERROR
	FailureReason   *string    `json:"failure_reason,omitempty"`
	CorrelationID   string     `json:"correlation_id"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type AuditEntry struct {
	ID         int64           `json:"id"`
	EntityType string          `json:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id"`
	Action     string          `json:"action"`
	PrevState  *string         `json:"prev_state,omitempty"`
	NextState  *string         `json:"next_state,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type SettlementRun struct {
	ID            uuid.UUID       `json:"id"`
	Job           string          `json:"job"`
	ReferenceDate time.Time       `json:"reference_date"`
	Status        string          `json:"status"` // RUNNING, COMPLETED, FAILED
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
	Summary       json.RawMessage `json:"summary,omitempty"`
}
