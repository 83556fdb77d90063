package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ayo6706/screening-settlement/internal/domain"
	"github.com/ayo6706/screening-settlement/internal/gateway"
	"github.com/ayo6706/screening-settlement/internal/models"
	"github.com/ayo6706/screening-settlement/internal/repository"
	"github.com/google/uuid"
)

// memoryStore mirrors the conditional-write semantics of the Postgres repository.
type memoryStore struct {
	mu            sync.Mutex
	campaigns     []*models.Campaign
	stats         map[uuid.UUID]models.CampaignStat
	venues        map[uuid.UUID]models.Venue
	participants  map[uuid.UUID]models.Participant
	contributions []*models.Contribution
	claimedAt     map[uuid.UUID]time.Time
	payouts       []*models.PayoutRecord
	runs          map[uuid.UUID]*models.SettlementRun
	audit         []string

	listErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		stats:        make(map[uuid.UUID]models.CampaignStat),
		venues:       make(map[uuid.UUID]models.Venue),
		participants: make(map[uuid.UUID]models.Participant),
		claimedAt:    make(map[uuid.UUID]time.Time),
		runs:         make(map[uuid.UUID]*models.SettlementRun),
	}
}

var _ SettlementStore = (*memoryStore)(nil)

func sameDay(a, b time.Time) bool {
	return a.Format(domain.DateLayout) == b.Format(domain.DateLayout)
}

func (s *memoryStore) campaign(id uuid.UUID) *models.Campaign {
	for _, c := range s.campaigns {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (s *memoryStore) ListCampaigns(_ context.Context, deadline time.Time, status string) ([]models.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []models.Campaign
	for _, c := range s.campaigns {
		if sameDay(c.Deadline, deadline) && c.Status == status {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *memoryStore) GetCampaignStat(_ context.Context, id uuid.UUID) (models.CampaignStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stat, ok := s.stats[id]
	if !ok {
		return models.CampaignStat{}, fmt.Errorf("get campaign stat %s: %w", id, repository.ErrNotFound)
	}
	return stat, nil
}

func (s *memoryStore) ClassifyCampaign(_ context.Context, id uuid.UUID, next string) (repository.Classification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.campaign(id)
	if c == nil || c.Status != domain.CampaignStatusActive {
		return repository.Classification{}, nil
	}
	var pooled int64
	for _, k := range s.contributions {
		if k.CampaignID == id && k.State == domain.ContributionStateSuccess {
			pooled += k.Amount
		}
	}
	c.Status = next
	c.PooledAmount = &pooled
	now := time.Now()
	c.ClassifiedAt = &now
	s.audit = append(s.audit, "campaign:"+next)
	return repository.Classification{Applied: true, PooledAmount: pooled}, nil
}

func (s *memoryStore) GetVenue(_ context.Context, id uuid.UUID) (models.Venue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.venues[id]
	if !ok {
		return models.Venue{}, repository.ErrNotFound
	}
	return v, nil
}

func (s *memoryStore) HasSuccessfulPayout(_ context.Context, campaignID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payouts {
		if p.CampaignID == campaignID && p.State == domain.PayoutStateSuccess {
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryStore) ClaimPayout(_ context.Context, claim repository.PayoutClaim) (models.PayoutRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payouts {
		if p.CampaignID == claim.CampaignID && (p.State == domain.PayoutStatePending || p.State == domain.PayoutStateSuccess) {
			return models.PayoutRecord{}, false, nil
		}
	}
	rec := &models.PayoutRecord{
		ID:              uuid.New(),
		CampaignID:      claim.CampaignID,
		VenueID:         claim.VenueID,
		RequestedAmount: claim.RequestedAmount,
		State:           domain.PayoutStatePending,
		CorrelationID:   claim.CorrelationID,
		CreatedAt:       time.Now(),
	}
	s.payouts = append(s.payouts, rec)
	s.audit = append(s.audit, "payout:PENDING")
	return *rec, true, nil
}

func (s *memoryStore) CompletePayout(_ context.Context, c repository.PayoutCompletion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payouts {
		if p.ID == c.PayoutID && p.State == domain.PayoutStatePending {
			p.State = c.State
			p.Amount = c.Amount
			if c.TransactionRef != "" {
				ref := c.TransactionRef
				p.TransactionRef = &ref
			}
			if c.FailureReason != "" {
				reason := c.FailureReason
				p.FailureReason = &reason
			}
			now := time.Now()
			p.ProcessedAt = &now
			s.audit = append(s.audit, "payout:"+c.State)
			return nil
		}
	}
	return errors.New("complete payout affected 0 rows")
}

func (s *memoryStore) RecordPayoutFailure(_ context.Context, claim repository.PayoutClaim, reason string) (models.PayoutRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	rec := &models.PayoutRecord{
		ID:              uuid.New(),
		CampaignID:      claim.CampaignID,
		VenueID:         claim.VenueID,
		RequestedAmount: claim.RequestedAmount,
		State:           domain.PayoutStateError,
		FailureReason:   &reason,
		CorrelationID:   claim.CorrelationID,
		ProcessedAt:     &now,
		CreatedAt:       now,
	}
	s.payouts = append(s.payouts, rec)
	s.audit = append(s.audit, "payout:ERROR")
	return *rec, nil
}

func (s *memoryStore) AbandonStalePayouts(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.payouts {
		if p.State == domain.PayoutStatePending && p.CreatedAt.Before(cutoff) {
			reason := domain.ReasonClaimAbandoned
			p.State = domain.PayoutStateError
			p.FailureReason = &reason
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) ListPayoutRetries(_ context.Context, from, to time.Time) ([]repository.PayoutRetry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.PayoutRetry
	for _, c := range s.campaigns {
		if c.Status != domain.CampaignStatusSucceeded || c.Deadline.Before(from) || !c.Deadline.Before(to) {
			continue
		}
		var last *models.PayoutRecord
		for _, p := range s.payouts {
			if p.CampaignID == c.ID {
				last = p
			}
		}
		if last == nil || last.State != domain.PayoutStateError {
			continue
		}
		retry := repository.PayoutRetry{Campaign: *c}
		if last.FailureReason != nil {
			retry.LastFailureReason = *last.FailureReason
		}
		out = append(out, retry)
	}
	return out, nil
}

func (s *memoryStore) ListRefundCandidates(_ context.Context, campaignID uuid.UUID, states []string) ([]models.RefundCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.campaign(campaignID)
	var out []models.RefundCandidate
	for _, k := range s.contributions {
		if k.CampaignID != campaignID || !contains(states, k.State) {
			continue
		}
		cand := models.RefundCandidate{Contribution: *k}
		if c != nil {
			cand.HoldingAccount = c.HoldingAccount
		}
		if p, ok := s.participants[k.ParticipantID]; ok {
			cand.BankAccount = p.BankAccount
			cand.BankCode = p.BankCode
		}
		out = append(out, cand)
	}
	return out, nil
}

func (s *memoryStore) contribution(id uuid.UUID) *models.Contribution {
	for _, k := range s.contributions {
		if k.ID == id {
			return k
		}
	}
	return nil
}

func (s *memoryStore) ClaimRefund(_ context.Context, id uuid.UUID, from string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.contribution(id)
	if k == nil || k.State != from {
		return false, nil
	}
	k.State = domain.ContributionStateRefunding
	s.claimedAt[id] = time.Now()
	s.audit = append(s.audit, "contribution:REFUNDING")
	return true, nil
}

func (s *memoryStore) FinishRefund(_ context.Context, c repository.RefundCompletion) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.contribution(c.ContributionID)
	if k == nil || k.State != c.FromState {
		return false, nil
	}
	k.State = c.State
	k.RefundRef, k.FailureReason = nil, nil
	if c.RefundRef != "" {
		ref := c.RefundRef
		k.RefundRef = &ref
	}
	if c.FailureReason != "" {
		reason := c.FailureReason
		k.FailureReason = &reason
	}
	now := time.Now()
	k.ProcessedAt = &now
	delete(s.claimedAt, c.ContributionID)
	s.audit = append(s.audit, "contribution:"+c.State)
	return true, nil
}

func (s *memoryStore) AbandonStaleRefunds(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, at := range s.claimedAt {
		if !at.Before(cutoff) {
			continue
		}
		if k := s.contribution(id); k != nil && k.State == domain.ContributionStateRefunding {
			reason := domain.ReasonClaimAbandoned
			now := time.Now()
			k.State = domain.ContributionStateError
			k.FailureReason = &reason
			k.ProcessedAt = &now
			s.audit = append(s.audit, "contribution:abandoned")
			n++
		}
		delete(s.claimedAt, id)
	}
	return n, nil
}

func (s *memoryStore) RecordUnrecordedRefund(_ context.Context, id uuid.UUID, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, "contribution:unrecorded:"+ref)
	return nil
}

// claimRefundAt puts a contribution in REFUNDING as if a run claimed it at.
func (s *memoryStore) claimRefundAt(id uuid.UUID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contribution(id).State = domain.ContributionStateRefunding
	s.claimedAt[id] = at
}

func (s *memoryStore) StartRun(_ context.Context, job string, referenceDate time.Time) (models.SettlementRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run := &models.SettlementRun{
		ID:            uuid.New(),
		Job:           job,
		ReferenceDate: referenceDate,
		Status:        domain.RunStatusRunning,
		StartedAt:     time.Now(),
	}
	s.runs[run.ID] = run
	return *run, nil
}

func (s *memoryStore) FinishRun(_ context.Context, id uuid.UUID, status string, summary []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok || run.Status != domain.RunStatusRunning {
		return errors.New("finish settlement run affected 0 rows")
	}
	now := time.Now()
	run.Status = status
	run.Summary = summary
	run.FinishedAt = &now
	return nil
}

func (s *memoryStore) PayoutBalances(_ context.Context, referenceDate time.Time) ([]repository.PayoutBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.PayoutBalance
	for _, c := range s.campaigns {
		if !sameDay(c.Deadline, referenceDate) || c.Status != domain.CampaignStatusSucceeded {
			continue
		}
		b := repository.PayoutBalance{CampaignID: c.ID, PooledAmount: c.PooledAmount}
		for _, k := range s.contributions {
			if k.CampaignID == c.ID && k.State == domain.ContributionStateSuccess {
				b.ContributedAmount += k.Amount
			}
		}
		for _, p := range s.payouts {
			if p.CampaignID == c.ID && p.State == domain.PayoutStateSuccess {
				b.PaidAmount += p.Amount
				b.SuccessCount++
			}
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *memoryStore) OpenRefunds(_ context.Context, referenceDate time.Time) ([]repository.OpenRefunds, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.OpenRefunds
	for _, c := range s.campaigns {
		if !sameDay(c.Deadline, referenceDate) || c.Status != domain.CampaignStatusFailed {
			continue
		}
		o := repository.OpenRefunds{CampaignID: c.ID}
		for _, k := range s.contributions {
			if k.CampaignID == c.ID && (k.State == domain.ContributionStateSuccess || k.State == domain.ContributionStateRefunding) {
				o.Count++
				o.Amount += k.Amount
			}
		}
		if o.Count > 0 {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *memoryStore) payoutsFor(campaignID uuid.UUID) []models.PayoutRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PayoutRecord
	for _, p := range s.payouts {
		if p.CampaignID == campaignID {
			out = append(out, *p)
		}
	}
	return out
}

func (s *memoryStore) contributionsFor(campaignID uuid.UUID) []models.Contribution {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Contribution
	for _, k := range s.contributions {
		if k.CampaignID == campaignID {
			out = append(out, *k)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// seed helpers

var referenceDate = time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)

type campaignSeed struct {
	target        int64
	participants  int64
	contribution  int64
	missingAcct   int
	status        string
	holding       *string
	price         *int64
	venueName     string
	venueChain    *string
	skipStat      bool
	skipVenue     bool
	pooledPreset  *int64
	deadlineShift int
}

func strPtr(s string) *string { return &s }
func i64Ptr(v int64) *int64  { return &v }

func (s *memoryStore) seedCampaign(seed campaignSeed) *models.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()

	venueID := uuid.New()
	if !seed.skipVenue {
		name := seed.venueName
		if name == "" {
			name = "CGV Yongsan"
		}
		s.venues[venueID] = models.Venue{ID: venueID, DisplayName: name, ChainID: seed.venueChain}
	}
	status := seed.status
	if status == "" {
		status = domain.CampaignStatusActive
	}
	holding := seed.holding
	if holding == nil {
		holding = strPtr("H-" + venueID.String()[:8])
	}
	price := seed.price
	if price == nil {
		price = i64Ptr(seed.contribution)
	}
	c := &models.Campaign{
		ID:             uuid.New(),
		Title:          "screening",
		VenueID:        venueID,
		TargetCount:    seed.target,
		Deadline:       referenceDate.AddDate(0, 0, seed.deadlineShift),
		HoldingAccount: holding,
		ScreeningPrice: price,
		Status:         status,
		PooledAmount:   seed.pooledPreset,
	}
	s.campaigns = append(s.campaigns, c)
	if !seed.skipStat {
		s.stats[c.ID] = models.CampaignStat{CampaignID: c.ID, ParticipantCount: seed.participants}
	}

	for i := int64(0); i < seed.participants; i++ {
		p := models.Participant{ID: uuid.New(), DisplayName: fmt.Sprintf("p%d", i)}
		if int(i) >= seed.missingAcct {
			p.BankAccount = strPtr(fmt.Sprintf("110-%06d", i))
			p.BankCode = strPtr("088")
		}
		s.participants[p.ID] = p
		s.contributions = append(s.contributions, &models.Contribution{
			ID:            uuid.New(),
			CampaignID:    c.ID,
			ParticipantID: p.ID,
			Amount:        seed.contribution,
			State:         domain.ContributionStateSuccess,
			CreatedAt:     time.Now(),
		})
	}
	return c
}

// scriptedGateway records every transfer and answers through respond.
type scriptedGateway struct {
	mu      sync.Mutex
	calls   []gateway.TransferRequest
	respond func(req gateway.TransferRequest) (gateway.TransferResponse, error)
}

func newScriptedGateway() *scriptedGateway {
	return &scriptedGateway{}
}

func (g *scriptedGateway) Transfer(ctx context.Context, req gateway.TransferRequest) (gateway.TransferResponse, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	respond := g.respond
	n := len(g.calls)
	g.mu.Unlock()

	if respond != nil {
		return respond(req)
	}
	return gateway.TransferResponse{Code: gateway.DefaultSuccessCode, TransactionRef: fmt.Sprintf("TX-%d", n)}, nil
}

func (g *scriptedGateway) Calls() []gateway.TransferRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]gateway.TransferRequest, len(g.calls))
	copy(out, g.calls)
	return out
}

func claimFor(campaignID, venueID uuid.UUID) repository.PayoutClaim {
	return repository.PayoutClaim{
		CampaignID:      campaignID,
		VenueID:         venueID,
		RequestedAmount: 5_000,
		CorrelationID:   domain.CorrelationID("payout", campaignID),
	}
}

func successPayout(campaignID uuid.UUID, amount int64) *models.PayoutRecord {
	ref := "TX-manual"
	return &models.PayoutRecord{
		ID:             uuid.New(),
		CampaignID:     campaignID,
		Amount:         amount,
		TransactionRef: &ref,
		State:          domain.PayoutStateSuccess,
		CreatedAt:      time.Now(),
	}
}
