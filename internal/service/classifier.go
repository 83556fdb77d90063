package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/screening-settlement/internal/domain"
	"github.com/ayo6706/screening-settlement/internal/events"
	"github.com/ayo6706/screening-settlement/internal/models"
	"github.com/ayo6706/screening-settlement/internal/repository"
	"go.uber.org/zap"
)

// Classifier decides SUCCEEDED or FAILED for every expired ACTIVE campaign.
type Classifier struct {
	store   ClassificationStore
	scanner *Scanner
	harness *harness
}

func NewClassifier(store ClassificationStore, publisher events.Publisher) *Classifier {
	return &Classifier{
		store:   store,
		scanner: NewScanner(store),
		harness: &harness{publisher: publisher},
	}
}

// Run classifies every eligible campaign for referenceDate. A campaign with no
// stat row is logged and left ACTIVE for a later run.
func (c *Classifier) Run(ctx context.Context, referenceDate time.Time) (RunSummary, error) {
	campaigns, err := c.scanner.Eligible(ctx, referenceDate)
	if err != nil {
		return RunSummary{}, err
	}

	results := make([]UnitResult, 0, len(campaigns))
	for _, campaign := range campaigns {
		if ctx.Err() != nil {
			results = append(results, skipped(campaign.ID, skipCanceled))
			continue
		}
		results = append(results, c.classify(ctx, campaign))
	}

	summary := summarize(domain.JobClassify, referenceDate, results)
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("classification interrupted: %w", err)
	}
	return summary, nil
}

func (c *Classifier) classify(ctx context.Context, campaign models.Campaign) UnitResult {
	log := zap.L().With(zap.String("campaign_id", campaign.ID.String()))

	stat, err := c.store.GetCampaignStat(ctx, campaign.ID)
	if errors.Is(err, repository.ErrNotFound) {
		integrity := &domain.DataIntegrityError{Entity: "campaign_stat", ID: campaign.ID.String()}
		log.Error("campaign has no stat row; skipped", zap.Error(integrity))
		return UnitResult{ID: campaign.ID, Outcome: OutcomeSkipped, Reason: skipStatMissing, Err: integrity}
	}
	if err != nil {
		log.Error("failed to load campaign stat", zap.Error(err))
		return failed(campaign.ID, err)
	}

	next := domain.Classify(stat.ParticipantCount, campaign.TargetCount)
	if domain.IsTerminalCampaignStatus(campaign.Status) {
		log.Info("campaign already terminal; skipped", zap.String("status", campaign.Status))
		return skipped(campaign.ID, skipAlreadySettled)
	}
	if !domain.CanTransitionCampaign(campaign.Status, next) {
		integrity := &domain.DataIntegrityError{
			Entity:  "campaign",
			ID:      campaign.ID.String(),
			Problem: fmt.Sprintf("cannot move from %s to %s", campaign.Status, next),
		}
		log.Error("campaign transition refused", zap.Error(integrity))
		return UnitResult{ID: campaign.ID, Outcome: OutcomeFailed, Reason: reasonTransitionRefused, Err: integrity}
	}

	result, err := c.store.ClassifyCampaign(context.WithoutCancel(ctx), campaign.ID, next)
	if err != nil {
		log.Error("failed to persist classification", zap.String("status", next), zap.Error(err))
		return failed(campaign.ID, err)
	}
	if !result.Applied {
		log.Info("campaign already classified by another run")
		return skipped(campaign.ID, skipAlreadySettled)
	}

	log.Info("campaign classified",
		zap.String("status", next),
		zap.Int64("participants", stat.ParticipantCount),
		zap.Int64("target", campaign.TargetCount),
		zap.Int64("pooled_amount", result.PooledAmount),
	)
	c.harness.publish(ctx, events.TypeCampaignClassified, campaign.ID.String(), map[string]any{
		"campaign_id":       campaign.ID,
		"status":            next,
		"participant_count": stat.ParticipantCount,
		"target_count":      campaign.TargetCount,
		"pooled_amount":     result.PooledAmount,
		"deadline":          campaign.Deadline.Format(domain.DateLayout),
	})
	return succeeded(campaign.ID)
}
