package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ayo6706/screening-settlement/internal/domain"
	"github.com/ayo6706/screening-settlement/internal/models"
)

// Scanner selects the campaigns a settlement stage works on. It only reads and
// is safe to re-run.
type Scanner struct {
	store CampaignStore
}

func NewScanner(store CampaignStore) *Scanner {
	return &Scanner{store: store}
}

// Eligible returns campaigns whose deadline is referenceDate and that are still ACTIVE.
func (s *Scanner) Eligible(ctx context.Context, referenceDate time.Time) ([]models.Campaign, error) {
	return s.WithStatus(ctx, domain.CampaignStatusActive, referenceDate)
}

// WithStatus returns campaigns whose deadline is referenceDate in the given status.
func (s *Scanner) WithStatus(ctx context.Context, status string, referenceDate time.Time) ([]models.Campaign, error) {
	campaigns, err := s.store.ListCampaigns(ctx, referenceDate, status)
	if err != nil {
		return nil, fmt.Errorf("scan %s campaigns for %s: %w", status, referenceDate.Format(domain.DateLayout), err)
	}
	return campaigns, nil
}
