package domain

import (
	"fmt"
	"strings"
	"time"
)

// Classify decides the terminal status of an expired campaign.
// A campaign that reached its target exactly has succeeded.
func Classify(participantCount, target int64) string {
	if participantCount >= target {
		return CampaignStatusSucceeded
	}
	return CampaignStatusFailed
}

var campaignTransitions = map[string]map[string]struct{}{
	CampaignStatusEvaluating: {
		CampaignStatusActive: {},
	},
	CampaignStatusActive: {
		CampaignStatusSucceeded: {},
		CampaignStatusFailed:    {},
	},
	CampaignStatusSucceeded: {},
	CampaignStatusFailed:    {},
}

func normalizeStatus(status string) string {
	return strings.ToUpper(strings.TrimSpace(status))
}

// CanTransitionCampaign reports whether current -> next is an allowed lifecycle move.
func CanTransitionCampaign(current, next string) bool {
	nextStates, ok := campaignTransitions[normalizeStatus(current)]
	if !ok {
		return false
	}
	_, ok = nextStates[normalizeStatus(next)]
	return ok
}

// IsTerminalCampaignStatus reports whether no further transition is permitted.
func IsTerminalCampaignStatus(status string) bool {
	s := normalizeStatus(status)
	return s == CampaignStatusSucceeded || s == CampaignStatusFailed
}

// ParseReferenceDate parses a YYYY-MM-DD date into midnight UTC.
func ParseReferenceDate(value string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid reference date %q: %w", value, err)
	}
	return d, nil
}

// Yesterday returns the calendar day before now in loc as midnight UTC.
func Yesterday(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc).AddDate(0, 0, -1)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// CorrelationID builds the deterministic gateway correlation id for a unit of work.
func CorrelationID(kind string, id fmt.Stringer) string {
	return kind + ":" + id.String()
}
