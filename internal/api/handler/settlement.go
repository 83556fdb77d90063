package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ayo6706/screening-settlement/internal/api/middleware"
	"github.com/ayo6706/screening-settlement/internal/domain"
	"github.com/ayo6706/screening-settlement/internal/models"
	"github.com/ayo6706/screening-settlement/internal/repository"
	"github.com/ayo6706/screening-settlement/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Runner triggers settlement jobs. *service.Settlement satisfies it.
type Runner interface {
	RunJob(ctx context.Context, job string, referenceDate time.Time, opts service.RunOptions) (service.RunSummary, error)
}

// Reader serves the read-only settlement views. *repository.Repository satisfies it.
type Reader interface {
	GetCampaign(ctx context.Context, id uuid.UUID) (models.Campaign, error)
	ListRuns(ctx context.Context, job string, limit int) ([]models.SettlementRun, error)
	ListPayouts(ctx context.Context, campaignID uuid.UUID) ([]models.PayoutRecord, error)
	ListContributions(ctx context.Context, campaignID uuid.UUID) ([]models.Contribution, error)
	AuditTrail(ctx context.Context, entityType string, entityID uuid.UUID) ([]models.AuditEntry, error)
}

// SettlementHandler exposes the admin trigger surface and settlement read views.
type SettlementHandler struct {
	runner Runner
	reader Reader
	loc    *time.Location
	now    func() time.Time
}

func NewSettlementHandler(runner Runner, reader Reader, loc *time.Location) *SettlementHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &SettlementHandler{runner: runner, reader: reader, loc: loc, now: time.Now}
}

// TriggerRun handles POST /v1/admin/runs/{job}?date=YYYY-MM-DD&retry_errors=true.
// date defaults to yesterday in the settlement time zone.
func (h *SettlementHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	job := chi.URLParam(r, "job")
	if !domain.IsJob(job) {
		RespondError(w, r, http.StatusNotFound, "settlement/unknown-job", "unknown job "+strconv.Quote(job))
		return
	}

	referenceDate := domain.Yesterday(h.now(), h.loc)
	if v := strings.TrimSpace(r.URL.Query().Get("date")); v != "" {
		parsed, err := domain.ParseReferenceDate(v)
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-date", "date must be YYYY-MM-DD")
			return
		}
		referenceDate = parsed
	}

	var opts service.RunOptions
	if v := strings.TrimSpace(r.URL.Query().Get("retry_errors")); v != "" {
		retry, err := strconv.ParseBool(v)
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-retry-errors", "retry_errors must be a boolean")
			return
		}
		if retry && job != domain.JobRefunds {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-retry-errors", "retry_errors only applies to refunds")
			return
		}
		opts.RetryErrors = retry
	}

	log := zap.L().With(
		zap.String("job", job),
		zap.String("reference_date", referenceDate.Format(domain.DateLayout)),
		zap.String("operator", middleware.OperatorFromContext(r.Context())),
	)
	log.Info("manual settlement run requested", zap.Bool("retry_errors", opts.RetryErrors))

	// A disconnecting client does not abort a run that already started.
	summary, err := h.runner.RunJob(context.WithoutCancel(r.Context()), job, referenceDate, opts)
	switch {
	case err == nil:
		RespondJSON(w, http.StatusOK, summary)
	case errors.Is(err, service.ErrRunInProgress):
		RespondError(w, r, http.StatusConflict, "settlement/run-in-progress", "a "+job+" run is already in progress")
	case errors.Is(err, service.ErrUnknownJob):
		RespondError(w, r, http.StatusNotFound, "settlement/unknown-job", err.Error())
	default:
		if status, problemType, message, ok := mapDBError(err); ok {
			RespondError(w, r, status, problemType, message)
			return
		}
		log.Error("manual settlement run failed", zap.Error(err))
		if summary.RunID != uuid.Nil {
			RespondJSON(w, http.StatusInternalServerError, summary)
			return
		}
		RespondError(w, r, http.StatusInternalServerError, "settlement/run-failed", "settlement run failed")
	}
}

// ListRuns handles GET /v1/admin/runs?job=&limit=.
func (h *SettlementHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	job := strings.TrimSpace(r.URL.Query().Get("job"))
	if job != "" && !domain.IsJob(job) {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-job", "unknown job "+strconv.Quote(job))
		return
	}
	limit := 50
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > 200 {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-limit", "limit must be between 1 and 200")
			return
		}
		limit = parsed
	}

	runs, err := h.reader.ListRuns(r.Context(), job, limit)
	if err != nil {
		zap.L().Error("list settlement runs failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "settlement/runs-read-failed", "Failed to list settlement runs")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"items": runs,
		"limit": limit,
		"count": len(runs),
	})
}

// ListPayouts handles GET /v1/campaigns/{id}/payouts.
func (h *SettlementHandler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	campaign, ok := h.campaign(w, r)
	if !ok {
		return
	}
	payouts, err := h.reader.ListPayouts(r.Context(), campaign.ID)
	if err != nil {
		zap.L().Error("list payouts failed", zap.String("campaign_id", campaign.ID.String()), zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "payout/read-failed", "Failed to list payouts")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"campaign": campaign,
		"items":    payouts,
	})
}

// ListRefunds handles GET /v1/campaigns/{id}/refunds.
func (h *SettlementHandler) ListRefunds(w http.ResponseWriter, r *http.Request) {
	campaign, ok := h.campaign(w, r)
	if !ok {
		return
	}
	contributions, err := h.reader.ListContributions(r.Context(), campaign.ID)
	if err != nil {
		zap.L().Error("list contributions failed", zap.String("campaign_id", campaign.ID.String()), zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "refund/read-failed", "Failed to list refunds")
		return
	}
	counts := make(map[string]int)
	for _, c := range contributions {
		counts[c.State]++
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"campaign": campaign,
		"items":    contributions,
		"states":   counts,
	})
}

// AuditTrail handles GET /v1/campaigns/{id}/audit.
func (h *SettlementHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	campaign, ok := h.campaign(w, r)
	if !ok {
		return
	}
	entries, err := h.reader.AuditTrail(r.Context(), repository.EntityCampaign, campaign.ID)
	if err != nil {
		zap.L().Error("read audit trail failed", zap.String("campaign_id", campaign.ID.String()), zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "audit/read-failed", "Failed to read audit trail")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (h *SettlementHandler) campaign(w http.ResponseWriter, r *http.Request) (models.Campaign, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-campaign-id", "Invalid campaign ID")
		return models.Campaign{}, false
	}
	campaign, err := h.reader.GetCampaign(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		RespondError(w, r, http.StatusNotFound, "campaign/not-found", "Campaign not found")
		return models.Campaign{}, false
	}
	if err != nil {
		zap.L().Error("get campaign failed", zap.String("campaign_id", id.String()), zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "campaign/read-failed", "Failed to read campaign")
		return models.Campaign{}, false
	}
	return campaign, true
}
