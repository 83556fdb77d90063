package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ayo6706/screening-settlement/internal/api"
	"github.com/ayo6706/screening-settlement/internal/api/middleware"
	"github.com/ayo6706/screening-settlement/internal/config"
	"github.com/ayo6706/screening-settlement/internal/domain"
	"github.com/ayo6706/screening-settlement/internal/models"
	"github.com/ayo6706/screening-settlement/internal/repository"
	"github.com/ayo6706/screening-settlement/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testJWTSecret   = "test-secret-0123456789-test-secret"
	testJWTIssuer   = "screening-settlement-test"
	testJWTAudience = "settlement-admin-test"
)

type runCall struct {
	job  string
	date time.Time
	opts service.RunOptions
}

type fakeRunner struct {
	calls []runCall
	err   error
}

func (f *fakeRunner) RunJob(_ context.Context, job string, referenceDate time.Time, opts service.RunOptions) (service.RunSummary, error) {
	f.calls = append(f.calls, runCall{job: job, date: referenceDate, opts: opts})
	if f.err != nil {
		return service.RunSummary{}, f.err
	}
	return service.RunSummary{
		RunID:         uuid.New(),
		Job:           job,
		ReferenceDate: referenceDate.Format(domain.DateLayout),
		Total:         2,
		Succeeded:     2,
	}, nil
}

type fakeReader struct {
	campaigns     map[uuid.UUID]models.Campaign
	payouts       []models.PayoutRecord
	contributions []models.Contribution
	runs          []models.SettlementRun
	runsJob       string
	runsLimit     int
}

func (f *fakeReader) GetCampaign(_ context.Context, id uuid.UUID) (models.Campaign, error) {
	c, ok := f.campaigns[id]
	if !ok {
		return models.Campaign{}, fmt.Errorf("get campaign %s: %w", id, repository.ErrNotFound)
	}
	return c, nil
}

func (f *fakeReader) ListRuns(_ context.Context, job string, limit int) ([]models.SettlementRun, error) {
	f.runsJob, f.runsLimit = job, limit
	return f.runs, nil
}

func (f *fakeReader) ListPayouts(context.Context, uuid.UUID) ([]models.PayoutRecord, error) {
	return f.payouts, nil
}

func (f *fakeReader) ListContributions(context.Context, uuid.UUID) ([]models.Contribution, error) {
	return f.contributions, nil
}

func (f *fakeReader) AuditTrail(context.Context, string, uuid.UUID) ([]models.AuditEntry, error) {
	return nil, nil
}

func setupAPI(runner *fakeRunner, reader *fakeReader) (chi.Router, *middleware.Authenticator) {
	cfg := &config.Config{
		JWTSecret:         testJWTSecret,
		JWTIssuer:         testJWTIssuer,
		JWTAudience:       testJWTAudience,
		Location:          time.UTC,
		AdminRateLimitRPS: 1000,
	}
	router := api.NewRouter(cfg, zap.NewNop(), nil, nil, runner, reader)
	return router.Routes(), router.Authenticator()
}

func do(t *testing.T, h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func adminToken(t *testing.T, auth *middleware.Authenticator) string {
	t.Helper()
	token, err := auth.IssueToken("ops@example.com", middleware.RoleAdmin, time.Hour)
	require.NoError(t, err)
	return token
}

func TestRFC7807ProblemDetails(t *testing.T) {
	h, _ := setupAPI(&fakeRunner{}, &fakeReader{})

	w := do(t, h, http.MethodPost, "/v1/admin/runs/payouts", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body["type"])
	assert.Equal(t, float64(http.StatusUnauthorized), body["status"])
	assert.Equal(t, "/v1/admin/runs/payouts", body["instance"])
	assert.NotEmpty(t, body["trace_id"])
}

func TestTriggerRunRequiresAdminRole(t *testing.T) {
	runner := &fakeRunner{}
	h, auth := setupAPI(runner, &fakeReader{})

	token, err := auth.IssueToken("viewer@example.com", "viewer", time.Hour)
	require.NoError(t, err)

	w := do(t, h, http.MethodPost, "/v1/admin/runs/payouts?date=2026-10-15", token)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, runner.calls)
}

func TestTriggerRunRejectsForeignToken(t *testing.T) {
	h, _ := setupAPI(&fakeRunner{}, &fakeReader{})
	other := middleware.NewAuthenticator("another-secret-0123456789-another", testJWTIssuer, testJWTAudience)
	token, err := other.IssueToken("ops@example.com", middleware.RoleAdmin, time.Hour)
	require.NoError(t, err)

	w := do(t, h, http.MethodPost, "/v1/admin/runs/payouts", token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTriggerRun(t *testing.T) {
	runner := &fakeRunner{}
	h, auth := setupAPI(runner, &fakeReader{})
	token := adminToken(t, auth)

	w := do(t, h, http.MethodPost, "/v1/admin/runs/refunds?date=2026-10-15&retry_errors=true", token)
	require.Equal(t, http.StatusOK, w.Code)

	var summary service.RunSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, "refunds", summary.Job)
	assert.Equal(t, "2026-10-15", summary.ReferenceDate)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, domain.JobRefunds, runner.calls[0].job)
	assert.True(t, runner.calls[0].opts.RetryErrors)
	assert.Equal(t, time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), runner.calls[0].date)
}

func TestTriggerRunDefaultsToYesterday(t *testing.T) {
	runner := &fakeRunner{}
	h, auth := setupAPI(runner, &fakeReader{})

	w := do(t, h, http.MethodPost, "/v1/admin/runs/classify", adminToken(t, auth))
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, runner.calls, 1)

	want := domain.Yesterday(time.Now(), time.UTC)
	assert.Equal(t, want.Format(domain.DateLayout), runner.calls[0].date.Format(domain.DateLayout))
}

func TestTriggerRunValidation(t *testing.T) {
	cases := []struct {
		name string
		path string
		code int
	}{
		{name: "unknown job", path: "/v1/admin/runs/settle-everything", code: http.StatusNotFound},
		{name: "bad date", path: "/v1/admin/runs/payouts?date=15-10-2026", code: http.StatusBadRequest},
		{name: "bad retry flag", path: "/v1/admin/runs/refunds?retry_errors=maybe", code: http.StatusBadRequest},
		{name: "retry on payouts", path: "/v1/admin/runs/payouts?retry_errors=true", code: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runner := &fakeRunner{}
			h, auth := setupAPI(runner, &fakeReader{})
			w := do(t, h, http.MethodPost, tc.path, adminToken(t, auth))
			assert.Equal(t, tc.code, w.Code)
			assert.Empty(t, runner.calls)
		})
	}
}

func TestTriggerRunInProgress(t *testing.T) {
	runner := &fakeRunner{err: service.ErrRunInProgress}
	h, auth := setupAPI(runner, &fakeReader{})

	w := do(t, h, http.MethodPost, "/v1/admin/runs/payouts", adminToken(t, auth))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTriggerRunFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("scan failed")}
	h, auth := setupAPI(runner, &fakeReader{})

	w := do(t, h, http.MethodPost, "/v1/admin/runs/payouts", adminToken(t, auth))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")
}

func TestListRuns(t *testing.T) {
	reader := &fakeReader{runs: []models.SettlementRun{{ID: uuid.New(), Job: domain.JobPayouts, Status: domain.RunStatusCompleted}}}
	h, auth := setupAPI(&fakeRunner{}, reader)
	token := adminToken(t, auth)

	w := do(t, h, http.MethodGet, "/v1/admin/runs?job=payouts&limit=5", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "payouts", reader.runsJob)
	assert.Equal(t, 5, reader.runsLimit)

	var body struct {
		Items []models.SettlementRun `json:"items"`
		Count int                    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)

	w = do(t, h, http.MethodGet, "/v1/admin/runs?limit=0", token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, h, http.MethodGet, "/v1/admin/runs?job=bogus", token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCampaignViews(t *testing.T) {
	campaignID := uuid.New()
	reason := domain.ReasonAccountMissing
	reader := &fakeReader{
		campaigns: map[uuid.UUID]models.Campaign{campaignID: {ID: campaignID, Status: domain.CampaignStatusFailed}},
		contributions: []models.Contribution{
			{ID: uuid.New(), CampaignID: campaignID, State: domain.ContributionStateRefunded},
			{ID: uuid.New(), CampaignID: campaignID, State: domain.ContributionStateRefunded},
			{ID: uuid.New(), CampaignID: campaignID, State: domain.ContributionStateError, FailureReason: &reason},
		},
	}
	h, auth := setupAPI(&fakeRunner{}, reader)
	token := adminToken(t, auth)

	w := do(t, h, http.MethodGet, "/v1/campaigns/"+campaignID.String()+"/refunds", token)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		States map[string]int `json:"states"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.States[domain.ContributionStateRefunded])
	assert.Equal(t, 1, body.States[domain.ContributionStateError])

	w = do(t, h, http.MethodGet, "/v1/campaigns/"+campaignID.String()+"/payouts", token)
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(t, h, http.MethodGet, "/v1/campaigns/"+campaignID.String()+"/audit", token)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/v1/campaigns/"+uuid.NewString()+"/payouts", token)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, h, http.MethodGet, "/v1/campaigns/not-a-uuid/payouts", token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthAndDocs(t *testing.T) {
	h, _ := setupAPI(&fakeRunner{}, &fakeReader{})

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health/live", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health/ready", "").Code)

	w := do(t, h, http.MethodGet, "/openapi.yaml", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/v1/admin/runs/{job}")
}
