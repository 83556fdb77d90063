package service

import (
	"context"
	"errors"
	"time"

	"github.com/ayo6706/screening-settlement/internal/domain"
	"github.com/ayo6706/screening-settlement/internal/events"
	"github.com/ayo6706/screening-settlement/internal/gateway"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outcome is the result of one unit of work.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// Skip reasons reported on units that did no work.
const (
	skipAlreadySettled = "already-settled"
	skipClaimHeld      = "claim-held"
	skipCanceled       = "canceled"
	skipStatMissing    = "stat-missing"
)

// reasonTransitionRefused marks a campaign whose listed status does not allow
// the classified outcome.
const reasonTransitionRefused = "transition-refused"

const publishTimeout = 5 * time.Second

// UnitResult is what one campaign or contribution produced.
type UnitResult struct {
	ID      uuid.UUID
	Outcome Outcome
	Reason  string
	Err     error
}

// UnitError is a failed or skipped unit as reported in a run summary.
type UnitError struct {
	ID      uuid.UUID `json:"id"`
	Outcome Outcome   `json:"outcome"`
	Reason  string    `json:"reason,omitempty"`
	Message string    `json:"message,omitempty"`
}

// RunSummary aggregates every unit of a run. No unit short-circuits the others.
type RunSummary struct {
	RunID         uuid.UUID   `json:"run_id"`
	Job           string      `json:"job"`
	ReferenceDate string      `json:"reference_date"`
	Total         int         `json:"total"`
	Succeeded     int         `json:"succeeded"`
	Failed        int         `json:"failed"`
	Skipped       int         `json:"skipped"`
	Recovered     int         `json:"recovered,omitempty"`
	Errors        []UnitError `json:"errors,omitempty"`
	Error         string      `json:"error,omitempty"`
}

func summarize(job string, referenceDate time.Time, results []UnitResult) RunSummary {
	s := RunSummary{
		Job:           job,
		ReferenceDate: referenceDate.Format(domain.DateLayout),
		Total:         len(results),
	}
	for _, r := range results {
		switch r.Outcome {
		case OutcomeSucceeded:
			s.Succeeded++
			continue
		case OutcomeFailed:
			s.Failed++
		default:
			s.Skipped++
		}
		ue := UnitError{ID: r.ID, Outcome: r.Outcome, Reason: r.Reason}
		if r.Err != nil {
			ue.Message = r.Err.Error()
		}
		s.Errors = append(s.Errors, ue)
	}
	return s
}

func succeeded(id uuid.UUID) UnitResult {
	return UnitResult{ID: id, Outcome: OutcomeSucceeded}
}

func skipped(id uuid.UUID, reason string) UnitResult {
	return UnitResult{ID: id, Outcome: OutcomeSkipped, Reason: reason}
}

func failed(id uuid.UUID, err error) UnitResult {
	return UnitResult{ID: id, Outcome: OutcomeFailed, Reason: domain.FailureReason(err), Err: err}
}

// harness performs the call-once step shared by payouts and refunds: one
// gateway call under a timeout, its answer mapped onto the error taxonomy.
type harness struct {
	gateway     gateway.Gateway
	successCode string
	timeout     time.Duration
	currency    string
	publisher   events.Publisher
}

// transfer returns the transaction reference on success. Failures are a
// *domain.GatewayError for a non-success code or a *domain.TransportError.
func (h *harness) transfer(ctx context.Context, req gateway.TransferRequest) (string, error) {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	if req.Currency == "" {
		req.Currency = h.currency
	}

	resp, err := h.gateway.Transfer(ctx, req)
	if err != nil {
		var tr *domain.TransportError
		if errors.As(err, &tr) {
			return "", err
		}
		timeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
		return "", &domain.TransportError{Timeout: timeout, Err: err}
	}
	if resp.Code != h.successCode {
		return "", &domain.GatewayError{Code: resp.Code}
	}
	return resp.TransactionRef, nil
}

// publish emits a settlement event after commit. Delivery failures are logged only.
func (h *harness) publish(ctx context.Context, eventType, key string, data any) {
	if h.publisher == nil {
		return
	}
	payload, err := events.Encode(eventType, data)
	if err != nil {
		zap.L().Warn("failed to encode settlement event", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := h.publisher.Publish(ctx, eventType, payload, key); err != nil {
		zap.L().Warn("failed to publish settlement event",
			zap.String("event_type", eventType),
			zap.String("key", key),
			zap.Error(err),
		)
	}
}
