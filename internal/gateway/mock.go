package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/ayo6706/screening-settlement/internal/domain"
)

// MockGateway stands in for the Finance Gateway when GATEWAY_MOCK is set.
// Transfers take a random delay and a share of them is declined.
type MockGateway struct {
	// FailureRate is the probability (0.0 to 1.0) that a transfer is declined with DeclineCode.
	FailureRate float64
	MinDelay    time.Duration
	MaxDelay    time.Duration
	SuccessCode string
	DeclineCode string
}

func NewMockGateway() *MockGateway {
	return &MockGateway{
		FailureRate: 0.1,
		MinDelay:    200 * time.Millisecond,
		MaxDelay:    800 * time.Millisecond,
		SuccessCode: DefaultSuccessCode,
		DeclineCode: "9001",
	}
}

func (g *MockGateway) Transfer(ctx context.Context, req TransferRequest) (TransferResponse, error) {
	if err := g.wait(ctx); err != nil {
		return TransferResponse{}, &domain.TransportError{Timeout: true, Err: fmt.Errorf("mock transfer %s: %w", req.CorrelationID, err)}
	}
	if g.FailureRate > 0 && rand.Float64() < g.FailureRate {
		return TransferResponse{Code: orDefault(g.DeclineCode, "9001")}, nil
	}
	return TransferResponse{
		Code:           orDefault(g.SuccessCode, DefaultSuccessCode),
		TransactionRef: fmt.Sprintf("MOCK-%s-%06d", time.Now().UTC().Format("20060102"), rand.Intn(1_000_000)),
	}, nil
}

func (g *MockGateway) wait(ctx context.Context) error {
	delay := g.MinDelay
	if span := g.MaxDelay - g.MinDelay; span > 0 {
		delay += time.Duration(rand.Int63n(int64(span)))
	}
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
