package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ayo6706/screening-settlement/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPGatewayTransferSuccess(t *testing.T) {
	var got transferPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/transfers", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "payout:c1", r.Header.Get("Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(transferReply{Code: "0000", TransactionRef: "TX-1"})
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL+"/", "secret", time.Second)
	resp, err := gw.Transfer(context.Background(), TransferRequest{
		SourceAccount:      "H-1",
		DestinationAccount: "V-1",
		Amount:             1_000_000,
		Currency:           "KRW",
		CorrelationID:      "payout:c1",
	})
	require.NoError(t, err)
	assert.Equal(t, "0000", resp.Code)
	assert.Equal(t, "TX-1", resp.TransactionRef)
	assert.Equal(t, "1000000", got.Amount)
	assert.Equal(t, "H-1", got.SourceAccount)
	assert.Equal(t, "V-1", got.DestinationAccount)
}

func TestHTTPGatewayDeclineIsAResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(transferReply{Code: "E101", Message: "insufficient balance"})
	}))
	defer srv.Close()

	resp, err := NewHTTPGateway(srv.URL, "", time.Second).Transfer(context.Background(), TransferRequest{Amount: 1, Currency: "KRW"})
	require.NoError(t, err)
	assert.Equal(t, "E101", resp.Code)
}

func TestHTTPGatewayServerErrorIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPGateway(srv.URL, "", time.Second).Transfer(context.Background(), TransferRequest{Amount: 1, Currency: "KRW"})
	require.Error(t, err)

	var tr *domain.TransportError
	require.True(t, errors.As(err, &tr))
	assert.False(t, tr.Timeout)
	assert.Equal(t, domain.ReasonGatewayUnavailable, domain.FailureReason(err))
}

func TestHTTPGatewayTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewHTTPGateway(srv.URL, "", 50*time.Millisecond).Transfer(context.Background(), TransferRequest{Amount: 1, Currency: "KRW"})
	require.Error(t, err)
	assert.Equal(t, domain.ReasonGatewayTimeout, domain.FailureReason(err))
}

func TestMockGatewayHonoursCancellation(t *testing.T) {
	gw := NewMockGateway()
	gw.MinDelay = time.Second
	gw.MaxDelay = 2 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gw.Transfer(ctx, TransferRequest{Amount: 1, Currency: "KRW"})
	require.Error(t, err)
	assert.Equal(t, domain.ReasonGatewayTimeout, domain.FailureReason(err))
}

func TestMockGatewayAlwaysSucceedsWithZeroFailureRate(t *testing.T) {
	gw := &MockGateway{FailureRate: 0}
	resp, err := gw.Transfer(context.Background(), TransferRequest{Amount: 1, Currency: "KRW"})
	require.NoError(t, err)
	assert.Equal(t, DefaultSuccessCode, resp.Code)
	assert.NotEmpty(t, resp.TransactionRef)
}
