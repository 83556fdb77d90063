package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ayo6706/screening-settlement/internal/domain"
	"github.com/ayo6706/screening-settlement/internal/observability"
	"go.uber.org/zap"
)

const transfersPath = "/v1/transfers"

// HTTPGateway talks to the Finance Gateway over JSON/HTTP.
type HTTPGateway struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client
}

type transferPayload struct {
	SourceAccount      string `json:"source_account"`
	DestinationAccount string `json:"destination_account"`
	DestinationBank    string `json:"destination_bank,omitempty"`
	Amount             string `json:"amount"`
	Currency           string `json:"currency"`
	CorrelationID      string `json:"correlation_id"`
}

type transferReply struct {
	Code           string `json:"code"`
	TransactionRef string `json:"transaction_ref"`
	Message        string `json:"message"`
}

// NewHTTPGateway creates a client. timeout bounds each Transfer call.
func NewHTTPGateway(baseURL, apiKey string, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: timeout,
		client:  &http.Client{},
	}
}

// Transfer posts a single transfer. Non-success codes in a 2xx/4xx body are
// returned as a response; the caller decides what counts as success.
func (g *HTTPGateway) Transfer(ctx context.Context, req TransferRequest) (TransferResponse, error) {
	start := time.Now()
	resp, err := g.transfer(ctx, req)
	result := "ok"
	if err != nil {
		result = "transport_error"
	}
	observability.ObserveGatewayTransfer(result, time.Since(start))
	return resp, err
}

func (g *HTTPGateway) transfer(ctx context.Context, req TransferRequest) (TransferResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	body, err := json.Marshal(transferPayload{
		SourceAccount:      req.SourceAccount,
		DestinationAccount: req.DestinationAccount,
		DestinationBank:    req.DestinationBank,
		Amount:             domain.NewMoney(req.Amount, req.Currency).ToDecimal().String(),
		Currency:           req.Currency,
		CorrelationID:      req.CorrelationID,
	})
	if err != nil {
		return TransferResponse{}, fmt.Errorf("failed to marshal transfer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+transfersPath, bytes.NewReader(body))
	if err != nil {
		return TransferResponse{}, fmt.Errorf("failed to build transfer request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.CorrelationID)
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return TransferResponse{}, &domain.TransportError{Timeout: isTimeout(err), Err: err}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return TransferResponse{}, &domain.TransportError{Timeout: isTimeout(err), Err: fmt.Errorf("read response: %w", err)}
	}

	if httpResp.StatusCode >= http.StatusInternalServerError {
		return TransferResponse{}, &domain.TransportError{Err: fmt.Errorf("gateway returned status %d", httpResp.StatusCode)}
	}

	var reply transferReply
	if err := json.Unmarshal(raw, &reply); err != nil || reply.Code == "" {
		zap.L().Warn("unreadable gateway response",
			zap.Int("status", httpResp.StatusCode),
			zap.String("correlation_id", req.CorrelationID),
		)
		return TransferResponse{}, &domain.TransportError{Err: fmt.Errorf("unreadable gateway response (status %d)", httpResp.StatusCode)}
	}

	return TransferResponse{Code: reply.Code, TransactionRef: reply.TransactionRef}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
