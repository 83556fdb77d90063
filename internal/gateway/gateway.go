package gateway

import (
	"context"
)

// DefaultSuccessCode is the response code the Finance Gateway returns for an accepted transfer.
const DefaultSuccessCode = "0000"

// TransferRequest moves Amount (minor units) from SourceAccount to DestinationAccount.
// CorrelationID is stable across retries of the same unit of work.
type TransferRequest struct {
	SourceAccount      string
	DestinationAccount string
	DestinationBank    string
	Amount             int64
	Currency           string
	CorrelationID      string
}

// TransferResponse is the gateway's answer to a transfer. Code is compared
// against the configured success code by the caller.
type TransferResponse struct {
	Code           string
	TransactionRef string
}

// Gateway represents the external Finance Gateway.
type Gateway interface {
	// Transfer submits a single transfer. Transport failures, timeouts and 5xx
	// responses are returned as *domain.TransportError.
	Transfer(ctx context.Context, req TransferRequest) (TransferResponse, error)
}
