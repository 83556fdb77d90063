package domain

import (
	"errors"
	"fmt"
	"strings"
)

// PreconditionError is detected locally before any network call and is fatal to
// its unit of work.
type PreconditionError struct {
	Reason string
	Detail string
}

func (e *PreconditionError) Error() string {
	if e.Detail == "" {
		return "precondition failed: " + e.Reason
	}
	return fmt.Sprintf("precondition failed: %s: %s", e.Reason, e.Detail)
}

// NewPrecondition builds a PreconditionError with the persisted reason code.
func NewPrecondition(reason, detail string) error {
	return &PreconditionError{Reason: reason, Detail: detail}
}

// GatewayError is a non-success response code from the Finance Gateway.
type GatewayError struct {
	Code string
}

func (e *GatewayError) Error() string {
	return "gateway declined transfer with code " + e.Code
}

// TransportError wraps timeouts, connection failures and 5xx responses.
type TransportError struct {
	Timeout bool
	Err     error
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("gateway timeout: %v", e.Err)
	}
	return fmt.Sprintf("gateway unavailable: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DataIntegrityError marks rows that are missing or in a state the pipeline
// cannot act on. Problem defaults to "missing".
type DataIntegrityError struct {
	Entity  string
	ID      string
	Problem string
}

func (e *DataIntegrityError) Error() string {
	problem := e.Problem
	if problem == "" {
		problem = "missing"
	}
	return fmt.Sprintf("data integrity: %s %s %s", e.Entity, e.ID, problem)
}

// FailureReason maps an error from the taxonomy to the reason code persisted on a record.
func FailureReason(err error) string {
	var pre *PreconditionError
	var gw *GatewayError
	var tr *TransportError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &pre):
		return pre.Reason
	case errors.As(err, &gw):
		return ReasonGatewayDeclined + ":" + gw.Code
	case errors.As(err, &tr):
		if tr.Timeout {
			return ReasonGatewayTimeout
		}
		return ReasonGatewayUnavailable
	default:
		return ReasonGatewayUnavailable
	}
}

// Retryable reports whether a recorded failure may be retried by a later run.
// Precondition failures are not retried automatically; gateway and transport
// failures are.
func Retryable(reason string) bool {
	switch reason {
	case ReasonGatewayTimeout, ReasonGatewayUnavailable, ReasonClaimAbandoned:
		return true
	}
	return strings.HasPrefix(reason, ReasonGatewayDeclined+":")
}
