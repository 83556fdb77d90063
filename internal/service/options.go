package service

import (
	"time"

	"github.com/ayo6706/screening-settlement/internal/domain"
	"github.com/ayo6706/screening-settlement/internal/gateway"
)

// Options carries the settlement tunables shared by every stage.
type Options struct {
	Currency            string
	SuccessCode         string
	GatewayTimeout      time.Duration
	ClaimRecoveryWindow time.Duration
	RunLockTTL          time.Duration
	// PayoutRetryLookbackDays makes a payout run also retry campaigns from that
	// many earlier days whose latest payout failed retryably. Zero disables it.
	PayoutRetryLookbackDays int
}

func (o Options) withDefaults() Options {
	if o.Currency == "" {
		o.Currency = domain.DefaultCurrency
	}
	if o.SuccessCode == "" {
		o.SuccessCode = gateway.DefaultSuccessCode
	}
	if o.GatewayTimeout <= 0 {
		o.GatewayTimeout = 10 * time.Second
	}
	if o.ClaimRecoveryWindow <= 0 {
		o.ClaimRecoveryWindow = defaultClaimRecoveryWindow
	}
	if o.RunLockTTL <= 0 {
		o.RunLockTTL = 2 * time.Hour
	}
	return o
}
