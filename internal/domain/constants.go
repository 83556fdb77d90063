package domain

const (
	// Campaign lifecycle statuses.
	CampaignStatusEvaluating = "EVALUATING"
	CampaignStatusActive     = "ACTIVE"
	CampaignStatusSucceeded  = "SUCCEEDED"
	CampaignStatusFailed     = "FAILED"

	// Contribution states. REFUNDING is the in-flight claim held by a refund run.
	ContributionStateSuccess   = "SUCCESS"
	ContributionStateRefunding = "REFUNDING"
	ContributionStateRefunded  = "REFUNDED"
	ContributionStateError     = "ERROR"

	// Payout record states. PENDING is the in-flight claim held by a payout run.
	PayoutStatePending = "PENDING"
	PayoutStateSuccess = "SUCCESS"
	PayoutStateError   = "ERROR"

	// Settlement run ledger statuses.
	RunStatusRunning   = "RUNNING"
	RunStatusCompleted = "COMPLETED"
	RunStatusFailed    = "FAILED"

	// Jobs exposed by the trigger surface.
	JobClassify  = "classify"
	JobPayouts   = "payouts"
	JobRefunds   = "refunds"
	JobReconcile = "reconcile"

	// Failure reasons persisted on payout records and contributions.
	ReasonAccountMissing        = "account-missing"
	ReasonHoldingAccountMissing = "holding-account-missing"
	ReasonPriceMissing          = "price-missing"
	ReasonAmountMissing         = "amount-missing"
	ReasonVenueUnresolved       = "venue-unresolved"
	ReasonGatewayTimeout        = "gateway-timeout"
	ReasonGatewayUnavailable    = "gateway-unavailable"
	ReasonGatewayDeclined       = "gateway-declined"
	ReasonClaimAbandoned        = "claim-abandoned"

	// OtherVenueChain is the routing key for venues outside the known chains.
	OtherVenueChain = "other"

	DateLayout = "2006-01-02"
)

// Jobs lists the trigger surface in dependency order.
var Jobs = []string{JobClassify, JobPayouts, JobRefunds, JobReconcile}

// IsJob reports whether name is a known job.
func IsJob(name string) bool {
	for _, j := range Jobs {
		if j == name {
			return true
		}
	}
	return false
}
