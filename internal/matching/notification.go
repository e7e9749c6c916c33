package matching

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/myhibachi/hibachi-backend/pkg/db/models"
	"github.com/myhibachi/hibachi-backend/pkg/enums"
)

// SenderInfo is whatever identity signal the provider exposed about the payer.
// CustomerPhone is the payer-supplied phone typed into a memo field, distinct
// from the provider-reported sender phone.
type SenderInfo struct {
	Name          string `json:"name,omitempty"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Username      string `json:"username,omitempty"`
	CustomerPhone string `json:"customer_phone,omitempty"`
}

// Notification is a decoded payment signal awaiting reconciliation.
type Notification struct {
	Provider      enums.NotificationProvider
	Amount        decimal.Decimal
	ReceivedAt    time.Time
	ExternalTxnID string
	Sender        SenderInfo
	// Fuzzy widens the amount and time bands to catch friend/family payments
	// that carry a tip or arrive late.
	Fuzzy bool
}

// Outcome is the matcher's decision category.
type Outcome string

const (
	OutcomeMatched Outcome = "matched"
	OutcomeNoMatch Outcome = "no_match"
	OutcomeInvalid Outcome = "invalid"
)

// Match tiers, recorded for audit and metrics.
const (
	TierPhone   = "phone"
	TierWindow  = "window"
	TierScored  = "scored"
	TierClosest = "closest"
)

// MatchResult is the explicit outcome of a matching attempt. Exactly one of
// the three outcomes holds; Payment is set only when Outcome is matched.
type MatchResult struct {
	Outcome Outcome
	Payment *models.Payment
	Tier    string
	Score   int
	Reason  string
}

// Matched reports whether a payment was found.
func (r MatchResult) Matched() bool {
	return r.Outcome == OutcomeMatched
}

func matched(payment *models.Payment, tier string, score int) MatchResult {
	return MatchResult{Outcome: OutcomeMatched, Payment: payment, Tier: tier, Score: score}
}

func noMatch(reason string) MatchResult {
	return MatchResult{Outcome: OutcomeNoMatch, Reason: reason}
}

func invalid(reason string) MatchResult {
	return MatchResult{Outcome: OutcomeInvalid, Reason: reason}
}

// ConfirmResult reports what a confirmed payment did to the booking's deposit
// state. DepositJustMet distinguishes the payment that crossed the threshold
// from later additional payments.
type ConfirmResult struct {
	Payment        *models.Payment
	DepositJustMet bool
	DepositWasMet  bool
	PaidInFull     bool
}
