// Package models defines the domain types shared by the webhook pipeline:
// orders, customer profiles, the reward ledger, and streaks.
package models

import (
	"errors"
	"time"
)

// PaymentStatus tracks whether an order has been paid for. The only
// transitions this service performs are pending → paid and pending → failed;
// paid is terminal and idempotent once set.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// FulfillmentStatus tracks kitchen-side progress of an order.
type FulfillmentStatus string

const (
	FulfillmentPending        FulfillmentStatus = "pending"
	FulfillmentConfirmed      FulfillmentStatus = "confirmed"
	FulfillmentPreparing      FulfillmentStatus = "preparing"
	FulfillmentReady          FulfillmentStatus = "ready"
	FulfillmentOutForDelivery FulfillmentStatus = "out_for_delivery"
	FulfillmentDelivered      FulfillmentStatus = "delivered"
	FulfillmentCancelled      FulfillmentStatus = "cancelled"
)

// RewardReason tags a ledger entry with why the points were granted.
// At most one reward transaction of a given reason exists per order.
type RewardReason string

const (
	ReasonOrderPoints     RewardReason = "order_points"
	ReasonFirstOrderBonus RewardReason = "first_order_bonus"
	ReasonReferralBonus   RewardReason = "referral_bonus"
	ReasonStreakBonus     RewardReason = "streak_bonus"
)

// CorrelationKeys are the provider-supplied identifiers used to match an
// inbound payment event to a locally known order. A gateway fills in at
// least one of them.
type CorrelationKeys struct {
	PaymentReference string
	WalletID         string
	InvoiceReference string
}

// Empty reports whether no key is set.
func (k CorrelationKeys) Empty() bool {
	return k.PaymentReference == "" && k.WalletID == "" && k.InvoiceReference == ""
}

// Order is one customer purchase attempt. Monetary values are held in kobo
// (the minor unit) so arithmetic stays integer-exact.
type Order struct {
	ID                string
	Number            string
	CustomerEmail     string
	CustomerName      string
	CustomerPhone     string
	TotalKobo         int64
	PaymentStatus     PaymentStatus
	FulfillmentStatus FulfillmentStatus
	PaymentReference  string
	WalletID          string
	InvoiceReference  string
	PromoCode         string
	ReferredBy        string // profile ID of the referring customer, if any
	CreatedAt         time.Time
	PaidAt            *time.Time
}

// Profile is a customer keyed by email. External identifiers stay empty
// until the corresponding system has been told about the customer.
type Profile struct {
	ID            string
	Email         string
	PointsBalance int64
	Tier          string
	CRMID         string
	BankingID     string
	CreatedAt     time.Time
}

// RewardTransaction is one append-only ledger entry.
type RewardTransaction struct {
	ID                int64
	ProfileID         string
	OrderID           string
	Reason            RewardReason
	Points            int64
	ReferredProfileID string // set on referral_bonus rows; keys once-per-referred-customer
	CreatedAt         time.Time
}

// Streak records consecutive-day ordering behaviour for one profile.
type Streak struct {
	ProfileID     string
	Run           int
	LastOrderDate time.Time // date only, UTC
	Completed     bool
}

// AmountAdvisory records a reported-vs-expected amount mismatch for manual
// reconciliation. It never blocks fulfillment.
type AmountAdvisory struct {
	OrderID      string
	Provider     string
	ExpectedKobo int64
	ReportedKobo int64
	CreatedAt    time.Time
}

// RewardAwardParams parameterizes the atomic multi-award ledger operation.
type RewardAwardParams struct {
	OrderID    string
	ProfileID  string
	TotalKobo  int64
	ReferrerID string // empty when the order carries no referral linkage

	KoboPerPoint          int64
	FirstOrderMinKobo     int64
	FirstOrderBonusPoints int64
	ReferralBonusPoints   int64
}

// RewardAwardResult reports what the ledger actually granted. Success=false
// never aborts fulfillment; it is logged and the remaining steps still run.
type RewardAwardResult struct {
	Success           bool
	AlreadyApplied    bool
	PointsAwarded     int64
	FirstOrderBonus   bool
	ReferralProcessed bool
	ErrorMessage      string
}

// Sentinel errors returned by the stores.
var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrProfileNotFound  = errors.New("profile not found")
	ErrPermissionDenied = errors.New("permission denied")
)
