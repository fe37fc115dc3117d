// internal/domain/subscription/entity.go
package subscription

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"kalenda-billing/internal/domain/discount"
)

type Status string

const (
	StatusTrial    Status = "trial"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
)

// Subscription is a business's recurring billing agreement. Superseded
// subscriptions persist as history; rows are never physically deleted.
type Subscription struct {
	ID        int64  `json:"id" db:"id"`
	Reference string `json:"reference" db:"reference"`

	// Related entities
	BusinessID    int64         `json:"business_id" db:"business_id"`
	PlanID        int64         `json:"plan_id" db:"plan_id"`
	PendingPlanID sql.NullInt64 `json:"pending_plan_id,omitempty" db:"pending_plan_id"`

	// Status
	Status            Status       `json:"status" db:"status"`
	CancelAtPeriodEnd bool         `json:"cancel_at_period_end" db:"cancel_at_period_end"`
	CanceledAt        sql.NullTime `json:"canceled_at,omitempty" db:"canceled_at"`

	// Billing period
	CurrentPeriodStart time.Time    `json:"current_period_start" db:"current_period_start"`
	CurrentPeriodEnd   time.Time    `json:"current_period_end" db:"current_period_end"`
	TrialStart         sql.NullTime `json:"trial_start,omitempty" db:"trial_start"`
	TrialEnd           sql.NullTime `json:"trial_end,omitempty" db:"trial_end"`

	// Renewal
	AutoRenewal        bool           `json:"auto_renewal" db:"auto_renewal"`
	PaymentMethodID    sql.NullString `json:"payment_method_id,omitempty" db:"payment_method_id"`
	NextBillingDate    sql.NullTime   `json:"next_billing_date,omitempty" db:"next_billing_date"`
	FailedPaymentCount int            `json:"failed_payment_count" db:"failed_payment_count"`

	Currency string `json:"currency" db:"currency"`

	// Optimistic concurrency token; bumped on every update.
	Version int64 `json:"-" db:"version"`

	// Timestamps
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsLive reports whether this subscription counts against the one-live-
// subscription-per-business invariant.
func (s *Subscription) IsLive() bool {
	switch s.Status {
	case StatusTrial, StatusActive, StatusPastDue:
		return true
	}
	return false
}

func (s *Subscription) IsTrial() bool {
	return s.Status == StatusTrial
}

// PendingCancel reports whether the subscription is canceled but still usable
// until the period ends.
func (s *Subscription) PendingCancel() bool {
	return s.Status == StatusCanceled && s.CancelAtPeriodEnd
}

// UsableAt reports whether the business retains service access at the given
// time. A pending-cancel subscription stays usable to its period end.
func (s *Subscription) UsableAt(now time.Time) bool {
	if s.IsLive() {
		return true
	}
	return s.PendingCancel() && now.Before(s.CurrentPeriodEnd)
}

// TrialEndedAt reports whether the trial window has lapsed at the given time.
func (s *Subscription) TrialEndedAt(now time.Time) bool {
	return s.TrialEnd.Valid && !now.Before(s.TrialEnd.Time)
}

// PendingDiscount is a validated discount attached to a subscription for one
// or more future billing events. It is a typed row of its own (one per
// subscription), decoupled from the live discount-code row by freezing the
// type and value at validation time.
type PendingDiscount struct {
	ID             int64 `json:"id" db:"id"`
	SubscriptionID int64 `json:"subscription_id" db:"subscription_id"`

	// Frozen snapshot
	CodeID        int64                 `json:"code_id" db:"code_id"`
	Code          string                `json:"code" db:"code"`
	DiscountType  discount.DiscountType `json:"discount_type" db:"discount_type"`
	DiscountValue decimal.Decimal       `json:"discount_value" db:"discount_value"`

	IsRecurring   bool `json:"is_recurring" db:"is_recurring"`
	RemainingUses int  `json:"remaining_uses" db:"remaining_uses"`

	// References of payments this discount already applied to (audit trail).
	AppliedPaymentRefs pq.StringArray `json:"applied_payment_refs,omitempty" db:"applied_payment_refs"`

	ValidatedAt time.Time `json:"validated_at" db:"validated_at"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Exhausted reports whether the pending discount is terminal. The row is kept
// for audit once terminal.
func (p *PendingDiscount) Exhausted() bool {
	return p.RemainingUses <= 0
}
