// internal/domain/discount/entity.go
package discount

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	TypePercentage DiscountType = "percentage"
	TypeFixed      DiscountType = "fixed_amount"
)

// DiscountCode is a redeemable code. Codes are unique case-insensitively and
// stored uppercase; lookups normalize before querying.
type DiscountCode struct {
	ID          int64          `json:"id" db:"id"`
	Code        string         `json:"code" db:"code"`
	Description sql.NullString `json:"description,omitempty" db:"description"`

	// Discount
	DiscountType  DiscountType    `json:"discount_type" db:"discount_type"`
	DiscountValue decimal.Decimal `json:"discount_value" db:"discount_value"`

	// Validity window (open-ended when null)
	ValidFrom  sql.NullTime `json:"valid_from,omitempty" db:"valid_from"`
	ValidUntil sql.NullTime `json:"valid_until,omitempty" db:"valid_until"`

	// Usage limits
	MaxUsages     sql.NullInt32 `json:"max_usages,omitempty" db:"max_usages"`
	CurrentUsages int           `json:"current_usages" db:"current_usages"`
	UsesPerUser   sql.NullInt32 `json:"uses_per_user,omitempty" db:"uses_per_user"`

	// Eligibility
	MinPurchaseAmount decimal.NullDecimal `json:"min_purchase_amount,omitempty" db:"min_purchase_amount"`
	ApplicablePlans   pq.Int64Array       `json:"applicable_plans,omitempty" db:"applicable_plans"`

	// Recurring codes apply to several consecutive billing events
	IsRecurring      bool `json:"is_recurring" db:"is_recurring"`
	MaxRecurringUses int  `json:"max_recurring_uses" db:"max_recurring_uses"`

	IsActive bool `json:"is_active" db:"is_active"`

	// Timestamps
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// AppliesToPlan reports whether the code targets the given plan.
// An empty applicable_plans set means the code applies to all plans.
func (d *DiscountCode) AppliesToPlan(planID int64) bool {
	if len(d.ApplicablePlans) == 0 {
		return true
	}
	for _, id := range d.ApplicablePlans {
		if id == planID {
			return true
		}
	}
	return false
}

// UsagesExhausted reports whether the global redemption cap is reached.
func (d *DiscountCode) UsagesExhausted() bool {
	return d.MaxUsages.Valid && d.CurrentUsages >= int(d.MaxUsages.Int32)
}

// WithinValidity reports whether now falls inside the code's validity window.
func (d *DiscountCode) WithinValidity(now time.Time) bool {
	if d.ValidFrom.Valid && now.Before(d.ValidFrom.Time) {
		return false
	}
	if d.ValidUntil.Valid && now.After(d.ValidUntil.Time) {
		return false
	}
	return true
}

// UsageRecord is an immutable ledger entry written once per application of a
// code, including repeat applications of a recurring code.
type UsageRecord struct {
	ID               int64           `json:"id" db:"id"`
	CodeID           int64           `json:"code_id" db:"code_id"`
	UserID           int64           `json:"user_id" db:"user_id"`
	BusinessID       int64           `json:"business_id" db:"business_id"`
	SubscriptionID   sql.NullInt64   `json:"subscription_id,omitempty" db:"subscription_id"`
	PaymentReference sql.NullString  `json:"payment_reference,omitempty" db:"payment_reference"`
	DiscountAmount   decimal.Decimal `json:"discount_amount" db:"discount_amount"`
	OriginalAmount   decimal.Decimal `json:"original_amount" db:"original_amount"`
	FinalAmount      decimal.Decimal `json:"final_amount" db:"final_amount"`
	AppliedAt        time.Time       `json:"applied_at" db:"applied_at"`
}
