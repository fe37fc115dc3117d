// internal/domain/payment/entity.go
package payment

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// Type tags what billing event a payment attempt belongs to. The pending
// discount guards dispatch on it.
type Type string

const (
	TypeInitial         Type = "initial"
	TypeTrialConversion Type = "trial_conversion"
	TypeRenewal         Type = "renewal"
	TypePlanChange      Type = "plan_change"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Attempt is one charge attempt against the gateway. Immutable once written.
type Attempt struct {
	ID        int64  `json:"id" db:"id"`
	Reference string `json:"reference" db:"reference"`

	SubscriptionID int64 `json:"subscription_id" db:"subscription_id"`
	BusinessID     int64 `json:"business_id" db:"business_id"`

	Type   Type   `json:"type" db:"type"`
	Status Status `json:"status" db:"status"`

	Amount   decimal.Decimal `json:"amount" db:"amount"`
	Currency string          `json:"currency" db:"currency"`

	// Discount snapshot when one applied to this attempt.
	DiscountCode   sql.NullString      `json:"discount_code,omitempty" db:"discount_code"`
	DiscountAmount decimal.NullDecimal `json:"discount_amount,omitempty" db:"discount_amount"`

	RetryCount int `json:"retry_count" db:"retry_count"`
	MaxRetries int `json:"max_retries" db:"max_retries"`

	IdempotencyKey   string         `json:"idempotency_key" db:"idempotency_key"`
	GatewayPaymentID sql.NullString `json:"gateway_payment_id,omitempty" db:"gateway_payment_id"`
	FailureReason    sql.NullString `json:"failure_reason,omitempty" db:"failure_reason"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
