// internal/domain/discount/dto.go
package discount

import (
	"github.com/shopspring/decimal"
)

// Snapshot freezes the pricing-relevant fields of a code at validation time so
// a later application is independent of subsequent edits to the code row.
type Snapshot struct {
	CodeID           int64           `json:"code_id"`
	Code             string          `json:"code"`
	DiscountType     DiscountType    `json:"discount_type"`
	DiscountValue    decimal.Decimal `json:"discount_value"`
	IsRecurring      bool            `json:"is_recurring"`
	MaxRecurringUses int             `json:"max_recurring_uses"`
}

// ValidationResult is the outcome of validating a code against a plan, an
// amount and a redeeming user.
type ValidationResult struct {
	Valid          bool            `json:"valid"`
	Reason         string          `json:"reason,omitempty"`
	Snapshot       *Snapshot       `json:"snapshot,omitempty"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
}

type CreateCodeRequest struct {
	Code              string          `json:"code" binding:"required"`
	Description       string          `json:"description"`
	DiscountType      DiscountType    `json:"discount_type" binding:"required,oneof=percentage fixed_amount"`
	DiscountValue     decimal.Decimal `json:"discount_value" binding:"required"`
	ValidFrom         string          `json:"valid_from"`
	ValidUntil        string          `json:"valid_until"`
	MaxUsages         *int32          `json:"max_usages"`
	UsesPerUser       *int32          `json:"uses_per_user"`
	MinPurchaseAmount *decimal.Decimal `json:"min_purchase_amount"`
	ApplicablePlans   []int64         `json:"applicable_plans"`
	IsRecurring       bool            `json:"is_recurring"`
	MaxRecurringUses  int             `json:"max_recurring_uses"`
}

type ValidateCodeRequest struct {
	Code   string          `json:"code" binding:"required"`
	PlanID int64           `json:"plan_id" binding:"required"`
	Amount decimal.Decimal `json:"amount"`
}
