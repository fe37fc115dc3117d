// internal/domain/subscription/dto.go
package subscription

type SubscribeRequest struct {
	PlanID          int64  `json:"plan_id" binding:"required"`
	DiscountCode    string `json:"discount_code"`
	AutoRenewal     bool   `json:"auto_renewal"`
	PaymentMethodID string `json:"payment_method_id"`
}

type ConvertTrialRequest struct {
	PaymentMethodID string `json:"payment_method_id"`
}

type CancelRequest struct {
	AtPeriodEnd *bool  `json:"at_period_end"`
	Reason      string `json:"reason"`
}

type ChangePlanRequest struct {
	NewPlanID int64 `json:"new_plan_id" binding:"required"`
}

type ApplyDiscountRequest struct {
	Code string `json:"code" binding:"required"`
}
