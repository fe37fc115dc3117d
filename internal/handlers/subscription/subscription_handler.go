// internal/handlers/subscription/subscription_handler.go
package subscription

import (
	"net/http"
	"strconv"

	"kalenda-billing/internal/domain/subscription"
	"kalenda-billing/internal/middleware"
	"kalenda-billing/internal/pkg/response"
	"kalenda-billing/internal/service/billing"

	"github.com/gin-gonic/gin"
)

type SubscriptionHandler struct {
	lifecycle *billing.Lifecycle
}

func NewSubscriptionHandler(lifecycle *billing.Lifecycle) *SubscriptionHandler {
	return &SubscriptionHandler{
		lifecycle: lifecycle,
	}
}

// Subscribe creates a subscription for a business
func (h *SubscriptionHandler) Subscribe(c *gin.Context) {
	businessID, ok := businessIDParam(c)
	if !ok {
		return
	}

	var req subscription.SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	sub, err := h.lifecycle.Subscribe(c.Request.Context(), middleware.Actor(c), businessID, &req)
	if err != nil {
		response.FromError(c, "failed to create subscription", err)
		return
	}

	response.Success(c, http.StatusCreated, "subscription created successfully", sub)
}

// GetCurrent retrieves the business's current subscription
func (h *SubscriptionHandler) GetCurrent(c *gin.Context) {
	businessID, ok := businessIDParam(c)
	if !ok {
		return
	}

	sub, err := h.lifecycle.GetByBusiness(c.Request.Context(), middleware.Actor(c), businessID)
	if err != nil {
		response.FromError(c, "subscription not found", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription retrieved", sub)
}

// ConvertTrial charges the first period and promotes a trial subscription
func (h *SubscriptionHandler) ConvertTrial(c *gin.Context) {
	businessID, ok := businessIDParam(c)
	if !ok {
		return
	}

	var req subscription.ConvertTrialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	sub, err := h.lifecycle.ConvertTrialToActive(c.Request.Context(), middleware.Actor(c), businessID, &req)
	if err != nil {
		response.FromError(c, "failed to convert trial", err)
		return
	}

	response.Success(c, http.StatusOK, "trial converted successfully", sub)
}

// Cancel cancels the business's subscription
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	businessID, ok := businessIDParam(c)
	if !ok {
		return
	}

	var req subscription.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	sub, err := h.lifecycle.Cancel(c.Request.Context(), middleware.Actor(c), businessID, &req)
	if err != nil {
		response.FromError(c, "failed to cancel subscription", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription cancelled successfully", sub)
}

// Reactivate undoes a cancellation still pending at period end
func (h *SubscriptionHandler) Reactivate(c *gin.Context) {
	businessID, ok := businessIDParam(c)
	if !ok {
		return
	}

	sub, err := h.lifecycle.Reactivate(c.Request.Context(), middleware.Actor(c), businessID)
	if err != nil {
		response.FromError(c, "failed to reactivate subscription", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription reactivated successfully", sub)
}

// Upgrade switches to a more expensive plan immediately
func (h *SubscriptionHandler) Upgrade(c *gin.Context) {
	businessID, ok := businessIDParam(c)
	if !ok {
		return
	}

	var req subscription.ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	sub, proration, err := h.lifecycle.Upgrade(c.Request.Context(), middleware.Actor(c), businessID, &req)
	if err != nil {
		response.FromError(c, "failed to upgrade subscription", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription upgraded successfully", gin.H{
		"subscription": sub,
		"proration":    proration,
	})
}

// Downgrade schedules a cheaper plan for the next rollover
func (h *SubscriptionHandler) Downgrade(c *gin.Context) {
	businessID, ok := businessIDParam(c)
	if !ok {
		return
	}

	var req subscription.ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	sub, err := h.lifecycle.Downgrade(c.Request.Context(), middleware.Actor(c), businessID, &req)
	if err != nil {
		response.FromError(c, "failed to downgrade subscription", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription downgrade scheduled", sub)
}

// ApplyDiscount attaches a discount code to the current subscription
func (h *SubscriptionHandler) ApplyDiscount(c *gin.Context) {
	businessID, ok := businessIDParam(c)
	if !ok {
		return
	}

	var req subscription.ApplyDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	pd, err := h.lifecycle.ApplyDiscount(c.Request.Context(), middleware.Actor(c), businessID, &req)
	if err != nil {
		response.FromError(c, "failed to apply discount", err)
		return
	}

	response.Success(c, http.StatusOK, "discount applied", pd)
}

// ListPayments retrieves the subscription's payment history
func (h *SubscriptionHandler) ListPayments(c *gin.Context) {
	businessID, ok := businessIDParam(c)
	if !ok {
		return
	}

	attempts, err := h.lifecycle.ListPayments(c.Request.Context(), middleware.Actor(c), businessID)
	if err != nil {
		response.FromError(c, "failed to list payments", err)
		return
	}

	response.Success(c, http.StatusOK, "payments retrieved", attempts)
}

func businessIDParam(c *gin.Context) (int64, bool) {
	businessID, err := strconv.ParseInt(c.Param("business_id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid business ID", err)
		return 0, false
	}
	return businessID, true
}
