// internal/handlers/discount/discount_handler.go
package discount

import (
	"net/http"
	"strconv"

	"kalenda-billing/internal/domain/discount"
	"kalenda-billing/internal/middleware"
	"kalenda-billing/internal/pkg/response"
	discountsvc "kalenda-billing/internal/service/discount"

	"github.com/gin-gonic/gin"
)

type DiscountHandler struct {
	ledger *discountsvc.Ledger
}

func NewDiscountHandler(ledger *discountsvc.Ledger) *DiscountHandler {
	return &DiscountHandler{
		ledger: ledger,
	}
}

// Validate checks a code for the caller without consuming a usage
func (h *DiscountHandler) Validate(c *gin.Context) {
	var req discount.ValidateCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	userID, _ := middleware.GetIdentityID(c)

	result, err := h.ledger.Validate(c.Request.Context(), req.Code, req.PlanID, req.Amount, userID)
	if err != nil {
		response.FromError(c, "failed to validate discount code", err)
		return
	}

	response.Success(c, http.StatusOK, "discount code validated", result)
}

// ========== Admin Endpoints ==========

// Create creates a discount code (admin only)
func (h *DiscountHandler) Create(c *gin.Context) {
	var req discount.CreateCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	code, err := h.ledger.CreateCode(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, "failed to create discount code", err)
		return
	}

	response.Success(c, http.StatusCreated, "discount code created", code)
}

// Get retrieves a discount code (admin only)
func (h *DiscountHandler) Get(c *gin.Context) {
	code, err := h.ledger.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.FromError(c, "discount code not found", err)
		return
	}

	response.Success(c, http.StatusOK, "discount code retrieved", code)
}

// Deactivate turns a discount code off (admin only)
func (h *DiscountHandler) Deactivate(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid discount code ID", err)
		return
	}

	if err := h.ledger.DeactivateCode(c.Request.Context(), id); err != nil {
		response.FromError(c, "failed to deactivate discount code", err)
		return
	}

	response.Success(c, http.StatusOK, "discount code deactivated", nil)
}
