// internal/handlers/plan/plan_handler.go
package plan

import (
	"net/http"
	"strconv"

	"kalenda-billing/internal/pkg/response"
	plansvc "kalenda-billing/internal/service/plan"

	"github.com/gin-gonic/gin"
)

type PlanHandler struct {
	catalog *plansvc.Catalog
}

func NewPlanHandler(catalog *plansvc.Catalog) *PlanHandler {
	return &PlanHandler{
		catalog: catalog,
	}
}

// List retrieves the publicly subscribable plans
func (h *PlanHandler) List(c *gin.Context) {
	plans, err := h.catalog.ListPublic(c.Request.Context())
	if err != nil {
		response.FromError(c, "failed to list plans", err)
		return
	}

	response.Success(c, http.StatusOK, "plans retrieved", plans)
}

// Get retrieves one plan by ID
func (h *PlanHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid plan ID", err)
		return
	}

	p, err := h.catalog.FindByID(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, "plan not found", err)
		return
	}

	response.Success(c, http.StatusOK, "plan retrieved", p)
}
