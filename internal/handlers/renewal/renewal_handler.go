// internal/handlers/renewal/renewal_handler.go
package renewal

import (
	"net/http"

	"kalenda-billing/internal/pkg/response"
	"kalenda-billing/internal/service/billing"

	"github.com/gin-gonic/gin"
)

// RenewalHandler exposes the renewal batch to the external scheduler. The
// route sits behind the scheduler token middleware, not user auth.
type RenewalHandler struct {
	manager *billing.RenewalManager
}

func NewRenewalHandler(manager *billing.RenewalManager) *RenewalHandler {
	return &RenewalHandler{
		manager: manager,
	}
}

// Run processes everything currently due
func (h *RenewalHandler) Run(c *gin.Context) {
	summary, err := h.manager.RunDueRenewals(c.Request.Context())
	if err != nil {
		response.FromError(c, "renewal batch failed", err)
		return
	}

	response.Success(c, http.StatusOK, "renewal batch finished", summary)
}
