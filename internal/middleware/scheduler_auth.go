// internal/middleware/scheduler_auth.go
package middleware

import (
	"net/http"

	"kalenda-billing/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// SchedulerAuth guards the internal renewal trigger. The external scheduler
// presents a static token; only its bcrypt hash is configured on this side.
func SchedulerAuth(tokenHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenHash == "" {
			response.Error(c, http.StatusForbidden, "scheduler trigger is not configured", nil)
			return
		}

		token := c.GetHeader("X-Scheduler-Token")
		if token == "" {
			response.Error(c, http.StatusUnauthorized, "missing scheduler token", nil)
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)); err != nil {
			response.Error(c, http.StatusUnauthorized, "invalid scheduler token", nil)
			return
		}

		c.Next()
	}
}
