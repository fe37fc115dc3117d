// internal/app/router.go
package app

import (
	"kalenda-billing/internal/authz"
	discountHandler "kalenda-billing/internal/handlers/discount"
	planHandler "kalenda-billing/internal/handlers/plan"
	renewalHandler "kalenda-billing/internal/handlers/renewal"
	subscriptionHandler "kalenda-billing/internal/handlers/subscription"
	"kalenda-billing/internal/middleware"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	PlanHandler         *planHandler.PlanHandler
	DiscountHandler     *discountHandler.DiscountHandler
	SubscriptionHandler *subscriptionHandler.SubscriptionHandler
	RenewalHandler      *renewalHandler.RenewalHandler
	AuthMiddleware      *middleware.AuthMiddleware
	SchedulerTokenHash  string
}

func SetupRouter(r *gin.Engine, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "billing"})
	})

	// ==================== Plans ====================
	plans := api.Group("/plans")
	{
		// Public catalog - no auth required
		plans.GET("", h.PlanHandler.List)

		plansAuth := plans.Group("")
		plansAuth.Use(h.AuthMiddleware.Auth())
		{
			plansAuth.GET("/:id", h.PlanHandler.Get)
		}
	}

	// ==================== Discount Codes ====================
	discounts := api.Group("/discounts")
	discounts.Use(h.AuthMiddleware.Auth())
	{
		discounts.POST("/validate", h.DiscountHandler.Validate)
	}

	// ==================== Business Subscriptions ====================
	billing := api.Group("/businesses/:business_id")
	billing.Use(h.AuthMiddleware.Auth())
	{
		sub := billing.Group("/subscription")
		{
			sub.POST("", h.SubscriptionHandler.Subscribe)
			sub.GET("", h.SubscriptionHandler.GetCurrent)
			sub.POST("/convert-trial", h.SubscriptionHandler.ConvertTrial)
			sub.POST("/cancel", h.SubscriptionHandler.Cancel)
			sub.POST("/reactivate", h.SubscriptionHandler.Reactivate)
			sub.POST("/upgrade", h.SubscriptionHandler.Upgrade)
			sub.POST("/downgrade", h.SubscriptionHandler.Downgrade)
			sub.POST("/discount", h.SubscriptionHandler.ApplyDiscount)
			sub.GET("/payments", h.SubscriptionHandler.ListPayments)
		}
	}

	// ==================== Admin Routes ====================
	admin := api.Group("/admin")
	admin.Use(h.AuthMiddleware.Auth(), h.AuthMiddleware.RequirePermission(authz.PermDiscountAdmin))
	{
		adminDiscounts := admin.Group("/discounts")
		{
			adminDiscounts.POST("", h.DiscountHandler.Create)
			adminDiscounts.GET("/code/:code", h.DiscountHandler.Get)
			adminDiscounts.PUT("/:id/deactivate", h.DiscountHandler.Deactivate)
		}
	}

	// ==================== Internal (scheduler) Routes ====================
	internal := api.Group("/internal")
	internal.Use(middleware.SchedulerAuth(h.SchedulerTokenHash))
	{
		internal.POST("/renewals/run", h.RenewalHandler.Run)
	}
}
