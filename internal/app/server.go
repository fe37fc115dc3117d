// internal/app/server.go
package app

import (
	"context"
	"fmt"
	"log"

	"kalenda-billing/internal/authz"
	"kalenda-billing/internal/config"
	"kalenda-billing/internal/db"
	"kalenda-billing/internal/gateway"
	discountHandler "kalenda-billing/internal/handlers/discount"
	planHandler "kalenda-billing/internal/handlers/plan"
	renewalHandler "kalenda-billing/internal/handlers/renewal"
	subscriptionHandler "kalenda-billing/internal/handlers/subscription"
	"kalenda-billing/internal/middleware"
	"kalenda-billing/internal/pkg/jwt"
	"kalenda-billing/internal/pkg/lock"
	"kalenda-billing/internal/repository/postgres"
	"kalenda-billing/internal/service/billing"
	discountsvc "kalenda-billing/internal/service/discount"
	plansvc "kalenda-billing/internal/service/plan"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
}

func NewServer() *Server {
	cfg := config.Load()
	engine := gin.New()
	return &Server{cfg: cfg, engine: engine}
}

func (s *Server) Start() error {
	ctx := context.Background()

	// ----- Logger -----
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()
	s.logger = logger

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// ----- Redis -----
	redisClient, err := db.NewRedisClient(db.RedisConfig{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPass,
		DB:       0,
		PoolSize: 10,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("connected to Redis", zap.String("addr", s.cfg.RedisAddr))

	// ----- JWT Verifier -----
	verifier, err := jwt.LoadVerifier(s.cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to load JWT verifier: %w", err)
	}

	// ----- Repositories -----
	planRepo := postgres.NewPlanRepository(pool)
	discountRepo := postgres.NewDiscountRepository(pool)
	subscriptionRepo := postgres.NewSubscriptionRepository(pool)
	paymentRepo := postgres.NewPaymentRepository(pool)
	usageRepo := postgres.NewResourceUsageRepository(pool)

	// ----- External collaborators -----
	paymentGateway := gateway.NewClient(s.cfg.Gateway.BaseURL, s.cfg.Gateway.APIKey, s.cfg.Gateway.Timeout)
	locker := lock.NewRedisLocker(redisClient, "billing:renewal:")
	authorizer := authz.NewClaimsAuthorizer()

	// ----- Services -----
	catalog := plansvc.NewCatalog(planRepo, redisClient, s.cfg.PlanCacheTTL, logger)
	ledger := discountsvc.NewLedger(discountRepo, logger)
	pendingTracker := discountsvc.NewPendingTracker(
		subscriptionRepo, paymentRepo, s.cfg.Billing.PendingDiscountWindow, logger)
	lifecycle := billing.NewLifecycle(
		subscriptionRepo, paymentRepo, catalog, ledger, pendingTracker,
		usageRepo, paymentGateway, authorizer, s.cfg.Billing.MaxRetries, logger)
	renewalManager := billing.NewRenewalManager(
		subscriptionRepo, paymentRepo, catalog, ledger, pendingTracker,
		paymentGateway, locker,
		billing.RetryPolicy{MaxRetries: s.cfg.Billing.MaxRetries, Backoff: s.cfg.Billing.RetryBackoff},
		s.cfg.Billing.RenewalBatchSize, s.cfg.Billing.RenewalLockTTL, logger)

	// ----- Handlers -----
	planHandlerInst := planHandler.NewPlanHandler(catalog)
	discountHandlerInst := discountHandler.NewDiscountHandler(ledger)
	subscriptionHandlerInst := subscriptionHandler.NewSubscriptionHandler(lifecycle)
	renewalHandlerInst := renewalHandler.NewRenewalHandler(renewalManager)

	// ----- Middlewares -----
	authMiddleware := middleware.NewAuthMiddleware(verifier)

	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.RequestID(),
		middleware.RequestLogger(logger),
	)

	// ----- Router -----
	handlers := &Handlers{
		PlanHandler:         planHandlerInst,
		DiscountHandler:     discountHandlerInst,
		SubscriptionHandler: subscriptionHandlerInst,
		RenewalHandler:      renewalHandlerInst,
		AuthMiddleware:      authMiddleware,
		SchedulerTokenHash:  s.cfg.SchedulerTokenHash,
	}
	SetupRouter(s.engine, handlers)

	// ----- Start HTTP -----
	log.Printf("billing service running on %s", s.cfg.HTTPAddr)
	return s.engine.Run(s.cfg.HTTPAddr)
}
