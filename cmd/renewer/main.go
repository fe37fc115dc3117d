// cmd/renewer runs one renewal batch and exits. It exists for operators and
// cron setups that prefer a process over the HTTP trigger.
package main

import (
	"context"
	"log"
	"time"

	"kalenda-billing/internal/config"
	"kalenda-billing/internal/db"
	"kalenda-billing/internal/gateway"
	"kalenda-billing/internal/pkg/lock"
	"kalenda-billing/internal/repository/postgres"
	"kalenda-billing/internal/service/billing"
	discountsvc "kalenda-billing/internal/service/discount"
	plansvc "kalenda-billing/internal/service/plan"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("[RENEWER] No .env file found, relying on system env vars")
	}

	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	pool, err := db.ConnectDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pool.Close()

	redisClient, err := db.NewRedisClient(db.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       0,
		PoolSize: 10,
	})
	if err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	planRepo := postgres.NewPlanRepository(pool)
	discountRepo := postgres.NewDiscountRepository(pool)
	subscriptionRepo := postgres.NewSubscriptionRepository(pool)
	paymentRepo := postgres.NewPaymentRepository(pool)

	catalog := plansvc.NewCatalog(planRepo, redisClient, cfg.PlanCacheTTL, logger)
	ledger := discountsvc.NewLedger(discountRepo, logger)
	pendingTracker := discountsvc.NewPendingTracker(
		subscriptionRepo, paymentRepo, cfg.Billing.PendingDiscountWindow, logger)
	paymentGateway := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.APIKey, cfg.Gateway.Timeout)
	locker := lock.NewRedisLocker(redisClient, "billing:renewal:")

	manager := billing.NewRenewalManager(
		subscriptionRepo, paymentRepo, catalog, ledger, pendingTracker,
		paymentGateway, locker,
		billing.RetryPolicy{MaxRetries: cfg.Billing.MaxRetries, Backoff: cfg.Billing.RetryBackoff},
		cfg.Billing.RenewalBatchSize, cfg.Billing.RenewalLockTTL, logger)

	summary, err := manager.RunDueRenewals(ctx)
	if err != nil {
		logger.Fatal("renewal batch failed", zap.Error(err))
	}

	logger.Info("renewal batch done",
		zap.Int("renewed", summary.Renewed),
		zap.Int("trials_converted", summary.TrialsConverted),
		zap.Int("trials_expired", summary.TrialsExpired),
		zap.Int("past_due", summary.PastDue),
		zap.Int("expired", summary.Expired),
		zap.Int("skipped", summary.Skipped),
		zap.Int("errors", summary.Errors),
	)
}
