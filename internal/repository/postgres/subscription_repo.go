// internal/repository/postgres/subscription_repository.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kalenda-billing/internal/domain/subscription"
	xerrors "kalenda-billing/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SubscriptionRepository struct {
	db *pgxpool.Pool
}

func NewSubscriptionRepository(db *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `id, reference, business_id, plan_id, pending_plan_id,
	       status, cancel_at_period_end, canceled_at,
	       current_period_start, current_period_end, trial_start, trial_end,
	       auto_renewal, payment_method_id, next_billing_date, failed_payment_count,
	       currency, version, created_at, updated_at`

// Create inserts a new subscription. The partial unique index on
// (business_id) WHERE status IN ('trial','active','past_due') enforces the
// one-live-subscription invariant at the storage layer as well.
func (r *SubscriptionRepository) Create(ctx context.Context, sub *subscription.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			reference, business_id, plan_id, pending_plan_id,
			status, cancel_at_period_end, canceled_at,
			current_period_start, current_period_end, trial_start, trial_end,
			auto_renewal, payment_method_id, next_billing_date, failed_payment_count,
			currency, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, 1)
		RETURNING id, version, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		sub.Reference, sub.BusinessID, sub.PlanID, sub.PendingPlanID,
		sub.Status, sub.CancelAtPeriodEnd, sub.CanceledAt,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.TrialStart, sub.TrialEnd,
		sub.AutoRenewal, sub.PaymentMethodID, sub.NextBillingDate, sub.FailedPaymentCount,
		sub.Currency,
	).Scan(&sub.ID, &sub.Version, &sub.CreatedAt, &sub.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return xerrors.New(xerrors.ErrConflict, "business already has a live subscription")
		}
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	return nil
}

// FindByID retrieves a subscription by ID
func (r *SubscriptionRepository) FindByID(ctx context.Context, id int64) (*subscription.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE id = $1
	`

	return r.scanSubscription(r.db.QueryRow(ctx, query, id))
}

// FindLiveByBusiness returns the single trial/active/past_due subscription for
// a business.
func (r *SubscriptionRepository) FindLiveByBusiness(ctx context.Context, businessID int64) (*subscription.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE business_id = $1 AND status IN ($2, $3, $4)
	`

	return r.scanSubscription(r.db.QueryRow(ctx, query, businessID,
		subscription.StatusTrial, subscription.StatusActive, subscription.StatusPastDue))
}

// FindCurrentByBusiness returns the most recent subscription regardless of
// status.
func (r *SubscriptionRepository) FindCurrentByBusiness(ctx context.Context, businessID int64) (*subscription.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE business_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	return r.scanSubscription(r.db.QueryRow(ctx, query, businessID))
}

// Update persists the subscription guarded by its version. A stale version
// means another request committed first; the caller gets a conflict error and
// nothing is written.
func (r *SubscriptionRepository) Update(ctx context.Context, sub *subscription.Subscription) error {
	query := `
		UPDATE subscriptions
		SET plan_id = $1, pending_plan_id = $2, status = $3,
		    cancel_at_period_end = $4, canceled_at = $5,
		    current_period_start = $6, current_period_end = $7,
		    trial_start = $8, trial_end = $9,
		    auto_renewal = $10, payment_method_id = $11, next_billing_date = $12,
		    failed_payment_count = $13, version = version + 1, updated_at = $14
		WHERE id = $15 AND version = $16
		RETURNING version
	`

	err := r.db.QueryRow(
		ctx, query,
		sub.PlanID, sub.PendingPlanID, sub.Status,
		sub.CancelAtPeriodEnd, sub.CanceledAt,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.TrialStart, sub.TrialEnd,
		sub.AutoRenewal, sub.PaymentMethodID, sub.NextBillingDate,
		sub.FailedPaymentCount, time.Now(),
		sub.ID, sub.Version,
	).Scan(&sub.Version)

	if errors.Is(err, pgx.ErrNoRows) {
		return xerrors.New(xerrors.ErrConflict, "subscription was modified concurrently")
	}
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}

	return nil
}

// FindDueRenewals scans for subscriptions the renewal batch should charge.
// next_billing_date holds the retry backoff for past_due rows.
func (r *SubscriptionRepository) FindDueRenewals(ctx context.Context, now time.Time, limit int) ([]subscription.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE status IN ($1, $2)
		  AND auto_renewal = true
		  AND cancel_at_period_end = false
		  AND current_period_end <= $3
		  AND (next_billing_date IS NULL OR next_billing_date <= $3)
		ORDER BY current_period_end ASC
		LIMIT $4
	`

	return r.querySubscriptions(ctx, query,
		subscription.StatusActive, subscription.StatusPastDue, now, limit)
}

// FindDueTrials scans for trials whose trial window has lapsed.
func (r *SubscriptionRepository) FindDueTrials(ctx context.Context, now time.Time, limit int) ([]subscription.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE status = $1
		  AND trial_end IS NOT NULL
		  AND trial_end <= $2
		ORDER BY trial_end ASC
		LIMIT $3
	`

	return r.querySubscriptions(ctx, query, subscription.StatusTrial, now, limit)
}

// FindLapsedPendingCancels scans for canceled-at-period-end subscriptions
// whose period has ended and which should now be expired.
func (r *SubscriptionRepository) FindLapsedPendingCancels(ctx context.Context, now time.Time, limit int) ([]subscription.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE status = $1
		  AND cancel_at_period_end = true
		  AND current_period_end <= $2
		ORDER BY current_period_end ASC
		LIMIT $3
	`

	return r.querySubscriptions(ctx, query, subscription.StatusCanceled, now, limit)
}

// AttachPendingDiscount stores the pending discount row for a subscription.
// One row per subscription; attaching over an existing one is a conflict.
func (r *SubscriptionRepository) AttachPendingDiscount(ctx context.Context, pd *subscription.PendingDiscount) error {
	query := `
		INSERT INTO pending_discounts (
			subscription_id, code_id, code, discount_type, discount_value,
			is_recurring, remaining_uses, applied_payment_refs, validated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		pd.SubscriptionID, pd.CodeID, pd.Code, pd.DiscountType, pd.DiscountValue,
		pd.IsRecurring, pd.RemainingUses, pd.AppliedPaymentRefs, pd.ValidatedAt,
	).Scan(&pd.ID, &pd.CreatedAt, &pd.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return xerrors.New(xerrors.ErrConflict, "subscription already has a pending discount")
		}
		return fmt.Errorf("failed to attach pending discount: %w", err)
	}

	return nil
}

// GetPendingDiscount retrieves the pending discount for a subscription.
func (r *SubscriptionRepository) GetPendingDiscount(ctx context.Context, subscriptionID int64) (*subscription.PendingDiscount, error) {
	query := `
		SELECT id, subscription_id, code_id, code, discount_type, discount_value,
		       is_recurring, remaining_uses, applied_payment_refs, validated_at,
		       created_at, updated_at
		FROM pending_discounts
		WHERE subscription_id = $1
	`

	var pd subscription.PendingDiscount
	err := r.db.QueryRow(ctx, query, subscriptionID).Scan(
		&pd.ID, &pd.SubscriptionID, &pd.CodeID, &pd.Code, &pd.DiscountType, &pd.DiscountValue,
		&pd.IsRecurring, &pd.RemainingUses, &pd.AppliedPaymentRefs, &pd.ValidatedAt,
		&pd.CreatedAt, &pd.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.New(xerrors.ErrNotFound, "no pending discount")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending discount: %w", err)
	}

	return &pd, nil
}

// UpdatePendingDiscount persists discount bookkeeping after an application.
func (r *SubscriptionRepository) UpdatePendingDiscount(ctx context.Context, pd *subscription.PendingDiscount) error {
	query := `
		UPDATE pending_discounts
		SET remaining_uses = $1, applied_payment_refs = $2, updated_at = $3
		WHERE id = $4
	`

	result, err := r.db.Exec(ctx, query, pd.RemainingUses, pd.AppliedPaymentRefs, time.Now(), pd.ID)
	if err != nil {
		return fmt.Errorf("failed to update pending discount: %w", err)
	}

	if result.RowsAffected() == 0 {
		return xerrors.New(xerrors.ErrNotFound, "pending discount not found")
	}

	return nil
}

func (r *SubscriptionRepository) querySubscriptions(ctx context.Context, query string, args ...interface{}) ([]subscription.Subscription, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []subscription.Subscription
	for rows.Next() {
		sub, err := r.scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}

	return subs, rows.Err()
}

func (r *SubscriptionRepository) scanSubscription(row pgx.Row) (*subscription.Subscription, error) {
	var sub subscription.Subscription

	err := row.Scan(
		&sub.ID, &sub.Reference, &sub.BusinessID, &sub.PlanID, &sub.PendingPlanID,
		&sub.Status, &sub.CancelAtPeriodEnd, &sub.CanceledAt,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.TrialStart, &sub.TrialEnd,
		&sub.AutoRenewal, &sub.PaymentMethodID, &sub.NextBillingDate, &sub.FailedPaymentCount,
		&sub.Currency, &sub.Version, &sub.CreatedAt, &sub.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.New(xerrors.ErrNotFound, "subscription not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}

	return &sub, nil
}
