// internal/repository/postgres/payment_repository.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"kalenda-billing/internal/domain/payment"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PaymentRepository struct {
	db *pgxpool.Pool
}

func NewPaymentRepository(db *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create appends a payment attempt. Attempts are immutable once written.
func (r *PaymentRepository) Create(ctx context.Context, a *payment.Attempt) error {
	query := `
		INSERT INTO payment_attempts (
			reference, subscription_id, business_id, type, status,
			amount, currency, discount_code, discount_amount,
			retry_count, max_retries, idempotency_key,
			gateway_payment_id, failure_reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	err := r.db.QueryRow(
		ctx, query,
		a.Reference, a.SubscriptionID, a.BusinessID, a.Type, a.Status,
		a.Amount, a.Currency, a.DiscountCode, a.DiscountAmount,
		a.RetryCount, a.MaxRetries, a.IdempotencyKey,
		a.GatewayPaymentID, a.FailureReason, a.CreatedAt,
	).Scan(&a.ID)

	if err != nil {
		return fmt.Errorf("failed to create payment attempt: %w", err)
	}

	return nil
}

// ListBySubscription retrieves attempts for a subscription, newest first.
func (r *PaymentRepository) ListBySubscription(ctx context.Context, subscriptionID int64) ([]payment.Attempt, error) {
	query := `
		SELECT id, reference, subscription_id, business_id, type, status,
		       amount, currency, discount_code, discount_amount,
		       retry_count, max_retries, idempotency_key,
		       gateway_payment_id, failure_reason, created_at
		FROM payment_attempts
		WHERE subscription_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment attempts: %w", err)
	}
	defer rows.Close()

	var attempts []payment.Attempt
	for rows.Next() {
		var a payment.Attempt
		err := rows.Scan(
			&a.ID, &a.Reference, &a.SubscriptionID, &a.BusinessID, &a.Type, &a.Status,
			&a.Amount, &a.Currency, &a.DiscountCode, &a.DiscountAmount,
			&a.RetryCount, &a.MaxRetries, &a.IdempotencyKey,
			&a.GatewayPaymentID, &a.FailureReason, &a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment attempt: %w", err)
		}
		attempts = append(attempts, a)
	}

	return attempts, rows.Err()
}

// HasSucceededOfType reports whether a succeeded attempt of the given type
// exists for the subscription.
func (r *PaymentRepository) HasSucceededOfType(ctx context.Context, subscriptionID int64, t payment.Type) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM payment_attempts
			WHERE subscription_id = $1 AND type = $2 AND status = $3
		)
	`

	var exists bool
	if err := r.db.QueryRow(ctx, query, subscriptionID, t, payment.StatusSucceeded).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check payment attempts: %w", err)
	}

	return exists, nil
}
