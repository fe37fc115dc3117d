// internal/repository/postgres/discount_repository.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kalenda-billing/internal/domain/discount"
	xerrors "kalenda-billing/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DiscountRepository struct {
	db *pgxpool.Pool
}

func NewDiscountRepository(db *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{db: db}
}

const discountColumns = `id, code, description, discount_type, discount_value,
		       valid_from, valid_until, max_usages, current_usages, uses_per_user,
		       min_purchase_amount, applicable_plans, is_recurring, max_recurring_uses,
		       is_active, created_at, updated_at`

// Create inserts a new discount code. The code column carries a
// case-insensitive unique index; violations surface as conflict errors.
func (r *DiscountRepository) Create(ctx context.Context, c *discount.DiscountCode) error {
	query := `
		INSERT INTO discount_codes (
			code, description, discount_type, discount_value,
			valid_from, valid_until, max_usages, uses_per_user,
			min_purchase_amount, applicable_plans, is_recurring, max_recurring_uses,
			is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		strings.ToUpper(c.Code), c.Description, c.DiscountType, c.DiscountValue,
		c.ValidFrom, c.ValidUntil, c.MaxUsages, c.UsesPerUser,
		c.MinPurchaseAmount, c.ApplicablePlans, c.IsRecurring, c.MaxRecurringUses,
		c.IsActive,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return xerrors.Newf(xerrors.ErrConflict, "discount code %s already exists", c.Code)
		}
		return fmt.Errorf("failed to create discount code: %w", err)
	}

	return nil
}

// FindByCode retrieves a discount code, case-insensitively.
func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (*discount.DiscountCode, error) {
	query := `
		SELECT ` + discountColumns + `
		FROM discount_codes
		WHERE code = $1
	`

	return r.scanCode(r.db.QueryRow(ctx, query, strings.ToUpper(strings.TrimSpace(code))))
}

// FindByID retrieves a discount code by ID
func (r *DiscountRepository) FindByID(ctx context.Context, id int64) (*discount.DiscountCode, error) {
	query := `
		SELECT ` + discountColumns + `
		FROM discount_codes
		WHERE id = $1
	`

	return r.scanCode(r.db.QueryRow(ctx, query, id))
}

// Deactivate turns a code off without deleting its usage history.
func (r *DiscountRepository) Deactivate(ctx context.Context, id int64) error {
	query := `UPDATE discount_codes SET is_active = false, updated_at = $1 WHERE id = $2`

	result, err := r.db.Exec(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate discount code: %w", err)
	}

	if result.RowsAffected() == 0 {
		return xerrors.New(xerrors.ErrNotFound, "discount code not found")
	}

	return nil
}

// CountUsagesByUser counts ledger entries for a (code, user) pair.
func (r *DiscountRepository) CountUsagesByUser(ctx context.Context, codeID, userID int64) (int, error) {
	query := `SELECT COUNT(*) FROM discount_usage_records WHERE code_id = $1 AND user_id = $2`

	var count int
	if err := r.db.QueryRow(ctx, query, codeID, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count usages: %w", err)
	}

	return count, nil
}

// RecordUsage appends a usage record and increments current_usages in a single
// transaction. The increment is conditional on the cap: when a concurrent
// redemption has just taken the last slot, zero rows are affected, the
// transaction rolls back and the caller gets a policy error instead of a
// counter above the cap.
func (r *DiscountRepository) RecordUsage(ctx context.Context, rec *discount.UsageRecord) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	incrementQuery := `
		UPDATE discount_codes
		SET current_usages = current_usages + 1, updated_at = $1
		WHERE id = $2
		  AND is_active = true
		  AND (max_usages IS NULL OR current_usages < max_usages)
	`

	result, err := tx.Exec(ctx, incrementQuery, time.Now(), rec.CodeID)
	if err != nil {
		return fmt.Errorf("failed to increment usages: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.New(xerrors.ErrPolicy, "discount code usage limit reached")
	}

	insertQuery := `
		INSERT INTO discount_usage_records (
			code_id, user_id, business_id, subscription_id, payment_reference,
			discount_amount, original_amount, final_amount, applied_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	if rec.AppliedAt.IsZero() {
		rec.AppliedAt = time.Now()
	}

	err = tx.QueryRow(
		ctx, insertQuery,
		rec.CodeID, rec.UserID, rec.BusinessID, rec.SubscriptionID, rec.PaymentReference,
		rec.DiscountAmount, rec.OriginalAmount, rec.FinalAmount, rec.AppliedAt,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *DiscountRepository) scanCode(row pgx.Row) (*discount.DiscountCode, error) {
	var c discount.DiscountCode

	err := row.Scan(
		&c.ID, &c.Code, &c.Description, &c.DiscountType, &c.DiscountValue,
		&c.ValidFrom, &c.ValidUntil, &c.MaxUsages, &c.CurrentUsages, &c.UsesPerUser,
		&c.MinPurchaseAmount, &c.ApplicablePlans, &c.IsRecurring, &c.MaxRecurringUses,
		&c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.New(xerrors.ErrNotFound, "discount code not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan discount code: %w", err)
	}

	return &c, nil
}

func isUniqueViolation(err error) bool {
	// 23505 is unique_violation
	return err != nil && strings.Contains(err.Error(), "23505")
}
