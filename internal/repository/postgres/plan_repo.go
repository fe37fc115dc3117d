// internal/repository/postgres/plan_repository.go
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"kalenda-billing/internal/domain/plan"
	xerrors "kalenda-billing/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PlanRepository struct {
	db *pgxpool.Pool
}

func NewPlanRepository(db *pgxpool.Pool) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = `id, plan_code, name, description, price, currency, tier,
	       billing_interval, trial_days, max_staff, max_locations, features,
	       status, is_public, created_at, updated_at`

// FindByID retrieves a plan by ID
func (r *PlanRepository) FindByID(ctx context.Context, id int64) (*plan.Plan, error) {
	query := `
		SELECT ` + planColumns + `
		FROM billing_plans
		WHERE id = $1
	`

	return r.scanPlan(r.db.QueryRow(ctx, query, id))
}

// FindByCode retrieves a plan by its plan code
func (r *PlanRepository) FindByCode(ctx context.Context, code string) (*plan.Plan, error) {
	query := `
		SELECT ` + planColumns + `
		FROM billing_plans
		WHERE plan_code = $1
	`

	return r.scanPlan(r.db.QueryRow(ctx, query, strings.ToLower(code)))
}

// ListPublic retrieves all plans available for subscription
func (r *PlanRepository) ListPublic(ctx context.Context) ([]plan.Plan, error) {
	query := `
		SELECT ` + planColumns + `
		FROM billing_plans
		WHERE status = $1 AND is_public = true
		ORDER BY price ASC
	`

	rows, err := r.db.Query(ctx, query, plan.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []plan.Plan
	for rows.Next() {
		p, err := r.scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}

	return plans, rows.Err()
}

func (r *PlanRepository) scanPlan(row pgx.Row) (*plan.Plan, error) {
	var p plan.Plan
	var featuresJSON []byte

	err := row.Scan(
		&p.ID, &p.PlanCode, &p.Name, &p.Description, &p.Price, &p.Currency, &p.Tier,
		&p.BillingInterval, &p.TrialDays, &p.MaxStaff, &p.MaxLocations, &featuresJSON,
		&p.Status, &p.IsPublic, &p.CreatedAt, &p.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.New(xerrors.ErrNotFound, "plan not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan plan: %w", err)
	}

	if len(featuresJSON) > 0 {
		if err := json.Unmarshal(featuresJSON, &p.Features); err != nil {
			return nil, fmt.Errorf("failed to unmarshal features: %w", err)
		}
	}

	return &p, nil
}
