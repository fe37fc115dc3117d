// internal/domain/plan/entity.go
package plan

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type BillingInterval string

const (
	IntervalMonthly BillingInterval = "monthly"
	IntervalYearly  BillingInterval = "yearly"
)

type PricingTier string

const (
	TierStarter    PricingTier = "starter"
	TierGrowth     PricingTier = "growth"
	TierEnterprise PricingTier = "enterprise"
)

type PlanStatus string

const (
	StatusActive  PlanStatus = "active"
	StatusRetired PlanStatus = "retired"
)

// Plan is a billing plan a business can subscribe to. Plans are administered
// outside this service; this core only ever reads them.
type Plan struct {
	ID          int64          `json:"id" db:"id"`
	PlanCode    string         `json:"plan_code" db:"plan_code"`
	Name        string         `json:"name" db:"name"`
	Description sql.NullString `json:"description,omitempty" db:"description"`

	// Pricing
	Price    decimal.Decimal `json:"price" db:"price"`
	Currency string          `json:"currency" db:"currency"`
	Tier     PricingTier     `json:"tier" db:"tier"`

	// Billing
	BillingInterval BillingInterval `json:"billing_interval" db:"billing_interval"`
	TrialDays       int             `json:"trial_days" db:"trial_days"`

	// Feature limits (null = unlimited)
	MaxStaff     sql.NullInt32 `json:"max_staff,omitempty" db:"max_staff"`
	MaxLocations sql.NullInt32 `json:"max_locations,omitempty" db:"max_locations"`

	Features map[string]interface{} `json:"features,omitempty" db:"features"`

	// Status
	Status   PlanStatus `json:"status" db:"status"`
	IsPublic bool       `json:"is_public" db:"is_public"`

	// Timestamps
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HasTrial reports whether new subscriptions to this plan start with a trial.
func (p *Plan) HasTrial() bool {
	return p.TrialDays > 0
}

// PeriodEnd returns the end of a billing period starting at from.
func (p *Plan) PeriodEnd(from time.Time) time.Time {
	switch p.BillingInterval {
	case IntervalYearly:
		return from.AddDate(1, 0, 0)
	default:
		return from.AddDate(0, 1, 0)
	}
}

// Subscribable reports whether the plan can be subscribed to right now.
func (p *Plan) Subscribable() bool {
	return p.Status == StatusActive && p.IsPublic
}
