// internal/service/discount/ledger.go
package discount

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"kalenda-billing/internal/domain/discount"
	xerrors "kalenda-billing/internal/pkg/errors"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var oneHundred = decimal.NewFromInt(100)

// Ledger owns discount codes and their usage records. Validation produces a
// frozen snapshot so a later application is independent of edits to the code
// row; recording a usage is a single atomic increment-and-append.
type Ledger struct {
	repo   discount.Repository
	logger *zap.Logger
	clock  func() time.Time
}

func NewLedger(repo discount.Repository, logger *zap.Logger) *Ledger {
	return &Ledger{
		repo:   repo,
		logger: logger,
		clock:  time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

// Validate checks a code against a plan, an amount and the redeeming user.
// The checks short-circuit in a fixed order; the first failure is the reason
// reported. A passing validation carries the computed discount and snapshot.
func (l *Ledger) Validate(ctx context.Context, code string, planID int64, amount decimal.Decimal, userID int64) (*discount.ValidationResult, error) {
	c, err := l.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	now := l.clock()

	if !c.IsActive {
		return invalid("discount code is not active"), nil
	}
	if !c.WithinValidity(now) {
		return invalid("discount code is outside its validity period"), nil
	}
	if c.UsagesExhausted() {
		return invalid("discount code usage limit reached"), nil
	}
	if !c.AppliesToPlan(planID) {
		return invalid("discount code not applicable to this plan"), nil
	}
	if c.MinPurchaseAmount.Valid && amount.LessThan(c.MinPurchaseAmount.Decimal) {
		return invalid("amount below the minimum purchase for this code"), nil
	}
	if c.UsesPerUser.Valid && userID != 0 {
		used, err := l.repo.CountUsagesByUser(ctx, c.ID, userID)
		if err != nil {
			return nil, err
		}
		if used >= int(c.UsesPerUser.Int32) {
			return invalid("discount code already used by this user"), nil
		}
	}

	discountAmount := ComputeDiscount(c.DiscountType, c.DiscountValue, amount)

	return &discount.ValidationResult{
		Valid:          true,
		OriginalAmount: amount,
		DiscountAmount: discountAmount,
		FinalAmount:    amount.Sub(discountAmount),
		Snapshot: &discount.Snapshot{
			CodeID:           c.ID,
			Code:             c.Code,
			DiscountType:     c.DiscountType,
			DiscountValue:    c.DiscountValue,
			IsRecurring:      c.IsRecurring,
			MaxRecurringUses: c.MaxRecurringUses,
		},
	}, nil
}

// RecordUsage appends a ledger entry and bumps the usage counter atomically.
// A cap race surfaces as a policy error from the repository.
func (l *Ledger) RecordUsage(ctx context.Context, rec *discount.UsageRecord) error {
	if err := l.repo.RecordUsage(ctx, rec); err != nil {
		return err
	}

	l.logger.Info("discount usage recorded",
		zap.Int64("code_id", rec.CodeID),
		zap.Int64("business_id", rec.BusinessID),
		zap.String("discount_amount", rec.DiscountAmount.String()),
	)

	return nil
}

// CreateCode creates a discount code after validating its shape.
func (l *Ledger) CreateCode(ctx context.Context, req *discount.CreateCodeRequest) (*discount.DiscountCode, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		return nil, xerrors.New(xerrors.ErrValidation, "discount code is required")
	}

	switch req.DiscountType {
	case discount.TypePercentage:
		if req.DiscountValue.LessThanOrEqual(decimal.Zero) || req.DiscountValue.GreaterThan(oneHundred) {
			return nil, xerrors.New(xerrors.ErrValidation, "percentage discount must be in (0, 100]")
		}
	case discount.TypeFixed:
		if req.DiscountValue.LessThanOrEqual(decimal.Zero) {
			return nil, xerrors.New(xerrors.ErrValidation, "fixed discount must be positive")
		}
	default:
		return nil, xerrors.Newf(xerrors.ErrValidation, "unknown discount type %q", req.DiscountType)
	}

	if req.IsRecurring && req.MaxRecurringUses < 1 {
		return nil, xerrors.New(xerrors.ErrValidation, "recurring codes need max_recurring_uses >= 1")
	}

	c := &discount.DiscountCode{
		Code:             code,
		DiscountType:     req.DiscountType,
		DiscountValue:    req.DiscountValue,
		IsRecurring:      req.IsRecurring,
		MaxRecurringUses: req.MaxRecurringUses,
		ApplicablePlans:  pq.Int64Array(req.ApplicablePlans),
		IsActive:         true,
	}
	if req.Description != "" {
		c.Description = sql.NullString{String: req.Description, Valid: true}
	}
	if req.MaxUsages != nil {
		c.MaxUsages = sql.NullInt32{Int32: *req.MaxUsages, Valid: true}
	}
	if req.UsesPerUser != nil {
		c.UsesPerUser = sql.NullInt32{Int32: *req.UsesPerUser, Valid: true}
	}
	if req.MinPurchaseAmount != nil {
		c.MinPurchaseAmount = decimal.NullDecimal{Decimal: *req.MinPurchaseAmount, Valid: true}
	}
	if from, err := parseDate(req.ValidFrom); err == nil && from != nil {
		c.ValidFrom = sql.NullTime{Time: *from, Valid: true}
	}
	if until, err := parseDate(req.ValidUntil); err == nil && until != nil {
		c.ValidUntil = sql.NullTime{Time: *until, Valid: true}
	}

	if err := l.repo.Create(ctx, c); err != nil {
		return nil, err
	}

	l.logger.Info("discount code created",
		zap.String("code", c.Code),
		zap.String("type", string(c.DiscountType)),
	)

	return c, nil
}

// GetByCode retrieves a code, case-insensitively.
func (l *Ledger) GetByCode(ctx context.Context, code string) (*discount.DiscountCode, error) {
	return l.repo.FindByCode(ctx, code)
}

// DeactivateCode turns a code off; history stays.
func (l *Ledger) DeactivateCode(ctx context.Context, id int64) error {
	if err := l.repo.Deactivate(ctx, id); err != nil {
		return err
	}

	l.logger.Info("discount code deactivated", zap.Int64("code_id", id))
	return nil
}

// ComputeDiscount computes the discount amount for a frozen type/value pair,
// clamped to [0, amount]. Percentage results round to 2 decimal places.
func ComputeDiscount(t discount.DiscountType, value, amount decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch t {
	case discount.TypePercentage:
		d = amount.Mul(value).Div(oneHundred).Round(2)
	case discount.TypeFixed:
		d = value
	default:
		return decimal.Zero
	}

	if d.GreaterThan(amount) {
		d = amount
	}
	if d.IsNegative() {
		d = decimal.Zero
	}
	return d
}

func invalid(reason string) *discount.ValidationResult {
	return &discount.ValidationResult{Valid: false, Reason: reason}
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
