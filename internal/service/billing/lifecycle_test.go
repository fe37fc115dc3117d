// internal/service/billing/lifecycle_test.go
package billing

import (
	"context"
	"testing"
	"time"

	"kalenda-billing/internal/authz"
	"kalenda-billing/internal/domain/discount"
	"kalenda-billing/internal/domain/payment"
	"kalenda-billing/internal/domain/subscription"
	xerrors "kalenda-billing/internal/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func addSave20(s *stack) {
	s.discounts.add(&discount.DiscountCode{
		Code:          "SAVE20",
		DiscountType:  discount.TypePercentage,
		DiscountValue: decimal.NewFromInt(20),
		IsActive:      true,
	})
}

func TestSubscribeTrialStartsWithoutCharge(t *testing.T) {
	s := newStack(t0, monthlyPlan(1, "growth", 100, 7))
	addSave20(s)
	ctx := context.Background()

	sub, err := s.lifecycle.Subscribe(ctx, owner(1), 1, &subscription.SubscribeRequest{
		PlanID:       1,
		DiscountCode: "SAVE20",
		AutoRenewal:  true,
	})
	require.NoError(t, err)

	assert.Equal(t, subscription.StatusTrial, sub.Status)
	assert.True(t, sub.TrialEnd.Valid)
	assert.Equal(t, t0.AddDate(0, 0, 7), sub.TrialEnd.Time)
	assert.Equal(t, 0, s.gateway.callCount(), "a trial never charges up front")

	pd, err := s.subs.GetPendingDiscount(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, pd.RemainingUses)
}

func TestSubscribePaidChargesDiscountedFirstPeriod(t *testing.T) {
	s := newStack(t0, monthlyPlan(1, "starter", 100, 0))
	addSave20(s)
	ctx := context.Background()

	sub, err := s.lifecycle.Subscribe(ctx, owner(1), 1, &subscription.SubscribeRequest{
		PlanID:          1,
		DiscountCode:    "SAVE20",
		AutoRenewal:     true,
		PaymentMethodID: "pm_1",
	})
	require.NoError(t, err)

	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.Equal(t, t0.AddDate(0, 1, 0), sub.CurrentPeriodEnd)

	require.Equal(t, 1, s.gateway.callCount())
	assert.True(t, s.gateway.lastCall().Amount.Equal(decimal.NewFromInt(80)))

	attempts, err := s.payments.ListBySubscription(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, payment.TypeInitial, attempts[0].Type)
	assert.Equal(t, payment.StatusSucceeded, attempts[0].Status)
	assert.Equal(t, "SAVE20", attempts[0].DiscountCode.String)

	// The one-shot code is spent on the initial payment.
	pd, err := s.subs.GetPendingDiscount(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, pd.RemainingUses)
	assert.Len(t, s.discounts.usages, 1)
}

func TestSubscribeRejectsIneligibleCode(t *testing.T) {
	s := newStack(t0, monthlyPlan(1, "starter", 100, 0))
	inactive := &discount.DiscountCode{
		Code:          "DEAD",
		DiscountType:  discount.TypePercentage,
		DiscountValue: decimal.NewFromInt(20),
	}
	s.discounts.add(inactive)
	ctx := context.Background()

	_, err := s.lifecycle.Subscribe(ctx, owner(1), 1, &subscription.SubscribeRequest{
		PlanID:          1,
		DiscountCode:    "DEAD",
		PaymentMethodID: "pm_1",
	})
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.ErrValidation))
	assert.Equal(t, 0, s.gateway.callCount())

	_, err = s.subs.FindCurrentByBusiness(ctx, 1)
	assert.True(t, xerrors.Is(err, xerrors.ErrNotFound), "a rejected subscribe persists nothing")
}

func TestSubscribeConflictsWithLiveSubscription(t *testing.T) {
	s := newStack(t0, monthlyPlan(1, "starter", 100, 0))
	ctx := context.Background()

	_, err := s.lifecycle.Subscribe(ctx, owner(1), 1, &subscription.SubscribeRequest{
		PlanID: 1, PaymentMethodID: "pm_1",
	})
	require.NoError(t, err)

	_, err = s.lifecycle.Subscribe(ctx, owner(1), 1, &subscription.SubscribeRequest{
		PlanID: 1, PaymentMethodID: "pm_1",
	})
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.ErrConflict))
}

func TestSubscribeDeclinedPaymentPersistsNothing(t *testing.T) {
	s := newStack(t0, monthlyPlan(1, "starter", 100, 0))
	s.gateway.enqueue(declined("insufficient funds"))
	ctx := context.Background()

	_, err := s.lifecycle.Subscribe(ctx, owner(1), 1, &subscription.SubscribeRequest{
		PlanID: 1, PaymentMethodID: "pm_1",
	})
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.ErrPayment))

	_, err = s.subs.FindCurrentByBusiness(ctx, 1)
	assert.True(t, xerrors.Is(err, xerrors.ErrNotFound))
}

func TestConvertTrialAppliesDiscountAfterTrialWeek(t *testing.T) {
	s := newStack(t0, monthlyPlan(1, "growth", 100, 7))
	addSave20(s)
	ctx := context.Background()

	_, err := s.lifecycle.Subscribe(ctx, owner(1), 1, &subscription.SubscribeRequest{
		PlanID:       1,
		DiscountCode: "SAVE20",
		AutoRenewal:  true,
	})
	require.NoError(t, err)

	// Well past the 24h validation window; the conversion still redeems it.
	s.now = t0.AddDate(0, 0, 7).Add(2 * time.Hour)

	sub, err := s.lifecycle.ConvertTrialToActive(ctx, owner(1), 1, &subscription.ConvertTrialRequest{
		PaymentMethodID: "pm_1",
	})
	require.NoError(t, err)

	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.Equal(t, s.now.AddDate(0, 1, 0), sub.CurrentPeriodEnd)
	require.Equal(t, 1, s.gateway.callCount())
	assert.True(t, s.gateway.lastCall().Amount.Equal(decimal.NewFromInt(80)),
		"conversion charges the discounted price, got %s", s.gateway.lastCall().Amount)

	pd, err := s.subs.GetPendingDiscount(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, pd.RemainingUses)
}

func TestConvertTrialRequiresTrialState(t *testing.T) {
	s := newStack(t0, monthlyPlan(1, "starter", 100, 0))
	ctx := context.Background()

	_, err := s.lifecycle.Subscribe(ctx, owner(1), 1, &subscription.SubscribeRequest{
		PlanID: 1, PaymentMethodID: "pm_1",
	})
	require.NoError(t, err)

	_, err = s.lifecycle.ConvertTrialToActive(ctx, owner(1), 1, &subscription.ConvertTrialRequest{})
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.ErrState))
}

func TestConvertTrialDeclinedKeepsTrial(t *testing.T) {
	s := newStack(t0, monthlyPlan(1, "growth", 100, 7))
	ctx := context.Background()

	_, err := s.lifecycle.Subscribe(ctx, owner(1), 1, &subscription.SubscribeRequest{PlanID: 1})
	require.NoError(t, err)

	s.gateway.enqueue(declined("card expired"))
	_, err = s.lifecycle.ConvertTrialToActive(ctx, owner(1), 1, &subscription.ConvertTrialRequest{
		PaymentMethodID: "pm_1",
	})
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.ErrPayment))

	sub, err := s.subs.FindLiveByBusiness(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusTrial, sub.Status)

	attempts, _ := s.payments.ListBySubscription(ctx, sub.ID)
	require.Len(t, attempts, 1)
	assert.Equal(t, payment.StatusFailed, attempts[0].Status)
}

func TestCancelDefaultsToPeriodEnd(t *testing.T) {
	s := newStack(t0, monthlyPlan(1, "starter", 100, 0))
	ctx := context.Background()

	_, err := s.lifecycle.Subscribe(ctx, owner(1), 1, &subscription.SubscribeRequest{
		PlanID: 1, PaymentMethodID: "pm_1", AutoRenewal: true,
	})
	require.NoError(t, err)

	sub, err := s.lifecycle.Cancel(ctx, owner(1), 1, &subscription.CancelRequest{Reason: "too pricey"})
	require.NoError(t, err)

	assert.Equal(t, subscription.StatusCanceled, sub.Status)
	assert.True(t, sub.CancelAtPeriodEnd)
	assert.False(t, sub.AutoRenewal)
	assert.True(t, sub.UsableAt(s.now), "access survives to the period end")
	assert.False(t, sub.UsableAt(sub.CurrentPeriodEnd.Add(time.Hour)))
}

func TestCancelImmediateRevokesAccess(t *testing.T) {
	s := newStack(t0, monthlyPlan(1, "starter", 100, 0))
	ctx := context.Background()

	_, err := s.lifecycle.Subscribe(ctx, owner(1), 1, &subscription.SubscribeRequest{
		PlanID: 1, PaymentMethodID: "pm_1",
	})
	require.NoError(t, err)

	atPeriodEnd := false
	sub, err := s.lifecycle.Cancel(ctx, owner(1), 1, &subscription.CancelRequest{AtPeriodEnd: &atPeriodEnd})
	require.NoError(t, err)

	assert.False(t, sub.CancelAtPeriodEnd)
	assert.False(t, sub.UsableAt(s.now))
}

func TestReactivatePendingCancellation(t *testing.T) {
	s := newStack(t0, monthlyPlan(1, "starter", 100, 0))
	ctx := context.Background()

	_, err := s.lifecycle.Subscribe(ctx, owner(1), 1, &subscription.SubscribeRequest{
		PlanID: 1, PaymentMethodID: "pm_1", AutoRenewal: true,
	})
	require.NoError(t, err)
	_, err = s.lifecycle.Cancel(ctx, owner(1), 1, &subscription.CancelRequest{})
	require.NoError(t, err)

	sub, err := s.lifecycle.Reactivate(ctx, owner(1), 1)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.False(t, sub.CancelAtPeriodEnd)
	assert.True(t, sub.AutoRenewal)
}

func TestReactivateGuards(t *testing.T) {
	s := newStack(t0, monthlyPlan(1, "starter", 100, 0))
	ctx := context.Background()

	// Nothing to reactivate.
	_, err := s.lifecycle.Reactivate(ctx, owner(1), 1)
	assert.True(t, xerrors.Is(err, xerrors.ErrNotFound))

	_, err = s.lifecycle.Subscribe(ctx, owner(1), 1, &subscription.SubscribeRequest{
		PlanID: 1, PaymentMethodID: "pm_1",
	})
	require.NoError(t, err)

	// An immediate cancellation is final.
	atPeriodEnd := false
	_, err = s.lifecycle.Cancel(ctx, owner(1), 1, &subscription.CancelRequest{AtPeriodEnd: &atPeriodEnd})
	require.NoError(t, err)
	_, err = s.lifecycle.Reactivate(ctx, owner(1), 1)
	assert.True(t, xerrors.Is(err, xerrors.ErrState))
}

func TestReactivateAfterPeriodEndFails(t *testing.T) {
	s := newStack(t0, monthlyPlan(1, "starter", 100, 0))
	ctx := context.Background()

	_, err := s.lifecycle.Subscribe(ctx, owner(1), 1, &subscription.SubscribeRequest{
		PlanID: 1, PaymentMethodID: "pm_1",
	})
	require.NoError(t, err)
	_, err = s.lifecycle.Cancel(ctx, owner(1), 1, &subscription.CancelRequest{})
	require.NoError(t, err)

	s.now = t0.AddDate(0, 1, 0).Add(time.Hour)
	_, err = s.lifecycle.Reactivate(ctx, owner(1), 1)
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.ErrState))
}

func TestUpgradeChargesProratedDifference(t *testing.T) {
	s := newStack(t0, monthlyPlan(1, "starter", 100, 0), monthlyPlan(2, "growth", 300, 0))
	ctx := context.Background()

	_, err := s.lifecycle.Subscribe(ctx, owner(1), 1, &subscription.SubscribeRequest{
		PlanID: 1, PaymentMethodID: "pm_1", AutoRenewal: true,
	})
	require.NoError(t, err)

	// Day 15 of the 31-day January period.
	s.now = time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC)

	sub, pr, err := s.lifecycle.Upgrade(ctx, owner(1), 1, &subscription.ChangePlanRequest{NewPlanID: 2})
	require.NoError(t, err)

	assert.Equal(t, int64(2), sub.PlanID)
	assert.Equal(t, t0.AddDate(0, 1, 0), sub.CurrentPeriodEnd, "the period is unchanged")
	assert.True(t, pr.Net.Equal(decimal.RequireFromString("103.23")), "net = %s", pr.Net)
	assert.True(t, s.gateway.lastCall().Amount.Equal(decimal.RequireFromString("103.23")))

	attempts, _ := s.payments.ListBySubscription(ctx, sub.ID)
	require.Len(t, attempts, 2)
	assert.Equal(t, payment.TypePlanChange, attempts[0].Type)
}

func TestUpgradeRejectsCheaperPlan(t *testing.T) {
	s := newStack(t0, monthlyPlan(1, "starter", 100, 0), monthlyPlan(2, "growth", 300, 0))
	ctx := context.Background()

	_, err := s.lifecycle.Subscribe(ctx, owner(1), 1, &subscription.SubscribeRequest{
		PlanID: 2, PaymentMethodID: "pm_1",
	})
	require.NoError(t, err)

	_, _, err = s.lifecycle.Upgrade(ctx, owner(1), 1, &subscription.ChangePlanRequest{NewPlanID: 1})
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.ErrValidation))
}

func TestDowngradeRefusedOverCapacity(t *testing.T) {
	smaller := monthlyPlan(1, "starter", 100, 0)
	smaller.MaxStaff.Int32 = 5
	smaller.MaxStaff.Valid = true
	s := newStack(t0, smaller, monthlyPlan(2, "growth", 300, 0))
	s.usage.staff = 7
	ctx := context.Background()

	_, err := s.lifecycle.Subscribe(ctx, owner(1), 1, &subscription.SubscribeRequest{
		PlanID: 2, PaymentMethodID: "pm_1",
	})
	require.NoError(t, err)

	_, err = s.lifecycle.Downgrade(ctx, owner(1), 1, &subscription.ChangePlanRequest{NewPlanID: 1})
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.ErrCapacity))

	sub, err := s.subs.FindLiveByBusiness(ctx, 1)
	require.NoError(t, err)
	assert.False(t, sub.PendingPlanID.Valid, "a refused downgrade schedules nothing")
}

func TestDowngradeSchedulesAtRollover(t *testing.T) {
	smaller := monthlyPlan(1, "starter", 100, 0)
	smaller.MaxStaff.Int32 = 5
	smaller.MaxStaff.Valid = true
	s := newStack(t0, smaller, monthlyPlan(2, "growth", 300, 0))
	s.usage.staff = 3
	ctx := context.Background()

	_, err := s.lifecycle.Subscribe(ctx, owner(1), 1, &subscription.SubscribeRequest{
		PlanID: 2, PaymentMethodID: "pm_1", AutoRenewal: true,
	})
	require.NoError(t, err)

	sub, err := s.lifecycle.Downgrade(ctx, owner(1), 1, &subscription.ChangePlanRequest{NewPlanID: 1})
	require.NoError(t, err)

	assert.Equal(t, int64(2), sub.PlanID, "the current period keeps the old plan")
	require.True(t, sub.PendingPlanID.Valid)
	assert.Equal(t, int64(1), sub.PendingPlanID.Int64)
	assert.Equal(t, 1, s.gateway.callCount(), "downgrades never charge immediately")
}

func TestOperationsRequireAuthorization(t *testing.T) {
	s := newStack(t0, monthlyPlan(1, "starter", 100, 0))
	ctx := context.Background()

	stranger := authz.Context{UserID: 99, BusinessID: 2}
	_, err := s.lifecycle.Subscribe(ctx, stranger, 1, &subscription.SubscribeRequest{
		PlanID: 1, PaymentMethodID: "pm_1",
	})
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.ErrUnauthorized))
}

func TestApplyDiscountToExistingSubscription(t *testing.T) {
	s := newStack(t0, monthlyPlan(1, "growth", 100, 7))
	addSave20(s)
	ctx := context.Background()

	_, err := s.lifecycle.Subscribe(ctx, owner(1), 1, &subscription.SubscribeRequest{PlanID: 1})
	require.NoError(t, err)

	pd, err := s.lifecycle.ApplyDiscount(ctx, owner(1), 1, &subscription.ApplyDiscountRequest{Code: "save20"})
	require.NoError(t, err)
	assert.Equal(t, "SAVE20", pd.Code)
	assert.Equal(t, 1, pd.RemainingUses)

	// One pending discount per subscription.
	_, err = s.lifecycle.ApplyDiscount(ctx, owner(1), 1, &subscription.ApplyDiscountRequest{Code: "save20"})
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.ErrConflict))
}
