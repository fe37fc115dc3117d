// internal/service/discount/pending.go
package discount

import (
	"context"
	"time"

	"kalenda-billing/internal/domain/discount"
	"kalenda-billing/internal/domain/payment"
	"kalenda-billing/internal/domain/subscription"
	xerrors "kalenda-billing/internal/pkg/errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PendingTracker manages discounts that were validated at subscribe time but
// apply to a later billing event, the trial-to-active conversion in
// particular. The snapshot frozen at validation drives all later arithmetic.
type PendingTracker struct {
	subs     subscription.Repository
	payments payment.Repository
	window   time.Duration
	logger   *zap.Logger
	clock    func() time.Time
}

func NewPendingTracker(subs subscription.Repository, payments payment.Repository, window time.Duration, logger *zap.Logger) *PendingTracker {
	return &PendingTracker{
		subs:     subs,
		payments: payments,
		window:   window,
		logger:   logger,
		clock:    time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (t *PendingTracker) WithClock(clock func() time.Time) *PendingTracker {
	t.clock = clock
	return t
}

// Attach stores a validated snapshot against a subscription. Recurring codes
// start with their full allowance; one-shot codes with a single use.
func (t *PendingTracker) Attach(ctx context.Context, subscriptionID int64, snap *discount.Snapshot, validatedAt time.Time) (*subscription.PendingDiscount, error) {
	remaining := 1
	if snap.IsRecurring {
		remaining = snap.MaxRecurringUses
	}

	pd := &subscription.PendingDiscount{
		SubscriptionID: subscriptionID,
		CodeID:         snap.CodeID,
		Code:           snap.Code,
		DiscountType:   snap.DiscountType,
		DiscountValue:  snap.DiscountValue,
		IsRecurring:    snap.IsRecurring,
		RemainingUses:  remaining,
		ValidatedAt:    validatedAt,
	}

	if err := t.subs.AttachPendingDiscount(ctx, pd); err != nil {
		return nil, err
	}

	t.logger.Info("pending discount attached",
		zap.Int64("subscription_id", subscriptionID),
		zap.String("code", snap.Code),
		zap.Int("remaining_uses", remaining),
	)

	return pd, nil
}

// Applicable returns the pending discount to apply to a billing event of the
// given type, or nil when none applies. The 24-hour freshness window guards
// initial charges only; a trial conversion redeems the snapshot whenever the
// trial ends.
func (t *PendingTracker) Applicable(ctx context.Context, subscriptionID int64, paymentType payment.Type) (*subscription.PendingDiscount, error) {
	pd, err := t.subs.GetPendingDiscount(ctx, subscriptionID)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if pd.Exhausted() {
		return nil, nil
	}

	switch paymentType {
	case payment.TypeInitial:
		if t.clock().After(pd.ValidatedAt.Add(t.window)) {
			return nil, nil
		}
		used, err := t.payments.HasSucceededOfType(ctx, subscriptionID, payment.TypeInitial)
		if err != nil {
			return nil, err
		}
		if used {
			return nil, nil
		}
	case payment.TypeTrialConversion:
		used, err := t.payments.HasSucceededOfType(ctx, subscriptionID, payment.TypeTrialConversion)
		if err != nil {
			return nil, err
		}
		if used {
			return nil, nil
		}
	case payment.TypeRenewal:
		if !pd.IsRecurring {
			return nil, nil
		}
	default:
		// Plan changes are priced by proration alone.
		return nil, nil
	}

	return pd, nil
}

// Amount computes the discount a pending snapshot yields on the given amount.
func (t *PendingTracker) Amount(pd *subscription.PendingDiscount, amount decimal.Decimal) decimal.Decimal {
	return ComputeDiscount(pd.DiscountType, pd.DiscountValue, amount)
}

// MarkApplied burns one use and records the payment reference it went to.
func (t *PendingTracker) MarkApplied(ctx context.Context, pd *subscription.PendingDiscount, paymentRef string) error {
	pd.RemainingUses--
	pd.AppliedPaymentRefs = append(pd.AppliedPaymentRefs, paymentRef)

	if err := t.subs.UpdatePendingDiscount(ctx, pd); err != nil {
		return err
	}

	t.logger.Info("pending discount applied",
		zap.Int64("subscription_id", pd.SubscriptionID),
		zap.String("code", pd.Code),
		zap.String("payment_reference", paymentRef),
		zap.Int("remaining_uses", pd.RemainingUses),
	)

	return nil
}
