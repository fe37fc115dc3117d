// internal/service/billing/renewal.go
package billing

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kalenda-billing/internal/domain/discount"
	"kalenda-billing/internal/domain/payment"
	"kalenda-billing/internal/domain/plan"
	"kalenda-billing/internal/domain/subscription"
	"kalenda-billing/internal/gateway"
	xerrors "kalenda-billing/internal/pkg/errors"
	"kalenda-billing/internal/pkg/lock"
	discountsvc "kalenda-billing/internal/service/discount"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RetryPolicy governs how failed renewal charges are retried. After
// MaxRetries consecutive failures the subscription expires.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// BatchSummary reports what one renewal batch invocation did.
type BatchSummary struct {
	Renewed         int `json:"renewed"`
	TrialsConverted int `json:"trials_converted"`
	TrialsExpired   int `json:"trials_expired"`
	PastDue         int `json:"past_due"`
	Expired         int `json:"expired"`
	Skipped         int `json:"skipped"`
	Errors          int `json:"errors"`
}

// RenewalManager is the scheduled half of the billing core. Each run expires
// lapsed pending cancellations, settles ended trials and charges due
// renewals. Every subscription is claimed through the locker first, so
// overlapping invocations never double-charge, and the deterministic
// idempotency key covers the gateway side of the same race.
type RenewalManager struct {
	subs      subscription.Repository
	payments  payment.Repository
	plans     plan.Repository
	ledger    *discountsvc.Ledger
	pending   *discountsvc.PendingTracker
	gateway   gateway.PaymentGateway
	locker    lock.Locker
	policy    RetryPolicy
	batchSize int
	lockTTL   time.Duration
	logger    *zap.Logger
	clock     func() time.Time
}

func NewRenewalManager(
	subs subscription.Repository,
	payments payment.Repository,
	plans plan.Repository,
	ledger *discountsvc.Ledger,
	pending *discountsvc.PendingTracker,
	gw gateway.PaymentGateway,
	locker lock.Locker,
	policy RetryPolicy,
	batchSize int,
	lockTTL time.Duration,
	logger *zap.Logger,
) *RenewalManager {
	return &RenewalManager{
		subs:      subs,
		payments:  payments,
		plans:     plans,
		ledger:    ledger,
		pending:   pending,
		gateway:   gw,
		locker:    locker,
		policy:    policy,
		batchSize: batchSize,
		lockTTL:   lockTTL,
		logger:    logger,
		clock:     time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (m *RenewalManager) WithClock(clock func() time.Time) *RenewalManager {
	m.clock = clock
	return m
}

// RunDueRenewals processes everything due at the time of the call. A failure
// on one subscription is logged and counted; it never aborts the batch.
func (m *RenewalManager) RunDueRenewals(ctx context.Context) (*BatchSummary, error) {
	now := m.clock()
	summary := &BatchSummary{}

	if err := m.expireLapsedCancels(ctx, now, summary); err != nil {
		return summary, err
	}
	if err := m.settleDueTrials(ctx, now, summary); err != nil {
		return summary, err
	}
	if err := m.chargeDueRenewals(ctx, now, summary); err != nil {
		return summary, err
	}

	m.logger.Info("renewal batch finished",
		zap.Int("renewed", summary.Renewed),
		zap.Int("trials_converted", summary.TrialsConverted),
		zap.Int("trials_expired", summary.TrialsExpired),
		zap.Int("past_due", summary.PastDue),
		zap.Int("expired", summary.Expired),
		zap.Int("skipped", summary.Skipped),
		zap.Int("errors", summary.Errors),
	)

	return summary, nil
}

func (m *RenewalManager) expireLapsedCancels(ctx context.Context, now time.Time, summary *BatchSummary) error {
	subs, err := m.subs.FindLapsedPendingCancels(ctx, now, m.batchSize)
	if err != nil {
		return xerrors.Wrap(err, "failed to scan lapsed cancellations")
	}

	for i := range subs {
		sub := &subs[i]
		sub.Status = subscription.StatusExpired
		sub.NextBillingDate = sql.NullTime{}

		if err := m.subs.Update(ctx, sub); err != nil {
			if xerrors.Is(err, xerrors.ErrConflict) {
				summary.Skipped++
				continue
			}
			m.failSub(sub.ID, "expire lapsed cancellation", err, summary)
			continue
		}
		summary.Expired++
	}

	return nil
}

func (m *RenewalManager) settleDueTrials(ctx context.Context, now time.Time, summary *BatchSummary) error {
	subs, err := m.subs.FindDueTrials(ctx, now, m.batchSize)
	if err != nil {
		return xerrors.Wrap(err, "failed to scan due trials")
	}

	for i := range subs {
		m.withClaim(ctx, subs[i].ID, summary, func() {
			if err := m.settleTrial(ctx, subs[i].ID, now, summary); err != nil {
				m.failSub(subs[i].ID, "settle trial", err, summary)
			}
		})
	}

	return nil
}

func (m *RenewalManager) chargeDueRenewals(ctx context.Context, now time.Time, summary *BatchSummary) error {
	subs, err := m.subs.FindDueRenewals(ctx, now, m.batchSize)
	if err != nil {
		return xerrors.Wrap(err, "failed to scan due renewals")
	}

	for i := range subs {
		m.withClaim(ctx, subs[i].ID, summary, func() {
			if err := m.renewOne(ctx, subs[i].ID, now, summary); err != nil {
				m.failSub(subs[i].ID, "renew", err, summary)
			}
		})
	}

	return nil
}

// withClaim runs fn only when this invocation wins the subscription's claim.
func (m *RenewalManager) withClaim(ctx context.Context, subID int64, summary *BatchSummary, fn func()) {
	key := fmt.Sprintf("sub:%d", subID)

	ok, err := m.locker.Acquire(ctx, key, m.lockTTL)
	if err != nil {
		m.failSub(subID, "acquire claim", err, summary)
		return
	}
	if !ok {
		summary.Skipped++
		return
	}
	defer func() {
		if err := m.locker.Release(ctx, key); err != nil {
			m.logger.Warn("failed to release claim", zap.Int64("subscription_id", subID), zap.Error(err))
		}
	}()

	fn()
}

// settleTrial converts an ended trial when renewal is on and a payment method
// is on file, and expires it otherwise.
func (m *RenewalManager) settleTrial(ctx context.Context, subID int64, now time.Time, summary *BatchSummary) error {
	// Re-fetch under the claim; the scan snapshot may be stale.
	sub, err := m.subs.FindByID(ctx, subID)
	if err != nil {
		return err
	}
	if !sub.IsTrial() || !sub.TrialEndedAt(now) {
		summary.Skipped++
		return nil
	}

	if !sub.AutoRenewal || !sub.PaymentMethodID.Valid {
		sub.Status = subscription.StatusExpired
		if err := m.subs.Update(ctx, sub); err != nil {
			if xerrors.Is(err, xerrors.ErrConflict) {
				summary.Skipped++
				return nil
			}
			return err
		}
		summary.TrialsExpired++
		return nil
	}

	p, err := m.plans.FindByID(ctx, sub.PlanID)
	if err != nil {
		return err
	}

	idempotencyKey := fmt.Sprintf("trial_conversion:%d", sub.ID)
	charged, err := m.chargeWithDiscount(ctx, sub, p, payment.TypeTrialConversion, idempotencyKey, now)
	if err != nil {
		return err
	}

	if !charged {
		m.recordFailure(sub, now)
		if sub.Status == subscription.StatusExpired {
			summary.Expired++
		} else {
			summary.PastDue++
		}
		return m.subs.Update(ctx, sub)
	}

	sub.Status = subscription.StatusActive
	sub.CurrentPeriodStart = now
	sub.CurrentPeriodEnd = p.PeriodEnd(now)
	sub.FailedPaymentCount = 0
	sub.NextBillingDate = sql.NullTime{}

	if err := m.subs.Update(ctx, sub); err != nil {
		return err
	}
	summary.TrialsConverted++
	return nil
}

// renewOne charges one due subscription and advances or demotes it.
func (m *RenewalManager) renewOne(ctx context.Context, subID int64, now time.Time, summary *BatchSummary) error {
	sub, err := m.subs.FindByID(ctx, subID)
	if err != nil {
		return err
	}
	if !m.stillDue(sub, now) {
		summary.Skipped++
		return nil
	}

	// A scheduled downgrade takes effect at this rollover.
	effectivePlanID := sub.PlanID
	if sub.PendingPlanID.Valid {
		effectivePlanID = sub.PendingPlanID.Int64
	}
	p, err := m.plans.FindByID(ctx, effectivePlanID)
	if err != nil {
		return err
	}

	idempotencyKey := fmt.Sprintf("renewal:%d:%d", sub.ID, sub.CurrentPeriodEnd.Unix())
	charged, err := m.chargeWithDiscount(ctx, sub, p, payment.TypeRenewal, idempotencyKey, now)
	if err != nil {
		return err
	}

	if !charged {
		m.recordFailure(sub, now)
		if sub.Status == subscription.StatusExpired {
			summary.Expired++
		} else {
			summary.PastDue++
		}
		return m.subs.Update(ctx, sub)
	}

	// The new period extends the old one; late processing never shortens it.
	newStart := sub.CurrentPeriodEnd
	sub.PlanID = effectivePlanID
	sub.PendingPlanID = sql.NullInt64{}
	sub.Status = subscription.StatusActive
	sub.CurrentPeriodStart = newStart
	sub.CurrentPeriodEnd = p.PeriodEnd(newStart)
	sub.FailedPaymentCount = 0
	sub.NextBillingDate = sql.NullTime{}

	if err := m.subs.Update(ctx, sub); err != nil {
		return err
	}
	summary.Renewed++
	return nil
}

func (m *RenewalManager) stillDue(sub *subscription.Subscription, now time.Time) bool {
	if sub.Status != subscription.StatusActive && sub.Status != subscription.StatusPastDue {
		return false
	}
	if !sub.AutoRenewal || sub.CancelAtPeriodEnd {
		return false
	}
	if sub.CurrentPeriodEnd.After(now) {
		return false
	}
	if sub.NextBillingDate.Valid && sub.NextBillingDate.Time.After(now) {
		return false
	}
	return true
}

// chargeWithDiscount charges the gateway for one billing event, applying the
// subscription's pending discount when it is eligible for this event type,
// and records the attempt. It returns whether the charge succeeded; a gateway
// transport error counts as a failed attempt.
func (m *RenewalManager) chargeWithDiscount(ctx context.Context, sub *subscription.Subscription, p *plan.Plan, paymentType payment.Type, idempotencyKey string, now time.Time) (bool, error) {
	amount := p.Price
	discountAmount := decimal.Zero

	pd, err := m.pending.Applicable(ctx, sub.ID, paymentType)
	if err != nil {
		return false, err
	}
	if pd != nil {
		discountAmount = m.pending.Amount(pd, amount)
		amount = amount.Sub(discountAmount)
	}

	var succeeded bool
	var gatewayPaymentID, failureReason string

	result, chargeErr := m.gateway.Charge(ctx, &gateway.ChargeRequest{
		Amount:          amount,
		Currency:        sub.Currency,
		PaymentMethodID: sub.PaymentMethodID.String,
		IdempotencyKey:  idempotencyKey,
		Description:     fmt.Sprintf("%s for %s", paymentType, p.Name),
	})
	switch {
	case chargeErr != nil:
		failureReason = chargeErr.Error()
	case result.Succeeded:
		succeeded = true
		gatewayPaymentID = result.PaymentID
	default:
		failureReason = result.FailureReason
	}

	paymentRef := newReference("pay")
	attempt := &payment.Attempt{
		Reference:        paymentRef,
		SubscriptionID:   sub.ID,
		BusinessID:       sub.BusinessID,
		Type:             paymentType,
		Amount:           amount,
		Currency:         sub.Currency,
		RetryCount:       sub.FailedPaymentCount,
		MaxRetries:       m.policy.MaxRetries,
		IdempotencyKey:   idempotencyKey,
		GatewayPaymentID: sql.NullString{String: gatewayPaymentID, Valid: gatewayPaymentID != ""},
		FailureReason:    sql.NullString{String: failureReason, Valid: failureReason != ""},
	}
	if succeeded {
		attempt.Status = payment.StatusSucceeded
	} else {
		attempt.Status = payment.StatusFailed
	}
	if pd != nil {
		attempt.DiscountCode = sql.NullString{String: pd.Code, Valid: true}
		attempt.DiscountAmount = decimal.NullDecimal{Decimal: discountAmount, Valid: true}
	}

	if err := m.payments.Create(ctx, attempt); err != nil {
		return false, err
	}

	// Discount bookkeeping only burns a use on a successful charge.
	if succeeded && pd != nil {
		if err := m.pending.MarkApplied(ctx, pd, paymentRef); err != nil {
			return false, err
		}
		rec := &discount.UsageRecord{
			CodeID:           pd.CodeID,
			BusinessID:       sub.BusinessID,
			SubscriptionID:   sql.NullInt64{Int64: sub.ID, Valid: true},
			PaymentReference: sql.NullString{String: paymentRef, Valid: true},
			DiscountAmount:   discountAmount,
			OriginalAmount:   p.Price,
			FinalAmount:      amount,
			AppliedAt:        now,
		}
		if err := m.ledger.RecordUsage(ctx, rec); err != nil {
			return false, err
		}
	}

	if !succeeded {
		m.logger.Warn("billing charge failed",
			zap.Int64("subscription_id", sub.ID),
			zap.String("type", string(paymentType)),
			zap.Int("failed_payment_count", sub.FailedPaymentCount+1),
			zap.String("reason", failureReason),
		)
	}

	return succeeded, nil
}

// recordFailure advances the retry ladder on the in-memory subscription.
func (m *RenewalManager) recordFailure(sub *subscription.Subscription, now time.Time) {
	sub.FailedPaymentCount++

	if sub.FailedPaymentCount >= m.policy.MaxRetries {
		sub.Status = subscription.StatusExpired
		sub.NextBillingDate = sql.NullTime{}
		return
	}

	sub.Status = subscription.StatusPastDue
	sub.NextBillingDate = sql.NullTime{Time: now.Add(m.policy.Backoff), Valid: true}
}

func (m *RenewalManager) failSub(subID int64, op string, err error, summary *BatchSummary) {
	summary.Errors++
	m.logger.Error("renewal batch item failed",
		zap.Int64("subscription_id", subID),
		zap.String("op", op),
		zap.Error(err),
	)
}
