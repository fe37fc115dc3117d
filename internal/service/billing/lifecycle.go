// internal/service/billing/lifecycle.go
package billing

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kalenda-billing/internal/authz"
	"kalenda-billing/internal/domain/discount"
	"kalenda-billing/internal/domain/payment"
	"kalenda-billing/internal/domain/plan"
	"kalenda-billing/internal/domain/subscription"
	"kalenda-billing/internal/gateway"
	xerrors "kalenda-billing/internal/pkg/errors"
	discountsvc "kalenda-billing/internal/service/discount"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// UsageSource reads a business's current resource consumption so a downgrade
// can be refused before it would strand data above the smaller plan's limits.
type UsageSource interface {
	StaffCount(ctx context.Context, businessID int64) (int, error)
	LocationCount(ctx context.Context, businessID int64) (int, error)
}

// Lifecycle drives every subscription state transition a user can trigger.
// Interactive charges go to the gateway before anything is persisted, so a
// declined card leaves no half-written state behind.
type Lifecycle struct {
	subs       subscription.Repository
	payments   payment.Repository
	plans      plan.Repository
	ledger     *discountsvc.Ledger
	pending    *discountsvc.PendingTracker
	usage      UsageSource
	gateway    gateway.PaymentGateway
	authorizer authz.Authorizer
	maxRetries int
	logger     *zap.Logger
	clock      func() time.Time
}

func NewLifecycle(
	subs subscription.Repository,
	payments payment.Repository,
	plans plan.Repository,
	ledger *discountsvc.Ledger,
	pending *discountsvc.PendingTracker,
	usage UsageSource,
	gw gateway.PaymentGateway,
	authorizer authz.Authorizer,
	maxRetries int,
	logger *zap.Logger,
) *Lifecycle {
	return &Lifecycle{
		subs:       subs,
		payments:   payments,
		plans:      plans,
		ledger:     ledger,
		pending:    pending,
		usage:      usage,
		gateway:    gw,
		authorizer: authorizer,
		maxRetries: maxRetries,
		logger:     logger,
		clock:      time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (s *Lifecycle) WithClock(clock func() time.Time) *Lifecycle {
	s.clock = clock
	return s
}

// Subscribe creates a subscription for a business. Plans with a trial start
// in TRIAL without charging; paid plans charge the full (or discounted) first
// period up front and start ACTIVE.
func (s *Lifecycle) Subscribe(ctx context.Context, actor authz.Context, businessID int64, req *subscription.SubscribeRequest) (*subscription.Subscription, error) {
	if err := s.authorize(ctx, actor, authz.PermBillingManage, businessID); err != nil {
		return nil, err
	}

	if existing, err := s.subs.FindLiveByBusiness(ctx, businessID); err == nil && existing != nil {
		return nil, xerrors.New(xerrors.ErrConflict, "business already has a live subscription")
	} else if err != nil && !xerrors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}

	p, err := s.plans.FindByID(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	if !p.Subscribable() {
		return nil, xerrors.New(xerrors.ErrValidation, "plan is not open for subscription")
	}

	now := s.clock()

	// A bad code rejects the whole subscribe call rather than silently
	// subscribing at full price.
	var validation *discount.ValidationResult
	if req.DiscountCode != "" {
		validation, err = s.ledger.Validate(ctx, req.DiscountCode, p.ID, p.Price, actor.UserID)
		if err != nil {
			return nil, err
		}
		if !validation.Valid {
			return nil, xerrors.New(xerrors.ErrValidation, validation.Reason)
		}
	}

	if p.HasTrial() {
		return s.subscribeTrial(ctx, actor, businessID, p, req, validation, now)
	}
	return s.subscribePaid(ctx, actor, businessID, p, req, validation, now)
}

func (s *Lifecycle) subscribeTrial(ctx context.Context, actor authz.Context, businessID int64, p *plan.Plan, req *subscription.SubscribeRequest, validation *discount.ValidationResult, now time.Time) (*subscription.Subscription, error) {
	trialEnd := now.AddDate(0, 0, p.TrialDays)

	sub := &subscription.Subscription{
		Reference:          newReference("sub"),
		BusinessID:         businessID,
		PlanID:             p.ID,
		Status:             subscription.StatusTrial,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   trialEnd,
		TrialStart:         sql.NullTime{Time: now, Valid: true},
		TrialEnd:           sql.NullTime{Time: trialEnd, Valid: true},
		AutoRenewal:        req.AutoRenewal,
		Currency:           p.Currency,
	}
	if req.PaymentMethodID != "" {
		sub.PaymentMethodID = sql.NullString{String: req.PaymentMethodID, Valid: true}
	}

	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, err
	}

	if validation != nil {
		if _, err := s.pending.Attach(ctx, sub.ID, validation.Snapshot, now); err != nil {
			return nil, err
		}
	}

	s.logger.Info("trial subscription created",
		zap.Int64("business_id", businessID),
		zap.String("reference", sub.Reference),
		zap.Int64("plan_id", p.ID),
		zap.Time("trial_end", trialEnd),
	)

	return sub, nil
}

func (s *Lifecycle) subscribePaid(ctx context.Context, actor authz.Context, businessID int64, p *plan.Plan, req *subscription.SubscribeRequest, validation *discount.ValidationResult, now time.Time) (*subscription.Subscription, error) {
	if req.PaymentMethodID == "" {
		return nil, xerrors.New(xerrors.ErrValidation, "payment method is required for plans without a trial")
	}

	amount := p.Price
	discountAmount := decimal.Zero
	if validation != nil {
		discountAmount = validation.DiscountAmount
		amount = validation.FinalAmount
	}

	paymentRef := newReference("pay")
	result, err := s.gateway.Charge(ctx, &gateway.ChargeRequest{
		Amount:          amount,
		Currency:        p.Currency,
		PaymentMethodID: req.PaymentMethodID,
		IdempotencyKey:  fmt.Sprintf("initial:%d:%s", businessID, paymentRef),
		Description:     fmt.Sprintf("Subscription to %s", p.Name),
	})
	if err != nil {
		return nil, xerrors.WithCause(xerrors.ErrPayment, "payment gateway unavailable", err)
	}
	if !result.Succeeded {
		return nil, xerrors.Newf(xerrors.ErrPayment, "initial payment declined: %s", result.FailureReason)
	}

	sub := &subscription.Subscription{
		Reference:          newReference("sub"),
		BusinessID:         businessID,
		PlanID:             p.ID,
		Status:             subscription.StatusActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   p.PeriodEnd(now),
		AutoRenewal:        req.AutoRenewal,
		PaymentMethodID:    sql.NullString{String: req.PaymentMethodID, Valid: true},
		Currency:           p.Currency,
	}

	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, err
	}

	attempt := &payment.Attempt{
		Reference:        paymentRef,
		SubscriptionID:   sub.ID,
		BusinessID:       businessID,
		Type:             payment.TypeInitial,
		Status:           payment.StatusSucceeded,
		Amount:           amount,
		Currency:         p.Currency,
		MaxRetries:       s.maxRetries,
		IdempotencyKey:   fmt.Sprintf("initial:%d:%s", businessID, paymentRef),
		GatewayPaymentID: sql.NullString{String: result.PaymentID, Valid: result.PaymentID != ""},
	}
	if validation != nil {
		attempt.DiscountCode = sql.NullString{String: validation.Snapshot.Code, Valid: true}
		attempt.DiscountAmount = decimal.NullDecimal{Decimal: discountAmount, Valid: true}
	}
	if err := s.payments.Create(ctx, attempt); err != nil {
		return nil, err
	}

	if validation != nil {
		pd, err := s.pending.Attach(ctx, sub.ID, validation.Snapshot, now)
		if err != nil {
			return nil, err
		}
		if err := s.pending.MarkApplied(ctx, pd, paymentRef); err != nil {
			return nil, err
		}
		if err := s.recordUsage(ctx, actor.UserID, businessID, sub.ID, paymentRef, validation); err != nil {
			return nil, err
		}
	}

	s.logger.Info("paid subscription created",
		zap.Int64("business_id", businessID),
		zap.String("reference", sub.Reference),
		zap.Int64("plan_id", p.ID),
		zap.String("amount", amount.String()),
	)

	return sub, nil
}

// ConvertTrialToActive charges the first real period and promotes a trial. The
// pending discount attached at subscribe time applies here regardless of how
// long the trial ran.
func (s *Lifecycle) ConvertTrialToActive(ctx context.Context, actor authz.Context, businessID int64, req *subscription.ConvertTrialRequest) (*subscription.Subscription, error) {
	if err := s.authorize(ctx, actor, authz.PermBillingManage, businessID); err != nil {
		return nil, err
	}

	sub, err := s.subs.FindLiveByBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if !sub.IsTrial() {
		return nil, xerrors.New(xerrors.ErrState, "subscription is not in trial")
	}

	paymentMethodID := req.PaymentMethodID
	if paymentMethodID == "" && sub.PaymentMethodID.Valid {
		paymentMethodID = sub.PaymentMethodID.String
	}
	if paymentMethodID == "" {
		return nil, xerrors.New(xerrors.ErrValidation, "payment method is required to convert a trial")
	}

	p, err := s.plans.FindByID(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	amount := p.Price
	discountAmount := decimal.Zero

	pd, err := s.pending.Applicable(ctx, sub.ID, payment.TypeTrialConversion)
	if err != nil {
		return nil, err
	}
	if pd != nil {
		discountAmount = s.pending.Amount(pd, amount)
		amount = amount.Sub(discountAmount)
	}

	paymentRef := newReference("pay")
	idempotencyKey := fmt.Sprintf("trial_conversion:%d", sub.ID)

	result, err := s.gateway.Charge(ctx, &gateway.ChargeRequest{
		Amount:          amount,
		Currency:        sub.Currency,
		PaymentMethodID: paymentMethodID,
		IdempotencyKey:  idempotencyKey,
		Description:     fmt.Sprintf("Trial conversion to %s", p.Name),
	})
	if err != nil {
		return nil, xerrors.WithCause(xerrors.ErrPayment, "payment gateway unavailable", err)
	}

	attempt := &payment.Attempt{
		Reference:        paymentRef,
		SubscriptionID:   sub.ID,
		BusinessID:       businessID,
		Type:             payment.TypeTrialConversion,
		Amount:           amount,
		Currency:         sub.Currency,
		MaxRetries:       s.maxRetries,
		IdempotencyKey:   idempotencyKey,
		GatewayPaymentID: sql.NullString{String: result.PaymentID, Valid: result.PaymentID != ""},
	}
	if pd != nil {
		attempt.DiscountCode = sql.NullString{String: pd.Code, Valid: true}
		attempt.DiscountAmount = decimal.NullDecimal{Decimal: discountAmount, Valid: true}
	}

	if !result.Succeeded {
		attempt.Status = payment.StatusFailed
		attempt.FailureReason = sql.NullString{String: result.FailureReason, Valid: result.FailureReason != ""}
		if err := s.payments.Create(ctx, attempt); err != nil {
			return nil, err
		}
		return nil, xerrors.Newf(xerrors.ErrPayment, "trial conversion payment declined: %s", result.FailureReason)
	}

	attempt.Status = payment.StatusSucceeded
	if err := s.payments.Create(ctx, attempt); err != nil {
		return nil, err
	}

	if pd != nil {
		if err := s.pending.MarkApplied(ctx, pd, paymentRef); err != nil {
			return nil, err
		}
		rec := &discount.UsageRecord{
			CodeID:           pd.CodeID,
			UserID:           actor.UserID,
			BusinessID:       businessID,
			SubscriptionID:   sql.NullInt64{Int64: sub.ID, Valid: true},
			PaymentReference: sql.NullString{String: paymentRef, Valid: true},
			DiscountAmount:   discountAmount,
			OriginalAmount:   p.Price,
			FinalAmount:      amount,
			AppliedAt:        now,
		}
		if err := s.ledger.RecordUsage(ctx, rec); err != nil {
			return nil, err
		}
	}

	sub.Status = subscription.StatusActive
	sub.CurrentPeriodStart = now
	sub.CurrentPeriodEnd = p.PeriodEnd(now)
	sub.PaymentMethodID = sql.NullString{String: paymentMethodID, Valid: true}
	sub.NextBillingDate = sql.NullTime{}
	sub.FailedPaymentCount = 0

	if err := s.subs.Update(ctx, sub); err != nil {
		return nil, err
	}

	s.logger.Info("trial converted to active",
		zap.Int64("subscription_id", sub.ID),
		zap.Int64("business_id", businessID),
		zap.String("amount", amount.String()),
	)

	return sub, nil
}

// Cancel ends a subscription. The default cancels at the period end, keeping
// access for the time already paid; an explicit at_period_end=false revokes
// access immediately.
func (s *Lifecycle) Cancel(ctx context.Context, actor authz.Context, businessID int64, req *subscription.CancelRequest) (*subscription.Subscription, error) {
	if err := s.authorize(ctx, actor, authz.PermBillingManage, businessID); err != nil {
		return nil, err
	}

	sub, err := s.subs.FindLiveByBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}

	atPeriodEnd := true
	if req.AtPeriodEnd != nil {
		atPeriodEnd = *req.AtPeriodEnd
	}

	now := s.clock()
	sub.Status = subscription.StatusCanceled
	sub.CancelAtPeriodEnd = atPeriodEnd
	sub.CanceledAt = sql.NullTime{Time: now, Valid: true}
	sub.AutoRenewal = false
	sub.PendingPlanID = sql.NullInt64{}
	sub.NextBillingDate = sql.NullTime{}

	if err := s.subs.Update(ctx, sub); err != nil {
		return nil, err
	}

	s.logger.Info("subscription canceled",
		zap.Int64("subscription_id", sub.ID),
		zap.Int64("business_id", businessID),
		zap.Bool("at_period_end", atPeriodEnd),
		zap.String("reason", req.Reason),
	)

	return sub, nil
}

// Reactivate undoes a pending cancellation before its period runs out.
func (s *Lifecycle) Reactivate(ctx context.Context, actor authz.Context, businessID int64) (*subscription.Subscription, error) {
	if err := s.authorize(ctx, actor, authz.PermBillingManage, businessID); err != nil {
		return nil, err
	}

	sub, err := s.subs.FindCurrentByBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	if !sub.PendingCancel() || !now.Before(sub.CurrentPeriodEnd) {
		return nil, xerrors.New(xerrors.ErrState, "only a cancellation pending at period end can be reactivated")
	}

	if sub.TrialEnd.Valid && now.Before(sub.TrialEnd.Time) {
		sub.Status = subscription.StatusTrial
	} else {
		sub.Status = subscription.StatusActive
	}
	sub.CancelAtPeriodEnd = false
	sub.CanceledAt = sql.NullTime{}
	sub.AutoRenewal = true

	if err := s.subs.Update(ctx, sub); err != nil {
		return nil, err
	}

	s.logger.Info("subscription reactivated",
		zap.Int64("subscription_id", sub.ID),
		zap.Int64("business_id", businessID),
	)

	return sub, nil
}

// Upgrade switches to a more expensive plan immediately, charging the
// prorated difference for the rest of the current period. A non-positive net
// is recorded as a credit without touching the gateway.
func (s *Lifecycle) Upgrade(ctx context.Context, actor authz.Context, businessID int64, req *subscription.ChangePlanRequest) (*subscription.Subscription, *Proration, error) {
	sub, oldPlan, newPlan, err := s.loadForPlanChange(ctx, actor, businessID, req.NewPlanID)
	if err != nil {
		return nil, nil, err
	}
	if !newPlan.Price.GreaterThan(oldPlan.Price) {
		return nil, nil, xerrors.New(xerrors.ErrValidation, "new plan is not an upgrade; use downgrade instead")
	}

	now := s.clock()
	pr := Prorate(oldPlan.Price, newPlan.Price, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, now)

	paymentRef := newReference("pay")
	idempotencyKey := fmt.Sprintf("plan_change:%d:%d:%d", sub.ID, newPlan.ID, sub.CurrentPeriodStart.Unix())

	attempt := &payment.Attempt{
		Reference:      paymentRef,
		SubscriptionID: sub.ID,
		BusinessID:     businessID,
		Type:           payment.TypePlanChange,
		Status:         payment.StatusSucceeded,
		Amount:         pr.Net,
		Currency:       sub.Currency,
		MaxRetries:     s.maxRetries,
		IdempotencyKey: idempotencyKey,
	}

	if pr.Net.IsPositive() {
		if !sub.PaymentMethodID.Valid {
			return nil, nil, xerrors.New(xerrors.ErrValidation, "subscription has no payment method on file")
		}

		result, err := s.gateway.Charge(ctx, &gateway.ChargeRequest{
			Amount:          pr.Net,
			Currency:        sub.Currency,
			PaymentMethodID: sub.PaymentMethodID.String,
			IdempotencyKey:  idempotencyKey,
			Description:     fmt.Sprintf("Upgrade from %s to %s", oldPlan.Name, newPlan.Name),
		})
		if err != nil {
			return nil, nil, xerrors.WithCause(xerrors.ErrPayment, "payment gateway unavailable", err)
		}
		if !result.Succeeded {
			attempt.Status = payment.StatusFailed
			attempt.FailureReason = sql.NullString{String: result.FailureReason, Valid: result.FailureReason != ""}
			if err := s.payments.Create(ctx, attempt); err != nil {
				return nil, nil, err
			}
			return nil, nil, xerrors.Newf(xerrors.ErrPayment, "upgrade payment declined: %s", result.FailureReason)
		}
		attempt.GatewayPaymentID = sql.NullString{String: result.PaymentID, Valid: result.PaymentID != ""}
	}

	if err := s.payments.Create(ctx, attempt); err != nil {
		return nil, nil, err
	}

	sub.PlanID = newPlan.ID
	sub.PendingPlanID = sql.NullInt64{}

	if err := s.subs.Update(ctx, sub); err != nil {
		return nil, nil, err
	}

	s.logger.Info("subscription upgraded",
		zap.Int64("subscription_id", sub.ID),
		zap.Int64("business_id", businessID),
		zap.Int64("new_plan_id", newPlan.ID),
		zap.String("prorated_net", pr.Net.String()),
	)

	return sub, &pr, nil
}

// Downgrade schedules a switch to a cheaper plan at the next rollover, after
// checking the business fits inside the smaller plan's limits today.
func (s *Lifecycle) Downgrade(ctx context.Context, actor authz.Context, businessID int64, req *subscription.ChangePlanRequest) (*subscription.Subscription, error) {
	sub, oldPlan, newPlan, err := s.loadForPlanChange(ctx, actor, businessID, req.NewPlanID)
	if err != nil {
		return nil, err
	}
	if !newPlan.Price.LessThan(oldPlan.Price) {
		return nil, xerrors.New(xerrors.ErrValidation, "new plan is not a downgrade; use upgrade instead")
	}

	if newPlan.MaxStaff.Valid {
		count, err := s.usage.StaffCount(ctx, businessID)
		if err != nil {
			return nil, err
		}
		if count > int(newPlan.MaxStaff.Int32) {
			return nil, xerrors.Newf(xerrors.ErrCapacity,
				"business has %d active staff but the plan allows %d", count, newPlan.MaxStaff.Int32)
		}
	}
	if newPlan.MaxLocations.Valid {
		count, err := s.usage.LocationCount(ctx, businessID)
		if err != nil {
			return nil, err
		}
		if count > int(newPlan.MaxLocations.Int32) {
			return nil, xerrors.Newf(xerrors.ErrCapacity,
				"business has %d locations but the plan allows %d", count, newPlan.MaxLocations.Int32)
		}
	}

	sub.PendingPlanID = sql.NullInt64{Int64: newPlan.ID, Valid: true}

	if err := s.subs.Update(ctx, sub); err != nil {
		return nil, err
	}

	s.logger.Info("subscription downgrade scheduled",
		zap.Int64("subscription_id", sub.ID),
		zap.Int64("business_id", businessID),
		zap.Int64("pending_plan_id", newPlan.ID),
		zap.Time("effective_at", sub.CurrentPeriodEnd),
	)

	return sub, nil
}

// ApplyDiscount validates a code against the subscription's plan and attaches
// it for the next eligible billing event.
func (s *Lifecycle) ApplyDiscount(ctx context.Context, actor authz.Context, businessID int64, req *subscription.ApplyDiscountRequest) (*subscription.PendingDiscount, error) {
	if err := s.authorize(ctx, actor, authz.PermBillingManage, businessID); err != nil {
		return nil, err
	}

	sub, err := s.subs.FindLiveByBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}

	p, err := s.plans.FindByID(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}

	validation, err := s.ledger.Validate(ctx, req.Code, p.ID, p.Price, actor.UserID)
	if err != nil {
		return nil, err
	}
	if !validation.Valid {
		return nil, xerrors.New(xerrors.ErrValidation, validation.Reason)
	}

	return s.pending.Attach(ctx, sub.ID, validation.Snapshot, s.clock())
}

// GetByBusiness returns the business's current subscription, live or not.
func (s *Lifecycle) GetByBusiness(ctx context.Context, actor authz.Context, businessID int64) (*subscription.Subscription, error) {
	if err := s.authorize(ctx, actor, authz.PermBillingRead, businessID); err != nil {
		return nil, err
	}
	return s.subs.FindCurrentByBusiness(ctx, businessID)
}

// ListPayments returns the payment history of the business's current
// subscription, newest first.
func (s *Lifecycle) ListPayments(ctx context.Context, actor authz.Context, businessID int64) ([]payment.Attempt, error) {
	if err := s.authorize(ctx, actor, authz.PermBillingRead, businessID); err != nil {
		return nil, err
	}

	sub, err := s.subs.FindCurrentByBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	return s.payments.ListBySubscription(ctx, sub.ID)
}

func (s *Lifecycle) loadForPlanChange(ctx context.Context, actor authz.Context, businessID, newPlanID int64) (*subscription.Subscription, *plan.Plan, *plan.Plan, error) {
	if err := s.authorize(ctx, actor, authz.PermBillingManage, businessID); err != nil {
		return nil, nil, nil, err
	}

	sub, err := s.subs.FindLiveByBusiness(ctx, businessID)
	if err != nil {
		return nil, nil, nil, err
	}
	if sub.Status != subscription.StatusActive {
		return nil, nil, nil, xerrors.New(xerrors.ErrState, "only an active subscription can change plan")
	}
	if sub.PlanID == newPlanID {
		return nil, nil, nil, xerrors.New(xerrors.ErrValidation, "subscription is already on this plan")
	}

	oldPlan, err := s.plans.FindByID(ctx, sub.PlanID)
	if err != nil {
		return nil, nil, nil, err
	}
	newPlan, err := s.plans.FindByID(ctx, newPlanID)
	if err != nil {
		return nil, nil, nil, err
	}
	if !newPlan.Subscribable() {
		return nil, nil, nil, xerrors.New(xerrors.ErrValidation, "plan is not open for subscription")
	}

	return sub, oldPlan, newPlan, nil
}

func (s *Lifecycle) recordUsage(ctx context.Context, userID, businessID, subscriptionID int64, paymentRef string, validation *discount.ValidationResult) error {
	rec := &discount.UsageRecord{
		CodeID:           validation.Snapshot.CodeID,
		UserID:           userID,
		BusinessID:       businessID,
		SubscriptionID:   sql.NullInt64{Int64: subscriptionID, Valid: true},
		PaymentReference: sql.NullString{String: paymentRef, Valid: true},
		DiscountAmount:   validation.DiscountAmount,
		OriginalAmount:   validation.OriginalAmount,
		FinalAmount:      validation.FinalAmount,
		AppliedAt:        s.clock(),
	}
	return s.ledger.RecordUsage(ctx, rec)
}

func (s *Lifecycle) authorize(ctx context.Context, actor authz.Context, permission string, businessID int64) error {
	allowed, err := s.authorizer.Can(ctx, actor, permission, businessID)
	if err != nil {
		return xerrors.WithCause(xerrors.ErrInternal, "authorization check failed", err)
	}
	if !allowed {
		return xerrors.New(xerrors.ErrUnauthorized, "not allowed to manage billing for this business")
	}
	return nil
}

func newReference(prefix string) string {
	return prefix + "_" + ulid.Make().String()
}
