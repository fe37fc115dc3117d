// internal/service/billing/support_test.go
package billing

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"kalenda-billing/internal/authz"
	"kalenda-billing/internal/domain/discount"
	"kalenda-billing/internal/domain/payment"
	"kalenda-billing/internal/domain/plan"
	"kalenda-billing/internal/domain/subscription"
	"kalenda-billing/internal/gateway"
	xerrors "kalenda-billing/internal/pkg/errors"
	discountsvc "kalenda-billing/internal/service/discount"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ---- subscriptions ----

type memSubs struct {
	mu       sync.Mutex
	seq      int64
	pdSeq    int64
	subs     map[int64]*subscription.Subscription
	pendings map[int64]*subscription.PendingDiscount
}

func newMemSubs() *memSubs {
	return &memSubs{
		subs:     make(map[int64]*subscription.Subscription),
		pendings: make(map[int64]*subscription.PendingDiscount),
	}
}

func (r *memSubs) Create(ctx context.Context, sub *subscription.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.BusinessID == sub.BusinessID && s.IsLive() {
			return xerrors.New(xerrors.ErrConflict, "business already has a live subscription")
		}
	}
	r.seq++
	sub.ID = r.seq
	sub.Version = 1
	sub.CreatedAt = time.Now()
	sub.UpdatedAt = sub.CreatedAt
	cp := *sub
	r.subs[sub.ID] = &cp
	return nil
}

func (r *memSubs) FindByID(ctx context.Context, id int64) (*subscription.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return nil, xerrors.New(xerrors.ErrNotFound, "subscription not found")
	}
	cp := *s
	return &cp, nil
}

func (r *memSubs) FindLiveByBusiness(ctx context.Context, businessID int64) (*subscription.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.BusinessID == businessID && s.IsLive() {
			cp := *s
			return &cp, nil
		}
	}
	return nil, xerrors.New(xerrors.ErrNotFound, "subscription not found")
}

func (r *memSubs) FindCurrentByBusiness(ctx context.Context, businessID int64) (*subscription.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *subscription.Subscription
	for _, s := range r.subs {
		if s.BusinessID == businessID && (latest == nil || s.ID > latest.ID) {
			latest = s
		}
	}
	if latest == nil {
		return nil, xerrors.New(xerrors.ErrNotFound, "subscription not found")
	}
	cp := *latest
	return &cp, nil
}

func (r *memSubs) Update(ctx context.Context, sub *subscription.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.subs[sub.ID]
	if !ok {
		return xerrors.New(xerrors.ErrNotFound, "subscription not found")
	}
	if cur.Version != sub.Version {
		return xerrors.New(xerrors.ErrConflict, "subscription was modified concurrently")
	}
	sub.Version++
	sub.UpdatedAt = time.Now()
	cp := *sub
	r.subs[sub.ID] = &cp
	return nil
}

func (r *memSubs) FindDueRenewals(ctx context.Context, now time.Time, limit int) ([]subscription.Subscription, error) {
	return r.scan(limit, func(s *subscription.Subscription) bool {
		if s.Status != subscription.StatusActive && s.Status != subscription.StatusPastDue {
			return false
		}
		if !s.AutoRenewal || s.CancelAtPeriodEnd || s.CurrentPeriodEnd.After(now) {
			return false
		}
		return !s.NextBillingDate.Valid || !s.NextBillingDate.Time.After(now)
	})
}

func (r *memSubs) FindDueTrials(ctx context.Context, now time.Time, limit int) ([]subscription.Subscription, error) {
	return r.scan(limit, func(s *subscription.Subscription) bool {
		return s.Status == subscription.StatusTrial && s.TrialEnd.Valid && !s.TrialEnd.Time.After(now)
	})
}

func (r *memSubs) FindLapsedPendingCancels(ctx context.Context, now time.Time, limit int) ([]subscription.Subscription, error) {
	return r.scan(limit, func(s *subscription.Subscription) bool {
		return s.Status == subscription.StatusCanceled && s.CancelAtPeriodEnd && !s.CurrentPeriodEnd.After(now)
	})
}

func (r *memSubs) scan(limit int, match func(*subscription.Subscription) bool) ([]subscription.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []subscription.Subscription
	for _, s := range r.subs {
		if match(s) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memSubs) AttachPendingDiscount(ctx context.Context, pd *subscription.PendingDiscount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pendings[pd.SubscriptionID]; ok {
		return xerrors.New(xerrors.ErrConflict, "subscription already has a pending discount")
	}
	r.pdSeq++
	pd.ID = r.pdSeq
	cp := *pd
	r.pendings[pd.SubscriptionID] = &cp
	return nil
}

func (r *memSubs) GetPendingDiscount(ctx context.Context, subscriptionID int64) (*subscription.PendingDiscount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pd, ok := r.pendings[subscriptionID]
	if !ok {
		return nil, xerrors.New(xerrors.ErrNotFound, "no pending discount")
	}
	cp := *pd
	return &cp, nil
}

func (r *memSubs) UpdatePendingDiscount(ctx context.Context, pd *subscription.PendingDiscount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pendings[pd.SubscriptionID]; !ok {
		return xerrors.New(xerrors.ErrNotFound, "pending discount not found")
	}
	cp := *pd
	r.pendings[pd.SubscriptionID] = &cp
	return nil
}

// ---- payments ----

type memPayments struct {
	mu       sync.Mutex
	seq      int64
	attempts []payment.Attempt
}

func (r *memPayments) Create(ctx context.Context, a *payment.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	a.ID = r.seq
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	r.attempts = append(r.attempts, *a)
	return nil
}

func (r *memPayments) ListBySubscription(ctx context.Context, subscriptionID int64) ([]payment.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []payment.Attempt
	for i := len(r.attempts) - 1; i >= 0; i-- {
		if r.attempts[i].SubscriptionID == subscriptionID {
			out = append(out, r.attempts[i])
		}
	}
	return out, nil
}

func (r *memPayments) HasSucceededOfType(ctx context.Context, subscriptionID int64, t payment.Type) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.attempts {
		if a.SubscriptionID == subscriptionID && a.Type == t && a.Status == payment.StatusSucceeded {
			return true, nil
		}
	}
	return false, nil
}

// ---- plans ----

type memPlans struct {
	plans map[int64]*plan.Plan
}

func newMemPlans(plans ...*plan.Plan) *memPlans {
	m := &memPlans{plans: make(map[int64]*plan.Plan)}
	for _, p := range plans {
		m.plans[p.ID] = p
	}
	return m
}

func (r *memPlans) FindByID(ctx context.Context, id int64) (*plan.Plan, error) {
	p, ok := r.plans[id]
	if !ok {
		return nil, xerrors.New(xerrors.ErrNotFound, "plan not found")
	}
	cp := *p
	return &cp, nil
}

func (r *memPlans) FindByCode(ctx context.Context, code string) (*plan.Plan, error) {
	for _, p := range r.plans {
		if p.PlanCode == code {
			cp := *p
			return &cp, nil
		}
	}
	return nil, xerrors.New(xerrors.ErrNotFound, "plan not found")
}

func (r *memPlans) ListPublic(ctx context.Context) ([]plan.Plan, error) {
	var out []plan.Plan
	for _, p := range r.plans {
		if p.Subscribable() {
			out = append(out, *p)
		}
	}
	return out, nil
}

// ---- gateway ----

type fakeGateway struct {
	mu    sync.Mutex
	calls []gateway.ChargeRequest
	queue []gateway.ChargeResult
	err   error
}

// enqueue scripts the next charge outcomes; the queue empty means success.
func (g *fakeGateway) enqueue(results ...gateway.ChargeResult) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queue = append(g.queue, results...)
}

func declined(reason string) gateway.ChargeResult {
	return gateway.ChargeResult{Succeeded: false, FailureReason: reason}
}

func approved() gateway.ChargeResult {
	return gateway.ChargeResult{Succeeded: true, PaymentID: "gw_test"}
}

func (g *fakeGateway) Charge(ctx context.Context, req *gateway.ChargeRequest) (*gateway.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, *req)
	if g.err != nil {
		return nil, g.err
	}
	if len(g.queue) == 0 {
		result := approved()
		return &result, nil
	}
	result := g.queue[0]
	g.queue = g.queue[1:]
	return &result, nil
}

func (g *fakeGateway) lastCall() gateway.ChargeRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[len(g.calls)-1]
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// ---- locks ----

type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[string]bool)}
}

func (l *memLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *memLocker) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

// ---- resource usage ----

type staticUsage struct {
	staff     int
	locations int
}

func (u staticUsage) StaffCount(ctx context.Context, businessID int64) (int, error) {
	return u.staff, nil
}

func (u staticUsage) LocationCount(ctx context.Context, businessID int64) (int, error) {
	return u.locations, nil
}

// ---- discount repo (shared with the lifecycle through the ledger) ----

type memDiscounts struct {
	mu     sync.Mutex
	seq    int64
	codes  map[int64]*discount.DiscountCode
	usages []discount.UsageRecord
}

func newMemDiscounts() *memDiscounts {
	return &memDiscounts{codes: make(map[int64]*discount.DiscountCode)}
}

func (r *memDiscounts) add(c *discount.DiscountCode) *discount.DiscountCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	c.ID = r.seq
	c.Code = strings.ToUpper(c.Code)
	r.codes[c.ID] = c
	return c
}

func (r *memDiscounts) Create(ctx context.Context, c *discount.DiscountCode) error {
	r.add(c)
	return nil
}

func (r *memDiscounts) FindByCode(ctx context.Context, code string) (*discount.DiscountCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	normalized := strings.ToUpper(strings.TrimSpace(code))
	for _, c := range r.codes {
		if c.Code == normalized {
			cp := *c
			return &cp, nil
		}
	}
	return nil, xerrors.New(xerrors.ErrNotFound, "discount code not found")
}

func (r *memDiscounts) FindByID(ctx context.Context, id int64) (*discount.DiscountCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.codes[id]
	if !ok {
		return nil, xerrors.New(xerrors.ErrNotFound, "discount code not found")
	}
	cp := *c
	return &cp, nil
}

func (r *memDiscounts) Deactivate(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.codes[id]
	if !ok {
		return xerrors.New(xerrors.ErrNotFound, "discount code not found")
	}
	c.IsActive = false
	return nil
}

func (r *memDiscounts) CountUsagesByUser(ctx context.Context, codeID, userID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, u := range r.usages {
		if u.CodeID == codeID && u.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (r *memDiscounts) RecordUsage(ctx context.Context, rec *discount.UsageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.codes[rec.CodeID]
	if !ok {
		return xerrors.New(xerrors.ErrNotFound, "discount code not found")
	}
	if !c.IsActive || (c.MaxUsages.Valid && c.CurrentUsages >= int(c.MaxUsages.Int32)) {
		return xerrors.New(xerrors.ErrPolicy, "discount code usage limit reached")
	}
	c.CurrentUsages++
	r.usages = append(r.usages, *rec)
	return nil
}

// ---- wiring ----

type stack struct {
	subs      *memSubs
	payments  *memPayments
	plans     *memPlans
	discounts *memDiscounts
	gateway   *fakeGateway
	locker    *memLocker
	usage     staticUsage

	lifecycle *Lifecycle
	renewals  *RenewalManager

	now time.Time
}

func (s *stack) clock() time.Time { return s.now }

const (
	testMaxRetries = 3
	testBackoff    = 24 * time.Hour
	testWindow     = 24 * time.Hour
)

func newStack(now time.Time, plans ...*plan.Plan) *stack {
	s := &stack{
		subs:      newMemSubs(),
		payments:  &memPayments{},
		plans:     newMemPlans(plans...),
		discounts: newMemDiscounts(),
		gateway:   &fakeGateway{},
		locker:    newMemLocker(),
		usage:     staticUsage{},
		now:       now,
	}

	logger := zap.NewNop()
	ledger := discountsvc.NewLedger(s.discounts, logger).WithClock(s.clock)
	pending := discountsvc.NewPendingTracker(s.subs, s.payments, testWindow, logger).WithClock(s.clock)

	s.lifecycle = NewLifecycle(
		s.subs, s.payments, s.plans, ledger, pending,
		&s.usage, s.gateway, authz.NewClaimsAuthorizer(), testMaxRetries, logger,
	).WithClock(s.clock)

	s.renewals = NewRenewalManager(
		s.subs, s.payments, s.plans, ledger, pending,
		s.gateway, s.locker,
		RetryPolicy{MaxRetries: testMaxRetries, Backoff: testBackoff},
		100, time.Minute, logger,
	).WithClock(s.clock)

	return s
}

func owner(businessID int64) authz.Context {
	return authz.Context{
		UserID:     10,
		BusinessID: businessID,
		Roles:      []string{"owner"},
	}
}

func monthlyPlan(id int64, code string, price int64, trialDays int) *plan.Plan {
	return &plan.Plan{
		ID:              id,
		PlanCode:        code,
		Name:            code,
		Price:           decimal.NewFromInt(price),
		Currency:        "USD",
		BillingInterval: plan.IntervalMonthly,
		TrialDays:       trialDays,
		Status:          plan.StatusActive,
		IsPublic:        true,
	}
}
