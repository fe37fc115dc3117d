// internal/service/discount/fakes_test.go
package discount

import (
	"context"
	"strings"
	"sync"
	"time"

	"kalenda-billing/internal/domain/discount"
	"kalenda-billing/internal/domain/payment"
	"kalenda-billing/internal/domain/subscription"
	xerrors "kalenda-billing/internal/pkg/errors"
)

type fakeDiscountRepo struct {
	mu     sync.Mutex
	seq    int64
	codes  map[int64]*discount.DiscountCode
	usages []discount.UsageRecord
}

func newFakeDiscountRepo() *fakeDiscountRepo {
	return &fakeDiscountRepo{codes: make(map[int64]*discount.DiscountCode)}
}

func (r *fakeDiscountRepo) add(c *discount.DiscountCode) *discount.DiscountCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	c.ID = r.seq
	c.Code = strings.ToUpper(c.Code)
	r.codes[c.ID] = c
	return c
}

func (r *fakeDiscountRepo) Create(ctx context.Context, c *discount.DiscountCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.codes {
		if existing.Code == strings.ToUpper(c.Code) {
			return xerrors.Newf(xerrors.ErrConflict, "discount code %s already exists", c.Code)
		}
	}
	r.seq++
	c.ID = r.seq
	c.Code = strings.ToUpper(c.Code)
	r.codes[c.ID] = c
	return nil
}

func (r *fakeDiscountRepo) FindByCode(ctx context.Context, code string) (*discount.DiscountCode, error) {
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

func (r *fakeDiscountRepo) FindByID(ctx context.Context, id int64) (*discount.DiscountCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.codes[id]
	if !ok {
		return nil, xerrors.New(xerrors.ErrNotFound, "discount code not found")
	}
	cp := *c
	return &cp, nil
}

func (r *fakeDiscountRepo) Deactivate(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.codes[id]
	if !ok {
		return xerrors.New(xerrors.ErrNotFound, "discount code not found")
	}
	c.IsActive = false
	return nil
}

func (r *fakeDiscountRepo) CountUsagesByUser(ctx context.Context, codeID, userID int64) (int, error) {
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

func (r *fakeDiscountRepo) RecordUsage(ctx context.Context, rec *discount.UsageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.codes[rec.CodeID]
	if !ok {
		return xerrors.New(xerrors.ErrNotFound, "discount code not found")
	}
	// Mirrors the conditional increment in the SQL repository.
	if !c.IsActive || (c.MaxUsages.Valid && c.CurrentUsages >= int(c.MaxUsages.Int32)) {
		return xerrors.New(xerrors.ErrPolicy, "discount code usage limit reached")
	}
	c.CurrentUsages++
	r.usages = append(r.usages, *rec)
	return nil
}

// fakeSubRepo implements just enough of the subscription repository for the
// pending tracker.
type fakeSubRepo struct {
	mu       sync.Mutex
	seq      int64
	pendings map[int64]*subscription.PendingDiscount
}

func newFakeSubRepo() *fakeSubRepo {
	return &fakeSubRepo{pendings: make(map[int64]*subscription.PendingDiscount)}
}

func (r *fakeSubRepo) Create(ctx context.Context, sub *subscription.Subscription) error { return nil }
func (r *fakeSubRepo) FindByID(ctx context.Context, id int64) (*subscription.Subscription, error) {
	return nil, xerrors.New(xerrors.ErrNotFound, "subscription not found")
}
func (r *fakeSubRepo) FindLiveByBusiness(ctx context.Context, businessID int64) (*subscription.Subscription, error) {
	return nil, xerrors.New(xerrors.ErrNotFound, "subscription not found")
}
func (r *fakeSubRepo) FindCurrentByBusiness(ctx context.Context, businessID int64) (*subscription.Subscription, error) {
	return nil, xerrors.New(xerrors.ErrNotFound, "subscription not found")
}
func (r *fakeSubRepo) Update(ctx context.Context, sub *subscription.Subscription) error { return nil }
func (r *fakeSubRepo) FindDueRenewals(ctx context.Context, now time.Time, limit int) ([]subscription.Subscription, error) {
	return nil, nil
}
func (r *fakeSubRepo) FindDueTrials(ctx context.Context, now time.Time, limit int) ([]subscription.Subscription, error) {
	return nil, nil
}
func (r *fakeSubRepo) FindLapsedPendingCancels(ctx context.Context, now time.Time, limit int) ([]subscription.Subscription, error) {
	return nil, nil
}

func (r *fakeSubRepo) AttachPendingDiscount(ctx context.Context, pd *subscription.PendingDiscount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pendings[pd.SubscriptionID]; ok {
		return xerrors.New(xerrors.ErrConflict, "subscription already has a pending discount")
	}
	r.seq++
	pd.ID = r.seq
	cp := *pd
	r.pendings[pd.SubscriptionID] = &cp
	return nil
}

func (r *fakeSubRepo) GetPendingDiscount(ctx context.Context, subscriptionID int64) (*subscription.PendingDiscount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pd, ok := r.pendings[subscriptionID]
	if !ok {
		return nil, xerrors.New(xerrors.ErrNotFound, "no pending discount")
	}
	cp := *pd
	return &cp, nil
}

func (r *fakeSubRepo) UpdatePendingDiscount(ctx context.Context, pd *subscription.PendingDiscount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.pendings[pd.SubscriptionID]
	if !ok || stored.ID != pd.ID {
		return xerrors.New(xerrors.ErrNotFound, "pending discount not found")
	}
	cp := *pd
	r.pendings[pd.SubscriptionID] = &cp
	return nil
}

// fakePaymentRepo records attempts in memory.
type fakePaymentRepo struct {
	mu       sync.Mutex
	seq      int64
	attempts []payment.Attempt
}

func (r *fakePaymentRepo) Create(ctx context.Context, a *payment.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	a.ID = r.seq
	r.attempts = append(r.attempts, *a)
	return nil
}

func (r *fakePaymentRepo) ListBySubscription(ctx context.Context, subscriptionID int64) ([]payment.Attempt, error) {
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

func (r *fakePaymentRepo) HasSucceededOfType(ctx context.Context, subscriptionID int64, t payment.Type) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.attempts {
		if a.SubscriptionID == subscriptionID && a.Type == t && a.Status == payment.StatusSucceeded {
			return true, nil
		}
	}
	return false, nil
}
