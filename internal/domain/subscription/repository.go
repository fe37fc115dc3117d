// internal/domain/subscription/repository.go
package subscription

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, sub *Subscription) error
	FindByID(ctx context.Context, id int64) (*Subscription, error)

	// FindLiveByBusiness returns the single TRIAL/ACTIVE/PAST_DUE subscription
	// for a business, or a not-found error.
	FindLiveByBusiness(ctx context.Context, businessID int64) (*Subscription, error)

	// FindCurrentByBusiness returns the most recent subscription regardless of
	// status (pending-cancel rows included).
	FindCurrentByBusiness(ctx context.Context, businessID int64) (*Subscription, error)

	// Update persists the subscription with an optimistic version check and
	// bumps the version. A stale version surfaces as a conflict error and
	// writes nothing.
	Update(ctx context.Context, sub *Subscription) error

	// Batch scans for the renewal loop.
	FindDueRenewals(ctx context.Context, now time.Time, limit int) ([]Subscription, error)
	FindDueTrials(ctx context.Context, now time.Time, limit int) ([]Subscription, error)
	FindLapsedPendingCancels(ctx context.Context, now time.Time, limit int) ([]Subscription, error)

	// Pending discount rows (one per subscription).
	AttachPendingDiscount(ctx context.Context, pd *PendingDiscount) error
	GetPendingDiscount(ctx context.Context, subscriptionID int64) (*PendingDiscount, error)
	UpdatePendingDiscount(ctx context.Context, pd *PendingDiscount) error
}
