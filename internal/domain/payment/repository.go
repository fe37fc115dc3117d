// internal/domain/payment/repository.go
package payment

import (
	"context"
)

type Repository interface {
	Create(ctx context.Context, attempt *Attempt) error
	ListBySubscription(ctx context.Context, subscriptionID int64) ([]Attempt, error)

	// HasSucceededOfType reports whether a succeeded attempt of the given type
	// exists for the subscription. The pending-discount guards use it to stop
	// a one-time code re-applying to a payment slot already consumed.
	HasSucceededOfType(ctx context.Context, subscriptionID int64, t Type) (bool, error)
}
