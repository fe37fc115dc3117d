// internal/domain/discount/repository.go
package discount

import (
	"context"
)

type Repository interface {
	Create(ctx context.Context, code *DiscountCode) error
	FindByCode(ctx context.Context, code string) (*DiscountCode, error)
	FindByID(ctx context.Context, id int64) (*DiscountCode, error)
	Deactivate(ctx context.Context, id int64) error

	// CountUsagesByUser counts ledger entries for a (code, user) pair.
	CountUsagesByUser(ctx context.Context, codeID, userID int64) (int, error)

	// RecordUsage appends a ledger entry and increments current_usages in one
	// transaction. The increment is conditional on the cap not being reached;
	// a cap race surfaces as a policy error and writes nothing.
	RecordUsage(ctx context.Context, rec *UsageRecord) error
}
