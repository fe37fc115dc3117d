// internal/repository/postgres/resource_usage_repository.go
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ResourceUsageRepository reads a business's current resource consumption from
// the platform tables. Downgrades are validated against these counts so a
// smaller plan never silently truncates data.
type ResourceUsageRepository struct {
	db *pgxpool.Pool
}

func NewResourceUsageRepository(db *pgxpool.Pool) *ResourceUsageRepository {
	return &ResourceUsageRepository{db: db}
}

// StaffCount counts active staff members of a business.
func (r *ResourceUsageRepository) StaffCount(ctx context.Context, businessID int64) (int, error) {
	query := `SELECT COUNT(*) FROM staff_members WHERE business_id = $1 AND is_active = true`

	var count int
	if err := r.db.QueryRow(ctx, query, businessID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count staff: %w", err)
	}

	return count, nil
}

// LocationCount counts active locations of a business.
func (r *ResourceUsageRepository) LocationCount(ctx context.Context, businessID int64) (int, error) {
	query := `SELECT COUNT(*) FROM business_locations WHERE business_id = $1 AND is_active = true`

	var count int
	if err := r.db.QueryRow(ctx, query, businessID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count locations: %w", err)
	}

	return count, nil
}
