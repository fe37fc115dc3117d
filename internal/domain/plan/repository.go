// internal/domain/plan/repository.go
package plan

import (
	"context"
)

type Repository interface {
	FindByID(ctx context.Context, id int64) (*Plan, error)
	FindByCode(ctx context.Context, code string) (*Plan, error)
	ListPublic(ctx context.Context) ([]Plan, error)
}
