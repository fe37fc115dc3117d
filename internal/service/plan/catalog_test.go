// internal/service/plan/catalog_test.go
package plan

import (
	"context"
	"testing"
	"time"

	"kalenda-billing/internal/domain/plan"
	xerrors "kalenda-billing/internal/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePlanRepo struct {
	plans map[int64]*plan.Plan
	finds int
}

func (r *fakePlanRepo) FindByID(ctx context.Context, id int64) (*plan.Plan, error) {
	r.finds++
	p, ok := r.plans[id]
	if !ok {
		return nil, xerrors.New(xerrors.ErrNotFound, "plan not found")
	}
	cp := *p
	return &cp, nil
}

func (r *fakePlanRepo) FindByCode(ctx context.Context, code string) (*plan.Plan, error) {
	for _, p := range r.plans {
		if p.PlanCode == code {
			cp := *p
			return &cp, nil
		}
	}
	return nil, xerrors.New(xerrors.ErrNotFound, "plan not found")
}

func (r *fakePlanRepo) ListPublic(ctx context.Context) ([]plan.Plan, error) {
	var out []plan.Plan
	for _, p := range r.plans {
		if p.Subscribable() {
			out = append(out, *p)
		}
	}
	return out, nil
}

func TestCatalogReadsThroughWithoutCache(t *testing.T) {
	repo := &fakePlanRepo{plans: map[int64]*plan.Plan{
		1: {
			ID:              1,
			PlanCode:        "starter",
			Name:            "Starter",
			Price:           decimal.NewFromInt(100),
			Currency:        "USD",
			BillingInterval: plan.IntervalMonthly,
			Status:          plan.StatusActive,
			IsPublic:        true,
		},
	}}
	catalog := NewCatalog(repo, nil, time.Minute, zap.NewNop())
	ctx := context.Background()

	p, err := catalog.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "starter", p.PlanCode)

	// Without a cache every read hits the repository.
	_, err = catalog.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.finds)

	_, err = catalog.FindByID(ctx, 99)
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.ErrNotFound))

	public, err := catalog.ListPublic(ctx)
	require.NoError(t, err)
	assert.Len(t, public, 1)
}
