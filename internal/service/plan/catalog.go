// internal/service/plan/catalog.go
package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"kalenda-billing/internal/domain/plan"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Catalog is the read-only plan provider. Plans are administered elsewhere on
// the platform; billing reads them through a short-TTL Redis cache. The TTL
// bounds staleness, so no invalidation path is needed here.
type Catalog struct {
	repo   plan.Repository
	cache  redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

func NewCatalog(repo plan.Repository, cache redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *Catalog {
	return &Catalog{
		repo:   repo,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// FindByID retrieves a plan, preferring the cache.
func (c *Catalog) FindByID(ctx context.Context, id int64) (*plan.Plan, error) {
	key := fmt.Sprintf("billing:plan:%d", id)

	if c.cache != nil {
		if data, err := c.cache.Get(ctx, key).Bytes(); err == nil {
			var p plan.Plan
			if err := json.Unmarshal(data, &p); err == nil {
				return &p, nil
			}
		}
	}

	p, err := c.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	c.cacheSet(ctx, key, p)
	return p, nil
}

// FindByCode retrieves a plan by plan code.
func (c *Catalog) FindByCode(ctx context.Context, code string) (*plan.Plan, error) {
	return c.repo.FindByCode(ctx, code)
}

// ListPublic retrieves the plans available for subscription.
func (c *Catalog) ListPublic(ctx context.Context) ([]plan.Plan, error) {
	return c.repo.ListPublic(ctx)
}

func (c *Catalog) cacheSet(ctx context.Context, key string, p *plan.Plan) {
	if c.cache == nil {
		return
	}

	data, err := json.Marshal(p)
	if err != nil {
		return
	}

	if err := c.cache.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("failed to cache plan", zap.Error(err), zap.String("key", key))
	}
}
