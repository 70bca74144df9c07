// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cache

import (
	"context"
	"time"

	"github.com/ManuGH/webpdtool/internal/domain/plan"
	"github.com/ManuGH/webpdtool/internal/domain/session/ports"
)

// CachedPlans decorates a PlanRepository with a PlanCache. Only successful
// loads are cached; ErrNotFound always goes to the store so fresh uploads
// appear immediately.
type CachedPlans struct {
	inner ports.PlanRepository
	cache PlanCache
	ttl   time.Duration
}

// NewCachedPlans wraps inner. A zero ttl defaults to one minute.
func NewCachedPlans(inner ports.PlanRepository, cache PlanCache, ttl time.Duration) *CachedPlans {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedPlans{inner: inner, cache: cache, ttl: ttl}
}

func (c *CachedPlans) LoadPlan(ctx context.Context, stationID string) ([]plan.Point, error) {
	if points, ok := c.cache.Get(stationID); ok {
		return points, nil
	}
	points, err := c.inner.LoadPlan(ctx, stationID)
	if err != nil {
		return nil, err
	}
	c.cache.Set(stationID, points, c.ttl)
	return points, nil
}

// Invalidate drops the cached plan after an upload.
func (c *CachedPlans) Invalidate(stationID string) {
	c.cache.Delete(stationID)
}

var _ ports.PlanRepository = (*CachedPlans)(nil)
