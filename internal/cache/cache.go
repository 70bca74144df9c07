// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package cache keeps recently loaded test plans close to the engine so
// each session start does not hit the store. Plans change rarely (uploads),
// so entries live under a short TTL and are invalidated on upload.
package cache

import (
	"sync"
	"time"

	"github.com/ManuGH/webpdtool/internal/domain/plan"
)

// PlanCache stores station plans keyed by station id.
type PlanCache interface {
	// Get returns the cached plan. Expired or absent entries report false.
	Get(stationID string) ([]plan.Point, bool)
	// Set stores a plan under the given TTL.
	Set(stationID string, points []plan.Point, ttl time.Duration)
	// Delete invalidates a station's entry.
	Delete(stationID string)
	// Stats returns hit and miss counters.
	Stats() Stats
}

// Stats holds cache performance counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Sets        int64
	CurrentSize int
}

type entry struct {
	points     []plan.Point
	expiration time.Time
}

func (e *entry) expired() bool { return time.Now().After(e.expiration) }

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	stats   Stats
}

// NewMemory returns an in-process PlanCache.
func NewMemory() PlanCache {
	return &memoryCache{entries: make(map[string]*entry)}
}

func (c *memoryCache) Get(stationID string) ([]plan.Point, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[stationID]
	if !found || e.expired() {
		if found {
			delete(c.entries, stationID)
		}
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	// Callers mutate their plan slices; hand out a copy.
	out := make([]plan.Point, len(e.points))
	copy(out, e.points)
	return out, true
}

func (c *memoryCache) Set(stationID string, points []plan.Point, ttl time.Duration) {
	stored := make([]plan.Point, len(points))
	copy(stored, points)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[stationID] = &entry{points: stored, expiration: time.Now().Add(ttl)}
	c.stats.Sets++
}

func (c *memoryCache) Delete(stationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, stationID)
}

func (c *memoryCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats
	s.CurrentSize = len(c.entries)
	return s
}
