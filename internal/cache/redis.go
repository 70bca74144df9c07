// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuGH/webpdtool/internal/domain/plan"
	"github.com/ManuGH/webpdtool/internal/log"
)

const (
	redisKeyPrefix = "webpdtool:plan:"
	redisOpTimeout = 2 * time.Second
)

// RedisConfig holds the connection settings for the shared plan cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisCache shares cached plans across stations talking to the same
// store. Redis errors degrade to cache misses, never to plan-load errors.
type RedisCache struct {
	client *redis.Client
	stats  struct {
		hits   atomic.Int64
		misses atomic.Int64
		sets   atomic.Int64
	}
}

// NewRedis connects and pings; an unreachable server is an error so the
// caller can fall back to the in-memory cache.
func NewRedis(cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: redis connect: %w", err)
	}

	log.WithComponent("cache").Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("connected to redis plan cache")
	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Get(stationID string) ([]plan.Point, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	raw, err := c.client.Get(ctx, redisKeyPrefix+stationID).Bytes()
	if errors.Is(err, redis.Nil) {
		c.stats.misses.Add(1)
		return nil, false
	}
	if err != nil {
		log.WithComponent("cache").Warn().Err(err).Str(log.FieldStationID, stationID).Msg("redis get failed")
		c.stats.misses.Add(1)
		return nil, false
	}

	var points []plan.Point
	if err := json.Unmarshal(raw, &points); err != nil {
		log.WithComponent("cache").Warn().Err(err).Str(log.FieldStationID, stationID).Msg("cached plan unmarshal failed")
		c.stats.misses.Add(1)
		return nil, false
	}
	c.stats.hits.Add(1)
	return points, true
}

func (c *RedisCache) Set(stationID string, points []plan.Point, ttl time.Duration) {
	raw, err := json.Marshal(points)
	if err != nil {
		log.WithComponent("cache").Warn().Err(err).Str(log.FieldStationID, stationID).Msg("plan marshal failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := c.client.Set(ctx, redisKeyPrefix+stationID, raw, ttl).Err(); err != nil {
		log.WithComponent("cache").Warn().Err(err).Str(log.FieldStationID, stationID).Msg("redis set failed")
		return
	}
	c.stats.sets.Add(1)
}

func (c *RedisCache) Delete(stationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := c.client.Del(ctx, redisKeyPrefix+stationID).Err(); err != nil {
		log.WithComponent("cache").Warn().Err(err).Str(log.FieldStationID, stationID).Msg("redis delete failed")
	}
}

func (c *RedisCache) Stats() Stats {
	return Stats{
		Hits:   c.stats.hits.Load(),
		Misses: c.stats.misses.Load(),
		Sets:   c.stats.sets.Load(),
	}
}

// Close releases the redis connection pool.
func (c *RedisCache) Close() error { return c.client.Close() }

var _ PlanCache = (*RedisCache)(nil)
