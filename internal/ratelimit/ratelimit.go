// Package ratelimit implements the per-key request limiter guarding the
// HTTP surface (keyed by user id there): an in-process sharded token
// bucket, optionally paired with a Redis counter that records requests but
// is not enforced, so each instance applies the limit on its own.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lnledger/pkg/cache"
	"lnledger/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config is the bucket shape: limit requests per span.
type Config struct {
	Limit int
	Span  time.Duration
}

// Limiter shards per-key token buckets behind a sync.Map, matching the
// spec's description of the rate limiter's state as a sharded concurrent
// map. Redis is optional: when set, Allow also increments a shared
// per-key counter after the in-process bucket has allowed a request; that
// counter is never compared against the limit.
type Limiter struct {
	cfg      Config
	buckets  sync.Map // key -> *rate.Limiter
	useRedis bool
}

// New builds a Limiter. useRedis enables the shared request counter
// backed by pkg/cache (go-redis); either way only the in-process bucket
// decides whether a request is allowed.
func New(cfg Config, useRedis bool) *Limiter {
	return &Limiter{cfg: cfg, useRedis: useRedis}
}

func (l *Limiter) bucketFor(key string) *rate.Limiter {
	if existing, ok := l.buckets.Load(key); ok {
		return existing.(*rate.Limiter)
	}
	perSecond := rate.Limit(float64(l.cfg.Limit) / l.cfg.Span.Seconds())
	fresh := rate.NewLimiter(perSecond, l.cfg.Limit)
	actual, _ := l.buckets.LoadOrStore(key, fresh)
	return actual.(*rate.Limiter)
}

// Allow reports whether one request for key may proceed right now,
// consuming a token if so. The in-process bucket is authoritative; the
// Redis counter is best-effort telemetry for the cross-instance case and
// never blocks a request that the local bucket already allowed.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	if !l.bucketFor(key).Allow() {
		return false
	}
	if l.useRedis {
		l.recordRedis(ctx, key)
	}
	return true
}

func (l *Limiter) recordRedis(ctx context.Context, key string) {
	redisKey := fmt.Sprintf("ratelimit:%s", key)
	count, err := cache.Incr(ctx, redisKey)
	if err != nil {
		logger.Warn("failed to record rate limit counter in redis", zap.String("key", key), zap.Error(err))
		return
	}
	if count == 1 {
		if err := cache.Expire(ctx, redisKey, l.cfg.Span); err != nil {
			logger.Warn("failed to set rate limit counter expiration", zap.String("key", key), zap.Error(err))
		}
	}
}
