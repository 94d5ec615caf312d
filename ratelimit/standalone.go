package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ceyewan/shardproxy/clog"
	"github.com/ceyewan/shardproxy/metrics"
	"github.com/ceyewan/shardproxy/xerrors"
)

// bucket rate.Limiter 自身并发安全，lastSeen 只用于回收
type bucket struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

func (b *bucket) touch(now time.Time) {
	b.lastSeen.Store(now.UnixNano())
}

type standaloneLimiter struct {
	cfg      Config
	logger   clog.Logger
	requests metrics.Counter
	buckets  sync.Map // map[string]*bucket
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newStandalone(cfg Config, o options) *standaloneLimiter {
	l := &standaloneLimiter{
		cfg:      cfg,
		logger:   o.logger,
		requests: newRequestsCounter(o.meter, o.logger),
		stopCh:   make(chan struct{}),
	}
	go l.cleanup()
	return l
}

func (l *standaloneLimiter) Allow(ctx context.Context, key string, limit Limit) (bool, error) {
	return l.AllowN(ctx, key, limit, 1)
}

func (l *standaloneLimiter) AllowN(ctx context.Context, key string, limit Limit, n int) (bool, error) {
	if key == "" {
		return false, ErrKeyEmpty
	}
	if !limit.Valid() {
		return false, ErrInvalidLimit
	}
	if n <= 0 {
		return false, xerrors.Wrap(xerrors.ErrInvalidInput, "ratelimit: n must be positive")
	}

	now := time.Now()
	b := l.bucket(key, limit, now)
	allowed := b.limiter.AllowN(now, n)

	result := ResultAllowed
	if !allowed {
		result = ResultDenied
		l.logger.Debug("rate limited", clog.String("key", key), clog.Int("requested", n))
	}
	l.requests.Inc(ctx, metrics.L(metrics.LabelResult, result))
	return allowed, nil
}

func (l *standaloneLimiter) Wait(ctx context.Context, key string, limit Limit) error {
	if key == "" {
		return ErrKeyEmpty
	}
	if !limit.Valid() {
		return ErrInvalidLimit
	}
	b := l.bucket(key, limit, time.Now())
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	b.touch(time.Now())
	return nil
}

// bucket 同一个键在不同规则下使用不同的桶
func (l *standaloneLimiter) bucket(key string, limit Limit, now time.Time) *bucket {
	cacheKey := key + "|" + strconv.FormatFloat(limit.Rate, 'g', -1, 64) + "|" + strconv.Itoa(limit.Burst)
	if v, ok := l.buckets.Load(cacheKey); ok {
		b := v.(*bucket)
		b.touch(now)
		return b
	}
	b := &bucket{limiter: rate.NewLimiter(rate.Limit(limit.Rate), limit.Burst)}
	b.touch(now)
	actual, _ := l.buckets.LoadOrStore(cacheKey, b)
	return actual.(*bucket)
}

func (l *standaloneLimiter) cleanup() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictIdle(time.Now())
		case <-l.stopCh:
			return
		}
	}
}

func (l *standaloneLimiter) evictIdle(now time.Time) int {
	deadline := now.Add(-l.cfg.IdleTimeout).UnixNano()
	evicted := 0
	l.buckets.Range(func(key, value any) bool {
		if value.(*bucket).lastSeen.Load() < deadline {
			l.buckets.Delete(key)
			evicted++
		}
		return true
	})
	if evicted > 0 {
		l.logger.Debug("evicted idle buckets", clog.Int("count", evicted))
	}
	return evicted
}

func (l *standaloneLimiter) size() int {
	n := 0
	l.buckets.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

func (l *standaloneLimiter) Close() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	return nil
}
