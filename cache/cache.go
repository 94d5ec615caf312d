// Package cache 提供基于 otter 的进程内缓存。
//
// Local 是带容量上限和写入过期的泛型缓存，命中与未命中会记录到
// cache_requests_total{cache,result} 指标。Distribution 解析结果即缓存于此。
//
// 基本使用：
//
//	plans, _ := cache.NewLocal[string, *distribution.Distribution](&cache.Config{
//		Name:     "plan",
//		Capacity: 4096,
//		TTL:      10 * time.Minute,
//	}, cache.WithLogger(logger), cache.WithMeter(meter))
//
//	d, err := plans.GetOrLoad(ctx, key, func(ctx context.Context, key string) (*distribution.Distribution, error) {
//		return distribution.Of(catalog, names)
//	})
package cache

import (
	"context"

	"github.com/maypok86/otter/v2"

	"github.com/ceyewan/shardproxy/clog"
	"github.com/ceyewan/shardproxy/metrics"
	"github.com/ceyewan/shardproxy/xerrors"
)

const (
	metricRequests = "cache_requests_total"

	resultHit  = "hit"
	resultMiss = "miss"
)

// Local 进程内缓存，并发安全
type Local[K comparable, V any] struct {
	name     string
	cache    *otter.Cache[K, V]
	logger   clog.Logger
	requests metrics.Counter
}

// NewLocal 创建本地缓存，cfg 为空时使用默认配置
func NewLocal[K comparable, V any](cfg *Config, opts ...Option) (*Local[K, V], error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.setDefaults()

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}
	opt.applyDefaults()

	c, err := otter.New(&otter.Options[K, V]{
		MaximumSize: cfg.Capacity,
		// 写入过期：读取不会重置 TTL
		ExpiryCalculator: otter.ExpiryWriting[K, V](cfg.TTL),
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "cache: failed to build otter cache")
	}

	requests, err := opt.Meter.Counter(metricRequests, "Local cache lookups by result")
	if err != nil {
		opt.Logger.Warn("register metric failed", clog.String("metric", metricRequests), clog.Error(err))
		requests, _ = metrics.Discard().Counter(metricRequests, "")
	}

	return &Local[K, V]{
		name:     cfg.Name,
		cache:    c,
		logger:   opt.Logger.With(clog.String("cache", cfg.Name)),
		requests: requests,
	}, nil
}

// Get 查询缓存
func (l *Local[K, V]) Get(ctx context.Context, key K) (V, bool) {
	v, ok := l.cache.GetIfPresent(key)
	l.record(ctx, ok)
	return v, ok
}

// Set 写入缓存
func (l *Local[K, V]) Set(key K, value V) {
	l.cache.Set(key, value)
}

// GetOrLoad 未命中时调用 load 并缓存结果，并发加载同一个 key 只执行一次。
// load 返回错误时不缓存。
func (l *Local[K, V]) GetOrLoad(ctx context.Context, key K, load func(ctx context.Context, key K) (V, error)) (V, error) {
	if v, ok := l.cache.GetIfPresent(key); ok {
		l.record(ctx, true)
		return v, nil
	}

	l.record(ctx, false)
	v, err := l.cache.Get(ctx, key, otter.LoaderFunc[K, V](load))
	if err != nil {
		l.logger.Debug("cache load failed", clog.Any("key", key), clog.Error(err))
	}
	return v, err
}

// Delete 删除缓存项
func (l *Local[K, V]) Delete(key K) {
	l.cache.Invalidate(key)
}

// Clear 清空缓存
func (l *Local[K, V]) Clear() {
	l.cache.InvalidateAll()
}

// Len 当前缓存项数量的估计值
func (l *Local[K, V]) Len() int {
	return l.cache.EstimatedSize()
}

func (l *Local[K, V]) record(ctx context.Context, hit bool) {
	result := resultMiss
	if hit {
		result = resultHit
	}
	l.requests.Inc(ctx, metrics.L("cache", l.name), metrics.L(metrics.LabelResult, result))
}
