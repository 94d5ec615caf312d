// Package ratelimit 提供按键的令牌桶限流，基于 golang.org/x/time/rate。
//
// 每个键持有独立的令牌桶，空闲超过 IdleTimeout 的桶由后台协程回收。
// 管理接口通过 GinMiddleware 按客户端 IP 限流：
//
//	limiter, _ := ratelimit.New(&ratelimit.Config{}, ratelimit.WithLogger(logger))
//	defer limiter.Close()
//	r.Use(ratelimit.GinMiddleware(limiter, nil, ratelimit.Limit{Rate: 10, Burst: 20}))
package ratelimit

import (
	"context"
	"time"
)

// Limit 令牌桶规则
type Limit struct {
	// Rate 每秒生成的令牌数
	Rate float64 `mapstructure:"rate" yaml:"rate"`
	// Burst 桶容量
	Burst int `mapstructure:"burst" yaml:"burst"`
}

// Valid 规则是否可用，Rate 或 Burst 非正表示不限流
func (l Limit) Valid() bool {
	return l.Rate > 0 && l.Burst > 0
}

// Limiter 限流器
type Limiter interface {
	// Allow 尝试获取 1 个令牌，不阻塞
	Allow(ctx context.Context, key string, limit Limit) (bool, error)
	// AllowN 尝试获取 n 个令牌，不阻塞
	AllowN(ctx context.Context, key string, limit Limit, n int) (bool, error)
	// Wait 阻塞直到获取 1 个令牌或 ctx 结束
	Wait(ctx context.Context, key string, limit Limit) error
	// Close 停止后台回收
	Close() error
}

// Config 限流器配置
type Config struct {
	// CleanupInterval 回收空闲令牌桶的间隔 (默认: 1m)
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
	// IdleTimeout 令牌桶空闲超时 (默认: 5m)
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

func (c *Config) setDefaults() {
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Minute
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
}

// New 创建单机限流器，cfg 为 nil 时使用默认配置
func New(cfg *Config, opts ...Option) (Limiter, error) {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	c.setDefaults()

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	o.applyDefaults()

	return newStandalone(c, o), nil
}

// Discard 返回总是放行的限流器
func Discard() Limiter {
	return discardLimiter{}
}

type discardLimiter struct{}

func (discardLimiter) Allow(context.Context, string, Limit) (bool, error) { return true, nil }

func (discardLimiter) AllowN(context.Context, string, Limit, int) (bool, error) { return true, nil }

func (discardLimiter) Wait(context.Context, string, Limit) error { return nil }

func (discardLimiter) Close() error { return nil }
