// Package breaker 提供按后端实例隔离的熔断器，基于 gobreaker。
//
// 每个实例（熔断键）拥有独立的熔断器：
//   - 闭合：请求正常通过，统计失败率
//   - 打开：失败率超过阈值后快速失败，持续 Timeout
//   - 半开：放行少量请求探测恢复
//
// 路由层通过 Allow 跳过熔断中的实例，执行层通过 Executor 包装 connector.Executor。
//
// 基本使用：
//
//	brk, _ := breaker.New(&breaker.Config{
//		Timeout:         30 * time.Second,
//		FailureRatio:    0.6,
//		MinimumRequests: 10,
//	}, breaker.WithLogger(logger), breaker.WithMeter(meter))
//
//	exec := breaker.NewExecutor(pool, brk)
//	rows, err := exec.Execute(ctx, "c0-master", "select 1")
package breaker

import (
	"context"
	"time"

	"github.com/ceyewan/shardproxy/clog"
	"github.com/ceyewan/shardproxy/xerrors"
)

// Breaker 熔断器
type Breaker interface {
	// Execute 执行受熔断保护的函数，key 通常为后端实例名
	Execute(ctx context.Context, key string, fn func() (any, error)) (any, error)

	// State 获取指定键的熔断器状态，未使用过的键为闭合
	State(key string) (State, error)

	// Allow 指定键当前是否允许请求通过
	Allow(key string) bool

	// Forget 丢弃指定键的熔断器，实例下线时调用
	Forget(key string)
}

// State 熔断器状态
type State int

const (
	// StateClosed 闭合状态（正常）
	StateClosed State = iota
	// StateHalfOpen 半开状态（探测恢复）
	StateHalfOpen
	// StateOpen 打开状态（熔断中）
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Config 熔断器配置
type Config struct {
	// MaxRequests 半开状态下允许通过的最大请求数（默认：1）
	MaxRequests uint32 `mapstructure:"max_requests" yaml:"max_requests"`

	// Interval 闭合状态下的统计周期（默认：0，不清空统计）
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`

	// Timeout 打开状态持续时间（默认：60s），之后进入半开
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// FailureRatio 失败率阈值（默认：0.6）
	FailureRatio float64 `mapstructure:"failure_ratio" yaml:"failure_ratio"`

	// MinimumRequests 触发熔断的最小请求数（默认：10）
	MinimumRequests uint32 `mapstructure:"minimum_requests" yaml:"minimum_requests"`
}

func (c *Config) setDefaults() {
	if c.MaxRequests == 0 {
		c.MaxRequests = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.FailureRatio == 0 {
		c.FailureRatio = 0.6
	}
	if c.MinimumRequests == 0 {
		c.MinimumRequests = 10
	}
}

func (c *Config) validate() error {
	if c.FailureRatio < 0 || c.FailureRatio > 1 {
		return xerrors.Wrapf(ErrInvalidConfig, "failure_ratio %v out of [0,1]", c.FailureRatio)
	}
	if c.Interval < 0 {
		return xerrors.Wrap(ErrInvalidConfig, "negative interval")
	}
	return nil
}

// New 创建熔断器
func New(cfg *Config, opts ...Option) (Breaker, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	c := *cfg
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}
	opt.applyDefaults()

	opt.logger.Info("circuit breaker created",
		clog.Int("max_requests", int(c.MaxRequests)),
		clog.Duration("timeout", c.Timeout),
		clog.Float64("failure_ratio", c.FailureRatio),
		clog.Int("minimum_requests", int(c.MinimumRequests)))

	return newBreaker(&c, opt), nil
}
