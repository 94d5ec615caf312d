package router

import (
	"github.com/ceyewan/shardproxy/breaker"
	"github.com/ceyewan/shardproxy/clog"
	"github.com/ceyewan/shardproxy/connector"
	"github.com/ceyewan/shardproxy/metrics"
)

// Option 路由器选项
type Option func(*options)

type options struct {
	logger   clog.Logger
	meter    metrics.Meter
	breaker  breaker.Breaker
	executor connector.Executor
}

// WithLogger 设置 Logger，自动追加 "router" 命名空间
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("router")
		}
	}
}

// WithMeter 设置指标 Meter
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		o.meter = m
	}
}

// WithBreaker 跳过熔断中的实例，Execute 也经过熔断器
func WithBreaker(b breaker.Breaker) Option {
	return func(o *options) {
		o.breaker = b
	}
}

// WithExecutor 设置 Execute 使用的执行器
func WithExecutor(e connector.Executor) Option {
	return func(o *options) {
		o.executor = e
	}
}

func (o *options) applyDefaults() {
	if o.logger == nil {
		o.logger = clog.Discard()
	}
	if o.meter == nil {
		o.meter = metrics.Discard()
	}
}
