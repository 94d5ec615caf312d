package heartbeat

import (
	"github.com/ceyewan/shardproxy/clog"
	"github.com/ceyewan/shardproxy/metrics"
)

// Option 心跳组件选项
type Option func(*options)

type options struct {
	logger   clog.Logger
	meter    metrics.Meter
	strategy func(InstanceConfig) Strategy
}

// WithLogger 注入日志记录器，自动追加 "heartbeat" 命名空间
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("heartbeat")
		}
	}
}

// WithMeter 注入指标 Meter
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		o.meter = m
	}
}

// WithStrategy 指定实例的探测策略，默认为主从策略
func WithStrategy(f func(InstanceConfig) Strategy) Option {
	return func(o *options) {
		o.strategy = f
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
