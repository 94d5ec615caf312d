package cache

import (
	"github.com/ceyewan/shardproxy/clog"
	"github.com/ceyewan/shardproxy/metrics"
)

// Option 缓存组件选项函数
type Option func(*options)

type options struct {
	Logger clog.Logger
	Meter  metrics.Meter
}

// WithLogger 注入日志记录器
// 组件内部会自动追加 Namespace: logger.WithNamespace("cache")
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.Logger = l.WithNamespace("cache")
		}
	}
}

// WithMeter 注入指标 Meter
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		o.Meter = m
	}
}

func (o *options) applyDefaults() {
	if o.Logger == nil {
		o.Logger = clog.Discard()
	}
	if o.Meter == nil {
		o.Meter = metrics.Discard()
	}
}
