package admin

import (
	"github.com/ceyewan/shardproxy/clog"
	"github.com/ceyewan/shardproxy/metrics"
	"github.com/ceyewan/shardproxy/ratelimit"
)

// Option 管理接口选项
type Option func(*options)

type options struct {
	logger    clog.Logger
	meter     metrics.Meter
	heartbeat HeartbeatSource
	resolver  PlanResolver
	selector  InstanceSelector
	limiter   ratelimit.Limiter
}

// WithLogger 设置 Logger，自动追加 "admin" 命名空间
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("admin")
		}
	}
}

// WithMeter 设置指标 Meter
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		o.meter = m
	}
}

// WithHeartbeat 暴露心跳快照
func WithHeartbeat(h HeartbeatSource) Option {
	return func(o *options) {
		o.heartbeat = h
	}
}

// WithResolver 暴露分布解析
func WithResolver(r PlanResolver) Option {
	return func(o *options) {
		o.resolver = r
	}
}

// WithSelector 暴露实例选择
func WithSelector(s InstanceSelector) Option {
	return func(o *options) {
		o.selector = s
	}
}

// WithLimiter 设置限流器，配合 Config.RateLimit 使用
func WithLimiter(l ratelimit.Limiter) Option {
	return func(o *options) {
		o.limiter = l
	}
}

func (o *options) applyDefaults() {
	if o.limiter == nil {
		o.limiter = ratelimit.Discard()
	}
	if o.logger == nil {
		o.logger = clog.Discard()
	}
	if o.meter == nil {
		o.meter = metrics.Discard()
	}
}
