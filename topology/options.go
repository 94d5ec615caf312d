package topology

import (
	"github.com/ceyewan/shardproxy/breaker"
	"github.com/ceyewan/shardproxy/clog"
	"github.com/ceyewan/shardproxy/connector"
)

// Option 拓扑组件选项
type Option func(*options)

type options struct {
	logger   clog.Logger
	breaker  breaker.Breaker
	connOpts []connector.Option
}

// WithLogger 设置 Logger，自动追加 "topology" 命名空间
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("topology")
		}
	}
}

// WithBreaker 实例下线或连接参数变化时清理对应熔断器
func WithBreaker(b breaker.Breaker) Option {
	return func(o *options) {
		o.breaker = b
	}
}

// WithConnectorOptions 创建连接器时使用的选项
func WithConnectorOptions(opts ...connector.Option) Option {
	return func(o *options) {
		o.connOpts = append(o.connOpts, opts...)
	}
}

func (o *options) applyDefaults() {
	if o.logger == nil {
		o.logger = clog.Discard()
	}
}
