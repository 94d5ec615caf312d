package metrics

import (
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/ceyewan/shardproxy/clog"
)

// Option 配置 Meter 实例的选项
type Option func(*options)

type options struct {
	logger clog.Logger
	reader sdkmetric.Reader
}

// WithLogger 注入日志记录器，自动添加 "metrics" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("metrics")
		}
	}
}

// WithReader 使用自定义 Reader 替代 Prometheus exporter
//
// 测试中传入 sdkmetric.NewManualReader() 即可读取已记录的指标。
func WithReader(reader sdkmetric.Reader) Option {
	return func(o *options) {
		o.reader = reader
	}
}
