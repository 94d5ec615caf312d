// Package metrics 为 shardproxy 提供统一的指标收集能力。
// 基于 OpenTelemetry 构建，默认通过 Prometheus exporter 暴露。
//
// 快速开始：
//
//	meter, err := metrics.New(&metrics.Config{
//	    Enabled:     true,
//	    ServiceName: "shardproxy",
//	    Port:        9090,
//	    Path:        "/metrics",
//	})
//	defer meter.Shutdown(ctx)
//
//	probes, _ := meter.Counter("heartbeat_probe_total", "心跳探测次数")
//	probes.Inc(ctx, metrics.L(metrics.LabelInstance, "c0-master"), metrics.L(metrics.LabelOutcome, metrics.OutcomeSuccess))
package metrics

import "context"

// Counter 计数器，只能增加
type Counter interface {
	// Inc 将计数器增加 1
	Inc(ctx context.Context, labels ...Label)

	// Add 将计数器增加给定的值
	Add(ctx context.Context, val float64, labels ...Label)
}

// Gauge 仪表盘，记录可以任意增减的瞬时值，例如实例是否存活、复制延迟
type Gauge interface {
	Set(ctx context.Context, val float64, labels ...Label)
	Inc(ctx context.Context, labels ...Label)
	Dec(ctx context.Context, labels ...Label)
}

// Histogram 直方图，记录值的分布，例如探测耗时
type Histogram interface {
	Record(ctx context.Context, val float64, labels ...Label)
}

// Meter 指标创建工厂
//
// Meter 创建的指标是并发安全的。
type Meter interface {
	Counter(name string, desc string, opts ...MetricOption) (Counter, error)
	Gauge(name string, desc string, opts ...MetricOption) (Gauge, error)
	Histogram(name string, desc string, opts ...MetricOption) (Histogram, error)

	// Shutdown 关闭 Meter，刷新所有指标
	Shutdown(ctx context.Context) error
}

// MetricOption 指标配置选项
type MetricOption func(*MetricOptions)

// MetricOptions 指标选项
type MetricOptions struct {
	Unit    string
	Buckets []float64
}

// WithUnit 设置指标的单位，例如 "s"、"By"
func WithUnit(unit string) MetricOption {
	return func(o *MetricOptions) {
		o.Unit = unit
	}
}

// WithBuckets 设置直方图的显式桶边界
func WithBuckets(buckets []float64) MetricOption {
	return func(o *MetricOptions) {
		o.Buckets = append([]float64(nil), buckets...)
	}
}
