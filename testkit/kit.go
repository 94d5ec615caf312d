// Package testkit 提供测试用的公共依赖：日志、指标、内存 SQLite 与 MySQL 容器连接器。
package testkit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/ceyewan/shardproxy/clog"
	"github.com/ceyewan/shardproxy/metrics"
)

// Kit 包含通用的测试依赖
type Kit struct {
	Ctx    context.Context
	Logger clog.Logger
	Meter  metrics.Meter
}

// NewKit 返回一个包含默认依赖的测试工具包，ctx 随测试结束取消
func NewKit(t *testing.T) *Kit {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &Kit{
		Ctx:    ctx,
		Logger: NewLogger(),
		Meter:  NewMeter(),
	}
}

// NewLogger 返回一个用于测试的 logger
func NewLogger() clog.Logger {
	logger, err := clog.New(clog.NewDevDefaultConfig())
	if err != nil {
		return clog.Discard()
	}
	return logger
}

// NewMeter 返回一个用于测试的 meter，不注册到全局 Prometheus registry
func NewMeter() metrics.Meter {
	meter, _ := NewMeterWithReader()
	return meter
}

// NewMeterWithReader 返回 meter 及其 ManualReader，用于断言指标值
func NewMeterWithReader() (metrics.Meter, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	meter, err := metrics.New(metrics.NewDevDefaultConfig("shardproxy-test"), metrics.WithReader(reader))
	if err != nil {
		return metrics.Discard(), reader
	}
	return meter, reader
}

// NewContext 返回一个带有超时的测试上下文
func NewContext(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// NewID 返回一个唯一的测试 ID (UUID v4 前 8 位)
func NewID() string {
	return uuid.New().String()[0:8]
}
