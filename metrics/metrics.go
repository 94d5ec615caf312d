package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"

	"github.com/ceyewan/shardproxy/clog"
)

// New 创建 Meter 实例
func New(cfg *Config, opts ...Option) (Meter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if !cfg.Enabled {
		return Discard(), nil
	}

	o := &options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(o)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	reader := o.reader
	if reader == nil {
		exporter, err := prometheus.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		reader = exporter
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)

	m := &meterImpl{
		meter:    mp.Meter("shardproxy"),
		provider: mp,
		logger:   o.logger,
	}

	if o.reader == nil && cfg.Port > 0 && cfg.Path != "" {
		m.startServer(cfg)
	}

	return m, nil
}

// Discard 返回一个所有操作都为空的 Meter
func Discard() Meter {
	return &noopMeter{}
}

type meterImpl struct {
	meter    metric.Meter
	provider *sdkmetric.MeterProvider
	logger   clog.Logger
	server   *http.Server
}

func (m *meterImpl) startServer(cfg *Config) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())
	m.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		m.logger.Info("starting prometheus metrics server", clog.String("addr", m.server.Addr), clog.String("path", cfg.Path))
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("prometheus server error", clog.Error(err))
		}
	}()
}

func (m *meterImpl) Counter(name string, desc string, opts ...MetricOption) (Counter, error) {
	c, err := m.meter.Float64Counter(name, metric.WithDescription(desc))
	if err != nil {
		return nil, err
	}
	return &counterImpl{c: c}, nil
}

func (m *meterImpl) Gauge(name string, desc string, opts ...MetricOption) (Gauge, error) {
	g, err := m.meter.Float64Gauge(name, metric.WithDescription(desc))
	if err != nil {
		return nil, err
	}
	return &gaugeImpl{g: g, values: make(map[string]float64)}, nil
}

func (m *meterImpl) Histogram(name string, desc string, opts ...MetricOption) (Histogram, error) {
	mo := &MetricOptions{}
	for _, o := range opts {
		o(mo)
	}

	otelOpts := []metric.Float64HistogramOption{metric.WithDescription(desc)}
	if mo.Unit != "" {
		otelOpts = append(otelOpts, metric.WithUnit(mo.Unit))
	}
	if len(mo.Buckets) > 0 {
		otelOpts = append(otelOpts, metric.WithExplicitBucketBoundaries(mo.Buckets...))
	}

	h, err := m.meter.Float64Histogram(name, otelOpts...)
	if err != nil {
		return nil, err
	}
	return &histogramImpl{h: h}, nil
}

func (m *meterImpl) Shutdown(ctx context.Context) error {
	var serverErr error
	if m.server != nil {
		serverErr = m.server.Shutdown(ctx)
	}
	return errors.Join(serverErr, m.provider.Shutdown(ctx))
}

type counterImpl struct {
	c metric.Float64Counter
}

func (c *counterImpl) Inc(ctx context.Context, labels ...Label) {
	c.c.Add(ctx, 1, metric.WithAttributes(toAttributes(labels)...))
}

func (c *counterImpl) Add(ctx context.Context, val float64, labels ...Label) {
	c.c.Add(ctx, val, metric.WithAttributes(toAttributes(labels)...))
}

// gaugeImpl 在本地记录每组标签的当前值，以支持 Inc/Dec
type gaugeImpl struct {
	g      metric.Float64Gauge
	mu     sync.Mutex
	values map[string]float64
}

func (g *gaugeImpl) Set(ctx context.Context, val float64, labels ...Label) {
	g.mu.Lock()
	g.values[labelKey(labels)] = val
	g.mu.Unlock()
	g.g.Record(ctx, val, metric.WithAttributes(toAttributes(labels)...))
}

func (g *gaugeImpl) Inc(ctx context.Context, labels ...Label) {
	g.add(ctx, 1, labels)
}

func (g *gaugeImpl) Dec(ctx context.Context, labels ...Label) {
	g.add(ctx, -1, labels)
}

func (g *gaugeImpl) add(ctx context.Context, delta float64, labels []Label) {
	key := labelKey(labels)
	g.mu.Lock()
	g.values[key] += delta
	val := g.values[key]
	g.mu.Unlock()
	g.g.Record(ctx, val, metric.WithAttributes(toAttributes(labels)...))
}

type histogramImpl struct {
	h metric.Float64Histogram
}

func (h *histogramImpl) Record(ctx context.Context, val float64, labels ...Label) {
	h.h.Record(ctx, val, metric.WithAttributes(toAttributes(labels)...))
}

type noopMeter struct{}

func (n *noopMeter) Counter(string, string, ...MetricOption) (Counter, error) {
	return noopInstrument{}, nil
}

func (n *noopMeter) Gauge(string, string, ...MetricOption) (Gauge, error) {
	return noopInstrument{}, nil
}

func (n *noopMeter) Histogram(string, string, ...MetricOption) (Histogram, error) {
	return noopInstrument{}, nil
}

func (n *noopMeter) Shutdown(context.Context) error { return nil }

type noopInstrument struct{}

func (noopInstrument) Inc(context.Context, ...Label)             {}
func (noopInstrument) Dec(context.Context, ...Label)             {}
func (noopInstrument) Add(context.Context, float64, ...Label)    {}
func (noopInstrument) Set(context.Context, float64, ...Label)    {}
func (noopInstrument) Record(context.Context, float64, ...Label) {}

func toAttributes(labels []Label) []attribute.KeyValue {
	if len(labels) == 0 {
		return nil
	}
	attrs := make([]attribute.KeyValue, len(labels))
	for i, l := range labels {
		attrs[i] = attribute.String(l.Key, l.Value)
	}
	return attrs
}

func labelKey(labels []Label) string {
	if len(labels) == 0 {
		return ""
	}
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = l.Key + "=" + l.Value
	}
	return strings.Join(parts, "|")
}
