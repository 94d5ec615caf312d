package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ceyewan/shardproxy/xerrors"
)

const (
	MetricHTTPServerRequestTotal    = "http_server_requests_total"
	MetricHTTPServerDurationSeconds = "http_server_request_duration_seconds"
)

var defaultHTTPDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// HTTPServerMetrics 管理接口的 RED 指标集
type HTTPServerMetrics struct {
	service      string
	requestTotal Counter
	duration     Histogram
}

// NewHTTPServerMetrics 创建 HTTP 服务器指标
func NewHTTPServerMetrics(m Meter, service string) (*HTTPServerMetrics, error) {
	if m == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "meter is nil")
	}

	service = strings.TrimSpace(service)
	if service == "" {
		service = "unknown"
	}

	counter, err := m.Counter(MetricHTTPServerRequestTotal, "Total number of HTTP requests.")
	if err != nil {
		return nil, xerrors.Wrap(err, "create http request counter")
	}

	duration, err := m.Histogram(MetricHTTPServerDurationSeconds, "HTTP request duration in seconds.",
		WithUnit("s"), WithBuckets(defaultHTTPDurationBuckets))
	if err != nil {
		return nil, xerrors.Wrap(err, "create http request duration histogram")
	}

	return &HTTPServerMetrics{
		service:      service,
		requestTotal: counter,
		duration:     duration,
	}, nil
}

// Observe 记录一次 HTTP 请求
func (m *HTTPServerMetrics) Observe(ctx context.Context, method string, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}
	if strings.TrimSpace(route) == "" {
		route = UnknownRoute
	}

	labels := []Label{
		L(LabelService, m.service),
		L(LabelOperation, OperationHTTPServer),
		L(LabelMethod, method),
		L(LabelRoute, route),
		L(LabelStatusClass, HTTPStatusClass(status)),
		L(LabelOutcome, HTTPOutcome(status)),
	}

	m.requestTotal.Inc(ctx, labels...)
	m.duration.Record(ctx, duration.Seconds(), labels...)
}
