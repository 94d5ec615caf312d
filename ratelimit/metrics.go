package ratelimit

import (
	"github.com/ceyewan/shardproxy/clog"
	"github.com/ceyewan/shardproxy/metrics"
)

const (
	// MetricRequestsTotal 限流检查次数，按 result=allowed|denied 区分 (Counter)
	MetricRequestsTotal = "ratelimit_requests_total"

	ResultAllowed = "allowed"
	ResultDenied  = "denied"
)

func newRequestsCounter(meter metrics.Meter, logger clog.Logger) metrics.Counter {
	c, err := meter.Counter(MetricRequestsTotal, "Rate limit checks")
	if err != nil {
		logger.Warn("register metric failed", clog.String("metric", MetricRequestsTotal), clog.Error(err))
		c, _ = metrics.Discard().Counter(MetricRequestsTotal, "")
	}
	return c
}
