package breaker

import (
	"github.com/ceyewan/shardproxy/clog"
	"github.com/ceyewan/shardproxy/metrics"
)

const (
	// MetricRequestsTotal 请求总数，按结果区分 success/error/rejected (Counter)
	MetricRequestsTotal = "breaker_requests_total"

	// MetricStateChanges 状态变更次数 (Counter)
	MetricStateChanges = "breaker_state_changes_total"

	// LabelFromState 源状态标签
	LabelFromState = "from_state"

	// LabelToState 目标状态标签
	LabelToState = "to_state"

	// OutcomeRejected 被熔断拒绝
	OutcomeRejected = "rejected"
)

type breakerMetrics struct {
	requests     metrics.Counter
	stateChanges metrics.Counter
}

func newBreakerMetrics(meter metrics.Meter, logger clog.Logger) *breakerMetrics {
	bm := &breakerMetrics{}
	var err error
	if bm.requests, err = meter.Counter(MetricRequestsTotal, "Requests passing through circuit breakers"); err != nil {
		logger.Warn("register metric failed", clog.String("metric", MetricRequestsTotal), clog.Error(err))
		bm.requests, _ = metrics.Discard().Counter(MetricRequestsTotal, "")
	}
	if bm.stateChanges, err = meter.Counter(MetricStateChanges, "Circuit breaker state changes"); err != nil {
		logger.Warn("register metric failed", clog.String("metric", MetricStateChanges), clog.Error(err))
		bm.stateChanges, _ = metrics.Discard().Counter(MetricStateChanges, "")
	}
	return bm
}
