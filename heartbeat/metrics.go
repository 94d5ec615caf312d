package heartbeat

import (
	"context"
	"time"

	"github.com/ceyewan/shardproxy/clog"
	"github.com/ceyewan/shardproxy/metrics"
)

const (
	metricProbeTotal        = "heartbeat_probe_total"
	metricProbeDuration     = "heartbeat_probe_duration_seconds"
	metricInstanceUp        = "heartbeat_instance_up"
	metricSlaveBehindMaster = "heartbeat_slave_behind_master"
)

type probeMetrics struct {
	total    metrics.Counter
	duration metrics.Histogram
	up       metrics.Gauge
	behind   metrics.Gauge
}

func newProbeMetrics(meter metrics.Meter, logger clog.Logger) *probeMetrics {
	noop := metrics.Discard()
	warn := func(name string, err error) {
		logger.Warn("register metric failed", clog.String("metric", name), clog.Error(err))
	}

	pm := &probeMetrics{}
	var err error
	if pm.total, err = meter.Counter(metricProbeTotal, "Heartbeat probes by instance and outcome"); err != nil {
		warn(metricProbeTotal, err)
		pm.total, _ = noop.Counter(metricProbeTotal, "")
	}
	if pm.duration, err = meter.Histogram(metricProbeDuration, "Heartbeat probe latency", metrics.WithUnit("s")); err != nil {
		warn(metricProbeDuration, err)
		pm.duration, _ = noop.Histogram(metricProbeDuration, "")
	}
	if pm.up, err = meter.Gauge(metricInstanceUp, "1 when the instance status is OK"); err != nil {
		warn(metricInstanceUp, err)
		pm.up, _ = noop.Gauge(metricInstanceUp, "")
	}
	if pm.behind, err = meter.Gauge(metricSlaveBehindMaster, "1 when replication delay exceeds the threshold"); err != nil {
		warn(metricSlaveBehindMaster, err)
		pm.behind, _ = noop.Gauge(metricSlaveBehindMaster, "")
	}
	return pm
}

func (pm *probeMetrics) record(ctx context.Context, s Snapshot, err error, elapsed time.Duration) {
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	instance := metrics.L(metrics.LabelInstance, s.Instance)
	pm.total.Inc(ctx, instance, metrics.L(metrics.LabelOutcome, outcome))
	pm.duration.Record(ctx, elapsed.Seconds(), instance)
	pm.observe(ctx, s)
}

func (pm *probeMetrics) observe(ctx context.Context, s Snapshot) {
	labels := []metrics.Label{
		metrics.L(metrics.LabelInstance, s.Instance),
		metrics.L(metrics.LabelCluster, s.Cluster),
	}
	pm.up.Set(ctx, boolValue(s.Status == StatusOK), labels...)
	pm.behind.Set(ctx, boolValue(s.Datasource.SlaveBehindMaster), labels...)
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
