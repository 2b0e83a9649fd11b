package telemetry

import (
	"go.opentelemetry.io/otel/metric"
)

// Instruments bundles the meter/tracer-backed counters and histograms the
// core components record against (SPEC_FULL.md §2's observability
// bullet): append latency, projector batch duration, job lease counts by
// status, session message counts. ProjectorLagEvents is registered too,
// but no component records against it. Registered against the
// global delegating meter at package init time, same as the teacher's
// doltMetrics struct (internal/storage/dolt/store.go) — instruments are
// usable before Init runs; they simply no-op until a real provider is
// installed.
var Instruments struct {
	AppendLatencyMs      metric.Float64Histogram
	ProjectorBatchMs     metric.Float64Histogram
	ProjectorLagEvents   metric.Int64Gauge
	JobLeaseCount        metric.Int64Counter
	SessionMessageCount  metric.Int64Counter
}

func init() {
	m := Meter("github.com/steveyegge/graphd")

	Instruments.AppendLatencyMs, _ = m.Float64Histogram("graphd.eventlog.append_ms",
		metric.WithDescription("Event Log append latency"),
		metric.WithUnit("ms"),
	)
	Instruments.ProjectorBatchMs, _ = m.Float64Histogram("graphd.projection.batch_ms",
		metric.WithDescription("Projection Runner batch apply duration"),
		metric.WithUnit("ms"),
	)
	Instruments.ProjectorLagEvents, _ = m.Int64Gauge("graphd.projection.lag_events",
		metric.WithDescription("Events committed but not yet applied by a projection"),
		metric.WithUnit("{event}"),
	)
	Instruments.JobLeaseCount, _ = m.Int64Counter("graphd.jobqueue.lease_count",
		metric.WithDescription("Jobs leased, labeled by resulting status"),
		metric.WithUnit("{job}"),
	)
	Instruments.SessionMessageCount, _ = m.Int64Counter("graphd.session.message_count",
		metric.WithDescription("Session Protocol messages processed, labeled by action"),
		metric.WithUnit("{message}"),
	)
}
