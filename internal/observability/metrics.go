package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates the gateway's Prometheus instruments. One instance
// is created at startup and threaded to the components that record.
type Metrics struct {
	ExecutionsStarted  prometheus.Counter
	ExecutionsFinished *prometheus.CounterVec // label: status
	ExecutionDuration  prometheus.Histogram
	ToolCalls          *prometheus.CounterVec // labels: tool, outcome
	ApprovalsResolved  *prometheus.CounterVec // label: status
	QueueDepth         prometheus.Gauge
	EventsDropped      prometheus.Counter
	SchedulerRuns      *prometheus.CounterVec // label: status
}

// NewMetrics registers the gateway's instruments on reg (or the default
// registerer when reg is nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		ExecutionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "cratos_executions_started_total",
			Help: "Executions admitted by the session manager.",
		}),
		ExecutionsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cratos_executions_finished_total",
			Help: "Executions reaching a terminal status.",
		}, []string{"status"}),
		ExecutionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cratos_execution_duration_seconds",
			Help:    "Wall time from admission to terminal status.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		ToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cratos_tool_calls_total",
			Help: "Tool invocations by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		ApprovalsResolved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cratos_approvals_resolved_total",
			Help: "Approval requests by terminal status.",
		}, []string{"status"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cratos_session_queue_depth",
			Help: "Pending inputs queued across all session lanes.",
		}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "cratos_events_dropped_total",
			Help: "Event-bus deliveries dropped because a subscriber queue was full.",
		}),
		SchedulerRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cratos_scheduler_runs_total",
			Help: "Scheduled task executions by result.",
		}, []string{"status"}),
	}
}
