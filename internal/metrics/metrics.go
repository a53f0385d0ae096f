package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Kernel metrics for production monitoring
var (
	// Tool execution metrics
	ToolExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basinops_kernel_tool_executions_total",
			Help: "Total number of tool executions by final outcome",
		},
		[]string{"tool", "outcome"}, // outcome: success/failure
	)

	ToolExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "basinops_kernel_tool_execution_duration_seconds",
			Help:    "Tool execution duration in seconds, retries included",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"tool"},
	)

	ToolRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basinops_kernel_tool_retries_total",
			Help: "Total number of retry attempts",
		},
		[]string{"tool"},
	)

	ToolCallsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "basinops_kernel_tool_calls_in_flight",
			Help: "Number of invoker calls currently in flight",
		},
	)

	// Auth metrics
	AuthDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basinops_kernel_auth_denials_total",
			Help: "Total number of denied tool calls",
		},
		[]string{"tool", "role"},
	)

	// Audit metrics
	AuditWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "basinops_kernel_audit_write_failures_total",
			Help: "Total number of audit lines that failed to persist",
		},
	)

	// Session metrics
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "basinops_kernel_sessions_active",
			Help: "Number of live sessions",
		},
	)

	// Confirmation gate metrics
	PendingActions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "basinops_kernel_pending_actions",
			Help: "Number of actions parked at the confirmation gate",
		},
	)

	// Bundle metrics
	BundleExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basinops_kernel_bundle_executions_total",
			Help: "Total number of bundle executions by overall outcome",
		},
		[]string{"bundle", "outcome"},
	)

	BundleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "basinops_kernel_bundle_duration_seconds",
			Help:    "Bundle execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~3min
		},
		[]string{"bundle"},
	)
)
