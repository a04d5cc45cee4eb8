// Package metrics exposes prometheus collectors for the order workflow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Counter for hook runs per trigger point, hook and resulting status
	hookExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderflow_hook_executions_total",
			Help: "Total number of hook executions",
		},
		[]string{"trigger", "hook", "status"},
	)

	hookDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orderflow_hook_duration_seconds",
			Help:    "Time taken to run a single hook",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"trigger"},
	)

	approvalDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderflow_approval_decisions_total",
			Help: "Total number of approval decisions by outcome",
		},
		[]string{"outcome"},
	)

	orderTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderflow_order_transitions_total",
			Help: "Total number of order status transitions",
		},
		[]string{"from", "to"},
	)

	discoveredServersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderflow_discovery_servers_total",
			Help: "Total number of servers created, updated or marked historical by discovery",
		},
		[]string{"handler", "result"},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderflow_notifications_total",
			Help: "Total number of approver notifications sent",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		hookExecutionsTotal,
		hookDuration,
		approvalDecisionsTotal,
		orderTransitionsTotal,
		discoveredServersTotal,
		notificationsTotal,
	)
}

// RecordHookExecution records one hook run
func RecordHookExecution(trigger, hook, status string, duration float64) {
	hookExecutionsTotal.WithLabelValues(trigger, hook, status).Inc()
	hookDuration.WithLabelValues(trigger).Observe(duration)
}

func RecordApprovalDecision(outcome string) {
	approvalDecisionsTotal.WithLabelValues(outcome).Inc()
}

func RecordOrderTransition(from, to string) {
	orderTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordDiscovery records the servers touched by one discovery sync
func RecordDiscovery(handler string, created, updated, historical int) {
	discoveredServersTotal.WithLabelValues(handler, "created").Add(float64(created))
	discoveredServersTotal.WithLabelValues(handler, "updated").Add(float64(updated))
	discoveredServersTotal.WithLabelValues(handler, "historical").Add(float64(historical))
}

func RecordNotification(result string) {
	notificationsTotal.WithLabelValues(result).Inc()
}
