// Package metrics exposes workflow counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opsconsole",
		Subsystem: "workflow",
		Name:      "commands_total",
		Help:      "Total number of workflow commands broken down by kind, action and result.",
	}, []string{"kind", "action", "result"})

	conflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opsconsole",
		Subsystem: "workflow",
		Name:      "conflicts_total",
		Help:      "Total number of conditional updates lost to a concurrent transition.",
	}, []string{"kind"})

	gateRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opsconsole",
		Subsystem: "gate",
		Name:      "rejections_total",
		Help:      "Total number of writes refused after the daily cutoff.",
	}, []string{"kind"})

	notifyFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opsconsole",
		Subsystem: "notify",
		Name:      "failures_total",
		Help:      "Total number of notifications that could not be delivered.",
	}, []string{"kind"})
)

// RecordCommand counts one command. An empty result means success.
func RecordCommand(kind, action, result string) {
	if result == "" {
		result = "ok"
	}
	commands.WithLabelValues(kind, action, result).Inc()
	switch result {
	case "conflict":
		conflicts.WithLabelValues(kind).Inc()
	case "time_window_closed":
		gateRejections.WithLabelValues(kind).Inc()
	}
}

func RecordNotifyFailure(kind string) {
	notifyFailures.WithLabelValues(kind).Inc()
}
