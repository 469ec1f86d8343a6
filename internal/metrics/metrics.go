// Package metrics exposes prometheus collectors for the watch daemon.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	processUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "warden",
			Subsystem: "process",
			Name:      "up",
			Help:      "1 when the process is verified-running, 0 otherwise.",
		},
		[]string{"name"},
	)
	processRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "process",
			Name:      "restarts_total",
			Help:      "Automatic restarts attempted per process.",
		},
		[]string{"name"},
	)
	watchCycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "watch",
			Name:      "cycles_total",
			Help:      "Completed watch poll cycles.",
		},
	)
	watchCycleSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "warden",
			Subsystem: "watch",
			Name:      "cycle_seconds",
			Help:      "Duration of a watch poll cycle.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(processUp, processRestarts, watchCycles, watchCycleSeconds)
}

// SetProcessUp records the verified-running state of a process.
func SetProcessUp(name string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	processUp.WithLabelValues(name).Set(v)
}

// IncRestarts counts an automatic restart attempt.
func IncRestarts(name string) { processRestarts.WithLabelValues(name).Inc() }

// ObserveCycle records one completed poll cycle.
func ObserveCycle(d time.Duration) {
	watchCycles.Inc()
	watchCycleSeconds.Observe(d.Seconds())
}

// ForgetProcess drops the per-process series after a remove.
func ForgetProcess(name string) {
	processUp.DeleteLabelValues(name)
	processRestarts.DeleteLabelValues(name)
	procCPU.DeleteLabelValues(name)
	procRSS.DeleteLabelValues(name)
}

// Handler returns the scrape endpoint handler.
func Handler() http.Handler { return promhttp.Handler() }
