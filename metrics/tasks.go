package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(tasksSubmittedTotal, tasksFinishedTotal, taskDurationSeconds, compressionRatio, tasksReapedTotal)
}

var (
	tasksSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compression_tasks_submitted_total",
			Help: "Compression tasks accepted at submission, by media kind.",
		},
		[]string{"media_kind"},
	)

	tasksFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compression_tasks_finished_total",
			Help: "Compression tasks reaching a terminal status, by media kind and status.",
		},
		[]string{"media_kind", "status"},
	)

	taskDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "compression_task_duration_seconds",
			Help:    "Wall time from claim to terminal status.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"media_kind", "status"},
	)

	compressionRatio = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "compression_ratio_percent",
			Help:    "Size reduction of completed tasks in percent.",
			Buckets: []float64{-50, 0, 10, 25, 50, 75, 90, 95, 99},
		},
		[]string{"media_kind"},
	)

	tasksReapedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compression_tasks_reaped_total",
			Help: "Tasks failed by lease recovery or removed by retention, by reason.",
		},
		[]string{"reason"},
	)
)

func IncSubmitted(kind string) {
	tasksSubmittedTotal.WithLabelValues(norm(kind)).Inc()
}

func ObserveFinished(kind, status string, elapsed time.Duration) {
	tasksFinishedTotal.WithLabelValues(norm(kind), norm(status)).Inc()
	taskDurationSeconds.WithLabelValues(norm(kind), norm(status)).Observe(elapsed.Seconds())
}

func ObserveRatio(kind string, ratio float64) {
	compressionRatio.WithLabelValues(norm(kind)).Observe(ratio)
}

func IncReaped(reason string, n int) {
	tasksReapedTotal.WithLabelValues(norm(reason)).Add(float64(n))
}
