package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(degradationsTotal, codecSelectedTotal) }

var (
	degradationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compression_degradations_total",
			Help: "Adaptive steps that degraded instead of failing the task (oracle, neural codec).",
		},
		[]string{"media_kind", "step"},
	)

	codecSelectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compression_codec_used_total",
			Help: "Codec variant that produced the final artifact.",
		},
		[]string{"media_kind", "codec"},
	)
)

func IncDegradation(kind, step string) {
	degradationsTotal.WithLabelValues(norm(kind), norm(step)).Inc()
}

func IncCodecUsed(kind, codec string) {
	codecSelectedTotal.WithLabelValues(norm(kind), norm(codec)).Inc()
}
