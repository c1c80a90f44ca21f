package parallax

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Layers        prometheus.Counter
	Areas         prometheus.Counter
	Placements    *prometheus.CounterVec
	ProbeFailures prometheus.Counter
	Size          prometheus.Gauge
	LayerSeconds  prometheus.Histogram
}

// NewMetrics registers on reg. A nil reg builds unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Layers: f.NewCounter(prometheus.CounterOpts{
			Name: "parallax_layers_generated_total",
			Help: "Chunk layers generated.",
		}),
		Areas: f.NewCounter(prometheus.CounterOpts{
			Name: "parallax_areas_generated_total",
			Help: "Chunks marked parallax-generated.",
		}),
		Placements: f.NewCounterVec(prometheus.CounterOpts{
			Name: "parallax_placements_total",
			Help: "Object placement attempts by result.",
		}, []string{"result"}),
		ProbeFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "parallax_size_probe_failures_total",
			Help: "Objects whose size could not be read.",
		}),
		Size: f.NewGauge(prometheus.GaugeOpts{
			Name: "parallax_size_chunks",
			Help: "Current parallax radius in chunks.",
		}),
		LayerSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "parallax_layer_duration_seconds",
			Help:    "Time to generate one layer.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
	}
}
