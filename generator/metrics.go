package generator

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	BuildSeconds  prometheus.Histogram
	TasksInFlight prometheus.Gauge
}

// NewMetrics creates the generator collectors and registers them with reg
// when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BuildSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "navmesh_tile_build_seconds",
			Help:    "Wall time of one tile generation run.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		TasksInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "navmesh_tile_tasks_in_flight",
			Help: "Tile generation runs currently executing.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.BuildSeconds, m.TasksInFlight)
	}
	return m
}
