package detour

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the tile map counters. A nil *Metrics disables them.
type Metrics struct {
	TilesInstalled prometheus.Counter
	TilesRemoved   prometheus.Counter
	StaleWrites    prometheus.Counter
	TileGeneration *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TilesInstalled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "navmesh_tiles_installed_total",
			Help: "Total number of tiles installed into the nav mesh",
		}),
		TilesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "navmesh_tiles_removed_total",
			Help: "Total number of tile removals applied to the nav mesh",
		}),
		StaleWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "navmesh_stale_writes_total",
			Help: "Total number of tile writes dropped for an old generation",
		}),
		TileGeneration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "navmesh_tile_generation",
			Help: "Generation of the last write applied per tile",
		}, []string{"tile"}),
	}
	if reg != nil {
		reg.MustRegister(m.TilesInstalled, m.TilesRemoved, m.StaleWrites, m.TileGeneration)
	}
	return m
}
