// Package metrics exposes tile generation counters to Prometheus.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry:
//
//	m := metrics.New(prometheus.NewRegistry())
//	w := worker.New(worker.Config{Metrics: m, ...})
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gogpu/assettile/tile"
)

// Route labels for submissions.
const (
	RouteWorker      = "worker"
	RouteAdmission   = "admission"
	RouteOverflow    = "overflow"
	RoutePlaceholder = "placeholder"
	RouteDuplicate   = "duplicate"
	RouteFresh       = "fresh"
	RouteRejected    = "rejected"
)

// Metrics holds the Prometheus collectors for one assettile instance.
type Metrics struct {
	submissions  *prometheus.CounterVec
	tiles        *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	placeholders *prometheus.CounterVec
	workerQueue  prometheus.Gauge
	admission    prometheus.Gauge
	overflow     prometheus.Gauge
	inFlight     prometheus.Gauge
}

// New registers the assettile collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		submissions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "assettile_submissions_total",
				Help: "Tile requests received by kind and where they were routed",
			},
			[]string{"kind", "route"},
		),
		tiles: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "assettile_tiles_total",
				Help: "Completed tile requests by kind and outcome",
			},
			[]string{"kind", "outcome"}, // outcome: "ok", "load", "decode", "encode", "io"
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "assettile_tile_duration_milliseconds",
				Help: "Time from processing start to tile persisted",
				Buckets: []float64{
					1,    // cache-sized images
					5,    // 5ms
					20,   // 20ms
					50,   // 50ms - a few ticks
					100,  // 100ms
					250,  // 250ms
					1000, // 1s - large sources
					5000, // 5s
				},
			},
			[]string{"kind"},
		),
		placeholders: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "assettile_placeholders_total",
				Help: "Placeholder tiles written by kind",
			},
			[]string{"kind"},
		),
		workerQueue: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "assettile_worker_queue_length",
			Help: "Image requests waiting for the resize worker",
		}),
		admission: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "assettile_pipeline_admission_length",
			Help: "Render requests in the admission ring",
		}),
		overflow: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "assettile_pipeline_overflow_length",
			Help: "Render requests waiting for an admission slot",
		}),
		inFlight: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "assettile_pipeline_in_flight",
			Help: "Render jobs currently between render and finalize",
		}),
	}
}

// Submitted counts a request routed to route.
func (m *Metrics) Submitted(kind tile.Kind, route string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(kind.String(), route).Inc()
}

// ObserveTile records a finished request. outcome is tile.Reason of the
// processing error.
func (m *Metrics) ObserveTile(kind tile.Kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.tiles.WithLabelValues(kind.String(), outcome).Inc()
	m.duration.WithLabelValues(kind.String()).Observe(float64(d.Microseconds()) / 1000)
}

// Placeholder counts a placeholder tile written for kind.
func (m *Metrics) Placeholder(kind tile.Kind) {
	if m == nil {
		return
	}
	m.placeholders.WithLabelValues(kind.String()).Inc()
}

// SetWorkerQueue updates the worker queue length gauge.
func (m *Metrics) SetWorkerQueue(n int) {
	if m == nil {
		return
	}
	m.workerQueue.Set(float64(n))
}

// SetPipeline updates the pipeline gauges.
func (m *Metrics) SetPipeline(admission, overflow, inFlight int) {
	if m == nil {
		return
	}
	m.admission.Set(float64(admission))
	m.overflow.Set(float64(overflow))
	m.inFlight.Set(float64(inFlight))
}
