package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "barrager"

// Recorder exports scheduler events as Prometheus collectors
// A nil *Recorder is valid and records nothing
type Recorder struct {
	admitted        *prometheus.CounterVec
	queued          prometheus.Counter
	dropped         prometheus.Counter
	overflowDropped prometheus.Counter
	configErrors    prometheus.Counter
	active          prometheus.Gauge
	queueDepth      prometheus.Gauge
	runningLanes    prometheus.Gauge
	transit         prometheus.Histogram
}

// NewRecorder creates the collectors and registers them with reg
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		admitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admitted_total",
			Help:      "Fragments placed into a lane, by admission path.",
		}, []string{"path"}),
		queued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queued_total",
			Help:      "High-priority fragments sent to the overflow queue.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_total",
			Help:      "Normal-priority fragments dropped for lack of an idle lane.",
		}),
		overflowDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overflow_dropped_total",
			Help:      "Queued fragments that lost the race for a freed lane.",
		}),
		configErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_errors_total",
			Help:      "Pushes rejected for unusable motion configuration.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_fragments",
			Help:      "Fragments currently in flight.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "overflow_queue_depth",
			Help:      "Entries waiting in the overflow queue.",
		}),
		runningLanes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running_lanes",
			Help:      "Lanes currently in running state.",
		}),
		transit: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transit_seconds",
			Help:      "Computed transit duration at placement.",
			Buckets:   []float64{1, 2, 4, 6, 8, 10, 12, 15, 20, 30, 60},
		}),
	}

	if reg != nil {
		reg.MustRegister(
			r.admitted, r.queued, r.dropped, r.overflowDropped, r.configErrors,
			r.active, r.queueDepth, r.runningLanes, r.transit,
		)
	}
	return r
}

// Admission paths
const (
	PathDirect   = "direct"
	PathOverflow = "overflow"
	PathReuse    = "reuse"
)

func (r *Recorder) Admitted(path string, seconds float64) {
	if r == nil {
		return
	}
	r.admitted.WithLabelValues(path).Inc()
	r.transit.Observe(seconds)
}

func (r *Recorder) Queued() {
	if r == nil {
		return
	}
	r.queued.Inc()
}

func (r *Recorder) Dropped() {
	if r == nil {
		return
	}
	r.dropped.Inc()
}

func (r *Recorder) OverflowDropped() {
	if r == nil {
		return
	}
	r.overflowDropped.Inc()
}

func (r *Recorder) ConfigError() {
	if r == nil {
		return
	}
	r.configErrors.Inc()
}

// Occupancy sets the gauges describing current scheduler state
func (r *Recorder) Occupancy(active, queueDepth, runningLanes int) {
	if r == nil {
		return
	}
	r.active.Set(float64(active))
	r.queueDepth.Set(float64(queueDepth))
	r.runningLanes.Set(float64(runningLanes))
}
