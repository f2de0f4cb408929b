package status

import "sync/atomic"

// Well-known keys written by the scheduler
const (
	KeyAdmitted        = "barrager.admitted"
	KeyQueued          = "barrager.queued"
	KeyDropped         = "barrager.dropped"
	KeyOverflowDropped = "barrager.overflow_dropped"
	KeyActive          = "barrager.active"
	KeyQueueDepth      = "barrager.queue_depth"
	KeyRunningLanes    = "barrager.running_lanes"
	KeyLastDuration    = "barrager.last_duration"
)

// Registry is the central live-metrics facade read by the status bar
// Writers cache pointers once; hot paths write directly to the atomics
type Registry struct {
	Ints   *MetricMap[atomic.Int64]
	Floats *MetricMap[AtomicFloat]
}

// NewRegistry creates an initialized Registry
func NewRegistry() *Registry {
	return &Registry{
		Ints:   NewMetricMap[atomic.Int64](),
		Floats: NewMetricMap[AtomicFloat](),
	}
}

// TotalCount returns total metrics across all types
func (r *Registry) TotalCount() int {
	return r.Ints.Count() + r.Floats.Count()
}

// Snapshot copies every integer metric into a map keyed by name
func (r *Registry) Snapshot() map[string]int64 {
	out := make(map[string]int64, r.Ints.Count())
	r.Ints.Range(func(key string, v *atomic.Int64) {
		out[key] = v.Load()
	})
	return out
}
