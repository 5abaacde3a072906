// Package metrics instruments the storage, pack, and transport layers
// with Prometheus counters and histograms (SPEC_FULL.md §10 ambient
// observability), grounded on the shape of the metrics struct in
// odvcencio/gothub's internal/api/metrics.go: a namespaced struct of
// *prometheus.CounterVec/*prometheus.HistogramVec built once and
// registered against a caller-supplied (or default) Registerer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "puregit"

// Registry groups every counter and histogram this module exposes.
// A nil *Registry is safe to use everywhere below: every recording
// method no-ops on a nil receiver, so instrumentation can be threaded
// through call sites unconditionally even when metrics are disabled.
type Registry struct {
	objectWrites   *prometheus.CounterVec
	objectReads    *prometheus.CounterVec
	packObjects    prometheus.Histogram
	packBytes      prometheus.Histogram
	packDuration   *prometheus.HistogramVec
	transportBytes *prometheus.CounterVec
	transportOps   *prometheus.CounterVec
}

// NewRegistry builds and registers every metric against reg. Passing
// nil uses prometheus.DefaultRegisterer, matching NewRegistry(nil)
// being the zero-friction default for a cmd/puregit binary.
func NewRegistry(reg prometheus.Registerer) *Registry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Registry{
		objectWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "object_writes_total",
			Help:      "Objects written to the combined object store, by object type.",
		}, []string{"type"}),
		objectReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "object_reads_total",
			Help:      "Objects read from the combined object store, by object type and hit source.",
		}, []string{"type", "source"}),
		packObjects: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pack",
			Name:      "objects_per_pack",
			Help:      "Number of objects written per outgoing packfile.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		packBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pack",
			Name:      "pack_bytes",
			Help:      "Size in bytes of packfiles written or received.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		}),
		packDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pack",
			Name:      "operation_duration_seconds",
			Help:      "Latency of pack write/receive operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		transportBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "bytes_total",
			Help:      "Bytes transferred over a transport, by direction and protocol.",
		}, []string{"direction", "protocol"}),
		transportOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "operations_total",
			Help:      "Transport operations handled, by kind and outcome.",
		}, []string{"operation", "outcome"}),
	}

	reg.MustRegister(
		m.objectWrites, m.objectReads,
		m.packObjects, m.packBytes, m.packDuration,
		m.transportBytes, m.transportOps,
	)
	return m
}

// ObjectWritten records one object of the given type being written to
// the store.
func (r *Registry) ObjectWritten(objectType string) {
	if r == nil {
		return
	}
	r.objectWrites.WithLabelValues(objectType).Inc()
}

// ObjectRead records one object of the given type read from the store;
// source distinguishes a loose-object hit from a packfile hit.
func (r *Registry) ObjectRead(objectType, source string) {
	if r == nil {
		return
	}
	r.objectReads.WithLabelValues(objectType, source).Inc()
}

// PackWritten records one completed outgoing packfile's size and
// object count.
func (r *Registry) PackWritten(objectCount int, byteSize int64) {
	if r == nil {
		return
	}
	r.packObjects.Observe(float64(objectCount))
	r.packBytes.Observe(float64(byteSize))
}

// PackReceived records one completed incoming packfile's size.
func (r *Registry) PackReceived(byteSize int64) {
	if r == nil {
		return
	}
	r.packBytes.Observe(float64(byteSize))
}

// TimePackOperation returns a func to defer that records operation's
// duration, e.g. `defer r.TimePackOperation("write")()`.
func (r *Registry) TimePackOperation(operation string) func() {
	if r == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		r.packDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// TransportTransferred records bytes moved in one direction ("in" or
// "out") over the named protocol scheme.
func (r *Registry) TransportTransferred(direction, protocol string, bytes int64) {
	if r == nil {
		return
	}
	r.transportBytes.WithLabelValues(direction, protocol).Add(float64(bytes))
}

// TransportOperation records one completed transport-level operation
// (list-refs, fetch-pack, send-pack) and its outcome ("ok" or "error").
func (r *Registry) TransportOperation(operation, outcome string) {
	if r == nil {
		return
	}
	r.transportOps.WithLabelValues(operation, outcome).Inc()
}
