// Package monitoring exposes a process-wide set of Prometheus metrics for
// the collector and storage layers.
package monitoring

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every counter/gauge/histogram the collector and backends
// report against.
type Metrics struct {
	EventsIngested        prometheus.Counter
	EventsProcessed       prometheus.Counter
	EventsFailed          prometheus.Counter
	EventsRetried         prometheus.Counter
	EventsLoadShed        prometheus.Counter
	OrphanRethinksDropped prometheus.Counter

	CollectorQueueDepth prometheus.Gauge

	HandlerDuration  *prometheus.HistogramVec
	BackendOpLatency *prometheus.HistogramVec
}

var (
	mu     sync.Mutex
	global *Metrics
)

func newMetrics() *Metrics {
	return &Metrics{
		EventsIngested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gamearena_events_ingested_total",
			Help: "Total number of telemetry events accepted by the collector.",
		}),
		EventsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gamearena_events_processed_total",
			Help: "Total number of telemetry events successfully processed.",
		}),
		EventsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gamearena_events_failed_total",
			Help: "Total number of telemetry events that failed permanently.",
		}),
		EventsRetried: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gamearena_events_retried_total",
			Help: "Total number of telemetry event retry attempts.",
		}),
		EventsLoadShed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gamearena_events_load_shed_total",
			Help: "Total number of telemetry events dropped because the queue was full.",
		}),
		OrphanRethinksDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gamearena_orphan_rethinks_dropped_total",
			Help: "Total number of buffered rethink attempts dropped after their TTL expired without a matching move.",
		}),
		CollectorQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gamearena_collector_queue_depth",
			Help: "Current depth of the collector's event queue.",
		}),
		HandlerDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gamearena_handler_duration_seconds",
			Help:    "Event handler duration by event kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		BackendOpLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gamearena_backend_op_duration_seconds",
			Help:    "Backend operation duration by operation name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}
}

// Global returns the process-wide Metrics instance, lazily registering it
// with the default Prometheus registry on first use.
func Global() *Metrics {
	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		global = newMetrics()
	}
	return global
}

// Shutdown unregisters the process-wide metrics from the default Prometheus
// registry and clears the singleton; the next Global() call registers a
// fresh instance. Intended for process exit.
func Shutdown() {
	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		return
	}
	for _, c := range []prometheus.Collector{
		global.EventsIngested, global.EventsProcessed, global.EventsFailed,
		global.EventsRetried, global.EventsLoadShed, global.OrphanRethinksDropped,
		global.CollectorQueueDepth, global.HandlerDuration, global.BackendOpLatency,
	} {
		prometheus.Unregister(c)
	}
	global = nil
}

// HealthStatus summarizes process health for operators.
type HealthStatus struct {
	QueueDepth    float64
	EventsFailed  float64
	BackendHealth string
}

// Status builds a health snapshot from the caller-supplied collector
// counters (the collector owns its own lock-guarded snapshot; this just
// shapes it alongside a backend health indicator) plus the given backend
// health string.
func (m *Metrics) Status(queueDepth, eventsFailed float64, backendHealth string) HealthStatus {
	return HealthStatus{
		QueueDepth:    queueDepth,
		EventsFailed:  eventsFailed,
		BackendHealth: backendHealth,
	}
}
