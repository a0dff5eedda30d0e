package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nao1215/osintnexus/internal/engine"
)

// Namespace prefixes every metric name.
const Namespace = "osintnexus"

// Observer turns engine events into Prometheus metrics.
type Observer struct {
	registry *prometheus.Registry

	scans       prometheus.Counter
	moduleRuns  *prometheus.CounterVec
	moduleTime  *prometheus.HistogramVec
	entities    *prometheus.CounterVec
	connections *prometheus.CounterVec
	workflows   *prometheus.CounterVec
	running     prometheus.Gauge
}

// NewObserver creates an Observer with its own registry.
func NewObserver() *Observer {
	o := &Observer{
		registry: prometheus.NewRegistry(),
		scans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "scans_total",
			Help:      "Number of completed scans.",
		}),
		moduleRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "module_runs_total",
			Help:      "Module runs by final status.",
		}, []string{"module", "status"}),
		moduleTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "module_duration_seconds",
			Help:      "Wall time of module runs.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"module"}),
		entities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "entities_discovered_total",
			Help:      "Newly stored entities by type.",
		}, []string{"entity_type"}),
		connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "connections_discovered_total",
			Help:      "Stored connections by relationship.",
		}, []string{"relationship"}),
		workflows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "workflow_runs_total",
			Help:      "Finished workflow runs by machine and success.",
		}, []string{"machine", "success"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "modules_running",
			Help:      "Module runs currently executing.",
		}),
	}
	o.registry.MustRegister(
		o.scans,
		o.moduleRuns,
		o.moduleTime,
		o.entities,
		o.connections,
		o.workflows,
		o.running,
	)
	return o
}

// Registry returns the registry holding the observer's metrics.
func (o *Observer) Registry() *prometheus.Registry {
	return o.registry
}

// Notify implements engine.Observer.
func (o *Observer) Notify(event engine.Event) {
	switch event.Type {
	case engine.EventModuleStarted:
		o.running.Inc()
	case engine.EventModuleCompleted:
		if event.Result == nil {
			return
		}
		o.moduleRuns.WithLabelValues(event.Result.Module, event.Result.Status.String()).Inc()
		o.moduleTime.WithLabelValues(event.Result.Module).Observe(event.Result.Elapsed.Seconds())
	case engine.EventModuleFinished:
		o.running.Dec()
	case engine.EventEntityDiscovered:
		if event.Entity != nil {
			o.entities.WithLabelValues(event.Entity.Type).Inc()
		}
	case engine.EventConnectionDiscovered:
		o.connections.WithLabelValues(event.Relationship).Inc()
	case engine.EventScanCompleted:
		o.scans.Inc()
	case engine.EventWorkflowFinished:
		o.workflows.WithLabelValues(event.Machine, strconv.FormatBool(event.Success)).Inc()
	}
}

// WriteToTextfile writes the metrics in the text exposition format to
// path, for pickup by the node exporter textfile collector.
func (o *Observer) WriteToTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, o.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
