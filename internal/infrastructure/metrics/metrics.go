package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	pluginports "kilometers.ai/kmpkg/internal/core/ports/plugin"
)

// Recorder counts plugin lifecycle operations on a private Prometheus registry
type Recorder struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	installed  prometheus.Gauge
}

// NewRecorder creates a recorder with its collectors registered
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kmpkg",
			Name:      "operations_total",
			Help:      "Plugin lifecycle operations by operation and result. A reinstall counts only as reinstall.",
		}, []string{"operation", "result"}),
		installed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kmpkg",
			Name:      "installed_plugins",
			Help:      "Number of plugins in the installed-plugin registry.",
		}),
	}

	r.registry.MustRegister(r.operations, r.installed)
	return r
}

// Record counts one operation outcome
func (r *Recorder) Record(operation, result string) {
	r.operations.WithLabelValues(operation, result).Inc()
}

// SetInstalled sets the registered plugin count
func (r *Recorder) SetInstalled(count int) {
	r.installed.Set(float64(count))
}

// Gatherer exposes the underlying registry
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile writes the current metrics in the node_exporter textfile format
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}

var _ pluginports.OperationRecorder = (*Recorder)(nil)
