// Package telemetry buffers run metrics in memory and ships them to an OTLP/HTTP
// collector, or to the log when no endpoint is configured.
package telemetry

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// MetricType represents the type of metric
type MetricType string

const (
	Counter MetricType = "counter"
	Gauge   MetricType = "gauge"
	Timer   MetricType = "timer"
)

// Metric is one recorded observation.
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels"`
	Timestamp time.Time         `json:"timestamp"`
	Unit      string            `json:"unit,omitempty"`
}

// Collector buffers metrics until Flush. A disabled collector drops everything.
type Collector struct {
	mu       sync.Mutex
	metrics  []Metric
	enabled  bool
	exporter *OTLPExporter
}

// NewCollector creates a collector. An empty endpoint logs metrics on flush.
func NewCollector(enabled bool, otlpEndpoint string) *Collector {
	c := &Collector{enabled: enabled}
	if otlpEndpoint != "" {
		c.exporter = NewOTLPExporter(otlpEndpoint)
	}
	return c
}

// Enabled reports whether metrics are being recorded.
func (c *Collector) Enabled() bool { return c != nil && c.enabled }

// Counter adds value to a counter metric.
func (c *Collector) Counter(name string, value float64, labels map[string]string) {
	c.add(Metric{Name: name, Type: Counter, Value: value, Labels: labels})
}

// Gauge sets a gauge metric value.
func (c *Collector) Gauge(name string, value float64, labels map[string]string) {
	c.add(Metric{Name: name, Type: Gauge, Value: value, Labels: labels})
}

// Timer records a duration in milliseconds.
func (c *Collector) Timer(name string, d time.Duration, labels map[string]string) {
	c.add(Metric{Name: name, Type: Timer, Value: float64(d.Milliseconds()), Labels: labels, Unit: "ms"})
}

func (c *Collector) add(m Metric) {
	if !c.Enabled() {
		return
	}
	m.Timestamp = time.Now()
	c.mu.Lock()
	c.metrics = append(c.metrics, m)
	c.mu.Unlock()
}

// Metrics returns a copy of the buffered metrics.
func (c *Collector) Metrics() []Metric {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Metric, len(c.metrics))
	copy(out, c.metrics)
	return out
}

// Flush drains the buffer into the exporter, or the log.
func (c *Collector) Flush() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	metrics := c.metrics
	c.metrics = nil
	c.mu.Unlock()

	if len(metrics) == 0 {
		return nil
	}
	log.Debug().Int("count", len(metrics)).Msg("Flushing telemetry metrics")

	if c.exporter != nil {
		return c.exporter.Export(metrics)
	}
	for _, m := range metrics {
		log.Info().
			Str("name", m.Name).
			Str("type", string(m.Type)).
			Float64("value", m.Value).
			Interface("labels", m.Labels).
			Msg("telemetry_metric")
	}
	return nil
}

var (
	globalMu        sync.Mutex
	globalCollector *Collector
)

// InitGlobal replaces the process-wide collector.
func InitGlobal(enabled bool, otlpEndpoint string) *Collector {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalCollector = NewCollector(enabled, otlpEndpoint)
	return globalCollector
}

// GetGlobal returns the process-wide collector, disabled unless InitGlobal ran.
func GetGlobal() *Collector {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalCollector == nil {
		globalCollector = NewCollector(false, "")
	}
	return globalCollector
}

// Shutdown flushes the global collector.
func Shutdown() error {
	return GetGlobal().Flush()
}
