package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// ServiceName is reported as the OTLP resource service.name.
const ServiceName = "netcfg"

// Version is stamped into exported resources; the CLI sets it at startup.
var Version = "dev"

// OTLPExporter posts metrics to an OTLP/HTTP JSON endpoint such as
// http://collector:4318/v1/metrics.
type OTLPExporter struct {
	endpoint string
	client   *http.Client
}

func NewOTLPExporter(endpoint string) *OTLPExporter {
	return &OTLPExporter{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type otlpMetricsPayload struct {
	ResourceMetrics []otlpResourceMetrics `json:"resourceMetrics"`
}

type otlpResourceMetrics struct {
	Resource     otlpResource       `json:"resource"`
	ScopeMetrics []otlpScopeMetrics `json:"scopeMetrics"`
}

type otlpResource struct {
	Attributes []otlpAttribute `json:"attributes"`
}

type otlpScopeMetrics struct {
	Scope   otlpScope    `json:"scope"`
	Metrics []otlpMetric `json:"metrics"`
}

type otlpScope struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type otlpMetric struct {
	Name  string     `json:"name"`
	Unit  string     `json:"unit,omitempty"`
	Sum   *otlpSum   `json:"sum,omitempty"`
	Gauge *otlpGauge `json:"gauge,omitempty"`
}

type otlpSum struct {
	DataPoints             []otlpNumberDataPoint `json:"dataPoints"`
	AggregationTemporality int                   `json:"aggregationTemporality"`
	IsMonotonic            bool                  `json:"isMonotonic"`
}

type otlpGauge struct {
	DataPoints []otlpNumberDataPoint `json:"dataPoints"`
}

type otlpNumberDataPoint struct {
	Attributes   []otlpAttribute `json:"attributes,omitempty"`
	TimeUnixNano int64           `json:"timeUnixNano"`
	AsDouble     float64         `json:"asDouble"`
}

type otlpAttribute struct {
	Key   string    `json:"key"`
	Value otlpValue `json:"value"`
}

type otlpValue struct {
	StringValue string `json:"stringValue,omitempty"`
}

// Export sends metrics to the endpoint.
func (e *OTLPExporter) Export(metrics []Metric) error {
	if len(metrics) == 0 {
		return nil
	}
	data, err := json.Marshal(toOTLP(metrics))
	if err != nil {
		return fmt.Errorf("marshal otlp payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, e.endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("send metrics: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("otlp endpoint returned status %d", resp.StatusCode)
	}

	log.Debug().Str("endpoint", e.endpoint).Int("metric_count", len(metrics)).Msg("Exported metrics")
	return nil
}

func toOTLP(metrics []Metric) otlpMetricsPayload {
	out := make([]otlpMetric, 0, len(metrics))
	for _, m := range metrics {
		keys := make([]string, 0, len(m.Labels))
		for k := range m.Labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		attrs := make([]otlpAttribute, 0, len(keys))
		for _, k := range keys {
			attrs = append(attrs, otlpAttribute{Key: k, Value: otlpValue{StringValue: m.Labels[k]}})
		}
		point := otlpNumberDataPoint{Attributes: attrs, TimeUnixNano: m.Timestamp.UnixNano(), AsDouble: m.Value}

		om := otlpMetric{Name: m.Name, Unit: m.Unit}
		if m.Type == Counter {
			// delta temporality: each point is the increment of one run
			om.Sum = &otlpSum{DataPoints: []otlpNumberDataPoint{point}, AggregationTemporality: 1, IsMonotonic: true}
		} else {
			om.Gauge = &otlpGauge{DataPoints: []otlpNumberDataPoint{point}}
		}
		out = append(out, om)
	}

	return otlpMetricsPayload{
		ResourceMetrics: []otlpResourceMetrics{{
			Resource: otlpResource{Attributes: []otlpAttribute{
				{Key: "service.name", Value: otlpValue{StringValue: ServiceName}},
				{Key: "service.version", Value: otlpValue{StringValue: Version}},
			}},
			ScopeMetrics: []otlpScopeMetrics{{
				Scope:   otlpScope{Name: ServiceName + "/orchestrator", Version: Version},
				Metrics: out,
			}},
		}},
	}
}
