package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics installs only the Prometheus exporter as the global meter provider
// and initializes the global holder. It is the metrics half of Setup, for runs that
// want a /metrics endpoint without trace and log output.
func InitMetrics() (*metric.MeterProvider, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	provider := metric.NewMeterProvider(
		metric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	if err := GetGlobalMetrics().InitMetrics(GetMeter("grid_calculator")); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	return provider, nil
}
