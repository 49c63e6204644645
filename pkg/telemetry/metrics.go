package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricFillsTotal         = "grid_fills_total"
	MetricFillVolumeTotal    = "grid_fill_volume_total"
	MetricTicksIgnoredTotal  = "grid_ticks_ignored_total"
	MetricRunsExhaustedTotal = "grid_runs_exhausted_total"
	MetricBacktestDuration   = "grid_backtest_duration_ms"
	MetricPositionSize       = "grid_position_size"
)

// MetricsHolder holds initialized instruments.
// Every recording helper is a no-op until InitMetrics has run.
type MetricsHolder struct {
	FillsTotal         metric.Int64Counter
	FillVolumeTotal    metric.Float64Counter
	TicksIgnoredTotal  metric.Int64Counter
	RunsExhaustedTotal metric.Int64Counter
	BacktestDuration   metric.Float64Histogram
	PositionSize       metric.Float64ObservableGauge

	// State for observable gauges
	mu              sync.RWMutex
	positionSizeMap map[string]float64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = NewMetricsHolder()
	})
	return globalMetrics
}

// NewMetricsHolder creates a holder with no instruments. Tests use it to keep
// their readings apart from the global holder.
func NewMetricsHolder() *MetricsHolder {
	return &MetricsHolder{
		positionSizeMap: make(map[string]float64),
	}
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.FillsTotal, err = meter.Int64Counter(MetricFillsTotal, metric.WithDescription("Total grid levels filled"))
	if err != nil {
		return err
	}

	m.FillVolumeTotal, err = meter.Float64Counter(MetricFillVolumeTotal, metric.WithDescription("Total quantity filled across grid levels"))
	if err != nil {
		return err
	}

	m.TicksIgnoredTotal, err = meter.Int64Counter(MetricTicksIgnoredTotal, metric.WithDescription("Price ticks ignored because they were not positive"))
	if err != nil {
		return err
	}

	m.RunsExhaustedTotal, err = meter.Int64Counter(MetricRunsExhaustedTotal, metric.WithDescription("Grid runs that filled every available level"))
	if err != nil {
		return err
	}

	m.BacktestDuration, err = meter.Float64Histogram(MetricBacktestDuration, metric.WithDescription("Wall time of one backtest job"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	m.PositionSize, err = meter.Float64ObservableGauge(MetricPositionSize, metric.WithDescription("Current position size per run"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			for run, val := range m.GetPositionSize() {
				obs.Observe(val, metric.WithAttributes(attribute.String("run", run)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// RecordFill counts one fill of the given quantity
func (m *MetricsHolder) RecordFill(ctx context.Context, strategy string, quantity float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("strategy", strategy))
	if m.FillsTotal != nil {
		m.FillsTotal.Add(ctx, 1, attrs)
	}
	if m.FillVolumeTotal != nil {
		m.FillVolumeTotal.Add(ctx, quantity, attrs)
	}
}

// RecordIgnoredTick counts a tick that was skipped
func (m *MetricsHolder) RecordIgnoredTick(ctx context.Context, strategy string) {
	if m == nil || m.TicksIgnoredTotal == nil {
		return
	}
	m.TicksIgnoredTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", strategy)))
}

// RecordExhausted counts a run that reached its terminal state
func (m *MetricsHolder) RecordExhausted(ctx context.Context, strategy string) {
	if m == nil || m.RunsExhaustedTotal == nil {
		return
	}
	m.RunsExhaustedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", strategy)))
}

// RecordBacktestDuration records the wall time of one backtest job
func (m *MetricsHolder) RecordBacktestDuration(ctx context.Context, strategy string, ms float64, failed bool) {
	if m == nil || m.BacktestDuration == nil {
		return
	}
	m.BacktestDuration.Record(ctx, ms, metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.Bool("failed", failed),
	))
}

// SetPositionSize stores the latest position of a run for the gauge
func (m *MetricsHolder) SetPositionSize(run string, size float64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positionSizeMap[run] = size
}

// ClearPositionSize drops a finished run from the gauge
func (m *MetricsHolder) ClearPositionSize(run string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positionSizeMap, run)
}

// GetPositionSize returns a snapshot of the latest position per run
func (m *MetricsHolder) GetPositionSize() map[string]float64 {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]float64)
	for k, v := range m.positionSizeMap {
		res[k] = v
	}
	return res
}
