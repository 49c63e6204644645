package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"grid_calculator/internal/core"
	"grid_calculator/internal/trading/simulation"
	"grid_calculator/pkg/apperrors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
system:
  log_level: debug
base:
  initial_price: 100
  grid_type: fixed
grid:
  levels: [1, 2, 3, 5]
position:
  mode: fixed
  base_size: 100
precision:
  price_decimals: 2
  quantity_decimals: 4
backtest:
  workers: 2
strategies:
  - name: aggressive
    grid_type: average
    levels: [1, 1, 1]
    position_mode: current-multiple
    base_size: 50
    multiplier: 2
  - name: short-ladder
    direction: short
    step_percent: 0.5
    max_levels: 4
  - name: dip
    initial_price: ${DIP_PRICE}
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decimals(values []decimal.Decimal) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, v.String())
	}
	return out
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("DIP_PRICE", "80")
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.System.LogLevel)
	assert.Equal(t, []string{"aggressive", "short-ladder", "dip"}, cfg.StrategyNames())

	main, err := cfg.GridConfig()
	require.NoError(t, err)
	assert.Equal(t, core.GridFixed, main.GridType)
	assert.Equal(t, core.Long, main.Direction)
	assert.Equal(t, core.SizingFixed, main.SizingMode)
	assert.Equal(t, 4, main.MaxLevels)
	assert.Equal(t, []string{"0.01", "0.02", "0.03", "0.05"}, decimals(main.Offsets))
	assert.Equal(t, &core.Precision{PriceDecimals: 2, QuantityDecimals: 4}, main.Precision)
}

func TestStrategyGridConfig(t *testing.T) {
	t.Setenv("DIP_PRICE", "80")
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	aggressive, err := cfg.StrategyGridConfig("aggressive")
	require.NoError(t, err)
	assert.Equal(t, core.GridAverage, aggressive.GridType)
	assert.Equal(t, core.SizingCurrentMultiple, aggressive.SizingMode)
	assert.True(t, dec("2").Equal(aggressive.Multiplier))
	assert.True(t, dec("50").Equal(aggressive.BaseQuantity))
	assert.Len(t, aggressive.Offsets, 3)
	assert.True(t, dec("100").Equal(aggressive.InitialPrice), "inherits the main initial price")

	short, err := cfg.StrategyGridConfig("short-ladder")
	require.NoError(t, err)
	assert.Equal(t, core.Short, short.Direction)
	assert.Empty(t, short.Offsets, "step_percent replaces inherited levels")
	assert.True(t, dec("0.005").Equal(short.StepPercent))
	assert.Equal(t, 4, short.MaxLevels)

	dip, err := cfg.StrategyGridConfig("dip")
	require.NoError(t, err)
	assert.True(t, dec("80").Equal(dip.InitialPrice))

	_, err = cfg.StrategyGridConfig("missing")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidConfiguration))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "default is valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "invalid grid type",
			mutate:  func(c *Config) { c.Base.GridType = "triangle" },
			wantErr: "base.grid_type",
		},
		{
			name:    "invalid position mode",
			mutate:  func(c *Config) { c.Position.Mode = "martingale" },
			wantErr: "position.mode",
		},
		{
			name:    "missing multiplier",
			mutate:  func(c *Config) { c.Position.Mode = "increment-multiple" },
			wantErr: "multiplier is required",
		},
		{
			name: "level out of range",
			mutate: func(c *Config) {
				c.Grid.Levels = []decimal.Decimal{dec("1"), dec("100")}
			},
			wantErr: "offsets[1]",
		},
		{
			name:    "no spacing",
			mutate:  func(c *Config) { c.Grid.StepPercent = decimal.Zero },
			wantErr: "grid.levels",
		},
		{
			name:    "non-positive initial price",
			mutate:  func(c *Config) { c.Base.InitialPrice = dec("-1") },
			wantErr: "initial_price",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.System.LogLevel = "chatty" },
			wantErr: "system.log_level",
		},
		{
			name: "duplicate strategy",
			mutate: func(c *Config) {
				c.Strategies = []StrategyConfig{{Name: "a"}, {Name: "a"}}
			},
			wantErr: "duplicate strategy name",
		},
		{
			name: "unnamed strategy",
			mutate: func(c *Config) {
				c.Strategies = []StrategyConfig{{GridType: "average"}}
			},
			wantErr: "strategy name is required",
		},
		{
			name: "invalid strategy override",
			mutate: func(c *Config) {
				c.Strategies = []StrategyConfig{{Name: "bad", PositionMode: "current-multiple"}}
			},
			wantErr: "strategy 'bad'",
		},
		{
			name:    "negative workers",
			mutate:  func(c *Config) { c.Backtest.Workers = -1 },
			wantErr: "backtest.workers",
		},
		{
			name: "metrics without address",
			mutate: func(c *Config) {
				c.Telemetry.EnableMetrics = true
				c.Telemetry.MetricsAddr = ""
			},
			wantErr: "telemetry.metrics_addr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrInvalidConfiguration))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.Base.GridType = "triangle"
	cfg.System.LogLevel = "chatty"
	cfg.Backtest.Capacity = -3

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base.grid_type")
	assert.Contains(t, err.Error(), "system.log_level")
	assert.Contains(t, err.Error(), "backtest.capacity")
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "base: [unterminated"))
	assert.ErrorContains(t, err, "failed to parse config file")

	_, err = LoadConfig(writeConfig(t, "base:\n  initial_price: 0\n  grid_type: fixed\ngrid:\n  step_percent: 1\n  max_levels: 2\nposition:\n  mode: fixed\n  base_size: 1\n"))
	assert.True(t, errors.Is(err, apperrors.ErrInvalidConfiguration))
}

func TestPrecision_ExplicitZero(t *testing.T) {
	cfg, err := Parse([]byte(`
base: {initial_price: 100, grid_type: fixed}
grid: {step_percent: 2, max_levels: 3}
position: {mode: fixed, base_size: 1}
precision: {price_decimals: 0}
`))
	require.NoError(t, err)

	grid, err := cfg.GridConfig()
	require.NoError(t, err)
	require.NotNil(t, grid.Precision)
	assert.Equal(t, int32(0), grid.Precision.PriceDecimals)
	assert.Equal(t, int32(core.DefaultQuantityDecimals), grid.Precision.QuantityDecimals)
}

func TestPrecision_BothZeroKeepsIntegerRounding(t *testing.T) {
	cfg, err := Parse([]byte(`
base: {initial_price: 100, grid_type: average}
grid: {step_percent: 1, max_levels: 2}
position: {mode: increment-multiple, base_size: 1, multiplier: 1.5}
precision: {price_decimals: 0, quantity_decimals: 0}
`))
	require.NoError(t, err)

	grid, err := cfg.GridConfig()
	require.NoError(t, err)
	assert.Equal(t, core.Precision{PriceDecimals: 0, QuantityDecimals: 0}, grid.Rounding())

	fills, err := simulation.Project(grid)
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.Equal(t, "99", fills[0].Price.String())
	assert.Equal(t, "98", fills[1].Price.String())
	assert.Equal(t, "2", fills[1].Quantity.String())
	assert.Equal(t, "98", fills[1].ResultingAveragePrice.String())
}

func validConfig() *Config {
	return &Config{
		System: SystemConfig{LogLevel: "INFO"},
		Base: BaseConfig{
			InitialPrice: decimal.NewFromInt(100),
			GridType:     "fixed",
			Direction:    "long",
		},
		Grid: GridSection{
			StepPercent: decimal.NewFromInt(1),
			MaxLevels:   5,
		},
		Position: PositionConfig{
			Mode:     "fixed",
			BaseSize: decimal.NewFromInt(100),
		},
		Backtest: BacktestConfig{
			Workers:  4,
			Capacity: 64,
		},
		Telemetry: TelemetryConfig{
			MetricsAddr: ":9090",
		},
	}
}

func TestExpandEnvVars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		envVars  map[string]string
		expected string
	}{
		{
			name:     "expand single env var",
			input:    "initial_price: ${GRID_PRICE}",
			envVars:  map[string]string{"GRID_PRICE": "42.5"},
			expected: "initial_price: 42.5",
		},
		{
			name:     "missing env var returns empty string",
			input:    "initial_price: ${MISSING_GRID_VAR}",
			expected: "initial_price: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			assert.Equal(t, tt.expected, expandEnvVars(tt.input))
		})
	}
}
