// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"

	"grid_calculator/internal/core"
	"grid_calculator/pkg/apperrors"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var hundred = decimal.NewFromInt(100)

// Config represents the complete configuration structure
type Config struct {
	System     SystemConfig     `yaml:"system"`
	Base       BaseConfig       `yaml:"base"`
	Grid       GridSection      `yaml:"grid"`
	Position   PositionConfig   `yaml:"position"`
	Precision  PrecisionConfig  `yaml:"precision"`
	Strategies []StrategyConfig `yaml:"strategies"`
	Backtest   BacktestConfig   `yaml:"backtest"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// SystemConfig contains process-level settings
type SystemConfig struct {
	LogLevel string `yaml:"log_level"`
}

// BaseConfig anchors the grid
type BaseConfig struct {
	InitialPrice decimal.Decimal `yaml:"initial_price"`
	GridType     string          `yaml:"grid_type"`
	Direction    string          `yaml:"direction"`
}

// GridSection describes level spacing. Percent values, 2 means 2%.
// When Levels is set it replaces StepPercent.
type GridSection struct {
	StepPercent decimal.Decimal   `yaml:"step_percent"`
	MaxLevels   int               `yaml:"max_levels"`
	Levels      []decimal.Decimal `yaml:"levels"`
}

// PositionConfig selects the sizing rule
type PositionConfig struct {
	Mode       string           `yaml:"mode"`
	BaseSize   decimal.Decimal  `yaml:"base_size"`
	Multiplier *decimal.Decimal `yaml:"multiplier"`
}

// PrecisionConfig sets rounding digits. Unset fields use the defaults.
type PrecisionConfig struct {
	PriceDecimals    *int32 `yaml:"price_decimals"`
	QuantityDecimals *int32 `yaml:"quantity_decimals"`
}

// StrategyConfig is a named variant of the main configuration.
// Any field left empty inherits the main value.
type StrategyConfig struct {
	Name         string            `yaml:"name"`
	InitialPrice *decimal.Decimal  `yaml:"initial_price"`
	GridType     string            `yaml:"grid_type"`
	Direction    string            `yaml:"direction"`
	StepPercent  *decimal.Decimal  `yaml:"step_percent"`
	MaxLevels    int               `yaml:"max_levels"`
	Levels       []decimal.Decimal `yaml:"levels"`
	PositionMode string            `yaml:"position_mode"`
	BaseSize     *decimal.Decimal  `yaml:"base_size"`
	Multiplier   *decimal.Decimal  `yaml:"multiplier"`
}

// BacktestConfig sizes the batch worker pool.
// NonBlocking rejects jobs that do not fit in the queue instead of waiting.
type BacktestConfig struct {
	Workers     int  `yaml:"workers"`
	Capacity    int  `yaml:"capacity"`
	NonBlocking bool `yaml:"non_blocking"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	EnableMetrics bool   `yaml:"enable_metrics"`
	MetricsAddr   string `yaml:"metrics_addr"`
	EnableTraces  bool   `yaml:"enable_traces"`
	PrettyPrint   bool   `yaml:"pretty_print"`
}

// ValidationError represents a configuration validation error
type ValidationError = apperrors.ValidationError

// LoadConfig reads, expands and validates a YAML configuration file
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML configuration content
func Parse(data []byte) (*Config, error) {
	// Expand environment variables in the YAML content
	expandedData := expandEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration.
// The returned error matches apperrors.ErrInvalidConfiguration.
func (c *Config) Validate() error {
	var errors []string

	if err := c.validateSystemConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	if _, err := c.GridConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	if err := c.validateStrategies(); err != nil {
		errors = append(errors, err.Error())
	}

	if err := c.validateBacktestConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	if err := c.validateTelemetryConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("%w: configuration validation failed:\n%s", apperrors.ErrInvalidConfiguration, strings.Join(errors, "\n"))
	}

	return nil
}

func (c *Config) validateSystemConfig() error {
	if c.System.LogLevel == "" {
		return nil
	}
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

func (c *Config) validateStrategies() error {
	var errs []string
	seen := make(map[string]bool)
	for i, s := range c.Strategies {
		field := fmt.Sprintf("strategies[%d]", i)
		switch {
		case strings.TrimSpace(s.Name) == "":
			errs = append(errs, ValidationError{Field: field + ".name", Message: "strategy name is required"}.Error())
			continue
		case seen[s.Name]:
			errs = append(errs, ValidationError{Field: field + ".name", Value: s.Name, Message: "duplicate strategy name"}.Error())
			continue
		}
		seen[s.Name] = true

		if _, err := c.StrategyGridConfig(s.Name); err != nil {
			errs = append(errs, fmt.Sprintf("strategy '%s': %v", s.Name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "\n"))
	}
	return nil
}

func (c *Config) validateBacktestConfig() error {
	if c.Backtest.Workers < 0 {
		return ValidationError{Field: "backtest.workers", Value: c.Backtest.Workers, Message: "must not be negative"}
	}
	if c.Backtest.Capacity < 0 {
		return ValidationError{Field: "backtest.capacity", Value: c.Backtest.Capacity, Message: "must not be negative"}
	}
	return nil
}

func (c *Config) validateTelemetryConfig() error {
	if c.Telemetry.EnableMetrics && c.Telemetry.MetricsAddr == "" {
		return ValidationError{Field: "telemetry.metrics_addr", Message: "required when metrics are enabled"}
	}
	return nil
}

// gridParams is the flat, string-typed view shared by the main section and strategies
type gridParams struct {
	initialPrice decimal.Decimal
	gridType     string
	direction    string
	stepPercent  decimal.Decimal
	maxLevels    int
	levels       []decimal.Decimal
	mode         string
	baseSize     decimal.Decimal
	multiplier   *decimal.Decimal
}

func (c *Config) mainParams() gridParams {
	return gridParams{
		initialPrice: c.Base.InitialPrice,
		gridType:     c.Base.GridType,
		direction:    c.Base.Direction,
		stepPercent:  c.Grid.StepPercent,
		maxLevels:    c.Grid.MaxLevels,
		levels:       c.Grid.Levels,
		mode:         c.Position.Mode,
		baseSize:     c.Position.BaseSize,
		multiplier:   c.Position.Multiplier,
	}
}

// GridConfig converts the main section into a validated core.GridConfig
func (c *Config) GridConfig() (core.GridConfig, error) {
	return c.build(c.mainParams())
}

// StrategyGridConfig converts a named strategy, layered over the main section,
// into a validated core.GridConfig
func (c *Config) StrategyGridConfig(name string) (core.GridConfig, error) {
	s, ok := c.Strategy(name)
	if !ok {
		return core.GridConfig{}, fmt.Errorf("%w: strategy '%s' not found", apperrors.ErrInvalidConfiguration, name)
	}

	p := c.mainParams()
	if s.InitialPrice != nil {
		p.initialPrice = *s.InitialPrice
	}
	if s.GridType != "" {
		p.gridType = s.GridType
	}
	if s.Direction != "" {
		p.direction = s.Direction
	}
	if s.StepPercent != nil {
		p.stepPercent = *s.StepPercent
		p.levels = nil
	}
	if s.MaxLevels != 0 {
		p.maxLevels = s.MaxLevels
	}
	if len(s.Levels) > 0 {
		p.levels = s.Levels
	}
	if s.PositionMode != "" {
		p.mode = s.PositionMode
	}
	if s.BaseSize != nil {
		p.baseSize = *s.BaseSize
	}
	if s.Multiplier != nil {
		p.multiplier = s.Multiplier
	}
	return c.build(p)
}

// Strategy looks up a named strategy
func (c *Config) Strategy(name string) (StrategyConfig, bool) {
	for _, s := range c.Strategies {
		if s.Name == name {
			return s, true
		}
	}
	return StrategyConfig{}, false
}

// StrategyNames lists the named strategies in file order
func (c *Config) StrategyNames() []string {
	names := make([]string, 0, len(c.Strategies))
	for _, s := range c.Strategies {
		names = append(names, s.Name)
	}
	return names
}

func (c *Config) build(p gridParams) (core.GridConfig, error) {
	var errs []string
	add := func(field string, value interface{}, msg string) {
		errs = append(errs, ValidationError{Field: field, Value: value, Message: msg}.Error())
	}

	gridType, err := core.ParseGridType(p.gridType)
	if err != nil {
		add("base.grid_type", p.gridType, "must be fixed or average")
	}
	direction, err := core.ParseDirection(p.direction)
	if err != nil {
		add("base.direction", p.direction, "must be long or short")
	}
	mode, err := core.ParseSizingMode(p.mode)
	if err != nil {
		add("position.mode", p.mode, "must be fixed, current-multiple or increment-multiple")
	}
	if mode.RequiresMultiplier() && p.multiplier == nil {
		add("position.multiplier", nil, fmt.Sprintf("multiplier is required for %s position mode", mode))
	}
	if len(p.levels) == 0 && p.stepPercent.IsZero() {
		add("grid.levels", nil, "either grid.levels or grid.step_percent is required")
	}
	if len(errs) > 0 {
		return core.GridConfig{}, fmt.Errorf("%w:\n%s", apperrors.ErrInvalidConfiguration, strings.Join(errs, "\n"))
	}

	maxLevels := p.maxLevels
	if maxLevels == 0 && len(p.levels) > 0 {
		maxLevels = len(p.levels)
	}

	cfg := core.GridConfig{
		Direction:    direction,
		GridType:     gridType,
		SizingMode:   mode,
		StepPercent:  p.stepPercent.Div(hundred),
		BaseQuantity: p.baseSize,
		MaxLevels:    maxLevels,
		InitialPrice: p.initialPrice,
		Precision:    c.precision(),
	}
	if p.multiplier != nil {
		cfg.Multiplier = *p.multiplier
	}
	for _, l := range p.levels {
		cfg.Offsets = append(cfg.Offsets, l.Div(hundred))
	}

	if err := cfg.Validate(); err != nil {
		return core.GridConfig{}, err
	}
	return cfg, nil
}

func (c *Config) precision() *core.Precision {
	p := core.DefaultPrecision()
	if c.Precision.PriceDecimals != nil {
		p.PriceDecimals = *c.Precision.PriceDecimals
	}
	if c.Precision.QuantityDecimals != nil {
		p.QuantityDecimals = *c.Precision.QuantityDecimals
	}
	return &p
}

// Helper functions

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
