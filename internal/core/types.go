package core

import (
	"fmt"
	"strings"

	"grid_calculator/pkg/apperrors"
	"grid_calculator/pkg/tradingutils"

	"github.com/shopspring/decimal"
)

// Default number of fractional digits kept for prices and quantities
const (
	DefaultPriceDecimals    = 8
	DefaultQuantityDecimals = 8
)

// Precision carries the rounding rule shared by every computation in a run:
// half-to-even at a fixed number of fractional digits.
type Precision struct {
	PriceDecimals    int32
	QuantityDecimals int32
}

// DefaultPrecision returns 8 price and 8 quantity decimals
func DefaultPrecision() Precision {
	return Precision{PriceDecimals: DefaultPriceDecimals, QuantityDecimals: DefaultQuantityDecimals}
}

// RoundPrice applies the price rounding rule
func (p Precision) RoundPrice(v decimal.Decimal) decimal.Decimal {
	return tradingutils.RoundPrice(v, p.PriceDecimals)
}

// RoundQuantity applies the quantity rounding rule
func (p Precision) RoundQuantity(v decimal.Decimal) decimal.Decimal {
	return tradingutils.RoundQuantity(v, p.QuantityDecimals)
}

// GridConfig is the immutable description of one grid run
type GridConfig struct {
	Direction    Direction
	GridType     GridType
	SizingMode   SizingMode
	StepPercent  decimal.Decimal // fractional spacing, 0.02 = 2%
	BaseQuantity decimal.Decimal
	Multiplier   decimal.Decimal // only read when SizingMode scales a previous quantity
	MaxLevels    int
	InitialPrice decimal.Decimal

	// Offsets optionally replaces the uniform step with one fractional distance per level.
	// Fixed grids measure each offset from the initial price, Average grids from the
	// running average at the time the level becomes pending.
	Offsets []decimal.Decimal

	// Precision is nil when the run uses DefaultPrecision. Zero digits are a valid setting.
	Precision *Precision
}

// Rounding returns the effective precision of the run
func (c GridConfig) Rounding() Precision {
	if c.Precision == nil {
		return DefaultPrecision()
	}
	return *c.Precision
}

// Depth is the number of levels the grid can fill
func (c GridConfig) Depth() int {
	if len(c.Offsets) > 0 && len(c.Offsets) < c.MaxLevels {
		return len(c.Offsets)
	}
	return c.MaxLevels
}

// LevelDistance returns the unsigned fractional distance of a level from its anchor.
// index is 0-based.
func (c GridConfig) LevelDistance(index int) decimal.Decimal {
	if len(c.Offsets) > 0 {
		return c.Offsets[index]
	}
	if c.GridType == GridAverage {
		return c.StepPercent
	}
	return c.StepPercent.Mul(decimal.NewFromInt(int64(index + 1)))
}

// Validate checks every invariant of the configuration.
// All failures are reported together and match apperrors.ErrInvalidConfiguration.
func (c GridConfig) Validate() error {
	var errs []string
	add := func(field string, value interface{}, msg string) {
		errs = append(errs, apperrors.ValidationError{Field: field, Value: value, Message: msg}.Error())
	}

	if !c.Direction.Valid() {
		add("direction", c.Direction, "must be long or short")
	}
	if !c.GridType.Valid() {
		add("grid_type", c.GridType, "must be fixed or average")
	}
	if !c.SizingMode.Valid() {
		add("sizing_mode", c.SizingMode, "must be fixed, current-multiple or increment-multiple")
	}
	if len(c.Offsets) == 0 && !c.StepPercent.IsPositive() {
		add("step_percent", c.StepPercent, "must be positive")
	}
	if !c.BaseQuantity.IsPositive() {
		add("base_quantity", c.BaseQuantity, "must be positive")
	}
	if c.SizingMode.RequiresMultiplier() && !c.Multiplier.IsPositive() {
		add("multiplier", c.Multiplier, fmt.Sprintf("must be positive for %s sizing", c.SizingMode))
	}
	if c.MaxLevels < 1 {
		add("max_levels", c.MaxLevels, "must be at least 1")
	}
	if !c.InitialPrice.IsPositive() {
		add("initial_price", c.InitialPrice, "must be positive")
	}
	if c.Precision != nil && (c.Precision.PriceDecimals < 0 || c.Precision.QuantityDecimals < 0) {
		add("precision", *c.Precision, "decimals must not be negative")
	}

	one := decimal.NewFromInt(1)
	for i, off := range c.Offsets {
		if !off.IsPositive() || !off.LessThan(one) {
			add(fmt.Sprintf("offsets[%d]", i), off, "must be between 0 and 1 exclusive")
			continue
		}
		if c.GridType == GridFixed && i > 0 && !off.GreaterThan(c.Offsets[i-1]) {
			add(fmt.Sprintf("offsets[%d]", i), off, "fixed grid offsets must be strictly increasing")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n%s", apperrors.ErrInvalidConfiguration, strings.Join(errs, "\n"))
	}
	return nil
}

// GridLevel is one trigger price of the grid.
// PlannedQuantity is zero when the quantity can only be known at trigger time.
type GridLevel struct {
	Index           int
	TriggerPrice    decimal.Decimal
	PlannedQuantity decimal.Decimal
}

// PositionState is the running position of one grid run
type PositionState struct {
	AveragePrice     decimal.Decimal
	TotalQuantity    decimal.Decimal
	TotalCost        decimal.Decimal // exact sum of price * quantity over all fills
	LastFillQuantity decimal.Decimal
	FilledLevels     int
}

// IsFlat reports whether no quantity is held
func (s PositionState) IsFlat() bool {
	return s.TotalQuantity.IsZero()
}

// FillEvent records one triggered level. It is never mutated after creation.
type FillEvent struct {
	LevelIndex             int
	TickIndex              int
	Price                  decimal.Decimal
	Quantity               decimal.Decimal
	ResultingAveragePrice  decimal.Decimal
	ResultingTotalQuantity decimal.Decimal
	ResultingTotalCost     decimal.Decimal
}
