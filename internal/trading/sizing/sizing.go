// Package sizing decides the quantity traded at a triggered level
package sizing

import (
	"fmt"

	"grid_calculator/internal/core"
	"grid_calculator/pkg/apperrors"

	"github.com/shopspring/decimal"
)

// QuantityFor returns the quantity to trade at the next triggered level given the
// position before the fill.
//
//   - Fixed always returns the base quantity.
//   - CurrentMultiple returns multiplier * total quantity, or the base quantity while flat.
//   - IncrementMultiple returns multiplier * last fill quantity, or the base quantity
//     before the first fill.
//
// The result is rounded half-to-even to the configured quantity decimals. A result that
// is not positive fails with ErrDegenerateQuantity.
func QuantityFor(cfg core.GridConfig, state core.PositionState) (decimal.Decimal, error) {
	var raw decimal.Decimal
	switch cfg.SizingMode {
	case core.SizingFixed:
		raw = cfg.BaseQuantity
	case core.SizingCurrentMultiple:
		raw = scaled(cfg, state.TotalQuantity)
	case core.SizingIncrementMultiple:
		raw = scaled(cfg, state.LastFillQuantity)
	default:
		return decimal.Zero, fmt.Errorf("%w: unknown sizing mode %s", apperrors.ErrInvalidConfiguration, cfg.SizingMode)
	}

	qty := cfg.Rounding().RoundQuantity(raw)
	if !qty.IsPositive() {
		return decimal.Zero, fmt.Errorf("%s sizing produced %s from %s: %w",
			cfg.SizingMode, qty, raw, apperrors.ErrDegenerateQuantity)
	}
	return qty, nil
}

func scaled(cfg core.GridConfig, prev decimal.Decimal) decimal.Decimal {
	if prev.IsZero() {
		return cfg.BaseQuantity
	}
	return cfg.Multiplier.Mul(prev)
}
