// Package grid computes trigger prices for Fixed and Average grids
package grid

import (
	"fmt"

	"grid_calculator/internal/core"
	"grid_calculator/pkg/apperrors"
	"grid_calculator/pkg/tradingutils"

	"github.com/shopspring/decimal"
)

// Levels returns the levels defined from referencePrice without any fills.
//
// A Fixed grid yields up to Depth() levels, strictly monotonic in the grid's direction.
// An Average grid yields a single level, since every later level depends on the
// running average. Generation stops quietly at the first level whose price would not
// be positive, or that rounds onto (or behind) the previous trigger price.
func Levels(cfg core.GridConfig, referencePrice decimal.Decimal) ([]core.GridLevel, error) {
	if !referencePrice.IsPositive() {
		return nil, fmt.Errorf("%w: reference price %s must be positive", apperrors.ErrInvalidConfiguration, referencePrice)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	count := cfg.Depth()
	if cfg.GridType == core.GridAverage {
		count = 1
	}

	levels := make([]core.GridLevel, 0, count)
	prev := referencePrice
	for i := 0; i < count; i++ {
		level, err := NextLevel(cfg, referencePrice, i)
		if err != nil {
			if apperrors.IsTerminalLevel(err) {
				break
			}
			return nil, err
		}
		if !cfg.Direction.Beyond(level.TriggerPrice, prev) {
			break
		}
		levels = append(levels, level)
		prev = level.TriggerPrice
	}
	return levels, nil
}

// NextLevel computes the level with the given 0-based index anchored at anchor.
// For Fixed grids anchor is the initial price; for Average grids it is the running
// average (or the initial price before the first fill).
//
// It returns ErrNoMoreLevels past the end of the grid and ErrPriceNonPositive when
// the trigger price would be zero or negative.
func NextLevel(cfg core.GridConfig, anchor decimal.Decimal, index int) (core.GridLevel, error) {
	if index < 0 || index >= cfg.Depth() {
		return core.GridLevel{}, fmt.Errorf("level %d of %d: %w", index, cfg.Depth(), apperrors.ErrNoMoreLevels)
	}

	rounding := cfg.Rounding()
	offset := cfg.Direction.LevelOffset(cfg.LevelDistance(index))
	price := rounding.RoundPrice(tradingutils.OffsetPrice(anchor, offset))
	if !price.IsPositive() {
		return core.GridLevel{}, fmt.Errorf("level %d at %s: %w", index, price, apperrors.ErrPriceNonPositive)
	}

	return core.GridLevel{
		Index:           index,
		TriggerPrice:    price,
		PlannedQuantity: plannedQuantity(cfg),
	}, nil
}

// plannedQuantity is only known up front when sizing ignores the position
func plannedQuantity(cfg core.GridConfig) decimal.Decimal {
	if cfg.SizingMode == core.SizingFixed {
		return cfg.Rounding().RoundQuantity(cfg.BaseQuantity)
	}
	return decimal.Zero
}
