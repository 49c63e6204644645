package grid

import (
	"errors"
	"testing"

	"grid_calculator/internal/core"
	"grid_calculator/pkg/apperrors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func baseConfig() core.GridConfig {
	return core.GridConfig{
		Direction:    core.Long,
		GridType:     core.GridFixed,
		SizingMode:   core.SizingFixed,
		StepPercent:  dec("0.02"),
		BaseQuantity: dec("10"),
		MaxLevels:    3,
		InitialPrice: dec("100"),
	}
}

func prices(levels []core.GridLevel) []string {
	out := make([]string, 0, len(levels))
	for _, l := range levels {
		out = append(out, l.TriggerPrice.String())
	}
	return out
}

func TestLevels_FixedLong(t *testing.T) {
	levels, err := Levels(baseConfig(), dec("100"))
	require.NoError(t, err)

	assert.Equal(t, []string{"98", "96", "94"}, prices(levels))
	for i, l := range levels {
		assert.Equal(t, i, l.Index)
		assert.True(t, dec("10").Equal(l.PlannedQuantity))
	}
}

func TestLevels_FixedShort(t *testing.T) {
	cfg := baseConfig()
	cfg.Direction = core.Short

	levels, err := Levels(cfg, dec("100"))
	require.NoError(t, err)
	assert.Equal(t, []string{"102", "104", "106"}, prices(levels))
}

func TestLevels_FixedIsStrictlyMonotonic(t *testing.T) {
	for _, dir := range []core.Direction{core.Long, core.Short} {
		cfg := baseConfig()
		cfg.Direction = dir
		cfg.MaxLevels = 40
		cfg.StepPercent = dec("0.0137")
		cfg.Precision = &core.Precision{PriceDecimals: 4, QuantityDecimals: 4}

		levels, err := Levels(cfg, dec("2513.77"))
		require.NoError(t, err)
		require.NotEmpty(t, levels)
		assert.LessOrEqual(t, len(levels), cfg.MaxLevels)

		for i := 1; i < len(levels); i++ {
			assert.True(t, dir.Beyond(levels[i].TriggerPrice, levels[i-1].TriggerPrice),
				"%s level %d (%s) not beyond %s", dir, i, levels[i].TriggerPrice, levels[i-1].TriggerPrice)
		}
	}
}

func TestLevels_Deterministic(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxLevels = 10
	cfg.StepPercent = dec("0.0333")

	first, err := Levels(cfg, dec("123.45"))
	require.NoError(t, err)
	second, err := Levels(cfg, dec("123.45"))
	require.NoError(t, err)

	assert.Equal(t, prices(first), prices(second))
}

func TestLevels_OffsetsMatchPercentLadder(t *testing.T) {
	cfg := baseConfig()
	cfg.StepPercent = decimal.Zero
	cfg.MaxLevels = 10
	cfg.Offsets = []decimal.Decimal{dec("0.01"), dec("0.02"), dec("0.03"), dec("0.05")}

	levels, err := Levels(cfg, dec("100"))
	require.NoError(t, err)
	assert.Equal(t, []string{"99", "98", "97", "95"}, prices(levels))
}

func TestLevels_AverageYieldsSingleLevel(t *testing.T) {
	cfg := baseConfig()
	cfg.GridType = core.GridAverage
	cfg.StepPercent = dec("0.01")

	levels, err := Levels(cfg, dec("100"))
	require.NoError(t, err)
	assert.Equal(t, []string{"99"}, prices(levels))

	levels, err = Levels(cfg, dec("99"))
	require.NoError(t, err)
	assert.Equal(t, []string{"98.01"}, prices(levels))
}

func TestLevels_StopsBeforeNonPositivePrice(t *testing.T) {
	cfg := baseConfig()
	cfg.StepPercent = dec("0.4")
	cfg.MaxLevels = 5

	levels, err := Levels(cfg, dec("100"))
	require.NoError(t, err)
	assert.Equal(t, []string{"60", "20"}, prices(levels))
}

func TestLevels_StopsWhenRoundingCollapsesLevels(t *testing.T) {
	cfg := baseConfig()
	cfg.StepPercent = dec("0.006")
	cfg.MaxLevels = 5
	cfg.Precision = &core.Precision{PriceDecimals: 0, QuantityDecimals: 8}

	levels, err := Levels(cfg, dec("100"))
	require.NoError(t, err)
	assert.Equal(t, []string{"99"}, prices(levels))
}

func TestLevels_InvalidInput(t *testing.T) {
	_, err := Levels(baseConfig(), decimal.Zero)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidConfiguration))

	_, err = Levels(baseConfig(), dec("-5"))
	assert.True(t, errors.Is(err, apperrors.ErrInvalidConfiguration))

	cfg := baseConfig()
	cfg.MaxLevels = 0
	_, err = Levels(cfg, dec("100"))
	assert.True(t, errors.Is(err, apperrors.ErrInvalidConfiguration))
}

func TestNextLevel(t *testing.T) {
	cfg := baseConfig()

	level, err := NextLevel(cfg, dec("100"), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, level.Index)
	assert.Equal(t, "94", level.TriggerPrice.String())

	_, err = NextLevel(cfg, dec("100"), 3)
	assert.True(t, errors.Is(err, apperrors.ErrNoMoreLevels))

	cfg.StepPercent = dec("0.5")
	_, err = NextLevel(cfg, dec("100"), 1)
	assert.True(t, errors.Is(err, apperrors.ErrPriceNonPositive))
}

func TestNextLevel_PlannedQuantityUnknownForMultipleSizing(t *testing.T) {
	cfg := baseConfig()
	cfg.SizingMode = core.SizingCurrentMultiple
	cfg.Multiplier = dec("2")

	level, err := NextLevel(cfg, dec("100"), 0)
	require.NoError(t, err)
	assert.True(t, level.PlannedQuantity.IsZero())
}
