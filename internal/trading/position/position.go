// Package position applies fills to a grid run's position state
package position

import (
	"fmt"

	"grid_calculator/internal/core"
	"grid_calculator/pkg/tradingutils"

	"github.com/shopspring/decimal"
)

// ApplyFill returns the state after adding quantity at price.
// The average price is the exact total cost over total quantity, rounded half-to-even
// to prec.PriceDecimals once per update. The input state is not modified.
//
// A non-positive price or quantity is a programming error and panics.
func ApplyFill(state core.PositionState, price, quantity decimal.Decimal, prec core.Precision) core.PositionState {
	if !price.IsPositive() {
		panic(fmt.Sprintf("position: fill price must be positive, got %s", price))
	}
	if !quantity.IsPositive() {
		panic(fmt.Sprintf("position: fill quantity must be positive, got %s", quantity))
	}

	total := state.TotalQuantity.Add(quantity)
	cost := state.TotalCost.Add(price.Mul(quantity))

	return core.PositionState{
		AveragePrice:     tradingutils.WeightedAverage(cost, total, prec.PriceDecimals),
		TotalQuantity:    total,
		TotalCost:        cost,
		LastFillQuantity: quantity,
		FilledLevels:     state.FilledLevels + 1,
	}
}

// Tracker owns the position of a single run and keeps every intermediate state.
// It is not safe for concurrent use.
type Tracker struct {
	precision core.Precision
	state     core.PositionState
	history   []core.PositionState
}

// NewTracker creates a flat tracker
func NewTracker(prec core.Precision) *Tracker {
	return &Tracker{precision: prec}
}

// Apply records one fill and returns the new state
func (t *Tracker) Apply(price, quantity decimal.Decimal) core.PositionState {
	t.state = ApplyFill(t.state, price, quantity, t.precision)
	t.history = append(t.history, t.state)
	return t.state
}

// State returns the current position
func (t *Tracker) State() core.PositionState {
	return t.state
}

// History returns a copy of the states after each fill, oldest first
func (t *Tracker) History() []core.PositionState {
	out := make([]core.PositionState, len(t.history))
	copy(out, t.history)
	return out
}

// Reset returns the tracker to flat and clears its history
func (t *Tracker) Reset() {
	t.state = core.PositionState{}
	t.history = nil
}
