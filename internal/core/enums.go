package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Direction is the side a grid accumulates on
type Direction int

const (
	// Long grids buy on the way down
	Long Direction = iota
	// Short grids sell on the way up
	Short
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Valid reports whether d is one of the declared directions
func (d Direction) Valid() bool {
	return d == Long || d == Short
}

// LevelOffset turns an unsigned fractional distance into the signed offset for this side.
// Long levels sit below the anchor, Short levels above it.
func (d Direction) LevelOffset(distance decimal.Decimal) decimal.Decimal {
	if d == Short {
		return distance
	}
	return distance.Neg()
}

// Crossed reports whether an observed price reaches a trigger price.
// A Long level triggers when price <= trigger, a Short level when price >= trigger.
func (d Direction) Crossed(price, trigger decimal.Decimal) bool {
	if d == Short {
		return price.GreaterThanOrEqual(trigger)
	}
	return price.LessThanOrEqual(trigger)
}

// Beyond reports whether price lies strictly further along the grid than ref:
// below it for Long, above it for Short.
func (d Direction) Beyond(price, ref decimal.Decimal) bool {
	if d == Short {
		return price.GreaterThan(ref)
	}
	return price.LessThan(ref)
}

// ParseDirection parses "long" or "short". An empty string means long.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long", "":
		return Long, nil
	case "short":
		return Short, nil
	default:
		return Long, fmt.Errorf("invalid direction: %s", s)
	}
}

// GridType selects how trigger prices are anchored
type GridType int

const (
	// GridFixed anchors every level to the initial price
	GridFixed GridType = iota
	// GridAverage anchors the next level to the running average price
	GridAverage
)

func (g GridType) String() string {
	switch g {
	case GridFixed:
		return "fixed"
	case GridAverage:
		return "average"
	default:
		return fmt.Sprintf("GridType(%d)", int(g))
	}
}

// Valid reports whether g is one of the declared grid types
func (g GridType) Valid() bool {
	return g == GridFixed || g == GridAverage
}

// ParseGridType parses "fixed" or "average"
func ParseGridType(s string) (GridType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fixed":
		return GridFixed, nil
	case "average":
		return GridAverage, nil
	default:
		return GridFixed, fmt.Errorf("invalid grid type: %s", s)
	}
}

// SizingMode selects the rule for the quantity traded at a triggered level
type SizingMode int

const (
	// SizingFixed always trades the base quantity
	SizingFixed SizingMode = iota
	// SizingCurrentMultiple trades a multiple of the current total position
	SizingCurrentMultiple
	// SizingIncrementMultiple trades a multiple of the previous fill
	SizingIncrementMultiple
)

func (m SizingMode) String() string {
	switch m {
	case SizingFixed:
		return "fixed"
	case SizingCurrentMultiple:
		return "current-multiple"
	case SizingIncrementMultiple:
		return "increment-multiple"
	default:
		return fmt.Sprintf("SizingMode(%d)", int(m))
	}
}

// Valid reports whether m is one of the declared sizing modes
func (m SizingMode) Valid() bool {
	return m == SizingFixed || m == SizingCurrentMultiple || m == SizingIncrementMultiple
}

// RequiresMultiplier reports whether the mode scales a previous quantity
func (m SizingMode) RequiresMultiplier() bool {
	return m == SizingCurrentMultiple || m == SizingIncrementMultiple
}

// ParseSizingMode parses "fixed", "current-multiple" or "increment-multiple".
// Underscores are accepted in place of dashes.
func ParseSizingMode(s string) (SizingMode, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-") {
	case "fixed":
		return SizingFixed, nil
	case "current-multiple":
		return SizingCurrentMultiple, nil
	case "increment-multiple":
		return SizingIncrementMultiple, nil
	default:
		return SizingFixed, fmt.Errorf("invalid position mode: %s", s)
	}
}
