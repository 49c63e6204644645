package apperrors

import (
	"errors"
	"fmt"
)

// Standardized grid engine errors
var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrDegenerateQuantity   = errors.New("degenerate quantity")
	ErrPriceNonPositive     = errors.New("price is not positive")
	ErrNoMoreLevels         = errors.New("no more grid levels")
)

// ValidationError represents a configuration validation error for a single field
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidConfiguration on any ValidationError
func (e ValidationError) Unwrap() error {
	return ErrInvalidConfiguration
}

// IsTerminalLevel reports whether err means the grid has run out of valid levels.
// Both conditions are expected and end generation without failing the run.
func IsTerminalLevel(err error) bool {
	return errors.Is(err, ErrNoMoreLevels) || errors.Is(err, ErrPriceNonPositive)
}
