// Package simulation drives a grid run across a feed of price ticks.
//
// A Simulator owns one position. It consumes ticks in arrival order, fills at most one
// level per tick and reports every fill as a core.FillEvent. Independent runs use
// independent Simulators; nothing is shared between them.
package simulation

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"grid_calculator/internal/core"
	"grid_calculator/internal/trading/grid"
	"grid_calculator/internal/trading/position"
	"grid_calculator/internal/trading/sizing"
	"grid_calculator/pkg/apperrors"
	"grid_calculator/pkg/telemetry"

	"github.com/shopspring/decimal"
)

// Phase is the state of a Simulator
type Phase int

const (
	// AwaitingNextLevel waits for a tick to cross the pending level
	AwaitingNextLevel Phase = iota
	// Filled holds between applying a fill and computing the next level
	Filled
	// Exhausted is terminal: no level is left to fill
	Exhausted
)

func (p Phase) String() string {
	switch p {
	case AwaitingNextLevel:
		return "awaiting_next_level"
	case Filled:
		return "filled"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Option configures a Simulator
type Option func(*Simulator)

// WithLogger sets the logger used for fills and state changes
func WithLogger(logger core.ILogger) Option {
	return func(s *Simulator) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records fills and ignored ticks on the given holder
func WithMetrics(m *telemetry.MetricsHolder) Option {
	return func(s *Simulator) {
		s.metrics = m
	}
}

// WithRunID labels the run in logs and the position gauge
func WithRunID(id string) Option {
	return func(s *Simulator) {
		s.runID = id
	}
}

// WithStrategy names the strategy in logs and metric attributes
func WithStrategy(name string) Option {
	return func(s *Simulator) {
		s.strategy = name
	}
}

// Simulator is the tick state machine of one grid run. It is not safe for concurrent use.
type Simulator struct {
	cfg core.GridConfig

	// ladder holds the precomputed levels of a Fixed grid
	ladder  []core.GridLevel
	pending core.GridLevel

	tracker *position.Tracker
	phase   Phase
	err     error
	ticks   int

	logger   core.ILogger
	metrics  *telemetry.MetricsHolder
	runID    string
	strategy string
}

// NewSimulator validates cfg and places the first level from the initial price.
// A configuration error is returned before any state exists.
func NewSimulator(cfg core.GridConfig, opts ...Option) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Simulator{
		cfg:     cfg,
		tracker: position.NewTracker(cfg.Rounding()),
		logger:  core.NopLogger{},
		phase:   AwaitingNextLevel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithFields(map[string]interface{}{
		"run_id":    s.runID,
		"strategy":  s.strategy,
		"grid_type": cfg.GridType.String(),
		"direction": cfg.Direction.String(),
	})

	if cfg.GridType == core.GridFixed {
		ladder, err := grid.Levels(cfg, cfg.InitialPrice)
		if err != nil {
			return nil, err
		}
		s.ladder = ladder
	}

	if err := s.advance(); err != nil {
		return nil, err
	}
	return s, nil
}

// Phase returns the current state
func (s *Simulator) Phase() Phase {
	return s.phase
}

// State returns the current position
func (s *Simulator) State() core.PositionState {
	return s.tracker.State()
}

// History returns the position after each fill, oldest first
func (s *Simulator) History() []core.PositionState {
	return s.tracker.History()
}

// Reset discards every fill and places the first level again, so the same
// configuration can be replayed over another feed. A sticky error is cleared.
func (s *Simulator) Reset() error {
	s.tracker.Reset()
	s.err = nil
	s.ticks = 0
	s.metrics.ClearPositionSize(s.runKey())
	return s.advance()
}

// Pending returns the level waiting to be crossed. ok is false once exhausted.
func (s *Simulator) Pending() (level core.GridLevel, ok bool) {
	if s.phase != AwaitingNextLevel {
		return core.GridLevel{}, false
	}
	return s.pending, true
}

// Err returns the error that aborted the run, if any
func (s *Simulator) Err() error {
	return s.err
}

// TicksProcessed counts ticks consumed so far, ignored ones included
func (s *Simulator) TicksProcessed() int {
	return s.ticks
}

// OnTick feeds one price observation.
//
// It returns the fill and true when the tick crossed the pending level. Only that one
// level fills, even if the price also lies beyond later levels. Ticks that are not
// positive are ignored. After the run is exhausted ticks are not consumed at all.
// A sizing failure aborts the run: the error is returned now and on every later call,
// and the fills already emitted stay valid.
func (s *Simulator) OnTick(price decimal.Decimal) (core.FillEvent, bool, error) {
	if s.err != nil {
		return core.FillEvent{}, false, s.err
	}
	if s.phase == Exhausted {
		return core.FillEvent{}, false, nil
	}

	tick := s.ticks
	s.ticks++

	if !price.IsPositive() {
		s.logger.Warn("Ignoring non-positive tick", "tick", tick, "price", price.String())
		s.metrics.RecordIgnoredTick(context.Background(), s.strategy)
		return core.FillEvent{}, false, nil
	}
	if !s.cfg.Direction.Crossed(price, s.pending.TriggerPrice) {
		return core.FillEvent{}, false, nil
	}

	level := s.pending
	qty, err := sizing.QuantityFor(s.cfg, s.tracker.State())
	if err != nil {
		s.err = fmt.Errorf("level %d at tick %d: %w", level.Index, tick, err)
		s.logger.Warn("Grid run aborted", "level", level.Index, "tick", tick, "error", err)
		return core.FillEvent{}, false, s.err
	}

	state := s.tracker.Apply(level.TriggerPrice, qty)
	s.phase = Filled

	event := core.FillEvent{
		LevelIndex:             level.Index,
		TickIndex:              tick,
		Price:                  level.TriggerPrice,
		Quantity:               qty,
		ResultingAveragePrice:  state.AveragePrice,
		ResultingTotalQuantity: state.TotalQuantity,
		ResultingTotalCost:     state.TotalCost,
	}

	s.logger.Debug("Level filled",
		"level", level.Index,
		"tick", tick,
		"price", level.TriggerPrice.String(),
		"quantity", qty.String(),
		"average", state.AveragePrice.String(),
		"total", state.TotalQuantity.String())
	qtyF, _ := qty.Float64()
	s.metrics.RecordFill(context.Background(), s.strategy, qtyF)
	totalF, _ := state.TotalQuantity.Float64()
	s.metrics.SetPositionSize(s.runKey(), totalF)

	if err := s.advance(); err != nil {
		s.err = err
		return event, true, err
	}
	return event, true, nil
}

// advance computes the next pending level, or moves to Exhausted when none is left
func (s *Simulator) advance() error {
	next, err := s.nextLevel()
	if err != nil {
		if !apperrors.IsTerminalLevel(err) {
			return err
		}
		s.phase = Exhausted
		s.logger.Info("Grid exhausted", "filled_levels", s.tracker.State().FilledLevels, "reason", err.Error())
		s.metrics.RecordExhausted(context.Background(), s.strategy)
		return nil
	}
	s.pending = next
	s.phase = AwaitingNextLevel
	return nil
}

func (s *Simulator) nextLevel() (core.GridLevel, error) {
	state := s.tracker.State()
	filled := state.FilledLevels
	if s.cfg.GridType == core.GridFixed {
		if filled >= len(s.ladder) {
			return core.GridLevel{}, fmt.Errorf("level %d of %d: %w", filled, len(s.ladder), apperrors.ErrNoMoreLevels)
		}
		return s.ladder[filled], nil
	}

	anchor := s.cfg.InitialPrice
	if !state.IsFlat() {
		anchor = state.AveragePrice
	}
	return grid.NextLevel(s.cfg, anchor, filled)
}

func (s *Simulator) runKey() string {
	if s.runID != "" {
		return s.runID
	}
	return s.strategy
}

// Fills returns the lazy sequence of fills produced by feeding ticks in order.
// The sequence consumes ticks and mutates the Simulator, so it can be ranged only once.
// Breaking out of the loop stops the run. An abort is yielded as a final error.
func (s *Simulator) Fills(ticks iter.Seq[decimal.Decimal]) iter.Seq2[core.FillEvent, error] {
	return func(yield func(core.FillEvent, error) bool) {
		if s.err != nil {
			yield(core.FillEvent{}, s.err)
			return
		}
		if s.phase == Exhausted {
			return
		}
		for price := range ticks {
			event, filled, err := s.OnTick(price)
			if filled && !yield(event, nil) {
				return
			}
			if err != nil {
				yield(core.FillEvent{}, err)
				return
			}
			if s.phase == Exhausted {
				return
			}
		}
	}
}

// Result is the outcome of a drained run
type Result struct {
	Fills          []core.FillEvent
	Final          core.PositionState
	History        []core.PositionState
	Phase          Phase
	TicksProcessed int
}

// Simulate runs cfg over ticks and collects every fill.
// On an abort the partial Result is returned along with the error.
func Simulate(cfg core.GridConfig, ticks []decimal.Decimal, opts ...Option) (Result, error) {
	s, err := NewSimulator(cfg, opts...)
	if err != nil {
		return Result{}, err
	}
	return s.Run(slices.Values(ticks))
}

// Run drains ticks and collects every fill
func (s *Simulator) Run(ticks iter.Seq[decimal.Decimal]) (Result, error) {
	var (
		fills  []core.FillEvent
		runErr error
	)
	for event, err := range s.Fills(ticks) {
		if err != nil {
			runErr = err
			break
		}
		fills = append(fills, event)
	}
	return Result{
		Fills:          fills,
		Final:          s.tracker.State(),
		History:        s.tracker.History(),
		Phase:          s.phase,
		TicksProcessed: s.ticks,
	}, runErr
}

// Project assumes every level fills in order at its trigger price and returns the
// resulting fills. Average grids are projected from the average after each fill.
func Project(cfg core.GridConfig, opts ...Option) ([]core.FillEvent, error) {
	s, err := NewSimulator(cfg, opts...)
	if err != nil {
		return nil, err
	}

	var fills []core.FillEvent
	for {
		level, ok := s.Pending()
		if !ok {
			return fills, nil
		}
		event, filled, err := s.OnTick(level.TriggerPrice)
		if filled {
			fills = append(fills, event)
		}
		if err != nil {
			return fills, err
		}
	}
}
