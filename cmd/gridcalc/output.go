package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"grid_calculator/internal/config"
	"grid_calculator/internal/core"
	"grid_calculator/internal/trading/backtest"
	"grid_calculator/internal/trading/simulation"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
}

func printHeader(w io.Writer, cfg core.GridConfig) {
	fmt.Fprintln(w, "=== Grid Trading Calculator ===")
	fmt.Fprintf(w, "Initial Price: %s\n", cfg.InitialPrice)
	fmt.Fprintf(w, "Grid Type:     %s (%s)\n", cfg.GridType, cfg.Direction)
	fmt.Fprintf(w, "Position Mode: %s\n", cfg.SizingMode)
	fmt.Fprintf(w, "Base Size:     %s\n", cfg.BaseQuantity)
	if cfg.SizingMode.RequiresMultiplier() {
		fmt.Fprintf(w, "Multiplier:    %sx\n", cfg.Multiplier)
	}
	fmt.Fprintln(w)
}

func printProjection(w io.Writer, cfg core.GridConfig, fills []core.FillEvent) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "Grid\tLevel %\tPrice\tSize\tTotal\tAvg Price\t")
	for _, f := range fills {
		fmt.Fprintf(tw, "%d\t%s%%\t%s\t%s\t%s\t%s\t\n",
			f.LevelIndex+1,
			cfg.LevelDistance(f.LevelIndex).Mul(hundred),
			f.Price,
			f.Quantity,
			f.ResultingTotalQuantity,
			f.ResultingAveragePrice)
	}
	return tw.Flush()
}

func printSimulation(w io.Writer, cfg core.GridConfig, res simulation.Result) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "Tick\tLevel\tPrice\tSize\tTotal\tAvg Price\t")
	for _, f := range res.Fills {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\t\n",
			f.TickIndex,
			f.LevelIndex+1,
			f.Price,
			f.Quantity,
			f.ResultingTotalQuantity,
			f.ResultingAveragePrice)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nTicks: %d  Fills: %d/%d  Phase: %s\n", res.TicksProcessed, len(res.Fills), cfg.Depth(), res.Phase)
	fmt.Fprintf(w, "Position: %s @ %s (cost %s)\n", res.Final.TotalQuantity, res.Final.AveragePrice, res.Final.TotalCost)
	return nil
}

func printHistory(w io.Writer, history []core.PositionState) error {
	fmt.Fprintln(w, "\nPosition history:")
	tw := newTable(w)
	fmt.Fprintln(tw, "Fill\tTotal\tAvg Price\tCost\t")
	for _, st := range history {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t\n", st.FilledLevels, st.TotalQuantity, st.AveragePrice, st.TotalCost)
	}
	return tw.Flush()
}

func printStrategies(w io.Writer, cfg *config.Config) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tGRID TYPE\tDIRECTION\tMODE\tLEVELS\tMULTIPLIER")

	row := func(name string, grid core.GridConfig) {
		multiplier := "-"
		if grid.SizingMode.RequiresMultiplier() {
			multiplier = grid.Multiplier.String() + "x"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			name, grid.GridType, grid.Direction, grid.SizingMode, describeLevels(grid), multiplier)
	}

	mainGrid, err := cfg.GridConfig()
	if err != nil {
		return err
	}
	row("(main)", mainGrid)

	for _, name := range cfg.StrategyNames() {
		grid, err := cfg.StrategyGridConfig(name)
		if err != nil {
			return err
		}
		row(name, grid)
	}
	return tw.Flush()
}

func describeLevels(cfg core.GridConfig) string {
	if len(cfg.Offsets) == 0 {
		return fmt.Sprintf("%s%% x %d", cfg.StepPercent.Mul(hundred), cfg.MaxLevels)
	}
	parts := make([]string, 0, cfg.Depth())
	for i := 0; i < cfg.Depth(); i++ {
		parts = append(parts, cfg.Offsets[i].Mul(hundred).String())
	}
	return strings.Join(parts, ",")
}

func printBacktest(w io.Writer, results []backtest.JobResult) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "Strategy\tFills\tPhase\tQuantity\tAvg Price\tCost\tTime\tError\t")
	for _, r := range results {
		errText := "-"
		if r.Err != nil {
			errText = r.Err.Error()
			if i := strings.IndexByte(errText, '\n'); i >= 0 {
				errText = errText[:i]
			}
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			r.Name,
			len(r.Result.Fills),
			r.Result.Phase,
			r.Result.Final.TotalQuantity,
			r.Result.Final.AveragePrice,
			r.Result.Final.TotalCost,
			r.Duration.Round(time.Microsecond),
			errText)
	}
	return tw.Flush()
}
