package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"grid_calculator/internal/config"
	"grid_calculator/internal/core"
	"grid_calculator/internal/infrastructure/metrics"
	"grid_calculator/internal/trading/backtest"
	"grid_calculator/internal/trading/simulation"
	"grid_calculator/pkg/logging"
	"grid_calculator/pkg/telemetry"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var hundred = decimal.NewFromInt(100)

var configFlag = &cli.StringFlag{
	Name:     "config",
	Aliases:  []string{"c"},
	Usage:    "path to the YAML configuration file",
	Required: true,
}

var strategyFlag = &cli.StringFlag{
	Name:    "strategy",
	Aliases: []string{"s"},
	Usage:   "named strategy to use instead of the main configuration",
}

var calculateCommand = &cli.Command{
	Name:  "calculate",
	Usage: "print the grid ladder and position build-up from flags",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "price", Aliases: []string{"p"}, Usage: "initial price", Required: true},
		&cli.StringFlag{Name: "grid-type", Aliases: []string{"g"}, Value: "fixed", Usage: "fixed or average"},
		&cli.StringFlag{Name: "levels", Aliases: []string{"l"}, Usage: "comma separated level percentages, e.g. 1,2,3,5"},
		&cli.StringFlag{Name: "step", Usage: "uniform step in percent, used when --levels is not given"},
		&cli.IntFlag{Name: "max-levels", Usage: "grid depth; required with --step, defaults to the number of --levels"},
		&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "fixed", Usage: "fixed, current-multiple or increment-multiple"},
		&cli.StringFlag{Name: "size", Value: "100", Usage: "base position size"},
		&cli.StringFlag{Name: "multiplier", Aliases: []string{"x"}, Value: "1", Usage: "multiplier for the multiple modes"},
		&cli.StringFlag{Name: "direction", Aliases: []string{"d"}, Value: "long", Usage: "long or short"},
		&cli.IntFlag{Name: "price-decimals", Value: core.DefaultPriceDecimals, Usage: "fractional digits kept for prices"},
		&cli.IntFlag{Name: "quantity-decimals", Value: core.DefaultQuantityDecimals, Usage: "fractional digits kept for quantities"},
	},
	Action: calculate,
}

var fromConfigCommand = &cli.Command{
	Name:   "from-config",
	Usage:  "print the grid ladder of a configuration file",
	Flags:  []cli.Flag{configFlag, strategyFlag},
	Action: fromConfig,
}

var listStrategiesCommand = &cli.Command{
	Name:   "list-strategies",
	Usage:  "list the main configuration and every named strategy",
	Flags:  []cli.Flag{configFlag},
	Action: listStrategies,
}

var simulateCommand = &cli.Command{
	Name:  "simulate",
	Usage: "replay price ticks through one strategy",
	Flags: []cli.Flag{
		configFlag,
		strategyFlag,
		&cli.StringFlag{Name: "ticks", Aliases: []string{"t"}, Usage: "file with one or more prices per line"},
		&cli.StringFlag{Name: "tick-list", Usage: "comma separated prices"},
		&cli.BoolFlag{Name: "history", Usage: "also print the position after every fill"},
	},
	Action: simulate,
}

var backtestCommand = &cli.Command{
	Name:  "backtest",
	Usage: "replay price ticks through every named strategy in parallel",
	Flags: []cli.Flag{
		configFlag,
		&cli.StringFlag{Name: "ticks", Aliases: []string{"t"}, Usage: "file with one or more prices per line", Required: true},
		&cli.StringFlag{Name: "metrics-addr", Usage: "serve Prometheus metrics on this address while running"},
		&cli.IntFlag{Name: "workers", Usage: "worker count (overrides backtest.workers)"},
		&cli.BoolFlag{Name: "non-blocking", Usage: "reject jobs that do not fit in the queue (overrides backtest.non_blocking)"},
		&cli.BoolFlag{Name: "pretty", Usage: "indent exported spans and log records (overrides telemetry.pretty_print)"},
	},
	Action: runBacktest,
}

func calculate(c *cli.Context) error {
	price, err := decimalFlag(c, "price")
	if err != nil {
		return err
	}
	size, err := decimalFlag(c, "size")
	if err != nil {
		return err
	}
	multiplier, err := decimalFlag(c, "multiplier")
	if err != nil {
		return err
	}
	gridType, err := core.ParseGridType(c.String("grid-type"))
	if err != nil {
		return err
	}
	mode, err := core.ParseSizingMode(c.String("mode"))
	if err != nil {
		return err
	}
	direction, err := core.ParseDirection(c.String("direction"))
	if err != nil {
		return err
	}

	cfg := core.GridConfig{
		Direction:    direction,
		GridType:     gridType,
		SizingMode:   mode,
		BaseQuantity: size,
		Multiplier:   multiplier,
		MaxLevels:    c.Int("max-levels"),
		InitialPrice: price,
		Precision: &core.Precision{
			PriceDecimals:    int32(c.Int("price-decimals")),
			QuantityDecimals: int32(c.Int("quantity-decimals")),
		},
	}

	switch {
	case c.String("levels") != "":
		percents, err := parseDecimalList(c.String("levels"))
		if err != nil {
			return fmt.Errorf("invalid --levels: %w", err)
		}
		if len(percents) == 0 {
			return errors.New("no valid grid levels provided")
		}
		for _, p := range percents {
			cfg.Offsets = append(cfg.Offsets, p.Div(hundred))
		}
		if cfg.MaxLevels == 0 {
			cfg.MaxLevels = len(cfg.Offsets)
		}
	case c.String("step") != "":
		step, err := decimalFlag(c, "step")
		if err != nil {
			return err
		}
		cfg.StepPercent = step.Div(hundred)
		if cfg.MaxLevels == 0 {
			return errors.New("--max-levels is required with --step")
		}
	default:
		return errors.New("either --levels or --step is required")
	}

	logger, err := newLogger(c, "")
	if err != nil {
		return err
	}
	fills, err := simulation.Project(cfg, simulation.WithLogger(logger))
	if err != nil {
		return err
	}
	printHeader(c.App.Writer, cfg)
	return printProjection(c.App.Writer, cfg, fills)
}

func fromConfig(c *cli.Context) error {
	cfg, grid, err := loadGridConfig(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(c, cfg.System.LogLevel)
	if err != nil {
		return err
	}
	fills, err := simulation.Project(grid, simulation.WithLogger(logger), simulation.WithStrategy(c.String("strategy")))
	if err != nil {
		return err
	}
	printHeader(c.App.Writer, grid)
	return printProjection(c.App.Writer, grid, fills)
}

func listStrategies(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}
	return printStrategies(c.App.Writer, cfg)
}

func simulate(c *cli.Context) error {
	cfg, grid, err := loadGridConfig(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(c, cfg.System.LogLevel)
	if err != nil {
		return err
	}

	var ticks []decimal.Decimal
	switch {
	case c.String("ticks") != "":
		ticks, err = loadTicks(c.String("ticks"))
	case c.String("tick-list") != "":
		ticks, err = parseDecimalList(c.String("tick-list"))
	default:
		err = errors.New("either --ticks or --tick-list is required")
	}
	if err != nil {
		return err
	}

	res, runErr := simulation.Simulate(grid, ticks,
		simulation.WithLogger(logger),
		simulation.WithStrategy(c.String("strategy")))
	if runErr != nil {
		logging.Warn("Simulation aborted", "fills", len(res.Fills), "error", runErr)
	}
	if err := printSimulation(c.App.Writer, grid, res); err != nil {
		return err
	}
	if c.Bool("history") {
		if err := printHistory(c.App.Writer, res.History); err != nil {
			return err
		}
	}
	return runErr
}

func runBacktest(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}
	logger, err := newLogger(c, cfg.System.LogLevel)
	if err != nil {
		return err
	}
	ticks, err := loadTicks(c.String("ticks"))
	if err != nil {
		return err
	}

	jobs, err := backtestJobs(cfg)
	if err != nil {
		return err
	}

	addr := c.String("metrics-addr")
	if addr == "" && cfg.Telemetry.EnableMetrics {
		addr = cfg.Telemetry.MetricsAddr
	}

	var holder *telemetry.MetricsHolder
	switch {
	case cfg.Telemetry.EnableTraces:
		tel, err := telemetry.Setup("gridcalc", telemetry.Options{
			Traces:      true,
			PrettyPrint: cfg.Telemetry.PrettyPrint || c.Bool("pretty"),
			Writer:      c.App.ErrWriter,
		})
		if err != nil {
			return err
		}
		defer func() { _ = tel.Shutdown(context.Background()) }()
		holder = telemetry.GetGlobalMetrics()
	case addr != "":
		provider, err := telemetry.InitMetrics()
		if err != nil {
			return err
		}
		defer func() { _ = provider.Shutdown(context.Background()) }()
		holder = telemetry.GetGlobalMetrics()
	}

	workers := cfg.Backtest.Workers
	if c.Int("workers") > 0 {
		workers = c.Int("workers")
	}
	runner := backtest.NewRunner(backtest.RunnerConfig{
		Workers:     workers,
		Capacity:    cfg.Backtest.Capacity,
		NonBlocking: cfg.Backtest.NonBlocking || c.Bool("non-blocking"),
	}, logger, holder)
	defer runner.Close()
	logging.Info("Starting backtest", "jobs", len(jobs), "ticks", len(ticks), "workers", runner.Workers())

	g, gctx := errgroup.WithContext(c.Context)
	runCtx, finished := context.WithCancel(gctx)
	defer finished()

	if addr != "" {
		logging.Debug("Serving metrics", "addr", addr)
		server := metrics.NewServer(addr, logger)
		g.Go(func() error {
			return server.Serve(runCtx)
		})
	}

	var results []backtest.JobResult
	g.Go(func() error {
		defer finished()
		var err error
		results, err = runner.Run(gctx, jobs, ticks)
		return err
	})

	if err := g.Wait(); err != nil {
		logging.Error("Backtest failed", "error", err)
		return err
	}
	return printBacktest(c.App.Writer, results)
}

// backtestJobs runs every named strategy, or the main configuration when there are none
func backtestJobs(cfg *config.Config) ([]backtest.Job, error) {
	names := cfg.StrategyNames()
	if len(names) == 0 {
		grid, err := cfg.GridConfig()
		if err != nil {
			return nil, err
		}
		return []backtest.Job{{Name: "main", Config: grid}}, nil
	}

	jobs := make([]backtest.Job, 0, len(names))
	for _, name := range names {
		grid, err := cfg.StrategyGridConfig(name)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, backtest.Job{Name: name, Config: grid})
	}
	return jobs, nil
}

func loadGridConfig(c *cli.Context) (*config.Config, core.GridConfig, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, core.GridConfig{}, err
	}
	if name := c.String("strategy"); name != "" {
		grid, err := cfg.StrategyGridConfig(name)
		return cfg, grid, err
	}
	grid, err := cfg.GridConfig()
	return cfg, grid, err
}

func newLogger(c *cli.Context, configLevel string) (core.ILogger, error) {
	level := c.String("log-level")
	if level == "" {
		level = configLevel
	}
	if level == "" {
		level = "WARN"
	}
	logger, err := logging.NewZapLoggerTo(level, c.App.ErrWriter)
	if err != nil {
		return nil, err
	}
	logging.SetGlobalLogger(logger)
	return logger, nil
}

func decimalFlag(c *cli.Context, name string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(c.String(name)))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid --%s %q: %w", name, c.String(name), err)
	}
	return v, nil
}
