// Command gridcalc prints grid ladders and replays price histories through grid strategies
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"grid_calculator/pkg/logging"

	"github.com/urfave/cli/v2"
)

// Version information (set via build flags)
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "gridcalc"
	app.Version = version
	app.Usage = "grid trading level and position calculator"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "DEBUG, INFO, WARN or ERROR; overrides system.log_level",
		},
	}
	app.After = func(*cli.Context) error {
		// syncing stderr fails on some terminals
		_ = logging.Sync()
		return nil
	}
	app.Commands = []*cli.Command{
		calculateCommand,
		fromConfigCommand,
		listStrategiesCommand,
		simulateCommand,
		backtestCommand,
	}
	return app
}
