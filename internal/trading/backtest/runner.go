// Package backtest runs many grid configurations against one price history in parallel
package backtest

import (
	"context"
	"iter"
	"sync"
	"time"

	"grid_calculator/internal/core"
	"grid_calculator/internal/trading/simulation"
	"grid_calculator/pkg/concurrency"
	"grid_calculator/pkg/telemetry"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// cancelCheckInterval is how many ticks a job consumes between context checks
const cancelCheckInterval = 1024

// Job is one named configuration to evaluate
type Job struct {
	Name   string
	Config core.GridConfig
}

// JobResult is the outcome of one Job. Err is set when the job was rejected,
// aborted or cancelled; Result keeps whatever was filled before that.
type JobResult struct {
	Name     string
	RunID    string
	Result   simulation.Result
	Err      error
	Duration time.Duration
}

// RunnerConfig sizes the worker pool. With NonBlocking, jobs that do not fit in
// the queue fail with a pool-full error instead of waiting.
type RunnerConfig struct {
	Workers     int
	Capacity    int
	NonBlocking bool
}

// Runner evaluates jobs on a worker pool. Every job gets its own simulator,
// so the only shared input is the read-only tick slice.
type Runner struct {
	pool    *concurrency.WorkerPool
	logger  core.ILogger
	metrics *telemetry.MetricsHolder
	tracer  trace.Tracer
}

// NewRunner creates a runner with its own pool. Call Close when done.
func NewRunner(cfg RunnerConfig, logger core.ILogger, metrics *telemetry.MetricsHolder) *Runner {
	if logger == nil {
		logger = core.NopLogger{}
	}
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "backtest",
		MaxWorkers:  cfg.Workers,
		MaxCapacity: cfg.Capacity,
		NonBlocking: cfg.NonBlocking,
	}, logger)

	return &Runner{
		pool:    pool,
		logger:  logger.WithField("component", "backtest"),
		metrics: metrics,
		tracer:  telemetry.GetTracer("grid-backtest"),
	}
}

// Workers returns the effective worker limit of the pool
func (r *Runner) Workers() int {
	return r.pool.MaxWorkers()
}

// Close stops the worker pool
func (r *Runner) Close() {
	r.pool.Stop()
}

// Run evaluates every job against ticks and returns one result per job in
// submission order. A failing job does not affect the others. When ctx is
// cancelled, jobs that have not started report ctx.Err() and running jobs stop
// early; Run then also returns ctx.Err().
func (r *Runner) Run(ctx context.Context, jobs []Job, ticks []decimal.Decimal) ([]JobResult, error) {
	results := make([]JobResult, len(jobs))
	var wg sync.WaitGroup

	for i, job := range jobs {
		results[i] = JobResult{Name: job.Name, RunID: uuid.NewString()}
		wg.Add(1)
		task := func() {
			defer wg.Done()
			r.runJob(ctx, job, ticks, &results[i])
		}
		if err := r.pool.Submit(task); err != nil {
			wg.Done()
			results[i].Err = err
		}
	}
	wg.Wait()

	r.logger.WithFields(r.pool.Stats()).Info("Backtest finished", "jobs", len(jobs), "ticks", len(ticks))
	return results, ctx.Err()
}

func (r *Runner) runJob(ctx context.Context, job Job, ticks []decimal.Decimal, out *JobResult) {
	if err := ctx.Err(); err != nil {
		out.Err = err
		return
	}

	ctx, span := r.tracer.Start(ctx, "BacktestJob",
		trace.WithAttributes(
			attribute.String("strategy", job.Name),
			attribute.String("run_id", out.RunID),
			attribute.String("grid_type", job.Config.GridType.String()),
			attribute.Int("ticks", len(ticks)),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		out.Duration = time.Since(start)
		r.metrics.RecordBacktestDuration(ctx, job.Name, float64(out.Duration.Microseconds())/1000, out.Err != nil)
		r.metrics.ClearPositionSize(out.RunID)

		if out.Err != nil {
			span.RecordError(out.Err)
			span.SetStatus(codes.Error, out.Err.Error())
			r.logger.Warn("Backtest job failed", "strategy", job.Name, "run_id", out.RunID, "error", out.Err)
			return
		}
		span.SetAttributes(
			attribute.Int("fills", len(out.Result.Fills)),
			attribute.String("phase", out.Result.Phase.String()),
		)
	}()

	sim, err := simulation.NewSimulator(job.Config,
		simulation.WithLogger(r.logger),
		simulation.WithMetrics(r.metrics),
		simulation.WithRunID(out.RunID),
		simulation.WithStrategy(job.Name),
	)
	if err != nil {
		out.Err = err
		return
	}

	out.Result, out.Err = sim.Run(untilDone(ctx, ticks))
	if out.Err == nil {
		out.Err = ctx.Err()
	}
}

// untilDone yields ticks in order and stops once ctx is done
func untilDone(ctx context.Context, ticks []decimal.Decimal) iter.Seq[decimal.Decimal] {
	return func(yield func(decimal.Decimal) bool) {
		for i, t := range ticks {
			if i%cancelCheckInterval == 0 && ctx.Err() != nil {
				return
			}
			if !yield(t) {
				return
			}
		}
	}
}
