package backtest

import (
	"context"
	"errors"
	"testing"

	"grid_calculator/internal/core"
	"grid_calculator/internal/trading/simulation"
	"grid_calculator/pkg/apperrors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func wave() []decimal.Decimal {
	var out []decimal.Decimal
	for _, p := range []int64{100, 99, 98, 97, 96, 95, 96, 97, 95, 93, 92, 90, 91, 94, 89, 88} {
		out = append(out, decimal.NewFromInt(p))
	}
	return out
}

func jobs() []Job {
	base := core.GridConfig{
		Direction:    core.Long,
		GridType:     core.GridFixed,
		SizingMode:   core.SizingFixed,
		StepPercent:  dec("0.02"),
		BaseQuantity: dec("1"),
		MaxLevels:    5,
		InitialPrice: dec("100"),
	}

	average := base
	average.GridType = core.GridAverage

	doubling := base
	doubling.SizingMode = core.SizingCurrentMultiple
	doubling.Multiplier = dec("2")

	wide := base
	wide.StepPercent = dec("0.05")
	wide.SizingMode = core.SizingIncrementMultiple
	wide.Multiplier = dec("1.5")

	return []Job{
		{Name: "fixed", Config: base},
		{Name: "average", Config: average},
		{Name: "doubling", Config: doubling},
		{Name: "wide", Config: wide},
	}
}

func TestRunner_ResultsMatchSequentialRuns(t *testing.T) {
	runner := NewRunner(RunnerConfig{Workers: 4, Capacity: 8}, nil, nil)
	defer runner.Close()

	ticks := wave()
	results, err := runner.Run(context.Background(), jobs(), ticks)
	require.NoError(t, err)
	require.Len(t, results, len(jobs()))

	seen := map[string]bool{}
	for i, job := range jobs() {
		res := results[i]
		assert.Equal(t, job.Name, res.Name)
		require.NoError(t, res.Err)

		want, err := simulation.Simulate(job.Config, ticks)
		require.NoError(t, err)
		assert.Equal(t, want, res.Result, job.Name)

		assert.NotEmpty(t, res.RunID)
		assert.False(t, seen[res.RunID], "run ids must be unique")
		seen[res.RunID] = true
	}
}

func TestRunner_IndependentOfWorkerCount(t *testing.T) {
	ticks := wave()

	single := NewRunner(RunnerConfig{Workers: 1}, nil, nil)
	defer single.Close()
	many := NewRunner(RunnerConfig{Workers: 8}, nil, nil)
	defer many.Close()

	a, err := single.Run(context.Background(), jobs(), ticks)
	require.NoError(t, err)
	b, err := many.Run(context.Background(), jobs(), ticks)
	require.NoError(t, err)

	for i := range a {
		assert.Equal(t, a[i].Result, b[i].Result, a[i].Name)
	}
}

func TestRunner_JobErrorDoesNotStopOthers(t *testing.T) {
	js := jobs()
	js[1].Config.BaseQuantity = decimal.Zero

	runner := NewRunner(RunnerConfig{Workers: 2}, nil, nil)
	defer runner.Close()

	results, err := runner.Run(context.Background(), js, wave())
	require.NoError(t, err)

	assert.True(t, errors.Is(results[1].Err, apperrors.ErrInvalidConfiguration))
	for _, i := range []int{0, 2, 3} {
		assert.NoError(t, results[i].Err, results[i].Name)
		assert.NotEmpty(t, results[i].Result.Fills, results[i].Name)
	}
}

func TestRunner_CancelledContext(t *testing.T) {
	runner := NewRunner(RunnerConfig{Workers: 2}, nil, nil)
	defer runner.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := runner.Run(ctx, jobs(), wave())
	assert.ErrorIs(t, err, context.Canceled)
	for _, res := range results {
		assert.ErrorIs(t, res.Err, context.Canceled)
		assert.Empty(t, res.Result.Fills)
	}
}

func TestRunner_RecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	defer otel.SetTracerProvider(prev)

	js := jobs()
	js[0].Config.MaxLevels = 0

	runner := NewRunner(RunnerConfig{Workers: 2}, nil, nil)
	defer runner.Close()

	_, err := runner.Run(context.Background(), js, wave())
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, len(js))

	failed := 0
	for _, s := range spans {
		assert.Equal(t, "BacktestJob", s.Name())
		if s.Status().Code == codes.Error {
			failed++
		}
	}
	assert.Equal(t, 1, failed)
}

func TestRunner_NonBlockingWithRoomRunsEveryJob(t *testing.T) {
	runner := NewRunner(RunnerConfig{Workers: 2, Capacity: 64, NonBlocking: true}, nil, nil)
	defer runner.Close()
	assert.Equal(t, 2, runner.Workers())

	results, err := runner.Run(context.Background(), jobs(), wave())
	require.NoError(t, err)
	for _, res := range results {
		require.NoError(t, res.Err, res.Name)
		assert.Len(t, res.Result.History, len(res.Result.Fills))
	}
}
