package chaos

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"coffeemaker/internal/platform/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestEngine() *Engine {
	return NewEngine(logger.Nop(), WithSampleInterval(5*time.Millisecond), WithPause(time.Millisecond))
}

func constant(name string, value float64, threshold Threshold) Metric {
	return Metric{
		Name:      name,
		Query:     func(context.Context) (float64, error) { return value, nil },
		Threshold: threshold,
	}
}

func TestThresholdHolds(t *testing.T) {
	cases := []struct {
		op    string
		value float64
		want  bool
	}{
		{">", 2, true}, {">", 1, false},
		{"<", 0, true}, {"<", 1, false},
		{">=", 1, true}, {"<=", 1, true},
		{"==", 1, true}, {"==", 2, false},
		{"!=", 1, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Threshold{Operator: tc.op, Value: 1}.Holds(tc.value), "%v %s 1", tc.value, tc.op)
	}
}

func TestRunExperimentPhases(t *testing.T) {
	e := newTestEngine()
	var injected, rolledBack atomic.Bool

	exp := Experiment{
		Name:        "phases",
		SteadyState: []Metric{constant("healthy", 1, Threshold{Operator: "==", Value: 1})},
		Probes:      []Metric{constant("errors", 0, Threshold{Operator: "==", Value: 0})},
		Method: []Action{{Target: "svc", Execute: func(context.Context) error {
			injected.Store(true)
			return nil
		}}},
		Rollback: []Action{{Target: "svc", Execute: func(context.Context) error {
			rolledBack.Store(true)
			return errors.New("rollback hiccup")
		}}},
		Validation: []Assertion{
			{Metric: "errors", Condition: func(v float64) bool { return v == 0 }, Message: "no errors"},
		},
		Duration: 30 * time.Millisecond,
	}

	result, err := e.RunExperiment(context.Background(), exp)
	require.NoError(t, err)
	assert.True(t, injected.Load())
	assert.True(t, rolledBack.Load())
	assert.True(t, result.SteadyStateValid)
	assert.True(t, result.HypothesisHeld)
	assert.NotEmpty(t, result.Observations["healthy"])
	assert.NotEmpty(t, result.Observations["errors"])
	require.Len(t, result.ErrorEvents, 1)
	assert.Equal(t, "svc", result.ErrorEvents[0].Component)
	assert.Len(t, e.Results(), 1)
}

func TestRunExperimentAbortsOnBadSteadyState(t *testing.T) {
	e := newTestEngine()
	var injected atomic.Bool

	exp := Experiment{
		Name:        "unhealthy",
		SteadyState: []Metric{constant("healthy", 0, Threshold{Operator: "==", Value: 1})},
		Method: []Action{{Execute: func(context.Context) error {
			injected.Store(true)
			return nil
		}}},
		Duration: time.Millisecond,
	}

	result, err := e.RunExperiment(context.Background(), exp)
	require.ErrorIs(t, err, ErrSteadyStateInvalid)
	assert.False(t, injected.Load())
	assert.False(t, result.SteadyStateValid)
	require.Len(t, result.Violations, 1)
	assert.Empty(t, e.Results())
}

func TestRunExperimentRecordsViolationsAndRecovery(t *testing.T) {
	e := newTestEngine()
	var calls atomic.Int64

	flaky := Metric{
		Name: "latency",
		Query: func(context.Context) (float64, error) {
			// Healthy for the steady state check, bad for two samples, then healthy.
			switch calls.Add(1) {
			case 2, 3:
				return 500, nil
			default:
				return 10, nil
			}
		},
		Threshold: Threshold{Operator: "<", Value: 100},
	}
	exp := Experiment{
		Name:        "flaky",
		SteadyState: []Metric{flaky},
		Validation: []Assertion{
			{Metric: "latency", Condition: func(v float64) bool { return v < 100 }, Message: "latency recovers"},
			{Metric: "missing", Condition: func(float64) bool { return true }, Message: "never sampled"},
		},
		Duration: 50 * time.Millisecond,
	}

	result, err := e.RunExperiment(context.Background(), exp)
	require.NoError(t, err)
	assert.Len(t, result.Violations, 2)
	require.NotNil(t, result.MTTR)
	assert.False(t, result.HypothesisHeld)
	assert.Equal(t, []string{"never sampled (no observations)"}, result.FailedAssertions)
}

func TestExecuteGameDay(t *testing.T) {
	e := newTestEngine()
	ok := Experiment{
		Name:        "ok",
		SteadyState: []Metric{constant("m", 1, Threshold{Operator: "==", Value: 1})},
		Duration:    10 * time.Millisecond,
	}
	bad := Experiment{
		Name:        "bad",
		SteadyState: []Metric{constant("m", 0, Threshold{Operator: "==", Value: 1})},
		Duration:    10 * time.Millisecond,
	}
	e.RegisterExperiment(ok)
	e.RegisterExperiment(bad)
	e.RegisterExperiment(ok)

	results, err := e.ExecuteGameDay(context.Background(), GameDay{Name: "test", Date: time.Now(), Scenarios: e.Experiments()})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestExecuteGameDayStopsOnCancel(t *testing.T) {
	e := NewEngine(logger.Nop(), WithSampleInterval(5*time.Millisecond), WithPause(time.Hour))
	exp := Experiment{
		Name:        "ok",
		SteadyState: []Metric{constant("m", 1, Threshold{Operator: "==", Value: 1})},
		Duration:    5 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	results, err := e.ExecuteGameDay(ctx, GameDay{Name: "cancelled", Scenarios: []Experiment{exp, exp}})
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, results, 1)
}
