package chaos

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraloans/internal/logger"
)

func constant(v float64) func(context.Context) (float64, error) {
	return func(context.Context) (float64, error) { return v, nil }
}

func TestThreshold_Holds(t *testing.T) {
	tests := []struct {
		op    string
		value float64
		want  bool
	}{
		{">", 2, true},
		{">", 1, false},
		{"<", 0, true},
		{">=", 1, true},
		{"<=", 1, true},
		{"<=", 2, false},
		{"==", 1, true},
		{"!=", 1, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Threshold{Operator: tt.op, Value: 1}.Holds(tt.value), "%v %s 1", tt.value, tt.op)
	}
}

func TestRun_HypothesisHeld(t *testing.T) {
	engine := NewEngine(logger.Discard())

	var injected, rolledBack atomic.Bool
	exp := Experiment{
		Name:        "steady",
		SteadyState: []Metric{{Name: "errors", Query: constant(0), Threshold: Threshold{Operator: "==", Value: 0}}},
		Method: []Action{{Target: "x", Execute: func(context.Context) error {
			injected.Store(true)
			return nil
		}}},
		Rollback: []Action{{Target: "x", Execute: func(context.Context) error {
			rolledBack.Store(true)
			return nil
		}}},
		Validation: []Assertion{{Metric: "errors", Condition: func(v float64) bool { return v == 0 }, Message: "no errors"}},
		Duration:   30 * time.Millisecond,
		Interval:   10 * time.Millisecond,
	}

	result, err := engine.Run(context.Background(), exp)
	require.NoError(t, err)

	assert.True(t, result.SteadyStateValid)
	assert.True(t, result.HypothesisHeld)
	assert.Empty(t, result.FailedAssertions)
	assert.NotEmpty(t, result.Observations["errors"])
	assert.True(t, injected.Load())
	assert.True(t, rolledBack.Load())
	assert.Len(t, engine.Results(), 1)
}

func TestRun_FinalSampleWithoutTicks(t *testing.T) {
	engine := NewEngine(logger.Discard())

	exp := Experiment{
		Name:        "short",
		SteadyState: []Metric{{Name: "m", Query: constant(1), Threshold: Threshold{Operator: "==", Value: 1}}},
		Validation:  []Assertion{{Metric: "m", Condition: func(v float64) bool { return v == 1 }, Message: "m is one"}},
		Duration:    5 * time.Millisecond,
		Interval:    time.Hour,
	}

	result, err := engine.Run(context.Background(), exp)
	require.NoError(t, err)
	assert.Len(t, result.Observations["m"], 1)
	assert.True(t, result.HypothesisHeld)
}

func TestRun_ViolationAndRecovery(t *testing.T) {
	engine := NewEngine(logger.Discard())

	var calls atomic.Int64
	// Healthy for the steady-state check, broken for two samples, then healthy.
	query := func(context.Context) (float64, error) {
		switch calls.Add(1) {
		case 2, 3:
			return 5, nil
		default:
			return 0, nil
		}
	}

	exp := Experiment{
		Name:        "flaky",
		SteadyState: []Metric{{Name: "lag", Query: query, Threshold: Threshold{Operator: "<", Value: 1}}},
		Validation:  []Assertion{{Metric: "lag", Condition: func(v float64) bool { return v < 1 }, Message: "lag recovers"}},
		Duration:    60 * time.Millisecond,
		Interval:    10 * time.Millisecond,
	}

	result, err := engine.Run(context.Background(), exp)
	require.NoError(t, err)

	assert.Len(t, result.Violations, 2)
	require.NotNil(t, result.MTTR)
	assert.True(t, result.HypothesisHeld)
}

func TestRun_FailedAssertion(t *testing.T) {
	engine := NewEngine(logger.Discard())

	exp := Experiment{
		Name:        "double",
		SteadyState: []Metric{{Name: "successes", Query: constant(2), Threshold: Threshold{Operator: ">=", Value: 0}}},
		Method: []Action{{Target: "loans", Execute: func(context.Context) error {
			return errors.New("2 of 5 concurrent loans succeeded")
		}}},
		Validation: []Assertion{
			{Metric: "successes", Condition: func(v float64) bool { return v == 1 }, Message: "exactly one"},
			{Metric: "missing", Condition: func(float64) bool { return true }, Message: "never sampled"},
		},
		Duration: 5 * time.Millisecond,
	}

	result, err := engine.Run(context.Background(), exp)
	require.NoError(t, err)

	assert.False(t, result.HypothesisHeld)
	assert.Equal(t, []string{"exactly one", "never sampled (no observations of missing)"}, result.FailedAssertions)
	require.Len(t, result.ErrorEvents, 1)
	assert.Equal(t, "loans", result.ErrorEvents[0].Component)
}

func TestRun_SteadyStateInvalid(t *testing.T) {
	engine := NewEngine(logger.Discard())

	var injected atomic.Bool
	exp := Experiment{
		Name: "broken-before-start",
		SteadyState: []Metric{
			{Name: "mismatches", Query: constant(3), Threshold: Threshold{Operator: "==", Value: 0}},
			{Name: "unreachable", Query: func(context.Context) (float64, error) {
				return 0, errors.New("connection refused")
			}, Threshold: Threshold{Operator: "==", Value: 0}},
		},
		Method: []Action{{Execute: func(context.Context) error {
			injected.Store(true)
			return nil
		}}},
		Duration: time.Millisecond,
	}

	result, err := engine.Run(context.Background(), exp)
	require.ErrorIs(t, err, ErrSteadyStateInvalid)
	assert.False(t, result.SteadyStateValid)
	assert.Len(t, result.Violations, 2)
	assert.Equal(t, float64(-1), result.Violations[1].Actual)
	assert.False(t, injected.Load())
}

func TestExecuteGameDay(t *testing.T) {
	engine := NewEngine(logger.Discard())

	ok := Experiment{
		Name:        "ok",
		SteadyState: []Metric{{Name: "m", Query: constant(0), Threshold: Threshold{Operator: "==", Value: 0}}},
		Validation:  []Assertion{{Metric: "m", Condition: func(v float64) bool { return v == 0 }, Message: "zero"}},
		Duration:    time.Millisecond,
	}
	bad := ok
	bad.Name = "bad"
	bad.Validation = []Assertion{{Metric: "m", Condition: func(v float64) bool { return v == 1 }, Message: "one"}}

	results, err := engine.ExecuteGameDay(context.Background(), GameDay{Name: "test", Scenarios: []Experiment{ok, bad}})
	require.ErrorIs(t, err, ErrHypothesisViolated)
	require.Len(t, results, 2)
	assert.True(t, results[0].HypothesisHeld)
	assert.False(t, results[1].HypothesisHeld)

	results, err = engine.ExecuteGameDay(context.Background(), GameDay{Name: "green", Scenarios: []Experiment{ok}})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}
