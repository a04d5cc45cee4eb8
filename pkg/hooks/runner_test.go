package hooks

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func recording(calls *[]string, name string, result Result, err error) Hook {
	return HookFunc(func(ctx context.Context, hc *Context) (Result, error) {
		*calls = append(*calls, name)
		return result, err
	})
}

func TestRunnerRunsInRegistrationOrder(t *testing.T) {
	runner := NewRunner(testLogger())
	var calls []string

	require.NoError(t, runner.Register(OrderApproval, "first", recording(&calls, "first", Neutral(), nil), nil))
	require.NoError(t, runner.Register(OrderApproval, "second", recording(&calls, "second", Success("ok"), nil), nil))
	require.NoError(t, runner.Register(OrderApproval, "third", recording(&calls, "third", Warning("careful"), nil), nil))

	executions, err := runner.Run(context.Background(), OrderApproval, &Context{})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, calls)
	require.Len(t, executions, 3)
	assert.Equal(t, StatusWarning, executions[2].Result.Status)
	assert.Equal(t, []string{"first", "second", "third"}, runner.Names(OrderApproval))
}

func TestRunnerStopsAtFailure(t *testing.T) {
	tests := []struct {
		name      string
		failing   Hook
		wantError string
	}{
		{
			name:      "failure status",
			failing:   HookFunc(func(ctx context.Context, hc *Context) (Result, error) { return Failure("", "group missing"), nil }),
			wantError: "group missing",
		},
		{
			name:      "returned error",
			failing:   HookFunc(func(ctx context.Context, hc *Context) (Result, error) { return Result{}, errors.New("boom") }),
			wantError: "boom",
		},
		{
			name:      "panic",
			failing:   HookFunc(func(ctx context.Context, hc *Context) (Result, error) { panic("nil order") }),
			wantError: "hook panicked: nil order",
		},
		{
			name:      "unknown status",
			failing:   HookFunc(func(ctx context.Context, hc *Context) (Result, error) { return Result{Status: "MAYBE"}, nil }),
			wantError: `unknown status "MAYBE"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := NewRunner(testLogger())
			var calls []string
			require.NoError(t, runner.Register(PreOrderExecution, "before", recording(&calls, "before", Neutral(), nil), nil))
			require.NoError(t, runner.Register(PreOrderExecution, "failing", tt.failing, nil))
			require.NoError(t, runner.Register(PreOrderExecution, "after", recording(&calls, "after", Neutral(), nil), nil))

			executions, err := runner.Run(context.Background(), PreOrderExecution, &Context{})
			require.Error(t, err)

			var failure *FailureError
			require.ErrorAs(t, err, &failure)
			assert.Equal(t, "failing", failure.Hook)
			assert.Equal(t, PreOrderExecution, failure.Trigger)
			assert.Equal(t, StatusFailure, failure.Result.Status)
			assert.Contains(t, failure.Result.Error, tt.wantError)

			assert.Equal(t, []string{"before"}, calls)
			assert.Len(t, executions, 2)
		})
	}
}

func TestRunnerRegister(t *testing.T) {
	runner := NewRunner(testLogger())
	hook := HookFunc(func(ctx context.Context, hc *Context) (Result, error) { return Neutral(), nil })

	assert.Error(t, runner.Register("post_provision", "x", hook, nil))
	assert.Error(t, runner.Register(OrderSubmission, "nil", nil, nil))
	require.NoError(t, runner.Register(OrderSubmission, "x", hook, nil))
	assert.Error(t, runner.Register(OrderSubmission, "x", hook, nil))

	assert.True(t, runner.Has(OrderSubmission))
	assert.False(t, runner.Has(OrderApproval))
}

func TestRunnerPassesParams(t *testing.T) {
	runner := NewRunner(testLogger())
	var seen []string
	capture := HookFunc(func(ctx context.Context, hc *Context) (Result, error) {
		seen = append(seen, hc.Param("group"))
		return Neutral(), nil
	})
	require.NoError(t, runner.Register(OrderSubmission, "a", capture, map[string]string{"group": "IT"}))
	require.NoError(t, runner.Register(OrderSubmission, "b", capture, map[string]string{"group": "Finance"}))

	_, err := runner.Run(context.Background(), OrderSubmission, &Context{})
	require.NoError(t, err)
	assert.Equal(t, []string{"IT", "Finance"}, seen)
}

func TestRunnerHonorsCancellation(t *testing.T) {
	runner := NewRunner(testLogger())
	var calls []string
	require.NoError(t, runner.Register(OrderSubmission, "a", recording(&calls, "a", Neutral(), nil), nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runner.Run(ctx, OrderSubmission, &Context{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, calls)
}
