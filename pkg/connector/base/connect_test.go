package base

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/hdm/pkg/config"
	"github.com/ajitpratap0/hdm/pkg/errors"
)

func fastPolicy(attempts int) *RetryPolicy {
	return NewRetryPolicy(attempts, time.Millisecond).WithDelay(time.Millisecond, 2*time.Millisecond)
}

func TestConnect_FailsOverOnConnectivityError(t *testing.T) {
	var primaryCalls int
	res := Connect(context.Background(), fastPolicy(2),
		Strategy[string]{Name: "primary", Dial: func(context.Context) (string, error) {
			primaryCalls++
			return "", errors.New(errors.ErrorTypeConnection, "connection refused")
		}},
		Strategy[string]{Name: "failover", Dial: func(context.Context) (string, error) {
			return "conn-b", nil
		}},
	)

	require.NoError(t, res.Err)
	assert.Equal(t, "conn-b", res.Value)
	assert.Equal(t, "failover", res.Strategy)
	assert.Equal(t, 2, primaryCalls)
	assert.Equal(t, 3, res.Attempts)
}

func TestConnect_StopsOnNonConnectivityError(t *testing.T) {
	var failoverCalled bool
	res := Connect(context.Background(), fastPolicy(3),
		Strategy[int]{Name: "primary", Dial: func(context.Context) (int, error) {
			return 0, errors.New(errors.ErrorTypeConfig, "access denied")
		}},
		Strategy[int]{Name: "failover", Dial: func(context.Context) (int, error) {
			failoverCalled = true
			return 1, nil
		}},
	)

	require.Error(t, res.Err)
	assert.True(t, errors.IsFatal(res.Err))
	assert.False(t, failoverCalled)
	assert.Equal(t, 1, res.Attempts)
}

func TestConnect_AllStrategiesExhausted(t *testing.T) {
	dial := func(context.Context) (int, error) {
		return 0, errors.New(errors.ErrorTypeTimeout, "i/o timeout")
	}
	res := Connect(context.Background(), fastPolicy(2),
		Strategy[int]{Name: "a", Dial: dial},
		Strategy[int]{Name: "b", Dial: dial},
	)

	require.Error(t, res.Err)
	assert.True(t, errors.IsType(res.Err, errors.ErrorTypeConnection))
	assert.Contains(t, res.Err.Error(), "a: all 2 attempts failed")
	assert.Contains(t, res.Err.Error(), "b: all 2 attempts failed")
	assert.Equal(t, 4, res.Attempts)
}

func TestConnect_NoStrategies(t *testing.T) {
	res := Connect[int](context.Background(), nil)
	assert.True(t, errors.IsFatal(res.Err))
}

func TestRetryPolicy_Execute_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := NewRetryPolicy(5, time.Hour).Execute(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New(errors.ErrorTypeConnection, "refused")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPolicyFromSettings(t *testing.T) {
	p := PolicyFromSettings(config.Resolve(config.Snapshot{}))
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 3*time.Second, p.InitialDelay)
	assert.Equal(t, 3.0, p.Multiplier)
}
