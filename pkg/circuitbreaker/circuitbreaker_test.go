package circuitbreaker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"pairnet/pkg/circuitbreaker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend down")

func failing() error { return errBackend }
func succeeding() error { return nil }

func testConfig() circuitbreaker.Config {
	return circuitbreaker.Config{
		FailureThreshold:    3,
		SuccessThreshold:    2,
		Timeout:             20 * time.Millisecond,
		MaxRequestsHalfOpen: 2,
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb := circuitbreaker.New(testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := cb.Execute(ctx, failing)
		assert.ErrorIs(t, err, errBackend)
	}
	assert.Equal(t, circuitbreaker.StateOpen, cb.State())

	calls := 0
	err := cb.Execute(ctx, func() error {
		calls++
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, 0, calls)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := circuitbreaker.New(testConfig())
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, failing))
	require.Error(t, cb.Execute(ctx, failing))
	require.NoError(t, cb.Execute(ctx, succeeding))
	require.Error(t, cb.Execute(ctx, failing))
	require.Error(t, cb.Execute(ctx, failing))

	assert.Equal(t, circuitbreaker.StateClosed, cb.State())
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb := circuitbreaker.New(testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.Error(t, cb.Execute(ctx, failing))
	}
	require.Equal(t, circuitbreaker.StateOpen, cb.State())

	time.Sleep(25 * time.Millisecond)

	require.NoError(t, cb.Execute(ctx, succeeding))
	assert.Equal(t, circuitbreaker.StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(ctx, succeeding))
	assert.Equal(t, circuitbreaker.StateClosed, cb.State())
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	cb := circuitbreaker.New(testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.Error(t, cb.Execute(ctx, failing))
	}
	time.Sleep(25 * time.Millisecond)

	err := cb.Execute(ctx, failing)
	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, circuitbreaker.StateOpen, cb.State())
}

func TestBreakerLimitsHalfOpenProbes(t *testing.T) {
	cfg := testConfig()
	cfg.SuccessThreshold = 5
	cb := circuitbreaker.New(cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.Error(t, cb.Execute(ctx, failing))
	}
	time.Sleep(25 * time.Millisecond)

	require.NoError(t, cb.Execute(ctx, succeeding))
	require.NoError(t, cb.Execute(ctx, succeeding))

	err := cb.Execute(ctx, succeeding)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
}

func TestBreakerReset(t *testing.T) {
	cb := circuitbreaker.New(testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.Error(t, cb.Execute(ctx, failing))
	}
	require.Equal(t, circuitbreaker.StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, circuitbreaker.StateClosed, cb.State())
	assert.NoError(t, cb.Execute(ctx, succeeding))
}
