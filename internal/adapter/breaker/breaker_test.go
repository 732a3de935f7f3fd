package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingNetwork struct {
	calls     atomic.Int32
	reachable bool
	err       error
}

func (c *countingNetwork) CheckNetwork(ctx context.Context, assetSymbol string) (bool, error) {
	c.calls.Add(1)
	return c.reachable, c.err
}

type countingReputation struct {
	calls atomic.Int32
	err   error
}

func (c *countingReputation) CheckReputation(ctx context.Context, assetSymbol, address string) (bool, error) {
	c.calls.Add(1)
	return c.err == nil, c.err
}

func TestNetworkChecker_OpensPerAsset(t *testing.T) {
	ctx := context.Background()
	next := &countingNetwork{err: errors.New("dial tcp: connection refused")}
	checker := NewNetworkChecker(next, Config{ConsecutiveFailures: 2, Timeout: time.Minute}, zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := checker.CheckNetwork(ctx, "eth")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	}
	assert.Equal(t, gobreaker.StateOpen, checker.State("ETH"))

	ok, err := checker.CheckNetwork(ctx, "ETH")
	require.Error(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Contains(t, err.Error(), "network ETH is unavailable")
	assert.Equal(t, int32(2), next.calls.Load(), "open breaker must not call through")

	// other assets keep their own breaker
	assert.Equal(t, gobreaker.StateClosed, checker.State("SOL"))
	_, err = checker.CheckNetwork(ctx, "SOL")
	assert.NotErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(3), next.calls.Load())
}

func TestNetworkChecker_UnreachableIsNotAFailure(t *testing.T) {
	next := &countingNetwork{reachable: false}
	checker := NewNetworkChecker(next, Config{ConsecutiveFailures: 1, Timeout: time.Minute}, nil)

	for i := 0; i < 3; i++ {
		ok, err := checker.CheckNetwork(context.Background(), "BNB")
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, gobreaker.StateClosed, checker.State("BNB"))
}

func TestNetworkChecker_HalfOpenRecovers(t *testing.T) {
	next := &countingNetwork{err: errors.New("boom")}
	checker := NewNetworkChecker(next, Config{ConsecutiveFailures: 1, Timeout: 20 * time.Millisecond, MaxRequests: 1}, nil)

	_, err := checker.CheckNetwork(context.Background(), "ETH")
	require.Error(t, err)
	require.Equal(t, gobreaker.StateOpen, checker.State("ETH"))

	time.Sleep(40 * time.Millisecond)
	next.err = nil
	next.reachable = true

	ok, err := checker.CheckNetwork(context.Background(), "ETH")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, gobreaker.StateClosed, checker.State("ETH"))
}

func TestReputationChecker(t *testing.T) {
	ctx := context.Background()
	next := &countingReputation{}
	checker := NewReputationChecker(next, Config{ConsecutiveFailures: 1, Timeout: time.Minute}, nil)

	ok, err := checker.CheckReputation(ctx, "ETH", "0xabc")
	require.NoError(t, err)
	assert.True(t, ok)

	next.err = errors.New("redis: connection pool timeout")
	_, err = checker.CheckReputation(ctx, "ETH", "0xabc")
	require.Error(t, err)
	assert.Equal(t, gobreaker.StateOpen, checker.State())

	_, err = checker.CheckReputation(ctx, "SOL", "abc")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), next.calls.Load())
}

// contextNetwork answers with the caller's context error, like a dialer would
type contextNetwork struct {
	calls atomic.Int32
}

func (c *contextNetwork) CheckNetwork(ctx context.Context, assetSymbol string) (bool, error) {
	c.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("dial %s rpc: %w", assetSymbol, err)
	}
	return true, nil
}

func TestNetworkChecker_CancelledCallsDoNotTrip(t *testing.T) {
	next := &contextNetwork{}
	checker := NewNetworkChecker(next, Config{ConsecutiveFailures: 2, Timeout: time.Minute}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 5; i++ {
		_, err := checker.CheckNetwork(ctx, "ETH")
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, gobreaker.ErrOpenState)
	}
	assert.Equal(t, gobreaker.StateClosed, checker.State("ETH"))
	assert.Equal(t, int32(5), next.calls.Load())

	// another session is still served
	ok, err := checker.CheckNetwork(context.Background(), "ETH")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNetworkChecker_DeadlineCountsAsFailure(t *testing.T) {
	next := &contextNetwork{}
	checker := NewNetworkChecker(next, Config{ConsecutiveFailures: 2, Timeout: time.Minute}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	for i := 0; i < 2; i++ {
		_, err := checker.CheckNetwork(ctx, "ETH")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}
	assert.Equal(t, gobreaker.StateOpen, checker.State("ETH"))
}

func TestReputationChecker_CancelledCallsDoNotTrip(t *testing.T) {
	next := &countingReputation{err: context.Canceled}
	checker := NewReputationChecker(next, Config{ConsecutiveFailures: 1, Timeout: time.Minute}, nil)

	for i := 0; i < 3; i++ {
		_, err := checker.CheckReputation(context.Background(), "ETH", "0xabc")
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, checker.State())
	assert.Equal(t, int32(3), next.calls.Load())
}
