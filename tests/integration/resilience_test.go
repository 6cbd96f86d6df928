//go:build integration
// +build integration

package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/srvgate/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/srvgate/internal/kernel/remote"
	"github.com/GriffinCanCode/srvgate/internal/result"
	"github.com/GriffinCanCode/srvgate/internal/srv"
)

func TestBreakerOpensWhenEmulatorStops(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping circuit breaker integration test")
	}
	d := startDaemon(t)
	ctx := context.Background()

	breaker := resilience.New("kernel", resilience.Settings{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	k, err := remote.Dial(ctx, d.addr, "app", remote.WithBreaker(breaker))
	require.NoError(t, err)

	c := srv.New(k)
	require.NoError(t, c.Init(ctx))

	d.gs.Stop()

	for i := 0; i < 3; i++ {
		_, err := c.GetServiceHandle(ctx, "echo")
		require.Error(t, err)
		assert.True(t, result.IsKind(err, result.KindTransport))
		assert.Equal(t, result.Unavailable, result.CodeOf(err))
	}
	assert.Equal(t, resilience.StateOpen, breaker.State())

	_, err = c.IsServiceRegistered(ctx, "echo")
	require.Error(t, err)
	assert.True(t, errors.Is(err, resilience.ErrCircuitOpen))
}

func TestKernelStatusDoesNotTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping circuit breaker integration test")
	}
	d := startDaemon(t)
	ctx := context.Background()

	breaker := remote.NewBreaker(nil)
	k, err := remote.Dial(ctx, d.addr, "app", remote.WithBreaker(breaker))
	require.NoError(t, err)
	defer k.Close(ctx)

	c := srv.New(k)
	for i := 0; i < 20; i++ {
		_, err := c.GetServiceHandle(ctx, "missing")
		assert.True(t, result.IsKind(err, result.KindProtocol))
	}
	assert.Equal(t, resilience.StateClosed, breaker.State())
}
