//go:build unit

package circuitbreaker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LerianStudio/lib-resilience/resilience/log"
)

func newTestHealthChecker(t *testing.T, m Manager, interval, checkTimeout time.Duration) HealthChecker {
	t.Helper()

	hc, err := NewHealthChecker(m, interval, checkTimeout, log.NewNop())
	require.NoError(t, err)

	return hc
}

func TestNewHealthChecker_Validation(t *testing.T) {
	m := newTestManager(t)

	_, err := NewHealthChecker(m, 0, time.Second, log.NewNop())
	assert.ErrorIs(t, err, ErrInvalidHealthCheckInterval)

	_, err = NewHealthChecker(m, time.Second, -time.Second, log.NewNop())
	assert.ErrorIs(t, err, ErrInvalidHealthCheckTimeout)

	hc, err := NewHealthChecker(m, time.Second, time.Second, log.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, hc)
}

func TestHealthChecker_GetHealthStatus(t *testing.T) {
	m := newTestManager(t, WithDefaultConfig(Config{FailureThreshold: 1, RecoveryTimeout: time.Hour}))
	require.NoError(t, m.InitializeBreakers([]string{"up", "down"}, nil))

	hc := newTestHealthChecker(t, m, time.Second, time.Second)
	hc.Register("up", func(ctx context.Context) error { return nil })
	hc.Register("down", func(ctx context.Context) error { return errors.New("unreachable") })

	_, _ = m.Execute(context.Background(), "down", failingOp)

	status := hc.GetHealthStatus()
	assert.Equal(t, string(StateClosed), status["up"])
	assert.Equal(t, string(StateOpen), status["down"])
}

func TestHealthChecker_ResetsRecoveredService(t *testing.T) {
	m := newTestManager(t, WithDefaultConfig(Config{FailureThreshold: 1, RecoveryTimeout: time.Hour}))
	require.NoError(t, m.InitializeBreakers([]string{"svc"}, nil))

	var healthy atomic.Bool

	checks := make(chan struct{}, 16)

	hc := newTestHealthChecker(t, m, 20*time.Millisecond, time.Second)
	hc.Register("svc", func(ctx context.Context) error {
		select {
		case checks <- struct{}{}:
		default:
		}

		if healthy.Load() {
			return nil
		}

		return errors.New("still down")
	})

	hc.Start()
	defer hc.Stop()

	_, _ = m.Execute(context.Background(), "svc", failingOp)
	require.Equal(t, StateOpen, m.GetState("svc"))

	// First probe fails while the service is down.
	select {
	case <-checks:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a health check probe")
	}

	healthy.Store(true)

	// A later probe sees the recovery and resets the breaker.
	require.Eventually(t, func() bool {
		return m.GetState("svc") == StateClosed
	}, 5*time.Second, 10*time.Millisecond)
}

func TestHealthChecker_SkipsHealthyServices(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.InitializeBreakers([]string{"svc"}, nil))

	var probes atomic.Int32

	hc := newTestHealthChecker(t, m, 10*time.Millisecond, time.Second)
	hc.Register("svc", func(ctx context.Context) error {
		probes.Add(1)
		return nil
	})

	hc.Start()

	time.Sleep(100 * time.Millisecond)
	hc.Stop()

	// A closed breaker is never probed.
	assert.Zero(t, probes.Load())
}

func TestHealthChecker_ImmediateCheckOnOpen(t *testing.T) {
	m := newTestManager(t, WithDefaultConfig(Config{FailureThreshold: 1, RecoveryTimeout: time.Hour}))
	require.NoError(t, m.InitializeBreakers([]string{"svc"}, nil))

	checks := make(chan struct{}, 16)

	// Long interval so only the immediate check can fire quickly.
	hc := newTestHealthChecker(t, m, time.Hour, time.Second)
	hc.Register("svc", func(ctx context.Context) error {
		checks <- struct{}{}
		return errors.New("still down")
	})

	m.RegisterStateChangeListener(hc)

	hc.Start()
	defer hc.Stop()

	_, _ = m.Execute(context.Background(), "svc", failingOp)

	select {
	case <-checks:
	case <-time.After(2 * time.Second):
		t.Fatal("expected an immediate probe after the breaker opened")
	}
}

func TestHealthChecker_BacksOffFailingService(t *testing.T) {
	m := newTestManager(t, WithDefaultConfig(Config{FailureThreshold: 1, RecoveryTimeout: time.Hour}))
	require.NoError(t, m.InitializeBreakers([]string{"svc"}, nil))

	var probes atomic.Int32

	interval := 10 * time.Millisecond

	hc := newTestHealthChecker(t, m, interval, time.Second)
	hc.Register("svc", func(ctx context.Context) error {
		probes.Add(1)
		return errors.New("still down")
	})

	hc.Start()
	defer hc.Stop()

	_, _ = m.Execute(context.Background(), "svc", failingOp)

	// Over 30 ticks a non-backing-off checker would probe ~30 times; the
	// growing probe delay keeps the count well below that.
	time.Sleep(30 * interval)
	assert.Less(t, probes.Load(), int32(15))
	assert.Greater(t, probes.Load(), int32(0))
}

func TestHealthChecker_StopIsIdempotentForProbes(t *testing.T) {
	m := newTestManager(t)
	hc := newTestHealthChecker(t, m, 10*time.Millisecond, time.Second)

	hc.Start()
	hc.Stop()

	// No probes run after Stop returns.
	status := hc.GetHealthStatus()
	assert.Empty(t, status)
}
