package reliability

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentsdk/pkg/config"
)

type permanentError struct{ msg string }

func (e *permanentError) Error() string     { return e.msg }
func (e *permanentError) IsRetriable() bool { return false }

func newTestManager(cfg config.ReliabilityConfig) (*Manager, *[]time.Duration) {
	m := NewManager(cfg)
	var sleeps []time.Duration
	m.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return m, &sleeps
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	m, sleeps := newTestManager(config.ReliabilityConfig{
		Retry: config.RetryConfig{MaxRetries: 2, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, ExponentialBase: 2},
	})

	attempts := 0
	out, err := m.Execute(context.Background(), "llm:test", func(context.Context) (any, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *sleeps)
}

func TestExecutePropagatesLastErrorWhenExhausted(t *testing.T) {
	m, _ := newTestManager(config.ReliabilityConfig{
		Retry: config.RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond},
	})

	attempts := 0
	_, err := m.Execute(context.Background(), "k", func(context.Context) (any, error) {
		attempts++
		return nil, fmt.Errorf("failure %d", attempts)
	})

	require.Error(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, "failure 2", err.Error())
}

func TestExecuteDoesNotRetryNonRetriableErrors(t *testing.T) {
	m, sleeps := newTestManager(config.ReliabilityConfig{
		Retry: config.RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond},
	})

	attempts := 0
	_, err := m.Execute(context.Background(), "k", func(context.Context) (any, error) {
		attempts++
		return nil, &permanentError{msg: "denied"}
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, *sleeps)
}

func TestBackoffDelayIsCapped(t *testing.T) {
	m, _ := newTestManager(config.ReliabilityConfig{
		Retry: config.RetryConfig{MaxRetries: 10, BaseDelay: time.Second, MaxDelay: 3 * time.Second, ExponentialBase: 2},
	})

	assert.Equal(t, time.Second, m.backoffDelay(0))
	assert.Equal(t, 2*time.Second, m.backoffDelay(1))
	assert.Equal(t, 3*time.Second, m.backoffDelay(2))
	assert.Equal(t, 3*time.Second, m.backoffDelay(8))
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	m, _ := newTestManager(config.ReliabilityConfig{
		Retry:   config.RetryConfig{MaxRetries: 0, BaseDelay: time.Millisecond},
		Breaker: config.BreakerConfig{FailureThreshold: 3, ResetTimeout: 30 * time.Second},
	})

	fail := func(context.Context) (any, error) { return nil, errors.New("down") }
	for i := 0; i < 3; i++ {
		_, err := m.Execute(context.Background(), "svc", fail)
		require.Error(t, err)
	}
	assert.True(t, m.BreakerOpen("svc"))

	_, err := m.Execute(context.Background(), "svc", fail)
	var openErr *CircuitOpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, "Circuit breaker open for svc", err.Error())
}

func TestBreakerResetsAfterTimeout(t *testing.T) {
	m, _ := newTestManager(config.ReliabilityConfig{
		Retry:   config.RetryConfig{MaxRetries: 0, BaseDelay: time.Millisecond},
		Breaker: config.BreakerConfig{FailureThreshold: 1, ResetTimeout: 30 * time.Second},
	})

	clock := time.Now()
	m.now = func() time.Time { return clock }

	_, err := m.Execute(context.Background(), "svc", func(context.Context) (any, error) {
		return nil, errors.New("down")
	})
	require.Error(t, err)
	assert.True(t, m.BreakerOpen("svc"))

	clock = clock.Add(31 * time.Second)

	out, err := m.Execute(context.Background(), "svc", func(context.Context) (any, error) {
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
	assert.False(t, m.BreakerOpen("svc"))
}

func TestBreakersAreIndependentPerKey(t *testing.T) {
	m, _ := newTestManager(config.ReliabilityConfig{
		Retry:   config.RetryConfig{MaxRetries: 0, BaseDelay: time.Millisecond},
		Breaker: config.BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute},
	})

	_, err := m.Execute(context.Background(), "bad", func(context.Context) (any, error) {
		return nil, errors.New("down")
	})
	require.Error(t, err)

	out, err := m.Execute(context.Background(), "good", func(context.Context) (any, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, out)
}

func TestReplayStoreRoundTrip(t *testing.T) {
	store := NewReplayStore()

	_, ok := store.Lookup(1)
	assert.False(t, ok)

	store.Record(1, "output")
	out, ok := store.Lookup(1)
	assert.True(t, ok)
	assert.Equal(t, "output", out)
}
