// Package reliability composes a retry policy with per-key circuit
// breakers, and provides the replay store used for deterministic step
// replay.
package reliability

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/kadirpekel/agentsdk/pkg/config"
)

// CircuitOpenError is a distinct failure that halts retrying: the breaker
// for the key is open and the reset timeout has not elapsed.
type CircuitOpenError struct {
	Key string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("Circuit breaker open for %s", e.Key)
}

// retriable lets error types opt out of retrying. Errors that do not
// implement it are treated as transient.
type retriable interface {
	IsRetriable() bool
}

type breakerState struct {
	failures int
	openedAt time.Time
	open     bool
}

// Manager wraps operations in retry-with-backoff behind a per-key circuit
// breaker.
type Manager struct {
	retry   config.RetryConfig
	breaker config.BreakerConfig

	mu    sync.Mutex
	state map[string]*breakerState

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewManager(cfg config.ReliabilityConfig) *Manager {
	cfg.SetDefaults()
	return &Manager{
		retry:   cfg.Retry,
		breaker: cfg.Breaker,
		state:   make(map[string]*breakerState),
		sleep:   sleepCtx,
		now:     time.Now,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Execute runs fn under the retry policy and the breaker for key. The
// last error is propagated once retries are exhausted; a non-retriable
// error surfaces immediately.
func (m *Manager) Execute(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	if err := m.checkBreaker(key); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= m.retry.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}

		result, err := fn(ctx)
		if err == nil {
			m.recordSuccess(key)
			return result, nil
		}

		lastErr = err
		m.recordFailure(key)

		var r retriable
		if errors.As(err, &r) && !r.IsRetriable() {
			break
		}

		if attempt < m.retry.MaxRetries {
			if err := m.sleep(ctx, m.backoffDelay(attempt)); err != nil {
				return nil, lastErr
			}
		}
	}

	return nil, lastErr
}

func (m *Manager) backoffDelay(attempt int) time.Duration {
	delay := time.Duration(float64(m.retry.BaseDelay) * math.Pow(m.retry.ExponentialBase, float64(attempt)))
	if delay > m.retry.MaxDelay {
		delay = m.retry.MaxDelay
	}
	return delay
}

// checkBreaker fails fast when the key's breaker is open. Once the reset
// timeout elapses the breaker resets and the next call probes (half-open
// implicit).
func (m *Manager) checkBreaker(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.state[key]
	if state == nil || !state.open {
		return nil
	}

	if m.now().Sub(state.openedAt) < m.breaker.ResetTimeout {
		return &CircuitOpenError{Key: key}
	}

	state.open = false
	state.failures = 0
	return nil
}

func (m *Manager) recordSuccess(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state := m.state[key]; state != nil {
		state.failures = 0
		state.open = false
	}
}

func (m *Manager) recordFailure(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.state[key]
	if state == nil {
		state = &breakerState{}
		m.state[key] = state
	}

	state.failures++
	if state.failures >= m.breaker.FailureThreshold {
		state.open = true
		state.openedAt = m.now()
	}
}

// BreakerOpen reports whether the breaker for key is currently open.
func (m *Manager) BreakerOpen(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.state[key]
	return state != nil && state.open && m.now().Sub(state.openedAt) < m.breaker.ResetTimeout
}
