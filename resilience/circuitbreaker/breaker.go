package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// CircuitBreaker guards a single named operation. All state mutations happen
// under the breaker's own lock; two breakers never contend with each other.
type CircuitBreaker struct {
	name   string
	config Config

	mu            sync.Mutex
	state         State
	failureCount  int
	successCount  int
	nextAttemptAt time.Time
	metrics       Metrics

	// clock is replaceable in tests to simulate elapsed recovery windows.
	clock func() time.Time
}

// New creates a circuit breaker for the given service name. The config is
// validated and zero values are replaced with package defaults.
func New(name string, config Config) (*CircuitBreaker, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name must not be empty", ErrInvalidConfig)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("breaker %q: %w", name, err)
	}

	return &CircuitBreaker{
		name:   name,
		config: config.withDefaults(),
		state:  StateClosed,
		clock:  time.Now,
	}, nil
}

// Name returns the service name this breaker guards.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.state
}

// Call runs op through the breaker. While open and before the recovery
// window elapses the call fast-fails without invoking op; the first call at
// or after the window transitions the breaker to half-open and probes op.
//
// The operation is bounded by the configured CallTimeout: a call that
// exceeds it returns immediately while op keeps running in its own
// goroutine until it observes the cancelled context. Use CallSync when op
// must never outlive the call. Errors rejected by the IsRetryable predicate
// pass through without touching breaker state.
func (cb *CircuitBreaker) Call(ctx context.Context, op Operation) (any, error) {
	if op == nil {
		return nil, ErrNilOperation
	}

	if result, rejected, err := cb.admit(ctx); rejected {
		return result, err
	}

	start := cb.clock()
	result, timedOut, err := cb.invoke(ctx, op)

	return cb.settle(ctx, start, result, timedOut, err)
}

// CallSync runs op through the breaker on the calling goroutine. Unlike
// Call, an op that outruns CallTimeout is never abandoned: it runs to
// completion, sees the expired deadline through its context, and the overrun
// is recorded as a timeout failure only after it returns. Use this when op
// must not outlive the call, such as when it touches pooled or reused
// resources.
func (cb *CircuitBreaker) CallSync(ctx context.Context, op Operation) (any, error) {
	if op == nil {
		return nil, ErrNilOperation
	}

	if result, rejected, err := cb.admit(ctx); rejected {
		return result, err
	}

	callCtx, cancel := context.WithTimeout(ctx, cb.config.CallTimeout)
	defer cancel()

	start := cb.clock()
	result, err := op(callCtx)
	timedOut := err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded)

	return cb.settle(ctx, start, result, timedOut, err)
}

// admit applies the open-state gate: fast-fail while the recovery window is
// running, transition to half-open once it elapses. rejected reports that
// the operation must not run; result and err then carry the fast-fail
// outcome.
func (cb *CircuitBreaker) admit(ctx context.Context) (result any, rejected bool, err error) {
	cb.mu.Lock()

	if cb.state == StateOpen {
		now := cb.clock()
		if now.Before(cb.nextAttemptAt) {
			retryAfter := cb.nextAttemptAt.Sub(now)

			// Fast-fail still counts as an observed, failed request.
			cb.metrics.TotalRequests++
			cb.metrics.FailedRequests++
			cb.recalcFailureRateLocked()
			cb.mu.Unlock()

			openErr := &OpenError{Service: cb.name, RetryAfter: retryAfter}
			if cb.config.Fallback != nil {
				result, err = cb.runFallback(ctx, openErr)

				return result, true, err
			}

			return nil, true, openErr
		}

		cb.transitionLocked(StateHalfOpen, now)
	}

	cb.mu.Unlock()

	return nil, false, nil
}

// settle records the outcome of an executed operation and maps it to the
// caller-visible result.
func (cb *CircuitBreaker) settle(ctx context.Context, start time.Time, result any, timedOut bool, err error) (any, error) {
	switch {
	case err == nil:
		cb.recordSuccess(cb.clock().Sub(start))

		return result, nil

	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		// The caller gave up; the downstream did not fail. Transparent
		// pass-through, no breaker state recorded. Checked before the
		// timeout classification so an inherited caller deadline is not
		// mistaken for a CallTimeout expiry.
		return nil, err

	case timedOut:
		cb.recordFailure(true)

		timeoutErr := &TimeoutError{Service: cb.name, Timeout: cb.config.CallTimeout}
		if cb.config.Fallback != nil {
			return cb.runFallback(ctx, timeoutErr)
		}

		return nil, timeoutErr

	case cb.config.IsRetryable == nil || cb.config.IsRetryable(err):
		cb.recordFailure(false)

		if cb.config.Fallback != nil {
			return cb.runFallback(ctx, err)
		}

		return nil, err

	default:
		// Non-retryable: the breaker is a transparent pass-through.
		return result, err
	}
}

// invoke executes op bounded by CallTimeout. The second return value reports
// whether the call timed out.
func (cb *CircuitBreaker) invoke(ctx context.Context, op Operation) (any, bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, cb.config.CallTimeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}

	done := make(chan outcome, 1)

	go func() {
		result, err := op(callCtx)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, true, out.err
		}

		return out.result, false, out.err

	case <-callCtx.Done():
		// The op goroutine keeps running until op returns; the buffered
		// channel lets it finish without blocking.
		err := callCtx.Err()

		return nil, errors.Is(err, context.DeadlineExceeded), err
	}
}

// runFallback invokes the configured fallback with the primary failure cause.
func (cb *CircuitBreaker) runFallback(ctx context.Context, cause error) (any, error) {
	result, err := cb.config.Fallback(ctx, cause)
	if err != nil {
		return nil, &FallbackError{Service: cb.name, Cause: cause, FallbackErr: err}
	}

	return result, nil
}

// recordSuccess updates metrics and drives the success side of the state
// machine: closed decays the failure count, half-open accumulates successes
// toward closing.
func (cb *CircuitBreaker) recordSuccess(elapsed time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.clock()

	cb.metrics.TotalRequests++
	cb.metrics.SuccessfulRequests++
	cb.metrics.LastSuccessTime = now
	cb.recalcFailureRateLocked()

	// Incremental mean over successful calls only.
	n := cb.metrics.SuccessfulRequests
	cb.metrics.AverageResponseTime += (elapsed - cb.metrics.AverageResponseTime) / time.Duration(n)

	switch cb.state {
	case StateClosed:
		if cb.failureCount > 0 {
			cb.failureCount--
		}

	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.transitionLocked(StateClosed, now)
		}
	}
}

// recordFailure updates metrics and drives the failure side of the state
// machine: closed counts toward the threshold, half-open reopens immediately.
func (cb *CircuitBreaker) recordFailure(isTimeout bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.clock()

	cb.metrics.TotalRequests++
	cb.metrics.FailedRequests++
	cb.metrics.LastFailureTime = now
	cb.recalcFailureRateLocked()

	if isTimeout {
		cb.metrics.Timeouts++
	}

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.transitionLocked(StateOpen, now)
		}

	case StateHalfOpen:
		cb.transitionLocked(StateOpen, now)
	}
}

// transitionLocked moves the breaker to a new state and applies the entry
// side effects. Must be called with cb.mu held.
func (cb *CircuitBreaker) transitionLocked(to State, now time.Time) {
	from := cb.state
	if from == to {
		return
	}

	cb.state = to

	switch to {
	case StateOpen:
		cb.nextAttemptAt = now.Add(cb.config.RecoveryTimeout)
		cb.successCount = 0
		cb.metrics.CircuitOpenCount++

	case StateHalfOpen:
		cb.successCount = 0

	case StateClosed:
		cb.failureCount = 0
		cb.successCount = 0
		cb.nextAttemptAt = time.Time{}
	}

	if cb.config.OnStateChange != nil {
		// Notify outside the hot path so a slow hook cannot stall calls.
		go cb.config.OnStateChange(StateChange{
			Service: cb.name,
			From:    from,
			To:      to,
			At:      now,
		})
	}
}

// recalcFailureRateLocked keeps FailureRate consistent with the counters.
// Must be called with cb.mu held.
func (cb *CircuitBreaker) recalcFailureRateLocked() {
	if cb.metrics.TotalRequests > 0 {
		cb.metrics.FailureRate = float64(cb.metrics.FailedRequests) / float64(cb.metrics.TotalRequests)
	} else {
		cb.metrics.FailureRate = 0
	}
}

// Status returns a read-only snapshot of the breaker. Safe to call
// concurrently with Call.
func (cb *CircuitBreaker) Status() Status {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Status{
		Name:             cb.name,
		State:            cb.state,
		FailureCount:     cb.failureCount,
		SuccessCount:     cb.successCount,
		NextAttemptAt:    cb.nextAttemptAt,
		FailureThreshold: cb.config.FailureThreshold,
		SuccessThreshold: cb.config.SuccessThreshold,
		RecoveryTimeout:  cb.config.RecoveryTimeout,
		CallTimeout:      cb.config.CallTimeout,
		Metrics:          cb.metrics,
	}
}

// Metrics returns a snapshot of the breaker's metrics.
func (cb *CircuitBreaker) Metrics() Metrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.metrics
}

// Reset forces the breaker back to closed with zeroed counters and fresh
// metrics, regardless of prior state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.transitionLocked(StateClosed, cb.clock())
	cb.failureCount = 0
	cb.successCount = 0
	cb.nextAttemptAt = time.Time{}
	cb.metrics = Metrics{}
}
