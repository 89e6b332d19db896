package circuitbreaker

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrOpen indicates a call was rejected because the breaker is open and
	// not yet due for a probe. Match with errors.Is; the concrete value is
	// always an *OpenError.
	ErrOpen = errors.New("circuitbreaker: circuit is open")

	// ErrCallTimeout indicates the guarded operation exceeded CallTimeout.
	// Match with errors.Is; the concrete value is always a *TimeoutError.
	ErrCallTimeout = errors.New("circuitbreaker: call timed out")

	// ErrFallbackFailed indicates both the primary operation and the
	// configured fallback failed. Match with errors.Is; the concrete value
	// is always a *FallbackError.
	ErrFallbackFailed = errors.New("circuitbreaker: fallback failed")

	// ErrBreakerNotFound indicates the manager holds no breaker under the
	// requested service name.
	ErrBreakerNotFound = errors.New("circuitbreaker: breaker not found")

	// ErrInvalidConfig indicates the breaker configuration is invalid.
	ErrInvalidConfig = errors.New("circuitbreaker: invalid config")

	// ErrNilOperation indicates a nil operation was passed to Call.
	ErrNilOperation = errors.New("circuitbreaker: operation must not be nil")
)

// OpenError is returned when a call is rejected by an open breaker. It
// carries the time remaining until the breaker becomes eligible for a probe.
type OpenError struct {
	Service    string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("service %q is currently unavailable (circuit breaker open), retry in %s", e.Service, e.RetryAfter)
}

func (e *OpenError) Unwrap() error {
	return ErrOpen
}

// TimeoutError is returned when the guarded operation exceeded the
// configured call timeout. It is distinct from any error the operation
// itself may produce.
type TimeoutError struct {
	Service string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("call on service %q exceeded the %s call timeout", e.Service, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return ErrCallTimeout
}

// FallbackError is returned when the primary operation failed and the
// configured fallback failed as well. Both underlying failures are preserved
// for diagnostics.
type FallbackError struct {
	Service     string
	Cause       error
	FallbackErr error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("fallback for service %q failed: %v (primary failure: %v)", e.Service, e.FallbackErr, e.Cause)
}

func (e *FallbackError) Unwrap() []error {
	return []error{ErrFallbackFailed, e.Cause, e.FallbackErr}
}
